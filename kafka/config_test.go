package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, "kafka-web", cfg.ClientID)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.TLS.Enabled)
	assert.False(t, cfg.SASL.Enabled)
	assert.Equal(t, SASLMechanismPlain, cfg.SASL.Mechanism)
	assert.Equal(t, "kafka", cfg.SASL.GSSAPI.ServiceName)
	assert.True(t, cfg.SASL.GSSAPI.EnableFast)
}

func TestConfig_Validate(t *testing.T) {
	validConfig := func() Config {
		var cfg Config
		cfg.SetDefaults()
		cfg.Brokers = []string{"localhost:9092"}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "valid defaults with brokers",
			modify:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "no brokers",
			modify:  func(cfg *Config) { cfg.Brokers = nil },
			wantErr: true,
		},
		{
			name:    "empty client id",
			modify:  func(cfg *Config) { cfg.ClientID = "" },
			wantErr: true,
		},
		{
			name:    "zero request timeout",
			modify:  func(cfg *Config) { cfg.RequestTimeout = 0 },
			wantErr: true,
		},
		{
			name: "scram without username",
			modify: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = SASLMechanismScramSHA512
			},
			wantErr: true,
		},
		{
			name: "scram with username",
			modify: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = SASLMechanismScramSHA512
				cfg.SASL.Username = "admin"
				cfg.SASL.Password = "secret"
			},
			wantErr: false,
		},
		{
			name: "unknown sasl mechanism",
			modify: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = "NOPE"
			},
			wantErr: true,
		},
		{
			name: "oauth without endpoint",
			modify: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = SASLMechanismOAuthBearer
			},
			wantErr: true,
		},
		{
			name: "tls ca given twice",
			modify: func(cfg *Config) {
				cfg.TLS.Enabled = true
				cfg.TLS.Ca = "-----BEGIN CERTIFICATE-----"
				cfg.TLS.CaFilepath = "/etc/ca.pem"
			},
			wantErr: true,
		},
		{
			name: "tls cert without key",
			modify: func(cfg *Config) {
				cfg.TLS.Enabled = true
				cfg.TLS.CertFilepath = "/etc/client.pem"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
