package kafka

import "fmt"

const (
	GSSAPIAuthTypeUser   = "USER_AUTH"
	GSSAPIAuthTypeKeytab = "KEYTAB_AUTH"
)

// SASLGSSAPIConfig represents the Kafka Kerberos config
type SASLGSSAPIConfig struct {
	AuthType           string `koanf:"authType"`
	KeyTabPath         string `koanf:"keyTabPath"`
	KerberosConfigPath string `koanf:"kerberosConfigPath"`
	ServiceName        string `koanf:"serviceName"`
	Username           string `koanf:"username"`
	Password           string `koanf:"password"`
	Realm              string `koanf:"realm"`
	EnableFast         bool   `koanf:"enableFast"`
}

func (c *SASLGSSAPIConfig) SetDefaults() {
	c.EnableFast = true
	c.ServiceName = "kafka"
}

func (c *SASLGSSAPIConfig) Validate() error {
	switch c.AuthType {
	case GSSAPIAuthTypeUser, GSSAPIAuthTypeKeytab:
	default:
		return fmt.Errorf("kafka.sasl.gssapi.authType must be one of %v or %v", GSSAPIAuthTypeUser, GSSAPIAuthTypeKeytab)
	}
	if c.KerberosConfigPath == "" {
		return fmt.Errorf("kafka.sasl.gssapi.kerberosConfigPath must be set")
	}
	if c.AuthType == GSSAPIAuthTypeKeytab && c.KeyTabPath == "" {
		return fmt.Errorf("kafka.sasl.gssapi.keyTabPath must be set when using keytab auth")
	}

	return nil
}
