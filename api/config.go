package api

import (
	"fmt"
	"time"
)

type Config struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	TLSCertFile string `koanf:"tlsCertificate"`
	TLSKeyFile  string `koanf:"tlsKey"`

	// ShutdownTimeout bounds how long in-flight requests may take after a shutdown signal.
	ShutdownTimeout time.Duration `koanf:"shutdownTimeout"`
}

func (c *Config) SetDefaults() {
	c.Port = 8080
	c.ShutdownTimeout = 10 * time.Second
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tlsCertificate and tlsKey must be set together")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout must be greater than zero")
	}
	return nil
}

func (c *Config) address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
