package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level string `koanf:"level"`
	// Format is either json or console. Console output is meant for local development.
	Format string `koanf:"format"`
}

func (c *Config) SetDefaults() {
	c.Level = "info"
	c.Format = FormatJSON
}

func (c *Config) Validate() error {
	if _, err := c.zapLevel(); err != nil {
		return err
	}
	switch c.Format {
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("log format must be '%s' or '%s', got '%s'", FormatJSON, FormatConsole, c.Format)
	}
	return nil
}

func (c *Config) zapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return level, fmt.Errorf("failed to parse logger level: %w", err)
	}
	return level, nil
}
