package browse

import (
	"fmt"
	"time"
)

type Config struct {
	// GroupID is the fixed consumer group resumable browse sessions commit their progress to.
	GroupID string `koanf:"groupId"`

	// SearchGroupPrefix prefixes the ephemeral group ids of one-shot searches.
	SearchGroupPrefix string `koanf:"searchGroupPrefix"`

	// MaxWait bounds how long a single poll waits for messages.
	MaxWait time.Duration `koanf:"maxWait"`

	// SessionTTL is how long an unused browse session is kept in memory.
	SessionTTL time.Duration `koanf:"sessionTtl"`

	DefaultLimit int `koanf:"defaultLimit"`
	MaxLimit     int `koanf:"maxLimit"`
}

func (c *Config) SetDefaults() {
	c.GroupID = "kafka-web-ui-browser"
	c.SearchGroupPrefix = "kafka-web-ui-search-"
	c.MaxWait = 5 * time.Second
	c.SessionTTL = 10 * time.Minute
	c.DefaultLimit = 50
	c.MaxLimit = 1000
}

func (c *Config) Validate() error {
	if c.GroupID == "" {
		return fmt.Errorf("browse groupId must not be empty")
	}
	if c.SearchGroupPrefix == "" {
		return fmt.Errorf("browse searchGroupPrefix must not be empty")
	}
	if c.MaxWait <= 0 {
		return fmt.Errorf("browse maxWait must be greater than zero")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("browse sessionTtl must be greater than zero")
	}
	if c.DefaultLimit < 1 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("browse limits must satisfy 1 <= defaultLimit <= maxLimit")
	}
	return nil
}
