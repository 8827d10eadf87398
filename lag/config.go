package lag

import (
	"fmt"
	"time"
)

type Config struct {
	// MaxConcurrentGroupFetches limits how many committed offset requests are in flight at the same time
	// while computing the lag of a single topic.
	MaxConcurrentGroupFetches int `koanf:"maxConcurrentGroupFetches"`

	// GroupCacheTTL is how long the list of consumer groups is reused before it is fetched again.
	GroupCacheTTL time.Duration `koanf:"groupCacheTtl"`
}

func (c *Config) SetDefaults() {
	c.MaxConcurrentGroupFetches = 10
	c.GroupCacheTTL = 10 * time.Second
}

func (c *Config) Validate() error {
	if c.MaxConcurrentGroupFetches < 1 {
		return fmt.Errorf("maxConcurrentGroupFetches must be at least 1")
	}
	if c.GroupCacheTTL < 0 {
		return fmt.Errorf("groupCacheTtl must not be negative")
	}
	return nil
}
