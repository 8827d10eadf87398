package groups

import (
	"fmt"
	"time"

	"github.com/cloudhut/kafka-web/filter"
)

// Lower bounds for the waits of a forced removal. The group coordinator needs this much time to notice
// membership changes, there is no signal to wait for instead.
const (
	MinNudgeDuration = time.Second
	MinSettleDelay   = 2 * time.Second
	MinRetryBackoff  = time.Second
)

type Config struct {
	// NudgeTopic is the topic the temporary consumer subscribes to in order to trigger a rebalance.
	NudgeTopic string `koanf:"nudgeTopic"`

	// NudgeDuration is how long the temporary consumer stays in the group.
	NudgeDuration time.Duration `koanf:"nudgeDuration"`

	// SettleDelay is waited after the temporary consumer left the group.
	SettleDelay time.Duration `koanf:"settleDelay"`

	DeleteAttempts int           `koanf:"deleteAttempts"`
	RetryBackoff   time.Duration `koanf:"retryBackoff"`

	// UIManagedGroups are expressions matching the groups this application creates itself. These groups are
	// reported as removed even if the broker refuses to delete them, the broker expires them eventually.
	UIManagedGroups []string `koanf:"uiManagedGroups"`
}

func (c *Config) SetDefaults() {
	c.NudgeTopic = "__consumer_offsets"
	c.NudgeDuration = MinNudgeDuration
	c.SettleDelay = MinSettleDelay
	c.DeleteAttempts = 3
	c.RetryBackoff = MinRetryBackoff
	c.UIManagedGroups = []string{"/^kafka-web-ui-.*/"}
}

func (c *Config) Validate() error {
	if c.NudgeTopic == "" {
		return fmt.Errorf("nudgeTopic must not be empty")
	}
	if c.NudgeDuration < MinNudgeDuration {
		return fmt.Errorf("nudgeDuration must be at least %v", MinNudgeDuration)
	}
	if c.SettleDelay < MinSettleDelay {
		return fmt.Errorf("settleDelay must be at least %v", MinSettleDelay)
	}
	if c.DeleteAttempts < 1 {
		return fmt.Errorf("deleteAttempts must be at least 1")
	}
	if c.RetryBackoff < MinRetryBackoff {
		return fmt.Errorf("retryBackoff must be at least %v", MinRetryBackoff)
	}
	if err := filter.Validate(c.UIManagedGroups); err != nil {
		return fmt.Errorf("invalid uiManagedGroups: %w", err)
	}
	return nil
}
