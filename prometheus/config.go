package prometheus

import (
	"fmt"
	"time"

	"github.com/cloudhut/kafka-web/filter"
)

type Config struct {
	Namespace string `koanf:"namespace"`

	// ScrapeTimeout bounds the lag computation of a single scrape.
	ScrapeTimeout time.Duration `koanf:"scrapeTimeout"`

	Topics TopicConfig `koanf:"topics"`
}

type TopicConfig struct {
	// Allowed are expressions of topic names whose lag metrics shall be exported.
	Allowed []string `koanf:"allowed"`

	// Ignored are expressions of topic names that shall be skipped when exporting metrics. Ignored topics
	// take precedence over allowed topics.
	Ignored []string `koanf:"ignored"`
}

func (c *Config) SetDefaults() {
	c.Namespace = "kafkaweb"
	c.ScrapeTimeout = 10 * time.Second
	c.Topics.Allowed = []string{"/.*/"}
}

func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("scrapeTimeout must be greater than zero")
	}
	if err := filter.Validate(c.Topics.Allowed); err != nil {
		return fmt.Errorf("invalid allowed topics: %w", err)
	}
	if err := filter.Validate(c.Topics.Ignored); err != nil {
		return fmt.Errorf("invalid ignored topics: %w", err)
	}
	return nil
}
