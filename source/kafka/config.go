package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Driver    string   `koanf:"driver"` // sarama (default)
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	CommitInt time.Duration `koanf:"commit_interval"` // offset flush cadence
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sarama"
	}
	if c.Version == "" {
		c.Version = sarama.DefaultVersion.String()
	}
	if c.CommitInt == 0 {
		c.CommitInt = 5 * time.Second
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
}
