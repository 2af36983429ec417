package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"postboard/pkg/storage/postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

// Posts source kinds.
const (
	KindHTTP     = "http"
	KindFeed     = "feed"
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

type Config struct {
	ServiceName  string `toml:"serviceName"`
	HTTPAddr     string `toml:"httpAddr"`
	LogLevel     string `toml:"logLevel"`
	TemplatePath string `toml:"templatePath"`

	KafkaAddr  string `toml:"kafkaAddr"`
	KafkaTopic string `toml:"kafkaTopic"`
	KafkaBatch int    `toml:"kafkaBatch"`

	Upstream Upstream        `toml:"upstream"`
	Postgres postgres.Config `toml:"postgres"`
}

// Upstream selects where posts come from.
type Upstream struct {
	Kind    string        `toml:"kind"`
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"`
	DevData string        `toml:"devData"`
}

// LoadConfig reads a TOML config file and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "postboard"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Upstream.Kind == "" {
		c.Upstream.Kind = KindHTTP
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 5 * time.Second
	}
}

// Validate checks that the selected posts source is fully configured.
func (c *Config) Validate() error {
	switch c.Upstream.Kind {
	case KindHTTP, KindFeed:
		if c.Upstream.URL == "" {
			return fmt.Errorf("%w: upstream.url is required for kind %q", ErrInvalidConfig, c.Upstream.Kind)
		}
	case KindPostgres:
		if !c.Postgres.IsValid() {
			return fmt.Errorf("%w: postgres %s", ErrInvalidConfig, c.Postgres)
		}
	case KindMemory:
		if c.Upstream.DevData == "" {
			return fmt.Errorf("%w: upstream.devData is required for kind %q", ErrInvalidConfig, KindMemory)
		}
	default:
		return fmt.Errorf("%w: unknown upstream kind %q", ErrInvalidConfig, c.Upstream.Kind)
	}
	if (c.KafkaAddr == "") != (c.KafkaTopic == "") {
		return fmt.Errorf("%w: kafkaAddr and kafkaTopic must be set together", ErrInvalidConfig)
	}
	return nil
}
