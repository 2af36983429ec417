package logkeeper

import (
	"errors"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LogLevel     string   `toml:"logLevel"`
	KafkaBrokers []string `toml:"kafkaBrokers"`
	KafkaTopic   string   `toml:"kafkaTopic"`
	KafkaGroupID string   `toml:"kafkaGroupID"`

	ElasticSearchIndex string   `toml:"elasticSearchIndex"`
	ElasticSearchNodes []string `toml:"elasticSearchNodes"`

	NumWorkers int `toml:"numWorkers"`
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.ElasticSearchIndex == "" {
		cfg.ElasticSearchIndex = "postboard-logs"
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
		return nil, errors.New("kafkaBrokers and kafkaTopic are required")
	}

	return &cfg, nil
}
