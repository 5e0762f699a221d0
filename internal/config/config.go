package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable consumed here.
const EnvPrefix = "NEWORDER"

type Config struct {
	ListenAddr  string `envconfig:"NEWORDER_LISTEN_ADDR" default:":8080"`
	DBPath      string `envconfig:"NEWORDER_DB_PATH" default:"/data/neworder.db"`
	BlobBackend string `envconfig:"NEWORDER_BLOB_BACKEND" default:"sqlite"`
	BlobPath    string `envconfig:"NEWORDER_BLOB_LOCAL_PATH" default:"/data/images"`
	LogLevel    string `envconfig:"NEWORDER_LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"NEWORDER_LOG_FORMAT" default:"json"`
	LogFile     string `envconfig:"NEWORDER_LOG_FILE" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.BlobBackend != "sqlite" && cfg.BlobBackend != "local" {
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
	return &cfg, nil
}
