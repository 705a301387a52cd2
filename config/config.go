// Package config loads skvd configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/jrife/skv/storage/kv/plugins"
	"github.com/jrife/skv/storage/kv/plugins/bbolt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalid is returned by Validate
var ErrInvalid = errors.New("invalid config")

// Config is the root of the configuration file
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Server       ServerConfig       `yaml:"http-server"`
	Storage      StorageConfig      `yaml:"storage"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Query        QueryConfig        `yaml:"query"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	// Driver names a kv plugin
	Driver string `yaml:"driver"`
	// Path is required by drivers that persist to disk
	Path string `yaml:"path"`
}

type TransactionsConfig struct {
	MaxOpen            int           `yaml:"max_open"`
	Timeout            time.Duration `yaml:"timeout"`
	FinalizedRetention time.Duration `yaml:"finalized_retention"`
	ReaperInterval     time.Duration `yaml:"reaper_interval"`
	Compact            bool          `yaml:"compact"`
}

type QueryConfig struct {
	PageSize int `yaml:"page_size"`
}

// Default returns a config suitable for local development
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: ":30000",
		},
		Storage: StorageConfig{
			Driver: bbolt.DriverName,
			Path:   "./data/skv.db",
		},
		Transactions: TransactionsConfig{
			MaxOpen:            10000,
			Timeout:            time.Minute,
			FinalizedRetention: time.Minute * 5,
			ReaperInterval:     time.Second * 10,
			Compact:            true,
		},
		Query: QueryConfig{
			PageSize: 100,
		},
	}
}

// Load reads the config at path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("could not read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the config can be used to start a server
func (cfg Config) Validate() error {
	if _, err := zapcore.ParseLevel(cfg.Logger.Level); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("%w: http-server.addr must not be empty", ErrInvalid)
	}

	if plugins.Plugin(cfg.Storage.Driver) == nil {
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, cfg.Storage.Driver)
	}

	if cfg.Storage.Driver == bbolt.DriverName && cfg.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required by %s", ErrInvalid, bbolt.DriverName)
	}

	if cfg.Transactions.MaxOpen < 0 || cfg.Transactions.Timeout < 0 || cfg.Transactions.FinalizedRetention < 0 || cfg.Transactions.ReaperInterval < 0 {
		return fmt.Errorf("%w: transaction limits must not be negative", ErrInvalid)
	}

	if cfg.Query.PageSize < 0 {
		return fmt.Errorf("%w: query.page_size must not be negative", ErrInvalid)
	}

	return nil
}

// Build creates the logger described by cfg
func (cfg LoggerConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)

	if err != nil {
		return nil, err
	}

	var zapConfig zap.Config

	if cfg.JSON {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}
