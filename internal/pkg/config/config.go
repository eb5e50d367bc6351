// Package config loads the command line tool settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nettee/pancake/internal/page"
	"github.com/nettee/pancake/internal/pkg/logging"
)

const LogLevelEnv = "LOG_LEVEL"

type Config struct {
	Log    logging.Config `yaml:"log"`
	Buffer BufferConfig   `yaml:"buffer"`
	Index  IndexConfig    `yaml:"index"`
}

type BufferConfig struct {
	Size int `yaml:"size"`
}

type IndexConfig struct {
	// BranchingFactor of new indexes, 0 picks the largest that fits a page.
	BranchingFactor uint32 `yaml:"branching_factor"`
}

func Default() Config {
	return Config{
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Buffer: BufferConfig{
			Size: page.DefaultBufferSize,
		},
	}
}

// Load reads the file at path over the defaults. An empty path loads the
// defaults only. The LOG_LEVEL environment variable wins over both.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if level := os.Getenv(LogLevelEnv); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Buffer.Size <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.Buffer.Size)
	}
	return nil
}
