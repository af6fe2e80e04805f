package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Driver DriverConfig `yaml:"driver" json:"driver"`
}

type ServerConfig struct {
	Port string `yaml:"port" json:"port"`
}

type StoreConfig struct {
	// Path to the SQLite database for cycles and tasks. Empty keeps
	// everything in memory.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

type DriverConfig struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" json:"interval_minutes"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8484"},
		Driver: DriverConfig{Enabled: true, IntervalMinutes: 15},
	}
}

// Load reads a yaml config file on top of the defaults. A missing file
// is not an error; env overrides are applied last either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func (c *Config) DriverInterval() time.Duration {
	if c.Driver.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Driver.IntervalMinutes) * time.Minute
}
