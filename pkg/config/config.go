package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Targets []Target      `mapstructure:"targets"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	BaseURL    string `mapstructure:"baseURL"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listenAddr"`
}

// Target describes one database to expose. Name doubles as the first
// path segment of every route derived from the target.
type Target struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// Filter is a regex-like object name filter. Only a leading ^ and a
	// trailing $ anchor are interpreted; the rest is matched as a prefix.
	Filter string `mapstructure:"filter"`
	// Encrypt controls transport encryption (encrypt=true|false in the
	// connection string).
	Encrypt bool `mapstructure:"encrypt"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
	}
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sqlrest")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SQLREST")

	v.SetDefault("server.listenAddr", DefaultServerConfig().ListenAddr)
	v.SetDefault("metrics.listenAddr", ":9100")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks target entries for the fields the supervisors need.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Host == "" {
			return fmt.Errorf("target %q: host is required", t.Name)
		}
		if t.Database == "" {
			return fmt.Errorf("target %q: database is required", t.Name)
		}
	}
	return nil
}
