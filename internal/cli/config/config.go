// Package config loads gometr configuration from gometr.yml, with
// environment-variable overrides under the GOMETR_ prefix.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the gometr configuration
type Config struct {
	DriverDir string        `mapstructure:"driver_dir"`
	Server    ServerConfig  `mapstructure:"server"`
	Store     StoreConfig   `mapstructure:"store"`
	Cache     CacheConfig   `mapstructure:"cache"`
	Acquire   AcquireConfig `mapstructure:"acquire"`
}

// ServerConfig configures the control server
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AuthSecret enables token auth for mutating endpoints when non-empty
	AuthSecret string        `mapstructure:"auth_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig configures trace history persistence
type StoreConfig struct {
	// Path is the SQLite database file; empty disables trace history
	Path string `mapstructure:"path"`
}

// CacheConfig configures the state cache
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// AcquireConfig configures continuous acquisition
type AcquireConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads gometr.yml from the working directory, falling back to
// defaults when no config file exists.
func Load() (*Config, error) {
	return load(".")
}

func load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("driver_dir", "drivers")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8520)
	v.SetDefault("server.token_ttl", "24h")
	v.SetDefault("store.path", "traces.db")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("acquire.interval", "1s")

	v.SetConfigName("gometr")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("GOMETR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got %q", cfg.Cache.Backend)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Acquire.Interval <= 0 {
		return fmt.Errorf("acquire.interval must be positive, got %s", cfg.Acquire.Interval)
	}
	return nil
}
