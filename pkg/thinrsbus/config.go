package thinrsbus

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Namespace  string           `yaml:"namespace"`
	Redis      RedisConfig      `yaml:"redis"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

type RedisConfig struct {
	Address  string `yaml:"address"` // default: "localhost:6379"
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"` // default: 10
	UseTLS   bool   `yaml:"use_tls"`   // default: false
}

// RemovalPolicy controls whether a delivered message is removed from the queue.
type RemovalPolicy string

const (
	// RemoveDelivered removes a message once it has been fanned out to consumers.
	RemoveDelivered RemovalPolicy = "delivered"
	// RemoveNever leaves every message in the queue for other readers.
	RemoveNever RemovalPolicy = "never"
)

type ReceiverConfig struct {
	WatchTimeoutMs    int64         `yaml:"watch_timeout_ms"`    // default: 86400000 (24h)
	Workers           int64         `yaml:"workers"`             // default: 16
	StartID           string        `yaml:"start_id"`            // default: "0"
	ShutdownTimeoutMs int64         `yaml:"shutdown_timeout_ms"` // default: 30000
	Removal           RemovalPolicy `yaml:"removal"`             // default: "delivered"
	NamePrefix        string        `yaml:"name_prefix"`         // default: "receiver"
}

type SupervisorConfig struct {
	BaseDelayMs int64 `yaml:"base_delay_ms"` // default: 1000
	MaxDelayMs  int64 `yaml:"max_delay_ms"`  // default: 60000
	Jitter      bool  `yaml:"jitter"`        // default: true
}

// DefaultConfig returns a Config with all default values.
// Namespace is left empty and MUST be set by the caller.
func DefaultConfig() Config {
	return Config{
		Namespace: "",
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		Receiver: ReceiverConfig{
			WatchTimeoutMs:    int64(24 * time.Hour / time.Millisecond),
			Workers:           16,
			StartID:           "0",
			ShutdownTimeoutMs: 30000,
			Removal:           RemoveDelivered,
			NamePrefix:        "receiver",
		},
		Supervisor: SupervisorConfig{
			BaseDelayMs: 1000,
			MaxDelayMs:  60000,
			Jitter:      true,
		},
	}
}

// Validate checks that all required fields are set and values are within valid ranges.
// Returns an error describing the first validation failure.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("thinrsbus: namespace must not be empty")
	}

	if c.Receiver.WatchTimeoutMs <= 0 {
		return errors.New("thinrsbus: receiver watch_timeout must be > 0")
	}

	if c.Receiver.Workers <= 0 {
		return errors.New("thinrsbus: receiver workers must be > 0")
	}

	switch c.Receiver.Removal {
	case RemoveDelivered, RemoveNever:
	default:
		return fmt.Errorf("thinrsbus: receiver removal must be %q or %q, got %q",
			RemoveDelivered, RemoveNever, c.Receiver.Removal)
	}

	if c.Receiver.StartID != "$" {
		if _, _, err := parseID(c.Receiver.StartID); err != nil {
			return fmt.Errorf("thinrsbus: receiver start_id: %w", err)
		}
	}

	if c.Supervisor.BaseDelayMs <= 0 {
		return errors.New("thinrsbus: supervisor base_delay must be > 0")
	}

	if c.Supervisor.MaxDelayMs < c.Supervisor.BaseDelayMs {
		return errors.New("thinrsbus: supervisor max_delay must be >= base_delay")
	}

	return nil
}

// WithDefaults returns a new Config with zero-value fields replaced by defaults.
// Boolean fields are left as they are.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	result := c

	// Redis
	if result.Redis.Address == "" {
		result.Redis.Address = defaults.Redis.Address
	}
	if result.Redis.PoolSize == 0 {
		result.Redis.PoolSize = defaults.Redis.PoolSize
	}

	// Receiver
	if result.Receiver.WatchTimeoutMs == 0 {
		result.Receiver.WatchTimeoutMs = defaults.Receiver.WatchTimeoutMs
	}
	if result.Receiver.Workers == 0 {
		result.Receiver.Workers = defaults.Receiver.Workers
	}
	if result.Receiver.StartID == "" {
		result.Receiver.StartID = defaults.Receiver.StartID
	}
	if result.Receiver.ShutdownTimeoutMs == 0 {
		result.Receiver.ShutdownTimeoutMs = defaults.Receiver.ShutdownTimeoutMs
	}
	if result.Receiver.Removal == "" {
		result.Receiver.Removal = defaults.Receiver.Removal
	}
	if result.Receiver.NamePrefix == "" {
		result.Receiver.NamePrefix = defaults.Receiver.NamePrefix
	}

	// Supervisor
	if result.Supervisor.BaseDelayMs == 0 {
		result.Supervisor.BaseDelayMs = defaults.Supervisor.BaseDelayMs
	}
	if result.Supervisor.MaxDelayMs == 0 {
		result.Supervisor.MaxDelayMs = defaults.Supervisor.MaxDelayMs
	}

	return result
}

// ConfigFromEnv reads Redis connection settings from environment variables
// and returns a Config with those values set. Unset variables use defaults.
//
// Environment variables:
//   - REDIS_HOST: Redis hostname (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_USE_TLS: Enable TLS ("true" or "1") (default: false)
//
// The returned Config has Namespace empty -- callers must set it.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	applyEnv(&cfg)
	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig, then applies the REDIS_*
// environment variables that are set. An empty path yields ConfigFromEnv().
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return ConfigFromEnv(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if os.Getenv("REDIS_HOST") != "" || os.Getenv("REDIS_PORT") != "" {
		applyEnv(&cfg)
	}

	return cfg.WithDefaults(), nil
}

func applyEnv(cfg *Config) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	cfg.Redis.Address = host + ":" + port

	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	tlsEnv := os.Getenv("REDIS_USE_TLS")
	cfg.Redis.UseTLS = (tlsEnv == "true" || tlsEnv == "1")
}

func (c ReceiverConfig) watchTimeout() time.Duration {
	return time.Duration(c.WatchTimeoutMs) * time.Millisecond
}

func (c ReceiverConfig) shutdownTimeout() time.Duration {
	if c.ShutdownTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}
