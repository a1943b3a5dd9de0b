// Package cli holds the flags and setup shared by the thinrsbus tools.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

// ConnOptions are the connection flags every tool accepts.
type ConnOptions struct {
	ConfigPath string
	Redis      string
	Password   string
	TLS        bool
	Namespace  string
	Topic      string
	LogLevel   string
}

// Bind registers the connection flags as persistent flags on cmd.
// Defaults come from REDIS_HOST, REDIS_PORT, REDIS_PASSWORD and REDIS_USE_TLS.
func (o *ConnOptions) Bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.ConfigPath, "config", "c", "", "YAML config file")
	flags.StringVar(&o.Redis, "redis", getEnv("REDIS_HOST", "localhost")+":"+getEnv("REDIS_PORT", "6379"), "Redis address (host:port)")
	flags.StringVar(&o.Password, "password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	flags.BoolVar(&o.TLS, "tls", getEnvBool("REDIS_USE_TLS", false), "Enable TLS")
	flags.StringVar(&o.Namespace, "ns", "", "Namespace (required unless set in --config)")
	flags.StringVar(&o.Topic, "topic", "", "Topic (required)")
	flags.StringVar(&o.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

// Config resolves the flags into a validated Config. Flags given on the
// command line win over the config file.
func (o *ConnOptions) Config(cmd *cobra.Command) (thinrsbus.Config, error) {
	cfg, err := thinrsbus.LoadConfig(o.ConfigPath)
	if err != nil {
		return thinrsbus.Config{}, err
	}

	flags := cmd.Flags()
	if o.ConfigPath == "" || flags.Changed("redis") {
		cfg.Redis.Address = o.Redis
	}
	if o.ConfigPath == "" || flags.Changed("password") {
		cfg.Redis.Password = o.Password
	}
	if o.ConfigPath == "" || flags.Changed("tls") {
		cfg.Redis.UseTLS = o.TLS
	}
	if o.Namespace != "" {
		cfg.Namespace = o.Namespace
	}

	if o.Topic == "" {
		return thinrsbus.Config{}, errors.New("--topic is required")
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return thinrsbus.Config{}, err
	}
	return cfg, nil
}

// Logger builds a text slog.Logger on stderr at the configured level.
func (o *ConnOptions) Logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", o.LogLevel, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
