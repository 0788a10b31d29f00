package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Upstream SBS feed
	SBSHost string
	SBSPort int

	// Backend process
	BackendPath     string
	BackendArgs     []string
	BackendDisabled bool

	// Downstream CoT consumer
	CoTHost string
	CoTPort int

	ReconnectDelay time.Duration
	StopTimeout    time.Duration
	IdleTimeout    time.Duration

	// Optional NATS mirror, disabled when NATSURL is empty
	NATSURL     string
	NATSSubject string

	// Optional metrics and health endpoint, disabled when empty
	MetricsAddr   string
	StatsInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		SBSHost:     getEnv("SBS_HOST", "127.0.0.1"),
		BackendPath: getEnv("BACKEND_PATH", "./external/dump1090/dump1090"),
		BackendArgs: strings.Fields(getEnv("BACKEND_ARGS", "--net --quiet")),
		CoTHost:     getEnv("COT_HOST", "127.0.0.1"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT", "cot.events"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.SBSPort, err = getPort("SBS_PORT", 30003); err != nil {
		return nil, err
	}
	if cfg.CoTPort, err = getPort("COT_PORT", 8087); err != nil {
		return nil, err
	}
	if cfg.BackendDisabled, err = getBool("BACKEND_DISABLED", false); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = getDuration("RECONNECT_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = getDuration("STOP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = getDuration("IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.StatsInterval, err = getDuration("STATS_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the pipeline relies on
func (c *Config) Validate() error {
	if c.SBSHost == "" {
		return fmt.Errorf("SBS_HOST must not be empty")
	}
	if c.CoTHost == "" {
		return fmt.Errorf("COT_HOST must not be empty")
	}
	if !c.BackendDisabled && c.BackendPath == "" {
		return fmt.Errorf("BACKEND_PATH is required unless BACKEND_DISABLED is set")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive, got %s", c.ReconnectDelay)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("STOP_TIMEOUT must be positive, got %s", c.StopTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("IDLE_TIMEOUT must not be negative, got %s", c.IdleTimeout)
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("STATS_INTERVAL must not be negative, got %s", c.StatsInterval)
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("NATS_SUBJECT must not be empty when NATS_URL is set")
	}
	return nil
}

// SBSAddr returns the upstream host:port
func (c *Config) SBSAddr() string {
	return net.JoinHostPort(c.SBSHost, strconv.Itoa(c.SBSPort))
}

// CoTAddr returns the downstream host:port
func (c *Config) CoTAddr() string {
	return net.JoinHostPort(c.CoTHost, strconv.Itoa(c.CoTPort))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getPort(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be a port number between 1 and 65535, got %q", key, raw)
	}
	return port, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q: %w", key, raw, err)
	}
	return d, nil
}
