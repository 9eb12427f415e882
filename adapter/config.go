package riot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ConnectFailurePolicy decides what the client does when opening the socket fails
type ConnectFailurePolicy string

const (
	// ConnectFailureFatal terminates the client with the connect error
	ConnectFailureFatal ConnectFailurePolicy = "fatal"
	// ConnectFailureRetry goes back to credential acquisition after the retry interval
	ConnectFailureRetry ConnectFailurePolicy = "retry"
)

const (
	DefaultHost                    = "127.0.0.1"
	DefaultCredentialRetryInterval = 500 * time.Millisecond
	DefaultCommandBuffer           = 10
	DefaultFeedBuffer              = 100
	DefaultHandshakeTimeout        = 30 * time.Second
	DefaultWriteTimeout            = 5 * time.Second
)

// Config holds the runtime settings of the client and its collaborators
type Config struct {
	LockfilePath            string
	Host                    string
	CredentialRetryInterval time.Duration
	CommandBuffer           int
	FeedBuffer              int
	HandshakeTimeout        time.Duration
	WriteTimeout            time.Duration
	ConnectFailurePolicy    ConnectFailurePolicy
	LogLevel                slog.Level
}

// DefaultConfig returns the settings used when no environment variable is set
func DefaultConfig() Config {
	return Config{
		LockfilePath:            DefaultLockfilePath(),
		Host:                    DefaultHost,
		CredentialRetryInterval: DefaultCredentialRetryInterval,
		CommandBuffer:           DefaultCommandBuffer,
		FeedBuffer:              DefaultFeedBuffer,
		HandshakeTimeout:        DefaultHandshakeTimeout,
		WriteTimeout:            DefaultWriteTimeout,
		ConnectFailurePolicy:    ConnectFailureFatal,
		LogLevel:                slog.LevelInfo,
	}
}

// LoadConfig loads configuration from RIOT_* environment variables on top of DefaultConfig
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("RIOT_LOCKFILE_PATH"); v != "" {
		cfg.LockfilePath = v
	}
	if v := os.Getenv("RIOT_HOST"); v != "" {
		cfg.Host = v
	}

	var err error
	if cfg.CredentialRetryInterval, err = durationEnv("RIOT_CREDENTIAL_RETRY_INTERVAL", cfg.CredentialRetryInterval); err != nil {
		return cfg, err
	}
	if cfg.HandshakeTimeout, err = durationEnv("RIOT_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = durationEnv("RIOT_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return cfg, err
	}
	if cfg.CommandBuffer, err = positiveIntEnv("RIOT_COMMAND_BUFFER", cfg.CommandBuffer); err != nil {
		return cfg, err
	}
	if cfg.FeedBuffer, err = positiveIntEnv("RIOT_FEED_BUFFER", cfg.FeedBuffer); err != nil {
		return cfg, err
	}

	if v := os.Getenv("RIOT_CONNECT_FAILURE_POLICY"); v != "" {
		policy, err := ParseConnectFailurePolicy(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RIOT_CONNECT_FAILURE_POLICY: %w", err)
		}
		cfg.ConnectFailurePolicy = policy
	}

	if v := os.Getenv("RIOT_LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RIOT_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// ParseConnectFailurePolicy accepts "fatal" or "retry"
func ParseConnectFailurePolicy(s string) (ConnectFailurePolicy, error) {
	switch ConnectFailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case ConnectFailureFatal:
		return ConnectFailureFatal, nil
	case ConnectFailureRetry:
		return ConnectFailureRetry, nil
	default:
		return "", fmt.Errorf("unknown connect failure policy %q (must be 'fatal' or 'retry')", s)
	}
}

// ParseLogLevel accepts debug, info, warn or error
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// DefaultLockfilePath returns the lockfile location of the Riot Client on this machine
func DefaultLockfilePath() string {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			base = dir
		}
	}
	return filepath.Join(base, "Riot Games", "Riot Client", "Config", "lockfile")
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return fallback, fmt.Errorf("invalid %s: must be positive, got %s", key, v)
	}
	return d, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return fallback, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}
