package websocket

import (
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/prometheus/client_golang/prometheus"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

type clientConfig struct {
	logger                  *slog.Logger
	connector               riot.Connector
	connectFailurePolicy    riot.ConnectFailurePolicy
	credentialRetryInterval time.Duration
	commandBuffer           int
	feedBuffer              int
	writeTimeout            time.Duration
	registerer              prometheus.Registerer
	retryTimer              retry.Timer
	riotConfig              riot.Config
}

func defaultClientConfig() clientConfig {
	cfg := riot.DefaultConfig()
	return clientConfig{
		logger:                  slog.Default(),
		connectFailurePolicy:    cfg.ConnectFailurePolicy,
		credentialRetryInterval: cfg.CredentialRetryInterval,
		commandBuffer:           cfg.CommandBuffer,
		feedBuffer:              cfg.FeedBuffer,
		writeTimeout:            cfg.WriteTimeout,
		riotConfig:              cfg,
	}
}

// Option configures a RiotWebSocketClient
type Option func(*clientConfig)

// WithConfig applies loaded configuration. Options given after it override single fields.
func WithConfig(cfg riot.Config) Option {
	return func(c *clientConfig) {
		c.riotConfig = cfg
		c.connectFailurePolicy = cfg.ConnectFailurePolicy
		if cfg.CredentialRetryInterval > 0 {
			c.credentialRetryInterval = cfg.CredentialRetryInterval
		}
		if cfg.CommandBuffer > 0 {
			c.commandBuffer = cfg.CommandBuffer
		}
		if cfg.FeedBuffer > 0 {
			c.feedBuffer = cfg.FeedBuffer
		}
		if cfg.WriteTimeout > 0 {
			c.writeTimeout = cfg.WriteTimeout
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConnector replaces the gorilla Dialer, e.g. with an in-memory connection in tests
func WithConnector(connector riot.Connector) Option {
	return func(c *clientConfig) {
		c.connector = connector
	}
}

// WithConnectFailurePolicy chooses between terminating and retrying when dialing fails
func WithConnectFailurePolicy(policy riot.ConnectFailurePolicy) Option {
	return func(c *clientConfig) {
		c.connectFailurePolicy = policy
	}
}

// WithCredentialRetryInterval sets the fixed delay between credential polls
func WithCredentialRetryInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		if interval > 0 {
			c.credentialRetryInterval = interval
		}
	}
}

// WithCommandBuffer sets the capacity of the command channel (backpressure limit)
func WithCommandBuffer(size int) Option {
	return func(c *clientConfig) {
		if size > 0 {
			c.commandBuffer = size
		}
	}
}

// WithFeedBuffer sets the capacity of the Feed channel
func WithFeedBuffer(size int) Option {
	return func(c *clientConfig) {
		if size > 0 {
			c.feedBuffer = size
		}
	}
}

// WithWriteTimeout bounds each frame write
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// WithRegisterer registers the client's prometheus collectors
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// WithRetryTimer swaps the timer used between credential polls
func WithRetryTimer(timer retry.Timer) Option {
	return func(c *clientConfig) {
		c.retryTimer = timer
	}
}
