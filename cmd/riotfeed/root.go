package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/bjoelf/riot-adapter/adapter/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	defaults := riot.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.String("lockfile-path", defaults.LockfilePath, "path of the Riot Client lockfile")
	flags.String("host", defaults.Host, "host of the local Riot endpoint")
	flags.StringSlice("events", []string{riot.EventPresences.String()}, "events to subscribe to (wire names)")
	flags.String("connect-failure-policy", string(defaults.ConnectFailurePolicy), "what to do when dialing fails: fatal or retry")
	flags.Duration("credential-retry-interval", defaults.CredentialRetryInterval, "delay between lockfile polls")
	flags.Int("command-buffer", defaults.CommandBuffer, "capacity of the handle command channel")
	flags.Int("feed-buffer", defaults.FeedBuffer, "capacity of the feed channel")
	flags.Duration("handshake-timeout", defaults.HandshakeTimeout, "WebSocket handshake timeout")
	flags.Duration("write-timeout", defaults.WriteTimeout, "deadline for each request write")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address (disabled when empty)")

	viper.SetEnvPrefix("RIOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "riotfeed",
	Short: "riotfeed - follow the local Riot Client event feed",
	Long: `riotfeed watches the Riot Client lockfile, connects to the local WebSocket
while the client runs, subscribes to the requested events and logs every feed message.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, events, err := loadConfig()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, events, viper.GetString("metrics-addr"), logger)
	},
}

// loadConfig starts from riot.LoadConfig and applies every setting that was given
// as a flag or RIOT_* variable through viper
func loadConfig() (riot.Config, []riot.Event, error) {
	cfg, err := riot.LoadConfig()
	if err != nil {
		return cfg, nil, err
	}

	if viper.IsSet("lockfile-path") {
		cfg.LockfilePath = viper.GetString("lockfile-path")
	}
	if viper.IsSet("host") {
		cfg.Host = viper.GetString("host")
	}
	for key, target := range map[string]*time.Duration{
		"credential-retry-interval": &cfg.CredentialRetryInterval,
		"handshake-timeout":         &cfg.HandshakeTimeout,
		"write-timeout":             &cfg.WriteTimeout,
	} {
		if !viper.IsSet(key) {
			continue
		}
		d := viper.GetDuration(key)
		if d <= 0 {
			return cfg, nil, fmt.Errorf("invalid %s: must be positive, got %q", key, viper.GetString(key))
		}
		*target = d
	}
	for key, target := range map[string]*int{
		"command-buffer": &cfg.CommandBuffer,
		"feed-buffer":    &cfg.FeedBuffer,
	} {
		if !viper.IsSet(key) {
			continue
		}
		n := viper.GetInt(key)
		if n <= 0 {
			return cfg, nil, fmt.Errorf("invalid %s: must be positive, got %q", key, viper.GetString(key))
		}
		*target = n
	}

	if viper.IsSet("connect-failure-policy") {
		policy, err := riot.ParseConnectFailurePolicy(viper.GetString("connect-failure-policy"))
		if err != nil {
			return cfg, nil, err
		}
		cfg.ConnectFailurePolicy = policy
	}
	if viper.IsSet("log-level") {
		level, err := riot.ParseLogLevel(viper.GetString("log-level"))
		if err != nil {
			return cfg, nil, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.LogLevel = level
	}

	var events []riot.Event
	for _, value := range viper.GetStringSlice("events") {
		// RIOT_EVENTS arrives as one comma separated string
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			event, err := riot.ParseEvent(name)
			if err != nil {
				return cfg, nil, err
			}
			events = append(events, event)
		}
	}
	if len(events) == 0 {
		return cfg, nil, errors.New("at least one event is required")
	}
	return cfg, events, nil
}

func run(ctx context.Context, cfg riot.Config, events []riot.Event, metricsAddr string, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	if metricsAddr != "" {
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics",
				"function", "run",
				"addr", metricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed",
					"function", "run",
					"error", err)
			}
		}()
		defer server.Close()
	}

	watcher, err := riot.NewLockfileWatcher(cfg.LockfilePath, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	var client *websocket.RiotWebSocketClient
	sessions := 0
	stopClient := func() {
		if client != nil {
			client.Close()
			client = nil
		}
	}
	defer stopClient()

	logger.Info("Waiting for the Riot Client",
		"function", "run",
		"lockfile", cfg.LockfilePath)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down",
				"function", "run")
			return nil

		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			switch event.State {
			case riot.ProcessStarted:
				if running(client) {
					continue
				}
				if client != nil {
					logger.Info("Replacing terminated client",
						"function", "run",
						"error", client.Err())
					stopClient()
				}
				sessions++
				// each process lifetime gets its own series
				reg := prometheus.WrapRegistererWith(prometheus.Labels{"session": strconv.Itoa(sessions)}, registry)
				client = websocket.NewRiotWebSocketClient(
					riot.LockfileSupplier(cfg.LockfilePath, logger),
					logger,
					websocket.WithConfig(cfg),
					websocket.WithRegisterer(reg),
				)
				go follow(ctx, client, events, logger)

			case riot.ProcessStopped:
				logger.Info("Riot Client stopped, closing client",
					"function", "run")
				stopClient()
			}
		}
	}
}

// running reports whether client exists and its supervisor has not terminated
func running(client *websocket.RiotWebSocketClient) bool {
	if client == nil {
		return false
	}
	select {
	case <-client.Done():
		return false
	default:
		return true
	}
}

// follow subscribes handle to events and logs the feed until the client terminates.
// The handle is owned by run, which closes it when the Riot Client stops.
func follow(ctx context.Context, handle *websocket.RiotWebSocketClient, events []riot.Event, logger *slog.Logger) {
	for _, event := range events {
		if err := handle.Subscribe(ctx, event); err != nil {
			logger.Warn("Subscribe failed",
				"function", "follow",
				"event", event.String(),
				"error", err)
			return
		}
		logger.Info("Subscribed",
			"function", "follow",
			"event", event.String())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-handle.Done():
			if err := handle.Err(); err != nil {
				logger.Error("Client terminated",
					"function", "follow",
					"error", err)
			}
			return
		case msg, ok := <-handle.Feed():
			if !ok {
				return
			}
			logger.Info("Feed message",
				"function", "follow",
				"event", msg.Event,
				"opcode", msg.Opcode,
				"bytes", len(msg.Payload))
		}
	}
}
