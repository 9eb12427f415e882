package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

var (
	// ErrActorUnavailable is returned when the supervisor terminated before resolving a request
	ErrActorUnavailable = errors.New("riot websocket supervisor is not running")
	// ErrClientClosed is returned by a handle after its Close
	ErrClientClosed = errors.New("riot websocket client handle is closed")
)

// shutdownWait bounds how long the last Close waits for the supervisor to exit
const shutdownWait = 5 * time.Second

// clientCore is shared by every handle of one client
type clientCore struct {
	supervisor *supervisor
	commands   chan command
	cancel     context.CancelFunc
	logger     *slog.Logger

	refMu sync.Mutex
	refs  int

	// sendMu guards commands against a close while a handle is sending
	sendMu sync.RWMutex
	closed bool
}

// RiotWebSocketClient is a handle to the resilient event-subscription client.
// Handles are cheap; Clone one per goroutine or component and Close each of them.
// The supervisor and its connection live until the last handle is closed.
type RiotWebSocketClient struct {
	core      *clientCore
	released  atomic.Bool
	closeOnce sync.Once
}

var _ riot.EventClient = (*RiotWebSocketClient)(nil)

// NewRiotWebSocketClient starts the supervisor and returns the first handle.
// The supervisor immediately begins polling supplier for credentials.
func NewRiotWebSocketClient(supplier riot.CredentialSupplier, logger *slog.Logger, opts ...Option) *RiotWebSocketClient {
	cfg := defaultClientConfig()
	if logger != nil {
		cfg.logger = logger
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	metrics := newClientMetrics()
	if cfg.registerer != nil {
		if err := metrics.register(cfg.registerer); err != nil {
			cfg.logger.Warn("Failed to register metrics",
				"function", "NewRiotWebSocketClient",
				"error", err)
		}
	}

	commands := make(chan command, cfg.commandBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	core := &clientCore{
		supervisor: newSupervisor(cfg, supplier, commands, metrics),
		commands:   commands,
		cancel:     cancel,
		logger:     cfg.logger,
		refs:       1,
	}

	cfg.logger.Info("Starting Riot WebSocket client",
		"function", "NewRiotWebSocketClient",
		"connect_failure_policy", string(cfg.connectFailurePolicy),
		"command_buffer", cfg.commandBuffer,
		"feed_buffer", cfg.feedBuffer)

	go core.supervisor.run(ctx)
	return &RiotWebSocketClient{core: core}
}

// Subscribe asks the server for event and returns once it has acknowledged.
// There is no internal timeout; ctx is the caller's way to stop waiting.
func (c *RiotWebSocketClient) Subscribe(ctx context.Context, event riot.Event) error {
	if !event.Valid() {
		return fmt.Errorf("subscribe: %w: %s", riot.ErrUnknownEvent, event)
	}
	return c.request(ctx, commandSubscribe, event)
}

// Unsubscribe asks the server to stop sending event and returns once it has acknowledged
func (c *RiotWebSocketClient) Unsubscribe(ctx context.Context, event riot.Event) error {
	if !event.Valid() {
		return fmt.Errorf("unsubscribe: %w: %s", riot.ErrUnknownEvent, event)
	}
	return c.request(ctx, commandUnsubscribe, event)
}

// Subscriptions returns the events the client currently intends to be subscribed to.
// It is served by the supervisor and so waits while a reconnect is in progress.
func (c *RiotWebSocketClient) Subscriptions(ctx context.Context) ([]riot.Event, error) {
	cmd := command{
		kind:     commandSnapshot,
		snapshot: make(chan []riot.Event, 1),
	}
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}

	select {
	case events := <-cmd.snapshot:
		return events, nil
	case <-c.core.supervisor.done:
		select {
		case events := <-cmd.snapshot:
			return events, nil
		default:
			return nil, c.unavailable()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Feed returns server pushes for subscribed events. It is closed when the supervisor terminates.
func (c *RiotWebSocketClient) Feed() <-chan riot.FeedMessage {
	return c.core.supervisor.feed
}

// Done is closed when the supervisor has terminated
func (c *RiotWebSocketClient) Done() <-chan struct{} {
	return c.core.supervisor.done
}

// Err returns why the supervisor terminated. It is nil while running and after a clean shutdown.
func (c *RiotWebSocketClient) Err() error {
	select {
	case <-c.core.supervisor.done:
		return c.core.supervisor.err
	default:
		return nil
	}
}

// Clone returns a new handle to the same supervisor. Cloning a closed handle yields a closed handle.
func (c *RiotWebSocketClient) Clone() *RiotWebSocketClient {
	clone := &RiotWebSocketClient{core: c.core}
	if c.released.Load() {
		clone.released.Store(true)
		return clone
	}

	c.core.refMu.Lock()
	defer c.core.refMu.Unlock()
	if c.core.refs == 0 {
		clone.released.Store(true)
		return clone
	}
	c.core.refs++
	return clone
}

// Close releases this handle. Closing the last handle shuts the supervisor down.
// Calling Close more than once is a no-op.
func (c *RiotWebSocketClient) Close() error {
	c.closeOnce.Do(func() {
		// a handle cloned from a closed one never took a reference
		if c.released.Swap(true) {
			return
		}
		c.core.release()
	})
	return nil
}

func (c *RiotWebSocketClient) request(ctx context.Context, kind commandKind, event riot.Event) error {
	cmd := command{
		kind:  kind,
		event: event,
		done:  newConfirmation(),
	}
	if err := c.send(ctx, cmd); err != nil {
		return err
	}

	select {
	case <-cmd.done:
		return nil
	case <-c.core.supervisor.done:
		// the ack may have been resolved just before termination
		select {
		case <-cmd.done:
			return nil
		default:
			return c.unavailable()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send blocks while the command channel is full
func (c *RiotWebSocketClient) send(ctx context.Context, cmd command) error {
	if c.released.Load() {
		return ErrClientClosed
	}

	c.core.sendMu.RLock()
	defer c.core.sendMu.RUnlock()
	if c.core.closed {
		return ErrClientClosed
	}

	select {
	case c.core.commands <- cmd:
		return nil
	case <-c.core.supervisor.done:
		return c.unavailable()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RiotWebSocketClient) unavailable() error {
	if err := c.core.supervisor.err; err != nil {
		return fmt.Errorf("%w: %w", ErrActorUnavailable, err)
	}
	return ErrActorUnavailable
}

func (core *clientCore) release() {
	core.refMu.Lock()
	if core.refs == 0 {
		core.refMu.Unlock()
		return
	}
	core.refs--
	last := core.refs == 0
	core.refMu.Unlock()
	if !last {
		return
	}

	core.logger.Info("Last handle closed, stopping supervisor",
		"function", "release")

	// cancel first so senders blocked on a full channel are released via done
	core.cancel()
	core.sendMu.Lock()
	core.closed = true
	close(core.commands)
	core.sendMu.Unlock()

	select {
	case <-core.supervisor.done:
		core.logger.Info("Supervisor exited cleanly",
			"function", "release")
	case <-time.After(shutdownWait):
		core.logger.Warn("Supervisor exit timeout",
			"function", "release")
	}
}
