package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/gorilla/websocket"
)

// errConnectionLost marks a connection that must be replaced
var errConnectionLost = errors.New("connection lost")

// writeDeadliner is implemented by *websocket.Conn; in-memory conns may skip it
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// supervisor owns the live socket, the confirmation queue and the subscription set.
// All three are only touched from the run goroutine.
type supervisor struct {
	cfg       clientConfig
	supplier  riot.CredentialSupplier
	connector riot.Connector
	logger    *slog.Logger
	metrics   *clientMetrics

	commands <-chan command
	feed     chan riot.FeedMessage

	state         supervisorState
	subscriptions *subscriptionSet
	queue         *confirmationQueue
	// confirmations of requests whose connection died before the ack arrived;
	// resolved once the next connection has recovered
	carried     []chan struct{}
	connections int

	done chan struct{}
	err  error
}

func newSupervisor(cfg clientConfig, supplier riot.CredentialSupplier, commands <-chan command, metrics *clientMetrics) *supervisor {
	connector := cfg.connector
	if connector == nil {
		connector = NewDialer(cfg.riotConfig, cfg.logger)
	}
	return &supervisor{
		cfg:           cfg,
		supplier:      supplier,
		connector:     connector,
		logger:        cfg.logger,
		metrics:       metrics,
		commands:      commands,
		feed:          make(chan riot.FeedMessage, cfg.feedBuffer),
		subscriptions: newSubscriptionSet(),
		queue:         newConfirmationQueue(),
		done:          make(chan struct{}),
	}
}

// run is the reconnect loop. It returns when the supervisor terminates.
func (s *supervisor) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in supervisor",
				"function", "run",
				"panic", r)
			s.err = fmt.Errorf("supervisor panic: %v", r)
		}
		s.setState(stateTerminated)
		s.metrics.connected.Set(0)
		close(s.feed)
		close(s.done)
	}()

	for {
		s.setState(stateAcquiringCredentials)
		creds, err := acquireCredentials(ctx, s.supplier, s.cfg.credentialRetryInterval,
			s.cfg.retryTimer, s.metrics, s.logger)
		if err != nil {
			// only cancellation ends the retry loop, which means every handle was closed
			s.logger.Info("Credential acquisition stopped",
				"function", "run",
				"reason", err)
			return
		}

		s.setState(stateConnecting)
		conn, err := s.connector.Connect(ctx, creds)
		if err != nil {
			s.metrics.connectFailures.Inc()
			if ctx.Err() != nil {
				return
			}
			if !s.onConnectFailure(ctx, err) {
				return
			}
			continue
		}

		s.connections++
		if s.connections > 1 {
			s.metrics.reconnects.Inc()
		}
		s.metrics.connected.Set(1)

		terminate, err := s.serve(ctx, conn)
		s.loseConnection(conn)
		if terminate {
			s.err = err
			return
		}
		s.logger.Warn("Connection lost, reconnecting",
			"function", "run",
			"error", err,
			"carried_confirmations", len(s.carried),
			"subscriptions", s.subscriptions.Len())
	}
}

// onConnectFailure is the single policy point for dial failures.
// It reports whether the reconnect loop should continue.
func (s *supervisor) onConnectFailure(ctx context.Context, err error) bool {
	if s.cfg.connectFailurePolicy != riot.ConnectFailureRetry {
		s.logger.Error("Connect failed, terminating",
			"function", "onConnectFailure",
			"policy", string(s.cfg.connectFailurePolicy),
			"error", err)
		s.err = fmt.Errorf("connect failed: %w", err)
		return false
	}

	s.logger.Warn("Connect failed, retrying",
		"function", "onConnectFailure",
		"policy", string(s.cfg.connectFailurePolicy),
		"interval", s.cfg.credentialRetryInterval,
		"error", err)
	select {
	case <-s.after(s.cfg.credentialRetryInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *supervisor) after(d time.Duration) <-chan time.Time {
	if s.cfg.retryTimer != nil {
		return s.cfg.retryTimer.After(d)
	}
	return time.After(d)
}

// serve drives one connection through Recovering and Active.
// terminate is false when the connection should be replaced.
func (s *supervisor) serve(ctx context.Context, conn riot.Conn) (terminate bool, err error) {
	frames := make(chan inboundFrame, 100)
	stop := make(chan struct{})
	defer close(stop)
	go readFrames(conn, frames, stop)

	s.setState(stateRecovering)
	if terminate, err := s.recoverSubscriptions(ctx, conn, frames); terminate || err != nil {
		return terminate, err
	}

	s.setState(stateActive)
	for {
		select {
		case <-ctx.Done():
			return true, nil

		case frame := <-frames:
			if frame.Err != nil {
				return s.classifyReadError(frame.Err)
			}
			s.handleFrame(frame)

		case cmd, ok := <-s.commands:
			if !ok {
				s.logger.Info("All handles closed",
					"function", "serve")
				return true, nil
			}
			if err := s.handleCommand(conn, cmd); err != nil {
				return false, err
			}
		}
	}
}

// recoverSubscriptions replays a subscribe for every intended event and waits for all acks.
// Commands are not consumed until it returns.
func (s *supervisor) recoverSubscriptions(ctx context.Context, conn riot.Conn, frames <-chan inboundFrame) (bool, error) {
	events := s.subscriptions.Events()
	if len(events) > 0 {
		s.logger.Info("Recovering subscriptions",
			"function", "recoverSubscriptions",
			"events", len(events))
	}

	for _, event := range events {
		if err := s.send(conn, verbSubscribe, event, newConfirmation()); err != nil {
			return false, err
		}
	}

	for s.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return true, nil
		case frame := <-frames:
			if frame.Err != nil {
				return s.classifyReadError(frame.Err)
			}
			s.handleFrame(frame)
		}
	}

	for _, done := range s.carried {
		resolve(done)
	}
	if len(s.carried) > 0 {
		s.logger.Debug("Resolved carried confirmations",
			"function", "recoverSubscriptions",
			"count", len(s.carried))
	}
	s.carried = nil
	return false, nil
}

// classifyReadError ends the supervisor on a normal close and asks for a reconnect otherwise
func (s *supervisor) classifyReadError(err error) (bool, error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.logger.Info("Server closed the connection normally",
			"function", "classifyReadError")
		return true, nil
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.logger.Warn("Unexpected close",
			"function", "classifyReadError",
			"code", closeErr.Code,
			"text", closeErr.Text)
	} else {
		s.logger.Warn("Read error",
			"function", "classifyReadError",
			"error", err,
			"error_type", fmt.Sprintf("%T", err))
	}
	return false, fmt.Errorf("%w: %w", errConnectionLost, err)
}

func (s *supervisor) handleCommand(conn riot.Conn, cmd command) error {
	switch cmd.kind {
	case commandSubscribe:
		// the set is updated at send time so a reconnect before the ack still recovers it
		s.subscriptions.Add(cmd.event)
		s.metrics.subscriptions.Set(float64(s.subscriptions.Len()))
		return s.send(conn, verbSubscribe, cmd.event, cmd.done)

	case commandUnsubscribe:
		s.subscriptions.Remove(cmd.event)
		s.metrics.subscriptions.Set(float64(s.subscriptions.Len()))
		return s.send(conn, verbUnsubscribe, cmd.event, cmd.done)

	case commandSnapshot:
		select {
		case cmd.snapshot <- s.subscriptions.Events():
		default:
		}
		return nil

	default:
		s.logger.Error("Unknown command",
			"function", "handleCommand",
			"kind", cmd.kind.String())
		return nil
	}
}

// send queues done and writes the request. The push happens before the write
// so an ack can never arrive ahead of its confirmation.
func (s *supervisor) send(conn riot.Conn, verb wireVerb, event riot.Event, done chan struct{}) error {
	s.queue.Push(done)
	s.metrics.pendingConfirmations.Set(float64(s.queue.Len()))

	if d, ok := conn.(writeDeadliner); ok && s.cfg.writeTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout)); err != nil {
			s.logger.Warn("Failed to set write deadline",
				"function", "send",
				"error", err)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, encodeRequest(verb, event)); err != nil {
		s.logger.Warn("Write failed",
			"function", "send",
			"verb", verb.String(),
			"event", event.String(),
			"error", err)
		return fmt.Errorf("%w: write %s request: %w", errConnectionLost, verb, err)
	}

	s.metrics.requestsSent.WithLabelValues(verb.String()).Inc()
	s.logger.Debug("Request sent",
		"function", "send",
		"verb", verb.String(),
		"event", event.String(),
		"pending", s.queue.Len())
	return nil
}

// loseConnection closes conn and moves unacknowledged confirmations to the carried list
func (s *supervisor) loseConnection(conn riot.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Debug("Error closing connection",
			"function", "loseConnection",
			"error", err)
	}
	s.metrics.connected.Set(0)
	s.carried = append(s.carried, s.queue.Drain()...)
	s.metrics.pendingConfirmations.Set(0)
}

func (s *supervisor) setState(state supervisorState) {
	if s.state == state {
		return
	}
	s.logger.Info("Supervisor state changed",
		"function", "setState",
		"from", string(s.state),
		"to", string(state))
	s.state = state
}

// readFrames is the per-connection reader goroutine. It only reads; the
// supervisor decides what each frame or error means.
func readFrames(conn riot.Conn, frames chan<- inboundFrame, stop <-chan struct{}) {
	for {
		messageType, data, err := conn.ReadMessage()
		frame := inboundFrame{
			MessageType: messageType,
			ReceivedAt:  time.Now(),
			Err:         err,
		}
		if err == nil {
			frame.Data = append([]byte(nil), data...)
		}

		select {
		case frames <- frame:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
