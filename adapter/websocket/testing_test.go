package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testCreds = riot.Credentials{Port: 54846, Password: "secret", Protocol: riot.ProtocolSecure}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedSupplier always has credentials
func fixedSupplier() riot.CredentialSupplier {
	return func() (*riot.Credentials, bool) {
		creds := testCreds
		return &creds, true
	}
}

type fakeRead struct {
	messageType int
	data        []byte
	err         error
}

// fakeConn is an in-memory riot.Conn driven by the test
type fakeConn struct {
	reads   chan fakeRead
	written chan string

	mu       sync.Mutex
	writes   []string
	writeErr error
	autoAck  bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:   make(chan fakeRead, 100),
		written: make(chan string, 100),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		return r.messageType, r.data, r.err
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.writes = append(c.writes, string(data))
	autoAck := c.autoAck
	c.mu.Unlock()

	c.written <- string(data)
	if autoAck {
		c.ack()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) ack() {
	c.reads <- fakeRead{messageType: websocket.TextMessage, data: []byte{}}
}

func (c *fakeConn) push(text string) {
	c.reads <- fakeRead{messageType: websocket.TextMessage, data: []byte(text)}
}

// drop simulates an abrupt connection loss
func (c *fakeConn) drop() {
	c.reads <- fakeRead{err: io.ErrUnexpectedEOF}
}

func (c *fakeConn) closeNormally() {
	c.reads <- fakeRead{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func (c *fakeConn) setAutoAck(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoAck = enabled
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// expectWrite waits for the next written frame
func (c *fakeConn) expectWrite(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-c.written:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a request frame")
		return ""
	}
}

func (c *fakeConn) expectNoWrite(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-c.written:
		t.Fatalf("unexpected request frame %q", frame)
	case <-time.After(wait):
	}
}

// fakeConnector hands out queued conns in order and records the credentials used
type fakeConnector struct {
	conns chan *fakeConn

	mu    sync.Mutex
	creds []riot.Credentials
	errs  []error
}

func newFakeConnector(conns ...*fakeConn) *fakeConnector {
	f := &fakeConnector{conns: make(chan *fakeConn, 10)}
	for _, c := range conns {
		f.conns <- c
	}
	return f
}

// failNext makes the next len(errs) connects fail
func (f *fakeConnector) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeConnector) Connect(ctx context.Context, creds riot.Credentials) (riot.Conn, error) {
	f.mu.Lock()
	f.creds = append(f.creds, creds)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	select {
	case c := <-f.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConnector) Attempts() []riot.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]riot.Credentials(nil), f.creds...)
}

// fakeTimer fires immediately and records every requested delay
type fakeTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (ft *fakeTimer) After(d time.Duration) <-chan time.Time {
	ft.mu.Lock()
	ft.delays = append(ft.delays, d)
	ft.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (ft *fakeTimer) Delays() []time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]time.Duration(nil), ft.delays...)
}

// newTestClient starts a client on the fake connector and closes it with the test
func newTestClient(t *testing.T, connector riot.Connector, opts ...Option) *RiotWebSocketClient {
	t.Helper()
	opts = append([]Option{
		WithConnector(connector),
		WithRetryTimer(&fakeTimer{}),
	}, opts...)
	client := NewRiotWebSocketClient(fixedSupplier(), testLogger(), opts...)
	t.Cleanup(func() { client.Close() })
	return client
}

// subscribeAsync runs Subscribe in the background and returns its result channel
func subscribeAsync(client *RiotWebSocketClient, event riot.Event) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- client.Subscribe(context.Background(), event)
	}()
	return result
}

func unsubscribeAsync(client *RiotWebSocketClient, event riot.Event) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- client.Unsubscribe(context.Background(), event)
	}()
	return result
}

func requireResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for the request to complete")
		return nil
	}
}

func requirePending(t *testing.T, result <-chan error) {
	t.Helper()
	select {
	case err := <-result:
		require.FailNow(t, "request completed too early", "err: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireDone(t *testing.T, client *RiotWebSocketClient) {
	t.Helper()
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "supervisor did not terminate")
	}
}

func subscriptions(t *testing.T, client *RiotWebSocketClient) []riot.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := client.Subscriptions(ctx)
	require.NoError(t, err)
	return events
}
