package mocktesting

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/gorilla/websocket"
)

// MockRiotServer mimics the local Riot Client endpoint: a WebSocket that accepts
// [5,"name"] / [6,"name"] requests and acknowledges each one with an empty text frame,
// plus the /chat/v1/session REST call. Both require Basic auth as riot:<password>.
type MockRiotServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	password string
	secure   bool

	mu          sync.Mutex
	clients     map[*mockClient]struct{}
	latest      *mockClient
	requests    []MockRequest
	connections int
	autoAck     bool
	reject      bool
	session     riot.Session
}

// MockRequest is one request frame received by the server
type MockRequest struct {
	Verb       int
	Event      string
	Connection int // 1-based index of the connection it arrived on
}

type mockClient struct {
	conn    *websocket.Conn
	index   int
	writeMu sync.Mutex
}

func (c *mockClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// NewMockRiotServer starts a server; secure selects https/wss with a self-signed certificate.
// Requests are acknowledged automatically until SetAutoAck(false).
func NewMockRiotServer(password string, secure bool) *MockRiotServer {
	mock := &MockRiotServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		password: password,
		secure:   secure,
		clients:  make(map[*mockClient]struct{}),
		autoAck:  true,
		session: riot.Session{
			PUUID:    "0f3c9d2e-6a41-4b7e-9d55-2c1f0a8e7b11",
			GameName: "Tester",
			GameTag:  "EUW",
			State:    "connected",
			Loaded:   true,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", mock.handleWebSocket)
	mux.HandleFunc("/chat/v1/session", mock.handleSession)

	if secure {
		mock.server = httptest.NewTLSServer(mux)
	} else {
		mock.server = httptest.NewServer(mux)
	}
	return mock
}

// Credentials returns what a lockfile for this server would contain
func (m *MockRiotServer) Credentials() riot.Credentials {
	u, _ := url.Parse(m.server.URL)
	_, portText, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.ParseUint(portText, 10, 16)

	protocol := riot.ProtocolInsecure
	if m.secure {
		protocol = riot.ProtocolSecure
	}
	return riot.Credentials{
		Port:     uint16(port),
		Password: m.password,
		Protocol: protocol,
	}
}

// Lockfile renders the lockfile text pointing at this server
func (m *MockRiotServer) Lockfile() string {
	creds := m.Credentials()
	return fmt.Sprintf("Riot Client:4242:%d:%s:%s", creds.Port, creds.Password, creds.Protocol.HTTPScheme())
}

// SetAutoAck switches automatic acknowledgments on or off
func (m *MockRiotServer) SetAutoAck(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoAck = enabled
}

// SetRejectConnections makes the upgrade fail with 503 while enabled
func (m *MockRiotServer) SetRejectConnections(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = enabled
}

// SetSession replaces the session returned by /chat/v1/session
func (m *MockRiotServer) SetSession(session riot.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
}

// Ack sends one acknowledgment on the newest connection
func (m *MockRiotServer) Ack() error {
	m.mu.Lock()
	client := m.latest
	m.mu.Unlock()
	if client == nil {
		return fmt.Errorf("no client connected")
	}
	return client.write(websocket.TextMessage, []byte{})
}

// SendEvent pushes [8,"event",payload] to every connected client
func (m *MockRiotServer) SendEvent(event string, payload interface{}) error {
	frame, err := json.Marshal([]interface{}{8, event, payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return m.broadcast(websocket.TextMessage, frame)
}

// DropConnections closes every socket without a close frame
func (m *MockRiotServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.conn.UnderlyingConn().Close()
	}
}

// CloseNormally sends a normal-closure close frame to every client
func (m *MockRiotServer) CloseNormally() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
	return m.broadcast(websocket.CloseMessage, msg)
}

// Requests returns every request received so far, in arrival order
func (m *MockRiotServer) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// RequestsOn returns the requests received on the given 1-based connection
func (m *MockRiotServer) RequestsOn(connection int) []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockRequest
	for _, r := range m.requests {
		if r.Connection == connection {
			result = append(result, r)
		}
	}
	return result
}

// Connections returns how many WebSocket connections were accepted
func (m *MockRiotServer) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}

// WaitForRequests polls until at least n requests arrived or timeout passes
func (m *MockRiotServer) WaitForRequests(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.Requests()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(m.Requests()) >= n
}

// WaitForConnections polls until at least n connections were accepted or timeout passes
func (m *MockRiotServer) WaitForConnections(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Connections() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.Connections() >= n
}

// Close shuts down the mock server
func (m *MockRiotServer) Close() {
	m.mu.Lock()
	for client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[*mockClient]struct{})
	m.mu.Unlock()
	m.server.Close()
}

func (m *MockRiotServer) authorized(r *http.Request) bool {
	user, password, ok := r.BasicAuth()
	return ok && user == riot.Username && password == m.password
}

func (m *MockRiotServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		http.Error(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}
	m.mu.Lock()
	reject := m.reject
	m.mu.Unlock()
	if reject {
		http.Error(w, "Riot Client is starting", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	m.mu.Lock()
	m.connections++
	client := &mockClient{conn: conn, index: m.connections}
	m.clients[client] = struct{}{}
	m.latest = client
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.clients, client)
		if m.latest == client {
			m.latest = nil
		}
		m.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		request, err := parseRequest(data)
		if err != nil {
			continue
		}
		request.Connection = client.index

		m.mu.Lock()
		m.requests = append(m.requests, request)
		autoAck := m.autoAck
		m.mu.Unlock()

		if autoAck {
			if err := client.write(websocket.TextMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (m *MockRiotServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !m.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (m *MockRiotServer) broadcast(messageType int, data []byte) error {
	m.mu.Lock()
	clients := make([]*mockClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.Unlock()

	for _, client := range clients {
		if err := client.write(messageType, data); err != nil {
			return fmt.Errorf("failed to send test message: %w", err)
		}
	}
	return nil
}

// parseRequest decodes [verb, "event-name"]
func parseRequest(data []byte) (MockRequest, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return MockRequest{}, err
	}
	if len(parts) != 2 {
		return MockRequest{}, fmt.Errorf("request has %d elements", len(parts))
	}
	var request MockRequest
	if err := json.Unmarshal(parts[0], &request.Verb); err != nil {
		return MockRequest{}, err
	}
	if err := json.Unmarshal(parts[1], &request.Event); err != nil {
		return MockRequest{}, err
	}
	return request, nil
}
