package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/gorilla/websocket"
)

// Dialer opens the authenticated socket to the local Riot endpoint.
// It implements riot.Connector; certificate validation is skipped because the
// endpoint serves a self-signed certificate.
type Dialer struct {
	Host             string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// NewDialer creates a Dialer from configuration
func NewDialer(cfg riot.Config, logger *slog.Logger) *Dialer {
	return &Dialer{
		Host:             cfg.Host,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           logger,
	}
}

// Connect dials ws:// or wss:// depending on the credentials and basic-authenticates as riot
func (d *Dialer) Connect(ctx context.Context, creds riot.Credentials) (riot.Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := d.buildWebSocketURL(creds)
	headers, err := riot.AuthorizationHeader(creds)
	if err != nil {
		return nil, err
	}

	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = riot.DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		TLSClientConfig:  riot.InsecureTLSConfig(),
	}

	logger.Debug("Dialing WebSocket",
		"function", "Connect",
		"url", wsURL)

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			logger.Error("WebSocket handshake failed",
				"function", "Connect",
				"url", wsURL,
				"status", resp.StatusCode)
			return nil, fmt.Errorf("failed to establish WebSocket connection (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
	}

	// the feed can be silent for a long time; no read deadline
	conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(64 << 20)

	logger.Info("WebSocket connection established",
		"function", "Connect",
		"local_address", conn.LocalAddr().String(),
		"remote_address", conn.RemoteAddr().String())
	return conn, nil
}

// buildWebSocketURL returns {ws|wss}://host:port
func (d *Dialer) buildWebSocketURL(creds riot.Credentials) string {
	host := d.Host
	if host == "" {
		host = riot.DefaultHost
	}
	u := url.URL{
		Scheme: creds.Protocol.WebSocketScheme(),
		Host:   creds.Address(host),
	}
	return u.String()
}
