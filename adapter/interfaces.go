package riot

import (
	"context"
)

// ============================================================================
// INTERFACES - contracts between the resilient client and its collaborators
// ============================================================================
// The client only needs two capabilities from the outside world:
// - a CredentialSupplier that is polled until the producer has written its lockfile
// - a Connector that opens the authenticated socket (TLS validation skipped)
// Everything else (payload interpretation, presentation) consumes EventClient.
// ============================================================================

// CredentialSupplier yields connection parameters, or false while they are not available yet.
// It is polled and must not block.
type CredentialSupplier func() (*Credentials, bool)

// Conn is a duplex message stream. *websocket.Conn from gorilla satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connector opens a Conn for the given credentials
type Connector interface {
	Connect(ctx context.Context, creds Credentials) (Conn, error)
}

// ConnectorFunc adapts a function to Connector
type ConnectorFunc func(ctx context.Context, creds Credentials) (Conn, error)

// Connect calls f
func (f ConnectorFunc) Connect(ctx context.Context, creds Credentials) (Conn, error) {
	return f(ctx, creds)
}

// EventClient is the caller-facing subscribe/unsubscribe contract
type EventClient interface {
	Subscribe(ctx context.Context, event Event) error
	Unsubscribe(ctx context.Context, event Event) error
	Feed() <-chan FeedMessage
	Close() error
}

// SessionClient reads the chat session from the local REST API
type SessionClient interface {
	GetSession(ctx context.Context) (*Session, error)
}
