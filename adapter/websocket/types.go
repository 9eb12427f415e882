package websocket

import (
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

// inboundFrame is one result of the per-connection reader goroutine.
// Exactly one of Data/Err is meaningful; Err ends the reader.
type inboundFrame struct {
	MessageType int       // WebSocket message type (Text, Binary)
	Data        []byte    // Message payload (copied, the reader reuses nothing)
	ReceivedAt  time.Time // Timestamp when message was received
	Err         error     // Read error that terminated the reader
}

// commandKind tags the variants of command
type commandKind int

const (
	commandSubscribe commandKind = iota
	commandUnsubscribe
	commandSnapshot
)

func (k commandKind) String() string {
	switch k {
	case commandSubscribe:
		return "subscribe"
	case commandUnsubscribe:
		return "unsubscribe"
	case commandSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// command is sent by a handle and consumed exactly once by the supervisor.
// done is the one-shot completion signal (capacity 1, never blocks the supervisor).
// snapshot is only set for commandSnapshot.
type command struct {
	kind     commandKind
	event    riot.Event
	done     chan struct{}
	snapshot chan []riot.Event
}

// wireVerb is the opcode of a request frame
type wireVerb int

const (
	verbSubscribe   wireVerb = 5
	verbUnsubscribe wireVerb = 6
	verbEvent       int      = 8
)

func (v wireVerb) String() string {
	switch v {
	case verbSubscribe:
		return "subscribe"
	case verbUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// supervisorState names the phases of the reconnect loop (used for logging)
type supervisorState string

const (
	stateAcquiringCredentials supervisorState = "AcquiringCredentials"
	stateConnecting           supervisorState = "Connecting"
	stateRecovering           supervisorState = "Recovering"
	stateActive               supervisorState = "Active"
	stateTerminated           supervisorState = "Terminated"
)
