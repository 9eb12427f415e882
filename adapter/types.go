package riot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownEvent is returned when a wire name is not part of the Event enumeration
var ErrUnknownEvent = errors.New("unknown event")

// Protocol tells whether the local endpoint speaks TLS
type Protocol int

const (
	ProtocolInsecure Protocol = iota // http lockfile entry, ws:// socket
	ProtocolSecure                   // https lockfile entry, wss:// socket
)

// WebSocketScheme returns the socket URL scheme for the protocol
func (p Protocol) WebSocketScheme() string {
	if p == ProtocolSecure {
		return "wss"
	}
	return "ws"
}

// HTTPScheme returns the REST URL scheme for the protocol
func (p Protocol) HTTPScheme() string {
	if p == ProtocolSecure {
		return "https"
	}
	return "http"
}

func (p Protocol) String() string {
	return p.HTTPScheme()
}

// Credentials are the connection parameters of the local Riot endpoint.
// One value is consumed per connection attempt and never modified.
type Credentials struct {
	Port     uint16
	Password string
	Protocol Protocol
}

// Address returns host:port for the given host
func (c Credentials) Address(host string) string {
	return host + ":" + strconv.Itoa(int(c.Port))
}

// Event names a feed topic the client can subscribe to.
// The set of events is closed; String returns the wire name.
type Event int

const (
	EventPresences Event = iota
	EventFriends
	EventChatSession
)

var eventWireNames = map[Event]string{
	EventPresences:   "OnJsonApiEvent_chat_v4_presences",
	EventFriends:     "OnJsonApiEvent_chat_v4_friends",
	EventChatSession: "OnJsonApiEvent_chat_v1_session",
}

// Events lists every known event in declaration order
func Events() []Event {
	return []Event{EventPresences, EventFriends, EventChatSession}
}

func (e Event) String() string {
	if name, ok := eventWireNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Valid reports whether e is a member of the enumeration
func (e Event) Valid() bool {
	_, ok := eventWireNames[e]
	return ok
}

// ParseEvent maps a wire name back to its Event
func ParseEvent(name string) (Event, error) {
	for event, wireName := range eventWireNames {
		if wireName == name {
			return event, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// FeedMessage is a server push for a subscribed event: [opcode, "<event-name>", payload].
// The payload is kept raw; interpreting it is up to the consumer.
type FeedMessage struct {
	Opcode  int
	Event   string
	Payload json.RawMessage
}

// ProcessState reports whether the producer process is running
type ProcessState int

const (
	ProcessStarted ProcessState = iota
	ProcessStopped
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStarted:
		return "started"
	case ProcessStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ProcessEvent is emitted by LockfileWatcher when the lockfile appears or disappears
type ProcessEvent struct {
	State ProcessState
	Path  string
}

// Session is the response of GET /chat/v1/session on the local API
type Session struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"game_name"`
	GameTag  string `json:"game_tag"`
	State    string `json:"state"`
	Loaded   bool   `json:"loaded"`
}
