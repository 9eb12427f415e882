package websocket

import (
	"encoding/json"
	"fmt"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

// parseFeedMessage parses a server push of the form [opcode, "<event-name>", payload]
func parseFeedMessage(data []byte) (*riot.FeedMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("feed message is not a JSON array: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("feed message too short: %d elements (minimum 2 required)", len(parts))
	}

	msg := &riot.FeedMessage{}
	if err := json.Unmarshal(parts[0], &msg.Opcode); err != nil {
		return nil, fmt.Errorf("invalid feed opcode: %w", err)
	}
	if err := json.Unmarshal(parts[1], &msg.Event); err != nil {
		return nil, fmt.Errorf("invalid feed event name: %w", err)
	}
	if len(parts) > 2 {
		msg.Payload = parts[2]
	}
	return msg, nil
}
