package websocket

import (
	"encoding/json"
	"fmt"

	riot "github.com/bjoelf/riot-adapter/adapter"
)

// encodeRequest builds the text frame of a subscribe/unsubscribe request: [5, "<event-name>"]
func encodeRequest(verb wireVerb, event riot.Event) []byte {
	name, _ := json.Marshal(event.String())
	return []byte(fmt.Sprintf("[%d, %s]", int(verb), name))
}

// isAcknowledgment reports whether a text payload is the empty acknowledgment frame
func isAcknowledgment(data []byte) bool {
	return len(data) == 0
}

// newConfirmation creates a one-shot completion signal
func newConfirmation() chan struct{} {
	return make(chan struct{}, 1)
}

// resolve completes a confirmation without ever blocking
func resolve(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case done <- struct{}{}:
	default:
	}
}
