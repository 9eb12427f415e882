package websocket

import (
	"github.com/gorilla/websocket"
)

// handleFrame dispatches one inbound frame. Empty text frames are acknowledgments;
// [8,"<event>",payload] pushes go to the feed; anything else is logged and ignored.
func (s *supervisor) handleFrame(frame inboundFrame) {
	if frame.MessageType != websocket.TextMessage {
		s.logger.Warn("Ignoring non-text frame",
			"function", "handleFrame",
			"message_type", frame.MessageType,
			"size", len(frame.Data))
		return
	}

	if isAcknowledgment(frame.Data) {
		done, ok := s.queue.Pop()
		s.metrics.pendingConfirmations.Set(float64(s.queue.Len()))
		if !ok {
			// the server acknowledged something this connection never asked for
			s.metrics.unmatchedAcks.Inc()
			s.logger.Warn("Acknowledgment without pending request",
				"function", "handleFrame")
			return
		}
		s.metrics.acknowledgments.Inc()
		resolve(done)
		s.logger.Debug("Acknowledgment received",
			"function", "handleFrame",
			"pending", s.queue.Len())
		return
	}

	msg, err := parseFeedMessage(frame.Data)
	if err != nil {
		s.logger.Debug("Ignoring unparseable frame",
			"function", "handleFrame",
			"size", len(frame.Data),
			"error", err)
		return
	}
	if msg.Opcode != verbEvent {
		s.logger.Debug("Ignoring frame",
			"function", "handleFrame",
			"opcode", msg.Opcode,
			"event", msg.Event)
		return
	}

	select {
	case s.feed <- *msg:
	default:
		s.metrics.feedDropped.Inc()
		s.logger.Warn("Feed channel full, dropping message",
			"function", "handleFrame",
			"event", msg.Event,
			"queue_length", len(s.feed))
	}
}
