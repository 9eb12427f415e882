package websocket

import (
	"testing"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(opts ...Option) *supervisor {
	cfg := defaultClientConfig()
	cfg.logger = testLogger()
	cfg.connector = newFakeConnector()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newSupervisor(cfg, fixedSupplier(), nil, newClientMetrics())
}

func ackFrame() inboundFrame {
	return inboundFrame{MessageType: websocket.TextMessage, Data: []byte{}}
}

func isResolved(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// N requests sent before any ack: the i-th ack resolves exactly the i-th request
func TestHandleFrame_AcksResolveInSendOrder(t *testing.T) {
	s := newTestSupervisor()
	conn := newFakeConn()

	events := []riot.Event{riot.EventPresences, riot.EventFriends, riot.EventPresences, riot.EventChatSession, riot.EventFriends}
	var pending []chan struct{}
	for i, event := range events {
		cmd := command{kind: commandSubscribe, event: event, done: newConfirmation()}
		if i%2 == 1 {
			cmd.kind = commandUnsubscribe
		}
		require.NoError(t, s.handleCommand(conn, cmd))
		pending = append(pending, cmd.done)
	}
	assert.Equal(t, len(events), s.queue.Len())
	assert.Equal(t, float64(len(events)), testutil.ToFloat64(s.metrics.pendingConfirmations))

	for i := range pending {
		s.handleFrame(ackFrame())
		for j, done := range pending {
			if j == i {
				assert.True(t, isResolved(done), "ack %d did not resolve request %d", i, j)
			} else if j > i {
				assert.False(t, isResolved(done), "ack %d resolved later request %d", i, j)
			}
		}
	}
	assert.Equal(t, float64(len(events)), testutil.ToFloat64(s.metrics.acknowledgments))
	assert.Zero(t, testutil.ToFloat64(s.metrics.pendingConfirmations))
}

func TestHandleCommand_OptimisticSetUpdate(t *testing.T) {
	s := newTestSupervisor()
	conn := newFakeConn()

	require.NoError(t, s.handleCommand(conn, command{kind: commandSubscribe, event: riot.EventPresences, done: newConfirmation()}))
	assert.True(t, s.subscriptions.Contains(riot.EventPresences), "set must change before the ack")
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.subscriptions))

	require.NoError(t, s.handleCommand(conn, command{kind: commandUnsubscribe, event: riot.EventPresences, done: newConfirmation()}))
	assert.False(t, s.subscriptions.Contains(riot.EventPresences))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.requestsSent.WithLabelValues("unsubscribe")))
}

func TestHandleCommand_Snapshot(t *testing.T) {
	s := newTestSupervisor()
	s.subscriptions.Add(riot.EventFriends)

	cmd := command{kind: commandSnapshot, snapshot: make(chan []riot.Event, 1)}
	require.NoError(t, s.handleCommand(newFakeConn(), cmd))
	assert.Equal(t, []riot.Event{riot.EventFriends}, <-cmd.snapshot)
}

func TestHandleFrame_UnmatchedAcknowledgment(t *testing.T) {
	s := newTestSupervisor()

	s.handleFrame(ackFrame())
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.unmatchedAcks))
	assert.Zero(t, testutil.ToFloat64(s.metrics.acknowledgments))
}

func TestHandleFrame_FeedFullDropsMessage(t *testing.T) {
	s := newTestSupervisor(WithFeedBuffer(1))
	frame := inboundFrame{
		MessageType: websocket.TextMessage,
		Data:        []byte(`[8,"OnJsonApiEvent_chat_v4_friends",{}]`),
	}

	s.handleFrame(frame)
	s.handleFrame(frame)
	assert.Len(t, s.feed, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.feedDropped))
}

func TestHandleFrame_IgnoresOtherFrames(t *testing.T) {
	s := newTestSupervisor()
	pending := newConfirmation()
	s.queue.Push(pending)

	s.handleFrame(inboundFrame{MessageType: websocket.BinaryMessage, Data: []byte{}})
	s.handleFrame(inboundFrame{MessageType: websocket.TextMessage, Data: []byte(`garbage`)})
	s.handleFrame(inboundFrame{MessageType: websocket.TextMessage, Data: []byte(`[0,"welcome"]`)})

	assert.False(t, isResolved(pending))
	assert.Equal(t, 1, s.queue.Len())
	assert.Empty(t, s.feed)
}

func TestLoseConnection_CarriesPendingConfirmations(t *testing.T) {
	s := newTestSupervisor()
	conn := newFakeConn()

	cmd := command{kind: commandSubscribe, event: riot.EventPresences, done: newConfirmation()}
	require.NoError(t, s.handleCommand(conn, cmd))
	s.loseConnection(conn)

	assert.Zero(t, s.queue.Len())
	assert.Equal(t, []chan struct{}{cmd.done}, s.carried)
	assert.False(t, isResolved(cmd.done))
}
