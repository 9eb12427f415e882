package websocket

import (
	"testing"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		verb  wireVerb
		event riot.Event
		want  string
	}{
		{verbSubscribe, riot.EventPresences, `[5, "OnJsonApiEvent_chat_v4_presences"]`},
		{verbUnsubscribe, riot.EventPresences, `[6, "OnJsonApiEvent_chat_v4_presences"]`},
		{verbSubscribe, riot.EventFriends, `[5, "OnJsonApiEvent_chat_v4_friends"]`},
		{verbSubscribe, riot.EventChatSession, `[5, "OnJsonApiEvent_chat_v1_session"]`},
	}
	for _, tt := range tests {
		t.Run(tt.verb.String()+"/"+tt.event.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, string(encodeRequest(tt.verb, tt.event)))
		})
	}
}

func TestIsAcknowledgment(t *testing.T) {
	assert.True(t, isAcknowledgment(nil))
	assert.True(t, isAcknowledgment([]byte{}))
	assert.False(t, isAcknowledgment([]byte(" ")))
	assert.False(t, isAcknowledgment([]byte(`[8,"x",{}]`)))
}

func TestParseFeedMessage(t *testing.T) {
	msg, err := parseFeedMessage([]byte(`[8,"OnJsonApiEvent_chat_v4_presences",{"uri":"/chat/v4/presences"}]`))
	require.NoError(t, err)
	assert.Equal(t, 8, msg.Opcode)
	assert.Equal(t, "OnJsonApiEvent_chat_v4_presences", msg.Event)
	assert.JSONEq(t, `{"uri":"/chat/v4/presences"}`, string(msg.Payload))

	msg, err = parseFeedMessage([]byte(`[8,"OnJsonApiEvent_chat_v4_friends"]`))
	require.NoError(t, err)
	assert.Nil(t, msg.Payload)
}

func TestParseFeedMessage_Invalid(t *testing.T) {
	for _, input := range []string{
		`not json`,
		`{"a":1}`,
		`[8]`,
		`["eight","x"]`,
		`[8,9]`,
	} {
		t.Run(input, func(t *testing.T) {
			_, err := parseFeedMessage([]byte(input))
			assert.Error(t, err)
		})
	}
}
