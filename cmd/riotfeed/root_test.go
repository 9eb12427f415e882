package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	riot "github.com/bjoelf/riot-adapter/adapter"
	"github.com/bjoelf/riot-adapter/adapter/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Flags(t *testing.T) {
	require.NoError(t, rootCmd.PersistentFlags().Parse([]string{
		"--lockfile-path", "/tmp/riot/lockfile",
		"--feed-buffer", "64",
		"--events", "OnJsonApiEvent_chat_v4_presences,OnJsonApiEvent_chat_v4_friends",
		"--connect-failure-policy", "retry",
		"--credential-retry-interval", "250ms",
		"--log-level", "debug",
	}))

	cfg, events, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/riot/lockfile", cfg.LockfilePath)
	assert.Equal(t, riot.ConnectFailureRetry, cfg.ConnectFailurePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.CredentialRetryInterval)
	assert.Equal(t, 64, cfg.FeedBuffer)
	assert.Equal(t, []riot.Event{riot.EventPresences, riot.EventFriends}, events)
}

func TestLoadConfig_UnknownEvent(t *testing.T) {
	viper.Set("events", []string{"OnJsonApiEvent_nope"})
	defer viper.Set("events", []string{riot.EventPresences.String()})

	_, _, err := loadConfig()
	assert.ErrorIs(t, err, riot.ErrUnknownEvent)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("RIOT_COMMAND_BUFFER", "3")
	t.Setenv("RIOT_HANDSHAKE_TIMEOUT", "2s")
	t.Setenv("RIOT_WRITE_TIMEOUT", "750ms")
	t.Setenv("RIOT_HOST", "localhost")

	cfg, _, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CommandBuffer)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, "localhost", cfg.Host)
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("RIOT_FEED_BUFFER", "0")

	_, _, err := loadConfig()
	assert.ErrorContains(t, err, "RIOT_FEED_BUFFER")
}

func TestLoadConfig_NonPositiveOverride(t *testing.T) {
	viper.Set("write-timeout", "0s")
	defer viper.Set("write-timeout", riot.DefaultWriteTimeout.String())

	_, _, err := loadConfig()
	assert.ErrorContains(t, err, "write-timeout")
}

func TestRunning_TerminatedClientIsReplaced(t *testing.T) {
	assert.False(t, running(nil))

	supplier := func() (*riot.Credentials, bool) {
		return &riot.Credentials{Port: 1, Password: "secret", Protocol: riot.ProtocolSecure}, true
	}
	client := websocket.NewRiotWebSocketClient(supplier, slog.New(slog.NewTextHandler(io.Discard, nil)),
		websocket.WithConnector(riot.ConnectorFunc(func(ctx context.Context, creds riot.Credentials) (riot.Conn, error) {
			return nil, errors.New("connection refused")
		})))
	defer client.Close()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not terminate after a fatal connect failure")
	}
	assert.False(t, running(client))
	assert.Error(t, client.Err())
}
