package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_SetParticipantsReplacesRoster(t *testing.T) {
	s := NewStatic()
	assert.Empty(t, s.Participants("voice-1"))

	s.SetParticipants("voice-1", []string{"Alice", "Bob"})
	assert.Equal(t, []string{"Alice", "Bob"}, s.Participants("voice-1"))

	s.SetParticipants("voice-1", []string{"Carol"})
	assert.Equal(t, []string{"Carol"}, s.Participants("voice-1"))
}

func TestStatic_ParticipantsReturnsDefensiveCopy(t *testing.T) {
	s := NewStatic()
	s.SetParticipants("voice-1", []string{"Alice"})
	got := s.Participants("voice-1")
	got[0] = "Mutated"
	assert.Equal(t, []string{"Alice"}, s.Participants("voice-1"))
}

var upgrader = websocket.Upgrader{}

func TestWebsocketSubsystem_UpdatesRosterFromMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		err = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel_id":"voice-1","participants":["Alice","Bob"]}`))
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := DialWebsocketSubsystem(ctx, wsURL, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		return len(sub.Participants("voice-1")) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Alice", "Bob"}, sub.Participants("voice-1"))
}
