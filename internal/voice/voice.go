// Package voice implements the external voice-participant collaborator
// consulted by the Notification Coordinator's mention composition (spec
// §4.5): "If voice-participant-mentions are enabled and the external voice
// subsystem reports non-empty participants, compose a per-participant
// mention string."
//
// Grounded on the teacher's use of github.com/gorilla/websocket for
// long-lived duplex connections to upstream services: WebsocketSubsystem
// holds one persistent socket to a voice-state gateway and maintains a live
// roster keyed by channel ID.
package voice

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guarzo/wanderer-notifier/internal/logging"
)

// Subsystem reports which participant names are currently present in a
// voice channel. Construction-time wiring: the Coordinator holds a
// Subsystem interface value, never a concrete type.
type Subsystem interface {
	Participants(channelID string) []string
}

// Static is a fixed-roster Subsystem, useful for tests and for deployments
// with no voice integration (FallbackToHere governs behavior in that case).
type Static struct {
	mu     sync.RWMutex
	rosters map[string][]string
}

// NewStatic creates an empty Static subsystem.
func NewStatic() *Static {
	return &Static{rosters: make(map[string][]string)}
}

// SetParticipants replaces the roster for channelID.
func (s *Static) SetParticipants(channelID string, participants []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[channelID] = append([]string(nil), participants...)
}

func (s *Static) Participants(channelID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rosters[channelID]...)
}

// rosterUpdate is the wire shape pushed by the voice-state gateway.
type rosterUpdate struct {
	ChannelID    string   `json:"channel_id"`
	Participants []string `json:"participants"`
}

// WebsocketSubsystem maintains a live roster by reading roster updates off
// a persistent websocket connection to a voice-state gateway.
type WebsocketSubsystem struct {
	mu      sync.RWMutex
	rosters map[string][]string
	logger  *logging.Logger

	conn   *websocket.Conn
	cancel context.CancelFunc
}

// DialWebsocketSubsystem connects to url and starts reading roster updates
// in the background until ctx is canceled.
func DialWebsocketSubsystem(ctx context.Context, url string, logger *logging.Logger) (*WebsocketSubsystem, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	w := &WebsocketSubsystem{
		rosters: make(map[string][]string),
		logger:  logger,
		conn:    conn,
		cancel:  cancel,
	}
	go w.readLoop(runCtx)
	return w, nil
}

func (w *WebsocketSubsystem) readLoop(ctx context.Context) {
	defer w.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.logger != nil {
				w.logger.WithError(err).Warn("voice subsystem connection closed")
			}
			return
		}
		var update rosterUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			continue
		}
		w.mu.Lock()
		w.rosters[update.ChannelID] = update.Participants
		w.mu.Unlock()
	}
}

// Participants returns the last-known roster for channelID, or nil.
func (w *WebsocketSubsystem) Participants(channelID string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.rosters[channelID]...)
}

// Close terminates the background read loop and the underlying connection.
func (w *WebsocketSubsystem) Close() error {
	w.cancel()
	return w.conn.Close()
}
