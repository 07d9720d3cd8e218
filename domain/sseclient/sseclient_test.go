package sseclient

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/wanderer-notifier/internal/backoff"
)

func TestParser_AssemblesFrameAcrossTwoChunks(t *testing.T) {
	// S3: two TCP chunks split mid-frame.
	chunkA := "event: add_system\ndata: {\"id\":\"abc\",\"type\":\"add_system\",\"map_id\":\"M\",\"timestamp\":\"2024-01-01T00:00:00Z\",\"payload\":{\"solar_system_id\":30000142}}\n"
	chunkB := "\nid: abc\n\n"

	p := &Parser{}
	var events []Event
	for _, chunk := range []string{chunkA, chunkB} {
		for _, f := range p.Feed([]byte(chunk)) {
			if ev, ok := BuildEvent(f); ok {
				events = append(events, ev)
			}
		}
	}

	require.Len(t, events, 1)
	assert.Equal(t, "abc", events[0].ID)
	assert.Equal(t, "add_system", events[0].Type)
	assert.Equal(t, "M", events[0].MapID)
}

func TestParser_RepeatedDataLinesJoinedWithNewline(t *testing.T) {
	block := "event: add_system\ndata: {\"id\":\"x1\",\"type\":\"add_system\",\n" +
		"data: \"map_id\":\"M\",\"timestamp\":\"2024-01-01T00:00:00Z\",\"payload\":{}}\n\n"

	p := &Parser{}
	frames := p.Feed([]byte(block))
	require.Len(t, frames, 1)
	assert.True(t, strings.Contains(frames[0].Data, "\n"))

	ev, ok := BuildEvent(frames[0])
	require.True(t, ok)
	assert.Equal(t, "x1", ev.ID)
}

func TestBuildEvent_DropsFrameMissingRequiredFields(t *testing.T) {
	f := Frame{EventType: "add_system", Data: `{"id":"x","type":"add_system"}`}
	_, ok := BuildEvent(f)
	assert.False(t, ok, "frame missing map_id must be dropped")
}

func TestBuildEvent_ConnectedRequiresServerTime(t *testing.T) {
	f := Frame{Data: `{"id":"c1","type":"connected","map_id":"M"}`}
	_, ok := BuildEvent(f)
	assert.False(t, ok)

	f2 := Frame{Data: `{"id":"c1","type":"connected","map_id":"M","server_time":"2024-01-01T00:00:00Z"}`}
	ev, ok := BuildEvent(f2)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01T00:00:00Z", ev.ServerTime)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Accept(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// TestReconnect_BackfillUsesLastEventID is S4: after a transport error
// following a connected stream with last_event_id="e42", the next request
// must carry last_event_id=e42 in its query string.
func TestReconnect_BackfillUsesLastEventID(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	attempt := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		n := attempt
		attempt++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		if n == 0 {
			fmt.Fprintf(w, "event: add_system\ndata: {\"id\":\"e42\",\"type\":\"add_system\",\"map_id\":\"M\",\"timestamp\":\"2024-01-01T00:00:00Z\",\"payload\":{}}\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			// Simulate a transport error: close the connection abruptly.
			return
		}
		// Second attempt: block until the test is done (we only assert the
		// query string, not a full second event).
		<-r.Context().Done()
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := New(Config{
		BaseURL: server.URL,
		Slug:    "test-map",
		APIKey:  "token",
		Sink:    sink,
		BackoffConfig: backoff.Config{
			Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond,
			JitterMin: 1.0, JitterMax: 1.0,
		},
		Rand: rand.New(rand.NewSource(1)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queries) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return sink.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	secondQuery := queries[1]
	mu.Unlock()

	values, err := url.ParseQuery(secondQuery)
	require.NoError(t, err)
	assert.Equal(t, "e42", values.Get("last_event_id"))
}

// TestReconnect_ClosesLiveStreamAndConnectsImmediately asserts the manual
// reconnect path of spec §4.2: calling Reconnect() while the client is
// already connected must cancel the in-flight request's context (not just
// queue a signal consumed only after some future failure) and establish a
// new connection without waiting out the backoff timer.
func TestReconnect_ClosesLiveStreamAndConnectsImmediately(t *testing.T) {
	var mu sync.Mutex
	var connectCount int
	firstCtxDone := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n := connectCount
		connectCount++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		<-r.Context().Done()
		if n == 0 {
			close(firstCtxDone)
		}
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := New(Config{
		BaseURL: server.URL,
		Slug:    "test-map",
		APIKey:  "token",
		Sink:    sink,
		// A backoff large enough that, absent the fix, a second connection
		// would not occur within this test's timeout.
		BackoffConfig: backoff.Config{
			Base: time.Hour, Factor: 2, Cap: time.Hour,
			JitterMin: 1.0, JitterMax: 1.0,
		},
		Rand: rand.New(rand.NewSource(1)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	require.Eventually(t, func() bool {
		return client.Snapshot().Status == StatusConnected
	}, 2*time.Second, 5*time.Millisecond)

	client.Reconnect()

	select {
	case <-firstCtxDone:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first request's context to be canceled by Reconnect()")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connectCount >= 2
	}, 2*time.Second, 5*time.Millisecond, "expected a second connection attempt without waiting out the backoff timer")
}

func TestBackoff_BoundsMatchFormula(t *testing.T) {
	cfg := backoff.Default()
	for attempt := 0; attempt < 6; attempt++ {
		lo, hi := cfg.Bounds(attempt)
		rng := rand.New(rand.NewSource(int64(attempt)))
		for i := 0; i < 20; i++ {
			d := cfg.Delay(attempt, rng)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
}
