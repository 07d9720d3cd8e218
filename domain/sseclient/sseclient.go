// Package sseclient implements the per-map SSE Client of spec §4.2: one
// long-lived streaming HTTP connection that frames SSE bytes into events,
// validates them, and forwards them to the Event Processor, reconnecting
// with exponential backoff on failure.
package sseclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guarzo/wanderer-notifier/internal/backoff"
	"github.com/guarzo/wanderer-notifier/internal/logging"
)

// Status is a ConnectionState variant.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// ConnectionState is owned exclusively by its SSE Client (spec §4: ownership
// summary).
type ConnectionState struct {
	Status            Status
	LastEventID       string
	ReconnectAttempts int
	EventsFilter      []string
	ConnectionID      string
}

// Sink is the Event Processor's handoff contract. Accept should block
// while the Processor's inbox is full so TCP backpressure on the upstream
// read propagates naturally (spec §5, backpressure) rather than dropping
// events; a non-nil error (e.g. context canceled) is treated as a
// frame-sink failure that triggers reconnect.
type Sink interface {
	Accept(ctx context.Context, ev Event) error
}

var defaultSubscribedEvents = []string{
	"add_system", "deleted_system", "system_metadata_changed",
	"character_added", "character_removed", "character_updated",
	"rally_point_added", "rally_point_removed",
}

// RecvIdleTimeout is the maximum time to wait for any bytes on an
// otherwise-healthy connection before treating it as dead (spec §5,
// suspension points: "recv timeout 60s for SSE").
const RecvIdleTimeout = 60 * time.Second

// ConnectTimeout bounds establishing the HTTP connection.
const ConnectTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL       string
	Slug          string
	APIKey        string
	EventsFilter  []string // nil uses the default subscribed event set
	HTTPClient    *http.Client
	Sink          Sink
	Logger        *logging.Logger
	BackoffConfig backoff.Config
	Rand          *rand.Rand
}

// Client is one map's long-lived SSE connection, run by a single goroutine
// that owns ConnectionState exclusively.
type Client struct {
	baseURL      string
	slug         string
	apiKey       string
	eventsFilter []string
	httpClient   *http.Client
	sink         Sink
	logger       *logging.Logger
	backoffCfg   backoff.Config
	rng          *rand.Rand

	mu           sync.Mutex
	state        ConnectionState
	activeCancel context.CancelFunc // cancels the in-flight stream, if any

	reconnectCh chan struct{} // buffered(1): manual reconnect request
	cancel      context.CancelFunc
	done        chan struct{}
}

// New constructs a Client. Call Start to begin connecting.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("sseclient").Named(cfg.Slug)
	}
	if cfg.BackoffConfig == (backoff.Config{}) {
		cfg.BackoffConfig = backoff.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	filter := cfg.EventsFilter
	if len(filter) == 0 {
		filter = defaultSubscribedEvents
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		slug:         cfg.Slug,
		apiKey:       cfg.APIKey,
		eventsFilter: filter,
		httpClient:   cfg.HTTPClient,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		backoffCfg:   cfg.BackoffConfig,
		rng:          cfg.Rand,
		state:        ConnectionState{Status: StatusDisconnected, EventsFilter: filter},
		reconnectCh:  make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Done returns a channel closed when the client's run loop has returned,
// whether from context cancellation or an unexpected internal failure. The
// Supervisor watches it to implement restart-on-unexpected-exit (spec
// §4.3).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns a copy of the current ConnectionState, safe for
// concurrent reads from the Supervisor's health introspection.
func (c *Client) Snapshot() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(mutate func(*ConnectionState)) {
	c.mu.Lock()
	mutate(&c.state)
	c.mu.Unlock()
}

// Start launches the client's run loop. It returns immediately; connection
// establishment happens asynchronously.
func (c *Client) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
}

// Stop closes the upstream stream handle and cancels any pending reconnect
// timer, on all termination paths (spec §4.2 cancellation).
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

// Reconnect cancels any pending timer, closes the current stream, and
// attempts a new connection immediately (spec §4.2 manual reconnect). If the
// client is mid-connection, canceling the active stream's context unblocks
// connectAndStream/readLoop right away; if it is already waiting out a
// backoff timer, the buffered send below short-circuits that wait instead.
// Either way run() loops back into connectAndStream with no further delay.
func (c *Client) Reconnect() {
	c.mu.Lock()
	cancel := c.activeCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.setState(func(s *ConnectionState) { s.Status = StatusDisconnected })
			return
		default:
		}

		c.setState(func(s *ConnectionState) { s.Status = StatusConnecting })
		err := c.connectAndStream(ctx)
		if ctx.Err() != nil {
			c.setState(func(s *ConnectionState) { s.Status = StatusDisconnected })
			return
		}
		if err != nil {
			c.logger.WithError(err).Debug("sse stream ended")
		}

		c.setState(func(s *ConnectionState) { s.Status = StatusReconnecting })
		if !c.waitBackoff(ctx) {
			c.setState(func(s *ConnectionState) { s.Status = StatusDisconnected })
			return
		}
	}
}

// waitBackoff sleeps for one jittered backoff delay, incrementing
// reconnect_attempts beforehand, unless ctx is canceled or a manual
// Reconnect() request arrives first. It never stacks multiple timers: the
// single select below is the only pending timer at any moment.
func (c *Client) waitBackoff(ctx context.Context) bool {
	var attempt int
	c.setState(func(s *ConnectionState) {
		attempt = s.ReconnectAttempts
		s.ReconnectAttempts++
	})
	delay := c.backoffCfg.Delay(attempt, c.rng)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.reconnectCh:
		return true
	case <-timer.C:
		return true
	}
}

func (c *Client) connectAndStream(ctx context.Context) error {
	connCtx, connCancel := context.WithTimeout(ctx, ConnectTimeout)
	req, err := c.buildRequest(connCtx)
	connCancel()
	if err != nil {
		return err
	}

	streamCtx, streamCancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.activeCancel = streamCancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.activeCancel = nil
		c.mu.Unlock()
		streamCancel()
	}()
	req = req.WithContext(streamCtx)

	connectTimer := time.AfterFunc(ConnectTimeout, streamCancel)
	resp, err := c.httpClient.Do(req)
	connectTimer.Stop()
	if err != nil {
		return fmt.Errorf("sse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse unexpected status %d", resp.StatusCode)
	}

	c.setState(func(s *ConnectionState) {
		s.Status = StatusConnected
		s.ReconnectAttempts = 0
		s.ConnectionID = uuid.NewString()
	})

	watchdog := time.AfterFunc(RecvIdleTimeout, streamCancel)
	defer watchdog.Stop()

	return c.readLoop(streamCtx, resp.Body, watchdog)
}

func (c *Client) buildRequest(ctx context.Context) (*http.Request, error) {
	q := url.Values{}
	q.Set("events", strings.Join(c.eventsFilter, ","))
	lastEventID := c.Snapshot().LastEventID
	if lastEventID != "" {
		q.Set("last_event_id", lastEventID)
	}
	endpoint := fmt.Sprintf("%s/api/maps/%s/events/stream?%s", c.baseURL, c.slug, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

func (c *Client) readLoop(ctx context.Context, body io.Reader, watchdog *time.Timer) error {
	parser := &Parser{}
	reader := bufio.NewReaderSize(body, 4096)
	buf := make([]byte, 4096)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			watchdog.Reset(RecvIdleTimeout)
			for _, frame := range parser.Feed(buf[:n]) {
				ev, ok := BuildEvent(frame)
				if !ok {
					c.logger.Debug("dropped malformed sse frame")
					continue
				}
				if acceptErr := c.sink.Accept(ctx, ev); acceptErr != nil {
					return fmt.Errorf("frame-sink failure: %w", acceptErr)
				}
				if ev.Type != "connected" && ev.ID != "" {
					// §9 Open Question: connected does NOT update
					// last_event_id.
					c.setState(func(s *ConnectionState) { s.LastEventID = ev.ID })
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("sse stream closed by server")
			}
			return fmt.Errorf("sse read error: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
