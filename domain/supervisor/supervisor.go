// Package supervisor implements the SSE Supervisor of spec §4.3: one
// child SSE Client per live MapConfig, restarted with a capped-intensity
// permanent restart policy, gated until the initial bulk data load
// completes.
package supervisor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/guarzo/wanderer-notifier/domain/mapconfig"
	"github.com/guarzo/wanderer-notifier/domain/registry"
	"github.com/guarzo/wanderer-notifier/domain/sseclient"
	"github.com/guarzo/wanderer-notifier/internal/logging"
)

// restartWindow and maxRestarts bound restart intensity: a client that
// exits more than maxRestarts times within restartWindow is reported
// unhealthy instead of being restarted again immediately (spec §4.3:
// "capped restart intensity to avoid hot loops").
const (
	restartWindow = time.Minute
	maxRestarts   = 5
)

type child struct {
	client       *sseclient.Client
	cancel       context.CancelFunc
	restartTimes []time.Time
	unhealthy    bool
}

// Supervisor owns the set of live SSE Clients, one per map slug.
type Supervisor struct {
	registry   *registry.Registry
	sink       sseclient.Sink
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger

	mu       sync.Mutex
	children map[string]*child

	readyCh chan struct{}
	once    sync.Once

	unsubscribe func()
}

// Config configures a Supervisor.
type Config struct {
	Registry   *registry.Registry
	Sink       sseclient.Sink
	BaseURL    string // the map's base URL; per-map paths are derived from slug
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// New constructs a Supervisor. Clients are not started until both Start
// is called and MarkInitialLoadComplete has been signaled.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("supervisor")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Supervisor{
		registry:   cfg.Registry,
		sink:       cfg.Sink,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		children:   make(map[string]*child),
		readyCh:    make(chan struct{}),
	}
}

// MarkInitialLoadComplete unblocks client startup. Spec §4.3: "The
// Supervisor MUST NOT start any SSE client until the initial bulk data
// load (systems + characters per map) has completed." Safe to call more
// than once; only the first call has effect.
func (s *Supervisor) MarkInitialLoadComplete() {
	s.once.Do(func() { close(s.readyCh) })
}

// Start subscribes to the Registry's maps_updated broadcasts and, once the
// initial bulk load completes, starts a client for every currently
// configured map.
func (s *Supervisor) Start(ctx context.Context) {
	sub, unsubscribe := s.registry.Bus().Subscribe()
	s.unsubscribe = unsubscribe

	go func() {
		<-s.readyCh
		for _, cfg := range s.registry.AllMaps() {
			s.startChild(ctx, cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				for _, slug := range ev.Added {
					if cfg, err := s.registry.GetMap(slug); err == nil {
						s.startChild(ctx, cfg)
					}
				}
				for _, slug := range ev.Removed {
					s.stopChild(slug)
				}
			}
		}
	}()
}

// Stop closes every child's upstream handle and cancels all pending
// reconnect timers (spec §5 shutdown steps 2-3).
func (s *Supervisor) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	slugs := make([]string, 0, len(s.children))
	for slug := range s.children {
		slugs = append(slugs, slug)
	}
	s.mu.Unlock()

	for _, slug := range slugs {
		s.stopChild(slug)
	}
}

func (s *Supervisor) startChild(ctx context.Context, cfg mapconfig.MapConfig) {
	s.mu.Lock()
	if _, exists := s.children[cfg.Slug]; exists {
		s.mu.Unlock()
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	c := &child{cancel: cancel}
	s.children[cfg.Slug] = c
	s.mu.Unlock()

	s.runChild(childCtx, cfg, c)
}

// runChild implements the permanent restart policy: whenever the client's
// run loop exits while the supervisor's context is still live, a fresh
// client is started in its place, unless restart intensity has exceeded
// maxRestarts within restartWindow (spec §4.3: "a client that fails to
// start repeatedly is eventually reported unhealthy").
func (s *Supervisor) runChild(ctx context.Context, cfg mapconfig.MapConfig, c *child) {
	go func() {
		for {
			client := sseclient.New(sseclient.Config{
				BaseURL:      s.baseURL,
				Slug:         cfg.Slug,
				APIKey:       cfg.APIToken,
				EventsFilter: cfg.EventFilter,
				HTTPClient:   s.httpClient,
				Sink:         s.sink,
				Logger:       s.logger.Named(cfg.Slug),
			})

			s.mu.Lock()
			c.client = client
			s.mu.Unlock()

			client.Start(ctx)

			select {
			case <-ctx.Done():
				client.Stop()
				return
			case <-client.Done():
			}

			s.mu.Lock()
			now := time.Now()
			c.restartTimes = append(c.restartTimes, now)
			c.restartTimes = pruneOld(c.restartTimes, now.Add(-restartWindow))
			exceeded := len(c.restartTimes) > maxRestarts
			if exceeded {
				c.unhealthy = true
			}
			s.mu.Unlock()

			if exceeded {
				s.logger.WithFields(map[string]interface{}{"map_slug": cfg.Slug}).
					Warn("sse client restart intensity exceeded, reporting unhealthy")
				return
			}
		}
	}()
}

func pruneOld(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Supervisor) stopChild(slug string) {
	s.mu.Lock()
	c, ok := s.children[slug]
	if ok {
		delete(s.children, slug)
	}
	s.mu.Unlock()
	if ok {
		c.cancel()
	}
}

// Snapshot reports, for health surfaces, the connection state of every
// currently-supervised map (SPEC_FULL §12 supplemented feature).
func (s *Supervisor) Snapshot() map[string]sseclient.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]sseclient.ConnectionState, len(s.children))
	for slug, c := range s.children {
		if c.client != nil {
			out[slug] = c.client.Snapshot()
		}
	}
	return out
}
