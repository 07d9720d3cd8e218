// Package registry implements the Map Registry (spec §4.1): a live
// directory of configured maps, their tracking scopes, and reverse indexes
// enabling O(1) fan-out from a raw event to the set of maps that care about
// it.
//
// Per the Design Notes' "actor-style coordination" guidance, all writes
// (config refreshes, index mutations) are serialized through a single
// goroutine consuming a command channel — the Registry's "mailbox" — while
// reads are served from an immutable snapshot swapped in atomically after
// each write, so the hot read path (consulted for every killmail) never
// takes a lock.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/guarzo/wanderer-notifier/domain/mapconfig"
	"github.com/guarzo/wanderer-notifier/internal/apperror"
	"github.com/guarzo/wanderer-notifier/internal/cache"
	"github.com/guarzo/wanderer-notifier/internal/eventbus"
	"github.com/guarzo/wanderer-notifier/internal/logging"
	"github.com/guarzo/wanderer-notifier/internal/scheduler"
)

// Mode indicates whether configs come from the control plane or from
// environment fallback (spec §4.1).
type Mode string

const (
	ModeAPI    Mode = "api"
	ModeLegacy Mode = "legacy"
)

// LegacyConfig is the single-map configuration derived from environment
// variables when the control plane has never been reachable (spec §4.1
// step 5, supplemented per SPEC_FULL §12).
type LegacyConfig struct {
	MapURL    string
	MapName   string
	MapAPIKey string
}

// snapshot is the immutable state readers consult. A new snapshot is built
// and atomically swapped in after every write.
type snapshot struct {
	configs        map[string]mapconfig.MapConfig
	systemIndex    map[string]map[string]struct{}
	characterIndex map[string]map[string]struct{}
	version        int64
	mode           Mode
}

func emptySnapshot() *snapshot {
	return &snapshot{
		configs:        make(map[string]mapconfig.MapConfig),
		systemIndex:    make(map[string]map[string]struct{}),
		characterIndex: make(map[string]map[string]struct{}),
	}
}

// clone returns a deep-enough copy for copy-on-write mutation: the two
// index maps and the config map are copied shallowly (inner sets are
// copied individually by the mutator that needs to change them).
func (s *snapshot) clone() *snapshot {
	n := &snapshot{
		configs:        make(map[string]mapconfig.MapConfig, len(s.configs)),
		systemIndex:    make(map[string]map[string]struct{}, len(s.systemIndex)),
		characterIndex: make(map[string]map[string]struct{}, len(s.characterIndex)),
		version:        s.version,
		mode:           s.mode,
	}
	for k, v := range s.configs {
		n.configs[k] = v
	}
	for k, set := range s.systemIndex {
		n.systemIndex[k] = cloneSet(set)
	}
	for k, set := range s.characterIndex {
		n.characterIndex[k] = cloneSet(set)
	}
	return n
}

func cloneSet(set map[string]struct{}) map[string]struct{} {
	n := make(map[string]struct{}, len(set))
	for k := range set {
		n[k] = struct{}{}
	}
	return n
}

type command struct {
	fn   func()
	done chan struct{}
}

// Registry is the live directory of configured maps.
type Registry struct {
	cmds   chan command
	cancel context.CancelFunc

	state atomic.Pointer[snapshot]

	controlPlane *mapconfig.ControlPlaneClient
	legacy       LegacyConfig
	bus          *eventbus.Bus
	perMapCache  cache.PrefixInvalidator
	logger       *logging.Logger
	scheduler    *scheduler.Scheduler
	refreshEvery time.Duration
}

// Config configures a new Registry.
type Config struct {
	ControlPlane *mapconfig.ControlPlaneClient
	Legacy       LegacyConfig
	Bus          *eventbus.Bus
	// PerMapCache purges per-map cache entries when a map is removed from
	// the control plane. Any cache.TTL implementation that also satisfies
	// cache.PrefixInvalidator works here (both cache.Memory and cache.Redis
	// do); nil disables the purge.
	PerMapCache  cache.PrefixInvalidator
	Logger       *logging.Logger
	RefreshEvery time.Duration
}

// New constructs a Registry. Call Start to begin the writer goroutine and
// the periodic control-plane refresh.
func New(cfg Config) *Registry {
	if cfg.Bus == nil {
		cfg.Bus = eventbus.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("registry")
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 5 * time.Minute
	}
	r := &Registry{
		cmds:         make(chan command, 64),
		controlPlane: cfg.ControlPlane,
		legacy:       cfg.Legacy,
		bus:          cfg.Bus,
		perMapCache:  cfg.PerMapCache,
		logger:       cfg.Logger,
		refreshEvery: cfg.RefreshEvery,
	}
	r.state.Store(emptySnapshot())
	return r
}

// Bus returns the eventbus the Registry publishes maps_updated events on.
func (r *Registry) Bus() *eventbus.Bus { return r.bus }

// Start launches the writer goroutine and schedules the periodic
// control-plane refresh (spec §4.1: "a background task polls ... every 5
// minutes"). The initial refresh runs synchronously before Start returns,
// so callers (notably the Supervisor, which must not start SSE clients
// before the initial bulk load completes) can rely on configs being
// populated as soon as Start returns.
func (r *Registry) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(runCtx)

	if err := r.Refresh(ctx); err != nil {
		r.logger.WithError(err).Warn("initial control-plane refresh failed, continuing with fallback")
	}

	r.scheduler = scheduler.New()
	if _, err := r.scheduler.AddFunc(scheduler.EverySpec(r.refreshEvery), func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Refresh(refreshCtx); err != nil {
			r.logger.WithError(err).Warn("periodic control-plane refresh failed")
		}
	}); err != nil {
		return apperror.FatalInit("failed to schedule control-plane refresh", err)
	}
	r.scheduler.Start()
	return nil
}

// Stop terminates the writer goroutine and the refresh scheduler.
func (r *Registry) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Registry) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.cmds:
			cmd.fn()
			close(cmd.done)
		}
	}
}

// do enqueues fn on the writer's mailbox and blocks until it has run,
// giving callers a synchronous API over the serialized writer.
func (r *Registry) do(fn func()) {
	done := make(chan struct{})
	select {
	case r.cmds <- command{fn: fn, done: done}:
		<-done
	default:
		// Mailbox full under extreme load: block until the writer
		// goroutine has room rather than dropping the mutation. fn still
		// runs on the writer goroutine, preserving the single-writer
		// invariant; a full channel only means the writer is momentarily
		// behind, not that it is gone.
		r.cmds <- command{fn: fn, done: done}
		<-done
	}
}

// ---- Reads: lock-free, served from the atomic snapshot. ----

// AllMaps returns every configured map. Order is arbitrary but stable
// within a snapshot.
func (r *Registry) AllMaps() []mapconfig.MapConfig {
	s := r.state.Load()
	out := make([]mapconfig.MapConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	return out
}

// GetMap returns the config for slug, or apperror.ErrNotFound.
func (r *Registry) GetMap(slug string) (mapconfig.MapConfig, error) {
	s := r.state.Load()
	c, ok := s.configs[slug]
	if !ok {
		return mapconfig.MapConfig{}, apperror.ErrNotFound
	}
	return c, nil
}

// MapsTrackingSystem returns every map tracking systemID.
func (r *Registry) MapsTrackingSystem(systemID string) []mapconfig.MapConfig {
	s := r.state.Load()
	slugs := s.systemIndex[systemID]
	return resolveConfigs(s, slugs)
}

// MapsTrackingCharacter returns every map tracking characterID.
func (r *Registry) MapsTrackingCharacter(characterID string) []mapconfig.MapConfig {
	s := r.state.Load()
	slugs := s.characterIndex[characterID]
	return resolveConfigs(s, slugs)
}

func resolveConfigs(s *snapshot, slugs map[string]struct{}) []mapconfig.MapConfig {
	if len(slugs) == 0 {
		return nil
	}
	out := make([]mapconfig.MapConfig, 0, len(slugs))
	for slug := range slugs {
		// Resolve by key, not by pointer: a concurrent config removal
		// cannot dangle (Design Notes, "Back/weak references").
		if c, ok := s.configs[slug]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Mode reports whether configs currently come from the control plane or
// environment fallback.
func (r *Registry) Mode() Mode {
	return r.state.Load().mode
}

// ---- Writes: serialized through the mailbox. ----

// IndexSystem idempotently associates slug with systemID. A mutation that
// references an absent slug is silently dropped (§4.1 failure semantics:
// "an SSE Client may race a config removal").
func (r *Registry) IndexSystem(slug, systemID string) {
	r.do(func() {
		cur := r.state.Load()
		if _, ok := cur.configs[slug]; !ok {
			return
		}
		next := cur.clone()
		set, ok := next.systemIndex[systemID]
		if !ok {
			set = make(map[string]struct{})
			next.systemIndex[systemID] = set
		}
		set[slug] = struct{}{}
		r.state.Store(next)
	})
}

// DeindexSystem idempotently removes slug's association with systemID.
func (r *Registry) DeindexSystem(slug, systemID string) {
	r.do(func() {
		cur := r.state.Load()
		if _, ok := cur.systemIndex[systemID]; !ok {
			return
		}
		next := cur.clone()
		if set, ok := next.systemIndex[systemID]; ok {
			delete(set, slug)
			if len(set) == 0 {
				delete(next.systemIndex, systemID)
			}
		}
		r.state.Store(next)
	})
}

// IndexCharacter idempotently associates slug with characterID.
func (r *Registry) IndexCharacter(slug, characterID string) {
	r.do(func() {
		cur := r.state.Load()
		if _, ok := cur.configs[slug]; !ok {
			return
		}
		next := cur.clone()
		set, ok := next.characterIndex[characterID]
		if !ok {
			set = make(map[string]struct{})
			next.characterIndex[characterID] = set
		}
		set[slug] = struct{}{}
		r.state.Store(next)
	})
}

// DeindexCharacter idempotently removes slug's association with characterID.
func (r *Registry) DeindexCharacter(slug, characterID string) {
	r.do(func() {
		cur := r.state.Load()
		if _, ok := cur.characterIndex[characterID]; !ok {
			return
		}
		next := cur.clone()
		if set, ok := next.characterIndex[characterID]; ok {
			delete(set, slug)
			if len(set) == 0 {
				delete(next.characterIndex, characterID)
			}
		}
		r.state.Store(next)
	})
}

// Refresh force-fetches control-plane configs and applies §4.1's refresh
// protocol. It never returns an error to callers that merely race a
// transient upstream failure (§4.1: "Control-plane fetch failures are
// retried on the next interval; they never fail callers") — the returned
// error is informational, for logging at the call site.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.controlPlane == nil {
		r.applyLegacyFallback()
		return nil
	}

	resp, skipped, err := r.controlPlane.FetchConfig(ctx)
	for _, s := range skipped {
		r.logger.WithError(s).Debug("skipped invalid map config entry")
	}
	if err != nil {
		if err == mapconfig.ErrEndpointNotFound {
			r.applyLegacyFallback()
			return nil
		}
		// Transient failure: keep existing configs if already in api mode,
		// otherwise fall through to legacy.
		if r.Mode() != ModeAPI {
			r.applyLegacyFallback()
		}
		return err
	}

	r.applyAPIConfig(resp)
	return nil
}

func (r *Registry) applyLegacyFallback() {
	if r.legacy.MapURL == "" {
		return
	}
	slug := r.legacy.MapName
	if slug == "" {
		slug = "default"
	}
	cfg := mapconfig.MapConfig{
		Slug:      slug,
		MapID:     slug,
		APIToken:  r.legacy.MapAPIKey,
		CreatedAt: time.Now().UTC(),
	}

	var added []string
	r.do(func() {
		cur := r.state.Load()
		if cur.mode == ModeLegacy {
			if _, ok := cur.configs[slug]; ok {
				return
			}
		}
		next := cur.clone()
		if _, existed := next.configs[slug]; !existed {
			added = append(added, slug)
		}
		next.configs[slug] = cfg
		next.mode = ModeLegacy
		r.state.Store(next)
	})
	if len(added) > 0 {
		r.bus.Publish(eventbus.MapsUpdated{Added: added})
	}
}

func (r *Registry) applyAPIConfig(resp mapconfig.ConfigResponse) {
	var added, removed []string

	r.do(func() {
		cur := r.state.Load()
		if cur.mode == ModeAPI && cur.version == resp.Version {
			// §4.1 step 1: version unchanged in api mode is a no-op,
			// leaving configs and indexes bit-identical (§8.9).
			return
		}

		newConfigs := make(map[string]mapconfig.MapConfig, len(resp.Maps))
		for _, c := range resp.Maps {
			newConfigs[c.Slug] = c
		}

		oldSlugs := make(map[string]struct{}, len(cur.configs))
		for slug := range cur.configs {
			oldSlugs[slug] = struct{}{}
		}
		newSlugs := make(map[string]struct{}, len(newConfigs))
		for slug := range newConfigs {
			newSlugs[slug] = struct{}{}
		}

		for slug := range newSlugs {
			if _, existed := oldSlugs[slug]; !existed {
				added = append(added, slug)
			}
		}
		for slug := range oldSlugs {
			if _, stillExists := newSlugs[slug]; !stillExists {
				removed = append(removed, slug)
			}
		}

		next := cur.clone()
		next.mode = ModeAPI
		next.version = resp.Version

		for _, slug := range removed {
			delete(next.configs, slug)
			purgeSlugFromIndex(next.systemIndex, slug)
			purgeSlugFromIndex(next.characterIndex, slug)
			if r.perMapCache != nil {
				// Cache purge ordered before the client-stop step the
				// Supervisor performs on the resulting maps_updated
				// broadcast, preserved per the Design Notes for
				// observability even though it is not load-bearing.
				if err := r.perMapCache.InvalidatePrefix(context.Background(), fmt.Sprintf("map:%s:", slug)); err != nil {
					r.logger.WithError(err).Warn("failed to purge per-map cache entries")
				}
			}
		}
		for slug, cfg := range newConfigs {
			next.configs[slug] = cfg
		}

		r.state.Store(next)
	})

	if len(added) > 0 || len(removed) > 0 {
		r.bus.Publish(eventbus.MapsUpdated{Added: added, Removed: removed})
	}
}

func purgeSlugFromIndex(index map[string]map[string]struct{}, slug string) {
	for key, set := range index {
		if _, ok := set[slug]; ok {
			delete(set, slug)
			if len(set) == 0 {
				delete(index, key)
			}
		}
	}
}
