package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/wanderer-notifier/domain/mapconfig"
	"github.com/guarzo/wanderer-notifier/internal/cache"
	"github.com/guarzo/wanderer-notifier/internal/eventbus"
)

func seedRegistry(t *testing.T, configs ...mapconfig.MapConfig) *Registry {
	t.Helper()
	r := New(Config{Bus: eventbus.New()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.run(ctx)
	for _, c := range configs {
		slug := c.Slug
		r.do(func() {
			cur := r.state.Load()
			next := cur.clone()
			next.configs[slug] = c
			next.mode = ModeAPI
			r.state.Store(next)
		})
	}
	return r
}

func TestIndexSystem_FanOutAcrossTwoMaps(t *testing.T) {
	r := seedRegistry(t,
		mapconfig.MapConfig{Slug: "alpha", MapID: "1"},
		mapconfig.MapConfig{Slug: "bravo", MapID: "2"},
	)

	r.IndexSystem("alpha", "30000142")
	r.IndexSystem("bravo", "30000142")

	maps := r.MapsTrackingSystem("30000142")
	require.Len(t, maps, 2)

	slugs := map[string]bool{}
	for _, m := range maps {
		slugs[m.Slug] = true
	}
	assert.True(t, slugs["alpha"])
	assert.True(t, slugs["bravo"])
}

func TestIndexSystem_Idempotent(t *testing.T) {
	r := seedRegistry(t, mapconfig.MapConfig{Slug: "alpha", MapID: "1"})

	r.IndexSystem("alpha", "30000142")
	r.IndexSystem("alpha", "30000142")
	r.IndexSystem("alpha", "30000142")

	maps := r.MapsTrackingSystem("30000142")
	require.Len(t, maps, 1)
}

func TestDeindexSystem_RemovesAssociationOnly(t *testing.T) {
	r := seedRegistry(t,
		mapconfig.MapConfig{Slug: "alpha", MapID: "1"},
		mapconfig.MapConfig{Slug: "bravo", MapID: "2"},
	)
	r.IndexSystem("alpha", "30000142")
	r.IndexSystem("bravo", "30000142")

	r.DeindexSystem("alpha", "30000142")

	maps := r.MapsTrackingSystem("30000142")
	require.Len(t, maps, 1)
	assert.Equal(t, "bravo", maps[0].Slug)

	// alpha's config itself is untouched.
	_, err := r.GetMap("alpha")
	require.NoError(t, err)
}

func TestIndexSystem_DropsMutationForAbsentSlug(t *testing.T) {
	r := seedRegistry(t)

	r.IndexSystem("ghost", "30000142")

	assert.Empty(t, r.MapsTrackingSystem("30000142"))
}

func TestApplyAPIConfig_NoOpWhenVersionUnchanged(t *testing.T) {
	bus := eventbus.New()
	r := New(Config{Bus: bus})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	sub, unsub := bus.Subscribe()
	defer unsub()

	resp := mapconfig.ConfigResponse{
		Version: 7,
		Maps:    []mapconfig.MapConfig{{Slug: "alpha", MapID: "1"}},
	}
	r.applyAPIConfig(resp)

	select {
	case ev := <-sub:
		assert.Equal(t, []string{"alpha"}, ev.Added)
	case <-time.After(time.Second):
		t.Fatal("expected maps_updated for first apply")
	}

	r.IndexSystem("alpha", "30000142")

	// Re-applying the same version must be a no-op: indexes survive and no
	// second maps_updated event fires.
	r.applyAPIConfig(resp)

	select {
	case ev := <-sub:
		t.Fatalf("expected no maps_updated on unchanged version, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	maps := r.MapsTrackingSystem("30000142")
	require.Len(t, maps, 1)
	assert.Equal(t, "alpha", maps[0].Slug)
}

func TestApplyAPIConfig_RemovalPurgesIndexes(t *testing.T) {
	bus := eventbus.New()
	r := New(Config{Bus: bus})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	r.applyAPIConfig(mapconfig.ConfigResponse{
		Version: 1,
		Maps:    []mapconfig.MapConfig{{Slug: "alpha", MapID: "1"}},
	})
	r.IndexSystem("alpha", "30000142")
	r.IndexCharacter("alpha", "char-1")

	sub, unsub := bus.Subscribe()
	defer unsub()

	r.applyAPIConfig(mapconfig.ConfigResponse{Version: 2, Maps: nil})

	select {
	case ev := <-sub:
		assert.Equal(t, []string{"alpha"}, ev.Removed)
	case <-time.After(time.Second):
		t.Fatal("expected maps_updated for removal")
	}

	assert.Empty(t, r.MapsTrackingSystem("30000142"))
	assert.Empty(t, r.MapsTrackingCharacter("char-1"))
	_, err := r.GetMap("alpha")
	assert.Error(t, err)
}

func TestApplyAPIConfig_RemovalPurgesPerMapCache(t *testing.T) {
	mem := cache.NewMemory(cache.DefaultConfig())
	defer mem.Close()
	require.NoError(t, mem.Set(context.Background(), "map:alpha:system:1", "v", time.Minute))
	require.NoError(t, mem.Set(context.Background(), "map:bravo:system:1", "v", time.Minute))

	r := New(Config{Bus: eventbus.New(), PerMapCache: mem})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	r.applyAPIConfig(mapconfig.ConfigResponse{
		Version: 1,
		Maps: []mapconfig.MapConfig{
			{Slug: "alpha", MapID: "1"},
			{Slug: "bravo", MapID: "2"},
		},
	})
	r.applyAPIConfig(mapconfig.ConfigResponse{
		Version: 2,
		Maps:    []mapconfig.MapConfig{{Slug: "bravo", MapID: "2"}},
	})

	_, ok, _ := mem.Get(context.Background(), "map:alpha:system:1")
	assert.False(t, ok, "alpha's cache entries should be purged on removal")
	_, ok, _ = mem.Get(context.Background(), "map:bravo:system:1")
	assert.True(t, ok, "bravo's cache entries must survive")
}

func TestApplyLegacyFallback_UsesEnvValues(t *testing.T) {
	r := New(Config{
		Bus: eventbus.New(),
		Legacy: LegacyConfig{
			MapURL:    "https://example.test",
			MapName:   "my-map",
			MapAPIKey: "token-123",
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx)

	r.applyLegacyFallback()

	assert.Equal(t, ModeLegacy, r.Mode())
	cfg, err := r.GetMap("my-map")
	require.NoError(t, err)
	assert.Equal(t, "token-123", cfg.APIToken)
}

func TestAllMaps_ReturnsAllConfigured(t *testing.T) {
	r := seedRegistry(t,
		mapconfig.MapConfig{Slug: "alpha", MapID: "1"},
		mapconfig.MapConfig{Slug: "bravo", MapID: "2"},
	)
	maps := r.AllMaps()
	assert.Len(t, maps, 2)
}
