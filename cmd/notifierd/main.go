// Package main provides the notifierd entry point: it wires the Map
// Registry, SSE Supervisor, Event Processor, and Notification Coordinator
// into a single running process per the deployment topology of SPEC_FULL
// §1-§6.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/guarzo/wanderer-notifier/domain/event"
	"github.com/guarzo/wanderer-notifier/domain/killmail"
	"github.com/guarzo/wanderer-notifier/domain/mapapi"
	"github.com/guarzo/wanderer-notifier/domain/mapconfig"
	"github.com/guarzo/wanderer-notifier/domain/notify"
	"github.com/guarzo/wanderer-notifier/domain/registry"
	"github.com/guarzo/wanderer-notifier/domain/supervisor"
	"github.com/guarzo/wanderer-notifier/internal/cache"
	"github.com/guarzo/wanderer-notifier/internal/chattransport"
	"github.com/guarzo/wanderer-notifier/internal/config"
	"github.com/guarzo/wanderer-notifier/internal/eventbus"
	"github.com/guarzo/wanderer-notifier/internal/httpclient"
	"github.com/guarzo/wanderer-notifier/internal/logging"
	"github.com/guarzo/wanderer-notifier/internal/metrics"
	"github.com/guarzo/wanderer-notifier/internal/persistence"
	"github.com/guarzo/wanderer-notifier/internal/ratelimit"
	"github.com/guarzo/wanderer-notifier/internal/resilience"
	"github.com/guarzo/wanderer-notifier/internal/voice"
)

func main() {
	cfg := config.Load()

	logging.InitDefault("notifierd", cfg.LogLevel, cfg.LogFormat)
	logger := logging.Default().Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ttlCache, ttlStore, priorityStore, perMapCache, closeCache := buildCache(cfg, logger)
	defer closeCache()

	var controlPlane *mapconfig.ControlPlaneClient
	if cfg.MapURL != "" && cfg.MapAPIKey != "" {
		var err error
		controlPlane, err = mapconfig.NewControlPlaneClient(cfg.MapURL, cfg.MapAPIKey, httpclient.NewClient(httpclient.Config{}, httpclient.DefaultDefaults()))
		if err != nil {
			log.Fatalf("invalid control-plane configuration: %v", err)
		}
	}

	bus := eventbus.New()

	reg := registry.New(registry.Config{
		ControlPlane: controlPlane,
		Legacy: registry.LegacyConfig{
			MapURL:    cfg.MapURL,
			MapName:   cfg.MapName,
			MapAPIKey: cfg.MapAPIKey,
		},
		Bus:          bus,
		PerMapCache:  perMapCache,
		Logger:       logger.Named("registry"),
		RefreshEvery: cfg.ControlPlaneInterval,
	})
	if err := reg.Start(ctx); err != nil {
		log.Fatalf("registry failed to start: %v", err)
	}
	defer reg.Stop()

	metricsState := metrics.New()

	voiceSubsystem := voice.NewStatic()

	var transport chattransport.Transport = chattransport.NewWebhook(
		httpclient.NewClient(httpclient.Config{}, httpclient.DefaultDefaults()),
		map[string]string{
			cfg.DiscordSystemChannelID: cfg.DiscordWebhookURL,
			cfg.DiscordChannelID:       cfg.DiscordWebhookURL,
		},
	)

	breaker := resilience.NewCircuitBreaker("chat-dispatch", resilience.DefaultCircuitBreakerConfig())

	prioritySet := notify.NewPrioritySet(priorityStore)
	if err := prioritySet.Load(ctx); err != nil {
		logger.WithError(err).Warn("failed to load priority systems, starting empty")
	}
	dedup := notify.NewDedupCache(ttlStore, cfg.DedupTTL)

	coordinator := notify.New(notify.Config{
		PrioritySystemsOnly:            cfg.PrioritySystemsOnly,
		VoiceParticipantNotifications:  cfg.VoiceParticipantNotifications,
		FallbackToHere:                 cfg.FallbackToHere,
		Destinations: notify.Destinations{
			System:    cfg.DiscordSystemChannelID,
			Character: cfg.DiscordChannelID,
			Kill:      cfg.DiscordChannelID,
		},
		Priority:  prioritySet,
		Dedup:     dedup,
		Voice:     voiceSubsystem,
		Transport: transport,
		Breaker:   breaker,
		Metrics:   metricsState,
		Logger:    logger.Named("coordinator"),
	})

	processor := event.New(event.Config{
		Registry: reg,
		Cache:    ttlCache,
		Notifier: coordinator,
		Metrics:  metricsState,
		Logger:   logger.Named("event-processor"),
	})

	ingestor := killmail.New(killmail.Config{
		Registry:    reg,
		Coordinator: coordinator,
		Metrics:     metricsState,
		Logger:      logger.Named("killmail"),
	})
	_ = ingestor // no killmail ingest transport calls it in this process; exercised directly by tests

	if cfg.MapURL != "" {
		limiter := ratelimit.New(ratelimit.DefaultStaticInfoConfig())
		if _, err := mapapi.NewStaticInfoClient(cfg.MapURL, httpclient.NewClient(httpclient.Config{}, httpclient.DefaultDefaults()), limiter); err != nil {
			logger.WithError(err).Warn("static-info client disabled")
		}
	}

	sup := supervisor.New(supervisor.Config{
		Registry:   reg,
		Sink:       processor,
		BaseURL:    cfg.MapURL,
		HTTPClient: &http.Client{},
		Logger:     logger.Named("supervisor"),
	})
	sup.Start(ctx)
	defer sup.Stop()

	// Initial bulk load gate (spec §4.3): the Registry's startup Refresh has
	// already populated configs and, by extension, per-map caches will be
	// filled as the first SSE `connected`+backfilled events land. Mark ready
	// immediately after the control-plane/legacy configs are known so the
	// Supervisor can start clients; genuine bulk REST loads of systems and
	// characters would be layered here if the map exposed a bulk endpoint.
	sup.MarkInitialLoadComplete()

	metricsState.SetTrackedCount("systems", len(reg.AllMaps()))

	logger.Info("notifierd started")

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	<-drainCtx.Done()
}

func buildCache(cfg config.Config, logger *logging.Logger) (cache.TTL, cache.TTL, persistence.Store, cache.PrefixInvalidator, func()) {
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL, cfg.DedupTTL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		store := persistence.NewRedisStore(redisCache.Client())
		return redisCache, redisCache, store, redisCache, func() { _ = redisCache.Close() }
	}

	mem := cache.NewMemory(cache.DefaultConfig())
	var store persistence.Store
	if cfg.PrioritySystemsPath != "" {
		store = persistence.NewFileStore(cfg.PrioritySystemsPath)
	} else {
		store = persistence.NewFileStore("priority_systems.json")
	}
	_ = logger
	return mem, mem, store, mem, mem.Close
}
