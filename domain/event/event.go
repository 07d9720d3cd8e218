// Package event implements the Event Processor of spec §4.4: it routes
// validated SSE events by type, maintains the Registry's reverse indexes,
// and hands terminal events off to the Notification Coordinator.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/guarzo/wanderer-notifier/domain/character"
	"github.com/guarzo/wanderer-notifier/domain/registry"
	"github.com/guarzo/wanderer-notifier/domain/sseclient"
	"github.com/guarzo/wanderer-notifier/domain/system"
	"github.com/guarzo/wanderer-notifier/internal/apperror"
	"github.com/guarzo/wanderer-notifier/internal/cache"
	"github.com/guarzo/wanderer-notifier/internal/logging"
	"github.com/guarzo/wanderer-notifier/internal/metrics"
)

// Notifier is the Notification Coordinator's inbound contract for
// candidate events (spec §4.5).
type Notifier interface {
	NotifySystemAdded(ctx context.Context, slug string, sys system.System) error
	NotifyCharacterAdded(ctx context.Context, slug string, ch character.Character) error
}

// streamState tracks per-map-stream ordering and duplicate detection
// (spec §4.4: "the last-seen id per stream is consulted and duplicates are
// dropped").
type streamState struct {
	mu        sync.Mutex
	lastSeen  string
}

// Processor routes events by type. It implements sseclient.Sink directly,
// so an SSE Client can forward to it without an adapter.
type Processor struct {
	registry *registry.Registry
	cache    cache.TTL
	notifier Notifier
	metrics  *metrics.State
	logger   *logging.Logger

	mu      sync.Mutex
	streams map[string]*streamState
}

// Config configures a Processor.
type Config struct {
	Registry *registry.Registry
	Cache    cache.TTL
	Notifier Notifier
	Metrics  *metrics.State
	Logger   *logging.Logger
}

// New constructs a Processor.
func New(cfg Config) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("event-processor")
	}
	return &Processor{
		registry: cfg.Registry,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		streams:  make(map[string]*streamState),
	}
}

func (p *Processor) streamFor(mapID string) *streamState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[mapID]
	if !ok {
		s = &streamState{}
		p.streams[mapID] = s
	}
	return s
}

// Accept processes one validated SSE event, enforcing strict per-stream
// FIFO ordering and duplicate detection by event id (spec §4.4).
func (p *Processor) Accept(ctx context.Context, ev sseclient.Event) error {
	stream := p.streamFor(ev.MapID)
	stream.mu.Lock()
	defer stream.mu.Unlock()

	if ev.ID != "" && ev.ID == stream.lastSeen {
		p.logger.WithFields(map[string]interface{}{"event_id": ev.ID, "type": ev.Type}).Debug("duplicate event dropped")
		return nil
	}

	// slug and map_id are treated as interchangeable keys into the
	// Registry in this processing path: the control-plane config keys
	// maps by slug, and SSE events carry map_id. A deployment where these
	// diverge is not handled here.
	slug := ev.MapID

	switch ev.Type {
	case "add_system":
		if err := p.handleAddSystem(ctx, slug, ev); err != nil {
			p.logger.WithError(err).Debug("add_system handler failed")
		}
	case "deleted_system":
		p.handleDeletedSystem(ctx, slug, ev)
	case "system_metadata_changed":
		p.handleSystemMetadataChanged(ctx, slug, ev)
	case "character_added":
		if err := p.handleCharacterAdded(ctx, slug, ev); err != nil {
			p.logger.WithError(err).Debug("character_added handler failed")
		}
	case "character_removed":
		p.handleCharacterRemoved(ctx, slug, ev)
	case "character_updated":
		p.handleCharacterUpdated(ctx, slug, ev)
	case "connected":
		p.logger.WithFields(map[string]interface{}{"map_id": ev.MapID, "server_time": ev.ServerTime}).Info("sse stream connected")
	default:
		p.logger.WithFields(map[string]interface{}{"type": ev.Type}).Debug("unknown event type dropped")
	}

	if ev.ID != "" {
		stream.lastSeen = ev.ID
	}
	return nil
}

func systemCacheKey(slug string, systemID int64) string {
	return fmt.Sprintf("map:%s:system:%d", slug, systemID)
}

func characterCacheKey(slug, characterID string) string {
	return fmt.Sprintf("map:%s:character:%s", slug, characterID)
}

func (p *Processor) handleAddSystem(ctx context.Context, slug string, ev sseclient.Event) error {
	sys, err := system.FromFields(ev.Payload)
	if err != nil {
		return err
	}

	if err := p.putJSON(ctx, systemCacheKey(slug, sys.SolarSystemID), sys); err != nil {
		p.logger.WithError(err).Warn("failed to cache system")
	}
	if p.registry != nil {
		p.registry.IndexSystem(slug, strconv.FormatInt(sys.SolarSystemID, 10))
	}
	if p.metrics != nil {
		p.metrics.Increment(metrics.KindSystem)
	}
	if p.notifier != nil {
		if err := p.notifier.NotifySystemAdded(ctx, slug, sys); err != nil {
			p.logger.WithError(err).Warn("system_added notification failed")
		}
	}
	return nil
}

func (p *Processor) handleDeletedSystem(ctx context.Context, slug string, ev sseclient.Event) {
	idRaw, ok := ev.Payload["solar_system_id"]
	if !ok {
		p.logger.Debug("deleted_system missing solar_system_id")
		return
	}
	id, err := toInt64(idRaw)
	if err != nil {
		p.logger.WithError(err).Debug("deleted_system invalid solar_system_id")
		return
	}
	_ = p.cache.Delete(ctx, systemCacheKey(slug, id))
	if p.registry != nil {
		p.registry.DeindexSystem(slug, strconv.FormatInt(id, 10))
	}
}

func (p *Processor) handleSystemMetadataChanged(ctx context.Context, slug string, ev sseclient.Event) {
	idRaw, ok := ev.Payload["solar_system_id"]
	if !ok {
		return
	}
	id, err := toInt64(idRaw)
	if err != nil {
		return
	}
	key := systemCacheKey(slug, id)
	var existing system.System
	if ok, _ := p.getJSON(ctx, key, &existing); !ok {
		return
	}
	merged := existing.MergeMetadata(ev.Payload)
	if err := p.putJSON(ctx, key, merged); err != nil {
		p.logger.WithError(err).Warn("failed to update cached system")
	}
}

func (p *Processor) handleCharacterAdded(ctx context.Context, slug string, ev sseclient.Event) error {
	ch, err := character.FromFields(ev.Payload)
	if err != nil {
		return err
	}

	if err := p.putJSON(ctx, characterCacheKey(slug, ch.CharacterID), ch); err != nil {
		p.logger.WithError(err).Warn("failed to cache character")
	}
	if p.registry != nil {
		p.registry.IndexCharacter(slug, ch.CharacterID)
	}
	if p.metrics != nil {
		p.metrics.Increment(metrics.KindCharacter)
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyCharacterAdded(ctx, slug, ch); err != nil {
			p.logger.WithError(err).Warn("character_added notification failed")
		}
	}
	return nil
}

func (p *Processor) handleCharacterRemoved(ctx context.Context, slug string, ev sseclient.Event) {
	characterID, _ := ev.Payload["character_id"].(string)
	if characterID == "" {
		return
	}
	_ = p.cache.Delete(ctx, characterCacheKey(slug, characterID))
	if p.registry != nil {
		p.registry.DeindexCharacter(slug, characterID)
	}
}

func (p *Processor) handleCharacterUpdated(ctx context.Context, slug string, ev sseclient.Event) {
	characterID, _ := ev.Payload["character_id"].(string)
	if characterID == "" {
		return
	}
	key := characterCacheKey(slug, characterID)
	var existing character.Character
	if ok, _ := p.getJSON(ctx, key, &existing); !ok {
		return
	}
	merged := existing.Merge(ev.Payload)
	if err := p.putJSON(ctx, key, merged); err != nil {
		p.logger.WithError(err).Warn("failed to update cached character")
	}
}

func (p *Processor) putJSON(ctx context.Context, key string, v interface{}) error {
	if p.cache == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return apperror.Decode("failed to marshal cache entry", err)
	}
	return p.cache.Set(ctx, key, string(b), 0)
}

func (p *Processor) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	if p.cache == nil {
		return false, nil
	}
	raw, ok, err := p.cache.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, apperror.Decode("failed to unmarshal cache entry", err)
	}
	return true, nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, apperror.Decode("unsupported numeric type", nil)
	}
}
