// Package killmail implements the minimal ingestion path named in spec
// §4.4: "Killmail events arrive on a separate ingest path ... consult the
// Registry's reverse indexes via maps_tracking_system(...); the Processor
// fans out to each interested map's Coordinator instance." The killmail
// feed's own transport/format is out of scope; this package accepts an
// already-parsed Killmail and performs the fan-out.
package killmail

import (
	"context"
	"fmt"
	"strconv"

	"github.com/guarzo/wanderer-notifier/domain/registry"
	"github.com/guarzo/wanderer-notifier/internal/logging"
	"github.com/guarzo/wanderer-notifier/internal/metrics"
)

// Killmail is the minimal pre-parsed shape this path consumes.
type Killmail struct {
	KillmailID    int64
	SolarSystemID int64
	VictimName    string
	Summary       string
}

// Coordinator is the per-map notification decision surface a fanned-out
// killmail is handed to.
type Coordinator interface {
	NotifyKill(ctx context.Context, slug string, killmailID int64, victimName, summary string) error
}

// Ingestor resolves which maps track a kill's solar system and dispatches
// to each one's Coordinator.
type Ingestor struct {
	registry    *registry.Registry
	coordinator Coordinator
	metrics     *metrics.State
	logger      *logging.Logger
}

// Config configures an Ingestor.
type Config struct {
	Registry    *registry.Registry
	Coordinator Coordinator
	Metrics     *metrics.State
	Logger      *logging.Logger
}

// New constructs an Ingestor.
func New(cfg Config) *Ingestor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("killmail-ingestor")
	}
	return &Ingestor{
		registry:    cfg.Registry,
		coordinator: cfg.Coordinator,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Ingest fans km out to every map currently tracking its solar system.
func (i *Ingestor) Ingest(ctx context.Context, km Killmail) error {
	if i.metrics != nil {
		i.metrics.Increment(metrics.KindKillmailProcessingStart)
	}

	maps := i.registry.MapsTrackingSystem(strconv.FormatInt(km.SolarSystemID, 10))
	if len(maps) == 0 {
		if i.metrics != nil {
			i.metrics.Increment(metrics.KindKillmailProcessingComplete)
			i.metrics.Increment(metrics.KindKillmailSkipped)
		}
		return nil
	}

	var firstErr error
	for _, m := range maps {
		if err := i.coordinator.NotifyKill(ctx, m.Slug, km.KillmailID, km.VictimName, km.Summary); err != nil {
			i.logger.WithError(err).Warn(fmt.Sprintf("kill notification failed for map %s", m.Slug))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if i.metrics != nil {
		i.metrics.Increment(metrics.KindKillmailProcessingComplete)
		if firstErr != nil {
			i.metrics.Increment(metrics.KindKillmailProcessingError)
		} else {
			i.metrics.Increment(metrics.KindKillmailProcessingSuccess)
		}
	}
	return firstErr
}
