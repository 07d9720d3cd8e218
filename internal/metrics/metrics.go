// Package metrics implements the §4.6 Metrics & Stats sub-system: a
// serialized, single-writer counter store. It is grounded on the teacher's
// infrastructure/metrics package (Prometheus collectors registered against a
// private registry) blended with github.com/shirou/gopsutil/v3 process
// stats, the same combination the teacher uses for its health/uptime
// surfaces. No HTTP exposition endpoint is started — that surface is
// explicitly out of scope — but GetStats() gives callers (and tests) a
// plain snapshot.
package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// Kind identifies one of the counters/gauges named in spec §4.6.
type Kind string

const (
	KindKill      Kind = "kill"
	KindCharacter Kind = "character"
	KindSystem    Kind = "system"

	KindKillmailProcessingStart        Kind = "killmail_processing_start"
	KindKillmailProcessingComplete     Kind = "killmail_processing_complete"
	KindKillmailProcessingSuccess      Kind = "killmail_processing_complete_success"
	KindKillmailProcessingError        Kind = "killmail_processing_complete_error"
	KindKillmailSkipped                Kind = "killmail_skipped"
	KindKillmailError                  Kind = "killmail_error"
	KindNotificationSent               Kind = "notification_sent"
	KindKillmailReceived               Kind = "killmail_received"
)

// Stats is a point-in-time snapshot returned by GetStats, the sum-type-free
// equivalent of the source's health/metrics read surface.
type Stats struct {
	Counters          map[Kind]uint64
	FirstNotification map[Kind]bool
	TrackedSystems    int
	TrackedCharacters int
	StartedAt         time.Time
	UptimeSeconds     float64
	ProcessRSSBytes   uint64
}

// State is the single-writer counter store. All mutation methods are safe
// for concurrent use; they serialize through mu, matching the "single
// writer surface" ownership rule of §3.
type State struct {
	mu sync.Mutex

	counters          map[Kind]uint64
	firstNotification map[Kind]bool
	trackedSystems    int
	trackedCharacters int
	startedAt         time.Time

	// Prometheus collectors, registered against a private registry so tests
	// can construct multiple States without a global-registration conflict.
	registry   *prometheus.Registry
	counterVec *prometheus.CounterVec
	systemsGauge    prometheus.Gauge
	charactersGauge prometheus.Gauge
}

// New creates a metrics State with its own Prometheus registry.
func New() *State {
	registry := prometheus.NewRegistry()
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_total",
		Help: "Total notifier lifecycle events by kind.",
	}, []string{"kind"})
	systemsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_tracked_systems",
		Help: "Number of solar systems currently tracked across all maps.",
	})
	charactersGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_tracked_characters",
		Help: "Number of characters currently tracked across all maps.",
	})
	registry.MustRegister(counterVec, systemsGauge, charactersGauge)

	return &State{
		counters:          make(map[Kind]uint64),
		firstNotification: map[Kind]bool{KindKill: true, KindCharacter: true, KindSystem: true},
		startedAt:         time.Now(),
		registry:          registry,
		counterVec:        counterVec,
		systemsGauge:      systemsGauge,
		charactersGauge:   charactersGauge,
	}
}

// Increment is a fire-and-forget counter bump (the "cast operation" of §4.6).
func (s *State) Increment(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[kind]++
	s.counterVec.WithLabelValues(string(kind)).Inc()
}

// MarkNotificationSent flips kind's first-notification flag to false.
func (s *State) MarkNotificationSent(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstNotification[kind] = false
	s.counters[KindNotificationSent]++
	s.counterVec.WithLabelValues(string(KindNotificationSent)).Inc()
}

// FirstNotification reports whether this would be the first-ever
// notification of kind.
func (s *State) FirstNotification(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstNotification[kind]
}

// SetTrackedCount sets the tracked-count gauge for systems or characters.
func (s *State) SetTrackedCount(entity string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch entity {
	case "systems":
		s.trackedSystems = n
		s.systemsGauge.Set(float64(n))
	case "characters":
		s.trackedCharacters = n
		s.charactersGauge.Set(float64(n))
	}
}

// GetStats returns a snapshot suitable for health/metrics surfaces.
func (s *State) GetStats() Stats {
	s.mu.Lock()
	counters := make(map[Kind]uint64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	first := make(map[Kind]bool, len(s.firstNotification))
	for k, v := range s.firstNotification {
		first[k] = v
	}
	stats := Stats{
		Counters:          counters,
		FirstNotification: first,
		TrackedSystems:    s.trackedSystems,
		TrackedCharacters: s.trackedCharacters,
		StartedAt:         s.startedAt,
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
	}
	s.mu.Unlock()

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			stats.ProcessRSSBytes = memInfo.RSS
		}
	}
	return stats
}

// Registry returns the private Prometheus registry backing this State, for
// callers that do choose to expose a scrape endpoint in their own binary.
func (s *State) Registry() *prometheus.Registry {
	return s.registry
}
