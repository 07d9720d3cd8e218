package notify

import (
	"context"
	"sync"

	"github.com/guarzo/wanderer-notifier/internal/fingerprint"
	"github.com/guarzo/wanderer-notifier/internal/persistence"
)

// PrioritySet stores only fingerprints of priority names, never the names
// themselves (spec §4.5: "no reverse mapping ... required and none is
// kept"). It is the Notification Coordinator's exclusive owner of this
// state, persisted through a persistence.Store adapter.
type PrioritySet struct {
	mu    sync.RWMutex
	fps   map[uint32]struct{}
	store persistence.Store
}

// NewPrioritySet constructs an empty set backed by store. Call Load to
// hydrate it from persistent storage.
func NewPrioritySet(store persistence.Store) *PrioritySet {
	return &PrioritySet{fps: make(map[uint32]struct{}), store: store}
}

// Load replaces the in-memory set with whatever is currently persisted.
func (s *PrioritySet) Load(ctx context.Context) error {
	fps, err := s.store.LoadPrioritySystems(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = make(map[uint32]struct{}, len(fps))
	for _, fp := range fps {
		s.fps[fp] = struct{}{}
	}
	return nil
}

// ContainsName reports whether name's fingerprint is a member.
func (s *PrioritySet) ContainsName(name string) bool {
	return s.Contains(fingerprint.Of(name))
}

// Contains reports whether fp is a member.
func (s *PrioritySet) Contains(fp uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fps[fp]
	return ok
}

// AddName fingerprints name, adds it to the set, and persists the change.
func (s *PrioritySet) AddName(ctx context.Context, name string) error {
	return s.add(ctx, fingerprint.Of(name))
}

func (s *PrioritySet) add(ctx context.Context, fp uint32) error {
	s.mu.Lock()
	s.fps[fp] = struct{}{}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.SavePrioritySystems(ctx, snapshot)
}

// RemoveName removes name's fingerprint from the set and persists the
// change. Open Question (spec §9): no expiry is added to PrioritySet;
// removal is explicit-only.
func (s *PrioritySet) RemoveName(ctx context.Context, name string) error {
	fp := fingerprint.Of(name)
	s.mu.Lock()
	delete(s.fps, fp)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.SavePrioritySystems(ctx, snapshot)
}

func (s *PrioritySet) snapshotLocked() []uint32 {
	out := make([]uint32, 0, len(s.fps))
	for fp := range s.fps {
		out = append(out, fp)
	}
	return out
}
