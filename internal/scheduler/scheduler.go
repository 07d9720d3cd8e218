// Package scheduler drives the Registry's periodic control-plane refresh
// with github.com/robfig/cron/v3, so its cadence is operator-tunable via
// a cron spec rather than a hand-rolled time.Ticker.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron.Cron instance.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a Scheduler with second-level precision disabled (standard
// five-field cron specs, matching operator expectations).
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// EverySpec returns an "@every <duration>" spec string understood by
// robfig/cron, used for interval-style schedules like the 5-minute
// control-plane refresh.
func EverySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}

// AddFunc schedules fn to run on spec, returning the entry ID for later
// removal.
func (s *Scheduler) AddFunc(spec string, fn func()) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, fn)
}

// Remove cancels a previously scheduled entry.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the scheduler's internal ticking goroutine and waits for any
// running job to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
