package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEverySpec_FormatsCronIntervalSpec(t *testing.T) {
	assert.Equal(t, "@every 5m0s", EverySpec(5*time.Minute))
}

func TestAddFunc_RunsOnSchedule(t *testing.T) {
	s := New()
	var calls int32
	_, err := s.AddFunc("@every 10ms", func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestRemove_StopsFutureRuns(t *testing.T) {
	s := New()
	var calls int32
	id, err := s.AddFunc("@every 10ms", func() { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)

	s.Remove(id)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Equal(t, after, atomic.LoadInt32(&calls), "no further runs should occur after Remove")
}
