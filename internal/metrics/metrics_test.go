package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrement_AccumulatesPerKind(t *testing.T) {
	s := New()
	s.Increment(KindSystem)
	s.Increment(KindSystem)
	s.Increment(KindCharacter)

	stats := s.GetStats()
	assert.Equal(t, uint64(2), stats.Counters[KindSystem])
	assert.Equal(t, uint64(1), stats.Counters[KindCharacter])
}

func TestFirstNotification_StartsTrueThenFlipsAfterMark(t *testing.T) {
	s := New()
	assert.True(t, s.FirstNotification(KindSystem))

	s.MarkNotificationSent(KindSystem)
	assert.False(t, s.FirstNotification(KindSystem))
}

func TestMarkNotificationSent_IncrementsNotificationSentCounter(t *testing.T) {
	s := New()
	s.MarkNotificationSent(KindKill)
	stats := s.GetStats()
	assert.Equal(t, uint64(1), stats.Counters[KindNotificationSent])
}

func TestSetTrackedCount_UpdatesSnapshot(t *testing.T) {
	s := New()
	s.SetTrackedCount("systems", 7)
	s.SetTrackedCount("characters", 3)

	stats := s.GetStats()
	assert.Equal(t, 7, stats.TrackedSystems)
	assert.Equal(t, 3, stats.TrackedCharacters)
}

func TestNew_RegistersCollectorsOnPrivateRegistry(t *testing.T) {
	s := New()
	require.NotNil(t, s.Registry())

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestGetStats_UptimeIsNonNegative(t *testing.T) {
	s := New()
	stats := s.GetStats()
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}
