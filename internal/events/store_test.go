package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRing(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(EventSimulationStart, "10.0.0.1", true, "")
	}

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, int64(5), s.LastID())

	last := s.GetLast(10)
	require.Len(t, last, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{last[0].ID, last[1].ID, last[2].ID})
}

func TestGetLast(t *testing.T) {
	s := NewStore(10)
	s.Add(EventSimulationStart, "", true, "")
	s.Add(EventOptimizationUpdate, "", false, "dutyCycle: must be in (0, 1]")

	last := s.GetLast(1)
	require.Len(t, last, 1)
	assert.Equal(t, EventOptimizationUpdate, last[0].Type)
	assert.False(t, last[0].Success)

	assert.Len(t, s.GetLast(0), 2, "non-positive limit returns everything")
}

func TestGetSince(t *testing.T) {
	s := NewStore(10)
	s.Add(EventSimulationStart, "", true, "")
	s.Add(EventPluginEnable, "", true, "mqtt")
	s.Add(EventSimulationStop, "", true, "")

	since := s.GetSince(1)
	require.Len(t, since, 2)
	assert.Equal(t, int64(3), since[0].ID)
	assert.Equal(t, int64(2), since[1].ID)

	assert.Empty(t, s.GetSince(3))
	assert.NotNil(t, s.GetSince(3), "empty slice encodes as []")
}

func TestFilter(t *testing.T) {
	s := NewStore(4)
	s.Add(EventPluginEnable, "", true, "mqtt")
	s.Add(EventSimulationStart, "", true, "")
	s.Add(EventPluginDisable, "", true, "mqtt")
	s.Add(EventPluginEnable, "", true, "kafka")
	s.Add(EventPluginEnable, "", false, "ping")

	enabled := s.Filter(EventPluginEnable, 0)
	require.Len(t, enabled, 2, "the oldest enable was evicted")
	assert.Equal(t, "ping", enabled[0].Details)
	assert.Equal(t, "kafka", enabled[1].Details)

	assert.Len(t, s.Filter(EventPluginEnable, 1), 1)
	assert.Len(t, s.Filter("", 0), 4)
	assert.Empty(t, s.Filter(EventConfigReload, 0))
}
