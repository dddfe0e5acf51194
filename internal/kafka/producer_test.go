package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/alert"
	"homesim/internal/hub"
	"homesim/internal/logger"
	"homesim/internal/sensor"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Topic: "t"}, logger.Discard())
	assert.Error(t, err)

	_, err = New(Config{Brokers: []string{"localhost:9092"}}, logger.Discard())
	assert.Error(t, err)

	p, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "homesim.events"}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "homesim.events", p.Topic())
	assert.Equal(t, []string{"localhost:9092"}, p.Brokers())
	require.NoError(t, p.Close())
}

func TestMessageKeys(t *testing.T) {
	now := time.Unix(50, 0).UTC()

	m, err := Message(hub.ReadingEvent(sensor.Reading{SensorID: "t1", Timestamp: now, Value: 21}))
	require.NoError(t, err)
	assert.Equal(t, "t1", string(m.Key))
	assert.Equal(t, now, m.Time)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, HeaderKind, m.Headers[0].Key)
	assert.Equal(t, "reading", string(m.Headers[0].Value))

	m, err = Message(hub.AlertEvent(alert.Alert{SensorID: "a1", Severity: alert.High}))
	require.NoError(t, err)
	assert.Equal(t, "a1", string(m.Key))

	m, err = Message(hub.StatsEvent(hub.StatsSnapshot{Tick: 4}))
	require.NoError(t, err)
	assert.Equal(t, StatsKey, string(m.Key))

	var decoded hub.Event
	require.NoError(t, json.Unmarshal(m.Value, &decoded))
	assert.Equal(t, hub.KindStats, decoded.Kind)
	require.NotNil(t, decoded.Stats)
	assert.Equal(t, uint64(4), decoded.Stats.Tick)
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewWithWriter(w, "events", logger.Discard())

	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Publish(context.Background(),
		hub.ReadingEvent(sensor.Reading{SensorID: "t1"}),
		hub.ReadingEvent(sensor.Reading{SensorID: "t2"}),
	))
	assert.Len(t, w.msgs, 2)
	assert.Equal(t, uint64(2), p.Written())

	w.err = errors.New("leader not available")
	err := p.Publish(context.Background(), hub.StatsEvent(hub.StatsSnapshot{}))
	assert.ErrorContains(t, err, "leader not available")
	assert.Equal(t, uint64(1), p.Failed())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
