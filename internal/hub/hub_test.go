package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/alert"
	"homesim/internal/sensor"
)

func readingEvent(v float64) Event {
	return ReadingEvent(sensor.Reading{SensorID: "t1", Value: v, Timestamp: time.Now()})
}

func TestBroadcastToAllSubscribers(t *testing.T) {
	h := New(10, 10)
	a, b := h.Subscribe(), h.Subscribe()
	require.Equal(t, 2, h.SubscriberCount())

	h.Publish(readingEvent(1))
	h.Publish(AlertEvent(alert.Alert{SensorID: "t1", Severity: alert.High}))

	for _, s := range []*Subscription{a, b} {
		ev := <-s.Events()
		assert.Equal(t, KindReading, ev.Kind)
		assert.Equal(t, uint64(1), ev.Seq)
		ev = <-s.Events()
		assert.Equal(t, KindAlert, ev.Kind)
		assert.Equal(t, alert.High, ev.Alert.Severity)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := New(100, 3)
	slow := h.Subscribe()

	for i := 1; i <= 10; i++ {
		h.Publish(readingEvent(float64(i)))
	}

	assert.Equal(t, uint64(7), slow.Dropped())
	assert.Equal(t, uint64(7), h.Dropped())

	var got []float64
	for i := 0; i < 3; i++ {
		got = append(got, (<-slow.Events()).Reading.Value)
	}
	assert.Equal(t, []float64{8, 9, 10}, got)
}

func TestPublishNeverBlocks(t *testing.T) {
	h := New(10, 1)
	h.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			h.Publish(readingEvent(float64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New(10, 10)
	s := h.Subscribe()
	assert.True(t, h.Unsubscribe(s))
	assert.False(t, h.Unsubscribe(s))

	_, ok := <-s.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.SubscriberCount())

	// Publishing after unsubscribe must not panic.
	assert.NotPanics(t, func() { h.Publish(readingEvent(1)) })
}

func TestConcurrentSubscribeWhilePublishing(t *testing.T) {
	h := New(50, 8)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				h.Publish(readingEvent(float64(i)))
			}
		}
	}()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := h.Subscribe()
				select {
				case <-s.Events():
				case <-stop:
				}
				h.Unsubscribe(s)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	assert.Equal(t, 0, h.SubscriberCount())
}

func TestStatsAreNotStoredInHistory(t *testing.T) {
	h := New(10, 10)
	h.Publish(readingEvent(1))
	h.Publish(StatsEvent(StatsSnapshot{Tick: 4}))

	assert.Equal(t, 1, h.History().Len())
	st, ok := h.LatestStats()
	require.True(t, ok)
	assert.Equal(t, uint64(4), st.Tick)

	h.Reset()
	_, ok = h.LatestStats()
	assert.False(t, ok)
	assert.Equal(t, 0, h.History().Len())
}

func TestCloseUnsubscribesEveryone(t *testing.T) {
	h := New(10, 10)
	s := h.Subscribe()
	h.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
	h.Close()
}

func TestHistoryRingBuffer(t *testing.T) {
	hist := NewHistory(3)
	for i := 1; i <= 5; i++ {
		hist.Add(Event{Seq: uint64(i)})
	}

	require.Equal(t, 3, hist.Len())
	seqs := func(evs []Event) []uint64 {
		out := make([]uint64, len(evs))
		for i, e := range evs {
			out[i] = e.Seq
		}
		return out
	}

	assert.Equal(t, []uint64{5, 4, 3}, seqs(hist.All()))
	assert.Equal(t, []uint64{5, 4}, seqs(hist.Last(2)))
	assert.Equal(t, []uint64{5, 4, 3}, seqs(hist.Last(99)))
	assert.Equal(t, []uint64{5}, seqs(hist.Since(4)))
	assert.Empty(t, hist.Since(5))
	assert.Equal(t, uint64(5), hist.LastSeq())
}
