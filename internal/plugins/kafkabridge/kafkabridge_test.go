package kafkabridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/engine"
	"homesim/internal/kafka"
	"homesim/internal/logger"
	"homesim/internal/plugins"
	"homesim/internal/sensor"
)

type writer struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *writer) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writer) Close() error { return nil }

func (w *writer) kinds() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int)
	for _, m := range w.msgs {
		out[string(m.Headers[0].Value)]++
	}
	return out
}

func TestInitRequiresProducer(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.Logger = logger.Discard()
	e, err := engine.New(sensor.DefaultFleet(), opts)
	require.NoError(t, err)
	defer e.Close()

	err = New().Init(context.Background(), &plugins.PluginDependencies{Engine: e, Logger: logger.Discard()})
	assert.Error(t, err)
}

func TestStreamsEvents(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.Manual = true
	opts.Logger = logger.Discard()
	e, err := engine.New(sensor.DefaultFleet(), opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	w := &writer{}
	producer := kafka.NewWithWriter(w, "homesim.events", logger.Discard())

	p := New()
	ctx := context.Background()
	require.NoError(t, p.Init(ctx, &plugins.PluginDependencies{
		Engine:        e,
		Logger:        logger.Discard(),
		KafkaProducer: producer,
	}))
	require.NoError(t, p.Start(ctx))

	_, err = e.Start()
	require.NoError(t, err)
	require.NoError(t, e.Step(2))

	require.Eventually(t, func() bool {
		return w.kinds()["stats"] >= 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop(ctx))

	kinds := w.kinds()
	assert.Equal(t, 2*len(sensor.DefaultFleet()), kinds["reading"], "every reading transmitted at full duty")
	assert.Equal(t, 3, kinds["stats"], "start snapshot plus one per tick")

	rec := httptest.NewRecorder()
	p.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/plugins/kafka/status", nil))
	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "homesim.events", status.Topic)
	assert.Equal(t, producer.Written(), status.Written)
	assert.Zero(t, status.Failed)
}
