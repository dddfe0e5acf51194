package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homesim/internal/alert"
	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/logger"
	"homesim/internal/optimizer"
	"homesim/internal/power"
	"homesim/internal/sensor"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserverRecords(t *testing.T) {
	m := New()

	m.ReadingGenerated(sensor.Reading{Type: sensor.Temperature, Transmitted: true})
	m.ReadingGenerated(sensor.Reading{Type: sensor.Temperature, Transmitted: false})
	m.ReadingGenerated(sensor.Reading{Type: sensor.Temperature, Transmitted: true})
	m.AlertRaised(alert.Alert{Severity: alert.Critical})
	m.TickCompleted(time.Millisecond, hub.StatsSnapshot{
		Power:              power.Stats{BaselineWh: 10, OptimizedWh: 4, SavingsPct: 0.6},
		Config:             optimizer.Config{DutyCycle: 0.5, AggregationFactor: 0.75},
		EffectiveDutyCycle: 0.5,
	})
	m.StateChanged(engine.Running)

	out := scrape(t, m)
	assert.Contains(t, out, `homesim_readings_total{transmitted="true",type="temperature"} 2`)
	assert.Contains(t, out, `homesim_readings_total{transmitted="false",type="temperature"} 1`)
	assert.Contains(t, out, `homesim_alerts_total{severity="critical"} 1`)
	assert.Contains(t, out, "homesim_ticks_total 1")
	assert.Contains(t, out, `homesim_energy_wh{profile="baseline"} 10`)
	assert.Contains(t, out, `homesim_energy_wh{profile="optimized"} 4`)
	assert.Contains(t, out, "homesim_savings_ratio 0.6")
	assert.Contains(t, out, "homesim_duty_cycle_effective 0.5")
	assert.Contains(t, out, "homesim_aggregation_factor 0.75")
	assert.Contains(t, out, "homesim_running 1")

	m.StateChanged(engine.Stopped)
	m.RunCompleted(engine.RunReport{})

	out = scrape(t, m)
	assert.Contains(t, out, "homesim_running 0")
	assert.Contains(t, out, "homesim_runs_completed_total 1")
	assert.Contains(t, out, "homesim_savings_ratio 0")
	assert.NotContains(t, out, "homesim_energy_wh{")
}

func TestEngineObserver(t *testing.T) {
	m := New()

	opts := engine.DefaultOptions()
	opts.Manual = true
	opts.Logger = logger.Discard()
	opts.Observer = m
	e, err := engine.New(sensor.DefaultFleet(), opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, m.WatchHub(e.Hub()))
	assert.Error(t, m.WatchHub(e.Hub()), "second hub collides")

	sub := e.Subscribe()
	defer e.Unsubscribe(sub)

	_, err = e.Start()
	require.NoError(t, err)
	require.NoError(t, e.Step(3))

	out := scrape(t, m)
	assert.Contains(t, out, "homesim_ticks_total 3")
	assert.Contains(t, out, "homesim_running 1")
	assert.Contains(t, out, "homesim_stream_subscribers 1")
	assert.Contains(t, out, "homesim_tick_duration_seconds_count 3")
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/sensors/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sensors/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	out := scrape(t, m)
	assert.Contains(t, out, `homesim_http_requests_total{route="/api/sensors/{id}",status="404"} 2`)
	assert.Contains(t, out, `homesim_http_request_duration_seconds_count{route="/api/sensors/{id}"} 2`)
}
