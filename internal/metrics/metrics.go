// Package metrics exposes simulation and HTTP metrics in Prometheus format.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homesim/internal/alert"
	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/sensor"
)

const namespace = "homesim"

// Metrics implements engine.Observer and records into its own registry, so
// several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	readings     *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	runs         prometheus.Counter
	running      prometheus.Gauge
	energy       *prometheus.GaugeVec
	savings      prometheus.Gauge
	dutyCycle    prometheus.Gauge
	aggregation  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ engine.Observer = (*Metrics)(nil)

// New creates the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total simulation ticks executed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent computing one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings generated by sensor type and whether they were transmitted.",
		}, []string{"type", "transmitted"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert transitions by new severity.",
		}, []string{"severity"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Simulation runs stopped.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the simulation is running.",
		}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_wh",
			Help:      "Cumulative energy of the current run in watt-hours.",
		}, []string{"profile"}),
		savings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "savings_ratio",
			Help:      "Energy saved by optimization as a fraction of the baseline.",
		}),
		dutyCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duty_cycle_effective",
			Help:      "Duty cycle applied on the last tick.",
		}),
		aggregation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregation_factor",
			Help:      "Configured aggregation factor.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.readings,
		m.alerts,
		m.runs,
		m.running,
		m.energy,
		m.savings,
		m.dutyCycle,
		m.aggregation,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// WatchHub exports the subscriber and drop counts of h. It fails if a hub
// is already watched.
func (m *Metrics) WatchHub(h *hub.Hub) error {
	subscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Active event stream subscribers.",
	}, func() float64 { return float64(h.SubscriberCount()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_dropped_events_total",
		Help:      "Events evicted from slow subscriber queues.",
	}, func() float64 { return float64(h.Dropped()) })

	if err := m.registry.Register(subscribers); err != nil {
		return err
	}
	return m.registry.Register(dropped)
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReadingGenerated(r sensor.Reading) {
	m.readings.WithLabelValues(string(r.Type), strconv.FormatBool(r.Transmitted)).Inc()
}

func (m *Metrics) AlertRaised(a alert.Alert) {
	m.alerts.WithLabelValues(a.Severity.String()).Inc()
}

func (m *Metrics) TickCompleted(elapsed time.Duration, s hub.StatsSnapshot) {
	m.ticks.Inc()
	m.tickDuration.Observe(elapsed.Seconds())
	m.energy.WithLabelValues("baseline").Set(s.Power.BaselineWh)
	m.energy.WithLabelValues("optimized").Set(s.Power.OptimizedWh)
	m.savings.Set(s.Power.SavingsPct)
	m.dutyCycle.Set(s.EffectiveDutyCycle)
	m.aggregation.Set(s.Config.AggregationFactor)
}

func (m *Metrics) StateChanged(s engine.State) {
	if s == engine.Running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

func (m *Metrics) RunCompleted(engine.RunReport) {
	m.runs.Inc()
	m.energy.Reset()
	m.savings.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working behind the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Middleware records request counts and durations labelled by the chi
// route pattern, which keeps path parameters out of the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
