// Package engine runs the sensor simulation: it drives ticks, applies the
// optimization policy, meters power, evaluates alerts and publishes events.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"homesim/internal/alert"
	"homesim/internal/hub"
	"homesim/internal/logger"
	"homesim/internal/optimizer"
	"homesim/internal/power"
	"homesim/internal/sensor"
)

// ValidationError is returned for rejected control input.
type ValidationError = optimizer.ValidationError

var (
	// ErrUnknownSensor is wrapped by the ValidationError returned for unknown sensor ids.
	ErrUnknownSensor = errors.New("unknown sensor")

	// ErrNotRunning is returned by Step when the simulation is stopped.
	ErrNotRunning = errors.New("simulation is not running")
)

// State is the lifecycle state of the simulation loop.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = Stopped
	case "running":
		*s = Running
	case "stopping":
		*s = Stopping
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// Status is the informational result of a lifecycle call.
type Status string

const (
	StatusStarted        Status = "started"
	StatusAlreadyRunning Status = "already_running"
	StatusStopped        Status = "stopped"
	StatusNotRunning     Status = "not_running"
)

// DefaultTickInterval is the simulated time between ticks.
const DefaultTickInterval = time.Second

// Options configures an Engine.
type Options struct {
	// TickInterval is both the wall-clock cadence of the loop and the
	// duration over which energy is integrated per tick.
	TickInterval time.Duration
	// Manual disables the internal ticker; ticks happen only through Step.
	Manual bool

	// Seed seeds the random source when Rand is nil.
	Seed int64
	Rand *rand.Rand

	Optimization optimizer.Config
	GateMode     optimizer.GateMode
	Adaptive     bool
	Bands        alert.Bands

	HistorySize int
	Backlog     int

	Clock    func() time.Time
	Logger   *logger.Logger
	Observer Observer
}

// DefaultOptions returns options with no optimization and a one second tick.
func DefaultOptions() Options {
	return Options{
		TickInterval: DefaultTickInterval,
		Seed:         1,
		Optimization: optimizer.DefaultConfig(),
		GateMode:     optimizer.GateRandom,
		Bands:        alert.DefaultBands(),
		HistorySize:  hub.DefaultHistorySize,
		Backlog:      hub.DefaultBacklog,
	}
}

// RunReport summarizes a completed run. It is produced on Stop, before the
// run's statistics are discarded.
type RunReport struct {
	StartedAt time.Time        `json:"startedAt"`
	StoppedAt time.Time        `json:"stoppedAt"`
	Ticks     uint64           `json:"ticks"`
	Power     power.Stats      `json:"power"`
	Config    optimizer.Config `json:"config"`
	Alerts    alert.Summary    `json:"alerts"`
}

// snapshot is the state readers see, swapped atomically at the end of each tick.
type snapshot struct {
	tick   uint64
	power  power.Stats
	alerts []alert.State
	sum    alert.Summary
}

// Engine is the simulation core. Control methods are safe for concurrent use.
type Engine struct {
	specs    []sensor.Spec
	index    map[string]int
	opts     Options
	policy   *optimizer.Policy
	hub      *hub.Hub
	log      *logger.Logger
	observer Observer
	clock    func() time.Time
	master   *rand.Rand

	// lifeMu serializes Start, Stop and Step.
	lifeMu sync.Mutex
	state  atomic.Int32
	stopCh chan struct{}
	done   chan struct{}

	// tickMu guards run while a tick executes.
	tickMu sync.Mutex
	run    *run

	snap    atomic.Pointer[snapshot]
	lastRun atomic.Pointer[RunReport]
}

// New configures an engine for a fixed set of sensors.
func New(specs []sensor.Spec, opts Options) (*Engine, error) {
	if len(specs) == 0 {
		return nil, errors.New("engine: at least one sensor is required")
	}
	if opts.TickInterval <= 0 {
		return nil, fmt.Errorf("engine: tick interval must be positive, got %v", opts.TickInterval)
	}
	if opts.Optimization == (optimizer.Config{}) {
		opts.Optimization = optimizer.DefaultConfig()
	}
	if opts.Bands == (alert.Bands{}) {
		opts.Bands = alert.DefaultBands()
	}
	if err := opts.Bands.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.GateMode == "" {
		opts.GateMode = optimizer.GateRandom
	}
	if _, err := optimizer.ParseGateMode(string(opts.GateMode)); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("engine: duplicate sensor id %q", s.ID)
		}
		index[s.ID] = i
	}

	policy, err := optimizer.NewPolicy(opts.Optimization)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	policy.SetAdaptive(opts.Adaptive)

	master := opts.Rand
	if master == nil {
		master = rand.New(rand.NewSource(opts.Seed))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	e := &Engine{
		specs:    append([]sensor.Spec(nil), specs...),
		index:    index,
		opts:     opts,
		policy:   policy,
		hub:      hub.New(opts.HistorySize, opts.Backlog),
		log:      opts.Logger.With("Engine"),
		observer: observer,
		clock:    clock,
		master:   master,
	}
	e.storeIdle()
	return e, nil
}

// Sensors returns the configured sensor specs in tick order.
func (e *Engine) Sensors() []sensor.Spec {
	return append([]sensor.Spec(nil), e.specs...)
}

// Sensor returns one spec by id.
func (e *Engine) Sensor(id string) (sensor.Spec, error) {
	i, ok := e.index[id]
	if !ok {
		return sensor.Spec{}, unknownSensor(id)
	}
	return e.specs[i], nil
}

// TickInterval returns the configured tick interval.
func (e *Engine) TickInterval() time.Duration {
	return e.opts.TickInterval
}

// GateMode returns the configured gate mode.
func (e *Engine) GateMode() optimizer.GateMode {
	return e.opts.GateMode
}

// Hub returns the distribution hub.
func (e *Engine) Hub() *hub.Hub {
	return e.hub
}

// Status returns the lifecycle state.
func (e *Engine) Status() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.observer.StateChanged(s)
}

// Subscribe registers a new event subscriber.
func (e *Engine) Subscribe() *hub.Subscription {
	return e.hub.Subscribe()
}

// Unsubscribe removes a subscriber.
func (e *Engine) Unsubscribe(s *hub.Subscription) {
	e.hub.Unsubscribe(s)
}

// SetDutyCycle changes the duty cycle from the next tick on.
func (e *Engine) SetDutyCycle(v float64) error {
	if err := e.policy.SetDutyCycle(v); err != nil {
		return err
	}
	e.log.Infof("Duty cycle set to %.0f%%", v*100)
	return nil
}

// SetAggregationFactor changes the aggregation factor from the next tick on.
func (e *Engine) SetAggregationFactor(v float64) error {
	if err := e.policy.SetAggregationFactor(v); err != nil {
		return err
	}
	e.log.Infof("Aggregation factor set to %.0f%%", v*100)
	return nil
}

// SetOptimization replaces both settings at once.
func (e *Engine) SetOptimization(cfg optimizer.Config) error {
	if err := e.policy.Set(cfg); err != nil {
		return err
	}
	e.log.Infof("Optimization set: duty cycle %.0f%%, aggregation %.0f%%", cfg.DutyCycle*100, cfg.AggregationFactor*100)
	return nil
}

// Optimization returns the current settings.
func (e *Engine) Optimization() optimizer.Config {
	return e.policy.Config()
}

// SetAdaptive enables or disables progressive sleep.
func (e *Engine) SetAdaptive(enabled bool) {
	e.policy.SetAdaptive(enabled)
	e.log.Infof("Progressive sleep enabled=%v", enabled)
}

// Adaptive reports whether progressive sleep is enabled.
func (e *Engine) Adaptive() bool {
	return e.policy.Adaptive()
}

// CurrentStats returns power statistics as of the last completed tick.
func (e *Engine) CurrentStats() power.Stats {
	return e.snap.Load().power
}

// CurrentAlerts returns every sensor's alert state as of the last completed tick.
func (e *Engine) CurrentAlerts() []alert.State {
	return append([]alert.State(nil), e.snap.Load().alerts...)
}

// AlertSummary returns alert counts for the current run.
func (e *Engine) AlertSummary() alert.Summary {
	return e.snap.Load().sum
}

// AlertState returns one sensor's alert state.
func (e *Engine) AlertState(sensorID string) (alert.State, error) {
	i, ok := e.index[sensorID]
	if !ok {
		return alert.State{}, unknownSensor(sensorID)
	}
	return e.snap.Load().alerts[i], nil
}

// Tick returns the number of the last completed tick in the current run.
func (e *Engine) Tick() uint64 {
	return e.snap.Load().tick
}

// LatestSnapshot returns the stats snapshot published at the end of the last tick.
func (e *Engine) LatestSnapshot() (hub.StatsSnapshot, bool) {
	return e.hub.LatestStats()
}

// History returns up to limit recent reading and alert events, newest first.
func (e *Engine) History(limit int) []hub.Event {
	return e.hub.History().Last(limit)
}

// LastRun returns the report of the most recently stopped run.
func (e *Engine) LastRun() (RunReport, bool) {
	r := e.lastRun.Load()
	if r == nil {
		return RunReport{}, false
	}
	return *r, true
}

// Close stops the simulation and disconnects all subscribers.
func (e *Engine) Close() {
	e.Stop()
	e.hub.Close()
}

// storeIdle publishes the snapshot of a stopped engine: zero stats, no alerts.
func (e *Engine) storeIdle() {
	states := make([]alert.State, len(e.specs))
	now := e.clock()
	for i, s := range e.specs {
		states[i] = alert.State{SensorID: s.ID, Location: s.Location, Severity: alert.None, Since: now}
	}
	e.snap.Store(&snapshot{alerts: states, sum: *alert.NewSummary()})
}

func unknownSensor(id string) error {
	return &ValidationError{Field: "sensorId", Value: id, Reason: "unknown sensor", Err: ErrUnknownSensor}
}
