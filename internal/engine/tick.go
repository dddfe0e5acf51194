package engine

import (
	"fmt"
	"math/rand"
	"time"

	"homesim/internal/alert"
	"homesim/internal/hub"
	"homesim/internal/optimizer"
	"homesim/internal/power"
	"homesim/internal/sensor"
)

// run is the per-run state owned by the simulation loop.
type run struct {
	startedAt time.Time
	tick      uint64
	states    []*sensor.State
	walker    *sensor.Walker
	gate      optimizer.Gate
	meter     *power.Meter
	evaluator *alert.Evaluator
	adaptive  *optimizer.Adaptive
	lastCfg   optimizer.Config
	generated []sensor.Reading
}

func (e *Engine) newRun() (*run, error) {
	// Walker and gate get independent sources so that changing the
	// optimization settings never shifts the value sequence.
	walkRng := rand.New(rand.NewSource(e.master.Int63()))
	gateRng := rand.New(rand.NewSource(e.master.Int63()))

	gate, err := optimizer.NewGate(e.opts.GateMode, len(e.specs), gateRng)
	if err != nil {
		return nil, err
	}
	evaluator, err := alert.NewEvaluator(e.specs, e.opts.Bands)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	evaluator.Reset(now)

	states := make([]*sensor.State, len(e.specs))
	for i, s := range e.specs {
		states[i] = sensor.NewState(s)
	}

	return &run{
		startedAt: now,
		states:    states,
		walker:    sensor.NewWalker(walkRng),
		gate:      gate,
		meter:     power.NewMeter(),
		evaluator: evaluator,
		adaptive:  optimizer.NewAdaptive(),
		lastCfg:   e.policy.Config(),
		generated: make([]sensor.Reading, 0, len(e.specs)),
	}, nil
}

// tick advances the run by one step. For every sensor in spec order it
// applies the duty-cycle gate, generates a value, meters power, evaluates
// alerts and publishes. The optimization config is read once per tick.
func (e *Engine) tick(r *run) {
	began := time.Now()

	cfg := e.policy.Config()
	adaptive := e.policy.Adaptive()
	duty := r.effectiveDuty(cfg, adaptive)
	r.lastCfg = cfg

	r.tick++
	now := e.clock()
	dt := e.opts.TickInterval
	r.generated = r.generated[:0]

	for i, st := range r.states {
		d := r.gate.Decide(i, duty, cfg.AggregationFactor)
		st.Active = d.Active
		if !d.Active {
			r.meter.Record(st.Spec.Type, false, cfg.AggregationFactor, dt)
			continue
		}

		value := e.checkValue(st.Spec, r.walker.Next(st.Spec, st.LastValue))
		st.LastValue = value
		st.SamplesGenerated++
		if d.Transmit {
			st.SamplesTransmitted++
		}
		r.meter.Record(st.Spec.Type, true, cfg.AggregationFactor, dt)

		reading := sensor.Reading{
			SensorID:    st.Spec.ID,
			Type:        st.Spec.Type,
			Location:    st.Spec.Location,
			Unit:        st.Spec.Unit,
			Tick:        r.tick,
			Timestamp:   now,
			Value:       value,
			Transmitted: d.Transmit,
		}
		r.generated = append(r.generated, reading)
		e.observer.ReadingGenerated(reading)

		if reading.Transmitted {
			e.hub.Publish(hub.ReadingEvent(reading))
		}

		if a, changed := r.evaluator.Evaluate(st.Spec, reading); changed {
			e.logAlert(a)
			e.observer.AlertRaised(a)
			e.hub.Publish(hub.AlertEvent(a))
		}
	}

	if adaptive && r.adaptive.Observe(r.generated) {
		e.log.Infof("Sleep level changed: duty cycle capped at %.0f%%", r.adaptive.Cap()*100)
	}

	snap := e.publishSnapshot(r, duty)
	e.observer.TickCompleted(time.Since(began), snap)
}

// publishSnapshot swaps the reader snapshot and broadcasts the stats event.
func (e *Engine) publishSnapshot(r *run, duty float64) hub.StatsSnapshot {
	counters := make([]hub.SensorCounters, len(r.states))
	for i, st := range r.states {
		counters[i] = hub.SensorCounters{
			SensorID:    st.Spec.ID,
			Active:      st.Active,
			Generated:   st.SamplesGenerated,
			Transmitted: st.SamplesTransmitted,
		}
	}
	stats := r.meter.Stats()
	snap := hub.StatsSnapshot{
		Tick:               r.tick,
		Timestamp:          e.clock(),
		Power:              stats,
		Config:             r.lastCfg,
		EffectiveDutyCycle: duty,
		Sensors:            counters,
	}

	e.snap.Store(&snapshot{
		tick:   r.tick,
		power:  stats,
		alerts: r.evaluator.States(),
		sum:    r.evaluator.Summary(),
	})
	e.hub.Publish(hub.StatsEvent(snap))
	return snap
}

func (r *run) effectiveDuty(cfg optimizer.Config, adaptive bool) float64 {
	if adaptive {
		return r.adaptive.Effective(cfg.DutyCycle)
	}
	return cfg.DutyCycle
}

func (r *run) report(stoppedAt time.Time) RunReport {
	return RunReport{
		StartedAt: r.startedAt,
		StoppedAt: stoppedAt,
		Ticks:     r.tick,
		Power:     r.meter.Stats(),
		Config:    r.lastCfg,
		Alerts:    r.evaluator.Summary(),
	}
}

// checkValue enforces the clamping invariant. A violation is a bug: debug
// builds panic, release builds log it and clamp.
func (e *Engine) checkValue(spec sensor.Spec, v float64) float64 {
	if spec.Valid.Contains(v) {
		return v
	}
	msg := fmt.Sprintf("sensor %s produced %v outside valid range [%v, %v]", spec.ID, v, spec.Valid.Min, spec.Valid.Max)
	if debugAssertions {
		panic(msg)
	}
	e.log.Errorf("%s", msg)
	return spec.Valid.Clamp(v)
}

func (e *Engine) logAlert(a alert.Alert) {
	switch {
	case a.Cleared():
		e.log.Infof("Alert cleared: %s at %s (%.1f %s)", a.SensorID, a.Location, a.Value, a.Unit)
	case a.Severity >= alert.High:
		e.log.Warnf("ALERT %s: %s - %s at %s, current %.1f %s, threshold %.1f %s",
			a.Severity, a.Kind, a.SensorID, a.Location, a.Value, a.Unit, a.Threshold, a.Unit)
	default:
		e.log.Debugf("Alert %s: %s - %s at %s (%.1f %s)", a.Severity, a.Kind, a.SensorID, a.Location, a.Value, a.Unit)
	}
}
