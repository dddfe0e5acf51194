package engine

import (
	"time"
)

// Start begins a fresh run. Sensor and alert state are rebuilt from the
// specs and power statistics start at zero. Starting a running engine is a
// no-op that reports StatusAlreadyRunning.
func (e *Engine) Start() (Status, error) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.Status() != Stopped {
		return StatusAlreadyRunning, nil
	}

	r, err := e.newRun()
	if err != nil {
		return "", err
	}

	e.tickMu.Lock()
	e.run = r
	e.tickMu.Unlock()

	// History and the latest snapshot belong to the run.
	e.hub.Reset()
	e.publishSnapshot(r, r.effectiveDuty(r.lastCfg, e.policy.Adaptive()))

	e.setState(Running)
	e.log.Infof("Simulation started: %d sensors, tick %v, gate %s", len(e.specs), e.opts.TickInterval, e.opts.GateMode)

	if !e.opts.Manual {
		e.stopCh = make(chan struct{})
		e.done = make(chan struct{})
		go e.loop(r, e.stopCh, e.done)
	}
	return StatusStarted, nil
}

// Stop ends the current run after any in-flight tick completes. The run's
// report is kept (see LastRun) and statistics are reset. Stopping a stopped
// engine reports StatusNotRunning.
func (e *Engine) Stop() (Status, error) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.Status() != Running {
		return StatusNotRunning, nil
	}
	e.setState(Stopping)

	if e.stopCh != nil {
		close(e.stopCh)
		<-e.done
		e.stopCh, e.done = nil, nil
	}

	e.tickMu.Lock()
	r := e.run
	e.run = nil
	e.tickMu.Unlock()

	report := r.report(e.clock())
	e.lastRun.Store(&report)
	e.storeIdle()

	e.setState(Stopped)
	e.observer.RunCompleted(report)
	e.log.Infof("Simulation stopped after %d ticks: baseline %.4f Wh, optimized %.4f Wh, savings %.1f%%",
		report.Ticks, report.Power.BaselineWh, report.Power.OptimizedWh, report.Power.SavingsPct*100)
	return StatusStopped, nil
}

// Step runs n ticks synchronously. It is intended for Manual engines but is
// safe to call on a ticking one.
func (e *Engine) Step(n int) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.Status() != Running {
		return ErrNotRunning
	}
	for i := 0; i < n; i++ {
		e.tickMu.Lock()
		e.tick(e.run)
		e.tickMu.Unlock()
	}
	return nil
}

// loop ticks at the configured interval until stop is closed. A stop request
// is honored between ticks, never in the middle of one.
func (e *Engine) loop(r *run, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		select {
		case <-stop:
			return
		default:
		}

		e.tickMu.Lock()
		e.tick(r)
		e.tickMu.Unlock()
	}
}
