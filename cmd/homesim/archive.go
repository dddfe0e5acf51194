package main

import (
	"time"

	"homesim/internal/engine"
	"homesim/internal/logger"
)

type runStore interface {
	SaveRun(savedAt time.Time, report interface{}) error
	TrimRuns(maxRuns int) error
}

// runArchiver persists every completed run report and keeps the archive
// bounded.
type runArchiver struct {
	engine.NopObserver

	store   runStore
	maxRuns int
	log     *logger.Logger
}

func newRunArchiver(store runStore, maxRuns int, log *logger.Logger) *runArchiver {
	return &runArchiver{store: store, maxRuns: maxRuns, log: log.With("Runs")}
}

func (a *runArchiver) RunCompleted(r engine.RunReport) {
	if err := a.store.SaveRun(r.StoppedAt, r); err != nil {
		a.log.Errorf("Failed to save run report: %v", err)
		return
	}
	if a.maxRuns > 0 {
		if err := a.store.TrimRuns(a.maxRuns); err != nil {
			a.log.Warnf("Failed to trim run archive: %v", err)
		}
	}
	a.log.Infof("Run archived: %d ticks, %.1f%% energy saved", r.Ticks, r.Power.SavingsPct*100)
}
