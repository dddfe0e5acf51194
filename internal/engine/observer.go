package engine

import (
	"time"

	"homesim/internal/alert"
	"homesim/internal/hub"
	"homesim/internal/sensor"
)

// Observer receives engine notifications. Tick callbacks run on the
// simulation goroutine and must return quickly.
type Observer interface {
	ReadingGenerated(r sensor.Reading)
	AlertRaised(a alert.Alert)
	TickCompleted(elapsed time.Duration, snap hub.StatsSnapshot)
	StateChanged(s State)
	RunCompleted(r RunReport)
}

// NopObserver ignores everything. Embed it to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) ReadingGenerated(sensor.Reading) {}
func (NopObserver) AlertRaised(alert.Alert) {}
func (NopObserver) TickCompleted(time.Duration, hub.StatsSnapshot) {}
func (NopObserver) StateChanged(State) {}
func (NopObserver) RunCompleted(RunReport) {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) ReadingGenerated(r sensor.Reading) {
	for _, ob := range o {
		ob.ReadingGenerated(r)
	}
}

func (o Observers) AlertRaised(a alert.Alert) {
	for _, ob := range o {
		ob.AlertRaised(a)
	}
}

func (o Observers) TickCompleted(elapsed time.Duration, snap hub.StatsSnapshot) {
	for _, ob := range o {
		ob.TickCompleted(elapsed, snap)
	}
}

func (o Observers) StateChanged(s State) {
	for _, ob := range o {
		ob.StateChanged(s)
	}
}

func (o Observers) RunCompleted(r RunReport) {
	for _, ob := range o {
		ob.RunCompleted(r)
	}
}
