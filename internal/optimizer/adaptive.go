package optimizer

import (
	"math"

	"homesim/internal/sensor"
)

// SleepLevels are the duty-cycle caps of progressive sleep, lightest first.
var SleepLevels = []float64{0.8, 0.6, 0.4, 0.2}

const (
	// SleepTimeout is the number of quiet ticks before sleep deepens one level.
	SleepTimeout = 5
	// ActivityThreshold is the relative change that counts as activity.
	ActivityThreshold = 0.05
)

// Adaptive tracks household activity and deepens the fleet-wide sleep level
// while nothing happens. Any activity returns to the lightest level.
// It is owned by the simulation loop.
type Adaptive struct {
	level int
	quiet int
	last  map[string]float64
}

// NewAdaptive returns a tracker at the lightest sleep level.
func NewAdaptive() *Adaptive {
	return &Adaptive{last: make(map[string]float64)}
}

// Cap returns the duty-cycle ceiling of the current level.
func (a *Adaptive) Cap() float64 {
	return SleepLevels[a.level]
}

// Level returns the index into SleepLevels.
func (a *Adaptive) Level() int {
	return a.level
}

// Effective returns the duty cycle after applying the sleep cap.
func (a *Adaptive) Effective(duty float64) float64 {
	return math.Min(duty, a.Cap())
}

// Observe feeds one tick's generated readings and returns true if the level changed.
func (a *Adaptive) Observe(readings []sensor.Reading) bool {
	active := false
	for _, r := range readings {
		if r.Type == sensor.Motion {
			if r.Value > 0 {
				active = true
			}
			continue
		}
		if prev, ok := a.last[r.SensorID]; ok && changed(prev, r.Value) {
			active = true
		}
		a.last[r.SensorID] = r.Value
	}

	if active {
		a.quiet = 0
		if a.level > 0 {
			a.level = 0
			return true
		}
		return false
	}

	a.quiet++
	if a.quiet < SleepTimeout {
		return false
	}
	a.quiet = 0
	if a.level < len(SleepLevels)-1 {
		a.level++
		return true
	}
	return false
}

func changed(prev, cur float64) bool {
	if prev == 0 {
		return cur != 0
	}
	return math.Abs((cur-prev)/prev) > ActivityThreshold
}
