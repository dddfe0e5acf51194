package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"homesim/internal/sensor"
)

// State is the current severity of one sensor.
type State struct {
	SensorID string    `json:"sensorId"`
	Location string    `json:"location"`
	Severity Severity  `json:"severity"`
	Since    time.Time `json:"since"`
}

// Alert is emitted when a sensor's severity changes. A cleared alert has
// Severity None.
type Alert struct {
	ID        string      `json:"id"`
	SensorID  string      `json:"sensorId"`
	Location  string      `json:"location"`
	Type      sensor.Type `json:"type"`
	Kind      string      `json:"kind"`
	Severity  Severity    `json:"severity"`
	Previous  Severity    `json:"previous"`
	Direction Direction   `json:"direction,omitempty"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Unit      string      `json:"unit"`
	Tick      uint64      `json:"tick"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
}

// Cleared reports whether the alert retires an earlier one.
func (a Alert) Cleared() bool {
	return a.Severity == None
}

// Evaluator holds per-sensor alert state. It is owned by the simulation
// loop and is not safe for concurrent use.
type Evaluator struct {
	bands   Bands
	order   []string
	states  map[string]*State
	summary *Summary
}

// NewEvaluator creates state for every spec, all at None.
func NewEvaluator(specs []sensor.Spec, bands Bands) (*Evaluator, error) {
	if err := bands.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		bands:  bands,
		order:  make([]string, 0, len(specs)),
		states: make(map[string]*State, len(specs)),
	}
	for _, s := range specs {
		e.order = append(e.order, s.ID)
		e.states[s.ID] = &State{SensorID: s.ID, Location: s.Location}
	}
	e.Reset(time.Time{})
	return e, nil
}

// Reset returns every sensor to None as of now and clears the summary.
func (e *Evaluator) Reset(now time.Time) {
	for _, st := range e.states {
		st.Severity = None
		st.Since = now
	}
	e.summary = NewSummary()
}

// Bands returns the split points in use.
func (e *Evaluator) Bands() Bands {
	return e.bands
}

// Evaluate classifies r and returns an alert if the sensor's severity changed.
func (e *Evaluator) Evaluate(spec sensor.Spec, r sensor.Reading) (Alert, bool) {
	st, ok := e.states[spec.ID]
	if !ok {
		return Alert{}, false
	}

	c := e.bands.Classify(spec, r.Value)
	if c.Severity == st.Severity {
		return Alert{}, false
	}

	a := Alert{
		ID:        uuid.NewString(),
		SensorID:  spec.ID,
		Location:  spec.Location,
		Type:      spec.Type,
		Kind:      kind(spec.Type, c),
		Severity:  c.Severity,
		Previous:  st.Severity,
		Direction: c.Direction,
		Value:     r.Value,
		Threshold: c.Threshold,
		Unit:      spec.Unit,
		Tick:      r.Tick,
		Timestamp: r.Timestamp,
	}
	a.Message = message(a, c.Beyond)

	st.Severity = c.Severity
	st.Since = r.Timestamp
	e.summary.add(a)

	return a, true
}

// State returns the state of one sensor.
func (e *Evaluator) State(sensorID string) (State, bool) {
	st, ok := e.states[sensorID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// States returns a copy of every sensor's state in spec order.
func (e *Evaluator) States() []State {
	out := make([]State, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.states[id])
	}
	return out
}

// Summary returns a copy of the alert counts since the last reset.
func (e *Evaluator) Summary() Summary {
	return e.summary.clone()
}

// kind names the condition, e.g. "Critical High Temperature" or "Low Humidity".
func kind(t sensor.Type, c Classification) string {
	if c.Severity == None {
		return "Normal " + t.Title()
	}
	side := "High"
	if c.Direction == DirectionLow {
		side = "Low"
	}
	if c.Beyond {
		return "Critical " + side + " " + t.Title()
	}
	return side + " " + t.Title()
}

func message(a Alert, beyond bool) string {
	if a.Cleared() {
		return fmt.Sprintf("CLEARED: %s at %s back within normal range. Current reading: %.1f %s.",
			a.Type.Title(), a.Location, a.Value, a.Unit)
	}

	urgency, action := "WARNING ALERT", "Please check the system"
	if beyond {
		urgency, action = "CRITICAL ALERT", "IMMEDIATE ACTION REQUIRED"
	}
	return fmt.Sprintf("%s: %s detected at %s. Current reading: %.1f %s, Threshold: %.1f %s. %s.",
		urgency, a.Kind, a.Location, a.Value, a.Unit, a.Threshold, a.Unit, action)
}
