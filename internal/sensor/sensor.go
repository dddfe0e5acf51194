// Package sensor describes simulated smart-home sensors and generates their readings.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Type is the kind of physical quantity a sensor measures.
type Type string

const (
	Temperature Type = "temperature"
	Humidity    Type = "humidity"
	AirQuality  Type = "air_quality"
	Light       Type = "light"
	Motion      Type = "motion"
	Sound       Type = "sound"
)

// Types lists every supported sensor type.
var Types = []Type{Temperature, Humidity, AirQuality, Light, Motion, Sound}

// Valid reports whether t is a known sensor type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Title returns a human-readable name, e.g. "Air Quality".
func (t Type) Title() string {
	switch t {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	case AirQuality:
		return "Air Quality"
	case Light:
		return "Light"
	case Motion:
		return "Motion"
	case Sound:
		return "Sound"
	default:
		return string(t)
	}
}

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Within reports whether r is a subset of outer.
func (r Range) Within(outer Range) bool {
	return r.Min >= outer.Min && r.Max <= outer.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Width returns Max - Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

func (r Range) valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && r.Min <= r.Max
}

// Spec is the immutable description of one sensor.
type Spec struct {
	ID       string  `json:"id"`
	Type     Type    `json:"type"`
	Location string  `json:"location"`
	Unit     string  `json:"unit"`
	Valid    Range   `json:"validRange"`
	Normal   Range   `json:"normalRange"`
	Critical Range   `json:"criticalRange"`
	Initial  float64 `json:"initial"`
}

// ErrInvalidSpec is wrapped by every error returned from Spec.Validate.
var ErrInvalidSpec = errors.New("invalid sensor spec")

// Validate checks that normal ⊆ critical ⊆ valid and that the initial value is valid.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSpec)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidSpec, s.ID, s.Type)
	}
	for name, r := range map[string]Range{"valid": s.Valid, "normal": s.Normal, "critical": s.Critical} {
		if !r.valid() {
			return fmt.Errorf("%w: %s: %s range [%v, %v] is empty", ErrInvalidSpec, s.ID, name, r.Min, r.Max)
		}
	}
	if !s.Normal.Within(s.Critical) {
		return fmt.Errorf("%w: %s: normal range not inside critical range", ErrInvalidSpec, s.ID)
	}
	if !s.Critical.Within(s.Valid) {
		return fmt.Errorf("%w: %s: critical range not inside valid range", ErrInvalidSpec, s.ID)
	}
	if !s.Valid.Contains(s.Initial) {
		return fmt.Errorf("%w: %s: initial value %v outside valid range", ErrInvalidSpec, s.ID, s.Initial)
	}
	return nil
}

// State is the mutable per-run state of a sensor. It is owned by the simulation loop.
type State struct {
	Spec               Spec
	LastValue          float64
	Active             bool
	SamplesGenerated   int64
	SamplesTransmitted int64
}

// NewState returns a fresh state starting at the spec's initial value.
func NewState(spec Spec) *State {
	return &State{Spec: spec, LastValue: spec.Initial}
}

// Reading is one generated sample. It is never mutated after creation.
type Reading struct {
	SensorID    string    `json:"sensorId"`
	Type        Type      `json:"type"`
	Location    string    `json:"location"`
	Unit        string    `json:"unit"`
	Tick        uint64    `json:"tick"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Transmitted bool      `json:"transmitted"`
}
