// Package alert classifies sensor readings into severity bands and emits
// edge-triggered alerts when a sensor's severity changes.
package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"homesim/internal/sensor"
)

// Severity is ordered: None < Low < Medium < High < Critical.
type Severity int

const (
	None Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

// Severities lists every severity in ascending order.
var Severities = []Severity{None, Low, Medium, High, Critical}

func (s Severity) String() string {
	if s < None || s > Critical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity converts a name to a Severity.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, v := range severityNames {
		if v == n {
			return Severity(i), nil
		}
	}
	return None, fmt.Errorf("unknown severity %q", name)
}

// MarshalJSON encodes the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Direction tells which side of the normal range a reading fell on.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// Bands sets the split points between severities.
//
// The warning band on each side is the gap between the normal bound and the
// critical bound. Its position is expressed as a fraction of its width:
// up to LowUpTo is Low, up to MediumUpTo is Medium, above that High.
// Past the critical bound, readings within CriticalMargin (again a fraction
// of the warning band width) are High; beyond that Critical.
type Bands struct {
	LowUpTo        float64 `json:"lowUpTo"`
	MediumUpTo     float64 `json:"mediumUpTo"`
	CriticalMargin float64 `json:"criticalMargin"`
}

// DefaultBands returns the standard split points.
func DefaultBands() Bands {
	return Bands{LowUpTo: 0.25, MediumUpTo: 0.5, CriticalMargin: 0.5}
}

// Validate checks 0 < LowUpTo <= MediumUpTo <= 1 and CriticalMargin >= 0.
func (b Bands) Validate() error {
	if !(b.LowUpTo > 0 && b.LowUpTo <= b.MediumUpTo && b.MediumUpTo <= 1) {
		return fmt.Errorf("severity bands: need 0 < low (%v) <= medium (%v) <= 1", b.LowUpTo, b.MediumUpTo)
	}
	if !(b.CriticalMargin >= 0) {
		return fmt.Errorf("severity bands: critical margin %v must be >= 0", b.CriticalMargin)
	}
	return nil
}

// Classification is the result of placing a value in its sensor's bands.
type Classification struct {
	Severity  Severity
	Direction Direction
	// Threshold is the bound that was crossed: the normal bound inside the
	// critical range, the critical bound outside it.
	Threshold float64
	// Beyond is set when the value is outside the critical range.
	Beyond bool
}

// Classify places v relative to the spec's normal and critical ranges.
// Severity never decreases as v moves away from the normal range.
func (b Bands) Classify(spec sensor.Spec, v float64) Classification {
	if spec.Normal.Contains(v) {
		return Classification{Severity: None}
	}

	var (
		dir      Direction
		normal   float64
		critical float64
		distance float64 // how far past the normal bound
	)
	if v > spec.Normal.Max {
		dir, normal, critical = DirectionHigh, spec.Normal.Max, spec.Critical.Max
		distance = v - normal
	} else {
		dir, normal, critical = DirectionLow, spec.Normal.Min, spec.Critical.Min
		distance = normal - v
	}
	width := abs(critical - normal)

	if distance <= width {
		// Inside the critical range, so width > 0.
		frac := distance / width
		sev := High
		switch {
		case frac <= b.LowUpTo:
			sev = Low
		case frac <= b.MediumUpTo:
			sev = Medium
		}
		return Classification{Severity: sev, Direction: dir, Threshold: normal}
	}

	excess := distance - width
	if width > 0 && excess <= b.CriticalMargin*width {
		return Classification{Severity: High, Direction: dir, Threshold: critical, Beyond: true}
	}
	return Classification{Severity: Critical, Direction: dir, Threshold: critical, Beyond: true}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
