package optimizer

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// GateMode selects how duty-cycle and aggregation decisions are made.
type GateMode string

const (
	// GateRandom makes an independent Bernoulli draw per sensor per tick.
	GateRandom GateMode = "random"
	// GateScheduled spreads active and transmitted ticks evenly using per-sensor accumulators.
	GateScheduled GateMode = "scheduled"
)

// ParseGateMode converts a configuration string to a GateMode.
func ParseGateMode(s string) (GateMode, error) {
	switch GateMode(strings.ToLower(strings.TrimSpace(s))) {
	case GateRandom, "":
		return GateRandom, nil
	case GateScheduled:
		return GateScheduled, nil
	default:
		return "", &ValidationError{Field: "gateMode", Value: s, Reason: "must be random or scheduled"}
	}
}

// Decision is the outcome of both gates for one sensor on one tick.
type Decision struct {
	Active   bool
	Transmit bool
}

// Gate decides, per tick and per sensor slot, whether a sample is generated
// and whether it is transmitted.
type Gate interface {
	Decide(slot int, duty, aggregation float64) Decision
}

// NewGate builds a gate for n sensors.
func NewGate(mode GateMode, n int, rng *rand.Rand) (Gate, error) {
	switch mode {
	case GateRandom, "":
		return NewRandomGate(rng), nil
	case GateScheduled:
		return NewScheduledGate(n), nil
	default:
		return nil, fmt.Errorf("unknown gate mode %q", mode)
	}
}

// RandomGate draws two uniforms per call. Both are always drawn, so the
// random sequence does not depend on the configured fractions.
type RandomGate struct {
	rng *rand.Rand
}

// NewRandomGate creates a gate drawing from rng.
func NewRandomGate(rng *rand.Rand) *RandomGate {
	return &RandomGate{rng: rng}
}

// Decide implements Gate.
func (g *RandomGate) Decide(_ int, duty, aggregation float64) Decision {
	u1 := g.rng.Float64()
	u2 := g.rng.Float64()
	active := u1 < duty
	return Decision{Active: active, Transmit: active && u2 < aggregation}
}

// ScheduledGate keeps a fractional accumulator per sensor. Over n ticks the
// active count differs from n*duty by less than one. Initial phases are
// staggered so sensors do not wake in lockstep.
type ScheduledGate struct {
	duty        []float64
	aggregation []float64
}

const goldenRatioConjugate = 0.6180339887498949

// NewScheduledGate creates accumulators for n sensors.
func NewScheduledGate(n int) *ScheduledGate {
	g := &ScheduledGate{
		duty:        make([]float64, n),
		aggregation: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		phase := math.Mod(float64(i)*goldenRatioConjugate, 1)
		g.duty[i] = phase
		g.aggregation[i] = phase
	}
	return g
}

// Decide implements Gate.
func (g *ScheduledGate) Decide(slot int, duty, aggregation float64) Decision {
	var d Decision
	g.duty[slot] += duty
	if g.duty[slot] >= 1 {
		g.duty[slot] -= 1
		d.Active = true
	}
	if !d.Active {
		return d
	}
	g.aggregation[slot] += aggregation
	if g.aggregation[slot] >= 1 {
		g.aggregation[slot] -= 1
		d.Transmit = true
	}
	return d
}
