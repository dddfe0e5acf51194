package sensor

import "math/rand"

// WalkProfile controls how a sensor's value drifts from tick to tick.
type WalkProfile struct {
	// Step is the largest regular change per tick.
	Step float64
	// Revert pulls the value back toward the initial value (fraction of the gap per tick).
	Revert float64
	// ExcursionProb is the chance that a tick uses ExcursionScale*Step instead of Step.
	ExcursionProb  float64
	ExcursionScale float64

	// Binary sensors flip between 0 and 1 with these probabilities.
	Binary   bool
	RiseProb float64
	FallProb float64
}

var walkProfiles = map[Type]WalkProfile{
	Temperature: {Step: 0.3, Revert: 0.05, ExcursionProb: 0.01, ExcursionScale: 15},
	Humidity:    {Step: 1.0, Revert: 0.05, ExcursionProb: 0.01, ExcursionScale: 12},
	AirQuality:  {Step: 2.0, Revert: 0.08, ExcursionProb: 0.02, ExcursionScale: 20},
	Light:       {Step: 25, Revert: 0.05, ExcursionProb: 0.01, ExcursionScale: 20},
	Sound:       {Step: 1.5, Revert: 0.1, ExcursionProb: 0.02, ExcursionScale: 12},
	Motion:      {Binary: true, RiseProb: 0.1, FallProb: 0.6},
}

// ProfileFor returns the walk profile for a sensor type.
func ProfileFor(t Type) WalkProfile {
	return walkProfiles[t]
}

// Walker generates the next value of a bounded random walk.
// It is not safe for concurrent use; the simulation loop owns it.
type Walker struct {
	rng *rand.Rand
}

// NewWalker creates a walker drawing from rng.
func NewWalker(rng *rand.Rand) *Walker {
	return &Walker{rng: rng}
}

// NewSeededWalker creates a walker with its own source seeded by seed.
func NewSeededWalker(seed int64) *Walker {
	return NewWalker(rand.New(rand.NewSource(seed)))
}

// Next returns the value following last. The result always lies inside spec.Valid.
func (w *Walker) Next(spec Spec, last float64) float64 {
	p := ProfileFor(spec.Type)

	if p.Binary {
		on := last >= 0.5
		if on {
			on = w.rng.Float64() >= p.FallProb
		} else {
			on = w.rng.Float64() < p.RiseProb
		}
		if on {
			return spec.Valid.Clamp(1)
		}
		return spec.Valid.Clamp(0)
	}

	step := p.Step
	if w.rng.Float64() < p.ExcursionProb {
		step *= p.ExcursionScale
	}
	noise := (w.rng.Float64()*2 - 1) * step
	next := last + p.Revert*(spec.Initial-last) + noise

	return spec.Valid.Clamp(next)
}
