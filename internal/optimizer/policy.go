// Package optimizer holds the energy-optimization settings and the gates
// that decide which samples are generated and transmitted.
package optimizer

import (
	"fmt"
	"math"
	"sync"
)

// Config is the optimization setting in effect for a tick.
type Config struct {
	DutyCycle         float64 `json:"dutyCycle"`
	AggregationFactor float64 `json:"aggregationFactor"`
}

// DefaultConfig disables all optimization.
func DefaultConfig() Config {
	return Config{DutyCycle: 1, AggregationFactor: 1}
}

// Validate checks both fractions.
func (c Config) Validate() error {
	if err := validateFraction("dutyCycle", c.DutyCycle); err != nil {
		return err
	}
	return validateFraction("aggregationFactor", c.AggregationFactor)
}

// ValidationError reports rejected configuration input.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
	// Err is an optional sentinel for errors.Is.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validateFraction(field string, v float64) error {
	if math.IsNaN(v) || v <= 0 || v > 1 {
		return &ValidationError{Field: field, Value: v, Reason: "must be in (0, 1]"}
	}
	return nil
}

// Policy is the shared, mutex-guarded optimization configuration.
// Writers replace whole values; readers always see a consistent Config.
type Policy struct {
	mu       sync.RWMutex
	cfg      Config
	adaptive bool
}

// NewPolicy creates a policy with the given initial config.
func NewPolicy(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

// Config returns a snapshot of the current settings.
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Set replaces the whole config.
func (p *Policy) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// SetDutyCycle changes the duty cycle. Out-of-range input is rejected.
func (p *Policy) SetDutyCycle(v float64) error {
	if err := validateFraction("dutyCycle", v); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg.DutyCycle = v
	p.mu.Unlock()
	return nil
}

// SetAggregationFactor changes the aggregation factor. Out-of-range input is rejected.
func (p *Policy) SetAggregationFactor(v float64) error {
	if err := validateFraction("aggregationFactor", v); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg.AggregationFactor = v
	p.mu.Unlock()
	return nil
}

// Adaptive reports whether progressive sleep is enabled.
func (p *Policy) Adaptive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.adaptive
}

// SetAdaptive enables or disables progressive sleep.
func (p *Policy) SetAdaptive(enabled bool) {
	p.mu.Lock()
	p.adaptive = enabled
	p.mu.Unlock()
}
