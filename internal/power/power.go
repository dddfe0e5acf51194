// Package power models the energy drawn by simulated sensors.
package power

import (
	"time"

	"homesim/internal/sensor"
)

// Profile is the per-operation power draw of a sensor model, in milliwatts.
type Profile struct {
	Model           string  `json:"model"`
	SensingMW       float64 `json:"sensingMw"`
	CommunicationMW float64 `json:"communicationMw"`
	ProcessingMW    float64 `json:"processingMw"`
	SleepMW         float64 `json:"sleepMw"`
}

var profiles = map[sensor.Type]Profile{
	sensor.Temperature: {Model: "DHT22", SensingMW: 1.5, CommunicationMW: 15.0, ProcessingMW: 0.8, SleepMW: 0.05},
	sensor.Humidity:    {Model: "DHT22", SensingMW: 1.5, CommunicationMW: 15.0, ProcessingMW: 0.8, SleepMW: 0.05},
	sensor.Light:       {Model: "LDR", SensingMW: 0.5, CommunicationMW: 12.0, ProcessingMW: 0.3, SleepMW: 0.02},
	sensor.AirQuality:  {Model: "AirQuality", SensingMW: 2.5, CommunicationMW: 20.0, ProcessingMW: 1.2, SleepMW: 0.1},
	sensor.Sound:       {Model: "Noise", SensingMW: 1.8, CommunicationMW: 16.0, ProcessingMW: 0.9, SleepMW: 0.06},
	sensor.Motion:      {Model: "PIR", SensingMW: 0.8, CommunicationMW: 10.0, ProcessingMW: 0.5, SleepMW: 0.03},
}

// ProfileFor returns the power profile of a sensor type.
func ProfileFor(t sensor.Type) Profile {
	return profiles[t]
}

// Instantaneous returns the draw in watts for one tick.
// Inactive sensors draw nothing. Communication cost scales with aggregation.
func Instantaneous(p Profile, active bool, aggregation float64) float64 {
	if !active {
		return 0
	}
	return (p.SensingMW + p.ProcessingMW + p.CommunicationMW*aggregation) / 1000
}

// Baseline is the draw of an always-on sensor that transmits every sample.
func Baseline(p Profile) float64 {
	return Instantaneous(p, true, 1)
}

// Stats is the cumulative energy account of a run.
type Stats struct {
	BaselineWh      float64 `json:"baselineWh"`
	OptimizedWh     float64 `json:"optimizedWh"`
	SavingsPct      float64 `json:"savingsPct"`
	SensingWh       float64 `json:"sensingWh"`
	CommunicationWh float64 `json:"communicationWh"`
	ProcessingWh    float64 `json:"processingWh"`
}

// Savings returns 1 - optimized/baseline, or 0 when baseline is zero.
func Savings(baselineWh, optimizedWh float64) float64 {
	if baselineWh <= 0 {
		return 0
	}
	s := 1 - optimizedWh/baselineWh
	if s < 0 {
		return 0
	}
	return s
}

// Meter integrates energy over ticks. It is owned by the simulation loop
// and is not safe for concurrent use.
type Meter struct {
	stats Stats
}

// NewMeter returns a zeroed meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Record accounts one sensor for one tick of length dt.
func (m *Meter) Record(t sensor.Type, active bool, aggregation float64, dt time.Duration) {
	p := ProfileFor(t)
	hours := dt.Hours()

	m.stats.BaselineWh += Baseline(p) * hours
	m.stats.OptimizedWh += Instantaneous(p, active, aggregation) * hours

	if active {
		m.stats.SensingWh += p.SensingMW / 1000 * hours
		m.stats.ProcessingWh += p.ProcessingMW / 1000 * hours
		m.stats.CommunicationWh += p.CommunicationMW * aggregation / 1000 * hours
	}
}

// Stats returns the current totals.
func (m *Meter) Stats() Stats {
	s := m.stats
	s.SavingsPct = Savings(s.BaselineWh, s.OptimizedWh)
	return s
}

// Reset zeroes the meter.
func (m *Meter) Reset() {
	m.stats = Stats{}
}
