// Package hub broadcasts simulation events to any number of subscribers
// and keeps a bounded history for late joiners.
package hub

import (
	"time"

	"homesim/internal/alert"
	"homesim/internal/optimizer"
	"homesim/internal/power"
	"homesim/internal/sensor"
)

// Kind tags the payload carried by an Event.
type Kind string

const (
	KindReading Kind = "reading"
	KindAlert   Kind = "alert"
	KindStats   Kind = "stats"
)

// Event is a tagged union: exactly one of Reading, Alert or Stats is set,
// matching Kind.
type Event struct {
	Seq     uint64          `json:"seq"`
	Kind    Kind            `json:"kind"`
	Time    time.Time       `json:"time"`
	Reading *sensor.Reading `json:"reading,omitempty"`
	Alert   *alert.Alert    `json:"alert,omitempty"`
	Stats   *StatsSnapshot  `json:"stats,omitempty"`
}

// SensorCounters is the per-sensor part of a stats snapshot.
type SensorCounters struct {
	SensorID    string `json:"sensorId"`
	Active      bool   `json:"active"`
	Generated   int64  `json:"generated"`
	Transmitted int64  `json:"transmitted"`
}

// StatsSnapshot summarizes global state at the end of a tick.
type StatsSnapshot struct {
	Tick               uint64           `json:"tick"`
	Timestamp          time.Time        `json:"timestamp"`
	Power              power.Stats      `json:"power"`
	Config             optimizer.Config `json:"config"`
	EffectiveDutyCycle float64          `json:"effectiveDutyCycle"`
	Sensors            []SensorCounters `json:"sensors"`
}

// ReadingEvent wraps a reading.
func ReadingEvent(r sensor.Reading) Event {
	return Event{Kind: KindReading, Time: r.Timestamp, Reading: &r}
}

// AlertEvent wraps an alert.
func AlertEvent(a alert.Alert) Event {
	return Event{Kind: KindAlert, Time: a.Timestamp, Alert: &a}
}

// StatsEvent wraps a stats snapshot.
func StatsEvent(s StatsSnapshot) Event {
	return Event{Kind: KindStats, Time: s.Timestamp, Stats: &s}
}
