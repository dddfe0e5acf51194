package mqtt

import (
	"encoding/json"
	"time"

	"homesim/internal/alert"
	"homesim/internal/hub"
	"homesim/internal/logger"
	"homesim/internal/sensor"
)

// Publisher maps simulation events onto MQTT topics
type Publisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewPublisher creates a new Publisher instance
func NewPublisher(sink Sink, log *logger.Logger) *Publisher {
	return &Publisher{
		sink:   sink,
		logger: log.With("MQTT Publisher"),
	}
}

type readingAttributes struct {
	Type        sensor.Type `json:"type"`
	Location    string      `json:"location"`
	Unit        string      `json:"unit"`
	Tick        uint64      `json:"tick"`
	Timestamp   time.Time   `json:"timestamp"`
	Transmitted bool        `json:"transmitted"`
}

// PublishReading publishes a reading's value to the sensor's state topic and
// its metadata to the attributes topic.
func (p *Publisher) PublishReading(r sensor.Reading) error {
	state, err := json.Marshal(r.Value)
	if err != nil {
		return err
	}

	if err := p.sink.PublishWithQoS(StateTopic(r.SensorID), 0, false, state); err != nil {
		p.logger.Errorf("Failed to publish sensor %s state: %v", r.SensorID, err)
		return err
	}

	attrs, err := json.Marshal(readingAttributes{
		Type:        r.Type,
		Location:    r.Location,
		Unit:        r.Unit,
		Tick:        r.Tick,
		Timestamp:   r.Timestamp,
		Transmitted: r.Transmitted,
	})
	if err == nil {
		if err := p.sink.PublishWithQoS(AttributesTopic(r.SensorID), 0, false, attrs); err != nil {
			p.logger.Debugf("Failed to publish sensor %s attributes: %v", r.SensorID, err)
		}
	}
	return nil
}

// PublishAlert publishes an alert with QoS 1. Alerts are retained so a new
// dashboard sees each sensor's current condition.
func (p *Publisher) PublishAlert(a alert.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := p.sink.PublishWithQoS(AlertTopic(a.SensorID), 1, true, payload); err != nil {
		p.logger.Errorf("Failed to publish alert for %s: %v", a.SensorID, err)
		return err
	}
	return nil
}

// PublishStats publishes a stats snapshot as one aggregated message.
func (p *Publisher) PublishStats(s hub.StatsSnapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.sink.PublishWithQoS(StatsTopic, 0, false, payload)
}

// PublishEvent routes a hub event to the matching publish method.
func (p *Publisher) PublishEvent(ev hub.Event) error {
	switch ev.Kind {
	case hub.KindReading:
		if ev.Reading != nil {
			return p.PublishReading(*ev.Reading)
		}
	case hub.KindAlert:
		if ev.Alert != nil {
			return p.PublishAlert(*ev.Alert)
		}
	case hub.KindStats:
		if ev.Stats != nil {
			return p.PublishStats(*ev.Stats)
		}
	}
	return nil
}

// PublishAvailability publishes the retained availability flag.
func (p *Publisher) PublishAvailability(online bool) error {
	payload := "offline"
	if online {
		payload = "online"
	}
	return p.sink.PublishWithQoS(AvailabilityTopic, 1, true, payload)
}
