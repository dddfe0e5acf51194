// Package kafka writes simulation events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"homesim/internal/hub"
	"homesim/internal/logger"
)

// HeaderKind carries the event kind on every message.
const HeaderKind = "kind"

// StatsKey keys stats messages, which belong to no single sensor.
const StatsKey = "_stats"

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds producer settings.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Producer encodes hub events as JSON and writes them keyed by sensor id, so
// one sensor's events stay ordered within a partition.
type Producer struct {
	writer  MessageWriter
	topic   string
	brokers []string
	log     *logger.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

// New creates a producer backed by a kafka.Writer with a hash balancer.
func New(cfg Config, log *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	p := NewWithWriter(w, cfg.Topic, log)
	p.brokers = append([]string(nil), cfg.Brokers...)
	return p, nil
}

// NewWithWriter creates a producer over an existing writer.
func NewWithWriter(w MessageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		log:    log.With("Kafka"),
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	return p.topic
}

// Brokers returns the configured broker addresses.
func (p *Producer) Brokers() []string {
	return append([]string(nil), p.brokers...)
}

// Written returns the number of events written successfully.
func (p *Producer) Written() uint64 {
	return p.written.Load()
}

// Failed returns the number of events that could not be written.
func (p *Producer) Failed() uint64 {
	return p.failed.Load()
}

// Message converts an event into a Kafka message.
func Message(ev hub.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return kafka.Message{
		Key:     []byte(key(ev)),
		Value:   value,
		Time:    ev.Time,
		Headers: []kafka.Header{{Key: HeaderKind, Value: []byte(ev.Kind)}},
	}, nil
}

func key(ev hub.Event) string {
	switch {
	case ev.Reading != nil:
		return ev.Reading.SensorID
	case ev.Alert != nil:
		return ev.Alert.SensorID
	default:
		return StatsKey
	}
}

// Publish writes events in one batch.
func (p *Producer) Publish(ctx context.Context, events ...hub.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		m, err := Message(ev)
		if err != nil {
			p.failed.Add(1)
			p.log.Warnf("Skipping event: %v", err)
			continue
		}
		msgs = append(msgs, m)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.failed.Add(uint64(len(msgs)))
		return fmt.Errorf("kafka: write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.written.Add(uint64(len(msgs)))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
