// Package kafkabridge streams simulation events into a Kafka topic.
package kafkabridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/kafka"
	"homesim/internal/plugins"
)

const (
	// PluginName is the registry and storage name of the bridge
	PluginName = "kafka"

	batchSize    = 64
	writeTimeout = 10 * time.Second
)

// Plugin is the Kafka bridge plugin
type Plugin struct {
	*plugins.BasePlugin

	engine   *engine.Engine
	producer *kafka.Producer

	mu     sync.Mutex
	sub    *hub.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Kafka bridge plugin
func New() *Plugin {
	return &Plugin{
		BasePlugin: plugins.NewBasePlugin(
			PluginName,
			"Streams sensor readings, alerts and stats to a Kafka topic",
			"1.0.0",
			true,
		),
	}
}

// Init implements plugins.Plugin.Init
func (p *Plugin) Init(ctx context.Context, deps *plugins.PluginDependencies) error {
	p.SetDependencies(deps)

	if deps.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if deps.KafkaProducer == nil {
		return fmt.Errorf("kafka producer is not configured")
	}
	p.engine = deps.Engine
	p.producer = deps.KafkaProducer
	return nil
}

// Start subscribes to the engine and begins streaming
func (p *Plugin) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	sub := p.engine.Subscribe()

	p.mu.Lock()
	p.sub = sub
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.stream(runCtx, sub)
	}()

	p.Logger().Infof("Streaming events to topic %s", p.producer.Topic())
	return nil
}

// Stop stops streaming and flushes the producer
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, sub := p.cancel, p.sub
	p.cancel, p.sub = nil, nil
	p.mu.Unlock()

	if sub != nil {
		p.engine.Unsubscribe(sub)
	}
	// The stream loop drains the closed subscription before exiting.
	p.wg.Wait()
	if cancel != nil {
		cancel()
	}
	return nil
}

// stream batches whatever is already queued behind each event, so bursts
// from one tick go out in a single write.
func (p *Plugin) stream(ctx context.Context, sub *hub.Subscription) {
	batch := make([]hub.Event, 0, batchSize)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			batch = append(batch[:0], ev)
		drain:
			for len(batch) < batchSize {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						break drain
					}
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			p.flush(ctx, batch)
		}
	}
}

func (p *Plugin) flush(ctx context.Context, batch []hub.Event) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.producer.Publish(wctx, batch...); err != nil {
		p.Logger().Warnf("Failed to write %d events: %v", len(batch), err)
	}
}

// Status represents Kafka bridge status
type Status struct {
	Topic   string   `json:"topic"`
	Brokers []string `json:"brokers"`
	Written uint64   `json:"written"`
	Failed  uint64   `json:"failed"`
	Dropped uint64   `json:"dropped"`
}

func (p *Plugin) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Topic:   p.producer.Topic(),
		Brokers: p.producer.Brokers(),
		Written: p.producer.Written(),
		Failed:  p.producer.Failed(),
	}
	p.mu.Lock()
	if p.sub != nil {
		status.Dropped = p.sub.Dropped()
	}
	p.mu.Unlock()

	plugins.WriteJSON(w, http.StatusOK, status)
}

// Routes implements plugins.Plugin.Routes
func (p *Plugin) Routes() []plugins.Route {
	return []plugins.Route{
		{Method: http.MethodGet, Path: "/api/plugins/kafka/status", Handler: p.handleStatus},
	}
}
