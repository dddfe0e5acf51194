// Package mqttbridge forwards simulation events to an MQTT broker and keeps
// the Home Assistant discovery configs in sync with the sensor fleet.
package mqttbridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/mqtt"
	"homesim/internal/plugins"
)

const (
	// PluginName is the registry and storage name of the bridge
	PluginName = "mqtt"

	settingPublishReadings = "publishReadings"
	settingPublishStats    = "publishStats"

	discoveryDelay    = 2 * time.Second
	heartbeatInterval = 5 * time.Minute
	model             = "homesim virtual sensor"
)

// Plugin is the MQTT bridge plugin
type Plugin struct {
	*plugins.BasePlugin

	engine    *engine.Engine
	client    *mqtt.Client
	publisher *mqtt.Publisher
	discovery *mqtt.DiscoveryManager
	configs   []*mqtt.SensorConfig

	mu              sync.RWMutex
	publishReadings bool
	publishStats    bool

	sub    *hub.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// New creates a new MQTT bridge plugin
func New() *Plugin {
	return &Plugin{
		BasePlugin: plugins.NewBasePlugin(
			PluginName,
			"Publishes sensor readings, alerts and stats to MQTT with Home Assistant discovery",
			"1.0.0",
			true,
		),
		publishReadings: true,
		publishStats:    true,
	}
}

// Init implements plugins.Plugin.Init
func (p *Plugin) Init(ctx context.Context, deps *plugins.PluginDependencies) error {
	p.SetDependencies(deps)

	if deps.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if deps.MQTTPublisher == nil {
		return fmt.Errorf("MQTT is not configured")
	}

	p.engine = deps.Engine
	p.client = deps.MQTTClient
	p.publisher = deps.MQTTPublisher
	p.discovery = deps.MQTTDiscovery
	p.configs = mqtt.ConfigsFor(deps.Engine.Sensors(), model)

	if deps.Storage != nil {
		p.mu.Lock()
		if v, err := deps.Storage.GetBool(p.Name(), settingPublishReadings); err == nil {
			p.publishReadings = v
		}
		if v, err := deps.Storage.GetBool(p.Name(), settingPublishStats); err == nil {
			p.publishStats = v
		}
		p.mu.Unlock()
	}

	p.Logger().Infof("Initialized for %d sensors", len(p.configs))
	return nil
}

// Start connects to the broker, announces availability and begins forwarding
func (p *Plugin) Start(ctx context.Context) error {
	if p.client != nil && !p.client.IsConnected() {
		if err := p.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	}

	if err := p.publisher.PublishAvailability(true); err != nil {
		p.Logger().Warnf("Failed to publish availability: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := p.engine.Subscribe()
	p.mu.Lock()
	p.sub = sub
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		plugins.Consume(runCtx, sub, p.Logger(), p.forward)
	}()

	if p.discovery != nil && p.discovery.ShouldRepublishDiscovery(len(p.configs)) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			plugins.RunOnce(runCtx, discoveryDelay, p.Logger(), p.publishDiscovery)
		}()
	}

	p.Logger().Infof("Forwarding events to MQTT")
	return nil
}

// StartBackgroundTasks keeps the retained availability flag fresh
func (p *Plugin) StartBackgroundTasks(ctx context.Context) error {
	go plugins.RunPeriodic(ctx, heartbeatInterval, p.Logger(), func(context.Context) error {
		if p.discovery != nil && p.discovery.ShouldRepublishDiscovery(len(p.configs)) {
			if err := p.discovery.PublishMultipleDiscoveryConfigs(p.configs); err != nil {
				return err
			}
		}
		return p.publisher.PublishAvailability(true)
	})
	return nil
}

// Stop stops forwarding and marks the simulator offline
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, sub := p.cancel, p.sub
	p.cancel, p.sub = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		p.engine.Unsubscribe(sub)
	}
	p.wg.Wait()

	if p.publisher != nil {
		if err := p.publisher.PublishAvailability(false); err != nil {
			p.Logger().Debugf("Failed to publish offline availability: %v", err)
		}
	}
	if p.client != nil {
		p.client.Disconnect()
	}
	return nil
}

func (p *Plugin) publishDiscovery(context.Context) error {
	return p.discovery.PublishMultipleDiscoveryConfigs(p.configs)
}

func (p *Plugin) forward(_ context.Context, ev hub.Event) error {
	p.mu.RLock()
	readings, stats := p.publishReadings, p.publishStats
	p.mu.RUnlock()

	switch ev.Kind {
	case hub.KindReading:
		if !readings {
			return nil
		}
	case hub.KindStats:
		if !stats {
			return nil
		}
	}

	if err := p.publisher.PublishEvent(ev); err != nil {
		p.failed.Add(1)
		return err
	}
	p.forwarded.Add(1)
	return nil
}

// Routes implements plugins.Plugin.Routes
func (p *Plugin) Routes() []plugins.Route {
	return []plugins.Route{
		{Method: http.MethodGet, Path: "/api/plugins/mqtt/status", Handler: p.handleStatus},
		{Method: http.MethodGet, Path: "/api/plugins/mqtt/settings", Handler: p.handleGetSettings},
		{Method: http.MethodPost, Path: "/api/plugins/mqtt/settings", Handler: p.handleUpdateSettings},
		{Method: http.MethodPost, Path: "/api/plugins/mqtt/discovery", Handler: p.handleRepublishDiscovery},
	}
}
