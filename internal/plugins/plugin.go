// Package plugins defines the optional components that run beside the
// simulation engine, such as the MQTT and Kafka bridges.
package plugins

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"homesim/internal/config"
	"homesim/internal/engine"
	"homesim/internal/hub"
	"homesim/internal/kafka"
	"homesim/internal/logger"
	"homesim/internal/mqtt"
	"homesim/internal/storage"
)

// Plugin is the base interface for all plugins
type Plugin interface {
	// Name returns the unique plugin name (lowercase, no spaces)
	Name() string

	// Description returns the plugin description
	Description() string

	// Version returns the plugin version (semver)
	Version() string

	// DefaultEnabled is used until the plugin is explicitly enabled or disabled
	DefaultEnabled() bool

	// Init initializes the plugin
	// Called during application startup before Start
	Init(ctx context.Context, deps *PluginDependencies) error

	// Start starts the plugin
	// Called after successful initialization of all plugins
	Start(ctx context.Context) error

	// Stop stops the plugin
	// Called during application shutdown
	Stop(ctx context.Context) error

	// Routes returns the plugin's HTTP routes
	// Can be nil if the plugin doesn't add any routes
	Routes() []Route
}

// BackgroundTaskRunner is an optional interface for plugins that need to run background tasks
type BackgroundTaskRunner interface {
	// StartBackgroundTasks is called after Start. The context is cancelled
	// when the plugin should stop its background work.
	StartBackgroundTasks(ctx context.Context) error
}

// PluginDependencies contains dependencies available to plugins
type PluginDependencies struct {
	// Engine is the running simulation
	Engine *engine.Engine

	// Config is the application configuration
	Config *config.Config

	// Logger is the application logger
	Logger *logger.Logger

	// Storage is the storage for plugin state and settings
	Storage storage.Storage

	// MQTT services (nil if MQTT is not configured)
	MQTTClient    *mqtt.Client
	MQTTPublisher *mqtt.Publisher
	MQTTDiscovery *mqtt.DiscoveryManager

	// KafkaProducer is nil if Kafka is not configured
	KafkaProducer *kafka.Producer
}

// Route represents a plugin's HTTP route
type Route struct {
	// Method is the HTTP method (GET, POST, DELETE, PUT, PATCH)
	Method string

	// Path is the route path, by convention under /api/plugins/{plugin-name}/
	Path string

	// Handler is the request handler
	Handler http.HandlerFunc
}

// PluginInfo contains plugin information for API responses
type PluginInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Enabled     bool   `json:"enabled"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
}

// BasePlugin is a base structure that plugins can embed
type BasePlugin struct {
	name           string
	description    string
	version        string
	defaultEnabled bool
	deps           *PluginDependencies
	logger         *logger.Logger
}

// NewBasePlugin creates a new BasePlugin
func NewBasePlugin(name, description, version string, defaultEnabled bool) *BasePlugin {
	return &BasePlugin{
		name:           name,
		description:    description,
		version:        version,
		defaultEnabled: defaultEnabled,
	}
}

// Name implements Plugin.Name
func (p *BasePlugin) Name() string {
	return p.name
}

// Description implements Plugin.Description
func (p *BasePlugin) Description() string {
	return p.description
}

// Version implements Plugin.Version
func (p *BasePlugin) Version() string {
	return p.version
}

// DefaultEnabled implements Plugin.DefaultEnabled
func (p *BasePlugin) DefaultEnabled() bool {
	return p.defaultEnabled
}

// SetDependencies sets the plugin's dependencies
func (p *BasePlugin) SetDependencies(deps *PluginDependencies) {
	p.deps = deps
	p.logger = deps.Logger.With(p.name)
}

// Deps returns the plugin's dependencies
func (p *BasePlugin) Deps() *PluginDependencies {
	return p.deps
}

// Logger returns the plugin's logger, prefixed with the plugin name
func (p *BasePlugin) Logger() *logger.Logger {
	return p.logger
}

// WriteJSON is a shared helper function for writing JSON responses
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RunPeriodic runs task immediately and then every interval until ctx is cancelled.
func RunPeriodic(ctx context.Context, interval time.Duration, log *logger.Logger, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := task(ctx); err != nil {
		log.Warnf("Background task error: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Debugf("Background task stopped")
			return
		case <-ticker.C:
			if err := task(ctx); err != nil {
				log.Warnf("Background task error: %v", err)
			}
		}
	}
}

// RunOnce runs task once after delay, unless ctx is cancelled first.
func RunOnce(ctx context.Context, delay time.Duration, log *logger.Logger, task func(context.Context) error) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		log.Debugf("Delayed task cancelled")
	case <-timer.C:
		if err := task(ctx); err != nil {
			log.Warnf("Delayed task error: %v", err)
		}
	}
}

// Consume feeds every event of sub to handle until ctx is cancelled or the
// subscription is closed. Handler errors are logged and do not stop the loop.
func Consume(ctx context.Context, sub *hub.Subscription, log *logger.Logger, handle func(context.Context, hub.Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := handle(ctx, ev); err != nil {
				log.Debugf("Event %d (%s) not forwarded: %v", ev.Seq, ev.Kind, err)
			}
		}
	}
}
