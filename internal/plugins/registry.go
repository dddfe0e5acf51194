package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"homesim/internal/storage"
)

// Status is the lifecycle state of a registered plugin.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

// ErrPluginNotFound is returned for unknown plugin names.
var ErrPluginNotFound = errors.New("plugin not found")

// Registry is the registry of all plugins
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string // registration order
	status  map[string]Status
	errs    map[string]error
	deps    *PluginDependencies
	bgCtx   context.Context
}

// NewRegistry creates a new plugin registry
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		status:  make(map[string]Status),
		errs:    make(map[string]error),
	}
}

// SetDependencies sets the dependencies for all plugins
func (r *Registry) SetDependencies(deps *PluginDependencies) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps = deps
}

// Deps returns the plugin dependencies
func (r *Registry) Deps() *PluginDependencies {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deps
}

// Register registers a plugin in the registry
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %s is already registered", name)
	}

	r.plugins[name] = p
	r.order = append(r.order, name)
	r.status[name] = StatusStopped
	return nil
}

// Get returns a plugin by name
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// All returns all registered plugins in registration order
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// IsEnabled reports the stored enabled flag, falling back to the plugin's default.
func (r *Registry) IsEnabled(p Plugin) bool {
	deps := r.Deps()
	if deps == nil || deps.Storage == nil {
		return p.DefaultEnabled()
	}
	enabled, err := deps.Storage.IsPluginEnabled(p.Name())
	if err != nil {
		if !errors.Is(err, storage.ErrPluginNotFound) {
			deps.Logger.Warnf("Failed to read plugin %s state: %v", p.Name(), err)
		}
		return p.DefaultEnabled()
	}
	return enabled
}

// Enabled returns only enabled plugins
func (r *Registry) Enabled() []Plugin {
	all := r.All()
	result := make([]Plugin, 0, len(all))
	for _, p := range all {
		if r.IsEnabled(p) {
			result = append(result, p)
		}
	}
	return result
}

// Running returns the plugins that are currently running, in registration order
func (r *Registry) Running() []Plugin {
	all := r.All()
	result := make([]Plugin, 0, len(all))
	for _, p := range all {
		if r.Status(p.Name()) == StatusRunning {
			result = append(result, p)
		}
	}
	return result
}

// Count returns the total number of registered plugins
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Status returns the lifecycle state of a plugin
func (r *Registry) Status(name string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status[name]
}

func (r *Registry) setStatus(name string, s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[name] = s
	if err != nil {
		r.errs[name] = err
	} else {
		delete(r.errs, name)
	}
}

// InitAll initializes all enabled plugins
// Rolls back already initialized plugins on error
func (r *Registry) InitAll(ctx context.Context, deps *PluginDependencies) error {
	r.SetDependencies(deps)

	enabled := r.Enabled()
	initialized := make([]Plugin, 0, len(enabled))

	for _, p := range enabled {
		if err := p.Init(ctx, deps); err != nil {
			for i := len(initialized) - 1; i >= 0; i-- {
				if stopErr := initialized[i].Stop(ctx); stopErr != nil {
					deps.Logger.Warnf("Error stopping plugin %s during rollback: %v", initialized[i].Name(), stopErr)
				}
			}
			r.setStatus(p.Name(), StatusError, err)
			return fmt.Errorf("failed to init plugin %s: %w", p.Name(), err)
		}
		initialized = append(initialized, p)
	}

	return nil
}

// StartAll starts all enabled plugins
// Rolls back already started plugins on error
func (r *Registry) StartAll(ctx context.Context) error {
	enabled := r.Enabled()
	started := make([]Plugin, 0, len(enabled))

	for _, p := range enabled {
		if err := p.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
				r.setStatus(started[i].Name(), StatusStopped, nil)
			}
			r.setStatus(p.Name(), StatusError, err)
			return fmt.Errorf("failed to start plugin %s: %w", p.Name(), err)
		}
		r.setStatus(p.Name(), StatusRunning, nil)
		started = append(started, p)
	}

	return nil
}

// StartBackgroundTasksAll starts background tasks for running plugins that
// implement BackgroundTaskRunner. Cancelling ctx stops them.
func (r *Registry) StartBackgroundTasksAll(ctx context.Context) error {
	r.mu.Lock()
	r.bgCtx = ctx
	r.mu.Unlock()

	for _, p := range r.Running() {
		if runner, ok := p.(BackgroundTaskRunner); ok {
			if err := runner.StartBackgroundTasks(ctx); err != nil {
				return fmt.Errorf("failed to start background tasks for plugin %s: %w", p.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops all running plugins in reverse order
func (r *Registry) StopAll(ctx context.Context) error {
	running := r.Running()

	var lastErr error
	for i := len(running) - 1; i >= 0; i-- {
		p := running[i]
		if err := p.Stop(ctx); err != nil {
			lastErr = err
			r.setStatus(p.Name(), StatusError, err)
			continue
		}
		r.setStatus(p.Name(), StatusStopped, nil)
	}
	return lastErr
}

// GetInfo returns information about a plugin
func (r *Registry) GetInfo(name string) (*PluginInfo, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return r.info(p), nil
}

// ListInfo returns information about all plugins
func (r *Registry) ListInfo() []*PluginInfo {
	all := r.All()
	result := make([]*PluginInfo, 0, len(all))
	for _, p := range all {
		result = append(result, r.info(p))
	}
	return result
}

func (r *Registry) info(p Plugin) *PluginInfo {
	enabled := r.IsEnabled(p)

	r.mu.RLock()
	status := r.status[p.Name()]
	err := r.errs[p.Name()]
	r.mu.RUnlock()

	if !enabled && status == StatusStopped {
		status = StatusDisabled
	}
	info := &PluginInfo{
		Name:        p.Name(),
		Description: p.Description(),
		Version:     p.Version(),
		Enabled:     enabled,
		Status:      status,
	}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}

// EnablePlugin persists the enabled flag, then initializes and starts the plugin
func (r *Registry) EnablePlugin(ctx context.Context, name string) error {
	p, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	deps := r.Deps()
	if deps != nil && deps.Storage != nil {
		if err := deps.Storage.EnablePlugin(name); err != nil {
			return fmt.Errorf("failed to store plugin state: %w", err)
		}
	}

	if r.Status(name) == StatusRunning {
		return nil
	}

	if deps != nil {
		if err := p.Init(ctx, deps); err != nil {
			r.setStatus(name, StatusError, err)
			return fmt.Errorf("failed to init plugin %s: %w", name, err)
		}
	}
	if err := p.Start(ctx); err != nil {
		r.setStatus(name, StatusError, err)
		return fmt.Errorf("failed to start plugin %s: %w", name, err)
	}
	r.setStatus(name, StatusRunning, nil)

	r.mu.RLock()
	bgCtx := r.bgCtx
	r.mu.RUnlock()
	if runner, ok := p.(BackgroundTaskRunner); ok && bgCtx != nil {
		if err := runner.StartBackgroundTasks(bgCtx); err != nil {
			return fmt.Errorf("failed to start background tasks for plugin %s: %w", name, err)
		}
	}
	return nil
}

// DisablePlugin persists the disabled flag and stops the plugin
func (r *Registry) DisablePlugin(ctx context.Context, name string) error {
	p, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	deps := r.Deps()
	if deps != nil && deps.Storage != nil {
		if err := deps.Storage.DisablePlugin(name); err != nil {
			return fmt.Errorf("failed to store plugin state: %w", err)
		}
	}

	if r.Status(name) != StatusRunning {
		r.setStatus(name, StatusStopped, nil)
		return nil
	}
	if err := p.Stop(ctx); err != nil {
		r.setStatus(name, StatusError, err)
		return fmt.Errorf("failed to stop plugin %s: %w", name, err)
	}
	r.setStatus(name, StatusStopped, nil)
	return nil
}
