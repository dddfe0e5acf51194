// Package storage persists plugin state, settings and run reports.
package storage

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("key not found")

	// ErrPluginNotFound is returned when a plugin has no stored state
	ErrPluginNotFound = errors.New("plugin not found")
)

// PluginConfig is the stored state of a single plugin
type PluginConfig struct {
	Enabled   bool      `json:"enabled"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunEntry is one archived simulation run.
type RunEntry struct {
	Key     string          `json:"key"`
	SavedAt time.Time       `json:"savedAt"`
	Report  json.RawMessage `json:"report"`
}

// Storage is the interface for plugin state, namespaced settings and the run archive
type Storage interface {
	// Plugin state

	// EnablePlugin enables a plugin by name
	EnablePlugin(name string) error

	// DisablePlugin disables a plugin by name
	DisablePlugin(name string) error

	// IsPluginEnabled returns the stored enabled flag.
	// Returns ErrPluginNotFound if the plugin was never enabled or disabled.
	IsPluginEnabled(name string) (bool, error)

	// ListPlugins returns all stored plugin states
	ListPlugins() (map[string]*PluginConfig, error)

	// Settings, grouped by namespace (an engine area or a plugin name)

	// Get retrieves a raw value. Returns ErrNotFound if the key doesn't exist
	Get(namespace, key string) ([]byte, error)

	// Set stores a raw value
	Set(namespace, key string, value []byte) error

	// GetBool retrieves a bool value
	GetBool(namespace, key string) (bool, error)

	// SetBool stores a bool value
	SetBool(namespace, key string, value bool) error

	// GetJSON retrieves and unmarshals a JSON value
	GetJSON(namespace, key string, v interface{}) error

	// SetJSON marshals and stores a JSON value
	SetJSON(namespace, key string, v interface{}) error

	// Delete removes a value
	Delete(namespace, key string) error

	// Run archive

	// SaveRun stores a run report under its stop time
	SaveRun(savedAt time.Time, report interface{}) error

	// ListRuns returns up to limit runs, newest first. limit <= 0 returns all
	ListRuns(limit int) ([]RunEntry, error)

	// TrimRuns keeps only the newest maxRuns entries
	TrimRuns(maxRuns int) error

	// Close closes the storage
	Close() error
}
