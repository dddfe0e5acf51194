package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variable names
const (
	EnvAddr              = "HOMESIM_ADDR"
	EnvTickIntervalMS    = "HOMESIM_TICK_INTERVAL_MS"
	EnvSeed              = "HOMESIM_SEED"
	EnvDutyCycle         = "HOMESIM_DUTY_CYCLE"
	EnvAggregationFactor = "HOMESIM_AGGREGATION_FACTOR"
	EnvGateMode          = "HOMESIM_GATE_MODE"
	EnvAdaptive          = "HOMESIM_ADAPTIVE"
	EnvHistorySize       = "HOMESIM_HISTORY_SIZE"
	EnvSubscriberBacklog = "HOMESIM_SUBSCRIBER_BACKLOG"
	EnvAutostart         = "HOMESIM_AUTOSTART"
	EnvDBPath            = "HOMESIM_DB_PATH"
	EnvLogLevel          = "HOMESIM_LOG_LEVEL"
	// MQTT settings
	EnvMQTTBroker   = "HOMESIM_MQTT_BROKER"
	EnvMQTTClientID = "HOMESIM_MQTT_CLIENT_ID"
	EnvMQTTUsername = "HOMESIM_MQTT_USERNAME"
	EnvMQTTPassword = "HOMESIM_MQTT_PASSWORD"
	EnvMQTTPrefix   = "HOMESIM_MQTT_PREFIX"
	EnvMQTTUseTLS   = "HOMESIM_MQTT_USE_TLS"
	// Kafka settings
	EnvKafkaBrokers = "HOMESIM_KAFKA_BROKERS"
	EnvKafkaTopic   = "HOMESIM_KAFKA_TOPIC"
)

// Default values
const (
	DefaultAddr              = ":8080"
	DefaultTickInterval      = time.Second
	DefaultSeed              = int64(0) // 0 = seed from the clock
	DefaultDutyCycle         = 1.0
	DefaultAggregationFactor = 1.0
	DefaultGateMode          = "random"
	DefaultAdaptive          = false
	DefaultHistorySize       = 500
	DefaultSubscriberBacklog = 256
	DefaultAutostart         = true
	DefaultDBPath            = "homesim.db"
	DefaultLogLevel          = "info"
	// MQTT defaults
	DefaultMQTTBroker   = ""
	DefaultMQTTClientID = ""
	DefaultMQTTUsername = ""
	DefaultMQTTPassword = ""
	DefaultMQTTPrefix   = "homesim"
	DefaultMQTTUseTLS   = false
	// Kafka defaults
	DefaultKafkaBrokers = ""
	DefaultKafkaTopic   = "homesim.events"
)

// Config holds all application configuration.
// All access should be through getter methods for thread safety.
type Config struct {
	mu       sync.RWMutex
	filePath string
	dirty    bool // tracks if config was modified

	// Server settings
	addr     string
	dbPath   string
	logLevel string

	// Simulation settings
	tickInterval      time.Duration
	seed              int64
	dutyCycle         float64
	aggregationFactor float64
	gateMode          string
	adaptive          bool
	historySize       int
	subscriberBacklog int
	autostart         bool

	// MQTT settings
	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPassword string
	mqttPrefix   string
	mqttUseTLS   bool

	// Kafka settings
	kafkaBrokers []string
	kafkaTopic   string
}

// Load loads configuration from .env file or creates it with defaults.
// This is the main entry point for configuration initialization.
func Load(filePath string) (*Config, error) {
	cfg := &Config{
		filePath: filePath,
	}

	cfg.setDefaults()

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		// File doesn't exist - will be created with defaults
		cfg.dirty = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.dirty {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}

	return cfg, nil
}

// setDefaults initializes all fields with default values.
func (c *Config) setDefaults() {
	c.addr = DefaultAddr
	c.dbPath = DefaultDBPath
	c.logLevel = DefaultLogLevel
	c.tickInterval = DefaultTickInterval
	c.seed = DefaultSeed
	c.dutyCycle = DefaultDutyCycle
	c.aggregationFactor = DefaultAggregationFactor
	c.gateMode = DefaultGateMode
	c.adaptive = DefaultAdaptive
	c.historySize = DefaultHistorySize
	c.subscriberBacklog = DefaultSubscriberBacklog
	c.autostart = DefaultAutostart
	// MQTT defaults
	c.mqttBroker = DefaultMQTTBroker
	c.mqttClientID = DefaultMQTTClientID
	c.mqttUsername = DefaultMQTTUsername
	c.mqttPassword = DefaultMQTTPassword
	c.mqttPrefix = DefaultMQTTPrefix
	c.mqttUseTLS = DefaultMQTTUseTLS
	// Kafka defaults
	c.kafkaBrokers = splitList(DefaultKafkaBrokers)
	c.kafkaTopic = DefaultKafkaTopic
}

// loadFromFile reads configuration from .env file.
func (c *Config) loadFromFile() error {
	file, err := os.Open(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	values, err := ParseEnvFile(file)
	if err != nil {
		return err
	}

	c.applyValues(values)
	return nil
}

// applyValues applies parsed key-value pairs to config.
// Unparseable numbers keep their previous value.
func (c *Config) applyValues(values map[string]string) {
	if v, ok := values[EnvAddr]; ok && v != "" {
		c.addr = v
	}
	if v, ok := values[EnvDBPath]; ok && v != "" {
		c.dbPath = v
	}
	if v, ok := values[EnvLogLevel]; ok && v != "" {
		c.logLevel = strings.ToLower(v)
	}

	if v, ok := values[EnvTickIntervalMS]; ok && v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.tickInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := values[EnvSeed]; ok && v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.seed = seed
		}
	}
	if v, ok := values[EnvDutyCycle]; ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.dutyCycle = f
		}
	}
	if v, ok := values[EnvAggregationFactor]; ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.aggregationFactor = f
		}
	}
	if v, ok := values[EnvGateMode]; ok && v != "" {
		c.gateMode = strings.ToLower(v)
	}
	if v, ok := values[EnvAdaptive]; ok {
		c.adaptive = parseBool(v)
	}
	if v, ok := values[EnvHistorySize]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.historySize = n
		}
	}
	if v, ok := values[EnvSubscriberBacklog]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.subscriberBacklog = n
		}
	}
	if v, ok := values[EnvAutostart]; ok {
		c.autostart = parseBool(v)
	}

	// MQTT settings
	if v, ok := values[EnvMQTTBroker]; ok {
		c.mqttBroker = v
	}
	if v, ok := values[EnvMQTTClientID]; ok {
		c.mqttClientID = v
	}
	if v, ok := values[EnvMQTTUsername]; ok {
		c.mqttUsername = v
	}
	if v, ok := values[EnvMQTTPassword]; ok {
		c.mqttPassword = v
	}
	if v, ok := values[EnvMQTTPrefix]; ok {
		c.mqttPrefix = v
	}
	if v, ok := values[EnvMQTTUseTLS]; ok {
		c.mqttUseTLS = parseBool(v)
	}

	// Kafka settings
	if v, ok := values[EnvKafkaBrokers]; ok {
		c.kafkaBrokers = splitList(v)
	}
	if v, ok := values[EnvKafkaTopic]; ok && v != "" {
		c.kafkaTopic = v
	}
}

// validate checks if configuration is valid.
func (c *Config) validate() error {
	if c.addr == "" {
		return errors.New("server address cannot be empty")
	}

	_, port, err := net.SplitHostPort(c.addr)
	if err != nil {
		if _, err := strconv.Atoi(strings.TrimPrefix(c.addr, ":")); err != nil {
			return fmt.Errorf("invalid server address format: %s", c.addr)
		}
	} else {
		portNum, err := strconv.Atoi(port)
		if err != nil || portNum < 1 || portNum > 65535 {
			return fmt.Errorf("invalid port number: %s", port)
		}
	}

	if c.tickInterval < 10*time.Millisecond {
		return errors.New("tick interval must be at least 10ms")
	}
	if c.dutyCycle <= 0 || c.dutyCycle > 1 {
		return fmt.Errorf("duty cycle must be in (0, 1], got %v", c.dutyCycle)
	}
	if c.aggregationFactor <= 0 || c.aggregationFactor > 1 {
		return fmt.Errorf("aggregation factor must be in (0, 1], got %v", c.aggregationFactor)
	}
	switch c.gateMode {
	case "random", "scheduled":
	default:
		return fmt.Errorf("unknown gate mode: %s", c.gateMode)
	}
	if c.historySize < 1 {
		return errors.New("history size must be positive")
	}
	if c.subscriberBacklog < 1 {
		return errors.New("subscriber backlog must be positive")
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("unknown log level: %s", c.logLevel)
	}
	if c.dbPath == "" {
		return errors.New("database path cannot be empty")
	}
	if len(c.kafkaBrokers) > 0 && c.kafkaTopic == "" {
		return errors.New("kafka topic cannot be empty when brokers are set")
	}

	return nil
}

// Save writes current configuration to .env file.
func (c *Config) Save() error {
	c.mu.RLock()
	values := c.toMap()
	filePath := c.filePath
	c.mu.RUnlock()

	if err := WriteEnvFile(filePath, values); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	return nil
}

// toMap converts config to key-value map for saving.
func (c *Config) toMap() map[string]string {
	return map[string]string{
		EnvAddr:              c.addr,
		EnvDBPath:            c.dbPath,
		EnvLogLevel:          c.logLevel,
		EnvTickIntervalMS:    strconv.FormatInt(c.tickInterval.Milliseconds(), 10),
		EnvSeed:              strconv.FormatInt(c.seed, 10),
		EnvDutyCycle:         strconv.FormatFloat(c.dutyCycle, 'g', -1, 64),
		EnvAggregationFactor: strconv.FormatFloat(c.aggregationFactor, 'g', -1, 64),
		EnvGateMode:          c.gateMode,
		EnvAdaptive:          strconv.FormatBool(c.adaptive),
		EnvHistorySize:       strconv.Itoa(c.historySize),
		EnvSubscriberBacklog: strconv.Itoa(c.subscriberBacklog),
		EnvAutostart:         strconv.FormatBool(c.autostart),
		// MQTT settings
		EnvMQTTBroker:   c.mqttBroker,
		EnvMQTTClientID: c.mqttClientID,
		EnvMQTTUsername: c.mqttUsername,
		EnvMQTTPassword: c.mqttPassword,
		EnvMQTTPrefix:   c.mqttPrefix,
		EnvMQTTUseTLS:   strconv.FormatBool(c.mqttUseTLS),
		// Kafka settings
		EnvKafkaBrokers: strings.Join(c.kafkaBrokers, ","),
		EnvKafkaTopic:   c.kafkaTopic,
	}
}

// Getters (thread-safe)

// Addr returns the server address.
func (c *Config) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// DBPath returns the bbolt database path.
func (c *Config) DBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbPath
}

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel
}

// FilePath returns the path to the .env file.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// Simulation getters

// TickInterval returns the time between simulation ticks.
func (c *Config) TickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickInterval
}

// Seed returns the random seed. Zero means seed from the clock.
func (c *Config) Seed() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seed
}

// DutyCycle returns the initial duty cycle.
func (c *Config) DutyCycle() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dutyCycle
}

// AggregationFactor returns the initial aggregation factor.
func (c *Config) AggregationFactor() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aggregationFactor
}

// GateMode returns the gate mode name.
func (c *Config) GateMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gateMode
}

// Adaptive returns whether progressive sleep starts enabled.
func (c *Config) Adaptive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adaptive
}

func (c *Config) HistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historySize
}

func (c *Config) SubscriberBacklog() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriberBacklog
}

// Autostart returns whether the simulation starts with the server.
func (c *Config) Autostart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autostart
}

// MQTT Getters

// MQTTBroker returns the MQTT broker address.
func (c *Config) MQTTBroker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttBroker
}

// MQTTClientID returns the MQTT client ID.
func (c *Config) MQTTClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttClientID
}

// MQTTUsername returns the MQTT username.
func (c *Config) MQTTUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUsername
}

// MQTTPassword returns the MQTT password.
func (c *Config) MQTTPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPassword
}

// MQTTPrefix returns the MQTT topic prefix.
func (c *Config) MQTTPrefix() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPrefix
}

// MQTTUseTLS returns whether TLS is enabled for MQTT.
func (c *Config) MQTTUseTLS() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUseTLS
}

// Kafka Getters

// KafkaBrokers returns the Kafka bootstrap brokers. Empty disables the bridge.
func (c *Config) KafkaBrokers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.kafkaBrokers...)
}

// KafkaTopic returns the Kafka topic for simulation events.
func (c *Config) KafkaTopic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kafkaTopic
}

// Setters (thread-safe, auto-save)

// SetLogLevel sets the log level and saves to file.
func (c *Config) SetLogLevel(level string) error {
	c.mu.Lock()
	prev := c.logLevel
	c.logLevel = strings.ToLower(strings.TrimSpace(level))
	if err := c.validate(); err != nil {
		c.logLevel = prev
		c.mu.Unlock()
		return err
	}
	c.dirty = true
	c.mu.Unlock()

	return c.Save()
}

// Helper functions

// parseBool parses a boolean string value.
// Accepts: true, false, 1, 0, yes, no (case-insensitive)
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Reload reloads configuration from file.
// Useful for hot-reloading configuration.
func (c *Config) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDefaults()

	if err := c.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	return c.validate()
}

// String returns a string representation of the config (without secrets).
func (c *Config) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	passwordDisplay := "[not set]"
	if c.mqttPassword != "" {
		passwordDisplay = "[set]"
	}

	return fmt.Sprintf(
		"Config{Addr: %q, Tick: %v, DutyCycle: %v, Aggregation: %v, Gate: %s, Adaptive: %v, MQTT: %q, MQTTPassword: %s, Kafka: %v}",
		c.addr, c.tickInterval, c.dutyCycle, c.aggregationFactor, c.gateMode, c.adaptive,
		c.mqttBroker, passwordDisplay, c.kafkaBrokers,
	)
}
