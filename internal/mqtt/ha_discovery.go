package mqtt

import (
	"encoding/json"
	"sync"

	"homesim/internal/logger"
	"homesim/internal/storage"
)

// DiscoveryPrefix is the Home Assistant discovery root.
const DiscoveryPrefix = "homeassistant"

const discoveryPublishedKey = "discoveryPublished"

// DiscoveryManager manages Home Assistant MQTT Discovery
type DiscoveryManager struct {
	sink       Sink
	logger     *logger.Logger
	storage    storage.Storage
	pluginName string

	// Cache of pre-generated discovery configs
	discoveryConfigs map[string][]byte
	discoveryMu      sync.RWMutex

	lastSensorCount int
	mu              sync.Mutex
}

// NewDiscoveryManager creates a new DiscoveryManager instance
func NewDiscoveryManager(sink Sink, log *logger.Logger, store storage.Storage, pluginName string) *DiscoveryManager {
	return &DiscoveryManager{
		sink:             sink,
		logger:           log.With(pluginName),
		storage:          store,
		pluginName:       pluginName,
		discoveryConfigs: make(map[string][]byte),
	}
}

// ShouldRepublishDiscovery reports whether configs must be sent again: on
// first use or when the fleet size changed.
func (d *DiscoveryManager) ShouldRepublishDiscovery(currentSensorCount int) bool {
	published := false
	if d.storage != nil {
		if v, err := d.storage.GetBool(d.pluginName, discoveryPublishedKey); err == nil {
			published = v
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	shouldPublish := !published || currentSensorCount != d.lastSensorCount
	if shouldPublish {
		d.lastSensorCount = currentSensorCount
	}
	return shouldPublish
}

// DiscoveryTopic returns homeassistant/<component>/homesim/<id>/config.
func DiscoveryTopic(cfg *SensorConfig) string {
	return DiscoveryPrefix + "/" + string(cfg.Component) + "/homesim/" + cfg.SensorID + "/config"
}

// PublishDiscoveryConfig publishes discovery config for a single sensor
func (d *DiscoveryManager) PublishDiscoveryConfig(cfg *SensorConfig) error {
	if cfg == nil {
		return nil
	}

	configJSON, err := d.generateDiscoveryConfig(cfg)
	if err != nil {
		return err
	}
	return d.sink.PublishRaw(DiscoveryTopic(cfg), configJSON, true)
}

// PublishMultipleDiscoveryConfigs publishes discovery configs for multiple
// sensors. Individual failures are logged and skipped.
func (d *DiscoveryManager) PublishMultipleDiscoveryConfigs(configs []*SensorConfig) error {
	failed := 0
	for _, cfg := range configs {
		if err := d.PublishDiscoveryConfig(cfg); err != nil {
			failed++
			d.logger.Warnf("Failed to publish discovery for %s: %v", cfg.SensorID, err)
		}
	}

	if failed == 0 {
		d.markDiscoveryPublished(true)
	}
	d.logger.Infof("Published MQTT discovery config for %d of %d sensors", len(configs)-failed, len(configs))
	return nil
}

// RemoveDiscoveryConfigs clears retained configs so the entities disappear
// from Home Assistant.
func (d *DiscoveryManager) RemoveDiscoveryConfigs(configs []*SensorConfig) {
	for _, cfg := range configs {
		if err := d.sink.PublishRaw(DiscoveryTopic(cfg), []byte{}, true); err != nil {
			d.logger.Warnf("Failed to remove discovery for %s: %v", cfg.SensorID, err)
		}
	}
	d.markDiscoveryPublished(false)
}

// generateDiscoveryConfig generates and caches Home Assistant discovery config
func (d *DiscoveryManager) generateDiscoveryConfig(cfg *SensorConfig) ([]byte, error) {
	d.discoveryMu.RLock()
	if config, ok := d.discoveryConfigs[cfg.SensorID]; ok {
		d.discoveryMu.RUnlock()
		return config, nil
	}
	d.discoveryMu.RUnlock()

	prefix := d.sink.GetConfig().Prefix

	discoveryConfig := map[string]interface{}{
		"name":        cfg.Name,
		"unique_id":   "homesim_" + cfg.SensorID,
		"state_topic": BuildTopic(prefix, cfg.StateTopic),
	}

	if cfg.Unit != "" {
		discoveryConfig["unit_of_measurement"] = cfg.Unit
	}
	if cfg.AttributesTopic != "" {
		discoveryConfig["json_attributes_topic"] = BuildTopic(prefix, cfg.AttributesTopic)
	}
	if cfg.DeviceClass != "" {
		discoveryConfig["device_class"] = cfg.DeviceClass
	}
	if cfg.StateClass != "" {
		discoveryConfig["state_class"] = cfg.StateClass
	}
	if cfg.PayloadOn != "" {
		discoveryConfig["payload_on"] = cfg.PayloadOn
		discoveryConfig["payload_off"] = cfg.PayloadOff
	}
	if cfg.AvailabilityTopic != "" {
		discoveryConfig["availability_topic"] = BuildTopic(prefix, cfg.AvailabilityTopic)
		discoveryConfig["payload_available"] = "online"
		discoveryConfig["payload_not_available"] = "offline"
	}

	if cfg.DeviceInfo != nil {
		discoveryConfig["device"] = map[string]interface{}{
			"identifiers":  cfg.DeviceInfo.Identifiers,
			"name":         cfg.DeviceInfo.Name,
			"model":        cfg.DeviceInfo.Model,
			"manufacturer": cfg.DeviceInfo.Manufacturer,
		}
	}

	configJSON, err := json.Marshal(discoveryConfig)
	if err != nil {
		return nil, err
	}

	d.discoveryMu.Lock()
	d.discoveryConfigs[cfg.SensorID] = configJSON
	d.discoveryMu.Unlock()

	return configJSON, nil
}

func (d *DiscoveryManager) markDiscoveryPublished(published bool) {
	if d.storage == nil {
		return
	}
	if err := d.storage.SetBool(d.pluginName, discoveryPublishedKey, published); err != nil {
		d.logger.Warnf("Failed to store discovery state: %v", err)
	}
}
