package mqttbridge

import (
	"encoding/json"
	"net/http"

	"homesim/internal/plugins"
)

// Settings represents the bridge's persisted settings
type Settings struct {
	PublishReadings bool `json:"publishReadings"` // Forward individual readings
	PublishStats    bool `json:"publishStats"`    // Forward per-tick stats
}

// Status represents MQTT bridge status
type Status struct {
	Connected   bool   `json:"connected"`   // MQTT client connected
	Configured  bool   `json:"configured"`  // MQTT broker configured
	BrokerURL   string `json:"brokerUrl"`   // MQTT broker URL (for display)
	TopicPrefix string `json:"topicPrefix"` // MQTT topic prefix
	Sensors     int    `json:"sensors"`     // Sensors announced via discovery
	Forwarded   uint64 `json:"forwarded"`   // Events published
	Failed      uint64 `json:"failed"`      // Events the broker rejected
	Dropped     uint64 `json:"dropped"`     // Events lost to a full subscriber buffer
}

// handleStatus returns MQTT connection status
func (p *Plugin) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Configured: p.publisher != nil,
		Sensors:    len(p.configs),
		Forwarded:  p.forwarded.Load(),
		Failed:     p.failed.Load(),
	}

	if p.client != nil {
		cfg := p.client.GetConfig()
		status.Connected = p.client.IsConnected()
		status.BrokerURL = cfg.Broker
		status.TopicPrefix = cfg.Prefix
	}
	p.mu.RLock()
	if p.sub != nil {
		status.Dropped = p.sub.Dropped()
	}
	p.mu.RUnlock()

	plugins.WriteJSON(w, http.StatusOK, status)
}

// handleGetSettings returns current plugin settings
func (p *Plugin) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	plugins.WriteJSON(w, http.StatusOK, p.settings())
}

func (p *Plugin) settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Settings{PublishReadings: p.publishReadings, PublishStats: p.publishStats}
}

// handleUpdateSettings updates plugin settings
func (p *Plugin) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		plugins.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if deps := p.Deps(); deps != nil && deps.Storage != nil {
		if err := deps.Storage.SetBool(p.Name(), settingPublishReadings, settings.PublishReadings); err != nil {
			p.Logger().Errorf("Failed to save settings: %v", err)
			plugins.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save settings"})
			return
		}
		if err := deps.Storage.SetBool(p.Name(), settingPublishStats, settings.PublishStats); err != nil {
			p.Logger().Errorf("Failed to save settings: %v", err)
			plugins.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save settings"})
			return
		}
	}

	p.mu.Lock()
	p.publishReadings = settings.PublishReadings
	p.publishStats = settings.PublishStats
	p.mu.Unlock()

	p.Logger().Infof("Settings updated: readings=%t stats=%t", settings.PublishReadings, settings.PublishStats)
	plugins.WriteJSON(w, http.StatusOK, settings)
}

// handleRepublishDiscovery forces the discovery configs out again
func (p *Plugin) handleRepublishDiscovery(w http.ResponseWriter, r *http.Request) {
	if p.discovery == nil {
		plugins.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Discovery is not configured"})
		return
	}
	if err := p.discovery.PublishMultipleDiscoveryConfigs(p.configs); err != nil {
		plugins.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	plugins.WriteJSON(w, http.StatusOK, map[string]int{"published": len(p.configs)})
}
