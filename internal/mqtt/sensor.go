package mqtt

import (
	"homesim/internal/sensor"
)

// Component is the Home Assistant entity platform.
type Component string

const (
	ComponentSensor       Component = "sensor"
	ComponentBinarySensor Component = "binary_sensor"
)

// SensorConfig contains sensor configuration for Home Assistant Discovery
type SensorConfig struct {
	SensorID  string // Sanitized sensor ID
	Name      string // Display name
	Component Component
	Unit      string

	// MQTT topics, relative to the prefix
	StateTopic        string
	AttributesTopic   string
	AvailabilityTopic string

	// Home Assistant parameters
	DeviceClass string // temperature, humidity, aqi, illuminance, ...
	StateClass  string // measurement, total, total_increasing

	// Binary sensors only
	PayloadOn  string
	PayloadOff string

	DeviceInfo *DeviceInfo
}

// DeviceInfo contains device information for grouping in Home Assistant
type DeviceInfo struct {
	Identifiers  []string
	Name         string
	Model        string
	Manufacturer string
}

var deviceClasses = map[sensor.Type]string{
	sensor.Temperature: "temperature",
	sensor.Humidity:    "humidity",
	sensor.AirQuality:  "aqi",
	sensor.Light:       "illuminance",
	sensor.Sound:       "sound_pressure",
	sensor.Motion:      "motion",
}

// StateTopic returns the state topic of a sensor, relative to the prefix.
func StateTopic(sensorID string) string {
	return "sensor/" + SanitizeID(sensorID) + "/state"
}

// AttributesTopic returns the attributes topic of a sensor.
func AttributesTopic(sensorID string) string {
	return "sensor/" + SanitizeID(sensorID) + "/attributes"
}

// AlertTopic returns the alert topic of a sensor.
func AlertTopic(sensorID string) string {
	return "alert/" + SanitizeID(sensorID)
}

// StatsTopic is the topic for fleet-wide stats snapshots.
const StatsTopic = "stats"

// ConfigFor builds the discovery config of one simulated sensor. Sensors in
// the same location are grouped into one Home Assistant device.
func ConfigFor(spec sensor.Spec, model string) *SensorConfig {
	id := SanitizeID(spec.ID)
	cfg := &SensorConfig{
		SensorID:          id,
		Name:              spec.Location + " " + spec.Type.Title(),
		Component:         ComponentSensor,
		Unit:              spec.Unit,
		StateTopic:        StateTopic(spec.ID),
		AttributesTopic:   AttributesTopic(spec.ID),
		AvailabilityTopic: AvailabilityTopic,
		DeviceClass:       deviceClasses[spec.Type],
		StateClass:        "measurement",
		DeviceInfo: &DeviceInfo{
			Identifiers:  []string{"homesim_" + SanitizeID(spec.Location)},
			Name:         spec.Location,
			Model:        model,
			Manufacturer: "homesim",
		},
	}

	if spec.Type == sensor.Motion {
		cfg.Component = ComponentBinarySensor
		cfg.Unit = ""
		cfg.StateClass = ""
		cfg.PayloadOn = "1"
		cfg.PayloadOff = "0"
	}
	return cfg
}

// ConfigsFor builds discovery configs for a fleet.
func ConfigsFor(specs []sensor.Spec, model string) []*SensorConfig {
	out := make([]*SensorConfig, 0, len(specs))
	for _, s := range specs {
		out = append(out, ConfigFor(s, model))
	}
	return out
}

// SanitizeID creates a safe ID for MQTT topics
func SanitizeID(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == ' ' || c == '/' || c == '.' || c == '+' || c == '#':
			b[i] = '_'
		default:
			b[i] = c
		}
	}
	return string(b)
}
