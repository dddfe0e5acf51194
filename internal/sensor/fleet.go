package sensor

// Default thresholds per sensor type.
var (
	temperatureSpec = Spec{Type: Temperature, Unit: "°C",
		Valid: Range{-20, 60}, Normal: Range{18, 28}, Critical: Range{10, 35}, Initial: 22}
	humiditySpec = Spec{Type: Humidity, Unit: "%",
		Valid: Range{0, 100}, Normal: Range{40, 70}, Critical: Range{25, 85}, Initial: 55}
	airQualitySpec = Spec{Type: AirQuality, Unit: "AQI",
		Valid: Range{0, 500}, Normal: Range{0, 50}, Critical: Range{0, 100}, Initial: 25}
	lightSpec = Spec{Type: Light, Unit: "lux",
		Valid: Range{0, 2000}, Normal: Range{200, 1000}, Critical: Range{50, 1500}, Initial: 500}
	soundSpec = Spec{Type: Sound, Unit: "dB",
		Valid: Range{0, 120}, Normal: Range{30, 60}, Critical: Range{20, 80}, Initial: 45}
	motionSpec = Spec{Type: Motion, Unit: "",
		Valid: Range{0, 1}, Normal: Range{0, 1}, Critical: Range{0, 1}, Initial: 0}
)

// Template returns the default spec for a sensor type with the given id and location.
func Template(t Type, id, location string) Spec {
	var s Spec
	switch t {
	case Temperature:
		s = temperatureSpec
	case Humidity:
		s = humiditySpec
	case AirQuality:
		s = airQualitySpec
	case Light:
		s = lightSpec
	case Sound:
		s = soundSpec
	case Motion:
		s = motionSpec
	default:
		s = Spec{Type: t}
	}
	s.ID = id
	s.Location = location
	return s
}

// DefaultFleet returns the standard household: three climate stations
// (temperature and humidity each), two air quality monitors, three light
// sensors, two noise sensors and two motion detectors.
func DefaultFleet() []Spec {
	return []Spec{
		Template(Temperature, "living_room_01_temperature", "Living Room"),
		Template(Humidity, "living_room_01_humidity", "Living Room"),
		Template(Temperature, "bedroom_01_temperature", "Master Bedroom"),
		Template(Humidity, "bedroom_01_humidity", "Master Bedroom"),
		Template(Temperature, "kitchen_01_temperature", "Kitchen"),
		Template(Humidity, "kitchen_01_humidity", "Kitchen"),
		Template(AirQuality, "air_01", "Living Room"),
		Template(AirQuality, "air_02", "Kitchen"),
		Template(Light, "light_01", "Living Room"),
		Template(Light, "light_02", "Master Bedroom"),
		Template(Light, "light_03", "Home Office"),
		Template(Sound, "noise_01", "Living Room"),
		Template(Sound, "noise_02", "Master Bedroom"),
		Template(Motion, "pir_01", "Front Door"),
		Template(Motion, "pir_02", "Back Yard"),
	}
}
