package types

import "time"

// RawReading is one analog-to-digital sample from the gas sensor.
type RawReading = int

// DefaultDeviceMax is the top of a 10-bit ADC range.
const DefaultDeviceMax = 1023

// Category is an AQI tier label.
type Category int

const (
	Good Category = iota
	Moderate
	Unhealthy
	VeryUnhealthy
)

func (c Category) String() string {
	switch c {
	case Good:
		return "Good"
	case Moderate:
		return "Moderate"
	case Unhealthy:
		return "Unhealthy"
	case VeryUnhealthy:
		return "Very Unhealthy"
	default:
		return "Unknown"
	}
}

// Color returns the display color paired with the tier.
func (c Category) Color() string {
	switch c {
	case Good:
		return "green"
	case Moderate:
		return "yellow"
	case Unhealthy:
		return "orange"
	case VeryUnhealthy:
		return "red"
	default:
		return "gray"
	}
}

// Classification is the classifier output for one raw reading.
type Classification struct {
	Index    int
	Category Category
}

// Color is always derived from Category so the two cannot disagree.
func (c Classification) Color() string { return c.Category.Color() }

// GasLevels holds the ten pollutant estimates derived from one raw reading.
// Units: ppm except Smoke (µg/m³).
type GasLevels struct {
	CO2     float64 `json:"co2"`     // [400, 700]
	CO      float64 `json:"co"`      // [0.1, 8]
	NO2     float64 `json:"no2"`     // [0.02, 0.25]
	NH3     float64 `json:"nh3"`     // [0.01, 3]
	Benzene float64 `json:"benzene"` // [0.005, 0.08]
	Toluene float64 `json:"toluene"` // [0.01, 0.12]
	Alcohol float64 `json:"alcohol"` // [0, 4]
	Acetone float64 `json:"acetone"` // [0.02, 0.2]
	H2S     float64 `json:"h2s"`     // [0, 0.6]
	Smoke   float64 `json:"smoke"`   // [10, 60]
}

// Snapshot is an immutable view of the sensor state. Readers must not
// modify Window.
type Snapshot struct {
	Window         []RawReading
	Latest         RawReading
	Classification Classification
	Gas            GasLevels
	Samples        uint64
}

// Payload is the flat wire shape served to polling clients.
type Payload struct {
	MQValues  []int     `json:"mq_values"`
	LatestMQ  int       `json:"latest_mq"`
	AQI       int       `json:"aqi"`
	AQILevel  string    `json:"aqi_level"`
	AQIColor  string    `json:"aqi_color"`
	GasLevels GasLevels `json:"gas_levels"`
}

// DefaultSnapshot is the state served before the first sample arrives.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Window:         []RawReading{},
		Classification: Classification{Index: 0, Category: Good},
	}
}

// ToPayload flattens s for JSON responses.
func (s Snapshot) ToPayload() Payload {
	values := make([]int, len(s.Window))
	copy(values, s.Window)
	return Payload{
		MQValues:  values,
		LatestMQ:  s.Latest,
		AQI:       s.Classification.Index,
		AQILevel:  s.Classification.Category.String(),
		AQIColor:  s.Classification.Color(),
		GasLevels: s.Gas,
	}
}

// IngestEvent is one diagnostic journal entry: a rejected record, a
// transport failure or a reconnect.
type IngestEvent struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
	Value  *int      `json:"value,omitempty"`
}

// Journal event kinds.
const (
	EventParse     = "parse"
	EventRange     = "range"
	EventTransport = "transport"
	EventReconnect = "reconnect"
)
