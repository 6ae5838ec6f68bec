package models

import "time"

// Canonical feature names, in the order used by the training notebook.
const (
	FeatureGas           = "gas_value"
	FeatureRain          = "rain_value"
	FeatureTemperature   = "temp_value"
	FeatureWaterDistance = "water_dist"
	FeatureWaterFlow     = "wf_value"
)

// DefaultFeatureOrder is the column order the sample artifacts are fitted with
func DefaultFeatureOrder() []string {
	return []string{
		FeatureGas,
		FeatureRain,
		FeatureTemperature,
		FeatureWaterDistance,
		FeatureWaterFlow,
	}
}

// SensorReading is one typed snapshot of a drain sensor node
type SensorReading struct {
	Gas           bool    `json:"gas"`            // toxic gas detected
	Rain          bool    `json:"rain"`           // raining
	Temperature   float64 `json:"temperature"`    // Celsius
	WaterDistance float64 `json:"water_distance"` // mm from sensor to water surface
	WaterFlowing  bool    `json:"water_flowing"`
}

// Features returns the reading keyed by canonical feature name.
// Binary sensors are encoded as 0/1.
func (r SensorReading) Features() map[string]any {
	return map[string]any{
		FeatureGas:           boolToInt(r.Gas),
		FeatureRain:          boolToInt(r.Rain),
		FeatureTemperature:   r.Temperature,
		FeatureWaterDistance: r.WaterDistance,
		FeatureWaterFlow:     boolToInt(r.WaterFlowing),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InferenceRequest carries one raw reading to the inference service.
// Exactly one of Features or Values is set. Values stay untyped so that
// non-numeric input can be reported instead of silently zeroed.
type InferenceRequest struct {
	RequestID string         `json:"request_id,omitempty" validate:"omitempty,uuid"`
	DeviceID  string         `json:"device_id,omitempty" validate:"omitempty,max=64,excludesall=/+#"`
	Timestamp time.Time      `json:"timestamp"`
	Features  map[string]any `json:"features,omitempty" validate:"required_without=Values,excluded_with=Values"`
	Values    []any          `json:"values,omitempty" validate:"required_without=Features"`
	Source    string         `json:"-"`
}

// InferenceResponse is the outcome of one prediction
type InferenceResponse struct {
	RequestID       string             `json:"request_id"`
	DeviceID        string             `json:"device_id,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	Status          Status             `json:"status"`
	Confidence      *float64           `json:"confidence,omitempty"` // only when the model exposes probabilities
	OutOfRange      []string           `json:"out_of_range,omitempty"`
	FeaturesUsed    map[string]float64 `json:"features_used"`
	ModelVersion    string             `json:"model_version,omitempty"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
}

// FieldUpdate is a single feature value published on its own topic
type FieldUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Feature   string    `json:"feature"`
	Value     float64   `json:"value"`
}
