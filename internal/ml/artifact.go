package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"drain-guard/internal/models"
)

// Scaler and model kinds understood by the loader
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"

	ModelLogistic = "logistic"
	ModelForest   = "forest"
)

// ScalerArtifact is the on-disk form of a fitted feature scaler
type ScalerArtifact struct {
	Version  string   `json:"version,omitempty"`
	Kind     string   `json:"kind"`
	Features []string `json:"features"`

	// standard: (x - mean) / scale
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale,omitempty"`

	// minmax: (x - data_min) / (data_max - data_min) * (hi - lo) + lo.
	// For standard scalers data_min/data_max are optional and only
	// describe the training range.
	DataMin      []float64 `json:"data_min,omitempty"`
	DataMax      []float64 `json:"data_max,omitempty"`
	FeatureRange []float64 `json:"feature_range,omitempty"` // [lo, hi], default [0, 1]
}

// ModelArtifact is the on-disk form of a fitted binary classifier
type ModelArtifact struct {
	Version  string   `json:"version,omitempty"`
	Kind     string   `json:"kind"`
	Features []string `json:"features"`

	// Labels maps class index to drain status
	Labels []models.Status `json:"labels"`

	// logistic
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`

	// forest
	Trees []TreeArtifact `json:"trees,omitempty"`
}

// TreeArtifact is a binary decision tree in parallel-array layout.
// Node i is a leaf when ChildrenLeft[i] == -1; otherwise samples with
// x[Feature[i]] <= Threshold[i] go left.
type TreeArtifact struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// ReadScalerArtifact reads and decodes a scaler artifact
func ReadScalerArtifact(path string) (*ScalerArtifact, error) {
	var a ScalerArtifact
	if err := readArtifact(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ReadModelArtifact reads and decodes a model artifact
func ReadModelArtifact(path string) (*ModelArtifact, error) {
	var a ModelArtifact
	if err := readArtifact(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func readArtifact(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read artifact: %w", ErrModelUnavailable, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: failed to decode artifact %s: %v", ErrModelUnavailable, path, err)
	}
	return nil
}

// WriteArtifact serializes an artifact as indented JSON
func WriteArtifact(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
