package ml

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"drain-guard/internal/models"
)

// Default artifact file names
const (
	ScalerFileName = "scaler.json"
	ModelFileName  = "drain_status_model.json"
)

// SampleScalerArtifact returns a standard scaler fitted on typical drain
// telemetry: water distance in mm (0-1000), temperature in °C (-10-50),
// binary gas/rain/flow flags.
func SampleScalerArtifact() *ScalerArtifact {
	return &ScalerArtifact{
		Version:  "sample-1",
		Kind:     ScalerStandard,
		Features: models.DefaultFeatureOrder(),
		Mean:     []float64{0.2, 0.3, 27.0, 600.0, 0.7},
		Scale:    []float64{0.4, 0.46, 6.0, 250.0, 0.46},
		DataMin:  []float64{0, 0, -10, 0, 0},
		DataMax:  []float64{1, 1, 50, 1000, 1},
	}
}

// SampleModelArtifact returns a logistic model consistent with
// SampleScalerArtifact. Class 0 is BLOCKED and class 1 is NORMAL, as in
// the training notebook: water close to the sensor, no flow and gas all
// push towards BLOCKED.
func SampleModelArtifact() *ModelArtifact {
	return &ModelArtifact{
		Version:   "sample-1",
		Kind:      ModelLogistic,
		Features:  models.DefaultFeatureOrder(),
		Labels:    []models.Status{models.StatusBlocked, models.StatusNormal},
		Coef:      []float64{-0.8, -0.3, -0.1, 1.6, 2.0},
		Intercept: 0.5,
	}
}

// CreateSampleArtifacts writes the sample scaler and model into dir,
// creating it if needed, and returns both paths
func CreateSampleArtifacts(dir string) (scalerPath, modelPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	scalerPath = filepath.Join(dir, ScalerFileName)
	modelPath = filepath.Join(dir, ModelFileName)

	if err := WriteArtifact(scalerPath, SampleScalerArtifact()); err != nil {
		return "", "", err
	}
	if err := WriteArtifact(modelPath, SampleModelArtifact()); err != nil {
		return "", "", err
	}

	log.Printf("Created sample artifacts in %s", dir)
	return scalerPath, modelPath, nil
}
