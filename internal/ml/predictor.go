package ml

import (
	"fmt"
	"log"

	"drain-guard/internal/models"
)

// Prediction is the outcome of one pass through the pipeline
type Prediction struct {
	Status        models.Status
	Confidence    float64
	Probabilities []float64
	Features      map[string]float64 // raw values after coercion, by feature name
	OutOfRange    []string           // features outside the training range, unclamped
}

// Predictor bundles the loaded scaler and classifier. It is built once at
// startup and shared read-only by every caller.
type Predictor struct {
	normalizer *Normalizer
	classifier *Classifier
}

// LoadPredictor loads both artifacts. Any failure, including a schema
// disagreement between them, is reported as ErrModelUnavailable.
func LoadPredictor(scalerPath, modelPath string) (*Predictor, error) {
	normalizer, err := LoadNormalizer(scalerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scaler: %w", err)
	}

	classifier, err := LoadClassifier(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	p, err := NewPredictor(normalizer, classifier)
	if err != nil {
		return nil, err
	}

	log.Printf("Loaded %s scaler from %s and %s model from %s (features: %s)",
		normalizer.Kind(), scalerPath, classifier.Kind(), modelPath, p.Schema())
	return p, nil
}

// NewPredictor pairs an already built normalizer and classifier
func NewPredictor(normalizer *Normalizer, classifier *Classifier) (*Predictor, error) {
	if normalizer == nil || classifier == nil {
		return nil, fmt.Errorf("%w: scaler and model are both required", ErrModelUnavailable)
	}
	if !normalizer.Schema().Equal(classifier.Schema()) {
		return nil, fmt.Errorf("%w: %w: scaler features [%s] differ from model features [%s]",
			ErrModelUnavailable, ErrSchemaMismatch, normalizer.Schema(), classifier.Schema())
	}
	return &Predictor{normalizer: normalizer, classifier: classifier}, nil
}

// Schema returns the ordered features both artifacts agree on
func (p *Predictor) Schema() Schema {
	return p.normalizer.Schema()
}

// Ranges returns the training range per feature, or nil when unknown
func (p *Predictor) Ranges() []Range {
	return p.normalizer.Ranges()
}

// ScalerKind returns the kind of the loaded scaler
func (p *Predictor) ScalerKind() string {
	return p.normalizer.Kind()
}

// ModelKind returns the kind of the loaded model
func (p *Predictor) ModelKind() string {
	return p.classifier.Kind()
}

// Version identifies the loaded artifacts, preferring the model version
func (p *Predictor) Version() string {
	if p.classifier.version != "" {
		return p.classifier.version
	}
	return p.normalizer.version
}

// Predict runs a positional reading through the scaler and classifier
func (p *Predictor) Predict(values []any) (*Prediction, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: predictor not loaded", ErrModelUnavailable)
	}

	raw, err := p.normalizer.coerce(values)
	if err != nil {
		return nil, err
	}

	vector, err := p.normalizer.apply(raw)
	if err != nil {
		return nil, err
	}

	result, err := p.classifier.Classify(vector)
	if err != nil {
		return nil, err
	}

	features := make(map[string]float64, len(raw))
	for i, name := range p.normalizer.schema.features {
		features[name] = raw[i]
	}

	return &Prediction{
		Status:        result.Status,
		Confidence:    result.Confidence(),
		Probabilities: result.Probabilities,
		Features:      features,
		OutOfRange:    p.normalizer.outOfRange(raw),
	}, nil
}

// PredictNamed runs a reading keyed by feature name through the pipeline
func (p *Predictor) PredictNamed(fields map[string]any) (*Prediction, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: predictor not loaded", ErrModelUnavailable)
	}
	values, err := p.normalizer.schema.Order(fields)
	if err != nil {
		return nil, err
	}
	return p.Predict(values)
}

// PredictReading runs a typed sensor reading through the pipeline
func (p *Predictor) PredictReading(reading models.SensorReading) (*Prediction, error) {
	return p.PredictNamed(reading.Features())
}
