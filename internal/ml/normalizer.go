package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Range is the span of a feature observed while fitting
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NormalizedVector is a reading after scaling. Only a Normalizer creates one.
type NormalizedVector struct {
	values []float64
}

// Len returns the vector arity
func (v NormalizedVector) Len() int {
	return len(v.values)
}

// At returns the i-th scaled feature
func (v NormalizedVector) At(i int) float64 {
	return v.values[i]
}

// Values returns a copy of the scaled features
func (v NormalizedVector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Normalizer applies a fitted per-feature transform:
//
//	y = (x - offset) / scale * mul + add
//
// Standard scaling uses offset=mean, mul=1, add=0. Min/max scaling uses
// offset=data_min, scale=data_max-data_min, mul=hi-lo, add=lo.
// A Normalizer is immutable once built and safe for concurrent use.
type Normalizer struct {
	schema  Schema
	kind    string
	version string

	offset []float64
	scale  []float64
	mul    float64
	add    float64

	ranges []Range // nil when the artifact carries no training range
}

// LoadNormalizer reads a scaler artifact from disk
func LoadNormalizer(path string) (*Normalizer, error) {
	a, err := ReadScalerArtifact(path)
	if err != nil {
		return nil, err
	}
	n, err := NewNormalizer(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// NewNormalizer validates a decoded scaler artifact
func NewNormalizer(a *ScalerArtifact) (*Normalizer, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: scaler artifact is nil", ErrModelUnavailable)
	}

	schema, err := NewSchema(a.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: scaler: %v", ErrModelUnavailable, err)
	}
	dim := schema.Len()

	n := &Normalizer{
		schema:  schema,
		kind:    a.Kind,
		version: a.Version,
		mul:     1,
	}

	switch a.Kind {
	case ScalerStandard:
		if len(a.Mean) != dim || len(a.Scale) != dim {
			return nil, fmt.Errorf("%w: standard scaler needs %d means and scales, got %d and %d",
				ErrModelUnavailable, dim, len(a.Mean), len(a.Scale))
		}
		n.offset = cloneFinite(a.Mean)
		n.scale = nonZero(cloneFinite(a.Scale))
		if n.offset == nil || n.scale == nil {
			return nil, fmt.Errorf("%w: standard scaler has non-finite parameters", ErrModelUnavailable)
		}
		if len(a.DataMin) > 0 || len(a.DataMax) > 0 {
			if n.ranges, err = buildRanges(a.DataMin, a.DataMax, dim); err != nil {
				return nil, err
			}
		}

	case ScalerMinMax:
		if n.ranges, err = buildRanges(a.DataMin, a.DataMax, dim); err != nil {
			return nil, err
		}
		lo, hi := 0.0, 1.0
		if len(a.FeatureRange) > 0 {
			if len(a.FeatureRange) != 2 || a.FeatureRange[0] >= a.FeatureRange[1] {
				return nil, fmt.Errorf("%w: minmax feature_range must be [lo, hi] with lo < hi", ErrModelUnavailable)
			}
			lo, hi = a.FeatureRange[0], a.FeatureRange[1]
		}
		n.offset = make([]float64, dim)
		n.scale = make([]float64, dim)
		for i, r := range n.ranges {
			n.offset[i] = r.Min
			n.scale[i] = r.Max - r.Min
		}
		n.scale = nonZero(n.scale)
		n.mul = hi - lo
		n.add = lo

	default:
		return nil, fmt.Errorf("%w: unknown scaler kind %q", ErrModelUnavailable, a.Kind)
	}

	return n, nil
}

// Schema returns the feature order the scaler was fitted with
func (n *Normalizer) Schema() Schema {
	return n.schema
}

// Kind returns the scaler kind
func (n *Normalizer) Kind() string {
	return n.kind
}

// Ranges returns the training range per feature, or nil when unknown
func (n *Normalizer) Ranges() []Range {
	if n.ranges == nil {
		return nil
	}
	out := make([]Range, len(n.ranges))
	copy(out, n.ranges)
	return out
}

// Transform scales a positional reading
func (n *Normalizer) Transform(values []any) (NormalizedVector, error) {
	raw, err := n.coerce(values)
	if err != nil {
		return NormalizedVector{}, err
	}
	return n.apply(raw)
}

// TransformNamed scales a reading keyed by feature name
func (n *Normalizer) TransformNamed(fields map[string]any) (NormalizedVector, error) {
	values, err := n.schema.Order(fields)
	if err != nil {
		return NormalizedVector{}, err
	}
	return n.Transform(values)
}

// coerce checks arity and converts every field to float64
func (n *Normalizer) coerce(values []any) ([]float64, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: scaler not loaded", ErrModelUnavailable)
	}
	if len(values) != n.schema.Len() {
		return nil, fmt.Errorf("%w: expected %d features (%s), got %d",
			ErrSchemaMismatch, n.schema.Len(), n.schema, len(values))
	}

	raw := make([]float64, len(values))
	for i, v := range values {
		f, err := coerceFloat(v)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", n.schema.features[i], err)
		}
		raw[i] = f
	}
	return raw, nil
}

// apply runs the fitted transform on an arity-checked raw vector. A finite
// raw value can still overflow once scaled; that is reported as invalid input.
func (n *Normalizer) apply(raw []float64) (NormalizedVector, error) {
	out := make([]float64, len(raw))
	floats.SubTo(out, raw, n.offset)
	floats.Div(out, n.scale)
	if n.mul != 1 {
		floats.Scale(n.mul, out)
	}
	if n.add != 0 {
		floats.AddConst(n.add, out)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NormalizedVector{}, fmt.Errorf("%w: feature %q: value %g overflows after scaling",
				ErrInvalidInput, n.schema.features[i], raw[i])
		}
	}
	return NormalizedVector{values: out}, nil
}

// outOfRange lists the features whose raw value falls outside the
// training range. Values are never clamped.
func (n *Normalizer) outOfRange(raw []float64) []string {
	if n.ranges == nil {
		return nil
	}
	var names []string
	for i, r := range n.ranges {
		if raw[i] < r.Min || raw[i] > r.Max {
			names = append(names, n.schema.features[i])
		}
	}
	return names
}

func buildRanges(mins, maxs []float64, dim int) ([]Range, error) {
	if len(mins) != dim || len(maxs) != dim {
		return nil, fmt.Errorf("%w: scaler needs %d data_min and data_max values, got %d and %d",
			ErrModelUnavailable, dim, len(mins), len(maxs))
	}
	if cloneFinite(mins) == nil || cloneFinite(maxs) == nil {
		return nil, fmt.Errorf("%w: scaler range is not finite", ErrModelUnavailable)
	}
	ranges := make([]Range, dim)
	for i := range ranges {
		if mins[i] > maxs[i] {
			return nil, fmt.Errorf("%w: feature %d has data_min > data_max", ErrModelUnavailable, i)
		}
		ranges[i] = Range{Min: mins[i], Max: maxs[i]}
	}
	return ranges, nil
}

// cloneFinite copies s, returning nil if any element is NaN or infinite
func cloneFinite(s []float64) []float64 {
	if floats.HasNaN(s) {
		return nil
	}
	out := make([]float64, len(s))
	for i, v := range s {
		if math.IsInf(v, 0) {
			return nil
		}
		out[i] = v
	}
	return out
}

// nonZero replaces zero scales with 1, which leaves constant features centred
func nonZero(s []float64) []float64 {
	if s == nil {
		return nil
	}
	for i, v := range s {
		if v == 0 {
			s[i] = 1
		}
	}
	return s
}
