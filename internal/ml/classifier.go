package ml

import (
	"fmt"
	"math"

	"drain-guard/internal/models"
	"gonum.org/v1/gonum/floats"
)

// Classification is the classifier output for one vector
type Classification struct {
	Status        models.Status
	Probabilities []float64 // indexed like the artifact labels
}

// Confidence returns the probability of the predicted class
func (c Classification) Confidence() float64 {
	if len(c.Probabilities) == 0 {
		return 0
	}
	return floats.Max(c.Probabilities)
}

// Classifier maps a normalized vector to a drain status.
// It is immutable once built and safe for concurrent use.
type Classifier struct {
	schema  Schema
	kind    string
	version string
	labels  []models.Status

	coef      []float64
	intercept float64

	trees []tree
}

type tree struct {
	left      []int
	right     []int
	feature   []int
	threshold []float64
	proba     [][]float64 // per node, normalized to sum to 1 at leaves
}

// LoadClassifier reads a model artifact from disk
func LoadClassifier(path string) (*Classifier, error) {
	a, err := ReadModelArtifact(path)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// NewClassifier validates a decoded model artifact
func NewClassifier(a *ModelArtifact) (*Classifier, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: model artifact is nil", ErrModelUnavailable)
	}

	schema, err := NewSchema(a.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrModelUnavailable, err)
	}
	if err := validateLabels(a.Labels); err != nil {
		return nil, err
	}

	c := &Classifier{
		schema:  schema,
		kind:    a.Kind,
		version: a.Version,
		labels:  append([]models.Status(nil), a.Labels...),
	}

	switch a.Kind {
	case ModelLogistic:
		if len(a.Coef) != schema.Len() {
			return nil, fmt.Errorf("%w: logistic model needs %d coefficients, got %d",
				ErrModelUnavailable, schema.Len(), len(a.Coef))
		}
		if cloneFinite(a.Coef) == nil || math.IsNaN(a.Intercept) || math.IsInf(a.Intercept, 0) {
			return nil, fmt.Errorf("%w: logistic model has non-finite parameters", ErrModelUnavailable)
		}
		c.coef = append([]float64(nil), a.Coef...)
		c.intercept = a.Intercept

	case ModelForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest model has no trees", ErrModelUnavailable)
		}
		c.trees = make([]tree, len(a.Trees))
		for i := range a.Trees {
			t, err := newTree(&a.Trees[i], schema.Len(), len(c.labels))
			if err != nil {
				return nil, fmt.Errorf("%w: tree %d: %v", ErrModelUnavailable, i, err)
			}
			c.trees[i] = t
		}

	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrModelUnavailable, a.Kind)
	}

	return c, nil
}

// validateLabels requires a binary model whose classes are exactly
// NORMAL and BLOCKED in some order
func validateLabels(labels []models.Status) error {
	if len(labels) != 2 {
		return fmt.Errorf("%w: model must have 2 labels, got %d", ErrModelUnavailable, len(labels))
	}
	for _, l := range labels {
		if !l.Valid() {
			return fmt.Errorf("%w: unknown label %q", ErrModelUnavailable, l)
		}
	}
	if labels[0] == labels[1] {
		return fmt.Errorf("%w: label %q listed twice", ErrModelUnavailable, labels[0])
	}
	return nil
}

func newTree(a *TreeArtifact, nFeatures, nClasses int) (tree, error) {
	n := len(a.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(a.ChildrenRight) != n || len(a.Feature) != n || len(a.Threshold) != n || len(a.Value) != n {
		return tree{}, fmt.Errorf("node arrays differ in length")
	}

	t := tree{
		left:      append([]int(nil), a.ChildrenLeft...),
		right:     append([]int(nil), a.ChildrenRight...),
		feature:   append([]int(nil), a.Feature...),
		threshold: append([]float64(nil), a.Threshold...),
		proba:     make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		l, r := t.left[i], t.right[i]
		if l == -1 {
			if r != -1 {
				return tree{}, fmt.Errorf("node %d has only one child", i)
			}
			if len(a.Value[i]) != nClasses {
				return tree{}, fmt.Errorf("leaf %d has %d class values, want %d", i, len(a.Value[i]), nClasses)
			}
			p := append([]float64(nil), a.Value[i]...)
			sum := floats.Sum(p)
			if !(sum > 0) || math.IsInf(sum, 0) {
				return tree{}, fmt.Errorf("leaf %d has no class mass", i)
			}
			floats.Scale(1/sum, p)
			t.proba[i] = p
			continue
		}
		// Children always follow their parent, so traversal terminates.
		if l <= i || l >= n || r <= i || r >= n {
			return tree{}, fmt.Errorf("node %d has out-of-order children %d,%d", i, l, r)
		}
		if f := t.feature[i]; f < 0 || f >= nFeatures {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, f, nFeatures)
		}
		if math.IsNaN(t.threshold[i]) {
			return tree{}, fmt.Errorf("node %d has NaN threshold", i)
		}
	}
	return t, nil
}

// leaf walks the tree and returns the class distribution of the leaf reached
func (t *tree) leaf(x []float64) []float64 {
	node := 0
	for t.left[node] != -1 {
		if x[t.feature[node]] <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.proba[node]
}

// Schema returns the feature order the model was fitted with
func (c *Classifier) Schema() Schema {
	return c.schema
}

// Kind returns the model kind
func (c *Classifier) Kind() string {
	return c.kind
}

// Labels returns the class index to status mapping
func (c *Classifier) Labels() []models.Status {
	return append([]models.Status(nil), c.labels...)
}

// Classify predicts the drain status of a normalized vector
func (c *Classifier) Classify(v NormalizedVector) (Classification, error) {
	if c == nil || len(c.labels) == 0 {
		return Classification{}, fmt.Errorf("%w: classifier not loaded", ErrModelUnavailable)
	}
	if v.Len() != c.schema.Len() {
		return Classification{}, fmt.Errorf("%w: model expects %d features, vector has %d",
			ErrSchemaMismatch, c.schema.Len(), v.Len())
	}

	var (
		class int
		proba []float64
	)
	switch c.kind {
	case ModelLogistic:
		decision := floats.Dot(c.coef, v.values) + c.intercept
		// +Inf and -Inf terms cancel to NaN; there is no label to give
		if math.IsNaN(decision) {
			return Classification{}, fmt.Errorf("%w: decision function is undefined for this reading", ErrInvalidInput)
		}
		p1 := 1 / (1 + math.Exp(-decision))
		proba = []float64{1 - p1, p1}
		if decision > 0 {
			class = 1
		}

	case ModelForest:
		proba = make([]float64, len(c.labels))
		for i := range c.trees {
			floats.Add(proba, c.trees[i].leaf(v.values))
		}
		floats.Scale(1/float64(len(c.trees)), proba)
		// MaxIdx returns the first index on ties
		class = floats.MaxIdx(proba)
	}

	return Classification{Status: c.labels[class], Probabilities: proba}, nil
}
