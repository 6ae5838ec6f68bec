package ml

import (
	"fmt"
	"sort"
	"strings"
)

// Schema is the ordered list of feature names an artifact was fitted with.
// It is persisted inside every artifact and checked at load time, so a
// reordered feature pipeline fails loudly instead of predicting garbage.
type Schema struct {
	features []string
	index    map[string]int
}

// NewSchema builds a schema from an ordered, duplicate-free list of names
func NewSchema(features []string) (Schema, error) {
	if len(features) == 0 {
		return Schema{}, fmt.Errorf("schema has no features")
	}

	index := make(map[string]int, len(features))
	for i, name := range features {
		if strings.TrimSpace(name) == "" {
			return Schema{}, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return Schema{}, fmt.Errorf("feature %q listed twice", name)
		}
		index[name] = i
	}

	names := make([]string, len(features))
	copy(names, features)
	return Schema{features: names, index: index}, nil
}

// Len returns the arity of the schema
func (s Schema) Len() int {
	return len(s.features)
}

// Features returns a copy of the ordered feature names
func (s Schema) Features() []string {
	names := make([]string, len(s.features))
	copy(names, s.features)
	return names
}

// Equal reports whether both schemas list the same names in the same order
func (s Schema) Equal(other Schema) bool {
	if len(s.features) != len(other.features) {
		return false
	}
	for i := range s.features {
		if s.features[i] != other.features[i] {
			return false
		}
	}
	return true
}

// String renders the schema as a comma separated list
func (s Schema) String() string {
	return strings.Join(s.features, ",")
}

// Order arranges a reading keyed by feature name into schema order.
// Names the schema does not know are a schema mismatch; absent names are
// invalid input.
func (s Schema) Order(fields map[string]any) ([]any, error) {
	var unknown []string
	for name := range fields {
		if _, ok := s.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown features %s (expected %s)",
			ErrSchemaMismatch, strings.Join(unknown, ","), s)
	}

	values := make([]any, len(s.features))
	for i, name := range s.features {
		v, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing feature %q", ErrInvalidInput, name)
		}
		values[i] = v
	}
	return values, nil
}
