package classify

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// Feature is one named input. Name is the request field, Column the dataset
// header it is read from during training.
type Feature struct {
	Name   string
	Column string
	Min    float64
	Max    float64
}

// Unbounded declares a feature that only has to be finite.
func Unbounded(name, column string) Feature {
	return Feature{Name: name, Column: column, Min: math.Inf(-1), Max: math.Inf(1)}
}

type featureJSON struct {
	Name   string   `json:"name"`
	Column string   `json:"column"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// MarshalJSON omits infinite bounds, which JSON cannot carry.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := featureJSON{Name: f.Name, Column: f.Column}
	if !math.IsInf(f.Min, 0) {
		lo := f.Min
		out.Min = &lo
	}
	if !math.IsInf(f.Max, 0) {
		hi := f.Max
		out.Max = &hi
	}
	return json.Marshal(out)
}

// Schema is the ordered feature list of a classifier. The order is the
// column order the scaler and forest are fitted with.
type Schema struct {
	Name     string    `json:"name"`
	Features []Feature `json:"features"`
}

// ValidationError reports the first offending feature.
type ValidationError struct {
	Feature string
	Value   float64
	Min     float64
	Max     float64
	Missing bool
}

func (e *ValidationError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("%s is required", e.Feature)
	case math.IsNaN(e.Value) || math.IsInf(e.Value, 0):
		return fmt.Sprintf("%s must be a finite number, got %v", e.Feature, e.Value)
	case math.IsInf(e.Max, 1):
		return fmt.Sprintf("%s must be at least %v, got %v", e.Feature, e.Min, e.Value)
	case math.IsInf(e.Min, -1):
		return fmt.Sprintf("%s must be at most %v, got %v", e.Feature, e.Max, e.Value)
	default:
		return fmt.Sprintf("%s must be between %v and %v, got %v", e.Feature, e.Min, e.Max, e.Value)
	}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func (s Schema) Columns() []string {
	out := make([]string, len(s.Features))
	for i, f := range s.Features {
		out[i] = f.Column
	}
	return out
}

func (s Schema) Names() []string {
	out := make([]string, len(s.Features))
	for i, f := range s.Features {
		out[i] = f.Name
	}
	return out
}

// Validate checks values against the declared bounds, inclusive, in
// declaration order and stops at the first violation.
func (s Schema) Validate(values []float64) error {
	if len(values) != len(s.Features) {
		return errors.Newf("%s expects %d features, got %d", s.Name, len(s.Features), len(values))
	}
	for i, f := range s.Features {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < f.Min || v > f.Max {
			return &ValidationError{Feature: f.Name, Value: v, Min: f.Min, Max: f.Max}
		}
	}
	return nil
}

// Vector orders a named payload by the schema. Unknown keys are ignored.
func (s Schema) Vector(payload map[string]float64) ([]float64, error) {
	out := make([]float64, len(s.Features))
	for i, f := range s.Features {
		v, ok := payload[f.Name]
		if !ok {
			return nil, &ValidationError{Feature: f.Name, Min: f.Min, Max: f.Max, Missing: true}
		}
		out[i] = v
	}
	return out, nil
}
