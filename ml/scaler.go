package ml

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Scaler is a fitted per-feature affine transform.
type Scaler interface {
	Fit(features [][]float64) error
	Transform(vector []float64) ([]float64, error)
}

const (
	ScalerMinMax   = "minmax"
	ScalerStandard = "standard"
)

func NewScaler(kind string) (Scaler, error) {
	switch kind {
	case ScalerMinMax:
		return &MinMaxScaler{}, nil
	case ScalerStandard:
		return &StandardScaler{}, nil
	default:
		return nil, errors.Newf("unsupported scaler %q", kind)
	}
}

func TransformAll(s Scaler, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

// MinMaxScaler maps each feature onto [0,1] using the fitted range.
// Values outside the fitted range are not clipped.
type MinMaxScaler struct {
	Mins []float64 `json:"mins"`
	Maxs []float64 `json:"maxs"`
}

func (s *MinMaxScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	s.Mins = make([]float64, width)
	s.Maxs = make([]float64, width)
	for j := 0; j < width; j++ {
		s.Mins[j] = math.Inf(1)
		s.Maxs[j] = math.Inf(-1)
	}
	for _, row := range features {
		if len(row) != width {
			return errors.New("ragged feature matrix")
		}
		for j, v := range row {
			s.Mins[j] = math.Min(s.Mins[j], v)
			s.Maxs[j] = math.Max(s.Maxs[j], v)
		}
	}
	return nil
}

func (s *MinMaxScaler) Transform(vector []float64) ([]float64, error) {
	if s.Mins == nil {
		return nil, errors.New("scaler not fitted")
	}
	return NormalizeVector(vector, s.Mins, s.Maxs)
}

// StandardScaler centres each feature and divides by the population
// standard deviation. Constant features keep a scale of 1.
type StandardScaler struct {
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`
}

func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	n := float64(len(features))
	s.Means = make([]float64, width)
	s.Scales = make([]float64, width)
	for _, row := range features {
		if len(row) != width {
			return errors.New("ragged feature matrix")
		}
		for j, v := range row {
			s.Means[j] += v
		}
	}
	for j := range s.Means {
		s.Means[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			d := v - s.Means[j]
			s.Scales[j] += d * d
		}
	}
	for j := range s.Scales {
		std := math.Sqrt(s.Scales[j] / n)
		if std == 0 {
			std = 1
		}
		s.Scales[j] = std
	}
	return nil
}

func (s *StandardScaler) Transform(vector []float64) ([]float64, error) {
	if s.Means == nil {
		return nil, errors.New("scaler not fitted")
	}
	if len(vector) != len(s.Means) {
		return nil, errors.Newf("expected %d features, got %d", len(s.Means), len(vector))
	}
	out := make([]float64, len(vector))
	for j, v := range vector {
		out[j] = (v - s.Means[j]) / s.Scales[j]
	}
	return out, nil
}

// NormalizeFeature maps [min,max] onto [0,1]. A constant feature keeps a
// unit range, so it only shifts by min.
func NormalizeFeature(value, min, max float64) float64 {
	if max == min {
		return value - min
	}
	return (value - min) / (max - min)
}

func NormalizeVector(values []float64, mins []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(mins) || len(values) != len(maxs) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], mins[i], maxs[i])
	}
	return result, nil
}
