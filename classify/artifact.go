package classify

import (
	"sort"
	"time"

	"herhealth/ml"
)

// LabelMap turns a raw forest class into a display label.
type LabelMap interface {
	Label(class int) (string, bool)
	Labels() []string
}

// StaticLabels maps integer dataset classes, e.g. 1 -> "Normal".
type StaticLabels map[int]string

func (m StaticLabels) Label(class int) (string, bool) {
	label, ok := m[class]
	return label, ok
}

func (m StaticLabels) Labels() []string {
	classes := make([]int, 0, len(m))
	for c := range m {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = m[c]
	}
	return out
}

// EncodedLabels inverts a fitted LabelEncoder.
type EncodedLabels struct {
	Encoder *ml.LabelEncoder
}

func (e EncodedLabels) Label(class int) (string, bool) {
	return e.Encoder.Inverse(class)
}

func (e EncodedLabels) Labels() []string {
	return append([]string(nil), e.Encoder.Classes...)
}

// Artifact is everything a trained classifier needs to predict. It is built
// once by Train and never modified afterwards.
type Artifact struct {
	Scaler     ml.Scaler
	Model      *ml.RandomForest
	Labels     LabelMap
	Params     ml.ForestParams
	Metrics    ml.Metrics
	DataPoints int
	TrainedAt  time.Time
}
