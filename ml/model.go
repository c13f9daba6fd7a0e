package ml

// MLModel is a trained classifier over dense numeric feature vectors.
// Predict returns the class label and the model's confidence in it.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	Save(path string) error
	Load(path string) error
}

var (
	_ MLModel = (*DecisionTree)(nil)
	_ MLModel = (*RandomForest)(nil)
)
