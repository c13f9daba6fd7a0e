package ml

import (
	"github.com/cockroachdb/errors"
)

const (
	ModelDecisionTree = "decision_tree"
	ModelRandomForest = "random_forest"
)

func LoadModel(modelType, path string) (MLModel, error) {
	var model MLModel
	switch modelType {
	case ModelDecisionTree:
		model = &DecisionTree{}
	case ModelRandomForest:
		model = &RandomForest{}
	default:
		return nil, errors.Newf("unsupported model type %q", modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, errors.Wrapf(err, "load %s from %s", modelType, path)
	}
	return model, nil
}
