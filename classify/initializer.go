package classify

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"herhealth/logging"
	"herhealth/ml"
)

// Definition describes how one classifier instance is trained.
type Definition struct {
	Name    string
	Dataset string
	Schema  Schema
	Target  string

	// EncodeTarget treats the target column as strings and encodes them in
	// sorted order. Otherwise the column must be integral and Labels names
	// each class.
	EncodeTarget bool
	Labels       StaticLabels

	Scaler    string
	TestRatio float64
	Seed      int64
	Stratify  bool

	Forest ml.ForestParams
	// Grid, when set, replaces Forest's tree count, depth and split size
	// with the best cross-validated combination.
	Grid    *ml.ParamGrid
	Folds   int
	Workers int

	Advise func(label string) string
}

// Train loads the dataset and fits a fresh artifact. The same dataset and
// seed always produce the same artifact.
func Train(ctx context.Context, def Definition) (*Artifact, error) {
	log := logging.ComponentLogger("classify").With(logging.FieldClassifier, def.Name)
	start := time.Now()

	table, err := ml.LoadCSV(def.Dataset)
	if err != nil {
		return nil, datasetMissing(def.Name, errors.Wrapf(err, "load dataset %s", def.Dataset))
	}

	artifact, err := fit(ctx, def, table)
	if err != nil {
		return nil, fitFailure(def.Name, err)
	}

	log.Infow("classifier trained",
		"data_points", artifact.DataPoints,
		"accuracy", artifact.Metrics.Accuracy,
		"n_estimators", artifact.Params.NEstimators,
		"max_depth", artifact.Params.MaxDepth,
		"min_samples_split", artifact.Params.MinSamplesSplit,
		logging.FieldDurationMS, time.Since(start).Milliseconds())
	return artifact, nil
}

func fit(ctx context.Context, def Definition, table *ml.Table) (*Artifact, error) {
	log := logging.ComponentLogger("classify").With(logging.FieldClassifier, def.Name)

	if removed := table.Dedupe(); removed > 0 {
		log.Debugw("dropped duplicate records", logging.FieldCount, removed)
	}
	if table.Len() < 2 {
		return nil, errors.Newf("dataset has %d usable records", table.Len())
	}

	features, err := table.Floats(def.Schema.Columns()...)
	if err != nil {
		return nil, errors.Wrap(err, "read features")
	}
	labels, labelMap, err := targets(def, table)
	if err != nil {
		return nil, errors.Wrap(err, "read target")
	}

	var stratify []int
	if def.Stratify {
		stratify = labels
	}
	trainIdx, testIdx := ml.TrainTestSplit(len(features), def.TestRatio, def.Seed, stratify)
	xTrain, yTrain := ml.TakeRows(features, trainIdx), ml.TakeLabels(labels, trainIdx)
	xTest, yTest := ml.TakeRows(features, testIdx), ml.TakeLabels(labels, testIdx)

	scaler, err := ml.NewScaler(def.Scaler)
	if err != nil {
		return nil, err
	}
	if err := scaler.Fit(xTrain); err != nil {
		return nil, errors.Wrap(err, "fit scaler")
	}
	xTrainScaled, err := ml.TransformAll(scaler, xTrain)
	if err != nil {
		return nil, err
	}

	// one seed drives the split, the bootstraps and the feature draws
	params := def.Forest
	params.Seed = def.Seed
	params.Workers = def.Workers

	var model *ml.RandomForest
	if def.Grid != nil {
		result, err := ml.GridSearch(ctx, ml.GridSearchConfig{
			Grid:    *def.Grid,
			Base:    params,
			Folds:   def.Folds,
			Workers: def.Workers,
		}, xTrainScaled, yTrain)
		if err != nil {
			return nil, errors.Wrap(err, "grid search")
		}
		log.Infow("grid search finished",
			"candidates", len(result.Scores),
			"best_score", result.BestScore,
			logging.FieldDurationMS, result.Duration.Milliseconds())
		model, params = result.Model, result.Best
	} else {
		model = ml.NewRandomForest(params)
		if err := model.Fit(ctx, xTrainScaled, yTrain); err != nil {
			return nil, errors.Wrap(err, "fit forest")
		}
		params = model.Params
	}

	var metrics ml.Metrics
	if len(xTest) > 0 {
		xTestScaled, err := ml.TransformAll(scaler, xTest)
		if err != nil {
			return nil, err
		}
		predicted, err := model.PredictAll(xTestScaled)
		if err != nil {
			return nil, err
		}
		metrics = ml.Evaluate(predicted, yTest)
	}

	return &Artifact{
		Scaler:     scaler,
		Model:      model,
		Labels:     labelMap,
		Params:     params,
		Metrics:    metrics,
		DataPoints: len(features),
		TrainedAt:  time.Now().UTC(),
	}, nil
}

func targets(def Definition, table *ml.Table) ([]int, LabelMap, error) {
	if def.EncodeTarget {
		values, err := table.Strings(def.Target)
		if err != nil {
			return nil, nil, err
		}
		encoder := &ml.LabelEncoder{}
		return encoder.FitTransform(values), EncodedLabels{Encoder: encoder}, nil
	}
	values, err := table.Ints(def.Target)
	if err != nil {
		return nil, nil, err
	}
	return values, def.Labels, nil
}
