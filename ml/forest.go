package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// ForestParams configures a RandomForest. MaxDepth 0 means unbounded,
// MaxFeatures 0 means floor(sqrt(features)).
type ForestParams struct {
	NEstimators     int   `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int   `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"min_samples_split"`
	MaxFeatures     int   `json:"max_features" yaml:"max_features"`
	Seed            int64 `json:"seed" yaml:"seed"`
	Workers         int   `json:"-" yaml:"workers"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// RandomForest averages the leaf distributions of bootstrapped trees.
// Tree i draws from its own source seeded with Seed+i, so a fit is
// reproducible regardless of how many workers run it.
type RandomForest struct {
	Params  ForestParams    `json:"params"`
	Classes []int           `json:"classes"`
	Trees   []*DecisionTree `json:"trees"`
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &RandomForest{Params: params}
}

func (f *RandomForest) Train(features [][]float64, labels []int) error {
	return f.Fit(context.Background(), features, labels)
}

func (f *RandomForest) Fit(ctx context.Context, features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}

	classes := UniqueLabels(labels)
	width := len(features[0])
	maxFeatures := f.Params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	}
	treeParams := TreeParams{
		MaxDepth:        f.Params.MaxDepth,
		MinSamplesSplit: f.Params.MinSamplesSplit,
		MaxFeatures:     maxFeatures,
	}

	trees := make([]*DecisionTree, f.Params.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(f.Params.Workers))
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.Params.Seed + int64(i)))
			n := len(features)
			sampleX := make([][]float64, n)
			sampleY := make([]int, n)
			for j := 0; j < n; j++ {
				k := rng.Intn(n)
				sampleX[j] = features[k]
				sampleY[j] = labels[k]
			}
			tree := NewDecisionTree(treeParams)
			if err := tree.fit(sampleX, sampleY, classes, rng); err != nil {
				return errors.Wrapf(err, "tree %d", i)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Classes = classes
	f.Trees = trees
	return nil
}

func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	votes := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range dist {
			votes[i] += p
		}
	}
	for i := range votes {
		votes[i] /= float64(len(f.Trees))
	}
	return votes, nil
}

// Predict returns the class with the highest mean vote and that vote share.
func (f *RandomForest) Predict(features []float64) (int, float64, error) {
	votes, err := f.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(votes)
	return f.Classes[best], votes[best], nil
}

func (f *RandomForest) PredictAll(rows [][]float64) ([]int, error) {
	out := make([]int, len(rows))
	for i, row := range rows {
		label, _, err := f.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

func (f *RandomForest) Save(path string) error {
	if len(f.Trees) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (f *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, f)
}

func workerLimit(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}
