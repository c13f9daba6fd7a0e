package ml

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// ParamGrid lists the values tried for each forest hyperparameter.
// A MaxDepth of 0 stands for unbounded depth.
type ParamGrid struct {
	NEstimators     []int `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        []int `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit []int `json:"min_samples_split" yaml:"min_samples_split"`
}

func DefaultParamGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{100, 200, 300},
		MaxDepth:        []int{0, 10, 20, 30},
		MinSamplesSplit: []int{2, 5, 10},
	}
}

// Candidates expands the grid in a fixed order; base supplies every field
// the grid does not vary.
func (g ParamGrid) Candidates(base ForestParams) []ForestParams {
	nEstimators := orDefault(g.NEstimators, base.NEstimators)
	maxDepth := orDefault(g.MaxDepth, base.MaxDepth)
	minSplit := orDefault(g.MinSamplesSplit, base.MinSamplesSplit)

	out := make([]ForestParams, 0, len(nEstimators)*len(maxDepth)*len(minSplit))
	for _, depth := range maxDepth {
		for _, split := range minSplit {
			for _, n := range nEstimators {
				p := base
				p.NEstimators = n
				p.MaxDepth = depth
				p.MinSamplesSplit = split
				out = append(out, p)
			}
		}
	}
	return out
}

func orDefault(values []int, fallback int) []int {
	if len(values) == 0 {
		return []int{fallback}
	}
	return values
}

type GridSearchConfig struct {
	Grid    ParamGrid
	Base    ForestParams
	Folds   int
	Workers int
}

type CandidateScore struct {
	Params     ForestParams `json:"params"`
	MeanScore  float64      `json:"mean_score"`
	FoldScores []float64    `json:"fold_scores"`
}

type GridSearchResult struct {
	Best      ForestParams     `json:"best"`
	BestScore float64          `json:"best_score"`
	Scores    []CandidateScore `json:"scores"`
	Duration  time.Duration    `json:"duration"`
	Model     *RandomForest    `json:"-"`
}

// GridSearch scores every candidate by mean stratified k-fold accuracy,
// then refits the best one on all rows. The earliest candidate wins ties.
func GridSearch(ctx context.Context, config GridSearchConfig, features [][]float64, labels []int) (*GridSearchResult, error) {
	start := time.Now()
	if config.Folds == 0 {
		config.Folds = 5
	}
	folds, err := StratifiedKFold(labels, config.Folds)
	if err != nil {
		return nil, err
	}
	for f, fold := range folds {
		if len(fold) == 0 {
			return nil, errors.Newf("validation fold %d is empty", f)
		}
	}
	candidates := config.Grid.Candidates(config.Base)
	if len(candidates) == 0 {
		return nil, errors.New("empty parameter grid")
	}

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(config.Workers))
	for c := range candidates {
		for f := range folds {
			c, f := c, f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				validIdx := folds[f]
				trainIdx := Complement(len(labels), validIdx)
				params := candidates[c]
				params.Workers = 1
				model := NewRandomForest(params)
				if err := model.Fit(gctx, TakeRows(features, trainIdx), TakeLabels(labels, trainIdx)); err != nil {
					return errors.Wrapf(err, "candidate %d fold %d", c, f)
				}
				predicted, err := model.PredictAll(TakeRows(features, validIdx))
				if err != nil {
					return err
				}
				scores[c][f] = Accuracy(predicted, TakeLabels(labels, validIdx))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &GridSearchResult{Scores: make([]CandidateScore, len(candidates)), BestScore: -1}
	for c, params := range candidates {
		mean := 0.0
		for _, s := range scores[c] {
			mean += s
		}
		mean /= float64(len(scores[c]))
		result.Scores[c] = CandidateScore{Params: params, MeanScore: mean, FoldScores: scores[c]}
		if mean > result.BestScore {
			result.BestScore = mean
			result.Best = params
		}
	}

	best := result.Best
	best.Workers = config.Workers
	model := NewRandomForest(best)
	if err := model.Fit(ctx, features, labels); err != nil {
		return nil, errors.Wrap(err, "refit best candidate")
	}
	result.Model = model
	result.Duration = time.Since(start)
	return result, nil
}
