package ml

import (
	"context"
	"testing"
)

func TestParamGridCandidates(t *testing.T) {
	candidates := DefaultParamGrid().Candidates(DefaultForestParams())
	if len(candidates) != 36 {
		t.Fatalf("expected 36 candidates, got %d", len(candidates))
	}
	first := candidates[0]
	if first.NEstimators != 100 || first.MaxDepth != 0 || first.MinSamplesSplit != 2 || first.Seed != 42 {
		t.Fatalf("unexpected first candidate %+v", first)
	}

	single := ParamGrid{}.Candidates(ForestParams{NEstimators: 7, MinSamplesSplit: 3})
	if len(single) != 1 || single[0].NEstimators != 7 {
		t.Fatalf("empty grid should fall back to base params, got %+v", single)
	}
}

func TestGridSearchPicksAndRefits(t *testing.T) {
	features, labels := blobs(20, 11)
	config := GridSearchConfig{
		Grid: ParamGrid{
			NEstimators:     []int{3, 6},
			MaxDepth:        []int{1, 0},
			MinSamplesSplit: []int{2},
		},
		Base:  ForestParams{Seed: 42},
		Folds: 3,
	}
	result, err := GridSearch(context.Background(), config, features, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Scores) != 4 {
		t.Fatalf("expected 4 scored candidates, got %d", len(result.Scores))
	}
	if result.BestScore < 0.9 {
		t.Fatalf("expected cross-validated accuracy >= 0.9, got %.2f", result.BestScore)
	}
	if result.Model == nil || len(result.Model.Trees) != result.Best.NEstimators {
		t.Fatal("expected best candidate refit on all rows")
	}

	again, err := GridSearch(context.Background(), config, features, labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Best != result.Best || again.BestScore != result.BestScore {
		t.Fatalf("grid search not reproducible: %+v vs %+v", again.Best, result.Best)
	}
}
