package ml

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
)

// blobs returns three well separated 2-D clusters labelled 1, 2 and 3.
func blobs(perClass int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	centres := [][2]float64{{0, 0}, {5, 5}, {0, 10}}
	var features [][]float64
	var labels []int
	for c, centre := range centres {
		for i := 0; i < perClass; i++ {
			features = append(features, []float64{
				centre[0] + rnd.NormFloat64()*0.5,
				centre[1] + rnd.NormFloat64()*0.5,
			})
			labels = append(labels, c+1)
		}
	}
	return features, labels
}

func TestRandomForestSeparableData(t *testing.T) {
	features, labels := blobs(40, 1)
	forest := NewRandomForest(ForestParams{NEstimators: 25, Seed: 42})
	if err := forest.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predicted, err := forest.PredictAll(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc := Accuracy(predicted, labels); acc < 0.95 {
		t.Fatalf("expected training accuracy >= 0.95, got %.2f", acc)
	}

	label, confidence, err := forest.Predict([]float64{5, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 2 {
		t.Fatalf("expected label 2, got %d", label)
	}
	if confidence <= 0.5 || confidence > 1 {
		t.Fatalf("unexpected confidence %f", confidence)
	}
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	features, labels := blobs(30, 7)
	probe := [][]float64{{2.5, 2.5}, {2.5, 7.5}, {0, 5}, {4, 9}}

	var first [][]float64
	for _, workers := range []int{1, 4} {
		forest := NewRandomForest(ForestParams{NEstimators: 15, Seed: 42, Workers: workers})
		if err := forest.Fit(context.Background(), features, labels); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var probs [][]float64
		for _, row := range probe {
			p, err := forest.PredictProba(row)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			probs = append(probs, p)
		}
		if first == nil {
			first = probs
			continue
		}
		for i := range probs {
			for j := range probs[i] {
				if probs[i][j] != first[i][j] {
					t.Fatalf("probe %d class %d: %f != %f", i, j, probs[i][j], first[i][j])
				}
			}
		}
	}
}

func TestRandomForestCancelled(t *testing.T) {
	features, labels := blobs(10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	forest := NewRandomForest(ForestParams{NEstimators: 10, Workers: 1})
	if err := forest.Fit(ctx, features, labels); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	features, labels := blobs(20, 5)
	forest := NewRandomForest(ForestParams{NEstimators: 5, Seed: 1})
	if err := forest.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "forest.json")
	if err := forest.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadModel(ModelRandomForest, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, row := range features {
		want, wantConf, _ := forest.Predict(row)
		got, gotConf, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want || gotConf != wantConf {
			t.Fatalf("loaded forest disagrees: want %d/%f, got %d/%f", want, wantConf, got, gotConf)
		}
	}
}

func TestLoadModelUnsupported(t *testing.T) {
	if _, err := LoadModel("svm", "nowhere"); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}
