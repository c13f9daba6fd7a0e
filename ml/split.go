package ml

import (
	"math"
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"
)

// TrainTestSplit shuffles row indices with a seeded source and holds out
// ceil(n*testRatio) of them. With stratify set, each class contributes its
// own rounded share so class proportions survive the split.
func TrainTestSplit(n int, testRatio float64, seed int64, stratify []int) (train, test []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))

	if stratify == nil {
		indices := rnd.Perm(n)
		nTest := int(math.Ceil(float64(n) * testRatio))
		return indices[nTest:], indices[:nTest]
	}

	byClass := make(map[int][]int)
	for i := 0; i < n; i++ {
		byClass[stratify[i]] = append(byClass[stratify[i]], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		members := byClass[c]
		rnd.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		nTest := int(math.Round(float64(len(members)) * testRatio))
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	rnd.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rnd.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test
}

// StratifiedKFold returns k disjoint validation folds. Each class's rows, in
// their original order, are dealt into k contiguous chunks whose sizes
// differ by at most one. The extra rows of a class go to the folds after
// those that took the previous class's extras, so no fold is left empty
// while there are at least k rows.
func StratifiedKFold(labels []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, errors.Newf("folds must be at least 2, got %d", k)
	}
	if len(labels) < k {
		return nil, errors.Newf("cannot split %d samples into %d folds", len(labels), k)
	}
	folds := make([][]int, k)
	offset := 0
	for _, class := range UniqueLabels(labels) {
		members := make([]int, 0)
		for i, label := range labels {
			if label == class {
				members = append(members, i)
			}
		}
		start, extra := 0, len(members)%k
		for f := 0; f < k; f++ {
			size := len(members) / k
			if f < extra {
				size++
			}
			fold := (offset + f) % k
			folds[fold] = append(folds[fold], members[start:start+size]...)
			start += size
		}
		offset = (offset + extra) % k
	}
	for f := range folds {
		sort.Ints(folds[f])
	}
	return folds, nil
}

// Complement returns the indices in [0,n) not present in subset.
func Complement(n int, subset []int) []int {
	skip := make(map[int]bool, len(subset))
	for _, i := range subset {
		skip[i] = true
	}
	out := make([]int, 0, n-len(subset))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

func TakeRows(features [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = features[j]
	}
	return out
}

func TakeLabels(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
