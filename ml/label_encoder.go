package ml

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// LabelEncoder maps string labels to codes in sorted order, so "high risk"
// < "low risk" < "mid risk" encode as 0, 1, 2.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) Fit(values []string) {
	seen := make(map[string]bool)
	classes := make([]string, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	e.Classes = classes
}

func (e *LabelEncoder) FitTransform(values []string) []int {
	e.Fit(values)
	codes, _ := e.Transform(values)
	return codes
}

func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	index := make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		index[c] = i
	}
	codes := make([]int, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			return nil, errors.Newf("unseen label %q", v)
		}
		codes[i] = code
	}
	return codes, nil
}

func (e *LabelEncoder) Inverse(code int) (string, bool) {
	if code < 0 || code >= len(e.Classes) {
		return "", false
	}
	return e.Classes[code], true
}
