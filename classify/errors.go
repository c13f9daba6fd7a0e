package classify

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotInitialized = errors.New("classifier not initialized")
	ErrDatasetMissing = errors.New("dataset missing")
	ErrFitFailure     = errors.New("fit failure")
)

// InitError is returned by Train and Initialize. Err is marked with
// ErrDatasetMissing or ErrFitFailure.
type InitError struct {
	Classifier string
	Err        error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s classifier: %v", e.Classifier, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

func datasetMissing(classifier string, err error) error {
	return &InitError{Classifier: classifier, Err: errors.Mark(err, ErrDatasetMissing)}
}

func fitFailure(classifier string, err error) error {
	return &InitError{Classifier: classifier, Err: errors.Mark(err, ErrFitFailure)}
}
