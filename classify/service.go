package classify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"herhealth/logging"
)

// UnknownLabel is shown for a class the label map does not know.
const UnknownLabel = "Unknown"

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is one prediction.
type Result struct {
	Label      string  `json:"label"`
	Advice     string  `json:"advice,omitempty"`
	Class      int     `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Trainer builds an artifact from a definition. Train is the default.
type Trainer func(ctx context.Context, def Definition) (*Artifact, error)

// Recorder is told about every successful initialization.
type Recorder func(ctx context.Context, classifier string, artifact *Artifact) error

type Option func(*Service)

func WithTrainer(train Trainer) Option {
	return func(s *Service) { s.train = train }
}

func WithRecorder(record Recorder) Option {
	return func(s *Service) { s.record = record }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = log }
}

// Service owns one classifier instance. It starts uninitialized, is
// trained at most once, and then serves predictions from an artifact that
// never changes. A failed initialization is final for the process.
type Service struct {
	def    Definition
	train  Trainer
	record Recorder
	log    *zap.SugaredLogger

	mu       sync.Mutex
	state    atomic.Int32
	artifact atomic.Pointer[Artifact]
	err      error
}

func NewService(def Definition, opts ...Option) *Service {
	s := &Service{def: def, train: Train}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.ComponentLogger("classify")
	}
	s.log = s.log.With(logging.FieldClassifier, def.Name)
	return s
}

func (s *Service) Name() string {
	return s.def.Name
}

func (s *Service) Schema() Schema {
	return s.def.Schema
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Err returns the initialization failure of a failed service.
func (s *Service) Err() error {
	if s.State() != StateFailed {
		return nil
	}
	return s.err
}

// Artifact returns the published artifact, or nil before it is ready.
func (s *Service) Artifact() *Artifact {
	return s.artifact.Load()
}

// Initialize trains the classifier. Concurrent callers wait for the single
// attempt; later calls return its outcome without training again.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateReady:
		return nil
	case StateFailed:
		return s.err
	}

	s.state.Store(int32(StateInitializing))
	s.log.Infow("initializing classifier", "dataset", s.def.Dataset)

	artifact, err := s.train(ctx, s.def)
	if err == nil && artifact == nil {
		err = fitFailure(s.def.Name, errors.New("trainer returned no artifact"))
	}
	if err != nil {
		s.err = err
		s.state.Store(int32(StateFailed))
		s.log.Errorw("classifier initialization failed",
			logging.FieldState, StateFailed.String(), logging.FieldError, err)
		return err
	}

	s.artifact.Store(artifact)
	s.state.Store(int32(StateReady))
	s.log.Infow("classifier initialized", logging.FieldState, StateReady.String(),
		"data_points", artifact.DataPoints)

	if s.record != nil {
		if err := s.record(ctx, s.def.Name, artifact); err != nil {
			s.log.Warnw("failed to record training run", logging.FieldError, err)
		}
	}
	return nil
}

// Predict classifies one vector in schema order.
func (s *Service) Predict(values []float64) (Result, error) {
	artifact := s.artifact.Load()
	if artifact == nil {
		return Result{}, errors.Wrap(ErrNotInitialized, s.def.Name)
	}
	if err := s.def.Schema.Validate(values); err != nil {
		return Result{}, err
	}

	scaled, err := artifact.Scaler.Transform(values)
	if err != nil {
		return Result{}, errors.Wrap(err, "scale features")
	}
	class, confidence, err := artifact.Model.Predict(scaled)
	if err != nil {
		return Result{}, errors.Wrap(err, "predict")
	}

	label, ok := "", false
	if artifact.Labels != nil {
		label, ok = artifact.Labels.Label(class)
	}
	if !ok {
		label = UnknownLabel
		s.log.Warnw("classifier produced a class with no label", "class", class)
	}

	result := Result{Label: label, Class: class, Confidence: confidence}
	if s.def.Advise != nil {
		result.Advice = s.def.Advise(label)
	}
	return result, nil
}

// PredictPayload orders a named payload by the schema and predicts.
func (s *Service) PredictPayload(payload map[string]float64) (Result, error) {
	if s.artifact.Load() == nil {
		return Result{}, errors.Wrap(ErrNotInitialized, s.def.Name)
	}
	values, err := s.def.Schema.Vector(payload)
	if err != nil {
		return Result{}, err
	}
	return s.Predict(values)
}
