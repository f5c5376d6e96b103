package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ScorerConfig holds Scorer tuning parameters
type ScorerConfig struct {
	MinTrainingSamples int
	Mapper             ScoreMapper
}

// Status describes the scorer's current lifecycle state
type Status struct {
	IsTrained   bool       `json:"is_trained"`
	ModelType   string     `json:"model_type"`
	ModelPath   string     `json:"model_path"`
	Features    []string   `json:"features"`
	TrainedAt   *time.Time `json:"trained_at,omitempty"`
	SamplesUsed int        `json:"samples_used"`
}

// trainedState is immutable once published
type trainedState struct {
	model     Model
	trainedAt time.Time
	samples   int
}

// Scorer owns the fraud model lifecycle. Predict is lock-free and reads a
// published state; Train builds a new state and swaps it in atomically.
type Scorer struct {
	estimator  Estimator
	store      SnapshotStore
	mapper     ScoreMapper
	minSamples int
	logger     *slog.Logger
	now        func() time.Time

	state   atomic.Pointer[trainedState]
	trainMu sync.Mutex
}

// NewScorer creates an Untrained scorer. Call Load to restore a snapshot.
func NewScorer(estimator Estimator, store SnapshotStore, config ScorerConfig, logger *slog.Logger) *Scorer {
	mapper := config.Mapper
	if mapper == nil {
		mapper = DefaultMapper
	}
	if config.MinTrainingSamples <= 0 {
		config.MinTrainingSamples = 100
	}
	return &Scorer{
		estimator:  estimator,
		store:      store,
		mapper:     mapper,
		minSamples: config.MinTrainingSamples,
		logger:     logger,
		now:        time.Now,
	}
}

// Load restores the persisted model. A missing snapshot is not an error. An
// unreadable or incompatible snapshot leaves the scorer Untrained and the
// error is returned for the caller to log.
func (s *Scorer) Load(ctx context.Context) error {
	data, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			s.logger.Info("no fraud model snapshot found, starting untrained",
				slog.String("location", s.store.Location()))
			return nil
		}
		return fmt.Errorf("load fraud model: %w", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("load fraud model: %w", err)
	}
	if snap.ModelType != s.estimator.Name() {
		return fmt.Errorf("load fraud model: snapshot model %q does not match %q", snap.ModelType, s.estimator.Name())
	}
	if snap.FeatureSchema != FeatureSchema {
		return fmt.Errorf("load fraud model: snapshot feature schema %q does not match %q", snap.FeatureSchema, FeatureSchema)
	}

	model, err := s.estimator.Decode(snap.Model)
	if err != nil {
		return fmt.Errorf("load fraud model: %w", err)
	}

	s.state.Store(&trainedState{model: model, trainedAt: snap.TrainedAt, samples: snap.SamplesUsed})
	s.logger.Info("fraud model loaded",
		slog.String("location", s.store.Location()),
		slog.Int("samples_used", snap.SamplesUsed),
		slog.Time("trained_at", snap.TrainedAt))
	return nil
}

// Predict scores a feature vector against the currently published model
func (s *Scorer) Predict(v FeatureVector) Prediction {
	st := s.state.Load()
	if st == nil {
		return UntrainedPrediction()
	}

	raw, outlier := st.model.Decision(v[:])
	score := clamp01(s.mapper.Map(raw))
	if math.IsNaN(score) {
		return UntrainedPrediction()
	}
	score = math.Round(score*1000) / 1000

	return Prediction{
		FraudScore:   score,
		IsSuspicious: outlier,
		RiskLevel:    RiskLevelFor(score),
		RawScore:     raw,
	}
}

// Train fits a new model, persists it, then publishes it. On any failure the
// previously published model stays live.
func (s *Scorer) Train(ctx context.Context, rows [][]float64) error {
	if len(rows) < s.minSamples {
		return &InsufficientDataError{Have: len(rows), Need: s.minSamples}
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	model, err := s.estimator.Fit(rows)
	if err != nil {
		return fmt.Errorf("fit fraud model: %w", err)
	}

	payload, err := model.MarshalBinary()
	if err != nil {
		return err
	}

	trainedAt := s.now().UTC()
	data, err := EncodeSnapshot(&Snapshot{
		ModelType:     s.estimator.Name(),
		FeatureSchema: FeatureSchema,
		TrainedAt:     trainedAt,
		SamplesUsed:   len(rows),
		Model:         payload,
	})
	if err != nil {
		return err
	}

	if err := s.store.Save(ctx, data); err != nil {
		return fmt.Errorf("persist fraud model: %w", err)
	}

	s.state.Store(&trainedState{model: model, trainedAt: trainedAt, samples: len(rows)})
	s.logger.Info("fraud model trained",
		slog.Int("samples_used", len(rows)),
		slog.String("location", s.store.Location()))
	return nil
}

// IsTrained reports whether a model is published
func (s *Scorer) IsTrained() bool {
	return s.state.Load() != nil
}

// MinTrainingSamples returns the configured training minimum
func (s *Scorer) MinTrainingSamples() int {
	return s.minSamples
}

// Status returns a point-in-time view of the scorer
func (s *Scorer) Status() Status {
	status := Status{
		ModelType: s.estimator.Name(),
		ModelPath: s.store.Location(),
		Features:  Names(),
	}
	if st := s.state.Load(); st != nil {
		trainedAt := st.trainedAt
		status.IsTrained = true
		status.TrainedAt = &trainedAt
		status.SamplesUsed = st.samples
	}
	return status
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
