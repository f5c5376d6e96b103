package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
)

// TrainingSource supplies historical attempts for model training
type TrainingSource interface {
	AllForTraining(ctx context.Context, limit int) ([]*models.LoginAttempt, error)
}

// ModelTrainer fits and publishes a fraud model
type ModelTrainer interface {
	Train(ctx context.Context, rows [][]float64) error
	MinTrainingSamples() int
}

// TrainResult summarizes a completed training run
type TrainResult struct {
	SamplesUsed int       `json:"samples_used"`
	Features    []string  `json:"features"`
	TrainedAt   time.Time `json:"trained_at"`
}

// TrainingService retrains the fraud model from the attempt ledger
type TrainingService struct {
	source  TrainingSource
	trainer ModelTrainer
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewTrainingService creates a new TrainingService. limit bounds the rows
// read per run.
func NewTrainingService(source TrainingSource, trainer ModelTrainer, limit int, logger *slog.Logger) *TrainingService {
	return &TrainingService{
		source:  source,
		trainer: trainer,
		limit:   limit,
		logger:  logger,
		now:     time.Now,
	}
}

// Retrain fits a new model on the newest attempts. It returns an error
// matching fraud.ErrInsufficientData when the ledger is too small.
func (s *TrainingService) Retrain(ctx context.Context) (*TrainResult, error) {
	attempts, err := s.source.AllForTraining(ctx, s.limit)
	if err != nil {
		s.logger.Error("failed to read training data", slog.Any("error", err))
		return nil, asUnavailable(err, models.ErrLedgerUnavailable)
	}

	if need := s.trainer.MinTrainingSamples(); len(attempts) < need {
		return nil, &fraud.InsufficientDataError{Have: len(attempts), Need: need}
	}

	rows := make([][]float64, len(attempts))
	for i, a := range attempts {
		rows[i] = fraud.Extract(a.Email, a.IPAddress, a.UserAgentValue(), a.OccurredAt).Slice()
	}

	if err := s.trainer.Train(ctx, rows); err != nil {
		return nil, fmt.Errorf("retrain fraud model: %w", err)
	}

	return &TrainResult{
		SamplesUsed: len(rows),
		Features:    fraud.Names(),
		TrainedAt:   s.now().UTC(),
	}, nil
}
