package background

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/services"
)

// Retrainer rebuilds the fraud model from the ledger
type Retrainer interface {
	Retrain(ctx context.Context) (*services.TrainResult, error)
}

// RetrainScheduler periodically retrains the fraud model
type RetrainScheduler struct {
	retrainer Retrainer
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewRetrainScheduler creates a new scheduler. An interval of zero disables it.
func NewRetrainScheduler(retrainer Retrainer, logger *slog.Logger, interval time.Duration) *RetrainScheduler {
	return &RetrainScheduler{
		retrainer: retrainer,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start retrains every interval until Stop is called or ctx is done. The
// first run happens after one interval; startup uses the persisted model.
func (rs *RetrainScheduler) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("scheduled fraud model retraining disabled")
		return
	}

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rs.runRetrain(ctx)
		case <-rs.stopCh:
			rs.logger.Info("retrain scheduler stopped")
			return
		case <-ctx.Done():
			rs.logger.Info("retrain scheduler context cancelled")
			return
		}
	}
}

func (rs *RetrainScheduler) runRetrain(ctx context.Context) {
	result, err := rs.retrainer.Retrain(ctx)
	if err != nil {
		if errors.Is(err, fraud.ErrInsufficientData) {
			rs.logger.Info("skipping scheduled retrain", slog.String("reason", err.Error()))
			return
		}
		rs.logger.Error("scheduled retrain failed", slog.Any("error", err))
		return
	}

	rs.logger.Info("scheduled retrain completed", slog.Int("samples_used", result.SamplesUsed))
}

// Stop signals the scheduler to stop
func (rs *RetrainScheduler) Stop() {
	close(rs.stopCh)
}
