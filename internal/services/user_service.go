package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// AttemptHistory reads a user's recent login attempts
type AttemptHistory interface {
	RecentByEmail(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error)
	CountFailed(ctx context.Context, email string, since time.Time) (int, error)
}

// LoginHistory is a user's recent attempts plus the failures that count
// toward the email rate limit
type LoginHistory struct {
	Attempts          []*models.LoginAttempt
	FailedInWindow    int
	AttemptsRemaining int
}

// UserService handles user business logic
type UserService struct {
	repo    UserRepository
	history AttemptHistory
	policy  LoginPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, history AttemptHistory, policy LoginPolicy, logger *slog.Logger) *UserService {
	return &UserService{
		repo:    repo,
		history: history,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// GetProfile retrieves a user by ID
func (s *UserService) GetProfile(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return userModelToResponse(user), nil
}

// LoginHistory returns the user's attempts from the last lookback period.
// The failure count always covers the rate-limit window.
func (s *UserService) LoginHistory(ctx context.Context, id string, lookback time.Duration) (*LoginHistory, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now().UTC()
	attempts, err := s.history.RecentByEmail(ctx, user.Email, now.Add(-lookback))
	if err != nil {
		s.logger.Error("failed to read login attempts", slog.String("user_id", id), slog.Any("error", err))
		return nil, asUnavailable(err, models.ErrLedgerUnavailable)
	}

	failed, err := s.history.CountFailed(ctx, user.Email, now.Add(-s.policy.RateLimitWindow))
	if err != nil {
		s.logger.Error("failed to count failed attempts", slog.String("user_id", id), slog.Any("error", err))
		return nil, asUnavailable(err, models.ErrLedgerUnavailable)
	}

	return &LoginHistory{
		Attempts:          attempts,
		FailedInWindow:    failed,
		AttemptsRemaining: max(s.policy.MaxLoginAttempts-failed, 0),
	}, nil
}
