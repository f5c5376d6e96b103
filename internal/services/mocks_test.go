package services

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockScorer implements FraudScorer for testing
type MockScorer struct {
	PredictFunc func(v fraud.FeatureVector) fraud.Prediction
}

func (m *MockScorer) Predict(v fraud.FeatureVector) fraud.Prediction {
	if m.PredictFunc != nil {
		return m.PredictFunc(v)
	}
	return fraud.UntrainedPrediction()
}

func fixedScore(score float64) *MockScorer {
	return &MockScorer{PredictFunc: func(fraud.FeatureVector) fraud.Prediction {
		return fraud.Prediction{FraudScore: score, RiskLevel: fraud.RiskLevelFor(score)}
	}}
}

// MockHasher implements PasswordHasher with plaintext digests
type MockHasher struct {
	mu          sync.Mutex
	verifyCalls int
	HashErr     error
}

func (m *MockHasher) Hash(password string) (string, error) {
	if m.HashErr != nil {
		return "", m.HashErr
	}
	return "hashed:" + password, nil
}

func (m *MockHasher) Verify(digest, password string) bool {
	m.mu.Lock()
	m.verifyCalls++
	m.mu.Unlock()
	return digest == "hashed:"+password
}

func (m *MockHasher) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls
}

// memoryLedger is an in-memory AttemptLedger and AttemptHistory
type memoryLedger struct {
	mu        sync.Mutex
	attempts  []*models.LoginAttempt
	RecordErr error
}

func (l *memoryLedger) Record(_ context.Context, attempt *models.LoginAttempt) (string, error) {
	if l.RecordErr != nil {
		return "", l.RecordErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *attempt
	copied.ID = strconv.Itoa(len(l.attempts) + 1)
	l.attempts = append(l.attempts, &copied)
	return copied.ID, nil
}

func (l *memoryLedger) RecentByEmail(_ context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.LoginAttempt
	for i := len(l.attempts) - 1; i >= 0; i-- {
		a := l.attempts[i]
		if a.Email == email && !a.OccurredAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *memoryLedger) CountFailed(_ context.Context, email string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.attempts {
		if a.Email == email && !a.Success && !a.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (l *memoryLedger) AllForTraining(_ context.Context, limit int) ([]*models.LoginAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.LoginAttempt
	for i := len(l.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.attempts[i])
	}
	return out, nil
}

func (l *memoryLedger) All() []*models.LoginAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.LoginAttempt(nil), l.attempts...)
}

// MockAlerter records security alerts
type MockAlerter struct {
	mu     sync.Mutex
	alerts []SuspiciousLoginAlert
	Err    error
}

func (m *MockAlerter) SendSuspiciousLoginAlert(_ context.Context, alert SuspiciousLoginAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.Err
}

func (m *MockAlerter) Alerts() []SuspiciousLoginAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SuspiciousLoginAlert(nil), m.alerts...)
}

type staticGeo map[string]string

func (g staticGeo) CountryCode(ip string) string {
	return g[ip]
}

// NewTestUser creates an active user whose password is "SecureP@ss123"
func NewTestUser(id, email string) *models.User {
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hashed:SecureP@ss123",
		Role:         "user",
		IsActive:     true,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
