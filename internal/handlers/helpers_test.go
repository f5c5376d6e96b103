package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	RegisterFunc func(ctx context.Context, email, password, fullName string) (*services.UserResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, fullName string) (*services.UserResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrEmailTaken
	}
	return m.RegisterFunc(ctx, email, password, fullName)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetProfileFunc   func(ctx context.Context, id string) (*services.UserResponse, error)
	LoginHistoryFunc func(ctx context.Context, id string, lookback time.Duration) (*services.LoginHistory, error)
}

func (m *MockUserService) GetProfile(ctx context.Context, id string) (*services.UserResponse, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, id)
}

func (m *MockUserService) LoginHistory(ctx context.Context, id string, lookback time.Duration) (*services.LoginHistory, error) {
	if m.LoginHistoryFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.LoginHistoryFunc(ctx, id, lookback)
}

// MockFraudModel implements FraudModel for testing
type MockFraudModel struct {
	PredictFunc func(v fraud.FeatureVector) fraud.Prediction
	StatusValue fraud.Status
}

func (m *MockFraudModel) Predict(v fraud.FeatureVector) fraud.Prediction {
	if m.PredictFunc == nil {
		return fraud.UntrainedPrediction()
	}
	return m.PredictFunc(v)
}

func (m *MockFraudModel) Status() fraud.Status {
	return m.StatusValue
}

// MockRetrainer implements ModelRetrainer for testing
type MockRetrainer struct {
	RetrainFunc func(ctx context.Context) (*services.TrainResult, error)
}

func (m *MockRetrainer) Retrain(ctx context.Context) (*services.TrainResult, error) {
	return m.RetrainFunc(ctx)
}

// MockIPHistory implements IPAttemptHistory for testing
type MockIPHistory struct {
	RecentByIPFunc func(ctx context.Context, ipAddress string, since time.Time) ([]*models.LoginAttempt, error)
}

func (m *MockIPHistory) RecentByIP(ctx context.Context, ipAddress string, since time.Time) ([]*models.LoginAttempt, error) {
	return m.RecentByIPFunc(ctx, ipAddress, since)
}
