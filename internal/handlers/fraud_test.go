package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
)

func TestFraudHandler_Predict(t *testing.T) {
	var scored fraud.FeatureVector
	model := &MockFraudModel{
		PredictFunc: func(v fraud.FeatureVector) fraud.Prediction {
			scored = v
			return fraud.Prediction{FraudScore: 0.82, IsSuspicious: true, RiskLevel: fraud.RiskHigh}
		},
	}
	handler := NewFraudHandler(model, nil, nil)
	at := time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return at }

	w := httptest.NewRecorder()
	handler.Predict(w, NewTestRequest(t, http.MethodPost, "/fraud/predict",
		PredictRequest{Email: "User@Example.com", IPAddress: "10.0.0.1"}))

	var resp PredictResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 0.82, resp.FraudScore)
	assert.True(t, resp.IsSuspicious)
	assert.Equal(t, fraud.RiskHigh, resp.RiskLevel)
	assert.Equal(t, fraud.Extract("user@example.com", "10.0.0.1", "", at), scored)
	assert.Equal(t, scored.Map(), resp.FeaturesUsed)
	assert.Len(t, resp.FeaturesUsed, fraud.NumFeatures)
}

func TestFraudHandler_Predict_Validation(t *testing.T) {
	handler := NewFraudHandler(&MockFraudModel{}, nil, nil)

	w := httptest.NewRecorder()
	handler.Predict(w, NewTestRequest(t, http.MethodPost, "/fraud/predict", map[string]string{"email": "user@example.com"}))

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestFraudHandler_Status(t *testing.T) {
	model := &MockFraudModel{StatusValue: fraud.Status{
		ModelType: "IsolationForest",
		ModelPath: "models/fraud_model.gob",
		Features:  fraud.Names(),
	}}
	handler := NewFraudHandler(model, nil, nil)

	w := httptest.NewRecorder()
	handler.Status(w, httptest.NewRequest(http.MethodGet, "/fraud/status", nil))

	var resp fraud.Status
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.False(t, resp.IsTrained)
	assert.Equal(t, "IsolationForest", resp.ModelType)
	assert.Equal(t, fraud.Names(), resp.Features)
	assert.Nil(t, resp.TrainedAt)
}

func TestFraudHandler_Train(t *testing.T) {
	tests := []struct {
		name           string
		result         *services.TrainResult
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "trained",
			result:         &services.TrainResult{SamplesUsed: 250, Features: fraud.Names()},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "insufficient data",
			err:            &fraud.InsufficientDataError{Have: 12, Need: 100},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "insufficient_data",
		},
		{
			name:           "ledger down",
			err:            models.ErrLedgerUnavailable,
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "service_unavailable",
		},
		{
			name:           "persist failure",
			err:            errors.New("persist fraud model: disk full"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrainer := &MockRetrainer{
				RetrainFunc: func(ctx context.Context) (*services.TrainResult, error) {
					return tt.result, tt.err
				},
			}
			handler := NewFraudHandler(&MockFraudModel{}, retrainer, nil)

			w := httptest.NewRecorder()
			handler.Train(w, httptest.NewRequest(http.MethodPost, "/fraud/train", nil))

			if tt.expectedError != "" {
				AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				return
			}
			var resp TrainResponse
			AssertJSONResponse(t, w, tt.expectedStatus, &resp)
			assert.Equal(t, 250, resp.SamplesUsed)
			assert.Equal(t, fraud.Names(), resp.Features)
		})
	}
}

func TestFraudHandler_Attempts(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	var since time.Time
	history := &MockIPHistory{
		RecentByIPFunc: func(ctx context.Context, ip string, s time.Time) ([]*models.LoginAttempt, error) {
			since = s
			return []*models.LoginAttempt{{ID: "a1", Email: "user@example.com", IPAddress: ip, OccurredAt: now}}, nil
		},
	}
	handler := NewFraudHandler(&MockFraudModel{}, nil, history)
	handler.now = func() time.Time { return now }

	w := httptest.NewRecorder()
	handler.Attempts(w, httptest.NewRequest(http.MethodGet, "/fraud/attempts?ip=10.0.0.9&minutes=15", nil))

	var resp IPAttemptsResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, now.Add(-15*time.Minute), since)
	assert.Equal(t, "10.0.0.9", resp.IPAddress)
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "a1", resp.Attempts[0].ID)
}

func TestFraudHandler_Attempts_RequiresIP(t *testing.T) {
	handler := NewFraudHandler(&MockFraudModel{}, nil, &MockIPHistory{})

	w := httptest.NewRecorder()
	handler.Attempts(w, httptest.NewRequest(http.MethodGet, "/fraud/attempts", nil))

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
