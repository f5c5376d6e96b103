package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// FraudModel is the scorer as seen by the HTTP layer
type FraudModel interface {
	Predict(v fraud.FeatureVector) fraud.Prediction
	Status() fraud.Status
}

// ModelRetrainer retrains the fraud model from the ledger
type ModelRetrainer interface {
	Retrain(ctx context.Context) (*services.TrainResult, error)
}

// IPAttemptHistory reads recent attempts from one address
type IPAttemptHistory interface {
	RecentByIP(ctx context.Context, ipAddress string, since time.Time) ([]*models.LoginAttempt, error)
}

// FraudHandler exposes the fraud scorer for inspection and training
type FraudHandler struct {
	model     FraudModel
	retrainer ModelRetrainer
	history   IPAttemptHistory
	now       func() time.Time
}

// NewFraudHandler creates a new FraudHandler
func NewFraudHandler(model FraudModel, retrainer ModelRetrainer, history IPAttemptHistory) *FraudHandler {
	return &FraudHandler{
		model:     model,
		retrainer: retrainer,
		history:   history,
		now:       time.Now,
	}
}

// PredictRequest represents the request body for an ad-hoc score
type PredictRequest struct {
	Email     string `json:"email" validate:"required,max=255,email"`
	IPAddress string `json:"ip_address" validate:"required,ip"`
	UserAgent string `json:"user_agent" validate:"omitempty,max=512"`
}

// PredictResponse is a prediction plus the features it was computed from
type PredictResponse struct {
	fraud.Prediction
	FeaturesUsed map[string]float64 `json:"features_used"`
}

// TrainResponse reports a completed training run
type TrainResponse struct {
	Message     string   `json:"message"`
	SamplesUsed int      `json:"samples_used"`
	Features    []string `json:"features"`
}

// IPAttemptsResponse lists recent attempts from one address
type IPAttemptsResponse struct {
	IPAddress string                  `json:"ip_address"`
	Attempts  []*LoginAttemptResponse `json:"attempts"`
	Total     int                     `json:"total"`
}

// Predict scores an arbitrary attempt without recording it
// @Summary Score a login attempt
// @Accept json
// @Param request body PredictRequest true "Attempt to score"
// @Produce json
// @Success 200 {object} PredictResponse
// @Failure 400 {object} ErrorResponse
// @Router /fraud/predict [post]
func (h *FraudHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	features := fraud.Extract(strings.ToLower(strings.TrimSpace(req.Email)), req.IPAddress, req.UserAgent, h.now().UTC())

	pkghttp.WriteJSON(w, http.StatusOK, &PredictResponse{
		Prediction:   h.model.Predict(features),
		FeaturesUsed: features.Map(),
	})
}

// Status reports the model lifecycle state
// @Summary Fraud model status
// @Produce json
// @Success 200 {object} fraud.Status
// @Router /fraud/status [get]
func (h *FraudHandler) Status(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.model.Status())
}

// Train retrains the model from the attempt ledger
// @Summary Retrain the fraud model
// @Produce json
// @Success 200 {object} TrainResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /fraud/train [post]
func (h *FraudHandler) Train(w http.ResponseWriter, r *http.Request) {
	result, err := h.retrainer.Retrain(r.Context())
	if err != nil {
		var insufficient *fraud.InsufficientDataError
		switch {
		case errors.As(err, &insufficient):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "insufficient_data",
				"Not enough login attempts to train the model", insufficient.Error())
		case errors.Is(err, models.ErrServiceUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Training data is temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Model training failed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &TrainResponse{
		Message:     "Model trained successfully",
		SamplesUsed: result.SamplesUsed,
		Features:    result.Features,
	})
}

// Attempts lists recent attempts from one IP address
// @Summary Recent attempts by IP
// @Param ip query string true "IP address"
// @Param minutes query int false "Lookback in minutes (default 60)"
// @Produce json
// @Success 200 {object} IPAttemptsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /fraud/attempts [get]
func (h *FraudHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		pkghttp.WriteBadRequest(w, "ip parameter is required")
		return
	}

	minutes, err := lookbackParam(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid minutes parameter")
		return
	}

	since := h.now().UTC().Add(-time.Duration(minutes) * time.Minute)
	attempts, err := h.history.RecentByIP(r.Context(), ip, since)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Login history is temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &IPAttemptsResponse{
		IPAddress: ip,
		Attempts:  attemptsToResponse(attempts),
		Total:     len(attempts),
	})
}
