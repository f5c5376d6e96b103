package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/services"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

const (
	defaultLookbackMinutes = 60
	maxLookbackMinutes     = 7 * 24 * 60
)

// UserService defines the interface for user business logic
type UserService interface {
	GetProfile(ctx context.Context, id string) (*services.UserResponse, error)
	LoginHistory(ctx context.Context, id string, lookback time.Duration) (*services.LoginHistory, error)
}

// UserHandler handles requests about the authenticated user
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// LoginAttemptResponse is one ledger entry as shown to clients
type LoginAttemptResponse struct {
	ID            string   `json:"id"`
	IPAddress     string   `json:"ip_address"`
	UserAgent     string   `json:"user_agent,omitempty"`
	Success       bool     `json:"success"`
	FailureReason string   `json:"failure_reason,omitempty"`
	FraudScore    *float64 `json:"fraud_score,omitempty"`
	CountryCode   string   `json:"country_code,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}

// LoginHistoryResponse represents the caller's recent login attempts
type LoginHistoryResponse struct {
	Attempts          []*LoginAttemptResponse `json:"attempts"`
	Total             int                     `json:"total"`
	FailedInWindow    int                     `json:"failed_in_window"`
	AttemptsRemaining int                     `json:"attempts_remaining"`
}

func attemptToResponse(a *models.LoginAttempt) *LoginAttemptResponse {
	resp := &LoginAttemptResponse{
		ID:         a.ID,
		IPAddress:  a.IPAddress,
		UserAgent:  a.UserAgentValue(),
		Success:    a.Success,
		FraudScore: a.FraudScore,
		OccurredAt: a.OccurredAt.UTC().Format(time.RFC3339),
	}
	if a.FailureReason != nil {
		resp.FailureReason = *a.FailureReason
	}
	if a.CountryCode != nil {
		resp.CountryCode = *a.CountryCode
	}
	return resp
}

func attemptsToResponse(attempts []*models.LoginAttempt) []*LoginAttemptResponse {
	out := make([]*LoginAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptToResponse(a))
	}
	return out
}

// RegisterRoutes registers the user routes. The router must already enforce
// authentication.
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users/me", func(r chi.Router) {
		r.Get("/", h.GetMe)                         // GET /users/me
		r.Get("/login-attempts", h.GetLoginHistory) // GET /users/me/login-attempts
	})
}

// GetMe returns the authenticated user
//
// @Summary Get current user
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// GetLoginHistory returns the authenticated user's recent login attempts
//
// @Summary Recent login attempts for the current user
// @Param minutes query int false "Lookback in minutes (default 60)"
// @Produce json
// @Success 200 {object} LoginHistoryResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /users/me/login-attempts [get]
func (h *UserHandler) GetLoginHistory(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	minutes, err := lookbackParam(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid minutes parameter")
		return
	}

	history, err := h.service.LoginHistory(r.Context(), claims.UserID, time.Duration(minutes)*time.Minute)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrServiceUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Login history is temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &LoginHistoryResponse{
		Attempts:          attemptsToResponse(history.Attempts),
		Total:             len(history.Attempts),
		FailedInWindow:    history.FailedInWindow,
		AttemptsRemaining: history.AttemptsRemaining,
	})
}

// lookbackParam reads ?minutes=, defaulting to one hour
func lookbackParam(r *http.Request) (int, error) {
	minutes := defaultLookbackMinutes
	if m := r.URL.Query().Get("minutes"); m != "" {
		if err := parseIntParam(m, &minutes, 1, maxLookbackMinutes); err != nil {
			return 0, err
		}
	}
	return minutes, nil
}

// parseIntParam parses value into dest if it lies in [min, max]
func parseIntParam(value string, dest *int, min, max int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}

	if n < min || n > max {
		return errors.New("parameter out of range")
	}

	*dest = n
	return nil
}
