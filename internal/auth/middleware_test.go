package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

type fakeUserRepo struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.GetByIDFunc(ctx, id)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(claims.UserID))
}

func TestTokenManager_IssueAndValidate(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)

	token, err := tm.IssueAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := auth.NewTokenManager("another-secret-that-is-long-enough", time.Minute)
	tm := auth.NewTokenManager(testSecret, time.Minute)

	token, err := issuer.IssueAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, -time.Minute)

	token, err := tm.IssueAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthMiddleware(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	token, err := tm.IssueAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	handler := auth.AuthMiddleware(tm)(http.HandlerFunc(okHandler))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				var resp pkghttp.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "unauthorized", resp.Error)
			} else {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	token, err := tm.IssueAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		user       *models.User
		repoErr    error
		wantStatus int
	}{
		{"admin allowed", &models.User{ID: "user-1", Role: "admin", IsActive: true}, nil, http.StatusOK},
		{"plain user forbidden", &models.User{ID: "user-1", Role: "user", IsActive: true}, nil, http.StatusForbidden},
		{"inactive admin forbidden", &models.User{ID: "user-1", Role: "admin", IsActive: false}, nil, http.StatusForbidden},
		{"deleted user", nil, models.ErrNotFound, http.StatusUnauthorized},
		{"repository failure", nil, assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUserRepo{GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
				return tt.user, tt.repoErr
			}}
			handler := auth.AuthMiddleware(tm)(auth.RequireRole(repo, "admin")(http.HandlerFunc(okHandler)))

			req := httptest.NewRequest(http.MethodPost, "/fraud/train", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
