package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandler(t *testing.T) {
	up := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		expectedStatus int
		expected       HealthResponse
	}{
		{
			name:           "all up",
			checks:         map[string]HealthCheck{"database": up, "redis": up},
			expectedStatus: http.StatusOK,
			expected:       HealthResponse{Status: "healthy", Components: map[string]string{"database": "up", "redis": "up"}},
		},
		{
			name:           "redis down",
			checks:         map[string]HealthCheck{"database": up, "redis": down},
			expectedStatus: http.StatusServiceUnavailable,
			expected:       HealthResponse{Status: "unhealthy", Components: map[string]string{"database": "up", "redis": "down"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checks).Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			var resp HealthResponse
			AssertJSONResponse(t, w, tt.expectedStatus, &resp)
			assert.Equal(t, tt.expected, resp)
		})
	}
}
