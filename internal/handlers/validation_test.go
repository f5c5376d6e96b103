package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{}
		wantErr string
	}{
		{
			name: "valid login",
			req:  LoginRequest{Email: "user@example.com", Password: "secret"},
		},
		{
			name:    "missing email uses json name",
			req:     LoginRequest{Password: "secret"},
			wantErr: "validation failed: email: this field is required",
		},
		{
			name:    "malformed email",
			req:     LoginRequest{Email: "not-an-email", Password: "secret"},
			wantErr: "validation failed: email: must be a valid email address",
		},
		{
			name:    "login email past column width",
			req:     LoginRequest{Email: strings.Repeat("a", 250) + "@example.com", Password: "secret"},
			wantErr: "validation failed: email: must have a maximum of 255 characters",
		},
		{
			name:    "password past bcrypt limit",
			req:     LoginRequest{Email: "user@example.com", Password: string(make([]byte, 73))},
			wantErr: "validation failed: password: must have a maximum of 72 characters",
		},
		{
			name:    "predict requires ip",
			req:     PredictRequest{Email: "user@example.com"},
			wantErr: "validation failed: ip_address: this field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
