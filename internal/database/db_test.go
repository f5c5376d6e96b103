package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name   string
		err    error
		wantIs error
	}{
		{name: "nil", err: nil, wantIs: nil},
		{name: "no rows", err: pgx.ErrNoRows, wantIs: models.ErrNotFound},
		{name: "wrapped no rows", err: errors.Join(errors.New("scan"), pgx.ErrNoRows), wantIs: models.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"}, wantIs: models.ErrConflict},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, wantIs: models.ErrBadRequest},
		{name: "check violation", err: &pgconn.PgError{Code: "23514", ConstraintName: "login_attempts_score_check"}, wantIs: models.ErrBadRequest},
		{name: "other pg error passes through", err: &pgconn.PgError{Code: "57014"}, wantIs: nil},
		{name: "other error passes through", err: other, wantIs: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			require.Error(t, got)
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			}
		})
	}
}

func TestMapPostgresError_KeepsConstraintName(t *testing.T) {
	err := MapPostgresError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"})
	assert.Contains(t, err.Error(), "idx_users_email")
}

func TestRedisClient_ConnectAndHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	client, err := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, RedisHealthCheck(context.Background(), client))

	mr.Close()
	assert.Error(t, RedisHealthCheck(context.Background(), client))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	_, err := NewRedisClient(&config.RedisConfig{Addr: addr}, logger)
	assert.Error(t, err)
}
