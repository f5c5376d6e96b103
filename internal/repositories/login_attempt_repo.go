package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const loginAttemptColumns = `id, user_id, email, ip_address, user_agent, success, failure_reason,
	fraud_score, hour_of_day, day_of_week, country_code, occurred_at`

// LoginAttemptRepository is the append-only attempt ledger
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record appends an attempt and returns its ID
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) (string, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.OccurredAt.IsZero() {
		attempt.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO login_attempts (` + loginAttemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.UserID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.FraudScore,
		attempt.HourOfDay,
		attempt.DayOfWeek,
		attempt.CountryCode,
		attempt.OccurredAt,
	)
	if err != nil {
		return "", database.MapPostgresError(err)
	}

	return attempt.ID, nil
}

// RecentByEmail returns attempts for an email since the given time, newest first
func (r *LoginAttemptRepository) RecentByEmail(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	query := `
		SELECT ` + loginAttemptColumns + `
		FROM login_attempts
		WHERE email = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts by email: %w", err)
	}
	return scanLoginAttemptRows(rows)
}

// RecentByIP returns attempts from an IP since the given time, newest first
func (r *LoginAttemptRepository) RecentByIP(ctx context.Context, ipAddress string, since time.Time) ([]*models.LoginAttempt, error) {
	query := `
		SELECT ` + loginAttemptColumns + `
		FROM login_attempts
		WHERE ip_address = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ipAddress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts by ip: %w", err)
	}
	return scanLoginAttemptRows(rows)
}

// CountFailed returns the number of failed attempts for an email within a time window
func (r *LoginAttemptRepository) CountFailed(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND occurred_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// AllForTraining returns up to limit attempts, newest first
func (r *LoginAttemptRepository) AllForTraining(ctx context.Context, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT ` + loginAttemptColumns + `
		FROM login_attempts
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training attempts: %w", err)
	}
	return scanLoginAttemptRows(rows)
}

// DeleteOlderThan removes attempts that occurred before cutoff
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE occurred_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func scanLoginAttemptRows(rows pgx.Rows) ([]*models.LoginAttempt, error) {
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(
			&a.ID, &a.UserID, &a.Email, &a.IPAddress, &a.UserAgent, &a.Success, &a.FailureReason,
			&a.FraudScore, &a.HourOfDay, &a.DayOfWeek, &a.CountryCode, &a.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		a.OccurredAt = a.OccurredAt.UTC()
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}
