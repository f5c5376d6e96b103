package models

import "time"

// Failure reasons recorded on rejected login attempts
const (
	FailureRateLimited        = "rate_limited"
	FailureSuspiciousActivity = "suspicious_activity"
	FailureInvalidCredentials = "invalid_credentials"
	FailureInternalError      = "internal_error"
)

// LoginAttempt is an append-only ledger entry written once per login call
type LoginAttempt struct {
	ID            string    `db:"id"`
	UserID        *string   `db:"user_id"` // nil when the email never resolved to a user
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     *string   `db:"user_agent"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	FraudScore    *float64  `db:"fraud_score"` // nil until scored
	HourOfDay     int       `db:"hour_of_day"`
	DayOfWeek     int       `db:"day_of_week"` // Monday = 0
	CountryCode   *string   `db:"country_code"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// UserAgentValue returns the user agent or "" when absent
func (a *LoginAttempt) UserAgentValue() string {
	if a.UserAgent == nil {
		return ""
	}
	return *a.UserAgent
}
