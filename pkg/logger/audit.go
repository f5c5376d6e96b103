package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LoginDecision describes the outcome of one pass through the login pipeline
type LoginDecision struct {
	Email      string
	UserID     string
	IPAddress  string
	Outcome    string // "success" or a failure reason
	FraudScore *float64
	RiskLevel  string
	Country    string
	Duration   time.Duration
}

// LogLoginDecision logs a login pipeline decision. Emails are masked.
func (al *AuditLogger) LogLoginDecision(d LoginDecision) {
	success := d.Outcome == "success"
	attrs := []slog.Attr{
		slog.String("audit_type", "login"),
		slog.String("event_type", "login_decision"),
		slog.String("outcome", d.Outcome),
		slog.Bool("success", success),
		slog.String("email", SanitizedEmail(d.Email)),
		slog.Duration("duration", d.Duration),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if d.UserID != "" {
		attrs = append(attrs, slog.String("user_id", d.UserID))
	}
	if d.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", d.IPAddress))
	}
	if d.FraudScore != nil {
		attrs = append(attrs, slog.Float64("fraud_score", *d.FraudScore))
	}
	if d.RiskLevel != "" {
		attrs = append(attrs, slog.String("risk_level", d.RiskLevel))
	}
	if d.Country != "" {
		attrs = append(attrs, slog.String("country", d.Country))
	}

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
