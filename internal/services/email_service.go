package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

// SuspiciousLoginAlert describes a login rejected by the fraud scorer
type SuspiciousLoginAlert struct {
	Email      string
	IPAddress  string
	UserAgent  string
	FraudScore float64
	RiskLevel  string
	Country    string
	OccurredAt time.Time
}

// SecurityAlerter notifies account owners about suspicious logins
type SecurityAlerter interface {
	SendSuspiciousLoginAlert(ctx context.Context, alert SuspiciousLoginAlert) error
}

// sesSender is the subset of the SES client used for alerts
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter sends security alerts using AWS SES
type SESAlerter struct {
	client      sesSender
	fromAddress string
	logger      *slog.Logger
}

// NewSESAlerter creates an alerter using the default AWS credential chain
func NewSESAlerter(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlerter{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendSuspiciousLoginAlert emails the account owner
func (s *SESAlerter) SendSuspiciousLoginAlert(ctx context.Context, alert SuspiciousLoginAlert) error {
	location := alert.Country
	if location == "" {
		location = "unknown"
	}
	when := alert.OccurredAt.UTC().Format(time.RFC1123)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>Suspicious sign-in blocked</h2>
    <p>We blocked a sign-in to your account that did not look like you.</p>
    <ul>
        <li><strong>Time:</strong> %s</li>
        <li><strong>IP address:</strong> %s</li>
        <li><strong>Country:</strong> %s</li>
        <li><strong>Risk level:</strong> %s</li>
    </ul>
    <p>If this was you, wait a few minutes and try again from a familiar device.
    If it was not, consider changing your password.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, when, alert.IPAddress, location, alert.RiskLevel)

	textBody := fmt.Sprintf(`Suspicious sign-in blocked

We blocked a sign-in to your account that did not look like you.

Time:        %s
IP address:  %s
Country:     %s
Risk level:  %s

If this was you, wait a few minutes and try again from a familiar device.
If it was not, consider changing your password.

This is an automated message. Please do not reply to this email.
`, when, alert.IPAddress, location, alert.RiskLevel)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{alert.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Suspicious sign-in attempt blocked"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("suspicious login alert sent",
		slog.String("email", pkglogger.SanitizedEmail(alert.Email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogAlerter records alerts in the log instead of sending them. Used when
// email alerts are disabled.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a new LogAlerter
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// SendSuspiciousLoginAlert logs the alert
func (a *LogAlerter) SendSuspiciousLoginAlert(_ context.Context, alert SuspiciousLoginAlert) error {
	a.logger.Warn("suspicious login alert",
		slog.String("email", pkglogger.SanitizedEmail(alert.Email)),
		slog.String("ip_address", alert.IPAddress),
		slog.Float64("fraud_score", alert.FraudScore),
		slog.String("risk_level", alert.RiskLevel))
	return nil
}
