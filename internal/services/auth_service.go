package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/models"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

const alertTimeout = 10 * time.Second

// maxEmailLength matches the VARCHAR(255) email columns
const maxEmailLength = 255

// UserRepository defines the user store operations the auth flow needs
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// LoginRateLimiter checks and updates the per-IP and per-email counters
type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, ip, email string, max int, window time.Duration) (ipLimited, emailLimited bool, err error)
	RecordFailure(ctx context.Context, ip, email string, window time.Duration) error
	ResetLogin(ctx context.Context, ip, email string) error
}

// FraudScorer scores a feature vector. Implementations must be safe for
// concurrent use.
type FraudScorer interface {
	Predict(v fraud.FeatureVector) fraud.Prediction
}

// AttemptLedger appends login attempts
type AttemptLedger interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) (string, error)
}

// TokenIssuer mints access tokens for authenticated users
type TokenIssuer interface {
	IssueAccessToken(userID, email string) (string, error)
	AccessTokenExpiry() time.Duration
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) bool
}

// GeoLocator resolves an IP address to a country code, or ""
type GeoLocator interface {
	CountryCode(ip string) string
}

// LoginPolicy holds the thresholds the login pipeline enforces
type LoginPolicy struct {
	MaxLoginAttempts int
	RateLimitWindow  time.Duration
	FraudThreshold   float64
	LogRateLimited   bool          // record rate-limited rejections in the ledger
	StoreTimeout     time.Duration // applied to each store call separately
}

// AuthDependencies groups the collaborators of AuthService. Alerter and Geo
// are optional.
type AuthDependencies struct {
	Users       UserRepository
	RateLimiter LoginRateLimiter
	Scorer      FraudScorer
	Ledger      AttemptLedger
	Tokens      TokenIssuer
	Hasher      PasswordHasher
	Timing      *auth.TimingDelay
	Alerter     SecurityAlerter
	Geo         GeoLocator
}

// AuthService runs the login pipeline: rate limiting, fraud scoring,
// credential check, then counter, ledger and token side effects
type AuthService struct {
	deps        AuthDependencies
	policy      LoginPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time

	alerts sync.WaitGroup
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDependencies, policy LoginPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	if deps.Timing == nil {
		deps.Timing = auth.NewTimingDelay(auth.TimingConfig{})
	}
	return &AuthService{
		deps:        deps,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// LoginInput is one login request
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	FullName   *string `json:"full_name,omitempty"`
	Role       string  `json:"role"`
	IsActive   bool    `json:"is_active"`
	IsVerified bool    `json:"is_verified"`
	CreatedAt  string  `json:"created_at"`
}

// AuthResponse is returned on successful login
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int           `json:"expires_in"`
	User        *UserResponse `json:"user"`
}

// Login evaluates one attempt. Policy rejections are ErrTooManyAttempts,
// ErrSuspiciousActivity and ErrInvalidCredentials. Rate limiter and ledger
// failures surface as ErrRateLimiterUnavailable and ErrLedgerUnavailable.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	start := s.now()
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	decision := pkglogger.LoginDecision{Email: email, IPAddress: in.IPAddress}
	defer func() {
		decision.Duration = time.Since(start)
		s.auditLogger.LogLoginDecision(decision)
	}()

	// 1-2. Rate limits, both keys
	ipLimited, emailLimited, err := s.checkRateLimits(ctx, in.IPAddress, email)
	if err != nil {
		decision.Outcome = "rate_limiter_unavailable"
		return nil, err
	}
	if ipLimited || emailLimited {
		decision.Outcome = models.FailureRateLimited
		s.logger.Info("login rejected: rate limited",
			slog.Bool("ip_limited", ipLimited),
			slog.Bool("email_limited", emailLimited))
		if s.policy.LogRateLimited {
			attempt := s.newAttempt(email, in, s.now().UTC(), nil)
			attempt.FailureReason = strPtr(models.FailureRateLimited)
			if err := s.record(ctx, attempt); err != nil {
				return nil, err
			}
		}
		return nil, models.ErrTooManyAttempts
	}

	// 3. Score
	occurredAt := s.now().UTC()
	prediction := s.predict(fraud.Extract(email, in.IPAddress, in.UserAgent, occurredAt))
	score := prediction.FraudScore
	decision.FraudScore = &score
	decision.RiskLevel = string(prediction.RiskLevel)

	user, err := s.lookupUser(ctx, email)
	if err != nil {
		decision.Outcome = "user_store_unavailable"
		return nil, err
	}

	attempt := s.newAttempt(email, in, occurredAt, &score)
	decision.Country = derefString(attempt.CountryCode)
	if user != nil {
		attempt.UserID = &user.ID
		decision.UserID = user.ID
	}

	// 4. Fraud rejection preempts the credential check
	if score > s.policy.FraudThreshold {
		decision.Outcome = models.FailureSuspiciousActivity
		attempt.FailureReason = strPtr(models.FailureSuspiciousActivity)
		if err := s.record(ctx, attempt); err != nil {
			return nil, err
		}
		s.logger.Warn("login rejected: suspicious activity",
			slog.Float64("fraud_score", score),
			slog.String("risk_level", string(prediction.RiskLevel)))
		if user != nil {
			s.dispatchAlert(SuspiciousLoginAlert{
				Email:      user.Email,
				IPAddress:  in.IPAddress,
				UserAgent:  in.UserAgent,
				FraudScore: score,
				RiskLevel:  string(prediction.RiskLevel),
				Country:    decision.Country,
				OccurredAt: occurredAt,
			})
		}
		s.deps.Timing.WaitFrom(ctx, start)
		return nil, models.ErrSuspiciousActivity
	}

	// 5. Credentials
	if user == nil || !user.IsActive || !s.deps.Hasher.Verify(user.PasswordHash, in.Password) {
		decision.Outcome = models.FailureInvalidCredentials
		attempt.FailureReason = strPtr(models.FailureInvalidCredentials)

		incrErr := s.recordFailure(ctx, in.IPAddress, email)
		if err := s.record(ctx, attempt); err != nil {
			return nil, err
		}
		if incrErr != nil {
			return nil, incrErr
		}

		s.logger.Info("login failed: invalid credentials")
		s.deps.Timing.WaitFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	// 6. Success. Counters are reset only once the success row is stored.
	accessToken, err := s.deps.Tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		decision.Outcome = models.FailureInternalError
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		attempt.FailureReason = strPtr(models.FailureInternalError)
		if recErr := s.record(ctx, attempt); recErr != nil {
			return nil, recErr
		}
		return nil, models.ErrInternalServer
	}

	attempt.Success = true
	if err := s.record(ctx, attempt); err != nil {
		decision.Outcome = "ledger_unavailable"
		return nil, err
	}
	s.resetCounters(ctx, in.IPAddress, email)

	decision.Outcome = "success"
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.deps.Tokens.AccessTokenExpiry().Seconds()),
		User:        userModelToResponse(user),
	}, nil
}

// Register creates a new user account. Registration is neither rate limited
// nor scored.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*UserResponse, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)

	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	_, err := s.deps.Users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: email already registered")
		return nil, models.ErrEmailTaken
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := s.deps.Hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         "user",
		IsActive:     true,
	}
	if fullName != "" {
		user.FullName = &fullName
	}

	createdUser, err := s.deps.Users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrEmailTaken
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return userModelToResponse(createdUser), nil
}

// WaitForAlerts blocks until in-flight security alerts have been sent
func (s *AuthService) WaitForAlerts() {
	s.alerts.Wait()
}

func (s *AuthService) checkRateLimits(ctx context.Context, ip, email string) (bool, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.policy.StoreTimeout)
	defer cancel()

	ipLimited, emailLimited, err := s.deps.RateLimiter.CheckLogin(ctx, ip, email, s.policy.MaxLoginAttempts, s.policy.RateLimitWindow)
	if err != nil {
		s.logger.Error("rate limit check failed", slog.Any("error", err))
		return false, false, asUnavailable(err, models.ErrRateLimiterUnavailable)
	}
	return ipLimited, emailLimited, nil
}

// recordFailure increments both counters. Side effects are detached from
// request cancellation so a dropped client cannot skip them.
func (s *AuthService) recordFailure(ctx context.Context, ip, email string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.StoreTimeout)
	defer cancel()

	if err := s.deps.RateLimiter.RecordFailure(ctx, ip, email, s.policy.RateLimitWindow); err != nil {
		s.logger.Error("failed to increment rate limit counters", slog.Any("error", err))
		return asUnavailable(err, models.ErrRateLimiterUnavailable)
	}
	return nil
}

// resetCounters clears both counters after a successful login. A failed
// reset leaves the counters to expire on their own.
func (s *AuthService) resetCounters(ctx context.Context, ip, email string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.StoreTimeout)
	defer cancel()

	if err := s.deps.RateLimiter.ResetLogin(ctx, ip, email); err != nil {
		s.logger.Error("failed to reset rate limit counters", slog.Any("error", err))
	}
}

func (s *AuthService) record(ctx context.Context, attempt *models.LoginAttempt) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.StoreTimeout)
	defer cancel()

	if _, err := s.deps.Ledger.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
		return asUnavailable(err, models.ErrLedgerUnavailable)
	}
	return nil
}

func (s *AuthService) lookupUser(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.policy.StoreTimeout)
	defer cancel()

	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, fmt.Errorf("%w: user store: %v", models.ErrServiceUnavailable, err)
	}
	return user, nil
}

// predict never fails; a broken model scores like an untrained one
func (s *AuthService) predict(v fraud.FeatureVector) (p fraud.Prediction) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("fraud scorer failed, using conservative score", slog.Any("panic", r))
			p = fraud.UntrainedPrediction()
		}
	}()
	return s.deps.Scorer.Predict(v)
}

func (s *AuthService) newAttempt(email string, in LoginInput, at time.Time, score *float64) *models.LoginAttempt {
	attempt := &models.LoginAttempt{
		Email:      email,
		IPAddress:  in.IPAddress,
		FraudScore: score,
		HourOfDay:  at.Hour(),
		DayOfWeek:  fraud.Weekday(at),
		OccurredAt: at,
	}
	if in.UserAgent != "" {
		attempt.UserAgent = strPtr(in.UserAgent)
	}
	if s.deps.Geo != nil {
		if cc := s.deps.Geo.CountryCode(in.IPAddress); cc != "" {
			attempt.CountryCode = &cc
		}
	}
	return attempt
}

func (s *AuthService) dispatchAlert(alert SuspiciousLoginAlert) {
	if s.deps.Alerter == nil {
		return
	}
	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()

		if err := s.deps.Alerter.SendSuspiciousLoginAlert(ctx, alert); err != nil {
			s.logger.Error("failed to send suspicious login alert", slog.Any("error", err))
		}
	}()
}

// asUnavailable makes sure err matches sentinel under errors.Is
func asUnavailable(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}
	if utf8.RuneCountInString(email) > maxEmailLength {
		return fmt.Errorf("%w: email exceeds %d characters", models.ErrBadRequest, maxEmailLength)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		IsActive:   user.IsActive,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
	}
}
