//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

const (
	testJWTSecret       = "test-secret-32-characters-long-for-testing"
	testMaxAttempts     = 5
	testMinTrainSamples = 10
)

// TestServer wraps httptest.Server with the full login stack
type TestServer struct {
	Server      *httptest.Server
	DB          *database.DB
	Redis       *miniredis.Miniredis
	AuthService *services.AuthService
	Scorer      *fraud.Scorer

	redisClient *redis.Client
	modelDir    string
}

// NewTestServer wires the production router over a real database, an
// in-memory Redis and a file-backed model store in a temp directory
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	modelDir, err := os.MkdirTemp("", "loginguard-model-*")
	if err != nil {
		redisClient.Close()
		mr.Close()
		return nil, fmt.Errorf("failed to create model dir: %w", err)
	}

	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	counterRepo := repositories.NewRateLimitCounterRepository(redisClient)

	scorer := fraud.NewScorer(
		fraud.NewIsolationForest(fraud.IsolationForestConfig{NumTrees: 20, Seed: 7}),
		fraud.NewFileSnapshotStore(filepath.Join(modelDir, "fraud_model.gob")),
		fraud.ScorerConfig{MinTrainingSamples: testMinTrainSamples},
		logger,
	)

	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute)
	hasher := pkgauth.NewBcryptHasher(4)
	auditLogger := pkglogger.NewAuditLogger(logger)

	policy := services.LoginPolicy{
		MaxLoginAttempts: testMaxAttempts,
		RateLimitWindow:  15 * time.Minute,
		FraudThreshold:   0.7,
		StoreTimeout:     2 * time.Second,
	}

	authService := services.NewAuthService(services.AuthDependencies{
		Users:       userRepo,
		RateLimiter: services.NewRateLimitService(counterRepo, logger),
		Scorer:      scorer,
		Ledger:      loginAttemptRepo,
		Tokens:      tokenManager,
		Hasher:      hasher,
		Alerter:     services.NewLogAlerter(logger),
	}, policy, logger, auditLogger)
	userService := services.NewUserService(userRepo, loginAttemptRepo, policy, logger)
	trainingService := services.NewTrainingService(loginAttemptRepo, scorer, 1000, logger)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, false)
	userHandler := handlers.NewUserHandler(userService)
	fraudHandler := handlers.NewFraudHandler(scorer, trainingService, loginAttemptRepo)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.HealthCheck,
		"redis": func(ctx context.Context) error {
			return database.RedisHealthCheck(ctx, redisClient)
		},
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, userHandler, fraudHandler, healthHandler, tokenManager, userRepo,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000, IPConfig: ipConfig})

	return &TestServer{
		Server:      httptest.NewServer(r),
		DB:          db,
		Redis:       mr,
		AuthService: authService,
		Scorer:      scorer,
		redisClient: redisClient,
		modelDir:    modelDir,
	}, nil
}

// Close shuts down the test server and its in-memory stores
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.AuthService.WaitForAlerts()
	ts.redisClient.Close()
	ts.Redis.Close()
	os.RemoveAll(ts.modelDir)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Login posts credentials and returns the response
func (ts *TestServer) Login(email, password string) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, map[string]string{"User-Agent": "integration-test"})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractAccessToken reads the access token from a login response
func ExtractAccessToken(resp *http.Response) (string, error) {
	var authResp services.AuthResponse
	if err := ParseJSONResponse(resp, &authResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("response carries no access token")
	}
	return authResp.AccessToken, nil
}

// GetErrorCode extracts the error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}
