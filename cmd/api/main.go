package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/background"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/BradenHooton/loginguard/internal/geo"
	"github.com/BradenHooton/loginguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = database.Migrate(migrateCtx, db.Pool, logger)
	migrateCancel()
	if err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize Redis
	redisClient, err := database.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	counterRepo := repositories.NewRateLimitCounterRepository(redisClient)

	// Fraud scorer
	var snapshotStore fraud.SnapshotStore
	switch cfg.Fraud.ModelStore {
	case "postgres":
		snapshotStore = repositories.NewFraudModelRepository(db)
	default:
		snapshotStore = fraud.NewFileSnapshotStore(cfg.Fraud.ModelPath)
	}

	estimator := fraud.NewIsolationForest(fraud.IsolationForestConfig{
		NumTrees:      cfg.Fraud.NumEstimators,
		Contamination: cfg.Fraud.Contamination,
		Seed:          cfg.Fraud.Seed,
	})
	scorer := fraud.NewScorer(estimator, snapshotStore, fraud.ScorerConfig{
		MinTrainingSamples: cfg.Fraud.MinTrainingSamples,
	}, logger)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := scorer.Load(loadCtx); err != nil {
		logger.Warn("fraud model not restored, starting untrained", slog.Any("error", err))
	}
	loadCancel()

	// Optional GeoIP enrichment
	var locator services.GeoLocator
	if cfg.GeoIP.DBPath != "" {
		geoLocator, err := geo.Open(cfg.GeoIP.DBPath)
		if err != nil {
			logger.Warn("geoip database unavailable, country enrichment disabled", slog.Any("error", err))
		} else {
			defer geoLocator.Close()
			locator = geoLocator
		}
	}

	// Security alerts
	var alerter services.SecurityAlerter = services.NewLogAlerter(logger)
	if cfg.Alerts.EmailEnabled {
		awsCtx, awsCancel := context.WithTimeout(context.Background(), 10*time.Second)
		sesAlerter, err := services.NewSESAlerter(awsCtx, cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, logger)
		awsCancel()
		if err != nil {
			logger.Error("failed to initialize email alerts", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = sesAlerter
	}

	// Initialize services
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	hasher := pkgauth.NewBcryptHasher(cfg.Auth.BcryptCost)
	auditLogger := pkglogger.NewAuditLogger(logger)
	rateLimitService := services.NewRateLimitService(counterRepo, logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingDelayBase,
		RandomDelay: cfg.Auth.TimingDelayRandom,
	})

	policy := services.LoginPolicy{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		RateLimitWindow:  cfg.Auth.RateLimitWindow,
		FraudThreshold:   cfg.Fraud.Threshold,
		LogRateLimited:   cfg.Ledger.LogRateLimited,
		StoreTimeout:     cfg.Auth.StoreTimeout,
	}

	authService := services.NewAuthService(services.AuthDependencies{
		Users:       userRepo,
		RateLimiter: rateLimitService,
		Scorer:      scorer,
		Ledger:      loginAttemptRepo,
		Tokens:      tokenManager,
		Hasher:      hasher,
		Timing:      timingDelay,
		Alerter:     alerter,
		Geo:         locator,
	}, policy, logger, auditLogger)
	userService := services.NewUserService(userRepo, loginAttemptRepo, policy, logger)
	trainingService := services.NewTrainingService(loginAttemptRepo, scorer, cfg.Fraud.TrainingLimit, logger)

	// Bootstrap admin user if configured
	adminCtx, adminCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(adminCtx, cfg.Admin, userRepo, hasher, auditLogger, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	adminCancel()

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cfg.Auth.MaskSuspicious)
	userHandler := handlers.NewUserHandler(userService)
	fraudHandler := handlers.NewFraudHandler(scorer, trainingService, loginAttemptRepo)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.HealthCheck,
		"redis": func(ctx context.Context) error {
			return database.RedisHealthCheck(ctx, redisClient)
		},
	})

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, userHandler, fraudHandler, healthHandler, tokenManager, userRepo,
		middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Server.HTTPRateLimit,
			IPConfig:          ipConfig,
		})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background jobs
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()

	cleanupManager := background.NewCleanupManager(loginAttemptRepo, logger, cfg.Ledger.CleanupInterval, cfg.Ledger.Retention)
	retrainScheduler := background.NewRetrainScheduler(trainingService, logger, cfg.Fraud.RetrainInterval)
	go cleanupManager.Start(jobsCtx)
	go retrainScheduler.Start(jobsCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	jobsCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	authService.WaitForAlerts()

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates or promotes the configured admin account
func ensureAdminUser(
	ctx context.Context,
	cfg config.AdminConfig,
	userRepo *repositories.UserRepository,
	hasher *pkgauth.BcryptHasher,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
) error {
	if cfg.Email == "" {
		logger.Info("no ADMIN_EMAIL set, skipping admin user creation")
		return nil
	}

	if err := pkgauth.ValidatePassword(cfg.Password); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin, err := userRepo.EnsureAdmin(ctx, strings.ToLower(strings.TrimSpace(cfg.Email)), hashedPassword)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}

	auditLogger.LogAccountAction("admin_ensured", admin.ID, "", nil)
	logger.Info("admin user ready", slog.String("user_id", admin.ID))
	return nil
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
