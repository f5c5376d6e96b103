package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Fraud    FraudConfig
	Alerts   AlertConfig
	GeoIP    GeoIPConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// TrustedProxies are CIDR ranges whose X-Forwarded-For headers are honored
	TrustedProxies []string
	// HTTPRateLimit is the coarse per-IP request limit on /auth routes, per minute
	HTTPRateLimit int
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	BcryptCost        int
	TimingDelayBase   time.Duration
	TimingDelayRandom time.Duration
	StoreTimeout      time.Duration
	MaxLoginAttempts  int
	RateLimitWindow   time.Duration
	MaskSuspicious    bool
}

// LedgerConfig controls what the attempt ledger records and how long it keeps it
type LedgerConfig struct {
	LogRateLimited  bool
	Retention       time.Duration
	CleanupInterval time.Duration
}

type FraudConfig struct {
	Threshold          float64
	MinTrainingSamples int
	TrainingLimit      int
	ModelStore         string // "file" or "postgres"
	ModelPath          string
	RetrainInterval    time.Duration
	NumEstimators      int
	Contamination      float64
	Seed               int64
}

type AlertConfig struct {
	EmailEnabled bool
	AWSRegion    string
	FromAddress  string
}

type GeoIPConfig struct {
	DBPath string
}

// AdminConfig seeds an administrator account on startup when both fields are set
type AdminConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "loginguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			HTTPRateLimit:  getEnvAsInt("HTTP_RATE_LIMIT_PER_MINUTE", 60),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 30*time.Minute),
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
			TimingDelayBase:   time.Duration(getEnvAsInt("TIMING_DELAY_BASE_MS", 500)) * time.Millisecond,
			TimingDelayRandom: time.Duration(getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100)) * time.Millisecond,
			StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
			MaxLoginAttempts:  getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			RateLimitWindow:   time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 900)) * time.Second,
			MaskSuspicious:    getEnvAsBool("AUTH_MASK_SUSPICIOUS", false),
		},
		Ledger: LedgerConfig{
			LogRateLimited:  getEnvAsBool("LEDGER_LOG_RATE_LIMITED", false),
			Retention:       getEnvAsDuration("LEDGER_RETENTION", 90*24*time.Hour),
			CleanupInterval: getEnvAsDuration("LEDGER_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Fraud: FraudConfig{
			Threshold:          getEnvAsFloat("FRAUD_THRESHOLD", 0.7),
			MinTrainingSamples: getEnvAsInt("MIN_TRAINING_SAMPLES", 100),
			TrainingLimit:      getEnvAsInt("FRAUD_TRAINING_LIMIT", 10000),
			ModelStore:         strings.ToLower(getEnv("FRAUD_MODEL_STORE", "file")),
			ModelPath:          getEnv("FRAUD_MODEL_PATH", "models/fraud_model.gob"),
			RetrainInterval:    getEnvAsDuration("FRAUD_RETRAIN_INTERVAL", 0),
			NumEstimators:      getEnvAsInt("FRAUD_N_ESTIMATORS", 100),
			Contamination:      getEnvAsFloat("FRAUD_CONTAMINATION", 0.1),
			Seed:               int64(getEnvAsInt("FRAUD_SEED", 42)),
		},
		Alerts: AlertConfig{
			EmailEnabled: getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("ALERT_FROM_ADDRESS", "security@loginguard.local"),
		},
		GeoIP: GeoIPConfig{
			DBPath: getEnv("GEOIP_DB_PATH", ""),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks the login pipeline settings
func (c *Config) validate() error {
	if c.Server.HTTPRateLimit <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT_PER_MINUTE must be positive (got %d)", c.Server.HTTPRateLimit)
	}
	if c.Auth.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive (got %d)", c.Auth.MaxLoginAttempts)
	}
	if c.Auth.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if c.Auth.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.Fraud.Threshold < 0 || c.Fraud.Threshold > 1 {
		return fmt.Errorf("FRAUD_THRESHOLD must be within [0, 1] (got %v)", c.Fraud.Threshold)
	}
	if c.Fraud.MinTrainingSamples <= 0 {
		return fmt.Errorf("MIN_TRAINING_SAMPLES must be positive (got %d)", c.Fraud.MinTrainingSamples)
	}
	if c.Fraud.TrainingLimit < c.Fraud.MinTrainingSamples {
		return fmt.Errorf("FRAUD_TRAINING_LIMIT (%d) must be at least MIN_TRAINING_SAMPLES (%d)",
			c.Fraud.TrainingLimit, c.Fraud.MinTrainingSamples)
	}
	if c.Fraud.ModelStore != "file" && c.Fraud.ModelStore != "postgres" {
		return fmt.Errorf("FRAUD_MODEL_STORE must be \"file\" or \"postgres\" (got %q)", c.Fraud.ModelStore)
	}
	if c.Fraud.Contamination < 0 || c.Fraud.Contamination > 0.5 {
		return fmt.Errorf("FRAUD_CONTAMINATION must be within [0, 0.5] (got %v)", c.Fraud.Contamination)
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
