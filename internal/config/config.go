package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string
	MetricsAddr  string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Payment PaymentConfig
}

// PaymentConfig tunes the charge, refund and reconciliation flows.
type PaymentConfig struct {
	GatewayConfigPath string
	DefaultGateway    string
	GatewayTimeout    time.Duration

	TokenGuardBackend string
	TokenClaimTTL     time.Duration
	RefundLockTTL     time.Duration

	ReconcileEnabled       bool
	ReconcileInterval      time.Duration
	ReconcileGracePeriod   time.Duration
	ReconcileNotFoundAfter time.Duration
	ReconcileBatchSize     int
}

const (
	TokenGuardDatabase = "database"
	TokenGuardRedis    = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "paycore"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsAddr:       strings.TrimSpace(getenv("METRICS_ADDR", "")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paycore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		Payment: PaymentConfig{
			GatewayConfigPath:      strings.TrimSpace(getenv("PAYMENT_GATEWAY_CONFIG", "")),
			DefaultGateway:         strings.ToLower(strings.TrimSpace(getenv("PAYMENT_DEFAULT_GATEWAY", "braintree"))),
			GatewayTimeout:         getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 30*time.Second),
			TokenGuardBackend:      normalizeTokenGuard(getenv("PAYMENT_TOKEN_GUARD", TokenGuardDatabase)),
			TokenClaimTTL:          getenvDuration("PAYMENT_TOKEN_CLAIM_TTL", 24*time.Hour),
			RefundLockTTL:          getenvDuration("PAYMENT_REFUND_LOCK_TTL", time.Minute),
			ReconcileEnabled:       getenvBool("PAYMENT_RECONCILE_ENABLED", true),
			ReconcileInterval:      getenvDuration("PAYMENT_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileGracePeriod:   getenvDuration("PAYMENT_RECONCILE_GRACE", 2*time.Minute),
			ReconcileNotFoundAfter: getenvDuration("PAYMENT_RECONCILE_NOT_FOUND_AFTER", 24*time.Hour),
			ReconcileBatchSize:     getenvInt("PAYMENT_RECONCILE_BATCH_SIZE", 100),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeTokenGuard(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case TokenGuardRedis:
		return TokenGuardRedis
	default:
		return TokenGuardDatabase
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("30s") or plain seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
