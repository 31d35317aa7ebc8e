package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration, loaded once at startup.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Port        string

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

	OTLPEndpoint string

	JWTAccessSecret  string
	JWTRefreshSecret string

	WalletMaxBalancePaise int64

	AIProofConfidenceThreshold int
	AIAutoVerifyThreshold      int

	MaxFailedAttempts int
	LockoutDuration    int64 // seconds

	SeedAdmin bool
	SeedE2E   bool
	SeedDev   bool

	AdminSeedMobile   string
	AdminSeedUsername string
	AdminSeedPassword string
	AdminSeedName     string

	DrainTimeoutSeconds     int
	AvailabilityIntervalSec int
	MemoryWarningThresholdMB int64
}

// Load loads configuration from environment variables and a .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("NODE_ENV", "development")

	cfg := Config{
		AppName:     getenv("APP_NAME", "partnerledger"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		Port:        getenv("PORT", "8080"),

		DBType:            getenv("DB_TYPE", "postgres"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "partnerledger"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DB_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DB_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DB_CONN_MAX_LIFETIME_SEC", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DB_CONN_MAX_IDLE_TIME_SEC", 300)),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		JWTAccessSecret:  strings.TrimSpace(getenv("JWT_ACCESS_SECRET", "")),
		JWTRefreshSecret: strings.TrimSpace(getenv("JWT_REFRESH_SECRET", "")),

		WalletMaxBalancePaise: getenvInt64("WALLET_MAX_BALANCE_PAISE", 10_000_000_00),

		AIProofConfidenceThreshold: int(getenvInt64("AI_PROOF_CONFIDENCE_THRESHOLD", 75)),
		AIAutoVerifyThreshold:      int(getenvInt64("AI_AUTO_VERIFY_THRESHOLD", 90)),

		MaxFailedAttempts: int(getenvInt64("MAX_FAILED_ATTEMPTS", 7)),
		LockoutDuration:    getenvInt64("LOCKOUT_DURATION_SECONDS", 15*60),

		SeedAdmin: getenvBool("SEED_ADMIN", false),
		SeedE2E:   getenvBool("SEED_E2E", false),
		SeedDev:   getenvBool("SEED_DEV", false),

		AdminSeedMobile:   strings.TrimSpace(getenv("ADMIN_SEED_MOBILE", "")),
		AdminSeedUsername: strings.TrimSpace(getenv("ADMIN_SEED_USERNAME", "admin")),
		AdminSeedPassword: strings.TrimSpace(getenv("ADMIN_SEED_PASSWORD", "")),
		AdminSeedName:     strings.TrimSpace(getenv("ADMIN_SEED_NAME", "Platform Admin")),

		DrainTimeoutSeconds:      int(getenvInt64("DRAIN_TIMEOUT_SECONDS", 30)),
		AvailabilityIntervalSec:  int(getenvInt64("AVAILABILITY_INTERVAL_SECONDS", 5*60)),
		MemoryWarningThresholdMB: getenvInt64("MEMORY_WARNING_THRESHOLD_MB", 1024),
	}

	// SEED_DEV is never honored in production regardless of the env var.
	if cfg.Environment == "production" {
		cfg.SeedDev = false
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
