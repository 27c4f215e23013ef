package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseDSN        string
	JWTSecret          string
	JWTAccessExpiry    time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	EncryptionKey      string

	// Sync tuning
	AttachmentDir      string
	MaxPerContainer    int
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	ScanCooldown       time.Duration
	SyncCooldown       time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	accessExpiry := 15 * time.Minute
	if exp := os.Getenv("JWT_ACCESS_EXPIRY"); exp != "" {
		if parsed, err := time.ParseDuration(exp); err == nil {
			accessExpiry = parsed
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=dealsync port=5432 sslmode=disable"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:    accessExpiry,
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		AttachmentDir:      getEnv("ATTACHMENT_DIR", "./data/attachments"),
		MaxPerContainer:    getEnvInt("SYNC_MAX_PER_CONTAINER", 500),
		RetryMaxAttempts:   getEnvInt("SYNC_RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:     getEnvDuration("SYNC_RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:      getEnvDuration("SYNC_RETRY_MAX_DELAY", 30*time.Second),
		ScanCooldown:       getEnvDuration("SCAN_COOLDOWN", 2*time.Minute),
		SyncCooldown:       getEnvDuration("SYNC_COOLDOWN", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
