package config

import (
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	// Server
	HTTPAddr      string
	DatabaseURL   string
	RedisAddr     string
	RedisPass     string
	RedisDB       int
	RedisPoolSize int

	// Auth
	JWTSecret string

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
	SMTPSecure   bool

	// Sweeps
	DailyCron   string
	MonthlyCron string
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:     getEnv("REDIS_PASS", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 10),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com/v1"),
		GatewayKeyID:         getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret:     getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "465"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Billing"),
		SMTPSecure:   strings.ToLower(getEnv("SMTP_SECURE", "true")) == "true",

		DailyCron:   getEnv("SWEEP_DAILY_CRON", "0 1 * * *"),
		MonthlyCron: getEnv("SWEEP_MONTHLY_CRON", "30 1 1 * *"),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
