package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Dev API store backend: "memory", "postgres", or "sqlite"
	StoreBackend string
	DatabaseURL  string
	DatabasePath string // SQLite file path

	// Fixture source: "local" or "s3"
	FixturesSource string
	FixturesDir    string
	FixturesKey    string

	// S3-compatible object storage
	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	// Dev API behaviour
	PageSize   int
	APILatency time.Duration

	// CORS
	CORSOrigins []string

	// Review client
	APIURL      string
	HTTPTimeout time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: envOrDefault("PORT", "8080"),

		StoreBackend: envOrDefault("STORE_BACKEND", "memory"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: envOrDefault("DATABASE_PATH", "approvals.db"),

		FixturesSource: envOrDefault("FIXTURES_SOURCE", "local"),
		FixturesDir:    envOrDefault("FIXTURES_DIR", "fixtures"),
		FixturesKey:    envOrDefault("FIXTURES_KEY", "transactions.json"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:    os.Getenv("S3_USE_SSL") != "false",

		PageSize:   envInt("PAGE_SIZE", 5),
		APILatency: envDuration("API_LATENCY", 0),

		CORSOrigins: parseCORSOrigins(os.Getenv("CORS_ORIGINS")),

		APIURL:      envOrDefault("API_URL", "http://localhost:8080"),
		HTTPTimeout: envDuration("HTTP_TIMEOUT", 10*time.Second),

		LogLevel: envOrDefault("LOG_LEVEL", "info"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseCORSOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			origins = append(origins, t)
		}
	}
	return origins
}
