package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath string
	CatalogPath string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	QwenAPIKey    string
	QwenModel     string
	QwenBaseURL   string

	DefaultProvider string

	MaxConcurrentGenerations int64
	MaxScenesPerJob          int
	CreditPerImage           int
	FreeCredits              int
	RetryMaxAttempts         int
	RetryBackoff             time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
	AdminToken       string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the service
// runs on the in-memory repositories, which suits local development.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePath: getEnv("STORAGE_PATH", "./data/storage"),
		CatalogPath: os.Getenv("CATALOG_PATH"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		QwenAPIKey:    os.Getenv("QWEN_API_KEY"),
		QwenModel:     getEnv("QWEN_MODEL", "wanx2.1-imageedit"),
		QwenBaseURL:   getEnv("QWEN_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),

		DefaultProvider: getEnv("DEFAULT_PROVIDER", "gemini"),

		MaxConcurrentGenerations: int64(getEnvInt("MAX_CONCURRENT_GENERATIONS", 5)),
		MaxScenesPerJob:          getEnvInt("MAX_SCENES_PER_JOB", 10),
		CreditPerImage:           getEnvInt("CREDIT_PER_IMAGE", 1),
		FreeCredits:              getEnvInt("FREE_CREDITS", 10),
		RetryMaxAttempts:         getEnvInt("RETRY_MAX_ATTEMPTS", 2),
		RetryBackoff:             time.Millisecond * time.Duration(getEnvInt("RETRY_BACKOFF_MS", 500)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
