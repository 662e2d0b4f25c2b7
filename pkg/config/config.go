package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GoogleApiKey   string
	LLMProvider    string
	ReasoningModel string
	FastModel      string

	SearchProvider     string
	SerperApiKey       string
	MistralApiKey      string
	SearchResultsCount int
	CrawlMaxRetries    int
	CrawlConcurrency   int

	MaxRounds         int
	RequestTimeout    time.Duration
	StructuredRetries int
	MaxContentChars   int

	CacheBackend string
	CacheTTL     time.Duration
	RedisURL     string
	DatabaseURL  string

	Port string
}

// Load reads configuration from the environment, loading a .env file first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		LLMProvider:    getEnv("LLM_PROVIDER", "genai"),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),

		SearchProvider:     getEnv("SEARCH_PROVIDER", "serper"),
		SerperApiKey:       getEnv("SERPER_API_KEY", ""),
		MistralApiKey:      getEnv("MISTRAL_API_KEY", ""),
		SearchResultsCount: getEnvAsInt("SEARCH_RESULTS_COUNT", 3),
		CrawlMaxRetries:    getEnvAsInt("CRAWL_MAX_RETRIES", 3),
		CrawlConcurrency:   getEnvAsInt("CRAWL_CONCURRENCY", 8),

		MaxRounds:         getEnvAsInt("MAX_ROUNDS", 2),
		RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		StructuredRetries: getEnvAsInt("STRUCTURED_RETRIES", 2),
		MaxContentChars:   getEnvAsInt("MAX_CONTENT_CHARS", 24000),

		CacheBackend: getEnv("CACHE_BACKEND", "memory"),
		CacheTTL:     getEnvAsDuration("CACHE_TTL", 6*time.Hour),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		Port: getEnv("PORT", "8081"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
