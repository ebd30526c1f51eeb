package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ingestion backend.
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// Queue (Pub/Sub)
	GoogleProjectID   string
	PubSubTopic       string
	GoogleCredentials string

	// Vector index (Qdrant)
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantUseTLS bool

	// AI providers
	AIProvider    string // "gemini", "ollama" or "auto"
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string
	EmbeddingDim  int

	// Mail providers
	GoogleClientID     string
	GoogleClientSecret string

	// Ingestion tuning
	PageSize          int           // messages fetched per page job
	MaxMessages       int           // default per-sync cap when the caller gives none
	LookbackDays      int           // first-sync window when no checkpoint exists
	ContinuationDelay time.Duration // smoothing delay between continuation pages
	SummaryThreshold  int           // chars above which map-reduce summarization kicks in

	// Secrets
	EncryptionKey string // 32-byte key for encrypting grant credentials at rest
}

// Load initializes and returns application configuration.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GoogleProjectID:   os.Getenv("GOOGLE_PROJECT_ID"),
		PubSubTopic:       getEnv("PUBSUB_TOPIC", "mailatlas-ingest"),
		GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:   getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey: os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS: getEnvBool("QDRANT_USE_TLS", false),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),
		EmbeddingDim:  getEnvInt("EMBEDDING_DIM", 768),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),

		PageSize:          getEnvInt("INGEST_PAGE_SIZE", 200),
		MaxMessages:       getEnvInt("INGEST_MAX_MESSAGES", 1000),
		LookbackDays:      getEnvInt("INGEST_LOOKBACK_DAYS", 30),
		ContinuationDelay: getEnvDuration("INGEST_CONTINUATION_DELAY", 200*time.Millisecond),
		SummaryThreshold:  getEnvInt("SUMMARY_THRESHOLD_CHARS", 6000),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as duration with a default fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
