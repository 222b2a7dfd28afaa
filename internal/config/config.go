package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Extraction providers selectable through EXTRACTION_PROVIDER.
const (
	ExtractorAgent  = "agent"
	ExtractorOpenAI = "openai"
	ExtractorNone   = "none"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Collection store
	StoreBackend string
	RedisURL     string
	DatabaseURL  string
	DBMaxConns   int

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Commission stub extraction
	ExtractionProvider   string
	AgentAPIURL          string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	ExtractionTimeout    time.Duration // 0 = bound only by the request context
	ExtractionMaxRetries int
	MaxStubBytes         int64

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret           string
	SessionTTL          time.Duration
	AuthRequirePassword bool
	DefaultOrgID        string

	// Demo data
	SeedDemo bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		ExtractionProvider:   strings.ToLower(getEnv("EXTRACTION_PROVIDER", ExtractorNone)),
		AgentAPIURL:          getEnv("AGENT_API_URL", "http://localhost:8090"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ExtractionTimeout:    getEnvDuration("EXTRACTION_TIMEOUT", 0),
		ExtractionMaxRetries: getEnvInt("EXTRACTION_MAX_RETRIES", 0),
		MaxStubBytes:         int64(getEnvInt("MAX_STUB_BYTES", 10<<20)),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:           getEnv("JWT_SECRET", "brokerflow-dev-secret-change-me"),
		SessionTTL:          getEnvDuration("SESSION_TTL", 12*time.Hour),
		AuthRequirePassword: getEnvBool("AUTH_REQUIRE_PASSWORD", false),
		DefaultOrgID:        getEnv("DEFAULT_ORG_ID", "brokerage-789"),

		SeedDemo: getEnvBool("SEED_DEMO", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
