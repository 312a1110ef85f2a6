package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// NLU providers.
const (
	NLUProviderDialogflow = "dialogflow"
	NLUProviderOpenAI     = "openai"
	NLUProviderGemini     = "gemini"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	EnableHSTS      bool
	ServerDebugMode bool
	WorkerDebugMode bool
	LogConsole      bool
	RequestTimeout  time.Duration
	MaxRequestBytes int64

	StoreDriver  string
	DatabaseURL  string
	SQLitePath   string
	AutoMigrate  bool
	StoreTimeout time.Duration

	RedisURL                string
	RateLimitReloadInterval time.Duration

	NLUProvider           string
	NLULanguageCode       string
	NLUTimeout            time.Duration
	DialogflowProjectID   string
	GoogleCredentialsFile string
	OpenAIKey             string
	AIModel               string
	AIBaseURL             string
	GeminiAPIKey          string
	GeminiModel           string

	TranslateEnabled bool
	TranslateAPIKey  string
	TranslateTimeout time.Duration

	AdminJWTSecret string
	AdminJWKSURL   string
	AdminIssuer    string
	AdminRole      string

	RabbitMQURL      string
	RabbitMQPrefetch int

	CleanupEnabled       bool
	CleanupInterval      time.Duration
	CleanupHighWaterMark int64
	WorkerRunCleanup     bool

	OTELEnabled  bool
	OTELEndpoint string
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already present in the environment. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore loads configuration but only validates the session store
// settings. Operator tooling that never talks to the NLU provider or checks
// admin tokens uses it.
func LoadStore() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		LogConsole:      getEnvBool("LOG_CONSOLE", false),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBytes: int64(getEnvInt("MAX_REQUEST_BYTES", 1<<20)),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", "chat_sessions.db"),
		AutoMigrate:  getEnvBool("AUTO_MIGRATE", true),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		RedisURL:                getEnv("REDIS_URL", ""),
		RateLimitReloadInterval: getEnvDuration("RATE_LIMIT_RELOAD_INTERVAL", time.Minute),

		NLUProvider:           strings.ToLower(getEnv("NLU_PROVIDER", NLUProviderDialogflow)),
		NLULanguageCode:       getEnv("NLU_LANGUAGE_CODE", "en"),
		NLUTimeout:            getEnvDuration("NLU_TIMEOUT", 10*time.Second),
		DialogflowProjectID:   getEnv("DIALOGFLOW_PROJECT_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		AIModel:               getEnv("AI_MODEL", ""),
		AIBaseURL:             getEnv("AI_BASE_URL", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		TranslateEnabled: getEnvBool("TRANSLATE_ENABLED", true),
		TranslateAPIKey:  getEnv("TRANSLATE_API_KEY", ""),
		TranslateTimeout: getEnvDuration("TRANSLATE_TIMEOUT", 5*time.Second),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWKSURL:   getEnv("ADMIN_JWKS_URL", ""),
		AdminIssuer:    getEnv("ADMIN_JWT_ISSUER", ""),
		AdminRole:      getEnv("ADMIN_ROLE", "admin"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),

		CleanupEnabled:       getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", 60*time.Minute),
		CleanupHighWaterMark: int64(getEnvInt("CLEANUP_HIGH_WATER_MARK", 1000)),
		WorkerRunCleanup:     getEnvBool("WORKER_RUN_CLEANUP", false),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}

	switch c.NLUProvider {
	case NLUProviderDialogflow:
		if c.DialogflowProjectID == "" {
			return fmt.Errorf("DIALOGFLOW_PROJECT_ID is required when NLU_PROVIDER=dialogflow")
		}
	case NLUProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when NLU_PROVIDER=openai")
		}
	case NLUProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when NLU_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported NLU_PROVIDER %q", c.NLUProvider)
	}

	if c.AdminJWTSecret == "" && c.AdminJWKSURL == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET or ADMIN_JWKS_URL is required")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	return nil
}

// AllowedOrigins splits FrontendURL on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
