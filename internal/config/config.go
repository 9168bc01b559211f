package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

// Shared by both services. The signing secret and algorithm must match
// between the issuer and every verifier.
type JWTConfig struct {
	Secret    string
	Algorithm string
}

type LogConfig struct {
	Level string
	File  string
	Debug bool
}

type ChatConfig struct {
	// Server
	Host string
	Port string
	Env  string

	JWT JWTConfig
	Log LogConfig

	// Completion provider
	Provider               string
	OpenAIAPIKey           string
	OpenAIAPIBase          string
	GeminiAPIKey           string
	DefaultModel           string
	ProviderTimeoutSeconds int
	ProviderMaxRetries     int

	// Per-user limiter, disabled when RateLimitRequests <= 0
	RateLimitRequests      int
	RateLimitWindowSeconds int

	CORSAllowedOrigins []string
	TrustedProxies     []string // may set X-Forwarded-For / X-Real-IP
}

type AuthConfig struct {
	// Server
	Host string
	Port string
	Env  string

	JWT              JWTConfig
	Log              LogConfig
	AccessTTLMinutes int
	RefreshTTLHours  int
	BcryptCost       int

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	EmailWorkers int

	// Frontend
	FrontendURL        string
	CORSAllowedOrigins []string
	TrustedProxies     []string
}

func (c *ChatConfig) Addr() string { return c.Host + ":" + c.Port }

func (c *AuthConfig) Addr() string { return c.Host + ":" + c.Port }

// LoadChat panics when a required variable is missing.
func LoadChat() *ChatConfig {
	// Load .env file if it exists
	godotenv.Load()

	debug := getEnvAsBoolOrDefault("DEBUG", false)
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", "openai"))

	cfg := &ChatConfig{
		Host:                   getEnvOrDefault("CHAT_HOST", "0.0.0.0"),
		Port:                   getEnvOrDefault("CHAT_PORT", "8001"),
		Env:                    environment(debug),
		JWT:                    loadJWT(),
		Log:                    loadLog(debug),
		Provider:               provider,
		OpenAIAPIBase:          strings.TrimRight(getEnvOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
		DefaultModel:           getEnvOrDefault("AI_MODEL_NAME", "gpt-4o-mini"),
		ProviderTimeoutSeconds: getEnvAsIntOrDefault("PROVIDER_TIMEOUT_SECONDS", 60),
		ProviderMaxRetries:     getEnvAsIntOrDefault("PROVIDER_MAX_RETRIES", 0),
		RateLimitRequests:      getEnvAsIntOrDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: getEnvAsIntOrDefault("RATE_LIMIT_WINDOW_SECONDS", 3600),
		CORSAllowedOrigins:     getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		TrustedProxies:         getEnvAsListOrDefault("TRUSTED_PROXIES", nil),
	}

	switch provider {
	case "gemini":
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	case "openai":
		cfg.OpenAIAPIKey = mustGetEnv("OPENAI_API_KEY")
	default:
		panic(fmt.Sprintf("unsupported AI_PROVIDER %q", provider))
	}

	return cfg
}

// LoadAuth panics when a required variable is missing.
func LoadAuth() *AuthConfig {
	godotenv.Load()

	debug := getEnvAsBoolOrDefault("DEBUG", false)

	return &AuthConfig{
		Host:               getEnvOrDefault("AUTH_HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("AUTH_PORT", "8000"),
		Env:                environment(debug),
		JWT:                loadJWT(),
		Log:                loadLog(debug),
		AccessTTLMinutes:   getEnvAsIntOrDefault("JWT_ACCESS_TTL_MINUTES", 15),
		RefreshTTLHours:    getEnvAsIntOrDefault("JWT_REFRESH_TTL_HOURS", 7*24),
		BcryptCost:         getEnvAsIntOrDefault("BCRYPT_COST", 12),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:           mustGetEnv("REDIS_URL"),
		SMTPHost:           getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:           getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:           getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:           getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:           getEnvOrDefault("SMTP_FROM", "noreply@codementorx.dev"),
		EmailWorkers:       getEnvAsIntOrDefault("EMAIL_WORKERS", 2),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		CORSAllowedOrigins: getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		TrustedProxies:     getEnvAsListOrDefault("TRUSTED_PROXIES", nil),
	}
}

func loadJWT() JWTConfig {
	return JWTConfig{
		Secret:    mustGetEnv("JWT_SECRET_KEY"),
		Algorithm: strings.ToUpper(getEnvOrDefault("JWT_ALGORITHM", "HS256")),
	}
}

func loadLog(debug bool) LogConfig {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		File:  getEnvOrDefault("LOG_FILE", ""),
		Debug: debug,
	}
}

func environment(debug bool) string {
	if debug {
		return "development"
	}
	return "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsListOrDefault splits a comma-separated value, dropping blanks.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
