package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

type Config struct {
	Mode           Mode
	Port           string
	AllowedOrigins []string

	// Persistence. Production requires Postgres; development falls back to
	// an embedded SQLite file.
	DatabaseDSN string
	SQLitePath  string

	// Search and sandbox providers.
	ValyuAPIKey    string
	ValyuBaseURL   string
	SandboxAPIKey  string
	SandboxBaseURL string

	// Hosted LLM paths.
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayModel   string
	GeminiAPIKey   string
	GeminiModel    string

	// Local model servers, probed in development only.
	OllamaBaseURL     string
	LocalAIBaseURL    string
	LocalModelPrefs   []string
	LocalProbeTimeout time.Duration

	// Auth and billing.
	Auth0Domain         string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeMeterName     string
	StripePriceID       string

	// Turn limits.
	RateLimitWindow time.Duration
	AnonymousLimit  int
	FreeLimit       int
	TurnTimeout     time.Duration
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func Load() *Config {
	mode := Mode(getenv("APP_MODE", string(ModeDevelopment)))
	if mode != ModeDevelopment && mode != ModeProduction {
		log.Warn().Str("mode", string(mode)).Msg("Unknown APP_MODE, defaulting to development")
		mode = ModeDevelopment
	}

	return &Config{
		Mode:           mode,
		Port:           getenv("PORT", "3000"),
		AllowedOrigins: strings.Split(getenv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		SQLitePath:  getenv("SQLITE_PATH", "patent_explorer.db"),

		ValyuAPIKey:    os.Getenv("VALYU_API_KEY"),
		ValyuBaseURL:   getenv("VALYU_BASE_URL", "https://api.valyu.network"),
		SandboxAPIKey:  os.Getenv("SANDBOX_API_KEY"),
		SandboxBaseURL: getenv("SANDBOX_BASE_URL", "https://app.daytona.io/api"),

		GatewayBaseURL: getenv("GATEWAY_BASE_URL", "https://openrouter.ai/api"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		GatewayModel:   getenv("GATEWAY_MODEL", "anthropic/claude-sonnet-4"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-1.5-pro"),

		OllamaBaseURL:     getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LocalAIBaseURL:    getenv("LOCAL_AI_BASE_URL", "http://localhost:1234"),
		LocalModelPrefs:   strings.Split(getenv("LOCAL_MODEL_PREFERENCES", "qwen3,llama3.1,mistral"), ","),
		LocalProbeTimeout: 3 * time.Second,

		Auth0Domain:         os.Getenv("AUTH0_DOMAIN"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeMeterName:     getenv("STRIPE_METER_NAME", "patent_explorer_usage"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),

		RateLimitWindow: 24 * time.Hour,
		AnonymousLimit:  5,
		FreeLimit:       20,
		TurnTimeout:     5 * time.Minute,
	}
}

// Validate checks credentials against the operating mode. Missing required
// values are hard errors in production and warnings in development.
func (c *Config) Validate() error {
	required := map[string]string{
		"DATABASE_DSN":          c.DatabaseDSN,
		"VALYU_API_KEY":         c.ValyuAPIKey,
		"AUTH0_DOMAIN":          c.Auth0Domain,
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
	}

	var missing []string
	for name, v := range required {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if c.GatewayAPIKey == "" && c.GeminiAPIKey == "" {
		missing = append(missing, "GATEWAY_API_KEY or GEMINI_API_KEY")
	}

	if len(missing) == 0 {
		return nil
	}
	if c.Mode == ModeProduction {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	for _, name := range missing {
		log.Warn().Str("variable", name).Msg("Credential not set; the dependent feature is disabled in development")
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Mode == ModeDevelopment
}
