package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	JWTSecret         string
	AIProvider        string
	GeminiAPIKey      string
	GeminiModel       string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	MaxOutputTokens   int
	Temperature       float32
	MaxUploadMB       int
	SessionTTL        time.Duration
	PrimaryLanguage   string
	SecondaryLanguage string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Smart Grade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("max_output_tokens", 8192)
	v.SetDefault("temperature", 0.1)
	v.SetDefault("max_upload_mb", 10)
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("language.primary", "English")
	v.SetDefault("language.secondary", "Spanish")

	ttlString := v.GetString("session.ttl")
	if ttlString == "" {
		ttlString = "2h"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid session ttl: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		JWTSecret:         v.GetString("jwt.secret"),
		AIProvider:        strings.ToLower(v.GetString("ai.provider")),
		GeminiAPIKey:      v.GetString("gemini.api_key"),
		GeminiModel:       v.GetString("gemini.model"),
		OpenAIAPIKey:      v.GetString("openai.api_key"),
		OpenAIModel:       v.GetString("openai.model"),
		OpenAIBaseURL:     v.GetString("openai.base_url"),
		MaxOutputTokens:   v.GetInt("max_output_tokens"),
		Temperature:       float32(v.GetFloat64("temperature")),
		MaxUploadMB:       v.GetInt("max_upload_mb"),
		SessionTTL:        ttl,
		PrimaryLanguage:   v.GetString("language.primary"),
		SecondaryLanguage: v.GetString("language.secondary"),
	}

	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("gemini api key must be provided")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("openai api key must be provided")
		}
	default:
		return Config{}, fmt.Errorf("unknown ai provider %q", cfg.AIProvider)
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}

	return cfg, nil
}
