package profile

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where voxmate stores its own data
	DSN string
	// Driver is the database driver (sqlite only for now)
	Driver string
	// Version is the current version of server
	Version string

	// LLM Configuration
	LLMProvider      string        // VOXMATE_LLM_PROVIDER (gemini | openai, default: gemini)
	GeminiAPIKey     string        // VOXMATE_GEMINI_API_KEY
	GeminiBaseURL    string        // VOXMATE_GEMINI_BASE_URL
	GeminiModels     []string      // VOXMATE_GEMINI_MODELS (comma-separated, preference order)
	OpenAIAPIKey     string        // VOXMATE_OPENAI_API_KEY
	OpenAIBaseURL    string        // VOXMATE_OPENAI_BASE_URL
	OpenAIModel      string        // VOXMATE_OPENAI_MODEL
	LLMTimeout       time.Duration // VOXMATE_LLM_TIMEOUT_SECONDS per-request deadline
	LLMMaxRetries    int           // VOXMATE_LLM_MAX_RETRIES in-place retries on a rate limit
	SessionTurnLimit int           // VOXMATE_SESSION_TURN_LIMIT turns before an AI session completes
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if a usable generation backend is configured.
func (p *Profile) IsLLMEnabled() bool {
	switch p.LLMProvider {
	case "openai":
		return p.OpenAIAPIKey != ""
	default:
		return p.GeminiAPIKey != ""
	}
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("VOXMATE_LLM_PROVIDER", "gemini")
	p.GeminiAPIKey = os.Getenv("VOXMATE_GEMINI_API_KEY")
	p.GeminiBaseURL = getEnvOrDefault("VOXMATE_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models")
	p.GeminiModels = splitModels(getEnvOrDefault("VOXMATE_GEMINI_MODELS", "gemini-1.5-flash,gemini-1.5-flash-8b,gemini-1.5-pro"))
	p.OpenAIAPIKey = os.Getenv("VOXMATE_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("VOXMATE_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.OpenAIModel = getEnvOrDefault("VOXMATE_OPENAI_MODEL", "gpt-4o-mini")
	p.LLMTimeout = time.Duration(getIntEnvOrDefault("VOXMATE_LLM_TIMEOUT_SECONDS", 30)) * time.Second
	p.LLMMaxRetries = getIntEnvOrDefault("VOXMATE_LLM_MAX_RETRIES", 2)
	p.SessionTurnLimit = getIntEnvOrDefault("VOXMATE_SESSION_TURN_LIMIT", 10)
}

// Validate checks that the profile is usable for serving.
func (p *Profile) Validate() error {
	if p.Driver != "sqlite" {
		return errors.Errorf("unknown db driver %q: only 'sqlite' is supported", p.Driver)
	}
	if p.Data == "" && p.DSN == "" {
		return errors.New("either data directory or dsn must be set")
	}
	if p.LLMProvider != "gemini" && p.LLMProvider != "openai" {
		return errors.Errorf("unknown llm provider %q: only 'gemini' and 'openai' are supported", p.LLMProvider)
	}
	if len(p.GeminiModels) == 0 {
		return errors.New("at least one gemini candidate model is required")
	}
	return nil
}

func splitModels(s string) []string {
	var models []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}
