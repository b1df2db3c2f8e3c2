package llm

import (
	"github.com/pkg/errors"

	"github.com/voxmate/voxmate/internal/profile"
)

// NewGeneratorFromProfile builds the configured generation backend. The
// candidate list is constructed once at startup and shared across sessions so
// the sticky cursor survives for the life of the process.
func NewGeneratorFromProfile(p *profile.Profile) (Generator, *Candidates, error) {
	switch p.LLMProvider {
	case "gemini":
		candidates, err := NewCandidates(p.GeminiModels...)
		if err != nil {
			return nil, nil, err
		}
		cfg := DefaultGeminiConfig()
		cfg.APIKey = p.GeminiAPIKey
		cfg.BaseURL = p.GeminiBaseURL
		cfg.Timeout = p.LLMTimeout
		cfg.MaxRetries = p.LLMMaxRetries
		client, err := NewGeminiClient(cfg, candidates)
		if err != nil {
			return nil, nil, err
		}
		return client, candidates, nil

	case "openai":
		client, err := NewOpenAIClient(&OpenAIConfig{
			BaseURL:     p.OpenAIBaseURL,
			APIKey:      p.OpenAIAPIKey,
			Model:       p.OpenAIModel,
			Temperature: 0.7,
			MaxTokens:   1024,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil

	default:
		return nil, nil, errors.Errorf("unsupported llm provider: %s", p.LLMProvider)
	}
}
