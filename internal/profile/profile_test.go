package profile

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "gemini" {
		t.Errorf("expected default provider gemini, got %q", p.LLMProvider)
	}
	if len(p.GeminiModels) != 3 {
		t.Errorf("expected 3 default candidate models, got %v", p.GeminiModels)
	}
	if p.LLMTimeout != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %v", p.LLMTimeout)
	}
	if p.SessionTurnLimit != 10 {
		t.Errorf("expected default turn limit 10, got %d", p.SessionTurnLimit)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VOXMATE_LLM_PROVIDER", "openai")
	t.Setenv("VOXMATE_GEMINI_MODELS", " a , b ,")
	t.Setenv("VOXMATE_LLM_TIMEOUT_SECONDS", "5")

	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "openai" {
		t.Errorf("expected provider openai, got %q", p.LLMProvider)
	}
	if len(p.GeminiModels) != 2 || p.GeminiModels[0] != "a" || p.GeminiModels[1] != "b" {
		t.Errorf("expected trimmed models [a b], got %v", p.GeminiModels)
	}
	if p.LLMTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", p.LLMTimeout)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "valid sqlite profile",
			profile: Profile{Driver: "sqlite", Data: "/tmp", LLMProvider: "gemini", GeminiModels: []string{"gemini-1.5-flash"}},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			profile: Profile{Driver: "postgres", Data: "/tmp", LLMProvider: "gemini", GeminiModels: []string{"m"}},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			profile: Profile{Driver: "sqlite", Data: "/tmp", LLMProvider: "claude", GeminiModels: []string{"m"}},
			wantErr: true,
		},
		{
			name:    "no candidate models",
			profile: Profile{Driver: "sqlite", Data: "/tmp", LLMProvider: "gemini"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.profile.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
