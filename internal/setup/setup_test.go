package setup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/model"
)

func baseConfig() *model.AppConfig {
	return &model.AppConfig{
		Email: model.EmailConfig{Port: 993, TLS: true, EmailCount: 10},
		AI: model.AIConfig{
			Provider: "ollama",
			Ollama:   model.OllamaConfig{BaseURL: "http://localhost:11434", ModelName: "llama3"},
			OpenAI:   model.OpenAIConfig{Model: "gpt-3.5-turbo"},
		},
	}
}

type secretRecorder map[string]string

func (s secretRecorder) set(key, value string) error {
	s[key] = value
	return nil
}

func TestApplyStoresSecretsAsReferences(t *testing.T) {
	secrets := secretRecorder{}
	a := Answers{
		Host:     " imap.example.com ",
		Port:     "143",
		Username: "me@example.com",
		Password: "hunter2",
		Provider: "openai",
		APIKey:   "sk-test",
		Journal:  true,
	}

	cfg, err := Apply(a, baseConfig(), secrets.set)
	require.NoError(t, err)

	assert.Equal(t, "imap.example.com", cfg.Email.Host)
	assert.Equal(t, 143, cfg.Email.Port)
	assert.False(t, cfg.Email.TLS)
	assert.Equal(t, "keyring:email-me@example.com", cfg.Email.Password)
	assert.Equal(t, "keyring:ai-openai", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "gpt-3.5-turbo", cfg.AI.OpenAI.Model)
	assert.Equal(t, model.DefaultJournalPath(), cfg.Journal.Path)
	assert.Equal(t, 10, cfg.Email.EmailCount)

	assert.Equal(t, secretRecorder{"email-me@example.com": "hunter2", "ai-openai": "sk-test"}, secrets)
}

func TestApplyProviders(t *testing.T) {
	cases := []struct {
		name  string
		a     Answers
		check func(t *testing.T, cfg *model.AppConfig)
	}{
		{
			name: "ollama",
			a:    Answers{Port: "993", Provider: "ollama", BaseURL: "http://gpu:11434", Model: "mistral"},
			check: func(t *testing.T, cfg *model.AppConfig) {
				assert.Equal(t, "http://gpu:11434", cfg.AI.Ollama.BaseURL)
				assert.Equal(t, "mistral", cfg.AI.Ollama.ModelName)
			},
		},
		{
			name: "azure",
			a: Answers{
				Port: "993", Provider: "azureopenai", APIKey: "k",
				AzureEndpoint: "https://r.openai.azure.com", AzureDeployment: "gpt4",
			},
			check: func(t *testing.T, cfg *model.AppConfig) {
				assert.Equal(t, "keyring:ai-azureopenai", cfg.AI.AzureOpenAI.APIKey)
				assert.Equal(t, "https://r.openai.azure.com", cfg.AI.AzureOpenAI.Endpoint)
				assert.Equal(t, "gpt4", cfg.AI.AzureOpenAI.DeploymentName)
			},
		},
		{
			name: "anthropic with model",
			a:    Answers{Port: "993", Provider: "anthropic", APIKey: "k", Model: "claude-3-opus"},
			check: func(t *testing.T, cfg *model.AppConfig) {
				assert.Equal(t, "keyring:ai-anthropic", cfg.AI.Anthropic.APIKey)
				assert.Equal(t, "claude-3-opus", cfg.AI.Anthropic.Model)
				assert.Empty(t, cfg.Journal.Path)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Apply(tc.a, baseConfig(), secretRecorder{}.set)
			require.NoError(t, err)
			assert.Equal(t, tc.a.Provider, cfg.AI.Provider)
			tc.check(t, cfg)
		})
	}
}

func TestApplyErrors(t *testing.T) {
	_, err := Apply(Answers{Port: "abc", Provider: "ollama"}, baseConfig(), secretRecorder{}.set)
	assert.ErrorContains(t, err, "invalid port")

	_, err = Apply(Answers{Port: "993", Provider: "gemini"}, baseConfig(), secretRecorder{}.set)
	assert.ErrorContains(t, err, `unsupported AI provider "gemini"`)

	failing := func(string, string) error { return errors.New("keyring locked") }
	_, err = Apply(Answers{Port: "993", Password: "p", Provider: "ollama"}, baseConfig(), failing)
	assert.ErrorContains(t, err, "saving password: keyring locked")
}

func TestApplyLeavesBaseUntouched(t *testing.T) {
	base := baseConfig()
	_, err := Apply(Answers{Host: "h", Port: "993", Provider: "ollama"}, base, secretRecorder{}.set)
	require.NoError(t, err)
	assert.Empty(t, base.Email.Host)
}

func TestStaleSecrets(t *testing.T) {
	old := baseConfig()
	old.Email.Password = "keyring:email-old@example.com"
	old.AI.OpenAI.APIKey = "keyring:ai-openai"
	old.AI.Anthropic.APIKey = "plain-key"

	a := Answers{
		Host:     "imap.example.com",
		Port:     "993",
		Username: "new@example.com",
		Password: "hunter2",
		Provider: "openai",
		APIKey:   "sk-new",
	}
	next, err := Apply(a, old, secretRecorder{}.set)
	require.NoError(t, err)

	assert.Equal(t, []string{"email-old@example.com"}, StaleSecrets(old, next))
	assert.Empty(t, StaleSecrets(next, next))
}

func TestAnswersFrom(t *testing.T) {
	cfg := baseConfig()
	cfg.Email.Host = "imap.example.com"
	cfg.Email.Password = "keyring:email-me"

	a := AnswersFrom(cfg)
	assert.Equal(t, "imap.example.com", a.Host)
	assert.Equal(t, "993", a.Port)
	assert.Equal(t, "llama3", a.Model)
	assert.Empty(t, a.Password)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePort("993"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
	assert.Error(t, validatePort("x"))

	assert.NoError(t, validateURL("http://localhost:11434"))
	assert.Error(t, validateURL("localhost"))
	assert.Error(t, validateURL(""))

	assert.Error(t, validateRequired("Host")("  "))
	assert.NoError(t, validateRequired("Host")("h"))
}

func TestNewFormBuilds(t *testing.T) {
	a := AnswersFrom(baseConfig())
	assert.NotNil(t, NewForm(&a))
}
