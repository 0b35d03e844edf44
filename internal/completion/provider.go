// Package completion sends rendered prompts to a language model and
// returns the raw response text.
package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-triage/internal/model"
)

// Provider names accepted in ai.provider.
const (
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azureopenai"
	ProviderAnthropic   = "anthropic"
)

// Supported lists the accepted provider names.
var Supported = []string{ProviderOllama, ProviderOpenAI, ProviderAzureOpenAI, ProviderAnthropic}

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.1
)

// Provider generates a completion for a prompt. Implementations never
// retry and return ctx.Err() (possibly wrapped) when cancelled.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ConfigError reports a provider that cannot be built from configuration.
type ConfigError struct {
	Provider string
	Message  string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s provider: %s", e.Provider, e.Message)
}

// New builds the provider selected by cfg.Provider, wrapped in a circuit
// breaker when cfg.BreakerFailures is positive. Secrets must already be
// resolved.
func New(cfg model.AIConfig, log zerolog.Logger) (Provider, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.BreakerFailures > 0 {
		return NewBreaker(p, cfg.BreakerFailures, 60*time.Second, log), nil
	}
	return p, nil
}

func newProvider(cfg model.AIConfig) (Provider, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = defaultTemperature
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch name {
	case ProviderOllama:
		c := cfg.Ollama
		if strings.TrimSpace(c.BaseURL) == "" {
			return nil, &ConfigError{Provider: name, Message: "ai.ollama.base_url is required"}
		}
		if strings.TrimSpace(c.ModelName) == "" {
			return nil, &ConfigError{Provider: name, Message: "ai.ollama.model_name is required"}
		}
		return NewOllama(c.BaseURL, c.ModelName), nil

	case ProviderOpenAI:
		c := cfg.OpenAI
		if strings.TrimSpace(c.APIKey) == "" {
			return nil, &ConfigError{Provider: name, Message: "ai.openai.api_key is required"}
		}
		return NewOpenAI(c.APIKey, c.Model, c.BaseURL, maxTokens, temperature), nil

	case ProviderAzureOpenAI:
		c := cfg.AzureOpenAI
		switch {
		case strings.TrimSpace(c.APIKey) == "":
			return nil, &ConfigError{Provider: name, Message: "ai.azure_openai.api_key is required"}
		case strings.TrimSpace(c.Endpoint) == "":
			return nil, &ConfigError{Provider: name, Message: "ai.azure_openai.endpoint is required"}
		case strings.TrimSpace(c.DeploymentName) == "":
			return nil, &ConfigError{Provider: name, Message: "ai.azure_openai.deployment_name is required"}
		}
		return NewAzureOpenAI(c.APIKey, c.Endpoint, c.DeploymentName, c.APIVersion, maxTokens, temperature), nil

	case ProviderAnthropic:
		c := cfg.Anthropic
		if strings.TrimSpace(c.APIKey) == "" {
			return nil, &ConfigError{Provider: name, Message: "ai.anthropic.api_key is required"}
		}
		return NewAnthropic(c.APIKey, c.Model, c.BaseURL, maxTokens), nil
	}

	return nil, &ConfigError{
		Message: fmt.Sprintf(
			"unsupported AI provider %q; supported providers: %s",
			cfg.Provider, strings.Join(Supported, ", "),
		),
	}
}

// snippet shortens an error body for inclusion in an error message.
func snippet(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
