package completion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel     = "gpt-3.5-turbo"
	defaultAzureAPIVersion = "2024-02-15-preview"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint. It serves
// both api.openai.com and Azure OpenAI deployments.
type OpenAI struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI creates a client for the OpenAI API. baseURL may be empty.
func NewOpenAI(apiKey, modelName, baseURL string, maxTokens int, temperature float64) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}

	return &OpenAI{
		name:        ProviderOpenAI,
		client:      openai.NewClientWithConfig(cfg),
		model:       modelName,
		maxTokens:   maxTokens,
		temperature: requestTemperature(temperature),
	}
}

// NewAzureOpenAI creates a client for one Azure OpenAI deployment.
func NewAzureOpenAI(apiKey, endpoint, deployment, apiVersion string, maxTokens int, temperature float64) *OpenAI {
	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimRight(endpoint, "/"))
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}
	cfg.APIVersion = apiVersion
	cfg.AzureModelMapperFunc = func(string) string { return deployment }

	return &OpenAI{
		name:        ProviderAzureOpenAI,
		client:      openai.NewClientWithConfig(cfg),
		model:       deployment,
		maxTokens:   maxTokens,
		temperature: requestTemperature(temperature),
	}
}

func (o *OpenAI) Name() string { return o.name }

// Generate sends the prompt as a single user message.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", fmt.Errorf("%s chat completion: %w", o.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: response has no choices", o.name)
	}

	return resp.Choices[0].Message.Content, nil
}

// requestTemperature maps t onto the request field. go-openai omits a zero
// temperature, which the API reads as its default of 1.
func requestTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
