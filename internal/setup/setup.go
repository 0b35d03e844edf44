// Package setup builds the interactive first-run form and turns its answers
// into a configuration file.
package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mail-triage/internal/completion"
	"github.com/nhle/mail-triage/internal/credential"
	"github.com/nhle/mail-triage/internal/model"
)

// Answers holds the values collected by the form.
type Answers struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool

	Provider string
	BaseURL  string
	Model    string
	APIKey   string

	AzureEndpoint   string
	AzureDeployment string

	Journal bool
}

// AnswersFrom pre-fills the form from an existing configuration. Secrets
// are never pre-filled.
func AnswersFrom(cfg *model.AppConfig) Answers {
	a := Answers{
		Host:     cfg.Email.Host,
		Port:     strconv.Itoa(cfg.Email.Port),
		Username: cfg.Email.Username,
		TLS:      cfg.Email.TLS,
		Provider: cfg.AI.Provider,
		Journal:  cfg.Journal.Path != "",
	}
	switch cfg.AI.Provider {
	case completion.ProviderOllama:
		a.BaseURL = cfg.AI.Ollama.BaseURL
		a.Model = cfg.AI.Ollama.ModelName
	case completion.ProviderOpenAI:
		a.BaseURL = cfg.AI.OpenAI.BaseURL
		a.Model = cfg.AI.OpenAI.Model
	case completion.ProviderAzureOpenAI:
		a.AzureEndpoint = cfg.AI.AzureOpenAI.Endpoint
		a.AzureDeployment = cfg.AI.AzureOpenAI.DeploymentName
	case completion.ProviderAnthropic:
		a.BaseURL = cfg.AI.Anthropic.BaseURL
		a.Model = cfg.AI.Anthropic.Model
	}
	return a
}

// NewForm returns the setup form bound to a.
func NewForm(a *Answers) *huh.Form {
	hiddenUnless := func(p string) func() bool {
		return func() bool { return a.Provider != p }
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&a.Host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&a.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Email account username").
				Placeholder("user@example.com").
				Value(&a.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring, not in the config file").
				EchoMode(huh.EchoModePassword).
				Value(&a.Password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; No uses STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&a.TLS),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("AI Provider").
				Options(
					huh.NewOption("Ollama - local model server", completion.ProviderOllama),
					huh.NewOption("OpenAI", completion.ProviderOpenAI),
					huh.NewOption("Azure OpenAI", completion.ProviderAzureOpenAI),
					huh.NewOption("Anthropic", completion.ProviderAnthropic),
				).
				Value(&a.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Ollama URL").
				Placeholder("http://localhost:11434").
				Value(&a.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Placeholder("llama3").
				Value(&a.Model).
				Validate(validateRequired("Model")),
		).WithHideFunc(hiddenUnless(completion.ProviderOllama)),
		huh.NewGroup(
			huh.NewInput().
				Title("API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey).
				Validate(validateRequired("API Key")),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the provider default").
				Value(&a.Model),
		).WithHideFunc(func() bool {
			return a.Provider != completion.ProviderOpenAI && a.Provider != completion.ProviderAnthropic
		}),
		huh.NewGroup(
			huh.NewInput().
				Title("Endpoint").
				Placeholder("https://my-resource.openai.azure.com").
				Value(&a.AzureEndpoint).
				Validate(validateURL),
			huh.NewInput().
				Title("Deployment").
				Value(&a.AzureDeployment).
				Validate(validateRequired("Deployment")),
			huh.NewInput().
				Title("API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey).
				Validate(validateRequired("API Key")),
		).WithHideFunc(hiddenUnless(completion.ProviderAzureOpenAI)),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Keep a decision journal").
				Description("Record every routing decision in a local sqlite file").
				Affirmative("Yes").
				Negative("No").
				Value(&a.Journal),
		),
	)
}

// Apply merges a into a copy of base. Secrets are handed to setSecret and
// replaced with keyring references.
func Apply(a Answers, base *model.AppConfig, setSecret func(key, value string) error) (*model.AppConfig, error) {
	cfg := *base

	port, err := strconv.Atoi(strings.TrimSpace(a.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", a.Port, err)
	}

	cfg.Email.Host = strings.TrimSpace(a.Host)
	cfg.Email.Port = port
	cfg.Email.Username = strings.TrimSpace(a.Username)
	cfg.Email.TLS = a.TLS

	if a.Password != "" {
		key := "email-" + cfg.Email.Username
		if err := setSecret(key, a.Password); err != nil {
			return nil, fmt.Errorf("saving password: %w", err)
		}
		cfg.Email.Password = credential.Ref(key)
	}

	apiKeyRef := func() (string, error) {
		key := "ai-" + a.Provider
		if err := setSecret(key, a.APIKey); err != nil {
			return "", fmt.Errorf("saving API key: %w", err)
		}
		return credential.Ref(key), nil
	}

	cfg.AI.Provider = a.Provider
	switch a.Provider {
	case completion.ProviderOllama:
		cfg.AI.Ollama.BaseURL = a.BaseURL
		cfg.AI.Ollama.ModelName = a.Model
	case completion.ProviderOpenAI:
		ref, err := apiKeyRef()
		if err != nil {
			return nil, err
		}
		cfg.AI.OpenAI.APIKey = ref
		if a.Model != "" {
			cfg.AI.OpenAI.Model = a.Model
		}
	case completion.ProviderAnthropic:
		ref, err := apiKeyRef()
		if err != nil {
			return nil, err
		}
		cfg.AI.Anthropic.APIKey = ref
		if a.Model != "" {
			cfg.AI.Anthropic.Model = a.Model
		}
	case completion.ProviderAzureOpenAI:
		ref, err := apiKeyRef()
		if err != nil {
			return nil, err
		}
		cfg.AI.AzureOpenAI.APIKey = ref
		cfg.AI.AzureOpenAI.Endpoint = a.AzureEndpoint
		cfg.AI.AzureOpenAI.DeploymentName = a.AzureDeployment
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", a.Provider)
	}

	cfg.Journal.Path = ""
	if a.Journal {
		cfg.Journal.Path = model.DefaultJournalPath()
	}

	return &cfg, nil
}

// StaleSecrets returns the keyring keys referenced by old that next no
// longer points at, such as the password entry of a previous username.
func StaleSecrets(old, next *model.AppConfig) []string {
	inUse := make(map[string]bool)
	for _, v := range secretRefs(next) {
		inUse[v] = true
	}

	var stale []string
	for _, v := range secretRefs(old) {
		if !inUse[v] {
			stale = append(stale, strings.TrimPrefix(v, credential.RefPrefix))
			inUse[v] = true
		}
	}
	return stale
}

func secretRefs(cfg *model.AppConfig) []string {
	var refs []string
	for _, v := range []string{
		cfg.Email.Password,
		cfg.AI.OpenAI.APIKey,
		cfg.AI.AzureOpenAI.APIKey,
		cfg.AI.Anthropic.APIKey,
	} {
		if credential.IsRef(v) {
			refs = append(refs, v)
		}
	}
	return refs
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
