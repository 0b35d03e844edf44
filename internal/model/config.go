package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultNotificationTriggers are subject substrings of home-automation
// alerts that skip classification and go straight to Notifications.
var DefaultNotificationTriggers = []string{
	"Animal Detected from Driveway Reolink",
	"Person Detected from Driveway Reolink",
	"Motion Detected from",
	"Reolink",
}

// EmailConfig holds the IMAP mailbox settings.
type EmailConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is either the literal password or a "keyring:<key>" reference.
	Password string `mapstructure:"password" yaml:"password"`

	// TLS selects implicit TLS; false uses STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// EmailCount caps how many messages are processed per cycle.
	EmailCount int `mapstructure:"email_count" yaml:"email_count"`

	// MaxBodyLength truncates the body excerpt sent to the model.
	MaxBodyLength int `mapstructure:"max_body_length" yaml:"max_body_length"`

	IncludeReadEmails    bool     `mapstructure:"include_read_emails" yaml:"include_read_emails"`
	NotificationTriggers []string `mapstructure:"notification_triggers" yaml:"notification_triggers"`
}

// OllamaConfig configures the local model server.
type OllamaConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	ModelName string `mapstructure:"model_name" yaml:"model_name"`
}

// OpenAIConfig configures the hosted OpenAI chat API.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// AzureOpenAIConfig configures an Azure OpenAI deployment.
type AzureOpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	DeploymentName string `mapstructure:"deployment_name" yaml:"deployment_name"`
	APIVersion     string `mapstructure:"api_version" yaml:"api_version"`
}

// AnthropicConfig configures the Anthropic Messages API.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// AIConfig selects and configures the completion provider.
type AIConfig struct {
	// Provider is one of "ollama", "openai", "azureopenai" or "anthropic".
	Provider string `mapstructure:"provider" yaml:"provider"`

	PromptRatings          string `mapstructure:"prompt_ratings" yaml:"prompt_ratings"`
	PromptTemplate         string `mapstructure:"prompt_template" yaml:"prompt_template"`
	CategoryPromptTemplate string `mapstructure:"category_prompt_template" yaml:"category_prompt_template"`

	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	RequestTimeoutSec int     `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`

	// BreakerFailures is the number of consecutive provider failures
	// that open the circuit breaker. Zero disables the breaker.
	BreakerFailures int `mapstructure:"breaker_failures" yaml:"breaker_failures"`

	Ollama      OllamaConfig      `mapstructure:"ollama" yaml:"ollama"`
	OpenAI      OpenAIConfig      `mapstructure:"openai" yaml:"openai"`
	AzureOpenAI AzureOpenAIConfig `mapstructure:"azure_openai" yaml:"azure_openai"`
	Anthropic   AnthropicConfig   `mapstructure:"anthropic" yaml:"anthropic"`
}

// CategoryConfig describes one category the model may assign.
type CategoryConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	FolderName  string `mapstructure:"folder_name" yaml:"folder_name"`
	Description string `mapstructure:"description" yaml:"description"`
}

// Folder returns the configured folder name, defaulting to the category name.
func (c CategoryConfig) Folder() string {
	if strings.TrimSpace(c.FolderName) != "" {
		return c.FolderName
	}
	return c.Name
}

// CategoriesConfig toggles category routing.
type CategoriesConfig struct {
	Enabled bool             `mapstructure:"enabled" yaml:"enabled"`
	Items   []CategoryConfig `mapstructure:"items" yaml:"items"`
}

// EnabledItems returns the enabled categories in configured order.
func (c CategoriesConfig) EnabledItems() []CategoryConfig {
	var out []CategoryConfig
	for _, item := range c.Items {
		if item.Enabled && strings.TrimSpace(item.Name) != "" {
			out = append(out, item)
		}
	}
	return out
}

// ServiceConfig holds scheduling and health probe settings.
type ServiceConfig struct {
	PollingIntervalMinutes int `mapstructure:"polling_interval_minutes" yaml:"polling_interval_minutes"`
	HealthCheckPort        int `mapstructure:"health_check_port" yaml:"health_check_port"`
	MaxRetryAttempts       int `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts"`
	RetryDelaySeconds      int `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	StartupDelaySeconds    int `mapstructure:"startup_delay_seconds" yaml:"startup_delay_seconds"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// JournalConfig points at the optional sqlite decision journal.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Email      EmailConfig      `mapstructure:"email" yaml:"email"`
	AI         AIConfig         `mapstructure:"ai" yaml:"ai"`
	Categories CategoriesConfig `mapstructure:"categories" yaml:"categories"`
	Service    ServiceConfig    `mapstructure:"service" yaml:"service"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailtriage/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailtriage", "config.yaml")
}

// DefaultJournalPath returns the suggested location of the decision journal.
func DefaultJournalPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "journal.db")
}

var defaults = map[string]any{
	"email.port":                       993,
	"email.tls":                        true,
	"email.email_count":                10,
	"email.max_body_length":            2000,
	"email.include_read_emails":        false,
	"email.notification_triggers":      DefaultNotificationTriggers,
	"ai.provider":                      "ollama",
	"ai.max_tokens":                    1000,
	"ai.temperature":                   0.1,
	"ai.request_timeout_sec":           120,
	"ai.breaker_failures":              5,
	"ai.ollama.base_url":               "http://localhost:11434",
	"ai.ollama.model_name":             "llama3",
	"ai.openai.model":                  "gpt-3.5-turbo",
	"ai.azure_openai.api_version":      "2024-02-15-preview",
	"ai.anthropic.model":               "claude-3-haiku-20240307",
	"categories.enabled":               false,
	"service.polling_interval_minutes": 5,
	"service.health_check_port":        8080,
	"service.max_retry_attempts":       3,
	"service.retry_delay_seconds":      30,
	"service.startup_delay_seconds":    5,
	"log.level":                        "info",
	"log.format":                       "console",
}

// envOnlyKeys have no default but must still be overridable from the
// environment; viper only consults AutomaticEnv for keys it knows about.
var envOnlyKeys = []string{
	"email.host",
	"email.username",
	"email.password",
	"ai.prompt_ratings",
	"ai.prompt_template",
	"ai.category_prompt_template",
	"ai.openai.api_key",
	"ai.openai.base_url",
	"ai.azure_openai.api_key",
	"ai.azure_openai.endpoint",
	"ai.azure_openai.deployment_name",
	"ai.anthropic.api_key",
	"ai.anthropic.base_url",
	"journal.path",
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MAILTRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and MAILTRIAGE_* environment
// variables still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Viper unmarshals missing bools as false; an entry without an explicit
	// enabled key is treated as enabled.
	for i := range cfg.Categories.Items {
		if !cfg.Categories.Items[i].Enabled && !categoryEnabledSet(v, i) {
			cfg.Categories.Items[i].Enabled = true
		}
	}

	return cfg, nil
}

func categoryEnabledSet(v *viper.Viper, i int) bool {
	items, ok := v.Get("categories.items").([]any)
	if !ok || i >= len(items) {
		return false
	}
	entry, ok := items[i].(map[string]any)
	if !ok {
		return false
	}
	_, set := entry["enabled"]
	return set
}

// Validate checks the settings every command needs before touching the
// mailbox. Provider settings are validated by the completion factory.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Email.Host) == "" {
		errs = append(errs, errors.New("email.host is required"))
	}
	if strings.TrimSpace(c.Email.Username) == "" {
		errs = append(errs, errors.New("email.username is required"))
	}
	if c.Email.Port <= 0 || c.Email.Port > 65535 {
		errs = append(errs, fmt.Errorf("email.port must be between 1 and 65535, got %d", c.Email.Port))
	}
	if c.Email.EmailCount <= 0 {
		errs = append(errs, fmt.Errorf("email.email_count must be positive, got %d", c.Email.EmailCount))
	}
	if c.Email.MaxBodyLength <= 0 {
		errs = append(errs, fmt.Errorf("email.max_body_length must be positive, got %d", c.Email.MaxBodyLength))
	}
	if c.Service.PollingIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("service.polling_interval_minutes must be positive, got %d", c.Service.PollingIntervalMinutes))
	}
	if c.Service.MaxRetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("service.max_retry_attempts must be positive, got %d", c.Service.MaxRetryAttempts))
	}
	if c.Service.RetryDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("service.retry_delay_seconds must not be negative, got %d", c.Service.RetryDelaySeconds))
	}
	if c.Categories.Enabled {
		seen := make(map[string]bool)
		for i, item := range c.Categories.Items {
			name := strings.ToLower(strings.TrimSpace(item.Name))
			if name == "" {
				errs = append(errs, fmt.Errorf("categories.items[%d].name is required", i))
				continue
			}
			if seen[name] {
				errs = append(errs, fmt.Errorf("categories.items[%d]: duplicate category %q", i, item.Name))
			}
			seen[name] = true
		}
	}
	return errors.Join(errs...)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("email", cfg.Email)
	v.Set("ai", cfg.AI)
	v.Set("categories", cfg.Categories)
	v.Set("service", cfg.Service)
	v.Set("log", cfg.Log)
	v.Set("journal", cfg.Journal)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// ResolveSecrets replaces the password and API keys with the result of
// resolve, which dereferences "keyring:<key>" values.
func (c *AppConfig) ResolveSecrets(resolve func(string) (string, error)) error {
	secrets := []struct {
		key string
		val *string
	}{
		{"email.password", &c.Email.Password},
		{"ai.openai.api_key", &c.AI.OpenAI.APIKey},
		{"ai.azure_openai.api_key", &c.AI.AzureOpenAI.APIKey},
		{"ai.anthropic.api_key", &c.AI.Anthropic.APIKey},
	}
	for _, s := range secrets {
		if *s.val == "" {
			continue
		}
		v, err := resolve(*s.val)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", s.key, err)
		}
		*s.val = v
	}
	return nil
}
