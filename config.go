package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath     *string
	SystemPromptPath *string
	UserPromptPath   *string
	TemplatePath     *string
	OutputDirectory  *string
}

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/report-system-prompt.md
var defaultSystemPrompt string

//go:embed config/report-user-prompt.md
var defaultUserPrompt string

//go:embed config/report.html.tmpl
var defaultReportTemplate string

// NewsSource is one configured feed
type NewsSource struct {
	Name     string   `yaml:"name" validate:"required"`
	URL      string   `yaml:"url" validate:"required,url"`
	Category Category `yaml:"category" validate:"required,oneof=global_markets macro central_banks commodities tech china asia crypto"`
}

// Ticker maps a display name to an exchange symbol
type Ticker struct {
	Name   string `yaml:"name" validate:"required"`
	Symbol string `yaml:"symbol" validate:"required"`
}

// TickerGroups holds the three ordered quote groups
type TickerGroups struct {
	Indices     []Ticker `yaml:"indices" validate:"dive"`
	Commodities []Ticker `yaml:"commodities" validate:"dive"`
	Forex       []Ticker `yaml:"forex" validate:"dive"`
}

// IndicatorSeries describes where a macro indicator table lives and how to read it
type IndicatorSeries struct {
	Key        string            `yaml:"key" validate:"required"`
	Name       string            `yaml:"name" validate:"required"`
	URL        string            `yaml:"url" validate:"required,url"`
	Headers    map[string]string `yaml:"headers"`
	Rows       string            `yaml:"rows"`
	DateField  string            `yaml:"date" validate:"required"`
	ValueField string            `yaml:"value" validate:"required"`
	PrevField  string            `yaml:"prev"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Report struct {
		Title          string `yaml:"title" validate:"required"`
		FilePrefix     string `yaml:"file_prefix" validate:"required"`
		DataSources    string `yaml:"data_sources"`
		WebhookSources string `yaml:"webhook_sources"`
		Disclaimer     string `yaml:"disclaimer"`
	} `yaml:"report"`
	OutputDirectory string `yaml:"output_directory" validate:"required"`
	Fetch           struct {
		Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
		MaxItemsPerSource int           `yaml:"max_items_per_source" validate:"gt=0"`
		HistoryDays       int           `yaml:"history_days" validate:"gt=0"`
		UserAgent         string        `yaml:"user_agent"`
	} `yaml:"fetch"`
	Feeds      []NewsSource      `yaml:"feeds" validate:"dive"`
	Tickers    TickerGroups      `yaml:"tickers"`
	Indicators []IndicatorSeries `yaml:"indicators" validate:"max=4,dive"`
	LLM        struct {
		Provider       string  `yaml:"provider" validate:"oneof=openai anthropic"`
		AnthropicModel string  `yaml:"anthropic_model"`
		MaxTokens      int     `yaml:"max_tokens" validate:"gt=0"`
		Temperature    float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	} `yaml:"llm"`
	Webhook struct {
		Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
		MaxLength  int           `yaml:"max_length" validate:"min=200"`
		TruncateAt int           `yaml:"truncate_at" validate:"gt=0,ltefield=MaxLength"`
	} `yaml:"webhook"`
	Mail struct {
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"mail"`
	PDF struct {
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"pdf"`
	Schedule string `yaml:"schedule"`
}

// Env carries credentials and endpoints taken from the environment
type Env struct {
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL" default:"https://api.siliconflow.cn/v1"`
	OpenAIModel       string `envconfig:"OPENAI_MODEL" default:"Qwen/Qwen2.5-72B-Instruct"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey   string `envconfig:"ANTHROPIC_API_KEY"`
	SendGridAPIKey    string `envconfig:"SENDGRID_API_KEY"`
	SendGridHost      string `envconfig:"SENDGRID_HOST" default:"https://api.sendgrid.com"`
	GmailUser         string `envconfig:"GMAIL_USER"`
	GmailAppPassword  string `envconfig:"GMAIL_APP_PASSWORD"`
	SMTPHost          string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort          int    `envconfig:"SMTP_PORT" default:"587"`
	EmailFromName     string `envconfig:"EMAIL_FROM_NAME"`
	EmailFromAddr     string `envconfig:"EMAIL_FROM_ADDR"`
	EmailRecipients   string `envconfig:"EMAIL_RECIPIENTS"`
	WebhookURL        string `envconfig:"WECHAT_WEBHOOK_URL"`
	WebhookURL2       string `envconfig:"WECHAT_WEBHOOK_URL2"`
	GitHubRepository  string `envconfig:"GITHUB_REPOSITORY"`
	GitHubPagesDomain string `envconfig:"GITHUB_PAGES_DOMAIN"`
	ChromePath        string `envconfig:"CHROME_PATH"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
}

// Recipients splits EMAIL_RECIPIENTS on ';' and drops blanks
func (e *Env) Recipients() []string {
	var out []string
	for _, r := range strings.Split(e.EmailRecipients, ";") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// FromAddress falls back to the SMTP user when no explicit sender is set
func (e *Env) FromAddress() string {
	if e.EmailFromAddr != "" {
		return e.EmailFromAddr
	}
	return e.GmailUser
}

// WebhookURLs returns every configured webhook endpoint in order
func (e *Env) WebhookURLs() []string {
	var urls []string
	for _, u := range []string{e.WebhookURL, e.WebhookURL2} {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// PublicURL builds the GitHub Pages address of a published file, or "" when
// neither a pages domain nor an owner/repo pair is configured.
func (e *Env) PublicURL(filename string) string {
	if e.GitHubPagesDomain != "" {
		return fmt.Sprintf("https://%s/%s", e.GitHubPagesDomain, filename)
	}
	if e.GitHubRepository != "" {
		parts := strings.Split(e.GitHubRepository, "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return fmt.Sprintf("https://%s.github.io/%s/%s", parts[0], parts[1], filename)
		}
	}
	return ""
}

// Config holds settings, environment and overrides
type Config struct {
	Settings  *Settings
	Env       *Env
	Overrides *ConfigOverrides
}

// NewConfig creates a new Config with settings, environment and overrides
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	var settingsPath string
	if overrides != nil && overrides.SettingsPath != nil {
		settingsPath = *overrides.SettingsPath
	}

	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if overrides != nil && overrides.OutputDirectory != nil {
		settings.OutputDirectory = *overrides.OutputDirectory
	}

	env, err := LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return &Config{
		Settings:  settings,
		Env:       env,
		Overrides: overrides,
	}, nil
}

// LoadSettings parses the settings file at path, or the embedded defaults when
// path is empty. An explicit path must exist.
func LoadSettings(path string) (*Settings, error) {
	data := []byte(defaultSettings)
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading settings file %s: %w", path, err)
		}
		data = content
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	if err := validator.New().Struct(&settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid settings: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &settings, nil
}

// LoadEnv reads an optional .env file and processes the environment
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}
	return &env, nil
}

// GetSystemPrompt returns the report system prompt (from override file or embedded)
func (c *Config) GetSystemPrompt() string {
	return readOverride(c.Overrides, func(o *ConfigOverrides) *string { return o.SystemPromptPath }, defaultSystemPrompt)
}

// GetUserPrompt returns the report user prompt template (from override file or embedded)
func (c *Config) GetUserPrompt() string {
	return readOverride(c.Overrides, func(o *ConfigOverrides) *string { return o.UserPromptPath }, defaultUserPrompt)
}

// GetTemplate returns the HTML document template (from override file or embedded)
func (c *Config) GetTemplate() string {
	return readOverride(c.Overrides, func(o *ConfigOverrides) *string { return o.TemplatePath }, defaultReportTemplate)
}

func readOverride(o *ConfigOverrides, pick func(*ConfigOverrides) *string, fallback string) string {
	if o != nil {
		if p := pick(o); p != nil {
			if content, err := os.ReadFile(*p); err == nil {
				return string(content)
			}
		}
	}
	return fallback
}
