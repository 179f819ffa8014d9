package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// Bind is the interface the web server listens on.
	Bind string `json:"bind,omitempty"`

	// Port is the web server port.
	Port int `json:"port,omitempty"`

	// AppURL is the externally visible base URL, used for payment redirects.
	AppURL string `json:"app_url,omitempty"`

	// MinTranscriptChars is the shortest transcript accepted for analysis.
	MinTranscriptChars int `json:"min_transcript_chars,omitempty"`

	// SessionTTLHours is how long a sign-in stays valid.
	SessionTTLHours int `json:"session_ttl_hours,omitempty"`

	Extraction ExtractionConfig `json:"extraction"`
	Billing    BillingConfig    `json:"billing"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// ExtractionConfig configures the language-model topic extraction call.
type ExtractionConfig struct {
	// APIKey is never read from the config file; see ApplyEnv.
	APIKey string `json:"-"`

	Model     string   `json:"model,omitempty"`
	BaseURL   string   `json:"base_url,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
	// Temperature is a pointer so that an explicit 0 survives Merge.
	Temperature *float64 `json:"temperature,omitempty"`

	// TimeoutSeconds bounds the completion call. 0 leaves timing to the transport.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// BillingConfig holds Stripe settings. Keys are environment-only.
type BillingConfig struct {
	SecretKey     string `json:"-"`
	WebhookSecret string `json:"-"`

	ProPriceID      string `json:"pro_price_id,omitempty"`
	BusinessPriceID string `json:"business_price_id,omitempty"`
}

// Environment variable names read by ApplyEnv.
const (
	EnvDeepSeekAPIKey      = "DEEPSEEK_API_KEY"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvStripeProPrice      = "STRIPE_PRO_PRICE_ID"
	EnvStripeBusinessPrice = "STRIPE_BUSINESS_PRICE_ID"
	EnvAppURL              = "TOPICFLOW_APP_URL"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	temperature := 0.3
	return &Config{
		Bind:               "127.0.0.1",
		Port:               3000,
		AppURL:             "http://localhost:3000",
		MinTranscriptChars: 50,
		SessionTTLHours:    24 * 30,
		Extraction: ExtractionConfig{
			Model:       "deepseek-chat",
			BaseURL:     "https://api.deepseek.com/v1",
			MaxTokens:   2000,
			Temperature: &temperature,
		},
		Billing: BillingConfig{
			ProPriceID:      "price_pro_monthly",
			BusinessPriceID: "price_business_monthly",
		},
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.topicflow.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// ApplyEnv overlays secrets and deployment settings from the environment.
// getenv is injectable for tests; pass os.Getenv in production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDeepSeekAPIKey); v != "" {
		c.Extraction.APIKey = v
	}
	if v := getenv(EnvStripeSecretKey); v != "" {
		c.Billing.SecretKey = v
	}
	if v := getenv(EnvStripeWebhookSecret); v != "" {
		c.Billing.WebhookSecret = v
	}
	if v := getenv(EnvStripeProPrice); v != "" {
		c.Billing.ProPriceID = v
	}
	if v := getenv(EnvStripeBusinessPrice); v != "" {
		c.Billing.BusinessPriceID = v
	}
	if v := getenv(EnvAppURL); v != "" {
		c.AppURL = strings.TrimSuffix(v, "/")
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Bind:               firstString(overlay.Bind, base.Bind),
		Port:               firstInt(overlay.Port, base.Port),
		AppURL:             strings.TrimSuffix(firstString(overlay.AppURL, base.AppURL), "/"),
		MinTranscriptChars: firstInt(overlay.MinTranscriptChars, base.MinTranscriptChars),
		SessionTTLHours:    firstInt(overlay.SessionTTLHours, base.SessionTTLHours),
		DBMaxOpenConns:     firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:     firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	result.Extraction = ExtractionConfig{
		APIKey:         firstString(overlay.Extraction.APIKey, base.Extraction.APIKey),
		Model:          firstString(overlay.Extraction.Model, base.Extraction.Model),
		BaseURL:        firstString(overlay.Extraction.BaseURL, base.Extraction.BaseURL),
		MaxTokens:      firstInt(overlay.Extraction.MaxTokens, base.Extraction.MaxTokens),
		Temperature:    base.Extraction.Temperature,
		TimeoutSeconds: firstInt(overlay.Extraction.TimeoutSeconds, base.Extraction.TimeoutSeconds),
	}
	if overlay.Extraction.Temperature != nil {
		result.Extraction.Temperature = overlay.Extraction.Temperature
	}

	result.Billing = BillingConfig{
		SecretKey:       firstString(overlay.Billing.SecretKey, base.Billing.SecretKey),
		WebhookSecret:   firstString(overlay.Billing.WebhookSecret, base.Billing.WebhookSecret),
		ProPriceID:      firstString(overlay.Billing.ProPriceID, base.Billing.ProPriceID),
		BusinessPriceID: firstString(overlay.Billing.BusinessPriceID, base.Billing.BusinessPriceID),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
