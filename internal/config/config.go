package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level ticketry configuration.
type Config struct {
	DataDir   string          `json:"data_dir"`
	Provider  ProviderConfig  `json:"provider"`
	Embedding EmbeddingConfig `json:"embedding"`
	Tracker   TrackerConfig   `json:"tracker"`
	Search    SearchConfig    `json:"search"`
	Sync      SyncConfig      `json:"sync"`
	Notify    NotifyConfig    `json:"notify"`
	API       APIConfig       `json:"api"`
}

// ProviderConfig holds text-generation provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// TrackerConfig holds issue-tracker credentials.
type TrackerConfig struct {
	BaseURL    string `json:"base_url"` // e.g. https://company.atlassian.net
	Email      string `json:"email"`
	APIToken   string `json:"api_token"`
	ProjectKey string `json:"project_key"`
}

// SearchConfig tunes similarity retrieval.
type SearchConfig struct {
	MaxResults         int     `json:"max_results"`
	Threshold          float64 `json:"threshold"`
	DuplicateThreshold float64 `json:"duplicate_threshold"`
}

// SyncConfig controls the background ticket sync job.
type SyncConfig struct {
	Interval  Duration `json:"interval"`
	OnStartup bool     `json:"on_startup"`
}

// NotifyConfig holds the best-effort notification sinks.
type NotifyConfig struct {
	WebhookURL   string `json:"webhook_url,omitempty"`
	WebhookToken string `json:"webhook_token,omitempty"`
	SlackToken   string `json:"slack_token,omitempty"`
	SlackChannel string `json:"slack_channel,omitempty"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Duration unmarshals from a JSON string like "24h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Load reads configuration from a JSON file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with TICKETRY_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir: getenv("TICKETRY_DATA_DIR", "/data"),
		Provider: ProviderConfig{
			Type:    getenv("TICKETRY_PROVIDER", "openai"),
			APIKey:  os.Getenv("TICKETRY_PROVIDER_API_KEY"),
			BaseURL: os.Getenv("TICKETRY_PROVIDER_BASE_URL"),
			Model:   getenv("TICKETRY_MODEL", "gpt-4o"),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getenv("TICKETRY_EMBEDDING_API_KEY", os.Getenv("TICKETRY_PROVIDER_API_KEY")),
			BaseURL: os.Getenv("TICKETRY_EMBEDDING_BASE_URL"),
			Model:   getenv("TICKETRY_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Tracker: TrackerConfig{
			BaseURL:    os.Getenv("TICKETRY_TRACKER_URL"),
			Email:      os.Getenv("TICKETRY_TRACKER_EMAIL"),
			APIToken:   os.Getenv("TICKETRY_TRACKER_TOKEN"),
			ProjectKey: os.Getenv("TICKETRY_TRACKER_PROJECT"),
		},
		Notify: NotifyConfig{
			WebhookURL:   os.Getenv("TICKETRY_NOTIFY_WEBHOOK_URL"),
			WebhookToken: os.Getenv("TICKETRY_NOTIFY_WEBHOOK_TOKEN"),
			SlackToken:   os.Getenv("TICKETRY_SLACK_TOKEN"),
			SlackChannel: os.Getenv("TICKETRY_SLACK_CHANNEL"),
		},
		API: APIConfig{
			Host: getenv("TICKETRY_API_HOST", "0.0.0.0"),
			Port: getenvInt("TICKETRY_API_PORT", 8080),
			Key:  os.Getenv("TICKETRY_API_KEY"),
		},
	}

	if v := os.Getenv("TICKETRY_SYNC_INTERVAL"); v != "" {
		iv, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: TICKETRY_SYNC_INTERVAL: %w", err)
		}
		cfg.Sync.Interval = Duration(iv)
	}
	cfg.Sync.OnStartup = getenv("TICKETRY_SYNC_ON_STARTUP", "true") == "true"

	if v := os.Getenv("TICKETRY_SEARCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: TICKETRY_SEARCH_THRESHOLD: %w", err)
		}
		cfg.Search.Threshold = f
	}
	cfg.Search.MaxResults = getenvInt("TICKETRY_SEARCH_MAX_RESULTS", 0)
	cfg.Embedding.Dimension = getenvInt("TICKETRY_EMBEDDING_DIMENSION", 0)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.Threshold == 0 {
		c.Search.Threshold = 0.5
	}
	if c.Search.DuplicateThreshold == 0 {
		c.Search.DuplicateThreshold = 0.9
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(24 * time.Hour)
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks for required fields, collecting every problem.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}
	if c.Provider.Model == "" {
		errs = append(errs, "provider.model is required")
	}
	switch c.Provider.Type {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not supported", c.Provider.Type))
	}
	if c.Embedding.APIKey == "" {
		errs = append(errs, "embedding.api_key is required")
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, "embedding.dimension must be positive")
	}
	if c.Tracker.BaseURL == "" {
		errs = append(errs, "tracker.base_url is required")
	}
	if c.Tracker.Email == "" {
		errs = append(errs, "tracker.email is required")
	}
	if c.Tracker.APIToken == "" {
		errs = append(errs, "tracker.api_token is required")
	}
	if c.Tracker.ProjectKey == "" {
		errs = append(errs, "tracker.project_key is required")
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		errs = append(errs, "search.threshold must be in [0,1]")
	}
	if c.Search.DuplicateThreshold < 0 || c.Search.DuplicateThreshold > 1 {
		errs = append(errs, "search.duplicate_threshold must be in [0,1]")
	}
	if c.Notify.SlackToken != "" && c.Notify.SlackChannel == "" {
		errs = append(errs, "notify.slack_channel is required when notify.slack_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
