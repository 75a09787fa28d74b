package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
	"data_dir": "/tmp/ticketry",
	"provider": {"type": "openai", "api_key": "sk-test", "model": "gpt-4o"},
	"embedding": {"api_key": "sk-test", "dimension": 1536},
	"tracker": {
		"base_url": "https://example.atlassian.net",
		"email": "bot@example.com",
		"api_token": "tok",
		"project_key": "SCRUM"
	},
	"sync": {"interval": "1h", "on_startup": true}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validJSON))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if time.Duration(cfg.Sync.Interval) != time.Hour {
		t.Errorf("interval = %v", time.Duration(cfg.Sync.Interval))
	}
	// Defaults fill in what the file omits.
	if cfg.Search.MaxResults != 5 || cfg.Search.Threshold != 0.5 || cfg.Search.DuplicateThreshold != 0.9 {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("port = %d", cfg.API.Port)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", cfg.Embedding.Model)
	}
}

func TestLoadCollectsAllErrors(t *testing.T) {
	_, err := Load(writeConfig(t, `{"provider": {"type": "mystery"}}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"data_dir is required",
		"provider.api_key is required",
		`provider.type "mystery" is not supported`,
		"tracker.base_url is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestLoadBadDuration(t *testing.T) {
	bad := strings.Replace(validJSON, `"1h"`, `"soon"`, 1)
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TICKETRY_DATA_DIR", "/tmp/ticketry")
	t.Setenv("TICKETRY_PROVIDER_API_KEY", "sk-env")
	t.Setenv("TICKETRY_TRACKER_URL", "https://example.atlassian.net")
	t.Setenv("TICKETRY_TRACKER_EMAIL", "bot@example.com")
	t.Setenv("TICKETRY_TRACKER_TOKEN", "tok")
	t.Setenv("TICKETRY_TRACKER_PROJECT", "SCRUM")
	t.Setenv("TICKETRY_SYNC_INTERVAL", "30m")
	t.Setenv("TICKETRY_SEARCH_THRESHOLD", "0.6")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	// Embedding key falls back to the provider key.
	if cfg.Embedding.APIKey != "sk-env" {
		t.Errorf("embedding key = %q", cfg.Embedding.APIKey)
	}
	if time.Duration(cfg.Sync.Interval) != 30*time.Minute {
		t.Errorf("interval = %v", time.Duration(cfg.Sync.Interval))
	}
	if cfg.Search.Threshold != 0.6 {
		t.Errorf("threshold = %v", cfg.Search.Threshold)
	}
	if cfg.Embedding.Dimension != 1536 {
		t.Errorf("dimension = %d", cfg.Embedding.Dimension)
	}
}

func TestValidateThresholdRange(t *testing.T) {
	bad := strings.Replace(validJSON, `"sync"`, `"search": {"threshold": 1.5}, "sync"`, 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "search.threshold") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateSlackNeedsChannel(t *testing.T) {
	bad := strings.Replace(validJSON, `"sync"`, `"notify": {"slack_token": "xoxb-1"}, "sync"`, 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "slack_channel") {
		t.Fatalf("err = %v", err)
	}
}
