package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, env := range legacyEnv {
		t.Setenv(env, "")
	}
	t.Setenv("FIXIFOX_LLM_GATEWAY_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	clearKeys(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.GroqAPIKey != "gsk-test" {
		t.Errorf("GroqAPIKey = %q, want gsk-test", cfg.LLM.GroqAPIKey)
	}
	if cfg.Chain.TimeBudget != 90*time.Second || cfg.Chain.MaxRetries != 2 {
		t.Errorf("Chain = %+v", cfg.Chain)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Mongo.URI != "" || cfg.Redis.URL != "" {
		t.Errorf("storage should default to memory, got mongo %q redis %q", cfg.Mongo.URI, cfg.Redis.URL)
	}
	if len(cfg.LLM.CodeBackends) != 3 || cfg.LLM.CodeBackends[0] != "groq/qwen-2.5-coder-32b" {
		t.Errorf("CodeBackends = %v", cfg.LLM.CodeBackends)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "fixifox.yaml")
	yaml := `
server:
  port: 9090
log:
  format: text
llm:
  google_api_key: from-file
chain:
  time_budget: 45s
  max_retries: 1
mongo:
  uri: mongodb://file:27017
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("FIXIFOX_CHAIN_MAX_RETRIES", "3")
	t.Setenv("FIXIFOX_LLM_CODE_BACKENDS", "groq/a,gemini/b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"server.port", cfg.Server.Port, 9090},
		{"log.format", cfg.Log.Format, "text"},
		{"llm.google_api_key", cfg.LLM.GoogleAPIKey, "from-file"},
		{"chain.time_budget", cfg.Chain.TimeBudget, 45 * time.Second},
		{"chain.max_retries", cfg.Chain.MaxRetries, 3},
		{"mongo.uri", cfg.Mongo.URI, "mongodb://env:27017"},
		{"llm.code_backends", strings.Join(cfg.LLM.CodeBackends, " "), "groq/a gemini/b"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadRequiresBackend(t *testing.T) {
	clearKeys(t)
	if _, err := Load(""); err == nil {
		t.Error("Load() without keys error = nil, want error")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearKeys(t)
	t.Setenv("GROQ_API_KEY", "k")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load(missing file) error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Log:   LogConfig{Format: "json"},
			LLM:   LLMConfig{GroqAPIKey: "k", ExplainBackends: []string{"a/b"}, CodeBackends: []string{"a/b"}},
			Chain: ChainConfig{TimeBudget: time.Second},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"gateway only", func(c *Config) { c.LLM.GroqAPIKey = ""; c.LLM.Gateway.URL = "http://gw" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"negative retries", func(c *Config) { c.Chain.MaxRetries = -1 }, true},
		{"zero budget", func(c *Config) { c.Chain.TimeBudget = 0 }, true},
		{"no code backends", func(c *Config) { c.LLM.CodeBackends = nil }, true},
	}
	for _, tt := range tests {
		c := base()
		tt.mutate(&c)
		if err := c.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
