package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("NERO_LOG_LEVEL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	want.LogLevel = cfg.LogLevel
	if diff := cmp.Diff(want.Companion, cfg.Companion); diff != "" {
		t.Errorf("companion defaults (-want +got):\n%s", diff)
	}
	if !cfg.Features.Patterns || !cfg.Features.Nudges {
		t.Errorf("features should default on: %+v", cfg.Features)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.DB.Driver)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nero.yaml")
	yml := `data_dir: ` + dir + `
db:
  driver: mysql
  dsn: "user:pw@tcp(localhost:3306)/nero"
companion:
  context_window: 12
  check_in_min: 5m
features:
  insights: false
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NERO_COMPANION_CONTEXT_WINDOW", "30")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != "mysql" {
		t.Errorf("driver = %q", cfg.DB.Driver)
	}
	if cfg.Companion.ContextWindow != 30 {
		t.Errorf("context window = %d, want env override 30", cfg.Companion.ContextWindow)
	}
	if cfg.Companion.CheckInMin != 5*time.Minute {
		t.Errorf("check_in_min = %v", cfg.Companion.CheckInMin)
	}
	if cfg.Features.Insights {
		t.Error("insights should be disabled by the file")
	}
	if cfg.LLM.GeminiAPIKey != "g-key" {
		t.Errorf("gemini key = %q, want GEMINI_API_KEY value", cfg.LLM.GeminiAPIKey)
	}

	nc := cfg.Nero()
	if nc.DBPath != "user:pw@tcp(localhost:3306)/nero" {
		t.Errorf("DBPath = %q", nc.DBPath)
	}
	if !nc.Features.DisableInsights || nc.Features.DisablePatterns {
		t.Errorf("features = %+v", nc.Features)
	}
	if nc.LocalPath != filepath.Join(dir, "local.json") {
		t.Errorf("LocalPath = %q", nc.LocalPath)
	}
}

func TestSaveOmitsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "nero.yaml")
	cfg := DefaultConfig()
	cfg.LLM.OpenAIAPIKey = "secret"
	cfg.LLM.Provider = "openai"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); strings.Contains(got, "secret") {
		t.Errorf("saved config leaks key:\n%s", got)
	}
	if cfg.LLM.OpenAIAPIKey != "secret" {
		t.Error("Save mutated its argument")
	}

	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.LLM.Provider != "openai" {
		t.Errorf("provider = %q", back.LLM.Provider)
	}
}

func TestNeroSQLiteDefaultPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/nero-test"
	if got := cfg.Nero().DBPath; got != filepath.Join("/tmp/nero-test", "nero.db") {
		t.Errorf("DBPath = %q", got)
	}
}
