package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"jonglog-service/internal/config"
	"jonglog-service/internal/engine"
	appErr "jonglog-service/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "database:\n  driver: sqlite\n  dsn: \"file::memory:\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.TieBreak.TTLSeconds != 600 || !cfg.Feed.Enabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Rules.Equal(engine.DefaultRules()) {
		t.Fatalf("expected default rules, got %+v", cfg.Rules)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
}

func TestLoadRulesAndEnvOverride(t *testing.T) {
	t.Setenv("JONGLOG_SERVER_PORT", "9090")
	path := writeConfig(t, `
server:
  port: "8081"
rules:
  startScore: 30000
  returnScore: 30000
  uma: [20, 10, -10, -20]
  tieBreaker: split
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected env override, got %s", cfg.Server.Port)
	}
	want := engine.Rules{StartScore: 30000, ReturnScore: 30000, Uma: []int{20, 10, -10, -20}, TieBreaker: engine.TieBreakerSplit}
	if !cfg.Rules.Equal(want) {
		t.Fatalf("unexpected rules: %+v", cfg.Rules)
	}
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	_, err := config.Load(writeConfig(t, "rules:\n  uma: [30, -30]\n"))
	if !errors.Is(err, appErr.ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
