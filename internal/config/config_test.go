package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: onboarding
external_api:
  identity:
    base_url: http://identity.local
    token: secret
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Progress.PollInterval != 2*time.Second {
		t.Fatalf("poll interval default = %v, want 2s", cfg.Progress.PollInterval)
	}
	if cfg.ExternalAPI.Provisioning.BaseURL != "http://identity.local" {
		t.Fatalf("provisioning base url should default to identity base url, got %q", cfg.ExternalAPI.Provisioning.BaseURL)
	}
	if cfg.ExternalAPI.Provisioning.Token != "secret" {
		t.Fatalf("provisioning token should default to identity token")
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port default = %d", cfg.Server.Port)
	}
	if cfg.HistoryEnabled() || cfg.RedisEnabled() || cfg.ArchiveEnabled() {
		t.Fatalf("optional backends should be disabled without hosts")
	}
}

func TestLoadFile_RejectsMissingIdentityURL(t *testing.T) {
	path := writeConfig(t, "app:\n  name: onboarding\n")
	_, err := LoadFile(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "BaseURL") {
		t.Fatalf("error should name the field, got %v", err)
	}
}

func TestLoadFile_RejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
external_api:
  identity:
    base_url: http://identity.local
logging:
  level: verbose
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error for log level")
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: 3306, User: "u", Password: "p", Name: "onboarding",
		Charset: "utf8mb4", ParseTime: true, Loc: "UTC",
	}}
	want := "u:p@tcp(db:3306)/onboarding?charset=utf8mb4&parseTime=true&loc=UTC"
	if got := cfg.DatabaseDSN(); got != want {
		t.Fatalf("DatabaseDSN() = %q, want %q", got, want)
	}
}
