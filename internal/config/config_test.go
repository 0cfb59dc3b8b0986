package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validTarget() Target {
	return Target{
		URL:             "https://lms.example.com",
		UsernamePattern: "student{i}",
		PasswordPattern: "pw{i}",
		AdminUsername:   "admin",
		AdminPassword:   "secret",
	}
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Targets = map[string]Target{"staging": validTarget()}
	return cfg
}

func TestValidateAcceptsDefaultWithTarget(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRequiresTargets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "target") {
		t.Fatalf("expected target error, got %v", err)
	}
}

func TestValidateRejectsBadTargetURL(t *testing.T) {
	cfg := validConfig()
	target := cfg.Targets["staging"]
	target.URL = "not-a-url"
	cfg.Targets["staging"] = target
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "url") {
		t.Fatalf("expected url error, got %v", err)
	}
}

func TestValidateRequiresPlaceholderInPatterns(t *testing.T) {
	cfg := validConfig()
	target := cfg.Targets["staging"]
	target.UsernamePattern = "student"
	cfg.Targets["staging"] = target
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "{i}") {
		t.Fatalf("expected placeholder error, got %v", err)
	}
}

func TestValidateRejectsProductionCleanup(t *testing.T) {
	cfg := validConfig()
	target := cfg.Targets["staging"]
	target.Production = true
	target.CleanupEnabled = true
	cfg.Targets["staging"] = target
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "cleanup") {
		t.Fatalf("expected cleanup error, got %v", err)
	}
}

func TestValidateRequiresAdminForNonProduction(t *testing.T) {
	cfg := validConfig()
	target := cfg.Targets["staging"]
	target.AdminUsername = ""
	cfg.Targets["staging"] = target
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "admin_username") {
		t.Fatalf("expected admin error, got %v", err)
	}
}

func TestValidateMetricsListenLoopbackOnly(t *testing.T) {
	cfg := validConfig()
	cfg.MetricsListen = "0.0.0.0:9090"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "localhost") {
		t.Fatalf("expected loopback error, got %v", err)
	}
	cfg.MetricsListen = "127.0.0.1:9090"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLoadAppliesOverridesAndDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: /srv/examload
test_mode: true
targets:
  local:
    url: http://localhost:8080
    local: true
    cleanup_enabled: true
    username_pattern: "student{i}"
    password_pattern: "pw{i}"
    admin_username: admin
    admin_password: secret
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/examload" {
		t.Fatalf("data_dir override not applied: %q", cfg.DataDir)
	}
	if cfg.DBPath != "/srv/examload/examload.db" {
		t.Fatalf("db_path not derived from data_dir: %q", cfg.DBPath)
	}
	if cfg.GitWorkDir != "/srv/examload/repos" {
		t.Fatalf("git_work_dir not derived from data_dir: %q", cfg.GitWorkDir)
	}
	if !cfg.TestMode {
		t.Fatal("test_mode not applied")
	}
	target, ok := cfg.Targets["local"]
	if !ok || !target.Local || !target.CleanupEnabled {
		t.Fatalf("target not loaded: %+v", cfg.Targets)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
