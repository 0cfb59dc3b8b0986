package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration paths, listener settings, and the
// target servers load can be generated against.
type Config struct {
	ConfigPath    string
	DataDir       string
	LogDir        string
	DBPath        string
	APIListen     string
	MetricsListen string
	AgeKeyPath    string
	GitWorkDir    string

	// TestMode skips the long settle waits between setup phases. Meant for
	// local targets and the test suite, never for measurement runs.
	TestMode bool

	Targets map[string]Target
}

// Target describes one learning-management server load can be pointed at.
type Target struct {
	URL string `yaml:"url"`

	// Production targets never expose a managed admin account and are
	// never cleaned up automatically.
	Production bool `yaml:"production"`

	// Local targets run an integrated CI; build queue status is only
	// available for them.
	Local bool `yaml:"local"`

	// CleanupEnabled allows runs to delete the courses and exams they
	// created once they finish.
	CleanupEnabled bool `yaml:"cleanup_enabled"`

	// UsernamePattern and PasswordPattern derive participant credentials
	// by index, e.g. "student{i}".
	UsernamePattern string `yaml:"username_pattern"`
	PasswordPattern string `yaml:"password_pattern"`

	// Managed admin credentials. Ignored for production targets.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// FileConfig represents supported YAML config overrides.
type FileConfig struct {
	DataDir       string            `yaml:"data_dir"`
	LogDir        string            `yaml:"log_dir"`
	DBPath        string            `yaml:"db_path"`
	APIListen     string            `yaml:"api_listen"`
	MetricsListen string            `yaml:"metrics_listen"`
	AgeKeyPath    string            `yaml:"age_key_path"`
	GitWorkDir    string            `yaml:"git_work_dir"`
	TestMode      bool              `yaml:"test_mode"`
	Targets       map[string]Target `yaml:"targets"`
}

func DefaultConfig() Config {
	dataDir := "/var/lib/examload"
	return Config{
		ConfigPath:    "/etc/examload/config.yaml",
		DataDir:       dataDir,
		LogDir:        "/var/log/examload",
		DBPath:        filepath.Join(dataDir, "examload.db"),
		APIListen:     "127.0.0.1:8080",
		MetricsListen: "",
		AgeKeyPath:    "/etc/examload/keys/age.key",
		GitWorkDir:    filepath.Join(dataDir, "repos"),
		Targets:       map[string]Target{},
	}
}

// Load reads the YAML config file and applies overrides to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		cfg.ConfigPath = path
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", cfg.ConfigPath, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", cfg.ConfigPath, err)
	}
	applyFileConfig(&cfg, fileCfg)
	if fileCfg.DataDir != "" && fileCfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "examload.db")
	}
	if fileCfg.DataDir != "" && fileCfg.GitWorkDir == "" {
		cfg.GitWorkDir = filepath.Join(cfg.DataDir, "repos")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg FileConfig) {
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	}
	if fileCfg.APIListen != "" {
		cfg.APIListen = fileCfg.APIListen
	}
	if fileCfg.MetricsListen != "" {
		cfg.MetricsListen = fileCfg.MetricsListen
	}
	if fileCfg.AgeKeyPath != "" {
		cfg.AgeKeyPath = fileCfg.AgeKeyPath
	}
	if fileCfg.GitWorkDir != "" {
		cfg.GitWorkDir = fileCfg.GitWorkDir
	}
	if fileCfg.TestMode {
		cfg.TestMode = true
	}
	if len(fileCfg.Targets) > 0 {
		cfg.Targets = fileCfg.Targets
	}
}

// TargetNames returns the configured target names in sorted order.
func (c Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs basic validation without exposing secrets.
func (c Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.APIListen == "" {
		return fmt.Errorf("api_listen is required")
	}
	if _, _, err := net.SplitHostPort(c.APIListen); err != nil {
		return fmt.Errorf("api_listen must be host:port: %w", err)
	}
	if strings.TrimSpace(c.MetricsListen) != "" {
		host, _, err := net.SplitHostPort(c.MetricsListen)
		if err != nil {
			return fmt.Errorf("metrics_listen must be host:port: %w", err)
		}
		if !isLoopbackHost(host) {
			return fmt.Errorf("metrics_listen must be localhost-only (got %q)", host)
		}
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for _, name := range c.TargetNames() {
		if err := c.Targets[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (t Target) validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("target name must not be empty")
	}
	parsed, err := url.Parse(t.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("target %s: url %q must be an absolute URL", name, t.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("target %s: url scheme must be http or https", name)
	}
	if t.UsernamePattern == "" || t.PasswordPattern == "" {
		return fmt.Errorf("target %s: username_pattern and password_pattern are required", name)
	}
	if !strings.Contains(t.UsernamePattern, "{i}") {
		return fmt.Errorf("target %s: username_pattern must contain {i}", name)
	}
	if !strings.Contains(t.PasswordPattern, "{i}") {
		return fmt.Errorf("target %s: password_pattern must contain {i}", name)
	}
	if t.Production && t.Local {
		return fmt.Errorf("target %s: production targets cannot be local", name)
	}
	if t.Production && t.CleanupEnabled {
		return fmt.Errorf("target %s: cleanup is not allowed on production targets", name)
	}
	if !t.Production && (t.AdminUsername == "" || t.AdminPassword == "") {
		return fmt.Errorf("target %s: admin_username and admin_password are required for non-production targets", name)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
