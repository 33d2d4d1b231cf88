// Package config loads and saves the smartterm configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/smartterm/internal/connectors/localexec"
	"github.com/fentz26/smartterm/internal/handlers"
	"github.com/fentz26/smartterm/internal/logging"
	"github.com/fentz26/smartterm/internal/models"
	"github.com/fentz26/smartterm/internal/scheduler"
	"github.com/fentz26/smartterm/internal/smartcmd"
)

// Config holds smartterm configuration.
type Config struct {
	// Features toggles experimental features by id.
	Features map[string]bool `yaml:"features"`
	// Debounce controls the preview lookup delay.
	Debounce scheduler.Config `yaml:"debounce"`
	// Shortcut lists the keys that run a highlighted command, comma-separated.
	Shortcut string `yaml:"shortcut"`
	// DBPath is the SQLite database holding settings and history.
	DBPath string `yaml:"db_path"`
	// Project is the project root. Empty means the directory smartterm starts in.
	Project string `yaml:"project,omitempty"`
	// Shell runs ordinary commands. Empty means $SHELL.
	Shell string `yaml:"shell,omitempty"`
	// MaxLines bounds the scrollback.
	MaxLines int `yaml:"max_lines"`
	// HandlerTimeout bounds a single smart handler run.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	// Allowlist restricts which programs handlers may run.
	Allowlist map[string][]string `yaml:"allowlist"`
	// Handlers are the smart command rules, matched in order.
	Handlers []models.Handler `yaml:"handlers"`
	// Log configures logging.
	Log logging.Config `yaml:"log"`
}

// Dir returns ~/.smartterm.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartterm"
	}
	return filepath.Join(home, ".smartterm")
}

// DefaultPath returns ~/.smartterm/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	allow := make(map[string][]string, len(localexec.DefaultAllowlist))
	for cmd, subs := range localexec.DefaultAllowlist {
		allow[cmd] = append([]string(nil), subs...)
	}
	return &Config{
		Features: map[string]bool{
			smartcmd.FeatureID: true,
		},
		Debounce:       *scheduler.DefaultConfig(),
		Shortcut:       smartcmd.DefaultShortcut,
		DBPath:         filepath.Join(Dir(), "smartterm.db"),
		MaxLines:       5000,
		HandlerTimeout: 5 * time.Minute,
		Allowlist:      allow,
		Handlers:       handlers.DefaultHandlers(),
		Log: logging.Config{
			Level: "info",
			File:  filepath.Join(Dir(), "smartterm.log"),
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadFromHome loads configuration from ~/.smartterm/config.yaml.
func LoadFromHome() (*Config, error) {
	return Load(DefaultPath())
}

// Save saves configuration to a YAML file, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Debounce.QuietPeriod < 0 {
		return fmt.Errorf("debounce.quiet_period must not be negative")
	}
	if c.Debounce.Workers < 0 {
		return fmt.Errorf("debounce.workers must not be negative")
	}
	if c.Shortcut == "" {
		return fmt.Errorf("shortcut is required")
	}
	if c.MaxLines < 0 {
		return fmt.Errorf("max_lines must not be negative")
	}
	if c.HandlerTimeout < 0 {
		return fmt.Errorf("handler_timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := handlers.Validate(c.Handlers); err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	return nil
}

// FeatureEnabled reports whether feature id is switched on. Unknown features
// are off.
func (c *Config) FeatureEnabled(id string) bool {
	return c.Features[id]
}

// ProjectDir returns the configured project root or the current directory.
func (c *Config) ProjectDir() string {
	if c.Project != "" {
		return c.Project
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
