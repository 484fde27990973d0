// Package config loads and saves the user configuration at
// ~/.shelldeck/config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/notify"
	"github.com/asheshgoplani/shelldeck/internal/session"
	"github.com/asheshgoplani/shelldeck/internal/tabs"
)

const (
	// HomeEnv overrides the state directory.
	HomeEnv = "SHELLDECK_HOME"

	FileName   = "config.toml"
	DBFileName = "state.db"
	LogDirName = "logs"
)

// Config is the on-disk user configuration.
type Config struct {
	// Theme is "dark", "light" or "system".
	Theme string `toml:"theme"`

	Shell         ShellSettings         `toml:"shell"`
	Terminal      TerminalSettings      `toml:"terminal"`
	Notifications NotificationsSettings `toml:"notifications"`
	Logs          LogSettings           `toml:"logs"`
	Web           WebSettings           `toml:"web"`
}

// ShellSettings controls how shells are launched.
type ShellSettings struct {
	// Command defaults to $SHELL, then bash.
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	// Env entries are KEY=VALUE pairs added to every shell.
	Env []string `toml:"env"`
	// ElevatedCommand wraps the shell for elevated tabs, e.g. ["sudo", "-i"].
	ElevatedCommand []string `toml:"elevated_command"`
}

// TerminalSettings holds geometry and title defaults.
type TerminalSettings struct {
	Cols int `toml:"cols"`
	Rows int `toml:"rows"`
	// TitlePrefix is stripped from shell titles. Default "Administrator: ".
	TitlePrefix *string `toml:"title_prefix"`
	// GenericTitles are extra shell names a meaningful title is kept over.
	GenericTitles []string `toml:"generic_titles"`
}

// NotificationsSettings configures background tab classification.
type NotificationsSettings struct {
	// Enabled defaults to true.
	Enabled              *bool    `toml:"enabled"`
	ConfirmationPatterns []string `toml:"confirmation_patterns"`
	AlertPatterns        []string `toml:"alert_patterns"`
	// OverrideDefaults drops the built-in patterns instead of appending.
	OverrideDefaults bool `toml:"override_defaults"`
}

// LogSettings configures the debug log.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   *bool  `toml:"compress"`
}

// WebSettings configures the websocket server.
type WebSettings struct {
	Listen   string `toml:"listen"`
	Token    string `toml:"token"`
	ReadOnly bool   `toml:"read_only"`
	Push     bool   `toml:"push"`
	// PushSubject is the VAPID subject, a mailto: or https: URL.
	PushSubject string `toml:"push_subject"`
}

const (
	DefaultListen      = "127.0.0.1:8420"
	DefaultPushSubject = "mailto:shelldeck@localhost"
)

var (
	cache   *Config
	cacheMu sync.RWMutex
)

// Dir returns the state directory, honoring SHELLDECK_HOME.
func Dir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".shelldeck"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// DBPath returns the workspace database path.
func DBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFileName), nil
}

// Load returns the cached config, reading it on first use. A missing file
// yields defaults. A parse error is returned alongside defaults so callers
// can show it and carry on.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		cache = &Config{}
		return cache, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cache = &Config{}
		return cache, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		cache = &Config{}
		return cache, fmt.Errorf("config.toml parse error: %w", err)
	}
	cache = &cfg
	return cache, nil
}

// Reload drops the cache and reads the file again.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the loaded config.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// Save writes cfg atomically: temp file, fsync, rename.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# shelldeck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// ThemeName returns the configured theme, defaulting to "dark".
func (c *Config) ThemeName() string {
	switch c.Theme {
	case "dark", "light", "system":
		return c.Theme
	default:
		return "dark"
	}
}

// ResolveTheme maps the configured theme to "dark" or "light", asking the
// OS when it is "system".
func (c *Config) ResolveTheme() string {
	theme := c.ThemeName()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil {
		return "dark"
	}
	if isDark {
		return "dark"
	}
	return "light"
}

// SessionConfig returns registry settings derived from [shell].
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Shell:           c.Shell.Command,
		Args:            c.Shell.Args,
		Env:             c.Shell.Env,
		ElevatedCommand: c.Shell.ElevatedCommand,
	}
}

// TitlePolicy returns the tab title policy derived from [terminal].
func (c *Config) TitlePolicy() tabs.TitlePolicy {
	prefix := tabs.DefaultElevationPrefix
	if c.Terminal.TitlePrefix != nil {
		prefix = *c.Terminal.TitlePrefix
	}
	return tabs.NewTitlePolicy(prefix, c.Terminal.GenericTitles)
}

// Geometry returns the default terminal size; zero means the host default.
func (c *Config) Geometry() (cols, rows int) {
	return max(c.Terminal.Cols, 0), max(c.Terminal.Rows, 0)
}

// NotificationsEnabled defaults to true.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications.Enabled == nil || *c.Notifications.Enabled
}

// Classifier builds the notification classifier from [notifications].
func (c *Config) Classifier() *notify.Classifier {
	if !c.NotificationsEnabled() {
		return notify.Disabled()
	}
	raw := notify.MergeRawPatterns(notify.DefaultRawPatterns(), &notify.RawPatterns{
		Confirmation: c.Notifications.ConfirmationPatterns,
		Alert:        c.Notifications.AlertPatterns,
	}, c.Notifications.OverrideDefaults)
	resolved, err := notify.CompilePatterns(raw)
	if err != nil {
		return notify.NewClassifier(nil)
	}
	return notify.NewClassifier(resolved)
}

// LogConfig returns logging settings with defaults applied.
func (c *Config) LogConfig(debug bool) (logging.Config, error) {
	dir, err := Dir()
	if err != nil {
		return logging.Config{}, err
	}
	s := c.Logs
	cfg := logging.Config{
		LogDir:                filepath.Join(dir, LogDirName),
		Level:                 s.Level,
		Format:                s.Format,
		MaxSizeMB:             s.MaxSizeMB,
		MaxBackups:            s.MaxBackups,
		MaxAgeDays:            s.MaxAgeDays,
		Compress:              s.Compress == nil || *s.Compress,
		RingBufferSize:        4 * 1024 * 1024,
		AggregateIntervalSecs: 30,
		Debug:                 debug,
	}
	if cfg.Level == "" {
		cfg.Level = "info"
		if debug {
			cfg.Level = "debug"
		}
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	return cfg, nil
}

// WebConfig returns [web] with defaults applied.
func (c *Config) WebConfig() WebSettings {
	w := c.Web
	if w.Listen == "" {
		w.Listen = DefaultListen
	}
	if w.PushSubject == "" {
		w.PushSubject = DefaultPushSubject
	}
	return w
}
