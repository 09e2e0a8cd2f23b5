// Package config loads the optional .rcpt.yaml file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".rcpt.yaml"

// Defaults.
const (
	DefaultOut       = "receipt.json"
	DefaultLogFormat = "text"
	historyFile      = "history.db"
)

// Config holds the parsed .rcpt.yaml configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version int           `yaml:"version"`
	RawOut  string        `yaml:"out"` // default receipt path
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// HistoryConfig controls the receipt history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: <user cache dir>/rcpt/history.db
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Out returns the configured receipt path or the default.
func (c *Config) Out() string {
	if c.RawOut != "" {
		return c.RawOut
	}
	return DefaultOut
}

// HistoryPath returns the configured history database path, falling
// back to the user cache directory and then the temp directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "rcpt", historyFile)
}

// LogLevel returns the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat returns "json" or "text".
func (c *Config) LogFormat() string {
	if strings.EqualFold(c.Log.Format, "json") {
		return "json"
	}
	return DefaultLogFormat
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config *Config
	Path   string // path of the config file; empty when defaults are used
}

// Load looks for .rcpt.yaml in dir and each of its parents. If none is
// found, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := findConfig(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &LoadResult{Config: &Config{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// findConfig walks upward from dir looking for FileName. It returns ""
// when the filesystem root is reached without a match.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
