// Package config holds the monitor configuration, loaded from and saved
// to a JSON file under the user's home directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhanBoss/claude-pulse/internal/stats"
)

// Retention mirrors the scheduler parameters supplied by the UI boundary
// so they survive restarts.
type Retention struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"intervalMs"`
	RetainMs   int64 `json:"retainMs"`
}

// Config is the full monitor configuration.
type Config struct {
	HistoryPath       string        `json:"history_path"`
	ProjectsDir       string        `json:"projects_dir"`
	DataDir           string        `json:"data_dir"`
	IndexPath         string        `json:"index_path"`
	ListenAddr        string        `json:"listen_addr"`
	MetadataRecordCap int           `json:"metadata_record_cap"`
	Retention         Retention     `json:"retention"`
	Pricing           stats.Pricing `json:"pricing"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		HistoryPath:       filepath.Join(home, ".claude", "history.jsonl"),
		ProjectsDir:       filepath.Join(home, ".claude", "projects"),
		DataDir:           filepath.Join(home, ".claude-pulse", "logs"),
		IndexPath:         filepath.Join(home, ".claude-pulse", "index.db"),
		ListenAddr:        "127.0.0.1:43917",
		MetadataRecordCap: 1000,
		Retention: Retention{
			Enabled:    false,
			IntervalMs: 24 * 60 * 60 * 1000,
			RetainMs:   30 * 24 * 60 * 60 * 1000,
		},
		Pricing: stats.DefaultPricing(),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".claude-pulse", "config.json"), nil
}

// Load reads the config at path, filling unset fields from defaults. A
// missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MetadataRecordCap <= 0 {
		cfg.MetadataRecordCap = Default().MetadataRecordCap
	}
	return cfg, nil
}

// Save writes the config atomically (temp file + rename).
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
