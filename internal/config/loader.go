package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from ~/.config/requill/config.yaml. Any
// failure falls back to defaults: a missing or broken config never
// stops the tool.
func Load() Config {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg
	}

	path := filepath.Join(home, ".config", "requill", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)
	return normalize(cfg)
}

// ResolveHistoryPath resolves the history database location, creating
// the data directory if needed.
func (c Config) ResolveHistoryPath() (string, error) {
	if c.HistoryPath != "" {
		return c.HistoryPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "share", "requill")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "requill.db"), nil
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = def.HistoryMax
	}
	if cfg.BridgeAddr == "" {
		cfg.BridgeAddr = def.BridgeAddr
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = def.CORSOrigin
	}
	return cfg
}
