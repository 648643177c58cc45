// Package config loads application configuration.
package config

import "time"

// Config holds the application configuration.
type Config struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	HistoryPath    string        `yaml:"history_path"`
	HistoryMax     int           `yaml:"history_max"`
	BridgeAddr     string        `yaml:"bridge_addr"`
	CORSOrigin     string        `yaml:"cors_origin"`
	Color          bool          `yaml:"color"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		HistoryPath:    "", // resolved to the data dir when empty
		HistoryMax:     100,
		BridgeAddr:     "127.0.0.1:7191",
		CORSOrigin:     "*",
		Color:          true,
	}
}
