// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads client and gateway settings from YAML or TOML.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Endpoint         string        `yaml:"endpoint" toml:"endpoint"`
	Username         string        `yaml:"username" toml:"username"`
	Password         string        `yaml:"password" toml:"password"`
	Transport        string        `yaml:"transport" toml:"transport"`
	Timeout          time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent        string        `yaml:"user_agent" toml:"userAgent"`
	TLSInsecure      bool          `yaml:"tls_insecure" toml:"tlsInsecure"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" toml:"maxResponseBytes"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers"`

	Streaming Streaming `yaml:"streaming" toml:"streaming"`
	RateLimit RateLimit `yaml:"rate_limit" toml:"rateLimit"`
	Journal   Journal   `yaml:"journal" toml:"journal"`
	Gateway   Gateway   `yaml:"gateway" toml:"gateway"`
	Logging   Logging   `yaml:"logging" toml:"logging"`
}

// Streaming configures when request bodies go through a temp file.
type Streaming struct {
	Threshold int64  `yaml:"threshold" toml:"threshold"`
	TempDir   string `yaml:"temp_dir" toml:"tempDir"`
}

// RateLimit throttles outgoing calls. Zero RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

// Journal configures the SQLite call journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path" toml:"path"`
}

// Gateway configures the JSON-RPC gateway.
type Gateway struct {
	Address     string `yaml:"address" toml:"address"`
	GRPCAddress string `yaml:"grpc_address" toml:"grpcAddress"`
	MetricsPath string `yaml:"metrics_path" toml:"metricsPath"`
}

// Logging configures the binaries' log output.
type Logging struct {
	Level         string `yaml:"level" toml:"level"`
	FilePath      string `yaml:"file_path" toml:"filePath"`
	FileMaxSizeMB int    `yaml:"file_max_size_mb" toml:"fileMaxSizeMB"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport:        "http",
		Timeout:          30 * time.Second,
		UserAgent:        "luxfi-xmlrpc/1.0",
		MaxResponseBytes: 64 << 20,
		Streaming: Streaming{
			Threshold: 1 << 20,
		},
		RateLimit: RateLimit{
			Burst: 1,
		},
		Gateway: Gateway{
			Address:     "127.0.0.1:9650",
			GRPCAddress: "127.0.0.1:9651",
			MetricsPath: "/metrics",
		},
		Logging: Logging{
			Level:         "info",
			FileMaxSizeMB: 10,
		},
	}
}
