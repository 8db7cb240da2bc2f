// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/xmlrpc"
)

// Load reads a configuration file. Files ending in .toml are parsed as
// TOML, anything else as YAML. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes data as TOML or YAML on top of DefaultConfig.
func Parse(data []byte, isTOML bool) (*Config, error) {
	cfg := DefaultConfig()
	if isTOML {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills derived defaults.
func (cfg *Config) Validate() error {
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an http or https URL, got %q", cfg.Endpoint)
		}
	}
	if cfg.Transport == "" {
		cfg.Transport = xmlrpc.DefaultTransport
	}
	if !xmlrpc.HasTransport(cfg.Transport) {
		return fmt.Errorf("transport %q not available (have %s)", cfg.Transport, strings.Join(xmlrpc.AvailableTransports(), ", "))
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cfg.MaxResponseBytes < 0 {
		return fmt.Errorf("max_response_bytes must not be negative")
	}
	if cfg.Streaming.Threshold < 0 {
		return fmt.Errorf("streaming.threshold must not be negative")
	}
	if cfg.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative")
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.Logging.FileMaxSizeMB < 0 {
		return fmt.Errorf("logging.file_max_size_mb must not be negative")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown", cfg.Logging.Level)
	}
	if cfg.Gateway.MetricsPath != "" && !strings.HasPrefix(cfg.Gateway.MetricsPath, "/") {
		return fmt.Errorf("gateway.metrics_path must start with /")
	}
	return nil
}

// Options maps the configuration to manager options.
func (cfg *Config) Options() []xmlrpc.Option {
	opts := []xmlrpc.Option{
		xmlrpc.WithTransport(cfg.Transport),
		xmlrpc.WithTimeout(cfg.Timeout),
		xmlrpc.WithTLSInsecure(cfg.TLSInsecure),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, xmlrpc.WithUserAgent(cfg.UserAgent))
	}
	if cfg.MaxResponseBytes > 0 {
		opts = append(opts, xmlrpc.WithMaxResponseBytes(cfg.MaxResponseBytes))
	}
	if cfg.Username != "" {
		opts = append(opts, xmlrpc.WithBasicAuth(cfg.Username, cfg.Password))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, xmlrpc.WithHeader(k, v))
	}
	if cfg.Streaming.TempDir != "" {
		opts = append(opts, xmlrpc.WithTempDir(cfg.Streaming.TempDir))
	}
	if cfg.Streaming.Threshold > 0 {
		opts = append(opts, xmlrpc.WithStreamThreshold(cfg.Streaming.Threshold))
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, xmlrpc.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	return opts
}
