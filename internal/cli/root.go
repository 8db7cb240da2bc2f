// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cli implements the xmlrpc command.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/xmlrpc/config"
	"github.com/luxfi/xmlrpc/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath   string
	endpointFlag string
	userFlag     string
	passwordFlag string
	transport    string
	timeoutFlag  time.Duration
	insecureTLS  bool
)

var rootCmd = &cobra.Command{
	Use:   "xmlrpc",
	Short: "XML-RPC client for WordPress sites",
	Long: `xmlrpc calls XML-RPC endpoints such as WordPress's xmlrpc.php.

Get started:
  xmlrpc call system.listMethods -e https://example.com/xmlrpc.php
  xmlrpc call wp.getPost 1 admin s:secret 42 -e https://example.com/xmlrpc.php
  xmlrpc serve       Run the JSON-RPC gateway
  xmlrpc history     Show journaled calls
  xmlrpc health      Check a gateway's gRPC health service
  xmlrpc gateway     Drive a running gateway`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	pf.StringVarP(&endpointFlag, "endpoint", "e", "", "XML-RPC endpoint URL")
	pf.StringVarP(&userFlag, "user", "u", "", "Username for HTTP basic auth")
	pf.StringVar(&passwordFlag, "password", "", "Password for HTTP basic auth")
	pf.StringVar(&transport, "transport", "", "HTTP transport (http, http2, h2c)")
	pf.DurationVar(&timeoutFlag, "timeout", 0, "Per-call timeout (default from config, 30s)")
	pf.BoolVar(&insecureTLS, "insecure", false, "Skip TLS certificate verification")
}

// SetVersion sets the version info.
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// loadConfig reads --config, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = endpointFlag
	}
	if flags.Changed("user") {
		cfg.Username = userFlag
	}
	if flags.Changed("password") {
		cfg.Password = passwordFlag
	}
	if flags.Changed("transport") {
		cfg.Transport = transport
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeoutFlag
	}
	if flags.Changed("insecure") {
		cfg.TLSInsecure = insecureTLS
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger from the config.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	l := logging.New("[xmlrpc]", cmd.ErrOrStderr())
	if err := l.Configure(cfg.Logging, cmd.ErrOrStderr()); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return l, nil
}
