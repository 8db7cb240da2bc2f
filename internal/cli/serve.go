// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/gateway"
	"github.com/luxfi/xmlrpc/journal"
)

var (
	listenAddr     string
	grpcListenAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC gateway",
	Long: `Run the JSON-RPC gateway in front of a connection manager.

The gateway serves XMLRPC.Spawn/Status/Cancel/List/Result at /rpc,
Prometheus metrics and /healthz on the HTTP listener, and the gRPC
health service on the gRPC listener. Finished calls are journaled when
journal.path is configured.

Example:
  xmlrpc serve -c xmlrpc.yaml
  xmlrpc serve -e https://example.com/xmlrpc.php --listen 127.0.0.1:9650`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config)")
	serveCmd.Flags().StringVar(&grpcListenAddr, "grpc-listen", "", "gRPC health listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Gateway.Address = listenAddr
	}
	if grpcListenAddr != "" {
		cfg.Gateway.GRPCAddress = grpcListenAddr
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := append(cfg.Options(),
		xmlrpc.WithLogger(logger),
		xmlrpc.WithMetrics(xmlrpc.NewMetrics(reg)),
	)

	var store *journal.Store
	if cfg.Journal.Path != "" {
		if store, err = openJournal(cmd, cfg.Journal.Path); err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, xmlrpc.WithObserver(journal.NewObserver(store, logger)))
	}

	m, err := xmlrpc.NewManager(opts...)
	if err != nil {
		return err
	}
	gw, err := gateway.NewServer(gateway.Config{
		Address:     cfg.Gateway.Address,
		GRPCAddress: cfg.Gateway.GRPCAddress,
		MetricsPath: cfg.Gateway.MetricsPath,
		Endpoint:    cfg.Endpoint,
	}, m, store, reg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(cmd.ErrOrStderr(), "gateway listening on %s (gRPC health %s)\n", cfg.Gateway.Address, cfg.Gateway.GRPCAddress)
	return gw.ListenAndServe(ctx)
}
