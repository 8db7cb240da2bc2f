// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/luxfi/xmlrpc/gateway"
)

var (
	healthAddr    string
	healthService string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a gateway's gRPC health service",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "gRPC address (default gateway.grpc_address from config)")
	healthCmd.Flags().StringVar(&healthService, "service", gateway.HealthService, "Service name to check (empty for the whole server)")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr := healthAddr
	if addr == "" {
		addr = cfg.Gateway.GRPCAddress
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status, err := gateway.CheckHealth(ctx, addr, healthService)
	if err != nil {
		return fmt.Errorf("health check %s: %w", addr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, status)
	if status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("gateway at %s is %s", addr, status)
	}
	return nil
}
