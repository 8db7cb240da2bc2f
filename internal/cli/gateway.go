// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/config"
	"github.com/luxfi/xmlrpc/gateway"
)

var gatewayAddr string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Drive a running gateway over JSON-RPC",
	Long: `Drive a gateway started with 'xmlrpc serve'.

Example:
  xmlrpc gateway spawn wp.getPost 1 admin s:secret 42
  xmlrpc gateway status 01HV...
  xmlrpc gateway result 01HV...`,
}

var gatewaySpawnCmd = &cobra.Command{
	Use:   "spawn METHOD [PARAM...]",
	Short: "Start a call on the gateway and print its identifier",
	Long:  "Start a call on the gateway and print its identifier.\n\n" + paramHelp,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := gatewayClient(cmd)
		if err != nil {
			return err
		}
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		plain := make([]any, len(params))
		for i, p := range params {
			if _, ok := p.(xmlrpc.File); ok {
				return errors.New("file parameters cannot be sent through the gateway")
			}
			plain[i] = p.(xmlrpc.Value).Interface()
		}
		id, err := client.Spawn(cmd.Context(), cfg.Endpoint, args[0], plain...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show a connection's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := gatewayClient(cmd)
		if err != nil {
			return err
		}
		reply, err := client.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), reply)
	},
}

var gatewayCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a live connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := gatewayClient(cmd)
		if err != nil {
			return err
		}
		ok, err := client.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("connection %s is not live", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
		return nil
	},
}

var gatewayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, _, err := gatewayClient(cmd)
		if err != nil {
			return err
		}
		conns, err := client.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), conns)
	},
}

var gatewayResultCmd = &cobra.Command{
	Use:   "result ID",
	Short: "Show a finished call's result from the journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := gatewayClient(cmd)
		if err != nil {
			return err
		}
		reply, err := client.Result(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), reply)
	},
}

func init() {
	gatewayCmd.PersistentFlags().StringVar(&gatewayAddr, "gateway", "", "Gateway address (default gateway.address from config)")
	gatewayCmd.AddCommand(gatewaySpawnCmd, gatewayStatusCmd, gatewayCancelCmd, gatewayListCmd, gatewayResultCmd)
	rootCmd.AddCommand(gatewayCmd)
}

func gatewayClient(cmd *cobra.Command) (*gateway.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	addr := gatewayAddr
	if addr == "" {
		addr = cfg.Gateway.Address
	}
	return gateway.NewClient(addr, nil), cfg, nil
}
