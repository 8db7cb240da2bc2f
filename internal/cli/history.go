// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/xmlrpc/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [ID]",
	Short: "Show journaled calls",
	Long: `Show calls recorded in the journal (journal.path in the config file).
With an ID, print that call's full entry including the response.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return errors.New("no journal configured: set journal.path in the config file")
	}
	store, err := openJournal(cmd, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		e, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, e)
		}
		fmt.Fprintf(out, "id:        %s\nmethod:    %s\nurl:       %s\nstate:     %s\nduration:  %v\n",
			e.ID, e.Method, e.URL, e.State, e.Duration())
		if e.IsFault() {
			fmt.Fprintf(out, "fault:     %d %s\n", e.FaultCode, e.FaultString)
		}
		if e.Error != "" {
			fmt.Fprintf(out, "error:     %s\n", e.Error)
		}
		if e.ResponseXML != "" {
			fmt.Fprintf(out, "response:\n%s\n", e.ResponseXML)
		}
		return nil
	}

	entries, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(out, entries)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tSTATE\tRESULT\tDURATION\tFINISHED")
	for _, e := range entries {
		result := "ok"
		switch {
		case e.IsFault():
			result = fmt.Sprintf("fault %d", e.FaultCode)
		case e.Error != "":
			result = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			e.ID, e.Method, e.State, result, e.Duration().Round(time.Millisecond), e.Finished.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func openJournal(cmd *cobra.Command, path string) (*journal.Store, error) {
	store, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := store.Init(cmd.Context()); err != nil {
		store.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return store, nil
}
