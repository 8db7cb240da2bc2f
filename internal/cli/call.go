// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/journal"
)

var (
	retries      int
	repeat       int
	askPassword  bool
	jsonOutput   bool
	streamUpload bool
)

const retryBaseWait = 200 * time.Millisecond

var callCmd = &cobra.Command{
	Use:   "call METHOD [PARAM...]",
	Short: "Call an XML-RPC method and print the result",
	Long: `Call an XML-RPC method and print the decoded result.

` + paramHelp + `

Example:
  xmlrpc call wp.getUsersBlogs admin s:secret -e https://example.com/xmlrpc.php
  xmlrpc call wp.uploadFile 1 admin s:secret 'j:{"name":"a.jpg","type":"image/jpeg"}' -e ...
  xmlrpc call system.listMethods --repeat 50 -e https://example.com/xmlrpc.php`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().IntVar(&retries, "retries", 0, "Retry transient failures up to N times with backoff")
	callCmd.Flags().IntVar(&repeat, "repeat", 1, "Repeat the call N times and print latency percentiles")
	callCmd.Flags().BoolVar(&askPassword, "ask-password", false, "Prompt for the password on the terminal")
	callCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	callCmd.Flags().BoolVar(&streamUpload, "stream", false, "Always stream the request body through a temp file")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		return errors.New("no endpoint: use --endpoint or set endpoint in the config file")
	}
	if repeat < 1 {
		return errors.New("--repeat must be at least 1")
	}
	if askPassword {
		if cfg.Password, err = promptSecret(cmd, "Password: "); err != nil {
			return err
		}
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	opts := append(cfg.Options(), xmlrpc.WithLogger(logger))
	if cfg.Journal.Path != "" {
		store, err := openJournal(cmd, cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, xmlrpc.WithObserver(journal.NewObserver(store, logger)))
	}
	m, err := xmlrpc.NewManager(opts...)
	if err != nil {
		return err
	}
	defer m.CloseAll()

	req := xmlrpc.NewRequest(cfg.Endpoint, args[0], params...)
	if streamUpload {
		req = req.WithEncoding(xmlrpc.EncodingStreaming)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := newLatencies()
	var resp *xmlrpc.Response
	for i := 0; i < repeat; i++ {
		start := time.Now()
		resp, err = callWithRetry(ctx, cmd, m, req)
		if err != nil {
			stats.failed()
			if repeat == 1 || ctx.Err() != nil {
				return err
			}
			logger.Printf("call %d: %v", i+1, err)
			continue
		}
		stats.record(time.Since(start))
	}
	if repeat > 1 {
		stats.print(cmd.ErrOrStderr())
	}
	if resp == nil {
		return errors.New("every call failed")
	}
	if f := resp.Fault(); f != nil {
		if jsonOutput {
			_ = printJSON(cmd.OutOrStdout(), map[string]any{"faultCode": f.Code, "faultString": f.Message})
		}
		return f
	}
	return printValue(cmd.OutOrStdout(), resp.Value(), jsonOutput)
}

// callWithRetry runs req, retrying transient failures with exponential
// backoff.
func callWithRetry(ctx context.Context, cmd *cobra.Command, m *xmlrpc.Manager, req *xmlrpc.Request) (*xmlrpc.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			fmt.Fprintf(cmd.ErrOrStderr(), "retrying in %v after: %v\n", wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		resp, err := roundTrip(ctx, cmd, m, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !xmlrpc.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// roundTrip runs one connection, answering authentication challenges
// from the terminal when there is one.
func roundTrip(ctx context.Context, cmd *cobra.Command, m *xmlrpc.Manager, req *xmlrpc.Request) (*xmlrpc.Response, error) {
	hooks := &xmlrpc.Hooks{
		OnChallenge: func(_ string, ch *xmlrpc.Challenge) {
			answerChallenge(cmd, ch)
		},
	}
	conn, err := m.Prepare(req, hooks)
	if err != nil {
		return nil, err
	}
	if err := conn.Begin(ctx); err != nil {
		return nil, err
	}
	resp, err := conn.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		conn.Stop()
	}
	return resp, err
}

func answerChallenge(cmd *cobra.Command, ch *xmlrpc.Challenge) {
	if !isTerminal(cmd.InOrStdin()) {
		ch.Cancel()
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Server requires authentication (realm %q)\n", ch.Realm)
	user, err := promptLine(cmd, "Username: ")
	if err != nil || user == "" {
		ch.Cancel()
		return
	}
	pass, err := promptSecret(cmd, "Password: ")
	if err != nil {
		ch.Cancel()
		return
	}
	ch.UseCredential(user, pass)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptSecret reads a line without echo from a terminal, or a plain
// line from any other input.
func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(in)
}

func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	return readLine(cmd.InOrStdin())
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
