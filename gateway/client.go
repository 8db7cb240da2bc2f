// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/xmlrpc"
)

const (
	maxRetries    = 3
	retryBaseWait = 200 * time.Millisecond
)

// Client calls a gateway over JSON-RPC.
type Client struct {
	url    string
	http   *http.Client
	logger xmlrpc.Logger
}

// NewClient returns a client for the gateway at addr, which is either a
// host:port or a full URL. A nil httpClient uses a 30s timeout client.
func NewClient(addr string, httpClient *http.Client) *Client {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, RPCPath) {
		url = strings.TrimSuffix(url, "/") + RPCPath
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: httpClient, logger: xmlrpc.NopLogger}
}

// SetLogger enables retry logging.
func (c *Client) SetLogger(l xmlrpc.Logger) {
	c.logger = l
}

// URL returns the JSON-RPC endpoint.
func (c *Client) URL() string {
	return c.url
}

// Spawn starts method on the gateway. Params are marshalled to JSON.
func (c *Client) Spawn(ctx context.Context, url, method string, params ...any) (string, error) {
	args := SpawnArgs{URL: url, Method: method}
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("marshal param: %w", err)
		}
		args.Params = append(args.Params, raw)
	}
	var reply SpawnReply
	if err := c.call(ctx, "Spawn", &args, &reply); err != nil {
		return "", err
	}
	return reply.ID, nil
}

func (c *Client) Status(ctx context.Context, id string) (StatusReply, error) {
	var reply StatusReply
	err := c.call(ctx, "Status", &IDArgs{ID: id}, &reply)
	return reply, err
}

func (c *Client) Cancel(ctx context.Context, id string) (bool, error) {
	var reply CancelReply
	err := c.call(ctx, "Cancel", &IDArgs{ID: id}, &reply)
	return reply.Cancelled, err
}

func (c *Client) List(ctx context.Context) ([]StatusReply, error) {
	var reply ListReply
	err := c.call(ctx, "List", &ListArgs{}, &reply)
	return reply.Connections, err
}

func (c *Client) Result(ctx context.Context, id string) (ResultReply, error) {
	var reply ResultReply
	err := c.call(ctx, "Result", &IDArgs{ID: id}, &reply)
	return reply, err
}

// call retries transport failures with exponential backoff. JSON-RPC
// errors come back as *json2.Error and are not retried.
func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	body, err := json2.EncodeClientRequest(ServiceName+"."+method, args)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if xmlrpc.IsRetryable(err) && ctx.Err() == nil {
				c.logger.Printf("[gateway] %s attempt %d failed: %v", method, attempt+1, err)
				continue
			}
			return fmt.Errorf("failed to issue request: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_ = xmlrpc.CleanlyCloseBody(resp.Body)
			lastErr = &xmlrpc.TransportError{Op: method, StatusCode: resp.StatusCode}
			if xmlrpc.IsRetryable(lastErr) {
				continue
			}
			return lastErr
		}
		err = json2.DecodeClientResponse(resp.Body, reply)
		_ = xmlrpc.CleanlyCloseBody(resp.Body)
		return err
	}
	return fmt.Errorf("failed to issue request after %d attempts: %w", maxRetries, lastErr)
}
