// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
)

// Caller is what application code needs to issue XML-RPC calls. All
// application code should use this interface.
type Caller interface {
	// Call makes a synchronous call. A fault is returned as *Fault.
	Call(ctx context.Context, method string, params ...any) (Value, error)

	// Go starts a call and reports to d. It returns the connection
	// identifier immediately.
	Go(ctx context.Context, method string, d Delegate, params ...any) (string, error)
}

var _ Caller = (*Client)(nil)

// Client binds a Manager to one endpoint.
type Client struct {
	endpoint string
	m        *Manager
}

// Client returns a Client for endpoint that shares m's registry.
func (m *Manager) Client(endpoint string) *Client {
	return &Client{endpoint: endpoint, m: m}
}

func (c *Client) Endpoint() string  { return c.endpoint }
func (c *Client) Manager() *Manager { return c.m }

func (c *Client) Call(ctx context.Context, method string, params ...any) (Value, error) {
	resp, err := c.CallRequest(ctx, NewRequest(c.endpoint, method, params...))
	if err != nil {
		return nil, err
	}
	if resp.IsFault() {
		return nil, resp.Fault()
	}
	return resp.Value(), nil
}

func (c *Client) Go(ctx context.Context, method string, d Delegate, params ...any) (string, error) {
	return c.m.Spawn(ctx, NewRequest(c.endpoint, method, params...), d)
}

// CallRequest runs req through the registry and waits for it. Faults
// are returned in the Response, not as an error. An empty request URL
// means the client endpoint.
func (c *Client) CallRequest(ctx context.Context, req *Request) (*Response, error) {
	if req.URL() == "" {
		req = req.WithURL(c.endpoint)
	}
	conn, err := c.m.Prepare(req, nil)
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

// Close cancels the calls still running on the client's manager.
func (c *Client) Close() error {
	c.m.CloseAll()
	return nil
}
