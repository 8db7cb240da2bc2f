// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// Transport names
const (
	TransportHTTP  = "http"  // HTTP/1.1 with keep-alive, default
	TransportHTTP2 = "http2" // HTTP/2 over TLS via x/net/http2
	TransportH2C   = "h2c"   // HTTP/2 without TLS, for local and proxied endpoints
)

// DefaultTransport is the default transport type (HTTP/1.1)
const DefaultTransport = TransportHTTP

// TransportConfig tunes the HTTP client built for a named transport.
type TransportConfig struct {
	TLSInsecure     bool
	DialTimeout     time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 16
	}
	return c
}

// TransportFunc builds the HTTP client for a transport name.
type TransportFunc func(cfg TransportConfig) (*http.Client, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]TransportFunc{
		TransportHTTP:  newHTTPClient,
		TransportHTTP2: newHTTP2Client,
		TransportH2C:   newH2CClient,
	}
)

// RegisterTransport adds or replaces a named transport.
func RegisterTransport(name string, fn TransportFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = fn
}

// AvailableTransports returns the registered transport names, sorted.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}

func newTransportClient(name string, cfg TransportConfig) (*http.Client, error) {
	transportsMu.RLock()
	fn, ok := transports[name]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", name)
	}
	return fn(cfg.withDefaults())
}

func baseTransport(cfg TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.TLSInsecure}, //nolint:gosec // opt-in for self-signed dev sites
	}
}

// newHTTPClient has no client-level timeout; each connection carries
// its own deadline in its context.
func newHTTPClient(cfg TransportConfig) (*http.Client, error) {
	return &http.Client{Transport: baseTransport(cfg)}, nil
}

func newHTTP2Client(cfg TransportConfig) (*http.Client, error) {
	t := baseTransport(cfg)
	if err := http2.ConfigureTransport(t); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	return &http.Client{Transport: t}, nil
}

func newH2CClient(cfg TransportConfig) (*http.Client, error) {
	t := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			d := &net.Dialer{
				Timeout:   cfg.DialTimeout,
				KeepAlive: 30 * time.Second,
			}
			return d.DialContext(ctx, network, addr)
		},
		IdleConnTimeout: cfg.IdleConnTimeout,
	}
	return &http.Client{Transport: t}, nil
}
