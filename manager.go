// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Observer is told once about every connection that reaches a terminal
// state, after it has left the registry.
type Observer interface {
	ConnectionFinished(Summary)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Summary)

func (f ObserverFunc) ConnectionFinished(s Summary) { f(s) }

// Manager owns the live connections of one client. An entry exists from
// spawn until the connection completes, fails or is closed, and is
// removed exactly once.
type Manager struct {
	mu    sync.Mutex
	conns map[string]*Connection

	ids              *idGenerator
	httpClient       *http.Client
	codec            Codec
	timeout          time.Duration
	userAgent        string
	headers          map[string]string
	credential       *Credential
	maxResponseBytes int64
	limiter          *rate.Limiter
	metrics          *Metrics
	observer         Observer
	logger           Logger
}

// NewManager returns an empty registry. It fails only for an unknown
// transport name.
func NewManager(opts ...Option) (*Manager, error) {
	o := newOptions(opts)
	if o.logger == nil {
		o.logger = NopLogger
	}

	client := o.httpClient
	if client == nil {
		var err error
		if client, err = newTransportClient(o.transport, o.transportConfig); err != nil {
			return nil, err
		}
	}

	codec := o.codec
	if codec == nil {
		codec = XMLCodec{
			TempDir:         o.tempDir,
			StreamThreshold: o.streamThreshold,
			Raw:             o.raw,
			Logger:          o.logger,
		}
	}

	m := &Manager{
		conns:            make(map[string]*Connection),
		ids:              newIDGenerator(),
		httpClient:       client,
		codec:            codec,
		timeout:          o.timeout,
		userAgent:        o.userAgent,
		headers:          o.headers,
		credential:       o.credential,
		maxResponseBytes: o.maxResponseBytes,
		metrics:          o.metrics,
		observer:         o.observer,
		logger:           o.logger,
	}
	if m.maxResponseBytes <= 0 {
		m.maxResponseBytes = DefaultMaxResponseBytes
	}
	if o.rateLimit > 0 {
		burst := o.rateBurst
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(o.rateLimit), burst)
	}
	return m, nil
}

// Spawn registers a connection for req and starts it. The identifier is
// returned before any I/O completes; d may be nil.
func (m *Manager) Spawn(ctx context.Context, req *Request, d Delegate) (string, error) {
	c, err := m.Prepare(req, d)
	if err != nil {
		return "", err
	}
	if err := c.Begin(ctx); err != nil {
		return "", err
	}
	return c.id, nil
}

// Prepare registers a connection without starting it. Call Begin on
// the result.
func (m *Manager) Prepare(req *Request, d Delegate) (*Connection, error) {
	if req == nil || req.Method() == "" {
		return nil, fmt.Errorf("%w: missing method name", ErrInvalidRequest)
	}
	if req.URL() == "" {
		return nil, fmt.Errorf("%w: missing endpoint URL", ErrInvalidRequest)
	}
	c := newConnection(m.ids.next(), req, d, m)

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()

	m.metrics.spawned()
	return c, nil
}

// Connection returns a live connection. Finished and unknown
// identifiers both report false.
func (m *Manager) Connection(id string) (*Connection, bool) {
	m.mu.Lock()
	c, ok := m.conns[id]
	m.mu.Unlock()
	if !ok || c.State().Terminal() {
		return nil, false
	}
	return c, true
}

// Identifiers returns the live identifiers in spawn order.
func (m *Manager) Identifiers() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len is the number of live connections.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Close cancels and removes one connection. It reports whether this
// call cancelled it.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	c, ok := m.conns[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return c.Stop()
}

// CloseAll cancels every live connection and returns how many it
// cancelled.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	n := 0
	for _, c := range conns {
		if c.Stop() {
			n++
		}
	}
	return n
}

// connectionFinished runs once per connection, from finish.
func (m *Manager) connectionFinished(c *Connection) {
	m.mu.Lock()
	if cur, ok := m.conns[c.id]; ok && cur == c {
		delete(m.conns, c.id)
	}
	m.mu.Unlock()

	s := c.Summary()
	m.metrics.finished(s)
	if s.State == StateFailed {
		m.logger.Printf("connection %s %s failed: %v", s.ID, s.Request.Method(), s.Err)
	}
	if m.observer != nil {
		m.observer.ConnectionFinished(s)
	}
}
