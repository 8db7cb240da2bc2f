// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	StateCreated State = iota
	StateSending
	StateAwaitingResponse
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s >= StateCompleted }

// Connection is one XML-RPC round trip owned by a Manager.
type Connection struct {
	id       string
	req      *Request
	delegate Delegate
	m        *Manager

	state atomic.Int32
	done  chan struct{}

	// dispatchMu serializes delegate calls.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	cancel   context.CancelFunc
	body     Body
	resp     *Response
	err      error
	started  time.Time
	finished time.Time

	sent     atomic.Int64
	received atomic.Int64
}

func newConnection(id string, req *Request, d Delegate, m *Manager) *Connection {
	return &Connection{
		id:       id,
		req:      req,
		delegate: d,
		m:        m,
		done:     make(chan struct{}),
	}
}

func (c *Connection) ID() string            { return c.id }
func (c *Connection) Request() *Request     { return c.req }
func (c *Connection) State() State          { return State(c.state.Load()) }
func (c *Connection) Done() <-chan struct{} { return c.done }

// Begin starts the round trip on its own goroutine. It fails with
// ErrAlreadyStarted unless the connection is still Created, or with
// ErrCancelled if it was stopped first.
func (c *Connection) Begin(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateSending)) {
		if c.State() == StateCancelled {
			return ErrCancelled
		}
		return ErrAlreadyStarted
	}

	var cancel context.CancelFunc
	if c.m.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.m.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	// finish takes c.mu after its CAS, so a Stop racing with this block
	// either is seen here or sees started set.
	c.mu.Lock()
	if c.State().Terminal() {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.started = time.Now()
	c.m.metrics.started()
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Stop cancels the connection. The delegate is not told. Stop on a
// finished connection does nothing and returns false.
func (c *Connection) Stop() bool {
	return c.finish(StateCancelled, nil, ErrCancelled)
}

// Wait blocks until the connection finishes or ctx is done.
func (c *Connection) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.resp, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Summary describes a finished connection to an Observer.
type Summary struct {
	ID            string
	Request       *Request
	State         State
	Response      *Response
	Err           error
	Started       time.Time
	Finished      time.Time
	BytesSent     int64
	BytesReceived int64
}

// Duration is zero when the connection never started.
func (s Summary) Duration() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

func (c *Connection) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		ID:            c.id,
		Request:       c.req,
		State:         c.State(),
		Response:      c.resp,
		Err:           c.err,
		Started:       c.started,
		Finished:      c.finished,
		BytesSent:     c.sent.Load(),
		BytesReceived: c.received.Load(),
	}
}

func (c *Connection) run(ctx context.Context) {
	resp, err := c.roundTrip(ctx)
	if err != nil {
		c.finish(StateFailed, nil, err)
		return
	}
	c.finish(StateCompleted, resp, nil)
}

// finish performs the single terminal transition. Only the caller that
// wins the CAS releases resources, deregisters and notifies.
func (c *Connection) finish(state State, resp *Response, err error) bool {
	for {
		cur := c.State()
		if cur.Terminal() {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(state)) {
			break
		}
	}

	c.mu.Lock()
	c.resp, c.err = resp, err
	c.finished = time.Now()
	cancel, body := c.cancel, c.body
	c.body = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		if cerr := body.Close(); cerr != nil {
			c.m.logger.Printf("connection %s: release body: %v", c.id, cerr)
		}
	}

	c.m.connectionFinished(c)
	close(c.done)

	if state == StateCancelled || c.delegate == nil {
		return true
	}
	var ev Event
	if state == StateCompleted {
		ev = &CompletedEvent{ID: c.id, Response: resp}
	} else {
		ev = &FailedEvent{ID: c.id, Err: err}
	}
	c.dispatchMu.Lock()
	c.delegate.HandleEvent(ev)
	c.dispatchMu.Unlock()
	return true
}

// dispatch delivers a non-terminal event. It returns false once the
// connection has finished.
func (c *Connection) dispatch(e Event) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.State().Terminal() {
		return false
	}
	if c.delegate == nil {
		if ce, ok := e.(*ChallengeEvent); ok {
			ce.Challenge.Cancel()
		}
		return true
	}
	c.delegate.HandleEvent(e)
	return true
}

// setBody hands the encoded body to the connection so finish releases
// it. It fails if the connection already finished.
func (c *Connection) setBody(b Body) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State().Terminal() {
		_ = b.Close()
		return false
	}
	c.body = b
	return true
}
