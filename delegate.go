// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"strings"
	"sync"
)

// Event is delivered to a Delegate. It is one of *CompletedEvent,
// *FailedEvent, *ChallengeEvent or *ProgressEvent.
type Event interface {
	ConnectionID() string
}

// CompletedEvent carries the decoded response. A fault response is
// still a completion; check Response.IsFault.
type CompletedEvent struct {
	ID       string
	Response *Response
}

// FailedEvent reports a transport, HTTP or parse failure.
type FailedEvent struct {
	ID  string
	Err error
}

// ChallengeEvent asks the delegate to answer an HTTP authentication
// challenge. The connection waits until Challenge is answered.
type ChallengeEvent struct {
	ID        string
	Challenge *Challenge
}

// ProgressEvent reports upload progress of a streamed body.
type ProgressEvent struct {
	ID    string
	Sent  int64
	Total int64
}

func (e *CompletedEvent) ConnectionID() string { return e.ID }
func (e *FailedEvent) ConnectionID() string    { return e.ID }
func (e *ChallengeEvent) ConnectionID() string { return e.ID }
func (e *ProgressEvent) ConnectionID() string  { return e.ID }

// Delegate receives connection events. Calls for one connection are
// serialized, and never made on the caller's goroutine. After a
// CompletedEvent or FailedEvent, or once the connection is stopped, no
// further events arrive.
type Delegate interface {
	HandleEvent(Event)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(Event)

func (f DelegateFunc) HandleEvent(e Event) { f(e) }

// Hooks is a Delegate built from optional callbacks. A nil OnChallenge
// cancels the challenge.
type Hooks struct {
	OnComplete  func(id string, resp *Response)
	OnFail      func(id string, err error)
	OnChallenge func(id string, ch *Challenge)
	OnProgress  func(id string, sent, total int64)
}

func (h *Hooks) HandleEvent(e Event) {
	switch e := e.(type) {
	case *CompletedEvent:
		if h.OnComplete != nil {
			h.OnComplete(e.ID, e.Response)
		}
	case *FailedEvent:
		if h.OnFail != nil {
			h.OnFail(e.ID, e.Err)
		}
	case *ChallengeEvent:
		if h.OnChallenge != nil {
			h.OnChallenge(e.ID, e.Challenge)
		} else {
			e.Challenge.Cancel()
		}
	case *ProgressEvent:
		if h.OnProgress != nil {
			h.OnProgress(e.ID, e.Sent, e.Total)
		}
	}
}

// Credential is a username and password for HTTP basic auth.
type Credential struct {
	Username string
	Password string
}

// Challenge is an HTTP authentication request from the server. Answer
// it exactly once, from any goroutine; later answers are ignored.
type Challenge struct {
	Scheme string
	Realm  string

	once   sync.Once
	answer chan *Credential
}

func newChallenge(header string) *Challenge {
	ch := &Challenge{answer: make(chan *Credential, 1)}
	ch.Scheme, ch.Realm = parseAuthenticate(header)
	return ch
}

// UseCredential retries the request with basic auth.
func (c *Challenge) UseCredential(username, password string) {
	c.once.Do(func() {
		c.answer <- &Credential{Username: username, Password: password}
	})
}

// Cancel gives up; the connection fails with ErrChallengeCancelled.
func (c *Challenge) Cancel() {
	c.once.Do(func() { c.answer <- nil })
}

// parseAuthenticate extracts the scheme and realm of a WWW-Authenticate
// header such as `Basic realm="WordPress"`.
func parseAuthenticate(header string) (scheme, realm string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "Basic", ""
	}
	scheme, params, _ := strings.Cut(header, " ")
	for _, p := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "realm") {
			realm = strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return scheme, realm
}
