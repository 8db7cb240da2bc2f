// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
)

const (
	// DefaultMaxResponseBytes caps response bodies read into memory.
	DefaultMaxResponseBytes = 64 << 20

	// maxChallenges bounds authentication round trips per connection.
	maxChallenges = 3
)

// CleanlyCloseBody drains and closes an HTTP response body so the
// underlying connection can be reused.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

func (c *Connection) roundTrip(ctx context.Context) (*Response, error) {
	m := c.m
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: "rate limit", Err: err}
		}
	}

	body, err := m.codec.EncodeRequest(c.req)
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: encode %s: %w", c.req.Method(), err)
	}
	if !c.setBody(body) {
		return nil, ErrCancelled
	}

	cred := m.credential
	for challenges := 0; ; challenges++ {
		httpResp, err := c.send(ctx, body, cred)
		if err != nil {
			return nil, err
		}
		if httpResp.StatusCode != http.StatusUnauthorized {
			return c.readResponse(httpResp)
		}
		_ = CleanlyCloseBody(httpResp.Body)
		if challenges == maxChallenges {
			return nil, &TransportError{Op: "authenticate", StatusCode: http.StatusUnauthorized, Err: ErrTooManyChallenges}
		}
		if cred, err = c.challenge(ctx, httpResp.Header.Get("WWW-Authenticate")); err != nil {
			return nil, err
		}
		if err := body.Reset(); err != nil {
			return nil, err
		}
		c.state.CompareAndSwap(int32(StateAwaitingResponse), int32(StateSending))
	}
}

func (c *Connection) send(ctx context.Context, body Body, cred *Credential) (*http.Response, error) {
	m := c.m
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			c.state.CompareAndSwap(int32(StateSending), int32(StateAwaitingResponse))
		},
	}
	reader := &countingReader{r: body, c: c, total: body.Len()}
	_, reader.progress = body.(*Stream)

	// NopCloser keeps the transport from closing the body, which must
	// survive a challenge resend.
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, c.req.URL(), io.NopCloser(reader))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.ContentLength = body.Len()
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("User-Agent", m.userAgent)
	for k, v := range m.headers {
		req.Header.Set(k, v)
	}
	if cred != nil {
		req.SetBasicAuth(cred.Username, cred.Password)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}
	c.state.CompareAndSwap(int32(StateSending), int32(StateAwaitingResponse))
	return resp, nil
}

func (c *Connection) readResponse(httpResp *http.Response) (*Response, error) {
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		_ = CleanlyCloseBody(httpResp.Body)
		return nil, &TransportError{Op: "receive", StatusCode: httpResp.StatusCode}
	}
	limit := c.m.maxResponseBytes
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	c.received.Add(int64(len(data)))
	if err != nil {
		_ = httpResp.Body.Close()
		return nil, &TransportError{Op: "receive", Err: err}
	}
	if int64(len(data)) > limit {
		_ = httpResp.Body.Close()
		return nil, &TransportError{Op: "receive", StatusCode: httpResp.StatusCode, Err: ErrResponseTooLarge}
	}
	_ = CleanlyCloseBody(httpResp.Body)
	return c.m.codec.DecodeResponse(data)
}

// challenge hands a 401 to the delegate and waits for its answer.
func (c *Connection) challenge(ctx context.Context, header string) (*Credential, error) {
	ch := newChallenge(header)
	if !c.dispatch(&ChallengeEvent{ID: c.id, Challenge: ch}) {
		return nil, ErrCancelled
	}
	select {
	case cred := <-ch.answer:
		if cred == nil {
			return nil, &TransportError{Op: "authenticate", StatusCode: http.StatusUnauthorized, Err: ErrChallengeCancelled}
		}
		return cred, nil
	case <-ctx.Done():
		return nil, &TransportError{Op: "authenticate", Err: ctx.Err()}
	}
}

// countingReader tracks bytes handed to the transport and, for streamed
// bodies, reports progress.
type countingReader struct {
	r        io.Reader
	c        *Connection
	total    int64
	read     int64
	progress bool
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.c.sent.Add(int64(n))
		if r.progress {
			r.c.dispatch(&ProgressEvent{ID: r.c.id, Sent: r.read, Total: r.total})
		}
	}
	return n, err
}
