// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// authServer wraps an echo server behind HTTP basic auth.
func authServer(t *testing.T, user, pass string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var challenges atomic.Int32
	s := NewServer()
	s.SetLogger(NopLogger)
	s.HandleFunc("system.echo", func(_ context.Context, params []Value) (Value, error) {
		return Array(params), nil
	})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			challenges.Add(1)
			w.Header().Set("WWW-Authenticate", `Basic realm="WordPress"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &challenges
}

func TestChallengeAnswered(t *testing.T) {
	ts, challenges := authServer(t, "admin", "secret")
	m := newTestManager(t)

	var realm string
	done := make(chan *Response, 1)
	hooks := &Hooks{
		OnChallenge: func(_ string, ch *Challenge) {
			realm = ch.Realm
			// Answering from another goroutine is allowed.
			go ch.UseCredential("admin", "secret")
		},
		OnComplete: func(_ string, resp *Response) { done <- resp },
		OnFail:     func(_ string, err error) { t.Errorf("OnFail: %v", err) },
	}
	if _, err := m.Spawn(context.Background(), NewRequest(ts.URL, "system.echo", "hello"), hooks); err != nil {
		t.Fatal(err)
	}
	select {
	case resp := <-done:
		if got := resp.Value().(Array)[0]; got != String("hello") {
			t.Errorf("got %#v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	if realm != "WordPress" {
		t.Errorf("realm = %q", realm)
	}
	if n := challenges.Load(); n != 1 {
		t.Errorf("server issued %d challenges", n)
	}
}

func TestChallengeCancelled(t *testing.T) {
	ts, _ := authServer(t, "admin", "secret")
	m := newTestManager(t)

	// No OnChallenge: the challenge is cancelled.
	failed := make(chan error, 1)
	hooks := &Hooks{OnFail: func(_ string, err error) { failed <- err }}
	if _, err := m.Spawn(context.Background(), NewRequest(ts.URL, "system.echo"), hooks); err != nil {
		t.Fatal(err)
	}
	if err := <-failed; !errors.Is(err, ErrChallengeCancelled) {
		t.Errorf("got %v, want ErrChallengeCancelled", err)
	}

	// Synchronous calls have no delegate to ask.
	_, err := m.Client(ts.URL).Call(context.Background(), "system.echo")
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusUnauthorized || !errors.Is(err, ErrChallengeCancelled) {
		t.Errorf("got %v", err)
	}
}

func TestChallengeLimit(t *testing.T) {
	ts, challenges := authServer(t, "admin", "secret")
	m := newTestManager(t)

	failed := make(chan error, 1)
	hooks := &Hooks{
		OnChallenge: func(_ string, ch *Challenge) { ch.UseCredential("admin", "wrong") },
		OnFail:      func(_ string, err error) { failed <- err },
	}
	if _, err := m.Spawn(context.Background(), NewRequest(ts.URL, "system.echo"), hooks); err != nil {
		t.Fatal(err)
	}
	if err := <-failed; !errors.Is(err, ErrTooManyChallenges) {
		t.Errorf("got %v, want ErrTooManyChallenges", err)
	}
	if n := challenges.Load(); n != maxChallenges+1 {
		t.Errorf("server saw %d unauthorised requests, want %d", n, maxChallenges+1)
	}
}

func TestPreemptiveBasicAuth(t *testing.T) {
	ts, challenges := authServer(t, "admin", "secret")
	m := newTestManager(t, WithBasicAuth("admin", "secret"))
	if _, err := m.Client(ts.URL).Call(context.Background(), "system.echo", 1); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if n := challenges.Load(); n != 0 {
		t.Errorf("server issued %d challenges", n)
	}
}

func TestStreamingUpload(t *testing.T) {
	ts, _ := newEchoServer(t)
	tmp := t.TempDir()
	m := newTestManager(t, WithTempDir(tmp))

	path := filepath.Join(t.TempDir(), "photo.jpg")
	content := bytes.Repeat([]byte("JFIF\x00\xff"), 50_000)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	var (
		mu         sync.Mutex
		lastSent   int64
		lastTotal  int64
		progressed int
	)
	done := make(chan *Response, 1)
	hooks := &Hooks{
		OnProgress: func(_ string, sent, total int64) {
			mu.Lock()
			defer mu.Unlock()
			if sent < lastSent {
				t.Errorf("progress went backwards: %d after %d", sent, lastSent)
			}
			lastSent, lastTotal = sent, total
			progressed++
		},
		OnComplete: func(_ string, resp *Response) { done <- resp },
		OnFail:     func(_ string, err error) { t.Errorf("OnFail: %v", err) },
	}
	req := NewRequest(ts.URL, "system.echo", Struct{
		{Name: "name", Value: String("photo.jpg")},
		{Name: "bits", Value: File(path)},
	})
	if _, err := m.Spawn(context.Background(), req, hooks); err != nil {
		t.Fatal(err)
	}

	var resp *Response
	select {
	case resp = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out")
	}
	bits, _ := resp.Value().(Array)[0].(Struct).Get("bits")
	if !bytes.Equal(bits.(Base64), content) {
		t.Error("uploaded bytes differ")
	}

	mu.Lock()
	if progressed == 0 || lastSent != lastTotal || lastTotal == 0 {
		t.Errorf("progress: %d events, last %d/%d", progressed, lastSent, lastTotal)
	}
	mu.Unlock()

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temporary body files left behind: %v", entries)
	}
}

func TestStreamedBodyRemovedOnCancel(t *testing.T) {
	ts, _ := newEchoServer(t)
	tmp := t.TempDir()
	m := newTestManager(t, WithTempDir(tmp))

	req := NewRequest(ts.URL, "demo.block", 1).WithEncoding(EncodingStreaming)
	conn, err := m.Prepare(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for conn.State() != StateAwaitingResponse && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	conn.Stop()

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temporary body files left behind: %v", entries)
	}
}

func rawServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestResponseFailures(t *testing.T) {
	valid := `<?xml version="1.0"?><methodResponse><params><param><value><string>` + strings.Repeat("x", 200) + `</string></value></param></params></methodResponse>`
	tests := []struct {
		name      string
		status    int
		body      string
		opts      []Option
		check     func(error) bool
		retryable bool
	}{
		{
			name:      "service unavailable",
			status:    http.StatusServiceUnavailable,
			check:     func(err error) bool { var te *TransportError; return errors.As(err, &te) && te.StatusCode == 503 },
			retryable: true,
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check:  func(err error) bool { var te *TransportError; return errors.As(err, &te) && te.StatusCode == 404 },
		},
		{
			name:   "html login page",
			status: http.StatusOK,
			body:   "<html><head><title>Log In</title></head><body></body></html>",
			check:  func(err error) bool { return errors.Is(err, ErrNotXMLRPC) },
		},
		{
			name:   "truncated",
			status: http.StatusOK,
			body:   valid[:60],
			check:  func(err error) bool { var pe *ParseError; return errors.As(err, &pe) },
		},
		{
			name:   "too large",
			status: http.StatusOK,
			body:   valid,
			opts:   []Option{WithMaxResponseBytes(64)},
			check:  func(err error) bool { return errors.Is(err, ErrResponseTooLarge) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := rawServer(t, tt.status, tt.body)
			m := newTestManager(t, tt.opts...)
			_, err := m.Client(ts.URL).Call(context.Background(), "m")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v", !tt.retryable)
			}
			if IsFault(err) {
				t.Error("transport failure reported as fault")
			}
		})
	}
}

func TestJunkAroundResponseIsCleaned(t *testing.T) {
	body := "<br />\n<b>Deprecated</b>: Function create_function() is deprecated\n" +
		`<?xml version="1.0" encoding="UTF-8"?><methodResponse><params><param><value><string>ok` + "\x0b" + `</string></value></param></params></methodResponse>` +
		"\n<!-- 12 queries -->\nDebug: done"
	ts := rawServer(t, http.StatusOK, body)

	v, err := newTestManager(t).Client(ts.URL).Call(context.Background(), "m")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v != String("ok") {
		t.Errorf("got %#v", v)
	}

	_, err = newTestManager(t, WithoutCleaning()).Client(ts.URL).Call(context.Background(), "m")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("raw decoding accepted junk: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := m.Client(ts.URL).Call(context.Background(), "demo.block")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not honoured")
	}
}

func TestCallContextCancelled(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Client(ts.URL).Call(ctx, "demo.block")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for m.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Len() != 0 {
		t.Error("connection left registered after caller gave up")
	}
}

func TestStateTransitions(t *testing.T) {
	ts, release := newEchoServer(t)
	m := newTestManager(t)
	conn, err := m.Prepare(NewRequest(ts.URL, "demo.block"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if conn.State() != StateCreated {
		t.Fatalf("state %v", conn.State())
	}
	if err := conn.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for conn.State() != StateAwaitingResponse && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.State() != StateAwaitingResponse {
		t.Fatalf("state %v, want awaiting-response", conn.State())
	}
	close(release)
	resp, err := conn.Wait(context.Background())
	if err != nil || resp == nil {
		t.Fatalf("Wait: %v", err)
	}
	if conn.State() != StateCompleted || !conn.State().Terminal() {
		t.Errorf("state %v", conn.State())
	}
	if conn.Stop() {
		t.Error("Stop changed a completed connection")
	}
}

func TestDial(t *testing.T) {
	for _, bad := range []string{"", "example.com/xmlrpc.php", "ftp://example.com/xmlrpc.php", "http://"} {
		if _, err := Dial(bad); err == nil {
			t.Errorf("Dial(%q) accepted", bad)
		}
	}
	ts, _ := newEchoServer(t)
	client, err := Dial(ts.URL, WithLogger(NopLogger), WithUserAgent("test-agent"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	v, err := client.Call(context.Background(), "system.listMethods")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if methods := v.(Array); len(methods) != 4 {
		t.Errorf("listMethods = %#v", methods)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{&TransportError{Op: "send", Err: errors.New("read tcp: connection reset by peer")}, true},
		{&TransportError{Op: "send", Err: errors.New("dial tcp: connection refused")}, true},
		{&TransportError{Op: "receive", StatusCode: http.StatusBadGateway}, true},
		{&TransportError{Op: "receive", StatusCode: http.StatusInternalServerError}, false},
		{&Fault{Code: 403, Message: "nope"}, false},
		{&ParseError{Err: io.ErrUnexpectedEOF}, false},
		{ErrCancelled, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
