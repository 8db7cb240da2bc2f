// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newEchoServer serves system.echo (returns its params as an array),
// demo.fault and demo.block (waits for release or the request context).
func newEchoServer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()
	release := make(chan struct{})
	s := NewServer()
	s.SetLogger(NopLogger)
	s.HandleFunc("system.echo", func(_ context.Context, params []Value) (Value, error) {
		return Array(params), nil
	})
	s.HandleFunc("demo.fault", func(context.Context, []Value) (Value, error) {
		return nil, &Fault{Code: FaultForbidden, Message: "Incorrect username or password."}
	})
	s.HandleFunc("demo.block", func(ctx context.Context, params []Value) (Value, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return Array(params), nil
	})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts, release
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(append([]Option{WithLogger(NopLogger)}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.CloseAll() })
	return m
}

// eventSink collects delegate events.
type eventSink struct {
	mu     sync.Mutex
	events []Event
	done   chan Event
}

func newEventSink() *eventSink {
	return &eventSink{done: make(chan Event, 4)}
}

func (s *eventSink) HandleEvent(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	switch e.(type) {
	case *CompletedEvent, *FailedEvent:
		s.done <- e
	}
}

func (s *eventSink) wait(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-s.done:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delegate")
		return nil
	}
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestRoundTrip(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	params := []Value{
		Int(42),
		Int(-9007199254740993),
		Double(3.25),
		Bool(true),
		Bool(false),
		String("a < b & c > d \"quoted\" 'single'"),
		String(""),
		Date(time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)),
		Base64([]byte{0, 1, 2, 0xfe, 0xff}),
		Nil{},
		Array{Int(1), Array{String("nested"), Struct{{Name: "k", Value: Bool(true)}}}},
		Struct{
			{Name: "post_title", Value: String("Hello")},
			{Name: "terms", Value: Struct{{Name: "category", Value: Array{Int(3), Int(5)}}}},
			{Name: "post_date", Value: Date(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))},
		},
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	got, err := m.Client(ts.URL).Call(ctx, "system.echo", args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if want := Array(params); !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch\n got %#v\nwant %#v", got, want)
	}
	if m.Len() != 0 {
		t.Errorf("registry holds %d connections after completion", m.Len())
	}
}

func TestFaultDetection(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Client(ts.URL).Call(ctx, "demo.fault")
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("got %v, want *Fault", err)
	}
	if f.Code != 403 || f.Message != "Incorrect username or password." {
		t.Errorf("got fault %d %q", f.Code, f.Message)
	}

	sink := newEventSink()
	if _, err := m.Spawn(ctx, NewRequest(ts.URL, "no.such.method"), sink); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ev, ok := sink.wait(t).(*CompletedEvent)
	if !ok {
		t.Fatalf("fault should arrive as a completion")
	}
	if !ev.Response.IsFault() || ev.Response.FaultCode() != FaultMethodNotFound {
		t.Errorf("got fault code %d", ev.Response.FaultCode())
	}
}

func TestSpawnDistinctIdentifiers(t *testing.T) {
	ts, release := newEchoServer(t)
	m := newTestManager(t)
	ctx := context.Background()

	sinkA, sinkB := newEventSink(), newEventSink()
	idA, err := m.Spawn(ctx, NewRequest(ts.URL, "demo.block", "a"), sinkA)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	idB, err := m.Spawn(ctx, NewRequest(ts.URL, "demo.block", "b"), sinkB)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if idA == idB {
		t.Fatalf("identifiers collide: %s", idA)
	}
	for _, id := range []string{idA, idB} {
		c, ok := m.Connection(id)
		if !ok || c.ID() != id {
			t.Errorf("Connection(%s) not found", id)
		}
	}
	if got, want := m.Identifiers(), []string{idA, idB}; !reflect.DeepEqual(got, want) {
		t.Errorf("Identifiers = %v, want %v in spawn order", got, want)
	}

	close(release)
	for _, s := range []*eventSink{sinkA, sinkB} {
		if _, ok := s.wait(t).(*CompletedEvent); !ok {
			t.Error("want completion")
		}
	}
	for _, id := range []string{idA, idB} {
		if _, ok := m.Connection(id); ok {
			t.Errorf("Connection(%s) still resolvable after completion", id)
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after completion", m.Len())
	}
}

func TestIdentifiersNeverReused(t *testing.T) {
	g := newIDGenerator()
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 10000; i++ {
		id := g.next()
		if seen[id] {
			t.Fatalf("identifier %s reused", id)
		}
		if id <= prev {
			t.Fatalf("identifier %s not after %s", id, prev)
		}
		seen[id] = true
		prev = id
	}
}

func TestCloseStopsWithoutNotifying(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	ctx := context.Background()

	sink := newEventSink()
	conn, err := m.Prepare(NewRequest(ts.URL, "demo.block"), sink)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := conn.Begin(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Begin = %v, want ErrAlreadyStarted", err)
	}

	if !m.Close(conn.ID()) {
		t.Fatal("Close reported nothing to cancel")
	}
	if m.Close(conn.ID()) {
		t.Error("second Close cancelled again")
	}
	if conn.State() != StateCancelled {
		t.Errorf("state = %v", conn.State())
	}
	if _, err := conn.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Errorf("Wait = %v, want ErrCancelled", err)
	}
	if _, ok := m.Connection(conn.ID()); ok {
		t.Error("closed connection still registered")
	}

	time.Sleep(50 * time.Millisecond)
	if n := sink.count(); n != 0 {
		t.Errorf("delegate got %d events after Close", n)
	}
}

func TestStopBeforeBegin(t *testing.T) {
	m := newTestManager(t)
	conn, err := m.Prepare(NewRequest("http://127.0.0.1:1/xmlrpc.php", "m"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !conn.Stop() {
		t.Fatal("Stop on created connection failed")
	}
	if err := conn.Begin(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Begin after Stop = %v, want ErrCancelled", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestStopRacingBeginKeepsInFlightBalanced(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := newTestManager(t, WithMetrics(metrics))
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		conn, err := m.Prepare(NewRequest("http://127.0.0.1:1/xmlrpc.php", "m"), nil)
		if err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			conn.Begin(ctx)
		}()
		go func() {
			defer wg.Done()
			conn.Stop()
		}()
		wg.Wait()
		<-conn.Done()
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Errorf("in flight = %v after every connection finished", got)
	}
}

func TestCloseRacingCompletion(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		var events atomic.Int32
		delivered := make(chan struct{}, 1)
		d := DelegateFunc(func(Event) {
			events.Add(1)
			select {
			case delivered <- struct{}{}:
			default:
			}
		})
		conn, err := m.Prepare(NewRequest(ts.URL, "system.echo", i), d)
		if err != nil {
			t.Fatal(err)
		}
		if err := conn.Begin(ctx); err != nil {
			t.Fatal(err)
		}
		closed := make(chan bool, 1)
		go func() {
			if i%2 == 0 {
				time.Sleep(time.Duration(i) * 20 * time.Microsecond)
			}
			closed <- m.Close(conn.ID())
		}()

		<-conn.Done()
		cancelled := <-closed
		if cancelled {
			if conn.State() != StateCancelled {
				t.Fatalf("Close won but state is %v", conn.State())
			}
		} else {
			select {
			case <-delivered:
			case <-time.After(5 * time.Second):
				t.Fatal("completion won but delegate never ran")
			}
		}
		if n := events.Load(); n > 1 || (cancelled && n != 0) {
			t.Fatalf("iteration %d: %d delegate events (cancelled=%v)", i, n, cancelled)
		}
		if _, ok := m.Connection(conn.ID()); ok {
			t.Fatalf("iteration %d: entry left in registry", i)
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after all connections finished", m.Len())
	}
}

func TestCloseAll(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t)
	for i := 0; i < 3; i++ {
		if _, err := m.Spawn(context.Background(), NewRequest(ts.URL, "demo.block"), nil); err != nil {
			t.Fatal(err)
		}
	}
	if n := m.CloseAll(); n != 3 {
		t.Errorf("CloseAll = %d, want 3", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestPrepareRejectsIncompleteRequest(t *testing.T) {
	m := newTestManager(t)
	for _, req := range []*Request{nil, NewRequest("http://example.com", ""), NewRequest("", "m")} {
		if _, err := m.Prepare(req, nil); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Prepare(%v) = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestMetrics(t *testing.T) {
	ts, _ := newEchoServer(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := newTestManager(t, WithMetrics(metrics))
	client := m.Client(ts.URL)
	ctx := context.Background()

	if _, err := client.Call(ctx, "system.echo", "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Call(ctx, "demo.fault"); !IsFault(err) {
		t.Fatalf("want fault, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Spawned); got != 2 {
		t.Errorf("spawned = %v", got)
	}
	if got := testutil.ToFloat64(metrics.Finished.WithLabelValues(OutcomeCompleted)); got != 1 {
		t.Errorf("completed = %v", got)
	}
	if got := testutil.ToFloat64(metrics.Finished.WithLabelValues(OutcomeFault)); got != 1 {
		t.Errorf("fault = %v", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Errorf("in flight = %v", got)
	}
	if got := testutil.ToFloat64(metrics.RequestBytes); got <= 0 {
		t.Errorf("request bytes = %v", got)
	}
	if n := testutil.CollectAndCount(metrics.RequestDuration); n != 2 {
		t.Errorf("duration series = %d, want one per method", n)
	}
}

func TestObserver(t *testing.T) {
	ts, _ := newEchoServer(t)
	summaries := make(chan Summary, 1)
	m := newTestManager(t, WithObserver(ObserverFunc(func(s Summary) { summaries <- s })))

	if _, err := m.Client(ts.URL).Call(context.Background(), "system.echo", 1); err != nil {
		t.Fatal(err)
	}
	s := <-summaries
	if s.State != StateCompleted || s.Request.Method() != "system.echo" {
		t.Errorf("summary %+v", s)
	}
	if s.BytesSent == 0 || s.BytesReceived == 0 {
		t.Errorf("byte counts not recorded: %d/%d", s.BytesSent, s.BytesReceived)
	}
	if s.Duration() <= 0 {
		t.Errorf("duration %v", s.Duration())
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newEchoServer(t)
	m := newTestManager(t, WithRateLimit(20, 1))
	client := m.Client(ts.URL)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Call(context.Background(), "system.echo", i); err != nil {
			t.Fatal(err)
		}
	}
	// One token up front, then one every 50ms.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 calls at 20/s took %v", elapsed)
	}
}

func TestManagerServesSeveralEndpoints(t *testing.T) {
	tsA, _ := newEchoServer(t)
	tsB, _ := newEchoServer(t)
	m := newTestManager(t)

	var wg sync.WaitGroup
	results := make([]string, 0, 2)
	var mu sync.Mutex
	for _, u := range []string{tsA.URL, tsB.URL} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			v, err := m.Client(u).Call(context.Background(), "system.echo", u)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			results = append(results, string(v.(Array)[0].(String)))
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	sort.Strings(results)
	want := []string{tsA.URL, tsB.URL}
	sort.Strings(want)
	if strings.Join(results, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", results, want)
	}
}

func TestUnknownTransport(t *testing.T) {
	if _, err := NewManager(WithTransport("carrier-pigeon")); err == nil {
		t.Fatal("unknown transport accepted")
	}
	for _, name := range []string{TransportHTTP, TransportHTTP2, TransportH2C} {
		if !HasTransport(name) {
			t.Errorf("transport %s not registered", name)
		}
	}
	RegisterTransport("custom", func(TransportConfig) (*http.Client, error) { return http.DefaultClient, nil })
	if _, err := NewManager(WithTransport("custom")); err != nil {
		t.Errorf("custom transport: %v", err)
	}
}
