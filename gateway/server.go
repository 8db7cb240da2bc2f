// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway exposes a connection Manager to other processes over
// JSON-RPC 2.0, with Prometheus metrics and a gRPC health service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/journal"
)

const (
	// RPCPath is where the JSON-RPC service is mounted.
	RPCPath = "/rpc"

	defaultMetricsPath = "/metrics"
	shutdownTimeout    = 10 * time.Second
)

// Config holds the gateway listeners and the default XML-RPC endpoint.
type Config struct {
	Address     string
	GRPCAddress string
	MetricsPath string
	Endpoint    string
}

// Server serves the JSON-RPC gateway, /metrics and /healthz over HTTP
// and the gRPC health service on a second listener.
type Server struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	manager *xmlrpc.Manager
	handler http.Handler
	grpc    *grpc.Server
	health  *Health
	logger  xmlrpc.Logger
}

// NewServer wires a gateway around m. reg is used for /metrics and the
// gateway's own request counter; pass the registry the manager's
// Metrics were created on. store may be nil.
func NewServer(cfg Config, m *xmlrpc.Manager, store *journal.Store, reg *prometheus.Registry, logger xmlrpc.Logger) (*Server, error) {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaultMetricsPath
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = xmlrpc.NopLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(NewService(ctx, m, store, cfg.Endpoint), ServiceName); err != nil {
		cancel()
		return nil, fmt.Errorf("register service: %w", err)
	}

	requests := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xmlrpc",
			Subsystem: "gateway",
			Name:      "http_requests_total",
			Help:      "Gateway HTTP requests by status code and method",
		},
		[]string{"code", "method"},
	)

	mux := http.NewServeMux()
	mux.Handle(RPCPath, promhttp.InstrumentHandlerCounter(requests, rpcServer))
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gs := grpc.NewServer()
	health := NewHealth()
	health.Register(gs)

	return &Server{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		manager: m,
		handler: mux,
		grpc:    gs,
		health:  health,
		logger:  logger,
	}, nil
}

// Handler returns the HTTP side of the gateway.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the gRPC health state.
func (s *Server) Health() *Health {
	return s.health
}

// ListenAndServe listens on the configured addresses and serves until
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	var grpcLis net.Listener
	if s.cfg.GRPCAddress != "" {
		if grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddress); err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen %s: %w", s.cfg.GRPCAddress, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs both listeners until ctx is done, then marks the health
// service NOT_SERVING, cancels spawned calls and shuts down. grpcLis may
// be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 2)
	go func() {
		s.logger.Printf("[gateway] serving JSON-RPC on %s%s", httpLis.Addr(), RPCPath)
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			s.logger.Printf("[gateway] serving gRPC health on %s", grpcLis.Addr())
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errs <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	s.health.SetServing(true)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	s.health.Shutdown()
	s.cancel()
	if n := s.manager.CloseAll(); n > 0 {
		s.logger.Printf("[gateway] cancelled %d calls", n)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	s.grpc.GracefulStop()
	return err
}
