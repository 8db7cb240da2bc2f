// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
)

// Handler handles one XML-RPC method.
type Handler interface {
	ServeXMLRPC(ctx context.Context, params []Value) (Value, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, params []Value) (Value, error)

func (f HandlerFunc) ServeXMLRPC(ctx context.Context, params []Value) (Value, error) {
	return f(ctx, params)
}

// Server is an http.Handler that dispatches methodCall documents to
// registered handlers. A handler returning *Fault sends that fault; any
// other error becomes FaultApplicationError.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	maxBody  int64
	logger   Logger
}

// NewServer returns a server with system.listMethods registered.
func NewServer() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		maxBody:  DefaultMaxResponseBytes,
		logger:   defaultLogger,
	}
	s.HandleFunc("system.listMethods", func(context.Context, []Value) (Value, error) {
		names := s.Methods()
		arr := make(Array, len(names))
		for i, n := range names {
			arr[i] = String(n)
		}
		return arr, nil
	})
	return s
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(l Logger) { s.logger = l }

// Register registers a handler for method, replacing any previous one.
func (s *Server) Register(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) HandleFunc(method string, fn func(ctx context.Context, params []Value) (Value, error)) {
	s.Register(method, HandlerFunc(fn))
}

// Methods returns the registered method names, sorted.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "XML-RPC server accepts POST requests only.", http.StatusMethodNotAllowed)
		return
	}
	resp := s.dispatch(r.Context(), io.LimitReader(r.Body, s.maxBody))
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if err := EncodeResponse(w, resp); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) dispatch(ctx context.Context, body io.Reader) *Response {
	req, err := ParseRequest(body)
	if err != nil {
		return NewFaultResponse(FaultParseError, fmt.Sprintf("parse error. not well formed: %v", err))
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method()]
	s.mu.RUnlock()
	if !ok {
		return NewFaultResponse(FaultMethodNotFound, fmt.Sprintf("server error. requested method %s does not exist.", req.Method()))
	}

	v, err := h.ServeXMLRPC(ctx, req.Params())
	if err != nil {
		var f *Fault
		if errors.As(err, &f) {
			return NewFaultResponse(f.Code, f.Message)
		}
		return NewFaultResponse(FaultApplicationError, err.Error())
	}
	return NewValueResponse(v)
}
