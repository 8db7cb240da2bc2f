// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/journal"
)

// ServiceName is the JSON-RPC service prefix, as in "XMLRPC.Spawn".
const ServiceName = "XMLRPC"

// Error codes returned in JSON-RPC errors beyond the json2 set.
const (
	ErrCodeNotFound      json2.ErrorCode = -32004
	ErrCodeNoJournal     json2.ErrorCode = -32005
	ErrCodeSpawnRejected json2.ErrorCode = -32006
)

// SpawnArgs starts an XML-RPC call. An empty URL means the gateway's
// default endpoint.
type SpawnArgs struct {
	URL    string            `json:"url,omitempty"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

type SpawnReply struct {
	ID string `json:"id"`
}

// IDArgs names a connection.
type IDArgs struct {
	ID string `json:"id"`
}

// StatusReply describes a connection. Live is false once it left the
// registry; State then comes from the journal.
type StatusReply struct {
	ID     string `json:"id"`
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`
	State  string `json:"state"`
	Live   bool   `json:"live"`
}

type CancelReply struct {
	Cancelled bool `json:"cancelled"`
}

type ListArgs struct{}

type ListReply struct {
	Connections []StatusReply `json:"connections"`
}

// ResultReply is a journaled outcome. Value holds the decoded response
// in plain JSON form.
type ResultReply struct {
	ID            string `json:"id"`
	Method        string `json:"method"`
	URL           string `json:"url"`
	State         string `json:"state"`
	Value         any    `json:"value,omitempty"`
	Fault         bool   `json:"fault,omitempty"`
	FaultCode     int    `json:"faultCode,omitempty"`
	FaultString   string `json:"faultString,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMs    int64  `json:"durationMs"`
	BytesSent     int64  `json:"bytesSent"`
	BytesReceived int64  `json:"bytesReceived"`
}

// Service exposes a Manager over JSON-RPC.
type Service struct {
	ctx      context.Context
	m        *xmlrpc.Manager
	store    *journal.Store
	endpoint string
}

// NewService returns a service spawning on m. Spawned calls run under
// ctx, not under the JSON-RPC request. store may be nil, which disables
// Result.
func NewService(ctx context.Context, m *xmlrpc.Manager, store *journal.Store, endpoint string) *Service {
	return &Service{ctx: ctx, m: m, store: store, endpoint: endpoint}
}

func (s *Service) Spawn(_ *http.Request, args *SpawnArgs, reply *SpawnReply) error {
	url := args.URL
	if url == "" {
		url = s.endpoint
	}
	params, err := paramsFromJSON(args.Params)
	if err != nil {
		return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
	}
	id, err := s.m.Spawn(s.ctx, xmlrpc.NewRequest(url, args.Method, params...), nil)
	if err != nil {
		return &json2.Error{Code: ErrCodeSpawnRejected, Message: err.Error()}
	}
	reply.ID = id
	return nil
}

func (s *Service) Status(r *http.Request, args *IDArgs, reply *StatusReply) error {
	if c, ok := s.m.Connection(args.ID); ok {
		*reply = liveStatus(c)
		return nil
	}
	e, err := s.lookup(r.Context(), args.ID)
	if err != nil {
		return err
	}
	*reply = StatusReply{ID: e.ID, Method: e.Method, URL: e.URL, State: e.State}
	return nil
}

func (s *Service) Cancel(_ *http.Request, args *IDArgs, reply *CancelReply) error {
	reply.Cancelled = s.m.Close(args.ID)
	return nil
}

func (s *Service) List(_ *http.Request, _ *ListArgs, reply *ListReply) error {
	reply.Connections = []StatusReply{}
	for _, id := range s.m.Identifiers() {
		// Connections may finish between the two calls.
		if c, ok := s.m.Connection(id); ok {
			reply.Connections = append(reply.Connections, liveStatus(c))
		}
	}
	return nil
}

func (s *Service) Result(r *http.Request, args *IDArgs, reply *ResultReply) error {
	e, err := s.lookup(r.Context(), args.ID)
	if err != nil {
		return err
	}
	*reply = ResultReply{
		ID:            e.ID,
		Method:        e.Method,
		URL:           e.URL,
		State:         e.State,
		Fault:         e.IsFault(),
		FaultCode:     e.FaultCode,
		FaultString:   e.FaultString,
		Error:         e.Error,
		DurationMs:    e.Duration().Milliseconds(),
		BytesSent:     e.BytesSent,
		BytesReceived: e.BytesReceived,
	}
	if e.ResponseXML != "" && !e.IsFault() {
		resp, err := xmlrpc.NewResponse([]byte(e.ResponseXML))
		if err != nil {
			return &json2.Error{Code: json2.E_INTERNAL, Message: err.Error()}
		}
		if !resp.IsFault() {
			reply.Value = resp.Value().Interface()
		}
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, id string) (journal.Entry, error) {
	if s.store == nil {
		return journal.Entry{}, &json2.Error{Code: ErrCodeNoJournal, Message: "journal disabled"}
	}
	e, err := s.store.Get(ctx, id)
	if errors.Is(err, journal.ErrNotFound) {
		return journal.Entry{}, &json2.Error{Code: ErrCodeNotFound, Message: "unknown connection " + id}
	}
	if err != nil {
		return journal.Entry{}, &json2.Error{Code: json2.E_INTERNAL, Message: err.Error()}
	}
	return e, nil
}

func liveStatus(c *xmlrpc.Connection) StatusReply {
	req := c.Request()
	return StatusReply{
		ID:     c.ID(),
		Method: req.Method(),
		URL:    req.URL(),
		State:  c.State().String(),
		Live:   true,
	}
}
