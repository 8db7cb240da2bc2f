// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

// Encoding selects how a request body is produced.
type Encoding uint8

const (
	// EncodingAuto streams when the request carries File values or is
	// estimated to exceed the stream threshold, and buffers otherwise.
	EncodingAuto Encoding = iota
	// EncodingInMemory always builds the body in memory.
	EncodingInMemory
	// EncodingStreaming always writes the body to a temporary file.
	EncodingStreaming
)

func (e Encoding) String() string {
	switch e {
	case EncodingAuto:
		return "auto"
	case EncodingInMemory:
		return "memory"
	case EncodingStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Request is an immutable XML-RPC call: endpoint, method name, ordered
// parameters and body strategy.
type Request struct {
	url      string
	method   string
	params   []Value
	encoding Encoding
}

// NewRequest builds a request. Each param is converted with ValueOf.
func NewRequest(url, method string, params ...any) *Request {
	vals := make([]Value, len(params))
	for i, p := range params {
		vals[i] = ValueOf(p)
	}
	return &Request{url: url, method: method, params: vals}
}

func (r *Request) URL() string        { return r.url }
func (r *Request) Method() string     { return r.method }
func (r *Request) Encoding() Encoding { return r.encoding }

// Params returns a copy of the parameter list.
func (r *Request) Params() []Value {
	out := make([]Value, len(r.params))
	copy(out, r.params)
	return out
}

// WithEncoding returns a copy of r using the given body strategy.
func (r *Request) WithEncoding(e Encoding) *Request {
	c := *r
	c.encoding = e
	return &c
}

// WithURL returns a copy of r aimed at another endpoint.
func (r *Request) WithURL(url string) *Request {
	c := *r
	c.url = url
	return &c
}

// Encoder returns an encoder for the request body.
func (r *Request) Encoder() *Encoder {
	return NewEncoder(r.method, r.params...)
}
