// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

// Response is a decoded methodResponse: either one value or a fault.
type Response struct {
	value Value
	fault *Fault
}

// NewValueResponse returns a successful response carrying v.
func NewValueResponse(v any) *Response {
	return &Response{value: ValueOf(v)}
}

// NewFaultResponse returns a fault response.
func NewFaultResponse(code int, message string) *Response {
	return &Response{fault: &Fault{Code: code, Message: message}}
}

func (r *Response) IsFault() bool { return r.fault != nil }

// Value returns the result, or nil for a fault.
func (r *Response) Value() Value { return r.value }

func (r *Response) Fault() *Fault { return r.fault }

func (r *Response) FaultCode() int {
	if r.fault == nil {
		return 0
	}
	return r.fault.Code
}

func (r *Response) FaultString() string {
	if r.fault == nil {
		return ""
	}
	return r.fault.Message
}

// Err returns the fault as an error, or nil.
func (r *Response) Err() error {
	if r.fault == nil {
		return nil
	}
	return r.fault
}
