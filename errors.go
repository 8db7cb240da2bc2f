// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNotXMLRPC          = errors.New("xmlrpc: document is not an XML-RPC message")
	ErrCancelled          = errors.New("xmlrpc: connection cancelled")
	ErrAlreadyStarted     = errors.New("xmlrpc: connection already started")
	ErrChallengeCancelled = errors.New("xmlrpc: authentication challenge cancelled")
	ErrTooManyChallenges  = errors.New("xmlrpc: too many authentication challenges")
	ErrResponseTooLarge   = errors.New("xmlrpc: response body too large")
	ErrInvalidRequest     = errors.New("xmlrpc: invalid request")
)

// Fault codes from the XML-RPC fault code interoperability convention,
// plus the ones WordPress returns most often.
const (
	FaultParseError          = -32700
	FaultUnsupportedEncoding = -32701
	FaultInvalidCharacter    = -32702
	FaultInvalidRequest      = -32600
	FaultMethodNotFound      = -32601
	FaultInvalidParams       = -32602
	FaultInternalError       = -32603
	FaultApplicationError    = -32500
	FaultSystemError         = -32400
	FaultTransportError      = -32300

	FaultForbidden        = 403
	FaultMethodNotAllowed = 405
)

// Fault is an XML-RPC fault returned by the server.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc: fault %d: %s", f.Code, f.Message)
}

// IsFault reports whether err is or wraps a *Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// ParseError reports a malformed document.
type ParseError struct {
	Offset int64
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("xmlrpc: malformed document at line %d (offset %d): %v", e.Line, e.Offset, e.Err)
	}
	return fmt.Sprintf("xmlrpc: malformed document at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError reports an HTTP-level failure. StatusCode is zero when
// no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("xmlrpc: %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("xmlrpc: %s: HTTP %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("xmlrpc: %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient transport failure
// that is worth another attempt. Faults and parse errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		var pe *ParseError
		return !errors.As(err, &pe)
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}
