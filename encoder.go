// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	xmlHeader      = `<?xml version="1.0"?>`
	dateTimeLayout = "20060102T15:04:05"

	// DefaultStreamThreshold is the estimated body size above which
	// EncodingAuto switches to a temporary file.
	DefaultStreamThreshold = 1 << 20
)

// Encoder renders one methodCall document.
type Encoder struct {
	method string
	params []Value
	logger Logger
}

// NewEncoder returns an encoder for method with the given parameters.
func NewEncoder(method string, params ...Value) *Encoder {
	return &Encoder{method: method, params: params, logger: defaultLogger}
}

// Encode returns the full document as a string.
func (e *Encoder) Encode() (string, error) {
	var b strings.Builder
	if err := e.EncodeTo(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// EncodeTo writes the document to w. File values are read from disk
// as they are reached.
func (e *Encoder) EncodeTo(w io.Writer) error {
	x := newXMLWriter(w, e.logger)
	x.raw(xmlHeader)
	x.raw("<methodCall><methodName>")
	x.text(e.method)
	x.raw("</methodName><params>")
	for _, p := range e.params {
		x.raw("<param>")
		x.value(p)
		x.raw("</param>")
	}
	x.raw("</params></methodCall>")
	return x.flush()
}

// EncodeForStreaming writes the document to a new temporary file in dir
// (the OS default when empty) and returns it rewound for reading.
func (e *Encoder) EncodeForStreaming(dir string) (*Stream, error) {
	f, err := os.CreateTemp(dir, "xmlrpc-*.xml")
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: create stream file: %w", err)
	}
	s := &Stream{f: f}
	if err := e.EncodeTo(f); err != nil {
		_ = s.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("xmlrpc: stat stream file: %w", err)
	}
	s.size = info.Size()
	if err := s.Reset(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Body encodes the document with the given strategy. threshold applies
// to EncodingAuto; zero means DefaultStreamThreshold.
func (e *Encoder) Body(enc Encoding, dir string, threshold int64) (Body, error) {
	if threshold <= 0 {
		threshold = DefaultStreamThreshold
	}
	stream := enc == EncodingStreaming
	if enc == EncodingAuto {
		size, files := e.estimate()
		stream = files || size > threshold
	}
	if stream {
		return e.EncodeForStreaming(dir)
	}
	var buf bytes.Buffer
	if err := e.EncodeTo(&buf); err != nil {
		return nil, err
	}
	return newMemoryBody(buf.Bytes()), nil
}

// estimate returns a rough encoded size and whether any File value is
// present.
func (e *Encoder) estimate() (int64, bool) {
	size := int64(len(xmlHeader) + len(e.method) + 64)
	files := false
	var walk func(v Value)
	walk = func(v Value) {
		size += 16
		switch v := v.(type) {
		case String:
			size += int64(len(v))
		case Base64:
			size += int64(base64.StdEncoding.EncodedLen(len(v)))
		case File:
			files = true
			if info, err := os.Stat(string(v)); err == nil {
				size += int64(base64.StdEncoding.EncodedLen(int(info.Size())))
			}
		case Array:
			for _, el := range v {
				walk(el)
			}
		case Struct:
			for _, m := range v {
				size += int64(len(m.Name)) + 32
				walk(m.Value)
			}
		default:
			size += 24
		}
	}
	for _, p := range e.params {
		walk(p)
	}
	return size, files
}

// EncodeResponse writes a methodResponse document for resp.
func EncodeResponse(w io.Writer, resp *Response) error {
	x := newXMLWriter(w, defaultLogger)
	x.raw(xmlHeader)
	x.raw("<methodResponse>")
	if f := resp.Fault(); f != nil {
		x.raw("<fault>")
		x.value(Struct{
			{Name: "faultCode", Value: Int(f.Code)},
			{Name: "faultString", Value: String(f.Message)},
		})
		x.raw("</fault>")
	} else {
		x.raw("<params><param>")
		x.value(resp.Value())
		x.raw("</param></params>")
	}
	x.raw("</methodResponse>")
	return x.flush()
}

// xmlWriter keeps the first error so the encoding code can stay linear.
type xmlWriter struct {
	w      *bufio.Writer
	err    error
	logger Logger
}

func newXMLWriter(w io.Writer, logger Logger) *xmlWriter {
	if logger == nil {
		logger = defaultLogger
	}
	return &xmlWriter{w: bufio.NewWriter(w), logger: logger}
}

func (x *xmlWriter) raw(s string) {
	if x.err != nil {
		return
	}
	_, x.err = x.w.WriteString(s)
}

func (x *xmlWriter) text(s string) {
	if x.err != nil {
		return
	}
	x.err = xml.EscapeText(x.w, []byte(s))
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.w.Flush()
}

func (x *xmlWriter) value(v Value) {
	x.raw("<value>")
	switch v := v.(type) {
	case nil, Nil:
		x.raw("<nil/>")
	case Int:
		x.raw("<int>")
		x.raw(strconv.FormatInt(int64(v), 10))
		x.raw("</int>")
	case Double:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			x.placeholder(fmt.Sprintf("double %v", f))
			break
		}
		x.raw("<double>")
		x.raw(strconv.FormatFloat(f, 'f', -1, 64))
		x.raw("</double>")
	case Bool:
		if v {
			x.raw("<boolean>1</boolean>")
		} else {
			x.raw("<boolean>0</boolean>")
		}
	case String:
		x.raw("<string>")
		x.text(string(v))
		x.raw("</string>")
	case DateTime:
		x.raw("<dateTime.iso8601>")
		x.raw(v.UTC().Format(dateTimeLayout))
		x.raw("</dateTime.iso8601>")
	case Base64:
		x.raw("<base64>")
		x.base64(bytes.NewReader(v))
		x.raw("</base64>")
	case File:
		x.raw("<base64>")
		x.file(string(v))
		x.raw("</base64>")
	case Array:
		x.raw("<array><data>")
		for _, el := range v {
			x.value(el)
		}
		x.raw("</data></array>")
	case Struct:
		x.raw("<struct>")
		for _, m := range v {
			x.raw("<member><name>")
			x.text(m.Name)
			x.raw("</name>")
			x.value(m.Value)
			x.raw("</member>")
		}
		x.raw("</struct>")
	case Invalid:
		x.placeholder(v.Type)
	default:
		x.placeholder(fmt.Sprintf("%T", v))
	}
	x.raw("</value>")
}

func (x *xmlWriter) placeholder(what string) {
	x.logger.Printf("cannot encode %s, sending empty string", what)
	x.raw("<string></string>")
}

func (x *xmlWriter) base64(r io.Reader) {
	if x.err != nil {
		return
	}
	enc := base64.NewEncoder(base64.StdEncoding, x.w)
	if _, err := io.Copy(enc, r); err != nil {
		x.err = err
		return
	}
	x.err = enc.Close()
}

func (x *xmlWriter) file(path string) {
	if x.err != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		x.err = fmt.Errorf("xmlrpc: open file parameter: %w", err)
		return
	}
	x.base64(f)
	x.err = errors.Join(x.err, f.Close())
}

// Body is an encoded request body that can be rewound for a resend.
type Body interface {
	io.Reader
	Len() int64
	Reset() error
	Close() error
}

type memoryBody struct {
	r    *bytes.Reader
	data []byte
}

func newMemoryBody(data []byte) *memoryBody {
	return &memoryBody{r: bytes.NewReader(data), data: data}
}

func (b *memoryBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *memoryBody) Len() int64                 { return int64(len(b.data)) }
func (b *memoryBody) Close() error               { return nil }

func (b *memoryBody) Reset() error {
	b.r.Reset(b.data)
	return nil
}

// Stream is a request body backed by a temporary file. Close removes
// the file.
type Stream struct {
	f      *os.File
	size   int64
	closed atomic.Bool
}

func (s *Stream) Read(p []byte) (int, error) { return s.f.Read(p) }

// Len is the full encoded size, independent of the read position.
func (s *Stream) Len() int64 { return s.size }

// Name returns the temporary file path.
func (s *Stream) Name() string { return s.f.Name() }

func (s *Stream) Reset() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("xmlrpc: rewind stream: %w", err)
	}
	return nil
}

func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return errors.Join(s.f.Close(), os.Remove(s.f.Name()))
}
