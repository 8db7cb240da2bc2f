// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html/charset"
)

// maxValueDepth bounds array and struct nesting in decoded documents.
const maxValueDepth = 256

var dateTimeLayouts = []string{
	"20060102T15:04:05",
	"20060102T15:04:05Z07:00",
	"20060102T150405",
	"20060102T150405Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
}

// NewResponse decodes a methodResponse document. The bytes should have
// been through Clean when they come from an untrusted server.
func NewResponse(data []byte) (*Response, error) {
	return DecodeResponse(bytes.NewReader(data))
}

// DecodeResponse decodes a methodResponse document from r.
func DecodeResponse(r io.Reader) (*Response, error) {
	return newParser(r).response()
}

// ParseRequest decodes a methodCall document. The returned request has
// no URL.
func ParseRequest(r io.Reader) (*Request, error) {
	return newParser(r).request()
}

type parser struct {
	dec *xml.Decoder
}

func newParser(r io.Reader) *parser {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity
	return &parser{dec: dec}
}

func (p *parser) errorf(format string, args ...any) error {
	line, _ := p.dec.InputPos()
	return &ParseError{Offset: p.dec.InputOffset(), Line: line, Err: fmt.Errorf(format, args...)}
}

func (p *parser) wrap(err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	line, _ := p.dec.InputPos()
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		line = se.Line
	}
	return &ParseError{Offset: p.dec.InputOffset(), Line: line, Err: err}
}

// next returns the next token that matters to XML-RPC.
func (p *parser) next() (xml.Token, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, p.wrap(err)
		}
		switch tok.(type) {
		case xml.Comment, xml.ProcInst, xml.Directive:
			continue
		}
		return tok, nil
	}
}

// nextTag skips whitespace and returns the next start or end element.
func (p *parser) nextTag() (xml.Token, error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if t, ok := tok.(xml.CharData); ok {
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			return nil, p.errorf("unexpected text %q", abbreviate(string(t)))
		}
		return tok, nil
	}
}

func (p *parser) expectStart(name string) error {
	tok, err := p.nextTag()
	if err != nil {
		return err
	}
	if t, ok := tok.(xml.StartElement); !ok || t.Name.Local != name {
		return p.errorf("expected <%s>, found %s", name, describe(tok))
	}
	return nil
}

func (p *parser) expectEnd(name string) error {
	tok, err := p.nextTag()
	if err != nil {
		return err
	}
	if t, ok := tok.(xml.EndElement); !ok || t.Name.Local != name {
		return p.errorf("expected </%s>, found %s", name, describe(tok))
	}
	return nil
}

func (p *parser) root(want string) error {
	tok, err := p.nextTag()
	if err != nil {
		return err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return p.errorf("expected <%s>, found %s", want, describe(tok))
	}
	if start.Name.Local != want {
		line, _ := p.dec.InputPos()
		return &ParseError{
			Offset: p.dec.InputOffset(),
			Line:   line,
			Err:    fmt.Errorf("%w: root element <%s>", ErrNotXMLRPC, start.Name.Local),
		}
	}
	return nil
}

// end consumes trailing whitespace and misc up to EOF.
func (p *parser) end() error {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return p.wrap(err)
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst, xml.Directive:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return p.errorf("trailing text after document")
			}
		default:
			return p.errorf("trailing %s after document", describe(tok))
		}
	}
}

func (p *parser) response() (*Response, error) {
	if err := p.root("methodResponse"); err != nil {
		return nil, err
	}
	tok, err := p.nextTag()
	if err != nil {
		return nil, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return nil, p.errorf("empty methodResponse")
	}
	resp := &Response{}
	switch start.Name.Local {
	case "params":
		v, err := p.params(true)
		if err != nil {
			return nil, err
		}
		resp.value = Nil{}
		if len(v) > 0 {
			resp.value = v[0]
		}
	case "fault":
		if err := p.expectStart("value"); err != nil {
			return nil, err
		}
		v, err := p.value(0)
		if err != nil {
			return nil, err
		}
		if err := p.expectEnd("fault"); err != nil {
			return nil, err
		}
		if resp.fault, err = p.fault(v); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("unexpected <%s> in methodResponse", start.Name.Local)
	}
	if err := p.expectEnd("methodResponse"); err != nil {
		return nil, err
	}
	return resp, p.end()
}

func (p *parser) request() (*Request, error) {
	if err := p.root("methodCall"); err != nil {
		return nil, err
	}
	if err := p.expectStart("methodName"); err != nil {
		return nil, err
	}
	name, err := p.text()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, p.errorf("empty methodName")
	}
	req := &Request{method: name, params: []Value{}}
	tok, err := p.nextTag()
	if err != nil {
		return nil, err
	}
	if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "params" {
		if req.params, err = p.params(false); err != nil {
			return nil, err
		}
		tok, err = p.nextTag()
		if err != nil {
			return nil, err
		}
	}
	if t, ok := tok.(xml.EndElement); !ok || t.Name.Local != "methodCall" {
		return nil, p.errorf("expected </methodCall>, found %s", describe(tok))
	}
	return req, p.end()
}

// params reads <param> elements up to </params>. A response carries at
// most one.
func (p *parser) params(single bool) ([]Value, error) {
	vals := []Value{}
	for {
		tok, err := p.nextTag()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return vals, nil
		case xml.StartElement:
			if t.Name.Local != "param" {
				return nil, p.errorf("unexpected <%s> in params", t.Name.Local)
			}
			if single && len(vals) == 1 {
				return nil, p.errorf("methodResponse has more than one param")
			}
			if err := p.expectStart("value"); err != nil {
				return nil, err
			}
			v, err := p.value(0)
			if err != nil {
				return nil, err
			}
			if err := p.expectEnd("param"); err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
	}
}

// value parses the content of a <value> element whose start tag was
// already consumed, including the end tag.
func (p *parser) value(depth int) (Value, error) {
	if depth > maxValueDepth {
		return nil, p.errorf("values nested deeper than %d", maxValueDepth)
	}
	var text strings.Builder
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			// An untyped value is a string.
			return String(text.String()), nil
		case xml.StartElement:
			if strings.TrimSpace(text.String()) != "" {
				return nil, p.errorf("mixed content in <value>")
			}
			v, err := p.typed(t, depth)
			if err != nil {
				return nil, err
			}
			if err := p.expectEnd("value"); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
}

func (p *parser) typed(start xml.StartElement, depth int) (Value, error) {
	name := start.Name.Local
	switch name {
	case "array":
		return p.array(depth)
	case "struct":
		return p.structure(depth)
	}
	s, err := p.text()
	if err != nil {
		return nil, err
	}
	switch name {
	case "string":
		return String(s), nil
	case "int", "i4", "i8":
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, p.errorf("bad <%s>: %v", name, err)
		}
		return Int(n), nil
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, p.errorf("bad <double>: %v", err)
		}
		return Double(f), nil
	case "boolean":
		switch strings.TrimSpace(s) {
		case "1", "true":
			return Bool(true), nil
		case "0", "false":
			return Bool(false), nil
		}
		return nil, p.errorf("bad <boolean> %q", abbreviate(s))
	case "dateTime.iso8601":
		t, err := parseDateTime(strings.TrimSpace(s))
		if err != nil {
			return nil, p.errorf("bad <dateTime.iso8601>: %v", err)
		}
		return DateTime{t}, nil
	case "base64":
		b, err := decodeBase64(s)
		if err != nil {
			return nil, p.errorf("bad <base64>: %v", err)
		}
		return Base64(b), nil
	case "nil":
		return Nil{}, nil
	}
	return nil, p.errorf("unknown value type <%s>", name)
}

// text collects character data up to the end of the current element.
func (p *parser) text() (string, error) {
	var b strings.Builder
	for {
		tok, err := p.next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), nil
		case xml.StartElement:
			return "", p.errorf("unexpected <%s> in text", t.Name.Local)
		}
	}
}

func (p *parser) array(depth int) (Value, error) {
	arr := Array{}
	tok, err := p.nextTag()
	if err != nil {
		return nil, err
	}
	if t, ok := tok.(xml.EndElement); ok && t.Name.Local == "array" {
		return arr, nil
	}
	if t, ok := tok.(xml.StartElement); !ok || t.Name.Local != "data" {
		return nil, p.errorf("expected <data>, found %s", describe(tok))
	}
	for {
		tok, err := p.nextTag()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if err := p.expectEnd("array"); err != nil {
				return nil, err
			}
			return arr, nil
		case xml.StartElement:
			if t.Name.Local != "value" {
				return nil, p.errorf("unexpected <%s> in array", t.Name.Local)
			}
			v, err := p.value(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	}
}

func (p *parser) structure(depth int) (Value, error) {
	s := Struct{}
	for {
		tok, err := p.nextTag()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return s, nil
		case xml.StartElement:
			if t.Name.Local != "member" {
				return nil, p.errorf("unexpected <%s> in struct", t.Name.Local)
			}
			name, v, err := p.member(depth)
			if err != nil {
				return nil, err
			}
			s.Set(name, v)
		}
	}
}

func (p *parser) member(depth int) (string, Value, error) {
	var (
		name    string
		hasName bool
		v       Value
	)
	for {
		tok, err := p.nextTag()
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if !hasName || v == nil {
				return "", nil, p.errorf("struct member needs a name and a value")
			}
			return name, v, nil
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if name, err = p.text(); err != nil {
					return "", nil, err
				}
				hasName = true
			case "value":
				if v, err = p.value(depth + 1); err != nil {
					return "", nil, err
				}
			default:
				return "", nil, p.errorf("unexpected <%s> in member", t.Name.Local)
			}
		}
	}
}

func (p *parser) fault(v Value) (*Fault, error) {
	s, ok := v.(Struct)
	if !ok {
		return nil, p.errorf("fault value is %s, want struct", v.Kind())
	}
	f := &Fault{}
	switch code, _ := s.Get("faultCode"); c := code.(type) {
	case Int:
		f.Code = int(c)
	case String:
		n, err := strconv.Atoi(strings.TrimSpace(string(c)))
		if err != nil {
			return nil, p.errorf("non-numeric faultCode %q", abbreviate(string(c)))
		}
		f.Code = n
	default:
		return nil, p.errorf("fault has no faultCode")
	}
	if msg, ok := s.Get("faultString"); ok {
		if str, ok := msg.(String); ok {
			f.Message = string(str)
		}
	}
	return f, nil
}

func parseDateTime(s string) (time.Time, error) {
	// WordPress sends all zeros for drafts without a date.
	if strings.HasPrefix(s, "00000000T") || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", abbreviate(s))
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(clean); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
}

func describe(tok xml.Token) string {
	switch t := tok.(type) {
	case xml.StartElement:
		return "<" + t.Name.Local + ">"
	case xml.EndElement:
		return "</" + t.Name.Local + ">"
	case xml.CharData:
		return fmt.Sprintf("text %q", abbreviate(string(t)))
	}
	return fmt.Sprintf("%T", tok)
}

func abbreviate(s string) string {
	const limit = 32
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
