// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func response(body string) []byte {
	return []byte(`<?xml version="1.0"?><methodResponse><params><param><value>` + body + `</value></param></params></methodResponse>`)
}

func TestDecodeValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Value
	}{
		{"int", "<int>42</int>", Int(42)},
		{"i4", "<i4> -3 </i4>", Int(-3)},
		{"i8", "<i8>9007199254740993</i8>", Int(9007199254740993)},
		{"double", "<double>-0.5</double>", Double(-0.5)},
		{"boolean 1", "<boolean>1</boolean>", Bool(true)},
		{"boolean false", "<boolean>false</boolean>", Bool(false)},
		{"string", "<string>a &lt; b &amp; c</string>", String("a < b & c")},
		{"empty string", "<string/>", String("")},
		{"untyped", "plain text", String("plain text")},
		{"html entity", "<string>caf&eacute;</string>", String("café")},
		{"base64 with newlines", "<base64>aGVs\nbG8=\n</base64>", Base64("hello")},
		{"base64 unpadded", "<base64>aGVsbG8</base64>", Base64("hello")},
		{"nil", "<nil/>", Nil{}},
		{"compact date", "<dateTime.iso8601>20240309T17:04:05</dateTime.iso8601>", DateTime{time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)}},
		{"compact date no colons", "<dateTime.iso8601>20240309T170405</dateTime.iso8601>", DateTime{time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)}},
		{"extended date with zone", "<dateTime.iso8601>2024-03-09T19:04:05+02:00</dateTime.iso8601>", DateTime{time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)}},
		{"zero date", "<dateTime.iso8601>00000000T00:00:00</dateTime.iso8601>", DateTime{}},
		{"empty array", "<array><data></data></array>", Array{}},
		{"nested array", "<array><data><value><int>1</int></value><value><array><data><value>x</value></data></array></value></data></array>", Array{Int(1), Array{String("x")}}},
		{
			"struct keeps order",
			"<struct><member><name>z</name><value><int>1</int></value></member><member><value><string>v</string></value><name>a</name></member></struct>",
			Struct{{Name: "z", Value: Int(1)}, {Name: "a", Value: String("v")}},
		},
		{"whitespace between tags", "\n  <struct>\n  <member>\n <name>k</name>\n <value><boolean>1</boolean></value>\n</member>\n</struct>\n", Struct{{Name: "k", Value: Bool(true)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewResponse(response(tt.body))
			if err != nil {
				t.Fatalf("NewResponse: %v", err)
			}
			if resp.IsFault() {
				t.Fatalf("unexpected fault %v", resp.Fault())
			}
			if !reflect.DeepEqual(resp.Value(), tt.want) {
				t.Errorf("got %#v, want %#v", resp.Value(), tt.want)
			}
		})
	}
}

func TestDecodeFault(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"int code", "<int>403</int>"},
		{"string code", "<string>403</string>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<?xml version="1.0" encoding="UTF-8"?>
<methodResponse>
  <fault>
    <value>
      <struct>
        <member><name>faultCode</name><value>` + tt.code + `</value></member>
        <member><name>faultString</name><value><string>Incorrect username or password.</string></value></member>
      </struct>
    </value>
  </fault>
</methodResponse>`
			resp, err := NewResponse([]byte(doc))
			if err != nil {
				t.Fatalf("NewResponse: %v", err)
			}
			if !resp.IsFault() {
				t.Fatal("want fault")
			}
			if resp.FaultCode() != 403 {
				t.Errorf("FaultCode = %d, want 403", resp.FaultCode())
			}
			if resp.FaultString() != "Incorrect username or password." {
				t.Errorf("FaultString = %q", resp.FaultString())
			}
			if resp.Value() != nil {
				t.Errorf("fault response has value %#v", resp.Value())
			}
			var f *Fault
			if !errors.As(resp.Err(), &f) || f.Code != 403 {
				t.Errorf("Err() = %v", resp.Err())
			}
		})
	}
}

func TestDecodeEmptyParams(t *testing.T) {
	resp, err := NewResponse([]byte(`<methodResponse><params></params></methodResponse>`))
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if _, ok := resp.Value().(Nil); !ok {
		t.Errorf("got %#v, want Nil", resp.Value())
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid := string(response("<int>1</int>"))
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"truncated", valid[:len(valid)/2]},
		{"missing close", strings.TrimSuffix(valid, "</methodResponse>")},
		{"mismatched tags", `<methodResponse><params><param><value><int>1</string></value></param></params></methodResponse>`},
		{"unknown type", string(response("<float>1.0</float>"))},
		{"bad int", string(response("<int>one</int>"))},
		{"bad boolean", string(response("<boolean>yes</boolean>"))},
		{"bad date", string(response("<dateTime.iso8601>yesterday</dateTime.iso8601>"))},
		{"bad base64", string(response("<base64>!!!</base64>"))},
		{"mixed content", string(response("text<int>1</int>"))},
		{"member without name", string(response("<struct><member><value><int>1</int></value></member></struct>"))},
		{"two params", `<methodResponse><params><param><value>a</value></param><param><value>b</value></param></params></methodResponse>`},
		{"fault without code", `<methodResponse><fault><value><struct><member><name>faultString</name><value>x</value></member></struct></value></fault></methodResponse>`},
		{"fault not struct", `<methodResponse><fault><value><int>1</int></value></fault></methodResponse>`},
		{"trailing element", valid + "<extra/>"},
		{"empty response", `<methodResponse></methodResponse>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewResponse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("got response %#v, want error", resp)
			}
			if resp != nil {
				t.Errorf("partial response returned with error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %v is not a *ParseError", err)
			}
		})
	}
}

func TestDecodeNotXMLRPC(t *testing.T) {
	_, err := NewResponse([]byte(`<html><body>Please log in</body></html>`))
	if !errors.Is(err, ErrNotXMLRPC) {
		t.Fatalf("got %v, want ErrNotXMLRPC", err)
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	depth := maxValueDepth + 2
	body := strings.Repeat("<array><data><value>", depth) + "<int>1</int>" + strings.Repeat("</value></data></array>", depth)
	_, err := NewResponse(response(body))
	if err == nil || !strings.Contains(err.Error(), "nested deeper") {
		t.Fatalf("got %v, want depth error", err)
	}
}

func TestDecodeLatin1(t *testing.T) {
	doc := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><methodResponse><params><param><value><string>caf`), 0xE9)
	doc = append(doc, []byte(`</string></value></param></params></methodResponse>`)...)
	resp, err := NewResponse(doc)
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if got := resp.Value(); got != String("café") {
		t.Errorf("got %#v", got)
	}
}

func TestParseRequest(t *testing.T) {
	doc, err := NewRequest("", "wp.getPost", 1, "abc123", []string{"id", "title"}).Encoder().Encode()
	if err != nil {
		t.Fatal(err)
	}
	req, err := ParseRequest(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Method() != "wp.getPost" {
		t.Errorf("Method = %q", req.Method())
	}
	want := []Value{Int(1), String("abc123"), Array{String("id"), String("title")}}
	if !reflect.DeepEqual(req.Params(), want) {
		t.Errorf("Params = %#v, want %#v", req.Params(), want)
	}

	if _, err := ParseRequest(strings.NewReader(`<methodCall><methodName></methodName></methodCall>`)); err == nil {
		t.Error("empty method name accepted")
	}
}
