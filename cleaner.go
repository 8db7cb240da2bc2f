// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// WordPress sites routinely emit PHP notices before the XML prologue,
// stray control bytes from plugins and trailing debug output. Clean
// repairs those before the bytes reach the parser.

var (
	xmlPrologue = []byte("<?xml")
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
	rootTags    = [][]byte{[]byte("<methodResponse"), []byte("<methodCall")}
	closingTags = [][]byte{[]byte("</methodResponse>"), []byte("</methodCall>")}
)

// Clean removes leading junk before the document, characters XML 1.0
// forbids, and trailing text after the root element. It returns data
// itself when nothing needed removing, and is idempotent.
func Clean(data []byte) []byte {
	out := trimLeading(data)
	switch enc := declaredEncoding(out); {
	case enc == "" || isUTF8Label(enc):
		out = stripInvalidUTF8(out)
	case strings.HasPrefix(enc, "utf-16"), strings.HasPrefix(enc, "ucs-2"):
		// Byte-level cleaning would corrupt a 16-bit encoding.
	default:
		out = stripControlBytes(out)
	}
	return trimTrailing(out)
}

func trimLeading(data []byte) []byte {
	if start := bytes.Index(data, xmlPrologue); start >= 0 {
		// The declaration must come first, so anything but a BOM or
		// whitespace before it is junk.
		prefix := bytes.TrimPrefix(data[:start], utf8BOM)
		if len(bytes.TrimSpace(prefix)) == 0 {
			return data
		}
		return data[start:]
	}
	start := -1
	for _, tag := range rootTags {
		if i := bytes.Index(data, tag); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	if start < 0 {
		return data
	}
	if onlyMisc(bytes.TrimPrefix(data[:start], utf8BOM), true) {
		return data
	}
	return data[start:]
}

func trimTrailing(data []byte) []byte {
	for _, tag := range closingTags {
		i := bytes.LastIndex(data, tag)
		if i < 0 {
			continue
		}
		end := i + len(tag)
		if onlyMisc(data[end:], false) {
			return data
		}
		return data[:end]
	}
	return data
}

// onlyMisc reports whether b holds nothing but whitespace, comments and
// processing instructions, which XML allows around the root element. A
// document type declaration is accepted only before the root.
func onlyMisc(b []byte, prolog bool) bool {
	for {
		b = bytes.TrimSpace(b)
		var closer []byte
		switch {
		case len(b) == 0:
			return true
		case bytes.HasPrefix(b, []byte("<!--")):
			closer = []byte("-->")
		case bytes.HasPrefix(b, []byte("<?")):
			closer = []byte("?>")
		case prolog && bytes.HasPrefix(b, []byte("<!DOCTYPE")):
			closer = []byte(">")
			if i, j := bytes.IndexByte(b, '['), bytes.IndexByte(b, '>'); i >= 0 && i < j {
				closer = []byte("]>")
			}
		default:
			return false
		}
		j := bytes.Index(b, closer)
		if j < 0 {
			return false
		}
		b = b[j+len(closer):]
	}
}

// declaredEncoding returns the lower-cased encoding pseudo-attribute of
// the XML declaration, if any.
func declaredEncoding(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !bytes.HasPrefix(data, xmlPrologue) {
		return ""
	}
	end := bytes.Index(data, []byte("?>"))
	if end < 0 {
		return ""
	}
	decl := data[:end]
	i := bytes.Index(decl, []byte("encoding"))
	if i < 0 {
		return ""
	}
	rest := bytes.TrimLeft(decl[i+len("encoding"):], " \t\r\n")
	if len(rest) == 0 || rest[0] != '=' {
		return ""
	}
	rest = bytes.TrimLeft(rest[1:], " \t\r\n")
	if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
		return ""
	}
	quote := rest[0]
	j := bytes.IndexByte(rest[1:], quote)
	if j < 0 {
		return ""
	}
	return strings.ToLower(string(rest[1 : j+1]))
}

func isUTF8Label(enc string) bool {
	switch enc {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// isXMLChar reports whether r is allowed by the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

func stripInvalidUTF8(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		c := data[i]
		size := 1
		ok := true
		if c < utf8.RuneSelf {
			ok = c >= 0x20 || c == 0x09 || c == 0x0A || c == 0x0D
		} else {
			var r rune
			r, size = utf8.DecodeRune(data[i:])
			ok = !(r == utf8.RuneError && size == 1) && isXMLChar(r)
		}
		if !ok && out == nil {
			out = make([]byte, i, len(data))
			copy(out, data[:i])
		}
		if ok && out != nil {
			out = append(out, data[i:i+size]...)
		}
		i += size
	}
	if out == nil {
		return data
	}
	return out
}

func stripControlBytes(data []byte) []byte {
	var out []byte
	for i, c := range data {
		ok := c >= 0x20 || c == 0x09 || c == 0x0A || c == 0x0D
		if !ok && out == nil {
			out = make([]byte, i, len(data))
			copy(out, data[:i])
		}
		if ok && out != nil {
			out = append(out, c)
		}
	}
	if out == nil {
		return data
	}
	return out
}
