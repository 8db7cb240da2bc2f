// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/xmlrpc"
)

// printValue writes v as indented text, or as JSON when asJSON is set.
func printValue(w io.Writer, v xmlrpc.Value, asJSON bool) error {
	if asJSON {
		return printJSON(w, v.Interface())
	}
	var b strings.Builder
	formatValue(&b, v, 0)
	_, err := io.WriteString(w, b.String())
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatValue(b *strings.Builder, v xmlrpc.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := v.(type) {
	case xmlrpc.Array:
		if len(v) == 0 {
			b.WriteString(indent + "[]\n")
			return
		}
		for _, el := range v {
			if isScalar(el) {
				b.WriteString(indent + "- " + scalar(el) + "\n")
				continue
			}
			b.WriteString(indent + "-\n")
			formatValue(b, el, depth+1)
		}
	case xmlrpc.Struct:
		if len(v) == 0 {
			b.WriteString(indent + "{}\n")
			return
		}
		for _, m := range v {
			if isScalar(m.Value) {
				b.WriteString(indent + m.Name + ": " + scalar(m.Value) + "\n")
				continue
			}
			b.WriteString(indent + m.Name + ":\n")
			formatValue(b, m.Value, depth+1)
		}
	default:
		b.WriteString(indent + scalar(v) + "\n")
	}
}

func isScalar(v xmlrpc.Value) bool {
	switch v.(type) {
	case xmlrpc.Array, xmlrpc.Struct:
		return false
	}
	return true
}

func scalar(v xmlrpc.Value) string {
	switch v := v.(type) {
	case xmlrpc.Int:
		return strconv.FormatInt(int64(v), 10)
	case xmlrpc.Double:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case xmlrpc.Bool:
		return strconv.FormatBool(bool(v))
	case xmlrpc.String:
		return string(v)
	case xmlrpc.DateTime:
		return v.Format(time.RFC3339)
	case xmlrpc.Base64:
		const show = 48
		enc := base64.StdEncoding.EncodeToString(v)
		if len(enc) > show {
			enc = enc[:show] + "..."
		}
		return fmt.Sprintf("<%d bytes> %s", len(v), enc)
	case xmlrpc.Nil, nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
