// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/xmlrpc"
	"github.com/luxfi/xmlrpc/gateway"
)

const paramHelp = `Parameters are typed by prefix:
  i:42        int            d:1.5       double
  b:true      boolean        s:text      string
  t:2024-05-01T08:00:00Z     dateTime.iso8601
  f:path      file contents, streamed as base64
  j:{"a":1}   JSON (objects become structs)
  nil         nil
A bare parameter is an int if it parses as one, a string otherwise.`

// parseParam converts one command-line argument to a value.
func parseParam(arg string) (xmlrpc.Value, error) {
	if arg == "nil" {
		return xmlrpc.Nil{}, nil
	}
	prefix, rest, ok := strings.Cut(arg, ":")
	if !ok || len(prefix) != 1 {
		if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
			return xmlrpc.Int(i), nil
		}
		return xmlrpc.String(arg), nil
	}
	switch prefix {
	case "i":
		i, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int param %q: %w", rest, err)
		}
		return xmlrpc.Int(i), nil
	case "d":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("double param %q: %w", rest, err)
		}
		return xmlrpc.Double(f), nil
	case "b":
		b, err := strconv.ParseBool(rest)
		if err != nil {
			return nil, fmt.Errorf("boolean param %q: %w", rest, err)
		}
		return xmlrpc.Bool(b), nil
	case "s":
		return xmlrpc.String(rest), nil
	case "t":
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "20060102T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, rest); err == nil {
				return xmlrpc.Date(t), nil
			}
		}
		return nil, fmt.Errorf("dateTime param %q: unrecognised format", rest)
	case "f":
		if rest == "" {
			return nil, fmt.Errorf("file param: empty path")
		}
		return xmlrpc.File(rest), nil
	case "j":
		return gateway.ValueFromJSON([]byte(rest))
	default:
		// "x:y" with an unknown prefix is just a string.
		return xmlrpc.String(arg), nil
	}
}

func parseParams(args []string) ([]any, error) {
	params := make([]any, len(args))
	for i, a := range args {
		v, err := parseParam(a)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	return params, nil
}
