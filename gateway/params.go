// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/luxfi/xmlrpc"
)

// ValueFromJSON converts a JSON document to an XML-RPC value. Integral
// numbers become Int, other numbers Double, objects Struct with sorted
// member names.
func ValueFromJSON(raw []byte) (xmlrpc.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode JSON value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode JSON value: trailing data")
	}
	return fromJSON(v)
}

func fromJSON(v any) (xmlrpc.Value, error) {
	switch v := v.(type) {
	case nil:
		return xmlrpc.Nil{}, nil
	case bool:
		return xmlrpc.Bool(v), nil
	case string:
		return xmlrpc.String(v), nil
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			if i, err := v.Int64(); err == nil {
				return xmlrpc.Int(i), nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", v, err)
		}
		return xmlrpc.Double(f), nil
	case []any:
		arr := make(xmlrpc.Array, len(v))
		for i, el := range v {
			x, err := fromJSON(el)
			if err != nil {
				return nil, err
			}
			arr[i] = x
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		st := make(xmlrpc.Struct, 0, len(keys))
		for _, k := range keys {
			x, err := fromJSON(v[k])
			if err != nil {
				return nil, err
			}
			st = append(st, xmlrpc.Member{Name: k, Value: x})
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", v)
	}
}

// paramsFromJSON converts each raw parameter.
func paramsFromJSON(raw []json.RawMessage) ([]any, error) {
	params := make([]any, len(raw))
	for i, r := range raw {
		v, err := ValueFromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		params[i] = v
	}
	return params, nil
}
