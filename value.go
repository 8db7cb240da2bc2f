// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Kind identifies the XML-RPC type carried by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNil
	KindInt
	KindDouble
	KindBool
	KindString
	KindDateTime
	KindBase64
	KindArray
	KindStruct
	KindFile
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindNil:      "nil",
	KindInt:      "int",
	KindDouble:   "double",
	KindBool:     "boolean",
	KindString:   "string",
	KindDateTime: "dateTime.iso8601",
	KindBase64:   "base64",
	KindArray:    "array",
	KindStruct:   "struct",
	KindFile:     "file",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is an XML-RPC value. The set of implementations is closed:
//
//	      Go type | XML-RPC
//	--------------+--------------------------------------------
//	          Int | <int> (decodes <int>, <i4> and <i8>)
//	       Double | <double>
//	         Bool | <boolean>
//	       String | <string>, or an untyped <value>
//	     DateTime | <dateTime.iso8601>
//	       Base64 | <base64>
//	        Array | <array><data>...</data></array>
//	       Struct | <struct><member>...</member></struct>
//	          Nil | <nil/>
//	         File | <base64>, streamed from disk (encode only)
//	      Invalid | placeholder <string></string> (encode only)
type Value interface {
	Kind() Kind
	// Interface returns the value as plain Go data.
	Interface() any

	isValue()
}

type (
	Int    int64
	Double float64
	Bool   bool
	String string
	Base64 []byte
	Array  []Value
	Nil    struct{}

	// DateTime is an XML-RPC date. The wire format has second
	// precision and no zone; values are sent and decoded as UTC.
	DateTime struct{ time.Time }

	// File is the path of a file whose contents are sent as <base64>.
	// The file is read while the request is encoded, so very large
	// uploads never sit in memory when streaming encoding is used.
	File string

	// Invalid holds the type name of a Go value that has no XML-RPC
	// mapping. It is encoded as an empty string.
	Invalid struct{ Type string }
)

// Member is one named field of a Struct.
type Member struct {
	Name  string
	Value Value
}

// Struct is an XML-RPC struct. Members keep insertion order.
type Struct []Member

func (Int) Kind() Kind      { return KindInt }
func (Double) Kind() Kind   { return KindDouble }
func (Bool) Kind() Kind     { return KindBool }
func (String) Kind() Kind   { return KindString }
func (DateTime) Kind() Kind { return KindDateTime }
func (Base64) Kind() Kind   { return KindBase64 }
func (Array) Kind() Kind    { return KindArray }
func (Struct) Kind() Kind   { return KindStruct }
func (Nil) Kind() Kind      { return KindNil }
func (File) Kind() Kind     { return KindFile }
func (Invalid) Kind() Kind  { return KindInvalid }

func (v Int) Interface() any      { return int64(v) }
func (v Double) Interface() any   { return float64(v) }
func (v Bool) Interface() any     { return bool(v) }
func (v String) Interface() any   { return string(v) }
func (v DateTime) Interface() any { return v.Time }
func (v Base64) Interface() any   { return []byte(v) }
func (Nil) Interface() any        { return nil }
func (v File) Interface() any     { return string(v) }
func (Invalid) Interface() any    { return nil }

func (v Array) Interface() any {
	out := make([]any, len(v))
	for i, e := range v {
		out[i] = interfaceOf(e)
	}
	return out
}

func (v Struct) Interface() any {
	out := make(map[string]any, len(v))
	for _, m := range v {
		out[m.Name] = interfaceOf(m.Value)
	}
	return out
}

func (Int) isValue()      {}
func (Double) isValue()   {}
func (Bool) isValue()     {}
func (String) isValue()   {}
func (DateTime) isValue() {}
func (Base64) isValue()   {}
func (Array) isValue()    {}
func (Struct) isValue()   {}
func (Nil) isValue()      {}
func (File) isValue()     {}
func (Invalid) isValue()  {}

func interfaceOf(v Value) any {
	if v == nil {
		return nil
	}
	return v.Interface()
}

// Date returns t as a DateTime, truncated to the wire precision.
func Date(t time.Time) DateTime {
	return DateTime{t.UTC().Truncate(time.Second)}
}

// Get returns the value of the named member.
func (s Struct) Get(name string) (Value, bool) {
	for _, m := range s {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Set replaces the named member, or appends it when absent.
func (s *Struct) Set(name string, v Value) {
	for i := range *s {
		if (*s)[i].Name == name {
			(*s)[i].Value = v
			return
		}
	}
	*s = append(*s, Member{Name: name, Value: v})
}

// Keys returns member names in order.
func (s Struct) Keys() []string {
	keys := make([]string, len(s))
	for i, m := range s {
		keys[i] = m.Name
	}
	return keys
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	valueType = reflect.TypeOf((*Value)(nil)).Elem()
)

// ValueOf converts a Go value to a Value. Conversion is lenient: a
// value with no XML-RPC mapping becomes Invalid instead of failing, and
// is later encoded as a placeholder.
//
// Maps become structs with keys in sorted order; Go structs keep field
// declaration order and honour `xmlrpc:"name"` tags ("-" skips a field).
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Nil{}
	case Value:
		return x
	case int:
		return Int(x)
	case int64:
		return Int(x)
	case int32:
		return Int(x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case float64:
		return Double(x)
	case []byte:
		return Base64(x)
	case time.Time:
		return Date(x)
	case []any:
		arr := make(Array, len(x))
		for i, e := range x {
			arr[i] = ValueOf(e)
		}
		return arr
	case map[string]any:
		return structOfMap(reflect.ValueOf(x))
	}
	return valueOfReflect(reflect.ValueOf(v))
}

func valueOfReflect(rv reflect.Value) Value {
	if !rv.IsValid() {
		return Nil{}
	}
	if rv.Type().Implements(valueType) && rv.CanInterface() {
		if rv.Kind() == reflect.Interface && rv.IsNil() {
			return Nil{}
		}
		return rv.Interface().(Value)
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Nil{}
		}
		return valueOfReflect(rv.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Invalid{Type: rv.Type().String()}
		}
		return Int(int64(u))
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.String:
		return String(rv.String())
	case reflect.Slice:
		if rv.IsNil() {
			return Nil{}
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Base64(rv.Bytes())
		}
		fallthrough
	case reflect.Array:
		arr := make(Array, rv.Len())
		for i := range arr {
			arr[i] = valueOfReflect(rv.Index(i))
		}
		return arr
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Invalid{Type: rv.Type().String()}
		}
		return structOfMap(rv)
	case reflect.Struct:
		if rv.Type() == timeType || rv.Type().ConvertibleTo(timeType) {
			return Date(rv.Convert(timeType).Interface().(time.Time))
		}
		return structOfStruct(rv)
	}
	return Invalid{Type: rv.Type().String()}
}

func structOfMap(rv reflect.Value) Struct {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	s := make(Struct, 0, len(keys))
	for _, k := range keys {
		s = append(s, Member{Name: k.String(), Value: valueOfReflect(rv.MapIndex(k))})
	}
	return s
}

func structOfStruct(rv reflect.Value) Struct {
	t := rv.Type()
	s := make(Struct, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		omitEmpty := false
		if tag, ok := f.Tag.Lookup("xmlrpc"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		s = append(s, Member{Name: name, Value: valueOfReflect(fv)})
	}
	return s
}
