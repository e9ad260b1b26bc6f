// Package models contains domain types for loom-engine.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates the Value sum type.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
)

// String returns the kind name for logging.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a tagged cell value. Every non-null value retains the raw string it
// was parsed from; semantic typing is a property of the column, not the cell.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	t    time.Time
	raw  string
}

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool creates a boolean value with its raw representation.
func Bool(b bool, raw string) Value {
	return Value{kind: KindBool, b: b, raw: raw}
}

// Int creates an integer value with its raw representation.
func Int(i int64, raw string) Value {
	return Value{kind: KindInt, i: i, raw: raw}
}

// Float creates a float value with its raw representation.
func Float(f float64, raw string) Value {
	return Value{kind: KindFloat, f: f, raw: raw}
}

// String creates a string value.
func String(s string) Value {
	return Value{kind: KindString, raw: s}
}

// Date creates a date value with its raw representation.
func Date(t time.Time, raw string) Value {
	return Value{kind: KindDate, t: t, raw: raw}
}

// Kind returns the value's kind.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull reports whether the value is null. Empty strings and the common
// null spellings count as null so that parser output behaves uniformly.
func (v Value) IsNull() bool {
	if v.kind == KindNull {
		return true
	}
	if v.kind == KindString {
		s := strings.TrimSpace(v.raw)
		if s == "" {
			return true
		}
		switch strings.ToLower(s) {
		case "null", "nil", "na", "n/a":
			return true
		}
	}
	return false
}

// Raw returns the raw string representation. Null values yield "".
func (v Value) Raw() string {
	if v.kind == KindNull {
		return ""
	}
	return v.raw
}

// AsFloat attempts a numeric reading of the value. Commas (en-US grouping)
// are tolerated for string values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool, KindNull, KindDate:
		return 0, false
	default:
		s := strings.ReplaceAll(strings.TrimSpace(v.raw), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
}

// AsTime returns the time for date values.
func (v Value) AsTime() (time.Time, bool) {
	if v.kind == KindDate {
		return v.t, true
	}
	return time.Time{}, false
}

// AsBool returns the boolean for bool values.
func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

// Equal compares two values by kind and raw representation.
func (v Value) Equal(o Value) bool {
	if v.IsNull() && o.IsNull() {
		return true
	}
	return v.kind == o.kind && v.raw == o.raw
}

// MarshalJSON emits the primitive representation: null, bool, number, or
// string. Dates serialise as their raw string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	default:
		return json.Marshal(v.raw)
	}
}

// UnmarshalJSON reads a primitive back into the sum type. Numbers become
// KindInt when integral, KindFloat otherwise.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = Null()
		return nil
	}

	var raw any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}

	switch x := raw.(type) {
	case bool:
		*v = Bool(x, trimmed)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			*v = Int(i, x.String())
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("decode number %q: %w", x.String(), err)
		}
		*v = Float(f, x.String())
	case string:
		*v = String(x)
	default:
		// Nested objects/arrays are stored as their JSON text.
		*v = String(trimmed)
	}
	return nil
}
