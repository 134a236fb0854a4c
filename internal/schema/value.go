package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindDecimal
	KindBoolean
	KindTimestamp
)

// Value is the tagged union carried in dynamic rows. Cell values travel as
// Values everywhere inside the core; coercion from wire/driver types happens
// once at the boundary via Coerce.
type Value struct {
	kind    Kind
	text    string
	integer int64
	decimal float64
	boolean bool
	ts      time.Time
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, integer: i} }

// Decimal returns a decimal value.
func Decimal(f float64) Value { return Value{kind: KindDecimal, decimal: f} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Timestamp returns a timestamp value, normalized to UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t.UTC()} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Canonical renders the value as a locale-independent string. Equal logical
// values always produce the same rendering: integers in base 10 without
// grouping, decimals in shortest round-trip form without exponent, timestamps
// in RFC 3339 UTC, null as the empty token. Row hashing depends on this.
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindText:
		return v.text
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindDecimal:
		return strconv.FormatFloat(v.decimal, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	case KindTimestamp:
		return v.ts.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// Native returns the value as a driver-compatible Go type for use as a bound
// query parameter: nil, string, int64, float64, bool or time.Time.
func (v Value) Native() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindInteger:
		return v.integer
	case KindDecimal:
		return v.decimal
	case KindBoolean:
		return v.boolean
	case KindTimestamp:
		return v.ts
	}
	return nil
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	default:
		return v.Native() == o.Native()
	}
}

// MarshalJSON renders the value for the API surface: null, string, number,
// bool, or an RFC 3339 timestamp string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindTimestamp:
		return json.Marshal(v.ts.UTC().Format(time.RFC3339Nano))
	default:
		return json.Marshal(v.Native())
	}
}

// Row is a dynamic row: a mapping from column name to cell value.
type Row map[string]Value

// Clone returns a shallow copy of the row. Values are immutable, so a
// shallow copy is sufficient.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Timestamp string forms accepted at the boundary, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a raw value (JSON-decoded input or database/sql scan
// result) into a Value of the declared type. Unconvertible input is a
// validation failure.
func Coerce(t DataType, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	// Unwrap driver byte slices up front; every type accepts the string form.
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch t {
	case TypeText:
		switch x := raw.(type) {
		case string:
			return Text(x), nil
		}

	case TypeInteger:
		switch x := raw.(type) {
		case int64:
			return Integer(x), nil
		case int:
			return Integer(int64(x)), nil
		case int32:
			return Integer(int64(x)), nil
		case float64:
			// JSON numbers decode as float64; accept integral values only.
			if x == math.Trunc(x) && !math.IsInf(x, 0) {
				return Integer(int64(x)), nil
			}
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return Integer(i), nil
			}
		case string:
			if i, err := strconv.ParseInt(x, 10, 64); err == nil {
				return Integer(i), nil
			}
		}

	case TypeDecimal:
		switch x := raw.(type) {
		case float64:
			return Decimal(x), nil
		case float32:
			return Decimal(float64(x)), nil
		case int64:
			return Decimal(float64(x)), nil
		case int:
			return Decimal(float64(x)), nil
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return Decimal(f), nil
			}
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return Decimal(f), nil
			}
		}

	case TypeBoolean:
		switch x := raw.(type) {
		case bool:
			return Boolean(x), nil
		case int64:
			// SQLite has no native boolean type.
			return Boolean(x != 0), nil
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return Boolean(b), nil
			}
		}

	case TypeTimestamp:
		switch x := raw.(type) {
		case time.Time:
			return Timestamp(x), nil
		case string:
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, x); err == nil {
					return Timestamp(ts), nil
				}
			}
		}

	default:
		return Null(), fmt.Errorf("%w: unknown data type %q", ErrValidation, t)
	}

	return Null(), fmt.Errorf("%w: cannot coerce %T to %s", ErrValidation, raw, t)
}

// CoerceRow converts a raw column→value mapping against the schema's declared
// types. Unknown columns are a validation failure; the schema is the single
// source of truth for expected types.
func CoerceRow(s *SheetSchema, raw map[string]any) (Row, error) {
	row := make(Row, len(raw))
	for name, rv := range raw {
		col, ok := s.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: sheet %q has no column %q", ErrValidation, s.ID, name)
		}
		v, err := Coerce(col.Type, rv)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}
