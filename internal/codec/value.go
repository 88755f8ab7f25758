// Package codec implements the canonical JSON encoding from spec §3.1: a
// closed algebraic Value type with sorted keys, compact separators, and an
// absolute prohibition on fractional or non-finite numbers. It is the only
// serializer the core ever calls; nothing else in this module is permitted
// to emit JSON via encoding/json directly for artifact bytes.
package codec

import (
	"fmt"
	"sort"
)

// Value is the closed set of types the canonical encoder accepts. There is
// deliberately no Float variant: the type system itself forbids encoding a
// binary float, per the Design Notes in spec.md.
type Value interface {
	isValue()
}

// Null is the JSON null literal.
type Null struct{}

func (Null) isValue() {}

// Bool is a JSON boolean literal.
type Bool bool

func (Bool) isValue() {}

// Int is an arbitrary-precision integer, rendered as a bare JSON number with
// no fractional part or exponent.
type Int struct {
	// Text holds the base-10 digits (optionally "-" prefixed), no leading
	// zeros other than a lone "0".
	Text string
}

func (Int) isValue() {}

// NewInt builds an Int from a native int64.
func NewInt(n int64) Int {
	return Int{Text: fmt.Sprintf("%d", n)}
}

// DecimalString represents a fractional value the spec requires to be
// carried as a base-10 decimal string (e.g. "-0.150000"), never a JSON
// number. It is encoded as a canonical JSON *string*.
type DecimalString struct {
	Text string
}

func (DecimalString) isValue() {}

// String is a JSON string value.
type String string

func (String) isValue() {}

// Array is an ordered JSON array; element order is preserved verbatim.
type Array []Value

func (Array) isValue() {}

// Object is a JSON object. Key order does not matter for construction —
// Encode always emits keys in ascending Unicode codepoint order — but
// Object itself preserves insertion via a map, so SortedKeys is the only
// source of truth for emission order.
type Object map[string]Value

func (Object) isValue() {}

// SortedKeys returns the object's keys sorted by ascending Unicode codepoint
// (i.e. ordinary Go string less-than, which compares by UTF-8 byte which is
// codepoint-order-preserving for valid UTF-8).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
