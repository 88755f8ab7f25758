package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/constellation2/truthcore/internal/errs"
)

var (
	intRe     = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	decimalRe = regexp.MustCompile(`^-?(0|[1-9][0-9]*)\.[0-9]+$`)
)

// Encode produces the canonical bytes for v: sorted object keys, compact
// separators, UTF-8, no trailing newline. The caller is responsible for
// appending the single terminating 0x0A byte required by spec §3.1 — Encode
// itself returns bytes usable directly for hashing (H(obj) is defined over
// bytes without the trailing newline).
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInto(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return errs.New(errs.CanonicalizationFailed, "NULL_VALUE", "null is forbidden in canonical JSON except as an explicit Null{}")
	case Null:
		buf.WriteString("null")
		return nil
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case Int:
		if !intRe.MatchString(val.Text) {
			return errs.New(errs.CanonicalizationFailed, "BAD_INTEGER_LITERAL", fmt.Sprintf("%q is not a canonical integer literal", val.Text))
		}
		buf.WriteString(val.Text)
		return nil
	case DecimalString:
		// Decimal values MUST be carried as JSON strings, never bare numbers.
		if !decimalRe.MatchString(val.Text) && !intRe.MatchString(val.Text) {
			return errs.New(errs.CanonicalizationFailed, "BAD_DECIMAL_LITERAL", fmt.Sprintf("%q is not a canonical base-10 decimal string", val.Text))
		}
		return encodeString(buf, val.Text)
	case String:
		return encodeString(buf, string(val))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeInto(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Object:
		buf.WriteByte('{')
		keys := val.SortedKeys()
		seen := make(map[string]struct{}, len(keys))
		for i, k := range keys {
			normalizedKey := norm.NFC.String(k)
			if _, dup := seen[normalizedKey]; dup {
				return errs.New(errs.CanonicalizationFailed, "DUPLICATE_KEY", fmt.Sprintf("key %q collides with another key after NFC normalization", k))
			}
			seen[normalizedKey] = struct{}{}
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := encodeInto(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	case float32, float64:
		return errs.New(errs.CanonicalizationFailed, "FLOAT_FORBIDDEN", fmt.Sprintf("%v", val))
	default:
		return errs.New(errs.CanonicalizationFailed, "UNSUPPORTED_TYPE", fmt.Sprintf("%T", val))
	}
}

// encodeString writes s as a canonical JSON string: NFC normalized, the
// smallest valid escape for every character, no HTML escaping.
func encodeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var inner bytes.Buffer
	enc := json.NewEncoder(&inner)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return errs.Wrap(errs.CanonicalizationFailed, "STRING_ENCODE_FAILED", s, err)
	}
	out := inner.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}
