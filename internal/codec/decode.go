package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/constellation2/truthcore/internal/errs"
)

// Decode parses canonical (or any compliant) JSON bytes into a Value tree.
// It uses json.Number to avoid Go's default float64 promotion, and rejects
// any number containing a fraction or exponent — decoding preserves the
// integer/string distinction the spec requires (spec §3.1).
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "DECODE_FAILED", "", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errs.New(errs.CanonicalizationFailed, "TRAILING_DATA", "decoder did not consume entire input")
	}
	return toValue(raw)
}

func toValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		s := v.String()
		if intRe.MatchString(s) {
			return Int{Text: s}, nil
		}
		return nil, errs.New(errs.CanonicalizationFailed, "FLOAT_FORBIDDEN", fmt.Sprintf("numeric literal %q is not a bare integer; fractional values must be decimal strings", s))
	case []any:
		arr := make(Array, len(v))
		for i, elem := range v {
			val, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = val
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(v))
		for k, elem := range v {
			val, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = val
		}
		return obj, nil
	default:
		return nil, errs.New(errs.CanonicalizationFailed, "UNSUPPORTED_TYPE", fmt.Sprintf("%T", raw))
	}
}

// AsObject asserts v is an Object, returning a typed error otherwise.
func AsObject(v Value) (Object, error) {
	obj, ok := v.(Object)
	if !ok {
		return nil, errs.New(errs.SchemaInvalid, "TOP_LEVEL_NOT_OBJECT", fmt.Sprintf("%T", v))
	}
	return obj, nil
}
