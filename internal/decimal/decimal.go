// Package decimal wraps github.com/cockroachdb/apd/v3 with the
// quantization rules and fixed tables from spec §4.4: returns/Sharpe at 8
// decimal places, ratios like drawdown percent at 6, half-up rounding
// throughout, and never a float64 in sight. apd.Decimal is already pulled
// transitively by the CUE toolchain; this package promotes it to a direct,
// purposeful dependency instead of leaving it unexercised.
package decimal

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
)

// ctx is the shared rounding context: half-up, per spec §4.4's
// "8 decimal places, half-up" / "6 decimal places, half-up" rule.
var ctx = apd.BaseContext.WithPrecision(60)

func init() {
	ctx.Rounding = apd.RoundHalfUp
}

// Scale8 and Scale6 are the two quantization exponents the spec names.
const (
	Scale8 = -8
	Scale6 = -6
)

// Decimal is an alias for apd.Decimal so callers outside this package never
// need to import cockroachdb/apd/v3 directly.
type Decimal = apd.Decimal

// Parse builds a *apd.Decimal from a base-10 string.
func Parse(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "BAD_DECIMAL", s, err)
	}
	return d, nil
}

// FromInt64 builds an exact integer *apd.Decimal.
func FromInt64(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

// Quantize rounds d to the given (negative) exponent using half-up
// rounding, e.g. Quantize(d, Scale6) keeps 6 digits after the point.
func Quantize(d *apd.Decimal, scale int32) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Quantize(out, d, scale); err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "QUANTIZE_FAILED", d.String(), err)
	}
	return out, nil
}

// Add, Sub, Mul, Quo perform exact decimal arithmetic under the shared
// context. Division by zero returns a typed error rather than panicking or
// producing Inf, since the spec forbids non-finite numbers outright.
func Add(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := ctx.Add(out, a, b)
	return out, err
}

func Sub(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := ctx.Sub(out, a, b)
	return out, err
}

func Mul(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	_, err := ctx.Mul(out, a, b)
	return out, err
}

func Quo(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, errs.New(errs.PolicyViolation, "DIV0", "division by zero")
	}
	out := new(apd.Decimal)
	_, err := ctx.Quo(out, a, b)
	return out, err
}

// Cmp compares a and b (-1, 0, 1), matching (*apd.Decimal).Cmp semantics.
func Cmp(a, b *apd.Decimal) int {
	return a.Cmp(b)
}

// Sqrt computes the non-negative square root of d under the shared
// context. Used by the Pearson correlation denominator so the whole
// computation stays in apd.Decimal — never a float64 square root.
func Sqrt(d *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Sqrt(out, d); err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "SQRT_FAILED", d.String(), err)
	}
	return out, nil
}

// Clamp restricts d to [lo, hi].
func Clamp(d, lo, hi *apd.Decimal) *apd.Decimal {
	if d.Cmp(lo) < 0 {
		return lo
	}
	if d.Cmp(hi) > 0 {
		return hi
	}
	return d
}

// FloorToInt64 truncates d toward negative infinity and returns the result
// as an int64, used for the capital-at-risk envelope's
// floor(nav_total_cents * 0.02 * multiplier) computation.
func FloorToInt64(d *apd.Decimal) (int64, error) {
	rounded := new(apd.Decimal)
	floorCtx := ctx.WithPrecision(ctx.Precision)
	floorCtx.Rounding = apd.RoundFloor
	if _, err := floorCtx.Quantize(rounded, d, 0); err != nil {
		return 0, errs.Wrap(errs.CanonicalizationFailed, "FLOOR_FAILED", d.String(), err)
	}
	n, err := rounded.Int64()
	if err != nil {
		return 0, errs.Wrap(errs.CanonicalizationFailed, "OVERFLOW", rounded.String(), err)
	}
	return n, nil
}

// FixedString renders d with exactly `scale` digits after the decimal
// point, e.g. "-0.150000" for scale=6. It never uses scientific notation.
func FixedString(d *apd.Decimal, scale int32) (string, error) {
	q, err := Quantize(d, -scale)
	if err != nil {
		return "", err
	}
	return q.Text('f'), nil
}

// ToValue renders d as a codec.DecimalString at the given scale, ready to
// embed in a canonical JSON document.
func ToValue(d *apd.Decimal, scale int32) (codec.Value, error) {
	s, err := FixedString(d, scale)
	if err != nil {
		return nil, err
	}
	return codec.DecimalString{Text: s}, nil
}
