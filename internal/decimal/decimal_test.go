package decimal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/codec"
)

func TestFixedStringScale6HalfUp(t *testing.T) {
	d, err := Parse("-0.1234565")
	require.NoError(t, err)
	s, err := FixedString(d, Scale6)
	require.NoError(t, err)
	assert.Equal(t, "-0.123457", s)
}

func TestFixedStringScale8(t *testing.T) {
	d, err := Parse("0.1")
	require.NoError(t, err)
	s, err := FixedString(d, Scale8)
	require.NoError(t, err)
	assert.Equal(t, "0.10000000", s)
}

func TestFloorToInt64CapitalAtRiskEnvelope(t *testing.T) {
	// nav_total_cents=1_000_000, pct=0.02, multiplier=0.75 -> floor(15000.00)
	nav := FromInt64(1_000_000)
	pct, err := Parse("0.02")
	require.NoError(t, err)
	mult, err := Parse("0.75")
	require.NoError(t, err)

	step1, err := Mul(nav, pct)
	require.NoError(t, err)
	step2, err := Mul(step1, mult)
	require.NoError(t, err)

	allowed, err := FloorToInt64(step2)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), allowed)
}

func TestFloorToInt64RoundsDown(t *testing.T) {
	d, err := Parse("14999.9999")
	require.NoError(t, err)
	n, err := FloorToInt64(d)
	require.NoError(t, err)
	assert.Equal(t, int64(14999), n)
}

func TestClamp(t *testing.T) {
	lo, _ := Parse("-1")
	hi, _ := Parse("1")

	high, _ := Parse("2.5")
	assert.Equal(t, 0, Clamp(high, lo, hi).Cmp(hi))

	low, _ := Parse("-3.5")
	assert.Equal(t, 0, Clamp(low, lo, hi).Cmp(lo))

	mid, _ := Parse("0.5")
	assert.Equal(t, 0, Clamp(mid, lo, hi).Cmp(mid))
}

func TestQuoRejectsDivisionByZero(t *testing.T) {
	a := FromInt64(1)
	zero := FromInt64(0)
	_, err := Quo(a, zero)
	require.Error(t, err)
}

func TestToValueProducesDecimalString(t *testing.T) {
	d, err := Parse("-0.05")
	require.NoError(t, err)
	v, err := ToValue(d, 6)
	require.NoError(t, err)
	ds, ok := v.(codec.DecimalString)
	require.True(t, ok)
	assert.Equal(t, "-0.050000", ds.Text)
}
