package drawdown

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/constellation2/truthcore/internal/decimal"
)

func dd(s string) *decimal.Decimal {
	d, err := decimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMultiplierBoundaryCases(t *testing.T) {
	cases := []struct {
		ddPct string
		want  string
	}{
		{"0.000000", "1.00"},
		{"-0.049000", "1.00"},
		{"-0.050000", "0.75"},
		{"-0.100000", "0.50"},
		{"-0.150000", "0.25"},
		{"-0.200000", "0.25"},
	}
	for _, c := range cases {
		got := Multiplier(dd(c.ddPct))
		assert.Equal(t, 0, decimal.Cmp(got, dd(c.want)), "dd=%s want=%s got=%s", c.ddPct, c.want, got.String())
	}
}

func TestAllowedCentsSafeIdleExample(t *testing.T) {
	// nav_total=1_000_000 USD -> 100_000_000 cents, drawdown 0 -> multiplier 1.00
	// allowed = floor(100_000_000 * 0.02 * 1.00) = 2_000_000 cents.
	allowed, err := AllowedCents(100_000_000, Multiplier(dd("0.000000")))
	assert.NoError(t, err)
	assert.Equal(t, int64(2_000_000), allowed)
}

func TestAllowedCentsOverCapExample(t *testing.T) {
	// nav_total=1_000_000 USD, drawdown -0.12 -> multiplier 0.50.
	// allowed = floor(100_000_000 * 0.02 * 0.50) = 1_000_000 cents.
	allowed, err := AllowedCents(100_000_000, Multiplier(dd("-0.120000")))
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000_000), allowed)
}
