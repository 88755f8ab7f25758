// Package drawdown implements the fixed drawdown-multiplier table and the
// capital-at-risk envelope formula, grounded on
// test_drawdown_multiplier_boundaries_v1.py's boundary cases and the
// allowed = floor(nav_total_cents * 0.02 * multiplier) rule. Shared by
// stage/drawdownpack (which reports today's multiplier alongside the
// windowed series) and stage/envelope (which evaluates the PASS/FAIL
// verdict against open positions).
package drawdown

import "github.com/constellation2/truthcore/internal/decimal"

var (
	thresholdDeep  = mustParse("-0.150000")
	thresholdMid   = mustParse("-0.100000")
	thresholdLight = mustParse("-0.050000")

	multiplierDeep   = mustParse("0.25")
	multiplierMid    = mustParse("0.50")
	multiplierLight  = mustParse("0.75")
	multiplierNormal = mustParse("1.00")

	riskRate = mustParse("0.02")
)

func mustParse(s string) *decimal.Decimal {
	d, err := decimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Multiplier looks up the capital-at-risk multiplier for a drawdown percent
// already quantized to 6dp: <= -0.15 -> 0.25, <= -0.10 -> 0.50,
// <= -0.05 -> 0.75, otherwise 1.00.
func Multiplier(ddPct *decimal.Decimal) *decimal.Decimal {
	switch {
	case decimal.Cmp(ddPct, thresholdDeep) <= 0:
		return multiplierDeep
	case decimal.Cmp(ddPct, thresholdMid) <= 0:
		return multiplierMid
	case decimal.Cmp(ddPct, thresholdLight) <= 0:
		return multiplierLight
	default:
		return multiplierNormal
	}
}

// AllowedCents computes floor(navTotalCents * 0.02 * multiplier).
func AllowedCents(navTotalCents int64, multiplier *decimal.Decimal) (int64, error) {
	navCents := decimal.FromInt64(navTotalCents)
	scaled, err := decimal.Mul(navCents, riskRate)
	if err != nil {
		return 0, err
	}
	scaled, err = decimal.Mul(scaled, multiplier)
	if err != nil {
		return 0, err
	}
	return decimal.FloorToInt64(scaled)
}
