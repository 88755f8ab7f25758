package regime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func baseInputs(t *testing.T, dir string, drawdownPct, riskStatus, capStatus string) Inputs {
	navPath := filepath.Join(dir, "nav.json")
	ddPath := filepath.Join(dir, "nav_snapshot.v1.json")
	riskPath := filepath.Join(dir, "risk_ledger.json")
	capPath := filepath.Join(dir, "cap_envelope.json")

	writeJSON(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")
	writeJSON(t, ddPath, `{"drawdown_pct":"`+drawdownPct+`"}`+"\n")
	writeJSON(t, riskPath, `{"status":"`+riskStatus+`"}`+"\n")
	writeJSON(t, capPath, `{"status":"`+capStatus+`"}`+"\n")

	return Inputs{
		AccountingNAVPath:          navPath,
		DrawdownSnapshotPath:       ddPath,
		EngineRiskBudgetLedgerPath: riskPath,
		CapitalRiskEnvelopeV2Path:  capPath,
		SubmissionsPresent:         false,
	}
}

func TestRunNormalRegimeWhenNoTriggers(t *testing.T) {
	dir := t.TempDir()
	in := baseInputs(t, dir, "0.000000", "OK", "PASS")
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2026-07-30T23:59:59Z", art.Envelope.ProducedUTC)
	assert.Equal(t, codec.String("NORMAL"), art.Envelope.Body["regime_label"])
	assert.Equal(t, codec.Bool(false), art.Envelope.Body["blocking"])
}

func TestRunCrashRegimeOnDeepDrawdown(t *testing.T) {
	dir := t.TempDir()
	in := baseInputs(t, dir, "-0.200000", "OK", "PASS")
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, codec.String("CRASH"), art.Envelope.Body["regime_label"])
	assert.Equal(t, codec.DecimalString{Text: "0.25"}, art.Envelope.Body["risk_multiplier"])
	assert.Equal(t, codec.Bool(true), art.Envelope.Body["blocking"])
	assert.Contains(t, art.Envelope.ReasonCodes, "REGIME_CRASH_DRAWDOWN_LEQ_-0_150000")
}

func TestRunCrashWhenEngineRiskLedgerNotOK(t *testing.T) {
	dir := t.TempDir()
	in := baseInputs(t, dir, "0.000000", "FAIL", "PASS")
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, codec.String("CRASH"), art.Envelope.Body["regime_label"])
	assert.Contains(t, art.Envelope.ReasonCodes, "REGIME_CRASH_ENGINE_RISK_BUDGET_LEDGER_NOT_OK")
}
