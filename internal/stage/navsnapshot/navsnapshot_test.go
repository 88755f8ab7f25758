package navsnapshot

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

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunGenesisWhenNoLedgerPointer(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "accounting_nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")

	in := Inputs{AccountingNAVPath: navPath}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "OK", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "GENESIS_NO_PRIOR_PEAK")
	assert.Equal(t, codec.Bool(true), art.Envelope.Body["genesis"])
	assert.Equal(t, codec.DecimalString{Text: "1000000"}, art.Envelope.Body["end_nav"])
	assert.Equal(t, codec.DecimalString{Text: "1000000"}, art.Envelope.Body["peak_nav_to_date"])
	assert.Equal(t, codec.DecimalString{Text: "0.000000"}, art.Envelope.Body["drawdown_pct"])
}

func TestRunNewPeakWhenEndNavExceedsPriorPeak(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "accounting_nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1100000}}`+"\n")

	ledgerPath := filepath.Join(dir, "nav_history_ledger.json")
	writeFile(t, ledgerPath, `{"days":[{"peak_nav_to_date":"1000000"}]}`+"\n")

	pointerPath := filepath.Join(dir, "pointer.json")
	writeFile(t, pointerPath, `{"pointers":{"ledger_path":"`+ledgerPath+`"}}`+"\n")

	in := Inputs{AccountingNAVPath: navPath, LatestLedgerPointerPath: pointerPath}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "OK", art.Envelope.Status)
	assert.NotContains(t, art.Envelope.ReasonCodes, "GENESIS_NO_PRIOR_PEAK")
	assert.Equal(t, codec.Bool(false), art.Envelope.Body["genesis"])
	assert.Equal(t, codec.DecimalString{Text: "1100000"}, art.Envelope.Body["peak_nav_to_date"])
	assert.Equal(t, codec.DecimalString{Text: "0.000000"}, art.Envelope.Body["drawdown_pct"])
}

func TestRunNegativeDrawdownBelowPriorPeak(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "accounting_nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":900000}}`+"\n")

	ledgerPath := filepath.Join(dir, "nav_history_ledger.json")
	writeFile(t, ledgerPath, `{"days":[{"peak_nav_to_date":"1000000"}]}`+"\n")

	pointerPath := filepath.Join(dir, "pointer.json")
	writeFile(t, pointerPath, `{"pointers":{"ledger_path":"`+ledgerPath+`"}}`+"\n")

	in := Inputs{AccountingNAVPath: navPath, LatestLedgerPointerPath: pointerPath}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, codec.Bool(false), art.Envelope.Body["genesis"])
	assert.Equal(t, codec.DecimalString{Text: "1000000"}, art.Envelope.Body["peak_nav_to_date"])
	assert.Equal(t, codec.DecimalString{Text: "-0.100000"}, art.Envelope.Body["drawdown_pct"])
}

func TestRunMissingAccountingNAVFails(t *testing.T) {
	dir := t.TempDir()
	in := Inputs{AccountingNAVPath: filepath.Join(dir, "does-not-exist.json")}

	_, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.Error(t, err)
}
