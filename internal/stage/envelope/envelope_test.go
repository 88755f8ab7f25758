package envelope

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

func baseInputs(t *testing.T, dir string) (Inputs, string) {
	allocPath := filepath.Join(dir, "summary.json")
	navPath := filepath.Join(dir, "nav.json")
	posPath := filepath.Join(dir, "positions_snapshot.v3.json")

	writeJSON(t, allocPath, `{"summary":{}}`+"\n")
	writeJSON(t, navPath, `{"nav":{"nav_total":1000000},"history":{"peak_nav":1000000,"drawdown_abs":0,"drawdown_pct":"0.000000"}}`+"\n")

	return Inputs{
		AllocationSummaryPath:   allocPath,
		NavPath:                 navPath,
		PositionsSnapshotV3Path: posPath,
		PositionsSnapshotV2Path: filepath.Join(dir, "positions_snapshot.v2.json"),
	}, posPath
}

func TestRunSafeIdleEmptyPositionsPasses(t *testing.T) {
	dir := t.TempDir()
	in, posPath := baseInputs(t, dir)
	writeJSON(t, posPath, `{"positions":{"items":[]}}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "PASS", art.Envelope.Status)
	checks, _ := art.Envelope.Body["checks"].(codec.Object)
	assert.Equal(t, codec.Bool(true), checks["portfolio_within_envelope"])
}

func TestRunFailsClosedWhenOpenPositionMissingMaxLoss(t *testing.T) {
	dir := t.TempDir()
	in, posPath := baseInputs(t, dir)
	writeJSON(t, posPath, `{"positions":{"items":[
		{"position_id":"p1","engine_id":"e1","status":"OPEN","market_exposure_type":"LONG"}
	]}}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "B2_OPEN_POSITION_MISSING_MAX_LOSS_FAILCLOSED")
}

func TestRunFailsWhenRiskSumExceedsEnvelope(t *testing.T) {
	dir := t.TempDir()
	in, posPath := baseInputs(t, dir)
	writeJSON(t, posPath, `{"positions":{"items":[
		{"position_id":"p1","engine_id":"e1","status":"OPEN","market_exposure_type":"LONG","max_loss_cents":5000000}
	]}}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "B2_PORTFOLIO_CAPITAL_AT_RISK_EXCEEDS_ENVELOPE")
	envelopeBlock, _ := art.Envelope.Body["envelope"].(codec.Object)
	assert.Equal(t, codec.NewInt(2000000), envelopeBlock["allowed_capital_at_risk_cents"])
}

func TestRunFailsClosedWhenDrawdownMissing(t *testing.T) {
	dir := t.TempDir()
	in, posPath := baseInputs(t, dir)
	writeJSON(t, in.NavPath, `{"nav":{"nav_total":1000000},"history":{}}`+"\n")
	writeJSON(t, posPath, `{"positions":{"items":[]}}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "B2_DRAWDOWN_MISSING_FAILCLOSED")
}
