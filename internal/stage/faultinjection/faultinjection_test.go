package faultinjection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/envelope"
	"github.com/constellation2/truthcore/internal/stage/operatorgate"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestCapitalRiskEnvelopeFailsClosedOnCorruptAllocationSummary(t *testing.T) {
	dir := t.TempDir()
	allocPath := filepath.Join(dir, "summary.json")
	navPath := filepath.Join(dir, "nav.json")
	posPath := filepath.Join(dir, "positions_snapshot.v3.json")

	writeFile(t, allocPath, `{"summary":{}}`+"\n")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000},"history":{"peak_nav":1000000,"drawdown_abs":0,"drawdown_pct":"0.000000"}}`+"\n")
	writeFile(t, posPath, `{"positions":{"items":[]}}`+"\n")

	Corrupt(t, allocPath)

	_, err := envelope.Run(truthpath.DayUTC("2026-07-30"), envelope.Inputs{
		AllocationSummaryPath:   allocPath,
		NavPath:                 navPath,
		PositionsSnapshotV3Path: posPath,
		PositionsSnapshotV2Path: filepath.Join(dir, "positions_snapshot.v2.json"),
	}, producer.Identity{}, nil)

	RequireFailsClosed(t, err, errs.SchemaInvalid)
}

func TestOperatorGateFailsClosedOnCorruptReconciliationReport(t *testing.T) {
	dir := t.TempDir()
	reconPath := filepath.Join(dir, "reconciliation_report_v3.json")
	writeFile(t, reconPath, `{"status":"OK"}`+"\n")
	Corrupt(t, reconPath)

	in := operatorgate.Inputs{
		ReconciliationV3Path:  reconPath,
		PositionsSnapshotPath: filepath.Join(dir, "positions_snapshot.json"),
		AllocationSummaryPath: filepath.Join(dir, "allocation_summary.json"),
		CapitalRiskEnvelopeV2: filepath.Join(dir, "capital_risk_envelope.v2.json"),
		CashLedgerFailurePath: filepath.Join(dir, "cash_ledger_failure.v1.json"),
		CashLedgerSnapshot:    filepath.Join(dir, "cash_ledger_snapshot.v1.json"),
		ExitReconciliationV1:  filepath.Join(dir, "exit_reconciliation.v1.json"),
		ExitIntentsDayDir:     filepath.Join(dir, "exit_intents", "2026-07-30"),
	}

	_, err := operatorgate.Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)

	RequireFailsClosed(t, err, errs.SchemaInvalid)
}

func TestOperatorGateFailsClosedOnNonObjectExitReconciliation(t *testing.T) {
	dir := t.TempDir()
	exitReconPath := filepath.Join(dir, "exit_reconciliation.v1.json")
	writeFile(t, exitReconPath, `{"obligations":[]}`+"\n")
	CorruptNotObject(t, exitReconPath)

	in := operatorgate.Inputs{
		ReconciliationV3Path:  filepath.Join(dir, "reconciliation_report_v3.json"),
		PositionsSnapshotPath: filepath.Join(dir, "positions_snapshot.json"),
		AllocationSummaryPath: filepath.Join(dir, "allocation_summary.json"),
		CapitalRiskEnvelopeV2: filepath.Join(dir, "capital_risk_envelope.v2.json"),
		CashLedgerFailurePath: filepath.Join(dir, "cash_ledger_failure.v1.json"),
		CashLedgerSnapshot:    filepath.Join(dir, "cash_ledger_snapshot.v1.json"),
		ExitReconciliationV1:  exitReconPath,
		ExitIntentsDayDir:     filepath.Join(dir, "exit_intents", "2026-07-30"),
	}
	writeFile(t, in.ReconciliationV3Path, `{"status":"OK"}`+"\n")

	_, err := operatorgate.Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)

	RequireFailsClosed(t, err, errs.SchemaInvalid)
}

func TestOmitMakesInputAppearMissingNotError(t *testing.T) {
	dir := t.TempDir()
	allocPath := filepath.Join(dir, "summary.json")
	navPath := filepath.Join(dir, "nav.json")
	posPath := filepath.Join(dir, "positions_snapshot.v3.json")

	writeFile(t, allocPath, `{"summary":{}}`+"\n")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000},"history":{"peak_nav":1000000,"drawdown_abs":0,"drawdown_pct":"0.000000"}}`+"\n")
	writeFile(t, posPath, `{"positions":{"items":[]}}`+"\n")

	Omit(t, allocPath)

	art, err := envelope.Run(truthpath.DayUTC("2026-07-30"), envelope.Inputs{
		AllocationSummaryPath:   allocPath,
		NavPath:                 navPath,
		PositionsSnapshotV3Path: posPath,
		PositionsSnapshotV2Path: filepath.Join(dir, "positions_snapshot.v2.json"),
	}, producer.Identity{}, nil)

	require.NoError(t, err)
	require.Contains(t, art.Envelope.ReasonCodes, "B2_ALLOC_SUMMARY_SCHEMA_INVALID")
}
