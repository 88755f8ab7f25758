package cliapp

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/gate"
	"github.com/constellation2/truthcore/internal/stage/correlation"
	"github.com/constellation2/truthcore/internal/stage/drawdownpack"
	"github.com/constellation2/truthcore/internal/stage/enginereturns"
	"github.com/constellation2/truthcore/internal/stage/envelope"
	"github.com/constellation2/truthcore/internal/stage/gatestack"
	"github.com/constellation2/truthcore/internal/stage/modelregistry"
	"github.com/constellation2/truthcore/internal/stage/navledger"
	"github.com/constellation2/truthcore/internal/stage/navsnapshot"
	"github.com/constellation2/truthcore/internal/stage/operatorgate"
	"github.com/constellation2/truthcore/internal/stage/pipelinemanifest"
	"github.com/constellation2/truthcore/internal/stage/reconciliation"
	"github.com/constellation2/truthcore/internal/stage/regime"
	"github.com/constellation2/truthcore/internal/stage/stressreplay"
	"github.com/constellation2/truthcore/internal/stage/submissionindex"
	"github.com/constellation2/truthcore/internal/truthpath"
)

// newOrchestrateCmd runs every stage writer for one day in fixed order,
// grounded on run_c2_paper_day_orchestrator_v1.py's _run_stage_strict /
// _run_stage_soft split: the engine model registry gate runs first and
// strict (its failure stops the day, mirroring the Python orchestrator's
// own Stage 0 prerequisite), blocking stages downstream of it are strict
// too, and non-blocking monitoring stages run soft — their failure is
// recorded but does not stop the chain. Unlike the Python original, whose
// tools each rediscover their own inputs from a hard-coded repo layout,
// this port's stage writers take declared inputs as explicit paths, so
// orchestrate resolves upstream-stage inputs from the conventional
// <truth_root>/reports/<kind>/<day>/<kind>.json layout and reads every
// input this binary does not itself produce from one operator-supplied
// directory of well-known file names.
func newOrchestrateCmd() *cobra.Command {
	var externalInputsDir string
	var modelRegistryPath, modelRepoRoot string
	var gateRegistryPath string
	var navTotalCents int64
	var prevDayUTCFlag string
	var submissionsPresent bool

	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Run every stage writer for the day in fixed, fail-closed order",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			ext := func(name string) string { return filepath.Join(externalInputsDir, name) }

			prevDay, err := resolvePrevDay(sc.day, prevDayUTCFlag)
			if err != nil {
				return err
			}

			registryPath := modelRegistryPath
			if registryPath == "" {
				registryPath = ext("engine_model_registry.json")
			}

			var softFailures []string

			// Stage 0: fail-closed prerequisite (Python's Stage 0).
			art, runErr := modelregistry.Run(sc.day, registryPath, modelRepoRoot, sc.prod, sc.validate("#EngineModelRegistryGate"))
			if err := sc.finish(modelregistry.SchemaID, art, runErr); err != nil {
				return err
			}

			navIn := navsnapshot.Inputs{
				AccountingNAVPath:       ext("accounting_nav.json"),
				LatestLedgerPointerPath: ext("latest_ledger_pointer.json"),
			}
			art, runErr = navsnapshot.Run(sc.day, navIn, sc.prod, sc.validate("#NavSnapshot"))
			if err := sc.finish(navsnapshot.SchemaID, art, runErr); err != nil {
				return err
			}

			ledgerIn := navledger.Inputs{
				NavSnapshotRoot: sc.cfg.TruthRoot.Join("reports", navsnapshot.SchemaID),
				SnapshotFile:    navsnapshot.SchemaID + ".json",
			}
			art, runErr = navledger.Run(sc.day, ledgerIn, sc.prod, sc.validate("#NavHistoryLedger"))
			if err := sc.finish(navledger.SchemaID, art, runErr); err != nil {
				return err
			}

			ddIn := drawdownpack.Inputs{
				LedgerPath:    sc.outputPath(navledger.SchemaID),
				NavTotalCents: navTotalCents,
			}
			art, runErr = drawdownpack.Run(sc.day, ddIn, sc.prod, sc.validate("#DrawdownWindowPack"))
			recordSoft("DRAWDOWN_WINDOW_PACK", sc.finish(drawdownpack.SchemaID, art, runErr), &softFailures)

			retIn := enginereturns.Inputs{
				PrevDayUTC:   prevDay,
				AttrPrevPath: ext("engine_attribution_prev.json"),
				AttrCurPath:  ext("engine_attribution_cur.json"),
				NavPrevPath:  sc.outputPathForDay(navsnapshot.SchemaID, prevDay),
			}
			art, runErr = enginereturns.Run(sc.day, retIn, sc.prod, sc.validate("#EngineDailyReturns"))
			recordSoft("ENGINE_DAILY_RETURNS", sc.finish(enginereturns.SchemaID, art, runErr), &softFailures)

			corrIn := correlation.Inputs{
				ReturnsRoot: sc.cfg.TruthRoot.Join("reports", enginereturns.SchemaID),
				ReturnsFile: enginereturns.SchemaID + ".json",
				WindowDays:  sc.cfg.StageDefaults.CorrelationWindowDays,
			}
			art, runErr = correlation.Run(sc.day, corrIn, sc.prod, sc.validate("#EngineCorrelationMatrix"))
			recordSoft("ENGINE_CORRELATION_MATRIX", sc.finish(correlation.SchemaID, art, runErr), &softFailures)

			posVariant, posPath := sc.resolveVariant("positions_snapshot", map[string]string{
				"v3": ext("positions_snapshot_v3.json"),
				"v2": ext("positions_snapshot_v2.json"),
			})
			envIn := envelope.Inputs{
				AllocationSummaryPath: ext("allocation_summary.json"),
				NavPath:               sc.outputPath(navsnapshot.SchemaID),
			}
			if posVariant == "v2" {
				envIn.PositionsSnapshotV2Path = posPath
			} else {
				envIn.PositionsSnapshotV3Path = posPath
			}
			art, runErr = envelope.Run(sc.day, envIn, sc.prod, sc.validate("#CapitalRiskEnvelope"))
			if err := sc.finish(envelope.SchemaID, art, runErr); err != nil {
				return err
			}

			regimeIn := regime.Inputs{
				AccountingNAVPath:          ext("accounting_nav.json"),
				DrawdownSnapshotPath:       sc.outputPath(drawdownpack.SchemaID),
				EngineRiskBudgetLedgerPath: ext("engine_risk_budget_ledger.json"),
				CapitalRiskEnvelopeV2Path:  sc.outputPath(envelope.SchemaID),
				SubmissionsPresent:         submissionsPresent,
				BrokerManifestPath:         ext("broker_manifest.json"),
			}
			art, runErr = regime.Run(sc.day, regimeIn, sc.prod, sc.validate("#RegimeSnapshot"))
			if err := sc.finish(regime.SchemaID, art, runErr); err != nil {
				return err
			}

			reconIn := reconciliation.Inputs{
				ExecEvidenceDayDir: ext("exec_evidence"),
				BrokerEventLogPath: ext("broker_event_log.jsonl"),
				BrokerManifestPath: ext("broker_manifest.json"),
			}
			art, runErr = reconciliation.Run(sc.day, reconIn, sc.prod, sc.validate("#ReconciliationReport"))
			if err := sc.finish(reconciliation.SchemaID, art, runErr); err != nil {
				return err
			}

			subIn := submissionindex.Inputs{ManifestsDayDir: ext("manifests")}
			art, runErr = submissionindex.Run(sc.day, subIn, sc.prod, sc.validate("#SubmissionIndex"))
			recordSoft("SUBMISSION_INDEX", sc.finish(submissionindex.SchemaID, art, runErr), &softFailures)

			opIn := operatorgate.Inputs{
				ReconciliationV3Path:  sc.outputPath(reconciliation.SchemaID),
				PositionsSnapshotPath: posPath,
				AllocationSummaryPath: ext("allocation_summary.json"),
				CapitalRiskEnvelopeV2: sc.outputPath(envelope.SchemaID),
				CashLedgerFailurePath: ext("cash_ledger_failure.json"),
				CashLedgerSnapshot:    ext("cash_ledger_snapshot.json"),
				ExitReconciliationV1:  ext("exit_reconciliation.json"),
				ExitIntentsDayDir:     ext("exit_intents"),
			}
			art, runErr = operatorgate.Run(sc.day, opIn, sc.prod, sc.validate("#OperatorDailyGate"))
			if err := sc.finish(operatorgate.SchemaID, art, runErr); err != nil {
				return err
			}

			stressIn := stressreplay.Inputs{
				EngineDailyReturnsPath:      sc.outputPath(enginereturns.SchemaID),
				EngineCorrelationMatrixPath: sc.outputPath(correlation.SchemaID),
				BrokerReconciliationPath:    sc.outputPath(reconciliation.SchemaID),
			}
			art, runErr = stressreplay.Run(sc.day, stressIn, sc.prod, sc.validate("#StressDriftSentinel"))
			recordSoft("STRESS_DRIFT_SENTINEL", sc.finish(stressreplay.SchemaID, art, runErr), &softFailures)

			regPath := gateRegistryPath
			if regPath == "" {
				regPath = sc.cfg.GateRegistryPath
			}
			reg, err := gate.LoadRegistryYAML(regPath)
			if err != nil {
				return err
			}
			art, runErr = gatestack.Run(sc.day, sc.cfg.TruthRoot, *reg, sc.prod, sc.validate("#GateStackVerdict"))
			if err := sc.finish(gatestack.SchemaID, art, runErr); err != nil {
				return err
			}

			art, runErr = pipelinemanifest.Run(sc.day, stageGraph(sc), sc.prod, sc.validate("#PipelineManifest"))
			if err := sc.finish(pipelinemanifest.SchemaID, art, runErr); err != nil {
				return err
			}

			if len(softFailures) > 0 {
				sc.logger.Warn("ORCHESTRATOR_OK_WITH_SOFT_FAILURES", "stages", fmt.Sprint(softFailures))
			} else {
				sc.logger.Info("ORCHESTRATOR_OK")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&externalInputsDir, "external-inputs-dir", "", "directory of well-known external input files this day's chain reads (required)")
	cmd.Flags().StringVar(&modelRegistryPath, "model-registry-path", "", "path to the engine_model_registry_v1 document (defaults to <external-inputs-dir>/engine_model_registry.json)")
	cmd.Flags().StringVar(&modelRepoRoot, "model-repo-root", ".", "repo root that engine runner paths in the registry resolve against")
	cmd.Flags().StringVar(&gateRegistryPath, "gate-registry-path", "", "path to the gate hierarchy registry YAML (defaults to config's gate_registry_path)")
	cmd.Flags().Int64Var(&navTotalCents, "nav-total-cents", 0, "today's total NAV in integer cents, for the drawdown window pack")
	cmd.Flags().StringVar(&prevDayUTCFlag, "prev-day-utc", "", "the prior trading day's day_utc (defaults to day_utc minus one calendar day)")
	cmd.Flags().BoolVar(&submissionsPresent, "submissions-present", false, "whether the day has any broker submissions")
	_ = cmd.MarkFlagRequired("external-inputs-dir")
	return cmd
}

// recordSoft mirrors _run_stage_soft: a non-blocking stage's failure is
// logged and tracked, never propagated as a hard stop.
func recordSoft(stage string, finishErr error, failures *[]string) {
	if finishErr != nil {
		*failures = append(*failures, stage)
	}
}

// resolvePrevDay returns override if set, else day_utc minus one calendar day.
func resolvePrevDay(day truthpath.DayUTC, override string) (truthpath.DayUTC, error) {
	if override != "" {
		return truthpath.ParseDayUTC(override)
	}
	t, err := time.Parse("2006-01-02", string(day))
	if err != nil {
		return "", fmt.Errorf("orchestrate: parse day_utc %q: %w", day, err)
	}
	return truthpath.DayUTC(t.AddDate(0, 0, -1).Format("2006-01-02")), nil
}
