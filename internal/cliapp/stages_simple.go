package cliapp

import (
	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/stage/correlation"
	"github.com/constellation2/truthcore/internal/stage/drawdownpack"
	"github.com/constellation2/truthcore/internal/stage/enginereturns"
	"github.com/constellation2/truthcore/internal/stage/envelope"
	"github.com/constellation2/truthcore/internal/stage/modelregistry"
	"github.com/constellation2/truthcore/internal/stage/navledger"
	"github.com/constellation2/truthcore/internal/stage/navsnapshot"
	"github.com/constellation2/truthcore/internal/stage/operatorgate"
	"github.com/constellation2/truthcore/internal/stage/reconciliation"
	"github.com/constellation2/truthcore/internal/stage/regime"
	"github.com/constellation2/truthcore/internal/stage/stressreplay"
	"github.com/constellation2/truthcore/internal/stage/submissionindex"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func newNavSnapshotCmd() *cobra.Command {
	var in navsnapshot.Inputs
	cmd := &cobra.Command{
		Use:   "nav-snapshot",
		Short: "Write the day's nav_snapshot artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := navsnapshot.Run(sc.day, in, sc.prod, sc.validate("#NavSnapshot"))
			return sc.finish(navsnapshot.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.AccountingNAVPath, "accounting-nav-path", "", "path to the day's accounting NAV artifact")
	cmd.Flags().StringVar(&in.LatestLedgerPointerPath, "latest-ledger-pointer-path", "", "path to the latest nav_history_ledger pointer")
	return cmd
}

func newNavLedgerCmd() *cobra.Command {
	var in navledger.Inputs
	cmd := &cobra.Command{
		Use:   "nav-ledger",
		Short: "Write the nav_history_ledger artifact as of the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := navledger.Run(sc.day, in, sc.prod, sc.validate("#NavHistoryLedger"))
			return sc.finish(navledger.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.NavSnapshotRoot, "nav-snapshot-root", "", "directory containing one subdir per nav_snapshot day")
	cmd.Flags().StringVar(&in.SnapshotFile, "snapshot-file", "nav_snapshot.json", "file name within each day's snapshot subdir")
	return cmd
}

func newDrawdownPackCmd() *cobra.Command {
	var in drawdownpack.Inputs
	cmd := &cobra.Command{
		Use:   "drawdown-pack",
		Short: "Write the drawdown_window_pack artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := drawdownpack.Run(sc.day, in, sc.prod, sc.validate("#DrawdownWindowPack"))
			return sc.finish(drawdownpack.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.LedgerPath, "ledger-path", "", "path to the nav_history_ledger artifact")
	cmd.Flags().Int64Var(&in.NavTotalCents, "nav-total-cents", 0, "today's total NAV in integer cents")
	return cmd
}

func newEngineReturnsCmd() *cobra.Command {
	var in enginereturns.Inputs
	var prevDay string
	cmd := &cobra.Command{
		Use:   "engine-returns",
		Short: "Write the engine_daily_returns artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			if prevDay != "" {
				d, perr := truthpath.ParseDayUTC(prevDay)
				if perr != nil {
					return perr
				}
				in.PrevDayUTC = d
			}
			art, runErr := enginereturns.Run(sc.day, in, sc.prod, sc.validate("#EngineDailyReturns"))
			return sc.finish(enginereturns.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&prevDay, "prev-day-utc", "", "the prior trading day's day_utc")
	cmd.Flags().StringVar(&in.AttrPrevPath, "attr-prev-path", "", "path to the prior day's engine attribution snapshot")
	cmd.Flags().StringVar(&in.AttrCurPath, "attr-cur-path", "", "path to today's engine attribution snapshot")
	cmd.Flags().StringVar(&in.NavPrevPath, "nav-prev-path", "", "path to the prior day's nav_snapshot artifact")
	return cmd
}

func newCorrelationCmd() *cobra.Command {
	var in correlation.Inputs
	cmd := &cobra.Command{
		Use:   "correlation",
		Short: "Write the engine_correlation_matrix artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			if in.WindowDays <= 0 {
				in.WindowDays = sc.cfg.StageDefaults.CorrelationWindowDays
			}
			art, runErr := correlation.Run(sc.day, in, sc.prod, sc.validate("#EngineCorrelationMatrix"))
			return sc.finish(correlation.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.ReturnsRoot, "returns-root", "", "directory containing one subdir per engine_daily_returns day")
	cmd.Flags().StringVar(&in.ReturnsFile, "returns-file", "engine_daily_returns.json", "file name within each day's returns subdir")
	cmd.Flags().IntVar(&in.WindowDays, "window-days", 0, "trailing window size (defaults to config's correlation_window_days)")
	return cmd
}

func newRegimeCmd() *cobra.Command {
	var in regime.Inputs
	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Write the regime_snapshot artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := regime.Run(sc.day, in, sc.prod, sc.validate("#RegimeSnapshot"))
			return sc.finish(regime.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.AccountingNAVPath, "accounting-nav-path", "", "path to the day's accounting NAV artifact")
	cmd.Flags().StringVar(&in.DrawdownSnapshotPath, "drawdown-snapshot-path", "", "path to the day's drawdown_window_pack artifact")
	cmd.Flags().StringVar(&in.EngineRiskBudgetLedgerPath, "engine-risk-budget-ledger-path", "", "path to the engine risk budget ledger")
	cmd.Flags().StringVar(&in.CapitalRiskEnvelopeV2Path, "capital-risk-envelope-path", "", "path to the day's capital_risk_envelope artifact")
	cmd.Flags().BoolVar(&in.SubmissionsPresent, "submissions-present", false, "whether the day has any broker submissions")
	cmd.Flags().StringVar(&in.BrokerManifestPath, "broker-manifest-path", "", "path to the day's broker submission manifest (only consulted when submissions-present)")
	return cmd
}

func newReconciliationCmd() *cobra.Command {
	var in reconciliation.Inputs
	cmd := &cobra.Command{
		Use:   "reconciliation",
		Short: "Write the reconciliation_report artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := reconciliation.Run(sc.day, in, sc.prod, sc.validate("#ReconciliationReport"))
			return sc.finish(reconciliation.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.ExecEvidenceDayDir, "exec-evidence-day-dir", "", "directory of the day's execution evidence submissions")
	cmd.Flags().StringVar(&in.BrokerEventLogPath, "broker-event-log-path", "", "path to the day's broker event log")
	cmd.Flags().StringVar(&in.BrokerManifestPath, "broker-manifest-path", "", "path to the day's broker submission manifest")
	return cmd
}

func newSubmissionIndexCmd() *cobra.Command {
	var in submissionindex.Inputs
	cmd := &cobra.Command{
		Use:   "submission-index",
		Short: "Write the submission_index artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := submissionindex.Run(sc.day, in, sc.prod, sc.validate("#SubmissionIndex"))
			return sc.finish(submissionindex.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.ManifestsDayDir, "manifests-day-dir", "", "directory of the day's *.manifest.json submission manifests")
	return cmd
}

func newEnvelopeCmd() *cobra.Command {
	var in envelope.Inputs
	var posV3Path, posV2Path string
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "Write the capital_risk_envelope artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			variant, path := sc.resolveVariant("positions_snapshot", map[string]string{"v3": posV3Path, "v2": posV2Path})
			if variant == "v2" {
				in.PositionsSnapshotV2Path = path
			} else {
				in.PositionsSnapshotV3Path = path
			}
			art, runErr := envelope.Run(sc.day, in, sc.prod, sc.validate("#CapitalRiskEnvelope"))
			return sc.finish(envelope.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.AllocationSummaryPath, "allocation-summary-path", "", "path to the day's allocation summary")
	cmd.Flags().StringVar(&in.NavPath, "nav-path", "", "path to the day's nav_snapshot artifact")
	cmd.Flags().StringVar(&posV3Path, "positions-snapshot-v3-path", "", "path to the day's v3 positions snapshot")
	cmd.Flags().StringVar(&posV2Path, "positions-snapshot-v2-path", "", "path to the day's v2 positions snapshot")
	return cmd
}

func newOperatorGateCmd() *cobra.Command {
	var in operatorgate.Inputs
	var posV3Path, posV2Path string
	cmd := &cobra.Command{
		Use:   "operator-gate",
		Short: "Write the operator_daily_gate artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			_, in.PositionsSnapshotPath = sc.resolveVariant("positions_snapshot", map[string]string{"v3": posV3Path, "v2": posV2Path})
			art, runErr := operatorgate.Run(sc.day, in, sc.prod, sc.validate("#OperatorDailyGate"))
			return sc.finish(operatorgate.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.ReconciliationV3Path, "reconciliation-v3-path", "", "path to the day's reconciliation_report artifact")
	cmd.Flags().StringVar(&posV3Path, "positions-snapshot-v3-path", "", "path to the day's v3 positions snapshot")
	cmd.Flags().StringVar(&posV2Path, "positions-snapshot-v2-path", "", "path to the day's v2 positions snapshot")
	cmd.Flags().StringVar(&in.AllocationSummaryPath, "allocation-summary-path", "", "path to the day's allocation summary")
	cmd.Flags().StringVar(&in.CapitalRiskEnvelopeV2, "capital-risk-envelope-path", "", "path to the day's capital_risk_envelope artifact")
	cmd.Flags().StringVar(&in.CashLedgerFailurePath, "cash-ledger-failure-path", "", "path to the day's cash ledger failure artifact, if any")
	cmd.Flags().StringVar(&in.CashLedgerSnapshot, "cash-ledger-snapshot-path", "", "path to the day's cash ledger snapshot")
	cmd.Flags().StringVar(&in.ExitReconciliationV1, "exit-reconciliation-path", "", "path to the day's exit reconciliation artifact")
	cmd.Flags().StringVar(&in.ExitIntentsDayDir, "exit-intents-day-dir", "", "directory of the day's exit intents")
	return cmd
}

func newModelRegistryCmd() *cobra.Command {
	var registryPath, repoRoot string
	cmd := &cobra.Command{
		Use:   "model-registry",
		Short: "Write the engine_model_registry_gate artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := modelregistry.Run(sc.day, registryPath, repoRoot, sc.prod, sc.validate("#EngineModelRegistryGate"))
			return sc.finish(modelregistry.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry-path", "", "path to the engine_model_registry_v1 document")
	cmd.Flags().StringVar(&repoRoot, "repo-root", ".", "repo root that engine runner paths in the registry resolve against")
	return cmd
}

func newStressReplayCmd() *cobra.Command {
	var in stressreplay.Inputs
	cmd := &cobra.Command{
		Use:   "stress-replay",
		Short: "Write the stress_drift_sentinel artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := stressreplay.Run(sc.day, in, sc.prod, sc.validate("#StressDriftSentinel"))
			return sc.finish(stressreplay.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&in.EngineDailyReturnsPath, "engine-daily-returns-path", "", "path to the day's engine_daily_returns artifact (optional)")
	cmd.Flags().StringVar(&in.EngineCorrelationMatrixPath, "engine-correlation-matrix-path", "", "path to the day's engine_correlation_matrix artifact (optional)")
	cmd.Flags().StringVar(&in.BrokerReconciliationPath, "broker-reconciliation-path", "", "path to the day's broker reconciliation artifact (optional)")
	return cmd
}
