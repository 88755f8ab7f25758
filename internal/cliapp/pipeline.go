package cliapp

import (
	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/stage/correlation"
	"github.com/constellation2/truthcore/internal/stage/drawdownpack"
	"github.com/constellation2/truthcore/internal/stage/enginereturns"
	"github.com/constellation2/truthcore/internal/stage/envelope"
	"github.com/constellation2/truthcore/internal/stage/modelregistry"
	"github.com/constellation2/truthcore/internal/stage/navsnapshot"
	"github.com/constellation2/truthcore/internal/stage/operatorgate"
	"github.com/constellation2/truthcore/internal/stage/pipelinemanifest"
	"github.com/constellation2/truthcore/internal/stage/reconciliation"
	"github.com/constellation2/truthcore/internal/stage/regime"
	"github.com/constellation2/truthcore/internal/stage/stressreplay"
	"github.com/constellation2/truthcore/internal/stage/submissionindex"
)

// stageGraph is the day's DAG of upstream artifact kinds, grounded on
// run_pipeline_manifest_v2.py's fixed stage table: one row per stage this
// binary can itself write, naming whether its absence blocks the day.
func stageGraph(sc *stageContext) []pipelinemanifest.StageSpec {
	return []pipelinemanifest.StageSpec{
		{StageID: "NAV_SNAPSHOT", InputType: navsnapshot.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(navsnapshot.SchemaID), Blocking: true, MissingReason: "NAV_SNAPSHOT_MISSING"},
		{StageID: "DRAWDOWN_WINDOW_PACK", InputType: drawdownpack.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(drawdownpack.SchemaID), Blocking: true, MissingReason: "DRAWDOWN_WINDOW_PACK_MISSING"},
		{StageID: "ENGINE_DAILY_RETURNS", InputType: enginereturns.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(enginereturns.SchemaID), Blocking: false, MissingReason: "ENGINE_DAILY_RETURNS_MISSING"},
		{StageID: "ENGINE_CORRELATION_MATRIX", InputType: correlation.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(correlation.SchemaID), Blocking: false, MissingReason: "ENGINE_CORRELATION_MATRIX_MISSING"},
		{StageID: "REGIME_SNAPSHOT", InputType: regime.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(regime.SchemaID), Blocking: true, MissingReason: "REGIME_SNAPSHOT_MISSING"},
		{StageID: "RECONCILIATION_REPORT", InputType: reconciliation.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(reconciliation.SchemaID), Blocking: true, MissingReason: "RECONCILIATION_REPORT_MISSING"},
		{StageID: "SUBMISSION_INDEX", InputType: submissionindex.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(submissionindex.SchemaID), Blocking: false, MissingReason: "SUBMISSION_INDEX_MISSING"},
		{StageID: "CAPITAL_RISK_ENVELOPE", InputType: envelope.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(envelope.SchemaID), Blocking: true, MissingReason: "CAPITAL_RISK_ENVELOPE_MISSING"},
		{StageID: "OPERATOR_DAILY_GATE", InputType: operatorgate.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(operatorgate.SchemaID), Blocking: true, MissingReason: "OPERATOR_DAILY_GATE_MISSING"},
		{StageID: "ENGINE_MODEL_REGISTRY_GATE", InputType: modelregistry.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(modelregistry.SchemaID), Blocking: true, MissingReason: "ENGINE_MODEL_REGISTRY_GATE_MISSING"},
		{StageID: "STRESS_DRIFT_SENTINEL", InputType: stressreplay.SchemaID, Kind: pipelinemanifest.FileKind,
			Path: sc.outputPath(stressreplay.SchemaID), Blocking: false, MissingReason: "STRESS_DRIFT_SENTINEL_MISSING"},
	}
}

func newPipelineManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline-manifest",
		Short: "Write the pipeline_manifest artifact summarizing the day's stage DAG",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			art, runErr := pipelinemanifest.Run(sc.day, stageGraph(sc), sc.prod, sc.validate("#PipelineManifest"))
			return sc.finish(pipelinemanifest.SchemaID, art, runErr)
		},
	}
	return cmd
}
