package cliapp

import (
	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/stage/correlation"
	"github.com/constellation2/truthcore/internal/stage/drawdownpack"
	"github.com/constellation2/truthcore/internal/stage/enginereturns"
	"github.com/constellation2/truthcore/internal/stage/envelope"
	"github.com/constellation2/truthcore/internal/stage/navsnapshot"
	"github.com/constellation2/truthcore/internal/stage/operatorgate"
	"github.com/constellation2/truthcore/internal/stage/reconciliation"
	"github.com/constellation2/truthcore/internal/stage/regime"
	"github.com/constellation2/truthcore/internal/stage/replay"
	"github.com/constellation2/truthcore/internal/stage/submissionindex"
)

// replayInputs names the day's declared truth artifacts, in the same order
// stageGraph enumerates them for pipeline-manifest, so the two stages agree
// on what counts as "the day's evidence."
func replayInputs(sc *stageContext) []replay.InputSpec {
	kinds := []string{
		navsnapshot.SchemaID,
		drawdownpack.SchemaID,
		enginereturns.SchemaID,
		correlation.SchemaID,
		regime.SchemaID,
		reconciliation.SchemaID,
		submissionindex.SchemaID,
		envelope.SchemaID,
		operatorgate.SchemaID,
	}
	specs := make([]replay.InputSpec, len(kinds))
	for i, k := range kinds {
		specs[i] = replay.InputSpec{Type: k, Path: sc.outputPath(k)}
	}
	return specs
}

func newReplayCmd() *cobra.Command {
	var mode, existingReportPath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Compute (or check) the day's replay_integrity hash over its declared inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			m := replay.Write
			if mode == string(replay.Check) {
				m = replay.Check
			}
			art, runErr := replay.Run(sc.day, sc.cfg.TruthRoot, replayInputs(sc), m, existingReportPath, sc.prod, sc.validate("#ReplayIntegrity"))
			return sc.finish(replay.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(replay.Write), "WRITE or CHECK")
	cmd.Flags().StringVar(&existingReportPath, "existing-report-path", "", "path to a prior replay_integrity report (CHECK mode only)")
	return cmd
}
