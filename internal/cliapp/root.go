// Package cliapp wires the truthctl binary: one Cobra subcommand per stage
// writer, grounded on the teacher's cli.NewRootCommand (a root command with
// shared persistent flags delegating to per-stage RunE closures). Every
// subcommand shares the same shape: load config, resolve producer identity,
// build the stage's schema validator, run the stage, write the artifact
// (or a governed failure artifact), and exit with the spec's mapped code.
package cliapp

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/config"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/obslog"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/schema"
	"github.com/constellation2/truthcore/internal/truthpath"
)

var (
	flagConfig  string
	flagDay     string
	flagVerbose bool
)

// NewRootCommand builds the truthctl root command and registers every
// stage subcommand.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "truthctl",
		Short:         "Writes and verifies the paper-trading truth artifact pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "truthctl.yaml", "path to the core config file")
	root.PersistentFlags().StringVar(&flagDay, "day_utc", "", "UTC calendar day key, YYYY-MM-DD")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug-level logging")

	root.AddCommand(
		newNavSnapshotCmd(),
		newNavLedgerCmd(),
		newDrawdownPackCmd(),
		newEngineReturnsCmd(),
		newCorrelationCmd(),
		newRegimeCmd(),
		newReconciliationCmd(),
		newSubmissionIndexCmd(),
		newEnvelopeCmd(),
		newOperatorGateCmd(),
		newModelRegistryCmd(),
		newStressReplayCmd(),
		newGateStackCmd(),
		newPipelineManifestCmd(),
		newReplayCmd(),
		newOrchestrateCmd(),
	)
	return root
}

// stageContext bundles the state every subcommand needs, resolved once
// from the shared persistent flags.
type stageContext struct {
	day      truthpath.DayUTC
	cfg      *config.Config
	prod     producer.Identity
	logger   *slog.Logger
	registry *schema.Registry
}

func loadStageContext() (*stageContext, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	day, err := truthpath.ParseDayUTC(flagDay)
	if err != nil {
		return nil, err
	}
	prod := producer.Resolve(cfg.ProducerRepo, cfg.ProducerRepo, cfg.ProducerModule)
	return &stageContext{
		day:      day,
		cfg:      cfg,
		prod:     prod,
		logger:   obslog.New(os.Stderr, flagVerbose),
		registry: schema.NewRegistry(cfg.SchemaDir),
	}, nil
}

func (sc *stageContext) validate(defName string) func(string, []byte) error {
	return func(_ string, data []byte) error {
		return sc.registry.Validate(defName, data)
	}
}

// outputPath is the conventional location every artifact of kind lands at:
// <truth_root>/reports/<kind>/<day>/<kind>.json.
func (sc *stageContext) outputPath(kind string) string {
	return sc.outputPathForDay(kind, sc.day)
}

// outputPathForDay is outputPath for a day other than the one this command
// was invoked with, used by the orchestrator to reach back to a prior day's
// artifact (e.g. engine_daily_returns' NavPrevPath).
func (sc *stageContext) outputPathForDay(kind string, day truthpath.DayUTC) string {
	return sc.cfg.TruthRoot.Join("reports", kind, string(day), kind+".json")
}

// resolveVariant picks the authoritative variant of kind for this day from
// config.VariantAuthority (Open Question #1: a stage that finds more than
// one variant surface present consults this registry, not a first-match
// scan). candidates maps variant name ("v2", "v3", ...) to that variant's
// candidate path. When the day has no registry entry for kind, falls back
// to the newest non-empty candidate — a disclosed degrade for days before
// the registry covers this kind, not a silent scan once it does.
func (sc *stageContext) resolveVariant(kind string, candidates map[string]string) (variant, path string) {
	if v, ok := sc.cfg.VariantFor(kind, sc.day); ok {
		return v, candidates[v]
	}
	for _, v := range []string{"v3", "v2", "v1"} {
		if p := candidates[v]; p != "" {
			return v, p
		}
	}
	return "", ""
}

// finish writes art (or logs and returns a mapped exit error if stageErr is
// non-nil), matching spec §7's "OK: <STAGE>"/"FAIL: <CODE>" log lines and
// §6.3's exit code contract.
func (sc *stageContext) finish(stage string, art *artifact.Artifact, stageErr error) error {
	if stageErr != nil {
		var coreErr *errs.Error
		if e, ok := stageErr.(*errs.Error); ok {
			coreErr = e
		} else {
			coreErr = errs.Wrap(errs.ExternalUnavailable, "STAGE_FAILED", stage, stageErr)
		}
		obslog.Fail(sc.logger, coreErr)
		return cliExitError{code: coreErr.Kind.ExitCode(), err: coreErr}
	}

	path := sc.outputPath(stage)
	result, writeErr := art.Write(path)
	if writeErr != nil {
		var coreErr *errs.Error
		if e, ok := writeErr.(*errs.Error); ok {
			coreErr = e
		} else {
			coreErr = errs.Wrap(errs.ExternalUnavailable, "WRITE_FAILED", path, writeErr)
		}
		obslog.Fail(sc.logger, coreErr)
		return cliExitError{code: coreErr.Kind.ExitCode(), err: coreErr}
	}

	obslog.OK(sc.logger, stage,
		"status", art.Envelope.Status,
		"path", result.Path,
		"action", string(result.Action),
		"sha256", result.Sha256,
	)
	return nil
}

// cliExitError carries the spec's mapped process exit code through Cobra's
// RunE return path.
type cliExitError struct {
	code int
	err  error
}

func (e cliExitError) Error() string { return e.err.Error() }

// Execute runs the root command and translates a cliExitError into the
// process's exit code, matching spec §6.3.
func Execute() int {
	root := NewRootCommand()
	err := root.Execute()
	if err == nil {
		return 0
	}
	if ce, ok := err.(cliExitError); ok {
		fmt.Fprintln(os.Stderr, ce.err)
		return ce.code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
