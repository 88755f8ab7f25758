package gatestack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/gate"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunPassesWhenAllGateArtifactsPass(t *testing.T) {
	dir := t.TempDir()
	day := truthpath.DayUTC("2026-07-30")
	root := truthpath.TruthRoot(dir)

	writeJSON(t, filepath.Join(dir, "reports", "operator_daily_gate", string(day), "operator_daily_gate.json"), `{"status":"PASS"}`+"\n")
	writeJSON(t, filepath.Join(dir, "reports", "pipeline_manifest", string(day), "pipeline_manifest.json"), `{"status":"OK"}`+"\n")

	reg := gate.Registry{
		ClassPrecedence: map[string]int{"CLASS1": 1, "CLASS2": 2},
		Gates: []gate.Definition{
			{GateID: "operator_daily_gate", GateClass: "CLASS1", Required: true, Blocking: true,
				ArtifactRelpath: "reports/operator_daily_gate/{DAY}/operator_daily_gate.json",
				StatusField:     "status", PassStatusValues: []string{"PASS"}},
			{GateID: "pipeline_manifest", GateClass: "CLASS2", Required: true, Blocking: true,
				ArtifactRelpath: "reports/pipeline_manifest/{DAY}/pipeline_manifest.json",
				StatusField:     "status", PassStatusValues: []string{"OK"}},
		},
	}

	art, err := Run(day, root, reg, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "PASS", art.Envelope.Status)
	assert.Equal(t, codec.String("NONE"), art.Envelope.Body["blocking_class"])
	assert.Len(t, art.Envelope.InputManifest, 2)
}

func TestRunFailsClosedWhenClass1GateMissing(t *testing.T) {
	dir := t.TempDir()
	day := truthpath.DayUTC("2026-07-30")
	root := truthpath.TruthRoot(dir)

	writeJSON(t, filepath.Join(dir, "reports", "pipeline_manifest", string(day), "pipeline_manifest.json"), `{"status":"OK"}`+"\n")

	reg := gate.Registry{
		ClassPrecedence: map[string]int{"CLASS1": 1, "CLASS2": 2},
		Gates: []gate.Definition{
			{GateID: "operator_daily_gate", GateClass: "CLASS1", Required: true, Blocking: true,
				ArtifactRelpath: "reports/operator_daily_gate/{DAY}/operator_daily_gate.json",
				StatusField:     "status", PassStatusValues: []string{"PASS"}},
			{GateID: "pipeline_manifest", GateClass: "CLASS2", Required: true, Blocking: true,
				ArtifactRelpath: "reports/pipeline_manifest/{DAY}/pipeline_manifest.json",
				StatusField:     "status", PassStatusValues: []string{"OK"}},
		},
	}

	art, err := Run(day, root, reg, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Equal(t, codec.String("CLASS1"), art.Envelope.Body["blocking_class"])
	assert.Contains(t, art.Envelope.ReasonCodes, "GATE_REQUIRED_NOT_PASS:operator_daily_gate:MISSING")
	assert.Contains(t, art.Envelope.ReasonCodes, "GATE_MISSING:operator_daily_gate")
}

func TestRunIsStableAcrossReruns(t *testing.T) {
	dir := t.TempDir()
	day := truthpath.DayUTC("2026-07-30")
	root := truthpath.TruthRoot(dir)
	writeJSON(t, filepath.Join(dir, "reports", "operator_daily_gate", string(day), "operator_daily_gate.json"), `{"status":"PASS"}`+"\n")

	reg := gate.Registry{
		ClassPrecedence: map[string]int{"CLASS1": 1},
		Gates: []gate.Definition{
			{GateID: "operator_daily_gate", GateClass: "CLASS1", Required: true, Blocking: true,
				ArtifactRelpath: "reports/operator_daily_gate/{DAY}/operator_daily_gate.json",
				StatusField:     "status", PassStatusValues: []string{"PASS"}},
		},
	}

	art1, err := Run(day, root, reg, producer.Identity{}, nil)
	require.NoError(t, err)
	art2, err := Run(day, root, reg, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, art1.SelfHash, art2.SelfHash)
	assert.Equal(t, art1.Bytes, art2.Bytes)
}
