package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunWriteModeComputesStableHash(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "accounting_v1", "nav", "2026-07-30", "nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")

	specs := []InputSpec{{Type: "accounting_nav_v1", Path: navPath}}
	root := truthpath.TruthRoot(dir)
	day := truthpath.DayUTC("2026-07-30")

	art1, err := Run(day, root, specs, Write, "", producer.Identity{}, nil)
	require.NoError(t, err)
	art2, err := Run(day, root, specs, Write, "", producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "OK", art1.Envelope.Status)
	hash1, _ := art1.Envelope.Body["replay_hash"]
	hash2, _ := art2.Envelope.Body["replay_hash"]
	assert.Equal(t, hash1, hash2)
}

func TestRunWriteModeFailsWhenInputMissing(t *testing.T) {
	dir := t.TempDir()
	specs := []InputSpec{{Type: "accounting_nav_v1", Path: filepath.Join(dir, "missing.json")}}

	art, err := Run(truthpath.DayUTC("2026-07-30"), truthpath.TruthRoot(dir), specs, Write, "", producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "MISSING_INPUT:accounting_nav_v1")
}

func TestRunCheckModeFailsWhenNoExistingReport(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")
	specs := []InputSpec{{Type: "accounting_nav_v1", Path: navPath}}

	art, err := Run(truthpath.DayUTC("2026-07-30"), truthpath.TruthRoot(dir), specs, Check, filepath.Join(dir, "does-not-exist.json"), producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "MISSING_EXISTING_REPLAY_INTEGRITY_REPORT")
}

func TestRunCheckModePassesWhenHashMatchesPriorWrite(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")
	specs := []InputSpec{{Type: "accounting_nav_v1", Path: navPath}}
	root := truthpath.TruthRoot(dir)
	day := truthpath.DayUTC("2026-07-30")

	writeArt, err := Run(day, root, specs, Write, "", producer.Identity{}, nil)
	require.NoError(t, err)

	reportPath := filepath.Join(dir, "reports", "replay_integrity.v2.json")
	writeFile(t, reportPath, string(writeArt.Bytes))

	art, err := Run(day, root, specs, Check, reportPath, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "OK", art.Envelope.Status)
	checkBlock, _ := art.Envelope.Body["reproducibility_check"]
	require.NotNil(t, checkBlock)
}

func TestRunCheckModeFailsOnHashMismatch(t *testing.T) {
	dir := t.TempDir()
	navPath := filepath.Join(dir, "nav.json")
	writeFile(t, navPath, `{"nav":{"nav_total":1000000}}`+"\n")
	specs := []InputSpec{{Type: "accounting_nav_v1", Path: navPath}}
	root := truthpath.TruthRoot(dir)
	day := truthpath.DayUTC("2026-07-30")

	writeArt, err := Run(day, root, specs, Write, "", producer.Identity{}, nil)
	require.NoError(t, err)
	reportPath := filepath.Join(dir, "reports", "replay_integrity.v2.json")
	writeFile(t, reportPath, string(writeArt.Bytes))

	writeFile(t, navPath, `{"nav":{"nav_total":2000000}}`+"\n")

	art, err := Run(day, root, specs, Check, reportPath, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "REPLAY_HASH_MISMATCH")
	diff, _ := art.Envelope.Body["mismatch_diff"]
	require.NotNil(t, diff)
}
