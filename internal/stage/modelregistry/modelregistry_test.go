package modelregistry

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

func runnerSha(t *testing.T, repoRoot, rel, body string) string {
	t.Helper()
	writeFile(t, filepath.Join(repoRoot, rel), body)
	return codec.HashBytes([]byte(body))
}

func TestRunPassesWhenEnginesActiveAndHashesMatch(t *testing.T) {
	repoRoot := t.TempDir()
	sha := runnerSha(t, repoRoot, "engines/eng-1/runner.py", "print(1)\n")

	registryPath := filepath.Join(repoRoot, "registry.json")
	writeFile(t, registryPath, `{"approved_git_sha":"deadbeef","engines":[`+
		`{"engine_id":"eng-1","activation_status":"ACTIVE","engine_runner_path":"engines/eng-1/runner.py","engine_runner_sha256":"`+sha+`"}`+
		`]}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), registryPath, repoRoot, producer.Identity{GitSha: "deadbeef"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "PASS", art.Envelope.Status)
	assert.Empty(t, art.Envelope.ReasonCodes)
}

func TestRunFailsWhenRunnerShaMismatches(t *testing.T) {
	repoRoot := t.TempDir()
	runnerSha(t, repoRoot, "engines/eng-1/runner.py", "print(1)\n")

	registryPath := filepath.Join(repoRoot, "registry.json")
	writeFile(t, registryPath, `{"approved_git_sha":"deadbeef","engines":[`+
		`{"engine_id":"eng-1","activation_status":"ACTIVE","engine_runner_path":"engines/eng-1/runner.py","engine_runner_sha256":"0000000000000000000000000000000000000000000000000000000000000000"}`+
		`]}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), registryPath, repoRoot, producer.Identity{GitSha: "deadbeef"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "ENGINE_BLOCKED:eng-1")
}

func TestRunFailsWhenEngineNotActive(t *testing.T) {
	repoRoot := t.TempDir()
	sha := runnerSha(t, repoRoot, "engines/eng-1/runner.py", "print(1)\n")

	registryPath := filepath.Join(repoRoot, "registry.json")
	writeFile(t, registryPath, `{"approved_git_sha":"deadbeef","engines":[`+
		`{"engine_id":"eng-1","activation_status":"RETIRED","engine_runner_path":"engines/eng-1/runner.py","engine_runner_sha256":"`+sha+`"}`+
		`]}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), registryPath, repoRoot, producer.Identity{GitSha: "deadbeef"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "ENGINE_BLOCKED:eng-1")
}

func TestRunFailsWhenRunnerFileMissing(t *testing.T) {
	repoRoot := t.TempDir()

	registryPath := filepath.Join(repoRoot, "registry.json")
	writeFile(t, registryPath, `{"approved_git_sha":"deadbeef","engines":[`+
		`{"engine_id":"eng-1","activation_status":"ACTIVE","engine_runner_path":"engines/eng-1/runner.py","engine_runner_sha256":"abc123"}`+
		`]}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), registryPath, repoRoot, producer.Identity{GitSha: "deadbeef"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "ENGINE_BLOCKED:eng-1")
}

func TestRunIsAuditOnlyOnGitShaMismatch(t *testing.T) {
	repoRoot := t.TempDir()
	sha := runnerSha(t, repoRoot, "engines/eng-1/runner.py", "print(1)\n")

	registryPath := filepath.Join(repoRoot, "registry.json")
	writeFile(t, registryPath, `{"approved_git_sha":"deadbeef","engines":[`+
		`{"engine_id":"eng-1","activation_status":"ACTIVE","engine_runner_path":"engines/eng-1/runner.py","engine_runner_sha256":"`+sha+`"}`+
		`]}`+"\n")

	art, err := Run(truthpath.DayUTC("2026-07-30"), registryPath, repoRoot, producer.Identity{GitSha: "cafebabe"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "PASS", art.Envelope.Status)
	assert.Empty(t, art.Envelope.ReasonCodes)
	results, _ := art.Envelope.Body["results"].(codec.Object)
	notes, _ := art.Envelope.Body["notes"].(codec.Array)
	assert.NotEmpty(t, notes)
	assert.Equal(t, codec.String("cafebabe"), results["current_git_sha"])
}

func TestRunFailsWhenRegistryMissing(t *testing.T) {
	repoRoot := t.TempDir()
	_, err := Run(truthpath.DayUTC("2026-07-30"), filepath.Join(repoRoot, "does-not-exist.json"), repoRoot, producer.Identity{}, nil)
	require.Error(t, err)
}
