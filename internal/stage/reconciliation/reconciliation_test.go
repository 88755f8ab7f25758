package reconciliation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func TestRunSafeIdleWhenNoSubmissions(t *testing.T) {
	dir := t.TempDir()
	execDir := filepath.Join(dir, "submissions", "2026-07-30")
	require.NoError(t, os.MkdirAll(execDir, 0o755))

	in := Inputs{
		ExecEvidenceDayDir: execDir,
		BrokerEventLogPath: filepath.Join(dir, "broker_event_log.v1.jsonl"),
		BrokerManifestPath: filepath.Join(dir, "broker_event_day_manifest.v1.json"),
	}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "OK", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "SAFE_IDLE_NO_SUBMISSIONS_OK")
}

func TestRunFailsClosedWhenSubmissionsPresentButBrokerTruthMissing(t *testing.T) {
	dir := t.TempDir()
	execDir := filepath.Join(dir, "submissions", "2026-07-30")
	require.NoError(t, os.MkdirAll(filepath.Join(execDir, "order-1"), 0o755))

	in := Inputs{
		ExecEvidenceDayDir: execDir,
		BrokerEventLogPath: filepath.Join(dir, "broker_event_log.v1.jsonl"),
		BrokerManifestPath: filepath.Join(dir, "broker_event_day_manifest.v1.json"),
	}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "FAIL", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "MISSING_BROKER_EVENT_LOG")
	assert.Contains(t, art.Envelope.ReasonCodes, "MISSING_OK_BROKER_EVENT_DAY_MANIFEST")
}
