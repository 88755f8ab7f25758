package correlation

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

func writeReturns(t *testing.T, root, day string, rows map[string]string) {
	t.Helper()
	dir := filepath.Join(root, day)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := `{"returns":{"currency":"USD","by_engine":[`
	first := true
	for id, r := range rows {
		if !first {
			body += ","
		}
		first = false
		body += `{"engine_id":"` + id + `","daily_return":"` + r + `"}`
	}
	body += `]}}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine_daily_returns.v1.json"), []byte(body), 0o644))
}

func TestRunBootstrapWithNoDataDegrades(t *testing.T) {
	root := t.TempDir()
	// no subdirs at all -> no eligible days -> error; so create an empty-returns day instead.
	writeReturns(t, root, "2026-07-30", map[string]string{})

	in := Inputs{ReturnsRoot: root, ReturnsFile: "engine_daily_returns.v1.json", WindowDays: 20}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "DEGRADED_INSUFFICIENT_HISTORY", art.Envelope.Status)
	assert.Contains(t, art.Envelope.ReasonCodes, "NO_ENGINE_RETURNS_AVAILABLE")
}

func TestRunPerfectlyCorrelatedSeriesClampsToOne(t *testing.T) {
	root := t.TempDir()
	writeReturns(t, root, "2026-07-28", map[string]string{"e1": "0.01000000", "e2": "0.02000000"})
	writeReturns(t, root, "2026-07-29", map[string]string{"e1": "0.02000000", "e2": "0.04000000"})
	writeReturns(t, root, "2026-07-30", map[string]string{"e1": "0.03000000", "e2": "0.06000000"})

	in := Inputs{ReturnsRoot: root, ReturnsFile: "engine_daily_returns.v1.json", WindowDays: 20}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	matrix, _ := art.Envelope.Body["matrix"].(codec.Object)
	corr, _ := matrix["corr"].(codec.Array)
	row0, _ := corr[0].(codec.Array)
	// e2 is exactly 2x e1 every day -> perfectly correlated.
	assert.Equal(t, codec.DecimalString{Text: "1.000000"}, row0[1])
}

func TestRunDegenerateSeriesCorrelatesToZero(t *testing.T) {
	root := t.TempDir()
	writeReturns(t, root, "2026-07-29", map[string]string{"e1": "0.01000000", "e2": "0.00000000"})
	writeReturns(t, root, "2026-07-30", map[string]string{"e1": "0.01000000", "e2": "0.00000000"})

	in := Inputs{ReturnsRoot: root, ReturnsFile: "engine_daily_returns.v1.json", WindowDays: 20}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	matrix, _ := art.Envelope.Body["matrix"].(codec.Object)
	corr, _ := matrix["corr"].(codec.Array)
	row0, _ := corr[0].(codec.Array)
	assert.Equal(t, codec.DecimalString{Text: "0.000000"}, row0[1])
}
