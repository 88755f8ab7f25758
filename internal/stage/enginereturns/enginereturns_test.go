package enginereturns

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

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunComputesReturnFromDeltaPnl(t *testing.T) {
	dir := t.TempDir()
	navPrev := filepath.Join(dir, "nav_prev.json")
	attrPrev := filepath.Join(dir, "attr_prev.json")
	attrCur := filepath.Join(dir, "attr_cur.json")

	writeJSON(t, navPrev, `{"nav":{"nav_total":1000000}}`+"\n")
	writeJSON(t, attrPrev, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":1000,"unrealized_pnl":0}]}}`+"\n")
	writeJSON(t, attrCur, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":1500,"unrealized_pnl":0}]}}`+"\n")

	in := Inputs{
		PrevDayUTC:   truthpath.DayUTC("2026-07-29"),
		AttrPrevPath: attrPrev,
		AttrCurPath:  attrCur,
		NavPrevPath:  navPrev,
	}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	returns, _ := art.Envelope.Body["returns"].(codec.Object)
	byEngine, _ := returns["by_engine"].(codec.Array)
	require.Len(t, byEngine, 1)
	row, _ := byEngine[0].(codec.Object)
	// delta = 500, nav_prev = 1_000_000 -> 0.00050000
	assert.Equal(t, codec.DecimalString{Text: "0.00050000"}, row["daily_return"])
}

func TestRunZeroNavZeroDeltaYieldsZeroReturn(t *testing.T) {
	dir := t.TempDir()
	navPrev := filepath.Join(dir, "nav_prev.json")
	attrPrev := filepath.Join(dir, "attr_prev.json")
	attrCur := filepath.Join(dir, "attr_cur.json")

	writeJSON(t, navPrev, `{"nav":{"nav_total":0}}`+"\n")
	writeJSON(t, attrPrev, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":0,"unrealized_pnl":0}]}}`+"\n")
	writeJSON(t, attrCur, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":0,"unrealized_pnl":0}]}}`+"\n")

	in := Inputs{AttrPrevPath: attrPrev, AttrCurPath: attrCur, NavPrevPath: navPrev}
	art, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	require.NoError(t, err)

	returns, _ := art.Envelope.Body["returns"].(codec.Object)
	byEngine, _ := returns["by_engine"].(codec.Array)
	row, _ := byEngine[0].(codec.Object)
	assert.Equal(t, codec.DecimalString{Text: "0.00000000"}, row["daily_return"])
}

func TestRunFailsClosedOnZeroNavWithNonzeroDelta(t *testing.T) {
	dir := t.TempDir()
	navPrev := filepath.Join(dir, "nav_prev.json")
	attrPrev := filepath.Join(dir, "attr_prev.json")
	attrCur := filepath.Join(dir, "attr_cur.json")

	writeJSON(t, navPrev, `{"nav":{"nav_total":0}}`+"\n")
	writeJSON(t, attrPrev, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":0,"unrealized_pnl":0}]}}`+"\n")
	writeJSON(t, attrCur, `{"attribution":{"currency":"USD","by_engine":[{"engine_id":"e1","realized_pnl_to_date":100,"unrealized_pnl":0}]}}`+"\n")

	in := Inputs{AttrPrevPath: attrPrev, AttrCurPath: attrCur, NavPrevPath: navPrev}
	_, err := Run(truthpath.DayUTC("2026-07-30"), in, producer.Identity{}, nil)
	assert.Error(t, err)
}
