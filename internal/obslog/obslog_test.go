package obslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/constellation2/truthcore/internal/errs"
)

func TestOKLineShape(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	OK(logger, "NAV_SNAPSHOT", "day_utc", "2026-07-01")
	assert.Contains(t, buf.String(), "OK: NAV_SNAPSHOT")
}

func TestFailLineShape(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	Fail(logger, errs.New(errs.BadDayUTC, "BAD_DAY_UTC", "future day"))
	out := buf.String()
	assert.True(t, strings.Contains(out, "FAIL: BAD_DAY_UTC"))
	assert.Contains(t, out, "future day")
}

func TestVerboseEnablesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)
	logger.Debug("debug detail")
	assert.Contains(t, buf.String(), "debug detail")
}
