// Package obslog provides the structured "OK:"/"FAIL:" log lines required
// by spec §7, layered on log/slog the way the teacher's cli/run.go wires a
// slog.TextHandler off a --verbose flag. Log output never touches artifact
// bytes; it always targets a separate writer (stderr by default).
package obslog

import (
	"io"
	"log/slog"
	"os"

	"github.com/constellation2/truthcore/internal/errs"
)

// New builds a slog.Logger writing text lines to w (stderr if w is nil).
// verbose maps to slog.LevelDebug; otherwise slog.LevelInfo.
func New(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OK logs a success line in the "OK: <STAGE> key=value ..." shape.
func OK(logger *slog.Logger, stage string, attrs ...any) {
	logger.Info("OK: "+stage, attrs...)
}

// Fail logs a failure line in the "FAIL: <CODE>: <detail>" shape.
func Fail(logger *slog.Logger, err *errs.Error) {
	logger.Error("FAIL: "+string(err.Kind)+": "+err.Reason, "detail", err.Detail)
}
