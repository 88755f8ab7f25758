package artifact

import (
	"github.com/constellation2/truthcore/internal/writer"
)

// Write delegates the artifact's final bytes to the immutable writer,
// returning its Result unchanged so callers can log WROTE vs
// SKIP_IDENTICAL per spec §7's "OK: <STAGE>" line shape.
func (a *Artifact) Write(path string) (writer.Result, error) {
	return writer.Write(path, a.Bytes)
}
