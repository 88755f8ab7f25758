// Command truthctl writes and verifies the paper-trading platform's
// append-only truth artifact pipeline: one subcommand per stage writer,
// plus gate-stack, pipeline-manifest, and replay for cross-stage readiness
// and integrity checks.
package main

import (
	"os"

	"github.com/constellation2/truthcore/internal/cliapp"
)

func main() {
	os.Exit(cliapp.Execute())
}
