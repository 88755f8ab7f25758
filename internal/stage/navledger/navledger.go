// Package navledger builds the rolling NAV history ledger, grounded on
// gen_nav_history_ledger_v1.py: walks every nav_snapshot day at or before
// the asof day, folding each into a ledger row. Derived only from NAV
// Snapshot Truth artifacts, never from raw accounting data directly.
package navledger

import (
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "nav_history_ledger"

var dayDirRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

// Inputs locates the snapshot tree this ledger folds over.
type Inputs struct {
	NavSnapshotRoot string // directory containing one subdir per day
	SnapshotFile    string // file name within each day dir, e.g. "nav_snapshot.v1.json"
}

// Run builds the ledger for every NAV snapshot day at or before asof.
func Run(asof truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	entries, err := os.ReadDir(in.NavSnapshotRoot)
	if err != nil {
		return nil, errs.Wrap(errs.MissingInput, "NAV_SNAPSHOT_ROOT_UNREADABLE", in.NavSnapshotRoot, err)
	}

	var days []string
	for _, e := range entries {
		if e.IsDir() && dayDirRe.MatchString(e.Name()) && e.Name() <= string(asof) {
			days = append(days, e.Name())
		}
	}
	sort.Strings(days)
	if len(days) == 0 {
		return nil, errs.New(errs.MissingInput, "NO_NAV_SNAPSHOTS_AT_OR_BEFORE_ASOF", string(asof))
	}

	manifest := inputmanifest.Manifest{
		inputmanifest.FromBytes("nav_snapshot_root", in.NavSnapshotRoot, []byte{}),
	}

	rows := make(codec.Array, 0, len(days))
	for _, d := range days {
		snapPath := in.NavSnapshotRoot + "/" + d + "/" + in.SnapshotFile
		snap, entry, ok, readErr := stagecommon.ReadArtifact("nav_snapshot_day_"+d, snapPath)
		manifest = append(manifest, entry)
		if readErr != nil {
			return nil, readErr
		}
		if !ok {
			return nil, errs.New(errs.MissingInput, "SNAPSHOT_MISSING_EXPECTED", snapPath)
		}

		endNav, _ := snap["end_nav"].(codec.DecimalString)
		peak, _ := snap["peak_nav_to_date"].(codec.DecimalString)
		dd, _ := snap["drawdown_pct"].(codec.DecimalString)
		if endNav.Text == "" || peak.Text == "" || dd.Text == "" {
			return nil, errs.New(errs.SchemaInvalid, "SNAPSHOT_MISSING_REQUIRED_FIELDS", snapPath)
		}

		rows = append(rows, codec.NewObject().
			Set("day_utc", codec.String(d)).
			Set("snapshot_path", codec.String(snapPath)).
			Set("snapshot_sha256", codec.String(entry.Sha256)).
			Set("end_nav", endNav).
			Set("peak_nav_to_date", peak).
			Set("drawdown_pct", dd).
			Build())
	}

	body := codec.NewObject().
		Set("asof_day_utc", codec.String(string(asof))).
		Set("days", rows).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        asof,
		Producer:      prod,
		Status:        "OK",
		ReasonCodes:   []string{"OK"},
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}
