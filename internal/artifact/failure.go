package artifact

import (
	"time"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
	"github.com/constellation2/truthcore/internal/writer"
)

// Failure is a governed failure artifact (spec §4.6), grounded on
// write_failure_v1.py's build_failure_obj_v1/write_failure_immutable_v1.
// Unlike ordinary artifacts it carries no self-hash field and its
// produced_utc is wall-clock, since it records a moment a stage gave up,
// not a reproducible day-keyed fact.
type Failure struct {
	SchemaID      string
	DayUTC        truthpath.DayUTC
	Producer      producer.Identity
	Status        string // e.g. "FAIL_SCHEMA_INVALID"
	ReasonCodes   []string
	InputManifest inputmanifest.Manifest

	Code             string
	Message          string
	Details          codec.Object
	AttemptedOutputs []string
}

// Build encodes the failure artifact's canonical bytes. now supplies the
// wall-clock produced_utc.
func (f Failure) Build(now time.Time) ([]byte, error) {
	attempted := make(codec.Array, len(f.AttemptedOutputs))
	for i, p := range f.AttemptedOutputs {
		attempted[i] = codec.String(p)
	}

	failureObj := codec.NewObject().
		Set("code", codec.String(f.Code)).
		Set("message", codec.String(f.Message)).
		Set("details", f.Details).
		Set("attempted_outputs", attempted).
		Build()

	obj := codec.NewObject().
		Set("schema_id", codec.String(f.SchemaID)).
		Set("produced_utc", codec.String(now.UTC().Format("2006-01-02T15:04:05Z"))).
		Set("day_utc", codec.String(string(f.DayUTC))).
		Set("producer", f.Producer.ToValue()).
		Set("status", codec.String(f.Status)).
		Set("reason_codes", codec.StringArray(f.ReasonCodes)).
		Set("input_manifest", inputmanifest.Sorted(f.InputManifest).ToValue()).
		Set("failure", failureObj).
		Build()

	encoded, err := codec.Encode(obj)
	if err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "FAILURE_CANONICALIZATION_ERROR", f.SchemaID, err)
	}
	return append(encoded, '\n'), nil
}

// Write builds and immutably writes the failure artifact to
// <kind>/failures/<day>/failure.json (spec §4.6).
func (f Failure) Write(path string, now time.Time) (writer.Result, error) {
	data, err := f.Build(now)
	if err != nil {
		return writer.Result{}, err
	}
	return writer.Write(path, data)
}
