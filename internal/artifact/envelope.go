// Package artifact implements the Artifact Kernel (spec §4.3, §3.2): the
// common envelope every truth artifact carries, the builder that fixes
// produced_utc, resolves producer identity, sorts the input manifest,
// nulls the self-hash field, validates against the governed CUE schema,
// self-hashes, and delegates to the immutable writer. Grounded on the
// teacher's builder-shaped compiler passes (internal/compiler/concept.go)
// generalized to the spec's artifact shape, and on write_failure_v1.py for
// the failure-artifact counterpart in failure.go.
package artifact

import (
	"time"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

// Envelope is the common shape every artifact's top-level object carries
// (spec §3.2). Body holds the kind-specific fields; they are merged into
// the same JSON object as the envelope fields at encode time.
type Envelope struct {
	SchemaID      string
	SchemaVersion string
	DayUTC        truthpath.DayUTC
	ProducedUTC   string
	Producer      producer.Identity
	Status        string
	ReasonCodes   []string
	InputManifest inputmanifest.Manifest

	// SelfHashField names the field this artifact kind uses for its
	// self-hash, e.g. "canonical_json_hash" or "nav_snapshot_sha256".
	SelfHashField string

	Body codec.Object
}

// Artifact is a finalized, self-hashed artifact: its envelope fields, its
// body, and the canonical bytes actually written to disk.
type Artifact struct {
	Envelope Envelope
	SelfHash string
	Bytes    []byte // canonical bytes including the terminating newline
}

// ToValue merges the envelope fields and body into one canonical Object,
// with selfHashValue substituted for the self-hash field (Null during
// hashing, String(hash) once finalized).
func (e Envelope) ToValue(selfHashValue codec.Value) codec.Object {
	obj := codec.NewObject().
		Set("schema_id", codec.String(e.SchemaID)).
		Set("schema_version", codec.String(e.SchemaVersion)).
		Set("day_utc", codec.String(string(e.DayUTC))).
		Set("produced_utc", codec.String(e.ProducedUTC)).
		Set("producer", e.Producer.ToValue()).
		Set("status", codec.String(e.Status)).
		Set("reason_codes", codec.StringArray(e.ReasonCodes)).
		Set("input_manifest", e.InputManifest.ToValue()).
		Set(e.SelfHashField, selfHashValue).
		Build()

	for k, v := range e.Body {
		obj[k] = v
	}
	return obj
}

// Build validates the day key, fixes produced_utc when unset, computes the
// self-hash with the self-hash field nulled, validates against schema
// (if schemaValidate is non-nil), and returns the finalized Artifact. It
// performs no I/O; callers pass the result to Write.
func Build(e Envelope, now time.Time, schemaValidate func(defName string, data []byte) error) (*Artifact, error) {
	if _, err := truthpath.ParseDayUTC(string(e.DayUTC)); err != nil {
		return nil, errs.Wrap(errs.BadDayUTC, "BAD_DAY_UTC", string(e.DayUTC), err)
	}
	if err := e.DayUTC.CheckNotFuture(now); err != nil {
		return nil, errs.Wrap(errs.BadDayUTC, "DAY_UTC_IN_FUTURE", string(e.DayUTC), err)
	}
	if e.ProducedUTC == "" {
		e.ProducedUTC = e.DayUTC.ProducedUTC()
	}
	e.InputManifest = inputmanifest.Sorted(e.InputManifest)
	e.ReasonCodes = dedupeSorted(e.ReasonCodes)

	nulled := e.ToValue(codec.Null{})

	if schemaValidate != nil {
		b, err := codec.Encode(nulled)
		if err != nil {
			return nil, errs.Wrap(errs.CanonicalizationFailed, "ENCODE_FOR_VALIDATION_FAILED", e.SchemaID, err)
		}
		if err := schemaValidate(e.SchemaID, b); err != nil {
			return nil, err
		}
	}

	selfHash, err := codec.HashExcluding(nulled, e.SelfHashField)
	if err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "SELF_HASH_FAILED", e.SchemaID, err)
	}

	final := e.ToValue(codec.String(selfHash))
	encoded, err := codec.Encode(final)
	if err != nil {
		return nil, errs.Wrap(errs.CanonicalizationFailed, "ENCODE_FINAL_FAILED", e.SchemaID, err)
	}
	encoded = append(encoded, '\n')

	return &Artifact{Envelope: e, SelfHash: selfHash, Bytes: encoded}, nil
}

func dedupeSorted(ss []string) []string {
	arr := codec.StringArray(ss)
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = string(v.(codec.String))
	}
	return out
}
