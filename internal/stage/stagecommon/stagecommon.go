// Package stagecommon holds the small set of helpers every stage writer in
// internal/stage/* shares: reading and decoding an upstream artifact file
// while feeding its bytes into an input-manifest entry, and constructing
// the producer/time context each stage needs. Kept deliberately thin — the
// spec requires each stage to declare and read only its own fixed input
// list, so this package must never grow into a shared "do everything"
// helper.
package stagecommon

import (
	"os"
	"time"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
)

// ReadArtifact reads path, decodes it as a canonical JSON object, and
// returns both the object and the manifest entry recording what was read.
// If the file is absent, ok is false and the returned entry carries the
// "_missing" sentinel (spec §3.3) — callers decide whether that's fatal.
func ReadArtifact(typ, path string) (obj codec.Object, entry inputmanifest.Entry, ok bool, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			e, _ := inputmanifest.FromFile(typ, path)
			return nil, e, false, nil
		}
		return nil, inputmanifest.Entry{}, false, errs.Wrap(errs.MissingInput, "INPUT_READ_FAILED", path, readErr)
	}

	v, decErr := codec.Decode(data)
	if decErr != nil {
		return nil, inputmanifest.Entry{}, false, errs.Wrap(errs.SchemaInvalid, "INPUT_DECODE_FAILED", path, decErr)
	}
	o, asErr := codec.AsObject(v)
	if asErr != nil {
		return nil, inputmanifest.Entry{}, false, asErr
	}
	return o, inputmanifest.FromBytes(typ, path, data), true, nil
}

// DayMidnightUTC returns day_utc + "T00:00:00Z" parsed as a time.Time, used
// as the deterministic "now" reference for day-key future checks (spec
// §3.2: produced_utc is wall-clock only for append-only logs; rerunnable
// artifacts anchor to their own day).
func DayMidnightUTC(dayUTC string) (time.Time, error) {
	return time.Parse(time.RFC3339, dayUTC+"T00:00:00Z")
}

// RealNow is the ordinary wall-clock "now", used only for the day-key
// not-in-the-future check (never for produced_utc itself on rerunnable
// artifacts).
func RealNow() time.Time {
	return time.Now().UTC()
}
