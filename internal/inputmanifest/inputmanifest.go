// Package inputmanifest builds the ordered input_manifest rows embedded in
// every artifact envelope, grounded on run_gate_stack_verdict_v1.py's
// _eval_gate manifest construction: a row per referenced input, missing
// files recorded under a "_missing"-suffixed type with the sha256-of-empty
// sentinel rather than omitted outright, sorted by (type, path).
package inputmanifest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"

	"github.com/constellation2/truthcore/internal/codec"
)

// emptySha is sha256("") — the sentinel used for missing required inputs.
const emptySha = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Entry is one row of the input manifest.
type Entry struct {
	Type     string
	Path     string
	Sha256   string
	DayUTC   string // optional, empty if not applicable
	Producer string // optional, empty if not applicable
}

// Manifest is the ordered, (type, path)-sorted set of manifest entries.
type Manifest []Entry

// FromFile stats and hashes path, recording it under typ. If the file is
// absent, the entry's type is suffixed with "_missing" and its sha256 is
// the empty-bytes sentinel, per spec §3.3 — missing required inputs still
// appear in the manifest rather than being silently dropped.
func FromFile(typ, path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{Type: typ + "_missing", Path: path, Sha256: emptySha}, nil
		}
		return Entry{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Entry{}, err
	}
	return Entry{Type: typ, Path: path, Sha256: hex.EncodeToString(h.Sum(nil))}, nil
}

// FromBytes records an in-memory input (e.g. a dependency artifact already
// loaded and parsed) without re-reading it from disk.
func FromBytes(typ, path string, data []byte) Entry {
	sum := sha256.Sum256(data)
	return Entry{Type: typ, Path: path, Sha256: hex.EncodeToString(sum[:])}
}

// Sorted returns entries ordered by (type, path) ascending, the order the
// spec requires for the canonical input_manifest array.
func Sorted(entries []Entry) Manifest {
	out := make(Manifest, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// ToValue renders the manifest as the canonical input_manifest array.
func (m Manifest) ToValue() codec.Array {
	arr := make(codec.Array, len(m))
	for i, e := range m {
		b := codec.NewObject().
			Set("type", codec.String(e.Type)).
			Set("path", codec.String(e.Path)).
			Set("sha256", codec.String(e.Sha256))
		if e.DayUTC != "" {
			b.Set("day_utc", codec.String(e.DayUTC))
		}
		if e.Producer != "" {
			b.Set("producer", codec.String(e.Producer))
		}
		arr[i] = b.Build()
	}
	return arr
}
