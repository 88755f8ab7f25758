// Package replay computes and checks the day's replay hash, grounded on
// run_replay_integrity_day_v1.py/v2.py: H({day_utc, sorted input_manifest})
// over truth-root-relative paths, so the hash stays stable across
// deployments that mount the truth root at different absolute locations.
// In WRITE mode it just reports the computed hash; in CHECK mode it loads
// a previously written replay_integrity artifact and diffs against it,
// naming missing input types and per-input sha256 mismatches rather than
// only saying "mismatch".
package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "replay_integrity"

// Mode selects whether Run only computes the hash or also compares it
// against a prior report.
type Mode string

const (
	Write Mode = "WRITE"
	Check Mode = "CHECK"
)

// InputSpec names one of the day's declared replay inputs.
type InputSpec struct {
	Type  string
	Path  string // absolute path on disk
	IsDir bool
}

// Run computes the day's replay hash from the declared inputs and, in
// Check mode, compares it against a previously written report at
// existingReportPath.
func Run(day truthpath.DayUTC, root truthpath.TruthRoot, specs []InputSpec, mode Mode, existingReportPath string, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	var manifest inputmanifest.Manifest
	var reasonCodes []string

	for _, spec := range specs {
		var entry inputmanifest.Entry
		var err error
		if spec.IsDir {
			entry, err = dirEntry(spec.Type, spec.Path)
		} else {
			entry, err = inputmanifest.FromFile(spec.Type, spec.Path)
		}
		if err != nil {
			return nil, err
		}
		if entry.Type != spec.Type {
			reasonCodes = append(reasonCodes, "MISSING_INPUT:"+spec.Type)
		}
		relEntry := entry
		relEntry.Type = spec.Type
		relEntry.Path = string(truthpath.ArtifactPath(spec.Path).RelativeTo(root))
		manifest = append(manifest, relEntry)
	}
	manifest = inputmanifest.Sorted(manifest)

	replayHash, hashErr := computeReplayHash(day, manifest)
	if hashErr != nil {
		return nil, hashErr
	}

	status := "OK"
	passCheck := true
	var expectedHashVal codec.Value = codec.Null{}
	missingTypes := codec.Array{}
	shaMismatches := codec.Array{}

	if mode == Check {
		existingObj, _, ok, readErr := readExistingReport(existingReportPath)
		if readErr != nil {
			return nil, readErr
		}
		if !ok {
			status = "FAIL"
			passCheck = false
			reasonCodes = append(reasonCodes, "MISSING_EXISTING_REPLAY_INTEGRITY_REPORT")
		} else {
			expectedHash, _ := existingObj["replay_hash"].(codec.String)
			if len(expectedHash) != 64 {
				status = "FAIL"
				passCheck = false
				reasonCodes = append(reasonCodes, "EXISTING_REPLAY_HASH_INVALID")
			} else {
				expectedHashVal = expectedHash
				if string(expectedHash) != replayHash {
					status = "FAIL"
					passCheck = false
					reasonCodes = append(reasonCodes, "REPLAY_HASH_MISMATCH")
					missingTypes, shaMismatches = diffInputSets(existingObj, manifest)
				}
			}
		}
	}

	if status == "OK" && len(reasonCodes) > 0 {
		status = "FAIL"
	}

	reproducibility := codec.NewObject().
		Set("mode", codec.String(string(mode))).
		Set("expected_replay_hash", expectedHashVal).
		Set("observed_replay_hash", codec.String(replayHash)).
		Set("pass", codec.Bool(passCheck)).
		Build()

	mismatchDiff := codec.NewObject().
		Set("missing_types", missingTypes).
		Set("sha_mismatches", shaMismatches).
		Build()

	body := codec.NewObject().
		Set("replay_hash", codec.String(replayHash)).
		Set("input_hash_set", manifest.ToValue()).
		Set("reproducibility_check", reproducibility).
		Set("mismatch_diff", mismatchDiff).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v2",
		DayUTC:        day,
		ProducedUTC:   day.ProducedUTC(),
		Producer:      prod,
		Status:        status,
		ReasonCodes:   reasonCodes,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func computeReplayHash(day truthpath.DayUTC, manifest inputmanifest.Manifest) (string, error) {
	payload := codec.NewObject().
		Set("day_utc", codec.String(string(day))).
		Set("input_manifest", manifest.ToValue()).
		Build()
	return codec.Hash(payload)
}

func dirEntry(typ, path string) (inputmanifest.Entry, error) {
	sha, err := sha256DirListing(path)
	if err != nil {
		return inputmanifest.Entry{}, err
	}
	present := dirExists(path)
	if !present {
		return inputmanifest.Entry{Type: typ + "_missing", Path: path, Sha256: sha}, nil
	}
	return inputmanifest.Entry{Type: typ, Path: path, Sha256: sha}, nil
}

func readExistingReport(path string) (codec.Object, inputmanifest.Entry, bool, error) {
	if path == "" {
		return nil, inputmanifest.Entry{}, false, nil
	}
	entry, err := inputmanifest.FromFile("existing_replay_integrity_report", path)
	if err != nil {
		return nil, entry, false, err
	}
	if len(entry.Type) > len("_missing") && entry.Type[len(entry.Type)-8:] == "_missing" {
		return nil, entry, false, nil
	}
	data, readErr := readFile(path)
	if readErr != nil {
		return nil, entry, false, readErr
	}
	v, decErr := codec.Decode(data)
	if decErr != nil {
		return nil, entry, false, errs.Wrap(errs.SchemaInvalid, "EXISTING_REPLAY_REPORT_NOT_DECODABLE", path, decErr)
	}
	obj, asErr := codec.AsObject(v)
	if asErr != nil {
		return nil, entry, false, errs.Wrap(errs.SchemaInvalid, "EXISTING_REPLAY_REPORT_NOT_OBJECT", path, asErr)
	}
	return obj, entry, true, nil
}

func diffInputSets(existing codec.Object, observed inputmanifest.Manifest) (missingTypes, shaMismatches codec.Array) {
	existingSet, _ := existing["input_hash_set"].(codec.Array)
	type key struct{ typ, path string }
	expMap := map[key]string{}
	for _, row := range existingSet {
		obj, ok := row.(codec.Object)
		if !ok {
			continue
		}
		t, _ := obj["type"].(codec.String)
		p, _ := obj["path"].(codec.String)
		s, _ := obj["sha256"].(codec.String)
		if t != "" && p != "" && len(s) == 64 {
			expMap[key{string(t), string(p)}] = string(s)
		}
	}
	obsMap := map[key]string{}
	for _, e := range observed {
		obsMap[key{e.Type, e.Path}] = e.Sha256
	}

	var missing []string
	for k := range expMap {
		if _, ok := obsMap[k]; !ok {
			missing = append(missing, k.typ)
		}
	}
	sort.Strings(missing)
	missing = dedupe(missing)
	missingTypes = make(codec.Array, 0, len(missing))
	for _, m := range missing {
		missingTypes = append(missingTypes, codec.String(m))
	}

	type mismatchRow struct{ typ, path, exp, obs string }
	var rows []mismatchRow
	for k, expSha := range expMap {
		if obsSha, ok := obsMap[k]; ok && obsSha != expSha {
			rows = append(rows, mismatchRow{k.typ, k.path, expSha, obsSha})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].typ != rows[j].typ {
			return rows[i].typ < rows[j].typ
		}
		return rows[i].path < rows[j].path
	})
	shaMismatches = make(codec.Array, 0, len(rows))
	for _, r := range rows {
		shaMismatches = append(shaMismatches, codec.NewObject().
			Set("type", codec.String(r.typ)).
			Set("path", codec.String(r.path)).
			Set("expected_sha256", codec.String(r.exp)).
			Set("observed_sha256", codec.String(r.obs)).
			Build())
	}
	return missingTypes, shaMismatches
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// sha256DirListing hashes the canonical {rel, sha256} row list of every
// file under root, sorted by relative path. An absent or non-directory
// root hashes as the empty-bytes sentinel, matching file-input absence.
func sha256DirListing(root string) (string, error) {
	if !dirExists(root) {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	type row struct{ rel, sha string }
	var rows []row
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		rows = append(rows, row{rel: filepath.ToSlash(rel), sha: hex.EncodeToString(h.Sum(nil))})
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].rel < rows[j].rel })

	listing := make(codec.Array, 0, len(rows))
	for _, r := range rows {
		listing = append(listing, codec.NewObject().
			Set("rel", codec.String(r.rel)).
			Set("sha256", codec.String(r.sha)).
			Build())
	}
	encoded, err := codec.Encode(listing)
	if err != nil {
		return "", err
	}
	return codec.HashBytes(encoded), nil
}

func dedupe(ss []string) []string {
	out := make([]string, 0, len(ss))
	seen := map[string]struct{}{}
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
