// Package pipelinemanifest writes the day's DAG-of-artifacts summary,
// grounded on run_pipeline_manifest_v2.py: one row per upstream stage
// naming its artifact root, presence, deterministic sha256, and item
// count, rolled up into a single status. A stage's absence or non-OK
// status is blocking unless the caller marks it non-blocking (the
// Python's PHASED_SUBMISSIONS/ACCOUNTING rows); blocking failures force
// the manifest itself to FAIL, non-blocking ones DEGRADE it.
package pipelinemanifest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "pipeline_manifest"

var emptySha = sha256Hex(nil)

// Kind distinguishes a single-file stage artifact from a day-keyed
// directory of many files (e.g. the exit-intents or manifests trees).
type Kind int

const (
	FileKind Kind = iota
	DirKind
)

// StatusCheck asks a file-kind stage to also open its artifact and
// inspect top-level fields rather than relying on presence alone.
type StatusCheck struct {
	// StatusField names the body field compared against PassValues ("" disables the check).
	StatusField string
	PassValues  []string
	NotOKReason string
	// BlockingBoolField, if set, is a bool field that FAILs the stage when true (regime's "blocking").
	BlockingBoolField string
	BlockingTrueReason string
}

// StageSpec is one row of the pipeline's DAG, naming where its artifact
// lives and whether its absence blocks the day.
type StageSpec struct {
	StageID      string
	InputType    string
	Kind         Kind
	Path         string // file path (FileKind) or directory (DirKind)
	Glob         string // DirKind only, e.g. "*.json"
	Blocking     bool
	EmptyReason  string // DirKind: reason code when dir exists but has zero matches
	MissingReason string
	Check        *StatusCheck // FileKind only
}

// Run executes the pipeline manifest stage for one day, summarizing every
// named upstream stage into a single DAG-of-artifacts report.
func Run(day truthpath.DayUTC, specs []StageSpec, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	var manifest inputmanifest.Manifest
	var stages codec.Array
	var topReasons []string
	var blockingFailures, nonblockingDegradations int

	for _, spec := range specs {
		row, reasons, blocking, degraded, entry, err := evalStage(spec)
		if err != nil {
			return nil, err
		}
		manifest = append(manifest, entry)
		stages = append(stages, row)
		if blocking {
			blockingFailures++
			topReasons = append(topReasons, reasons...)
		} else if degraded {
			nonblockingDegradations++
			topReasons = append(topReasons, reasons...)
		}
	}

	status := "OK"
	if blockingFailures > 0 {
		status = "FAIL"
	} else if nonblockingDegradations > 0 {
		status = "DEGRADED"
	}

	summary := codec.NewObject().
		Set("blocking_failures", codec.NewInt(int64(blockingFailures))).
		Set("nonblocking_degradations", codec.NewInt(int64(nonblockingDegradations))).
		Build()

	body := codec.NewObject().
		Set("notes", codec.Array{}).
		Set("stages", stages).
		Set("summary", summary).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v2",
		DayUTC:        day,
		Producer:      prod,
		Status:        status,
		ReasonCodes:   topReasons,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func evalStage(spec StageSpec) (row codec.Value, reasons []string, blocking, degraded bool, entry inputmanifest.Entry, err error) {
	switch spec.Kind {
	case DirKind:
		return evalDirStage(spec)
	default:
		return evalFileStage(spec)
	}
}

func evalDirStage(spec StageSpec) (codec.Value, []string, bool, bool, inputmanifest.Entry, error) {
	present := dirExists(spec.Path)
	var count int
	var sha string
	if present {
		count = countMatching(spec.Path, spec.Glob)
		s, err := sha256Dir(spec.Path)
		if err != nil {
			return nil, nil, false, false, inputmanifest.Entry{}, err
		}
		sha = s
	} else {
		sha = emptySha
	}
	entry := inputmanifest.Entry{Type: spec.InputType, Path: spec.Path, Sha256: sha}
	if !present {
		entry.Type = spec.InputType + "_missing"
	}

	var reasons []string
	status := "OK"
	var blocking, degraded bool
	switch {
	case !present:
		status = "MISSING"
		reasons = append(reasons, spec.MissingReason)
	case count == 0:
		status = "FAIL"
		reasons = append(reasons, spec.EmptyReason)
	}
	if len(reasons) > 0 {
		if spec.Blocking {
			blocking = true
		} else {
			degraded = true
			status = "DEGRADED"
		}
	}

	row := buildStageRow(spec.StageID, spec.Path, present, sha, count, status, spec.Blocking, reasons)
	return row, reasons, blocking, degraded, entry, nil
}

func evalFileStage(spec StageSpec) (codec.Value, []string, bool, bool, inputmanifest.Entry, error) {
	entry, err := inputmanifest.FromFile(spec.InputType, spec.Path)
	if err != nil {
		return nil, nil, false, false, inputmanifest.Entry{}, err
	}
	present := !strings.HasSuffix(entry.Type, "_missing")

	var reasons []string
	status := "OK"
	var blocking, degraded bool
	if !present {
		status = "MISSING"
		reasons = append(reasons, spec.MissingReason)
	} else if spec.Check != nil {
		data, readErr := os.ReadFile(spec.Path)
		if readErr != nil {
			return nil, nil, false, false, inputmanifest.Entry{}, readErr
		}
		v, decErr := codec.Decode(data)
		if decErr == nil {
			if obj, asErr := codec.AsObject(v); asErr == nil {
				if spec.Check.StatusField != "" {
					sv, _ := obj[spec.Check.StatusField].(codec.String)
					if !containsFold(spec.Check.PassValues, string(sv)) {
						status = "FAIL"
						reasons = append(reasons, spec.Check.NotOKReason)
					}
				}
				if spec.Check.BlockingBoolField != "" {
					if b, ok := obj[spec.Check.BlockingBoolField].(codec.Bool); ok && bool(b) {
						status = "FAIL"
						reasons = append(reasons, spec.Check.BlockingTrueReason)
					}
				}
			}
		}
	}
	if len(reasons) > 0 {
		if spec.Blocking {
			blocking = true
		} else {
			degraded = true
			status = "DEGRADED"
		}
	}

	row := buildStageRow(spec.StageID, spec.Path, present, entry.Sha256, itemCount(present), status, spec.Blocking, reasons)
	return row, reasons, blocking, degraded, entry, nil
}

func itemCount(present bool) int {
	if present {
		return 1
	}
	return 0
}

func buildStageRow(stageID, root string, present bool, sha string, itemsTotal int, status string, blocking bool, reasons []string) codec.Value {
	counts := codec.NewObject().
		Set("items_total", codec.NewInt(int64(itemsTotal))).
		Set("items_ok", codec.Null{}).
		Set("items_fail", codec.Null{}).
		Build()
	artifacts := codec.NewObject().
		Set("root", codec.String(root)).
		Set("present", codec.Bool(present)).
		Set("sha256", codec.String(sha)).
		Build()
	reasonsVal := make(codec.Array, 0, len(reasons))
	for _, r := range reasons {
		reasonsVal = append(reasonsVal, codec.String(r))
	}
	return codec.NewObject().
		Set("stage_id", codec.String(stageID)).
		Set("status", codec.String(status)).
		Set("blocking", codec.Bool(blocking)).
		Set("reason_codes", reasonsVal).
		Set("counts", counts).
		Set("artifacts", artifacts).
		Build()
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func countMatching(dir, glob string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(glob, e.Name()); ok {
			n++
		}
	}
	return n
}

func sha256Dir(root string) (string, error) {
	type item struct{ rel, sha string }
	var items []item
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
		items = append(items, item{rel: filepath.ToSlash(rel), sha: hex.EncodeToString(h.Sum(nil))})
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	sort.Slice(items, func(i, j int) bool { return items[i].rel < items[j].rel })
	h := sha256.New()
	for _, it := range items {
		h.Write([]byte(it.rel))
		h.Write([]byte("\n"))
		h.Write([]byte(it.sha))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
