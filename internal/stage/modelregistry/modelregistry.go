// Package modelregistry implements the engine model registry gate, grounded
// on run_engine_model_registry_gate_v1.py: every ACTIVE engine's runner file
// must exist on disk with the sha256 the registry declares for it, or the
// engine — and the whole gate — is blocked. approved_git_sha vs the
// producer's observed git sha is audit-only and never fails the gate.
package modelregistry

import (
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

const SchemaID = "engine_model_registry_gate"

// Run evaluates the engine model registry at registryPath for day. Engine
// runner paths in the registry are resolved relative to repoRoot.
func Run(day truthpath.DayUTC, registryPath, repoRoot string, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	data, readErr := os.ReadFile(registryPath)
	if readErr != nil {
		return nil, errs.Wrap(errs.MissingInput, "MISSING_ENGINE_MODEL_REGISTRY", registryPath, readErr)
	}
	regSha := codec.HashBytes(data)

	v, decErr := codec.Decode(data)
	if decErr != nil {
		return nil, errs.Wrap(errs.SchemaInvalid, "ENGINE_MODEL_REGISTRY_DECODE_FAILED", registryPath, decErr)
	}
	reg, asErr := codec.AsObject(v)
	if asErr != nil {
		return nil, asErr
	}

	manifest := inputmanifest.Manifest{
		{Type: "engine_model_registry_v1", Path: registryPath, Sha256: regSha},
	}

	var reasonCodes []string
	var notes []string

	approvedSha := stringField(reg, "approved_git_sha")
	if approvedSha == "" {
		reasonCodes = append(reasonCodes, "APPROVED_GIT_SHA_MISSING")
		notes = append(notes, "approved_git_sha missing/empty in registry (structural)")
	} else if approvedSha != prod.GitSha {
		notes = append(notes, "approved_git_sha="+approvedSha+" current_git_sha="+prod.GitSha+" (audit-only mismatch)")
	}

	enginesArr, _ := reg["engines"].(codec.Array)
	engineResults := make(codec.Array, 0, len(enginesArr))

	for _, ev := range enginesArr {
		eObj, ok := ev.(codec.Object)
		if !ok {
			continue
		}
		engineID := stringField(eObj, "engine_id")
		status := stringField(eObj, "activation_status")
		runnerRel := stringField(eObj, "engine_runner_path")
		runnerExpected := stringField(eObj, "engine_runner_sha256")
		runnerPath := filepath.Join(repoRoot, runnerRel)

		ok2 := true
		var rc []string

		if status != "ACTIVE" {
			ok2 = false
			rc = append(rc, "ENGINE_NOT_ACTIVE")
		}

		var runnerActual string
		runnerData, runnerErr := os.ReadFile(runnerPath)
		if runnerErr != nil {
			ok2 = false
			rc = append(rc, "MISSING_ENGINE_RUNNER_FILE")
			runnerActual = codec.HashBytes(nil)
		} else {
			runnerActual = codec.HashBytes(runnerData)
			if runnerActual != runnerExpected {
				ok2 = false
				rc = append(rc, "ENGINE_RUNNER_SHA256_MISMATCH")
			}
		}

		manifest = append(manifest, inputmanifest.Entry{
			Type: "engine_runner:" + engineID, Path: runnerPath, Sha256: runnerActual,
		})

		if !ok2 {
			reasonCodes = append(reasonCodes, "ENGINE_BLOCKED:"+engineID)
		}

		engineResults = append(engineResults, codec.NewObject().
			Set("engine_id", codec.String(engineID)).
			Set("activation_status", codec.String(status)).
			Set("runner_path", codec.String(runnerPath)).
			Set("runner_sha256_expected", codec.String(runnerExpected)).
			Set("runner_sha256_actual", codec.String(runnerActual)).
			Set("ok", codec.Bool(ok2)).
			Set("reason_codes", codec.StringArray(rc)).
			Build())
	}

	status := "PASS"
	if len(reasonCodes) > 0 {
		status = "FAIL"
	}

	notesArr := make(codec.Array, 0, len(notes))
	sort.Strings(notes)
	for _, n := range notes {
		notesArr = append(notesArr, codec.String(n))
	}

	results := codec.NewObject().
		Set("approved_git_sha", codec.String(approvedSha)).
		Set("current_git_sha", codec.String(prod.GitSha)).
		Set("engines", engineResults).
		Build()

	body := codec.NewObject().
		Set("notes", notesArr).
		Set("results", results).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        day,
		ProducedUTC:   day.ProducedUTC(),
		Producer:      prod,
		Status:        status,
		ReasonCodes:   reasonCodes,
		InputManifest: inputmanifest.Sorted(manifest),
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func stringField(o codec.Object, key string) string {
	if s, ok := o[key].(codec.String); ok {
		return string(s)
	}
	return ""
}
