// Package gatestack writes the single immutable gate_stack_verdict
// artifact for a day, grounded on run_gate_stack_verdict_v1.py's main():
// substitute the day into the registry's artifact_relpath templates,
// delegate to gate.Evaluate for the pure precedence walk, then render its
// Verdict into the artifact envelope.
package gatestack

import (
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/gate"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "gate_stack_verdict"

// Run evaluates reg for day against gate artifacts rooted at root and
// builds the gate_stack_verdict artifact (spec §4.5).
func Run(day truthpath.DayUTC, root truthpath.TruthRoot, reg gate.Registry, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	resolved := substituteDay(reg, day)

	verdict, err := gate.Evaluate(resolved, filesystemLookup(root))
	if err != nil {
		return nil, err
	}

	manifest := make(inputmanifest.Manifest, 0, len(verdict.Gates))
	gatesArr := make(codec.Array, 0, len(verdict.Gates))
	for _, g := range verdict.Gates {
		typ := g.GateID
		if g.ObservedStatus == string(gate.Missing) {
			typ += "_missing"
		}
		manifest = append(manifest, inputmanifest.Entry{Type: typ, Path: g.ArtifactPath, Sha256: g.ArtifactSha256})

		gatesArr = append(gatesArr, codec.NewObject().
			Set("gate_id", codec.String(g.GateID)).
			Set("gate_class", codec.String(g.GateClass)).
			Set("required", codec.Bool(g.Required)).
			Set("blocking", codec.Bool(g.Blocking)).
			Set("status", codec.String(g.ObservedStatus)).
			Set("artifact_path", codec.String(g.ArtifactPath)).
			Set("artifact_sha256", codec.String(g.ArtifactSha256)).
			Set("reason_codes", codec.StringArray(g.ReasonCodes)).
			Build())
	}
	manifest = inputmanifest.Sorted(manifest)

	body := codec.NewObject().
		Set("blocking_class", codec.String(verdict.BlockingClass)).
		Set("gates", gatesArr).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        day,
		ProducedUTC:   day.ProducedUTC(),
		Producer:      prod,
		Status:        verdict.Status,
		ReasonCodes:   verdict.ReasonCodes,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

// substituteDay resolves every gate's "{DAY}" artifact_relpath placeholder,
// keeping gate.Evaluate itself day-agnostic and pure.
func substituteDay(reg gate.Registry, day truthpath.DayUTC) gate.Registry {
	out := reg
	out.Gates = make([]gate.Definition, len(reg.Gates))
	for i, def := range reg.Gates {
		def.ArtifactRelpath = strings.ReplaceAll(def.ArtifactRelpath, "{DAY}", string(day))
		out.Gates[i] = def
	}
	return out
}

func filesystemLookup(root truthpath.TruthRoot) gate.ArtifactLookup {
	return func(relpath string) (codec.Object, string, bool, error) {
		path := root.Join(relpath)
		obj, entry, ok, err := stagecommon.ReadArtifact(relpath, path)
		if err != nil {
			return nil, "", false, err
		}
		if !ok {
			return nil, "", false, nil
		}
		return obj, entry.Sha256, true, nil
	}
}
