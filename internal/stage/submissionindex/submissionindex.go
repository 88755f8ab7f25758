// Package submissionindex writes the daily submission index, grounded on
// run_submission_index_day_v1.py: joins each day's per-submission
// manifest files against the broker submission record, execution event
// record, order plan, binding record, and mapping ledger record they
// point to, producing one summary item per manifest. The join can never
// establish which trading engine originated a submission from day-scoped
// inputs alone, so every item carries engine_id "unknown" and the
// ENGINE_JOIN_NOT_POSSIBLE_WITHOUT_ENGINE_LINKAGE warning rather than
// guessing. Unlike the original, referenced-file modification times are
// not recorded: this artifact's bytes must be a pure function of file
// content, and mtimes are not.
package submissionindex

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "submission_index"

// Inputs is the stage's fixed declared input set: the day's manifests
// directory, one *.manifest.json file per submission.
type Inputs struct {
	ManifestsDayDir string
}

// Run executes the submission index stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	manifestFiles, listErr := listManifestFiles(in.ManifestsDayDir)
	if listErr != nil {
		return nil, listErr
	}

	manifest := make(inputmanifest.Manifest, 0, len(manifestFiles)+1)
	manifest = append(manifest, inputmanifest.FromBytes("submission_manifests_day_dir", in.ManifestsDayDir, presenceSentinel(dirExists(in.ManifestsDayDir))))

	if !dirExists(in.ManifestsDayDir) {
		body := codec.NewObject().
			Set("items", codec.Array{}).
			Set("source_paths", codec.Array{}).
			Set("missing_paths", codec.StringArray([]string{in.ManifestsDayDir})).
			Build()
		return build(day, prod, schemaValidate, "FAIL", []string{"MANIFESTS_ROOT_MISSING"}, manifest, body)
	}

	if len(manifestFiles) == 0 {
		body := codec.NewObject().
			Set("items", codec.Array{}).
			Set("source_paths", codec.Array{}).
			Set("missing_paths", codec.Array{}).
			Build()
		return build(day, prod, schemaValidate, "DEGRADED_NO_MANIFESTS_FOUND", []string{"NO_MANIFESTS_FOUND_FOR_DAY"}, manifest, body)
	}

	var (
		items        codec.Array
		sourcePaths  []string
		missingPaths []string
		globalWarn   []string
		degraded     bool
	)

	for _, mp := range manifestFiles {
		sourcePaths = append(sourcePaths, mp)
		data, readErr := os.ReadFile(mp)
		manifest = append(manifest, inputmanifest.FromBytes("submission_manifest_file", mp, data))
		if readErr != nil {
			globalWarn = append(globalWarn, "MANIFEST_UNREADABLE")
			missingPaths = append(missingPaths, mp)
			degraded = true
			continue
		}
		man, decErr := codec.Decode(data)
		if decErr != nil {
			globalWarn = append(globalWarn, "MANIFEST_JSON_DECODE_ERROR")
			missingPaths = append(missingPaths, mp)
			degraded = true
			continue
		}
		manObj, asErr := codec.AsObject(man)
		if asErr != nil {
			globalWarn = append(globalWarn, "MANIFEST_NOT_OBJECT")
			degraded = true
			continue
		}

		if dayField, _ := manObj["day_utc"].(codec.String); string(dayField) != string(day) {
			globalWarn = append(globalWarn, "MANIFEST_DAY_MISMATCH")
			degraded = true
		}

		var itemWarnings []string

		sub, _ := manObj["submission"].(codec.Object)
		if sub == nil {
			globalWarn = append(globalWarn, "MANIFEST_SUBMISSION_MISSING_OR_INVALID")
			degraded = true
			continue
		}

		submissionID, _ := sub["submission_id"].(codec.String)
		artifactDir, _ := sub["artifact_dir"].(codec.String)
		if submissionID == "" {
			itemWarnings = append(itemWarnings, "SUBMISSION_ID_MISSING")
		}
		if artifactDir == "" {
			itemWarnings = append(itemWarnings, "ARTIFACT_DIR_MISSING")
		}

		pBroker, hBroker := extractPointer(sub["broker_submission_record"])
		pExec, hExec := extractPointer(sub["execution_event_record"])
		pPlan, hPlan := extractPointer(sub["order_plan"])
		pBind, hBind := extractPointer(sub["binding_record"])
		pMap, hMap := extractPointer(sub["mapping_ledger_record"])

		var brokerObj, execObj, planObj, mapObj codec.Object
		if pBroker != "" {
			obj, warn := readReferenced(pBroker, "BROKER_SUBMISSION_RECORD_UNREADABLE")
			if warn != "" {
				itemWarnings = append(itemWarnings, warn)
				missingPaths = append(missingPaths, pBroker)
			}
			brokerObj = obj
		} else {
			itemWarnings = append(itemWarnings, "BROKER_SUBMISSION_RECORD_POINTER_MISSING")
		}
		if pExec != "" {
			obj, warn := readReferenced(pExec, "EXECUTION_EVENT_RECORD_UNREADABLE")
			if warn != "" {
				itemWarnings = append(itemWarnings, warn)
				missingPaths = append(missingPaths, pExec)
			}
			execObj = obj
		}
		if pPlan != "" {
			obj, warn := readReferenced(pPlan, "ORDER_PLAN_UNREADABLE")
			if warn != "" {
				itemWarnings = append(itemWarnings, warn)
				missingPaths = append(missingPaths, pPlan)
			}
			planObj = obj
		}
		if pBind != "" {
			_, warn := readReferenced(pBind, "BINDING_RECORD_UNREADABLE")
			if warn != "" {
				itemWarnings = append(itemWarnings, warn)
				missingPaths = append(missingPaths, pBind)
			}
		}
		if pMap != "" {
			obj, warn := readReferenced(pMap, "MAPPING_LEDGER_RECORD_UNREADABLE")
			if warn != "" {
				itemWarnings = append(itemWarnings, warn)
				missingPaths = append(missingPaths, pMap)
			}
			mapObj = obj
		}
		if len(itemWarnings) > 0 {
			degraded = true
		}

		var bindingHash, broker, brokerStatus, submittedAt codec.Value = codec.Null{}, codec.Null{}, codec.Null{}, codec.Null{}
		var brokerIDs codec.Value = codec.Null{}
		if brokerObj != nil {
			bindingHash = stringOrNull(brokerObj["binding_hash"])
			broker = stringOrNull(brokerObj["broker"])
			brokerStatus = stringOrNull(brokerObj["status"])
			submittedAt = stringOrNull(brokerObj["submitted_at_utc"])
			if ids, ok := brokerObj["broker_ids"].(codec.Object); ok {
				brokerIDs = ids
			}
		}

		execSummary := codec.NewObject().
			Set("status", codec.Null{}).
			Set("filled_qty", codec.Null{}).
			Set("avg_price", codec.Null{}).
			Set("event_time_utc", codec.Null{}).
			Set("perm_id", codec.Null{}).
			Set("broker_order_id", codec.Null{}).
			Build()
		if execObj != nil {
			execSummary = codec.NewObject().
				Set("status", stringOrNull(execObj["status"])).
				Set("filled_qty", valueOrNull(execObj["filled_qty"])).
				Set("avg_price", valueOrNull(execObj["avg_price"])).
				Set("event_time_utc", stringOrNull(execObj["event_time_utc"])).
				Set("perm_id", valueOrNull(execObj["perm_id"])).
				Set("broker_order_id", valueOrNull(execObj["broker_order_id"])).
				Build()
		}

		intentHash := codec.Value(codec.Null{})
		planSchemaID := codec.Value(codec.Null{})
		planSchemaVersion := codec.Value(codec.Null{})
		underlying := codec.Value(codec.Null{})
		structure := codec.Value(codec.Null{})
		planID := codec.Value(codec.Null{})
		if planObj != nil {
			planID = stringOrNull(planObj["plan_id"])
			intentHash = stringOrNull(planObj["intent_hash"])
			underlying = stringOrNull(planObj["underlying"])
			structure = stringOrNull(planObj["structure"])
			planSchemaID = stringOrNull(planObj["schema_id"])
			planSchemaVersion = valueOrNull(planObj["schema_version"])
		}
		if _, isNull := intentHash.(codec.Null); isNull && mapObj != nil {
			if ih, ok := mapObj["intent_hash"].(codec.String); ok && ih != "" {
				intentHash = ih
			}
		}
		planSummary := codec.NewObject().
			Set("plan_id", planID).
			Set("intent_hash", intentHash).
			Set("underlying", underlying).
			Set("structure", structure).
			Set("schema_id", planSchemaID).
			Set("schema_version", planSchemaVersion).
			Build()

		itemWarnings = append(itemWarnings, "ENGINE_JOIN_NOT_POSSIBLE_WITHOUT_ENGINE_LINKAGE")

		fallbackID := "unknown"
		if artifactDir != "" {
			fallbackID = filepath.Base(string(artifactDir))
		}
		idValue := string(submissionID)
		if idValue == "" {
			idValue = fallbackID
		}

		item := codec.NewObject().
			Set("submission_id", codec.String(idValue)).
			Set("day_utc", codec.String(string(day))).
			Set("engine_id", codec.String("unknown")).
			Set("binding_hash", bindingHash).
			Set("broker", broker).
			Set("broker_status", brokerStatus).
			Set("submitted_at_utc", submittedAt).
			Set("broker_ids", brokerIDs).
			Set("paths", codec.NewObject().
				Set("submission_dir", stringOrNull(sub["artifact_dir"])).
				Set("broker_submission_record", stringOrNull(codec.String(pBroker))).
				Set("execution_event_record", stringOrNull(codec.String(pExec))).
				Set("order_plan", stringOrNull(codec.String(pPlan))).
				Set("binding_record", stringOrNull(codec.String(pBind))).
				Set("mapping_ledger_record", stringOrNull(codec.String(pMap))).
				Set("manifest", codec.String(mp)).
				Build()).
			Set("sha256", codec.NewObject().
				Set("broker_submission_record", stringOrNull(codec.String(hBroker))).
				Set("execution_event_record", stringOrNull(codec.String(hExec))).
				Set("order_plan", stringOrNull(codec.String(hPlan))).
				Set("binding_record", stringOrNull(codec.String(hBind))).
				Set("mapping_ledger_record", stringOrNull(codec.String(hMap))).
				Set("manifest", codec.Null{}).
				Build()).
			Set("execution", execSummary).
			Set("order_plan", planSummary).
			Set("warnings", codec.StringArray(itemWarnings)).
			Build()

		items = append(items, item)
	}

	status := "OK"
	if len(missingPaths) > 0 || degraded {
		status = "DEGRADED"
	}
	if len(items) == 0 {
		status = "DEGRADED_NO_MANIFESTS_FOUND"
		globalWarn = append(globalWarn, "NO_MANIFESTS_FOUND_FOR_DAY")
	} else {
		globalWarn = append(globalWarn, "ENGINE_JOIN_NOT_POSSIBLE_WITHOUT_ENGINE_LINKAGE")
	}

	body := codec.NewObject().
		Set("items", items).
		Set("source_paths", codec.StringArray(dedupe(sourcePaths))).
		Set("missing_paths", codec.StringArray(dedupe(missingPaths))).
		Build()

	return build(day, prod, schemaValidate, status, globalWarn, manifest, body)
}

func build(day truthpath.DayUTC, prod producer.Identity, schemaValidate func(string, []byte) error, status string, reasonCodes []string, manifest inputmanifest.Manifest, body codec.Object) (*artifact.Artifact, error) {
	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        day,
		ProducedUTC:   string(day) + "T00:00:00Z",
		Producer:      prod,
		Status:        status,
		ReasonCodes:   reasonCodes,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func extractPointer(v codec.Value) (path, sha string) {
	obj, ok := v.(codec.Object)
	if !ok {
		return "", ""
	}
	p, _ := obj["path"].(codec.String)
	h, _ := obj["sha256"].(codec.String)
	return string(p), string(h)
}

func readReferenced(path, failWarning string) (codec.Object, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failWarning
	}
	v, decErr := codec.Decode(data)
	if decErr != nil {
		return nil, failWarning
	}
	obj, asErr := codec.AsObject(v)
	if asErr != nil {
		return nil, failWarning
	}
	return obj, ""
}

func stringOrNull(v codec.Value) codec.Value {
	s, ok := v.(codec.String)
	if !ok || s == "" {
		return codec.Null{}
	}
	return s
}

func valueOrNull(v codec.Value) codec.Value {
	if v == nil {
		return codec.Null{}
	}
	return v
}

func listManifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.MissingInput, "MANIFESTS_DAY_DIR_UNREADABLE", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".manifest.json") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func presenceSentinel(present bool) []byte {
	if present {
		return []byte("present")
	}
	return []byte{}
}

func dedupe(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
