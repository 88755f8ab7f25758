// Package operatorgate writes the operator daily gate, grounded on
// run_operator_daily_gate_v3.py: the day's single go/no-go verdict,
// folding reconciliation status, positions/allocation presence, the
// capital risk envelope verdict, cash ledger integrity, and exit
// reconciliation enforcement into one PASS/FAIL. Every required input's
// absence is its own reason code rather than a generic "inputs missing",
// so an operator reading reason_codes never has to re-derive which
// upstream artifact was the problem.
package operatorgate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "operator_daily_gate"

// Inputs is the stage's fixed declared input set. PositionsSnapshotPath
// and ExitReconciliationPath are already resolved by the caller to the
// day's effective variant (spec's VariantAuthority, Open Question #1).
type Inputs struct {
	ReconciliationV3Path  string
	PositionsSnapshotPath string
	AllocationSummaryPath string
	CapitalRiskEnvelopeV2 string
	CashLedgerFailurePath string
	CashLedgerSnapshot    string
	ExitReconciliationV1  string
	ExitIntentsDayDir     string
}

// Run executes the operator daily gate stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	var manifest inputmanifest.Manifest
	var reasonCodes, notes []string

	reconStatus, reconEntry, reconErr := readStatusOnly("reconciliation_report_v3", in.ReconciliationV3Path)
	if reconErr != nil {
		return nil, reconErr
	}
	manifest = append(manifest, reconEntry)
	if reconStatus == "MISSING" {
		reasonCodes = append(reasonCodes, "MISSING_RECONCILIATION_REPORT_V3")
	} else if reconStatus != "OK" {
		reasonCodes = append(reasonCodes, "RECONCILIATION_V3_NOT_OK")
	}

	posPresent, posEntry, posErr := presenceOnly("positions_snapshot", in.PositionsSnapshotPath)
	if posErr != nil {
		return nil, posErr
	}
	manifest = append(manifest, posEntry)
	if !posPresent {
		reasonCodes = append(reasonCodes, "MISSING_POSITIONS_SNAPSHOT")
	}

	allocPresent, allocEntry, allocErr := presenceOnly("allocation_summary", in.AllocationSummaryPath)
	if allocErr != nil {
		return nil, allocErr
	}
	manifest = append(manifest, allocEntry)
	if !allocPresent {
		reasonCodes = append(reasonCodes, "MISSING_ALLOCATION_SUMMARY")
	}

	capStatus, capEntry, capErr := readStatusOnly("capital_risk_envelope_v2", in.CapitalRiskEnvelopeV2)
	if capErr != nil {
		return nil, capErr
	}
	manifest = append(manifest, capEntry)
	if capStatus == "MISSING" {
		reasonCodes = append(reasonCodes, "MISSING_CAPITAL_RISK_ENVELOPE_V2")
	} else if capStatus != "PASS" {
		reasonCodes = append(reasonCodes, "CAPITAL_RISK_ENVELOPE_V2_NOT_PASS")
	}

	cashFailPresent, cashFailEntry, cashFailErr := presenceOnly("cash_ledger_failure_v1", in.CashLedgerFailurePath)
	if cashFailErr != nil {
		return nil, cashFailErr
	}
	manifest = append(manifest, cashFailEntry)
	if cashFailPresent {
		reasonCodes = append(reasonCodes, "CASH_LEDGER_FAILURE_PRESENT_FAILCLOSED")
	}

	cashPresent, cashIntegrityOK, cashEntry, cashErr := checkCashSnapshot(day, in.CashLedgerSnapshot)
	if cashErr != nil {
		return nil, cashErr
	}
	manifest = append(manifest, cashEntry)
	if !cashPresent {
		reasonCodes = append(reasonCodes, "MISSING_CASH_LEDGER_SNAPSHOT")
	} else if !cashIntegrityOK {
		reasonCodes = append(reasonCodes, "CASH_LEDGER_SNAPSHOT_DAY_INTEGRITY_FAILCLOSED")
	}

	exitPresent, obligationEngineIDs, exitEntry, exitParseFailed, exitErr := readExitReconciliation(in.ExitReconciliationV1)
	if exitErr != nil {
		return nil, exitErr
	}
	manifest = append(manifest, exitEntry)
	exitIntentsSatisfied := true
	if !exitPresent {
		reasonCodes = append(reasonCodes, "MISSING_EXIT_RECONCILIATION_V1")
		exitIntentsSatisfied = false
	} else if exitParseFailed {
		reasonCodes = append(reasonCodes, "EXIT_RECONCILIATION_PARSE_ERROR_FAILCLOSED")
		exitIntentsSatisfied = false
	}
	if len(obligationEngineIDs) > 0 {
		satisfiedIDs, scanErr := scanSatisfiedExitIntents(in.ExitIntentsDayDir, string(day))
		if scanErr != nil {
			return nil, scanErr
		}
		var unsatisfied []string
		for _, eid := range obligationEngineIDs {
			if !satisfiedIDs[eid] {
				unsatisfied = append(unsatisfied, eid)
			}
		}
		if len(unsatisfied) > 0 {
			sort.Strings(unsatisfied)
			reasonCodes = append(reasonCodes, "EXIT_INTENTS_UNSATISFIED_FAILCLOSED")
			notes = append(notes, "missing_exit_intents_for_engines="+strings.Join(unsatisfied, ","))
			exitIntentsSatisfied = false
		}
	}

	status := "PASS"
	if len(reasonCodes) > 0 {
		status = "FAIL"
	}

	checks := codec.NewObject().
		Set("reconciliation_v3_status", codec.String(normalizeStatus(reconStatus, "OK", "FAIL", "MISSING"))).
		Set("cash_ledger_integrity_ok", codec.Bool(cashPresent && cashIntegrityOK && !cashFailPresent)).
		Set("positions_snapshot_present", codec.Bool(posPresent)).
		Set("allocation_summary_present", codec.Bool(allocPresent)).
		Set("capital_risk_envelope_v2_status", codec.String(normalizeStatus(capStatus, "PASS", "FAIL", "MISSING"))).
		Set("exit_reconciliation_present", codec.Bool(exitPresent)).
		Set("exit_intents_satisfied_when_obligations_exist", codec.Bool(exitIntentsSatisfied)).
		Build()

	body := codec.NewObject().
		Set("notes", stringsToValue(notes)).
		Set("checks", checks).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v3",
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

func normalizeStatus(status string, allowed ...string) string {
	for _, a := range allowed {
		if status == a {
			return status
		}
	}
	return "MISSING"
}

func readStatusOnly(typ, path string) (string, inputmanifest.Entry, error) {
	obj, entry, ok, err := stagecommon.ReadArtifact(typ, path)
	if err != nil {
		return "", entry, err
	}
	if !ok {
		return "MISSING", entry, nil
	}
	v, _ := obj["status"].(codec.String)
	if v == "" {
		return "MISSING", entry, nil
	}
	return string(v), entry, nil
}

func presenceOnly(typ, path string) (bool, inputmanifest.Entry, error) {
	entry, err := inputmanifest.FromFile(typ, path)
	if err != nil {
		return false, inputmanifest.Entry{}, err
	}
	return !strings.HasSuffix(entry.Type, "_missing"), entry, nil
}

func checkCashSnapshot(day truthpath.DayUTC, path string) (present, integrityOK bool, entry inputmanifest.Entry, err error) {
	obj, e, ok, readErr := stagecommon.ReadArtifact("cash_ledger_snapshot_v1", path)
	if readErr != nil {
		return false, false, e, readErr
	}
	if !ok {
		return false, false, e, nil
	}
	prefix := string(day) + "T"
	producedUTC, _ := obj["produced_utc"].(codec.String)
	snap, _ := obj["snapshot"].(codec.Object)
	observedAtUTC, _ := snap["observed_at_utc"].(codec.String)
	ok1 := strings.HasPrefix(string(producedUTC), prefix)
	ok2 := strings.HasPrefix(string(observedAtUTC), prefix)
	return true, ok1 && ok2, e, nil
}

func readExitReconciliation(path string) (present bool, obligationEngineIDs []string, entry inputmanifest.Entry, parseFailed bool, err error) {
	obj, e, ok, readErr := stagecommon.ReadArtifact("exit_reconciliation_v1", path)
	if readErr != nil {
		return false, nil, e, false, readErr
	}
	if !ok {
		return false, nil, e, false, nil
	}
	obligations, isArr := obj["obligations"].(codec.Array)
	if !isArr {
		return true, nil, e, true, nil
	}
	seen := map[string]struct{}{}
	for _, item := range obligations {
		row, isObj := item.(codec.Object)
		if !isObj {
			continue
		}
		eid, _ := row["engine_id"].(codec.String)
		if eid == "" {
			continue
		}
		seen[string(eid)] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return true, ids, e, false, nil
}

func scanSatisfiedExitIntents(dir, day string) (map[string]bool, error) {
	out := map[string]bool{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, fi := range entries {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(dir, fi.Name()))
		if readErr != nil {
			continue
		}
		v, decErr := codec.Decode(data)
		if decErr != nil {
			continue
		}
		obj, asErr := codec.AsObject(v)
		if asErr != nil {
			continue
		}
		schemaID, _ := obj["schema_id"].(codec.String)
		schemaVersion, _ := obj["schema_version"].(codec.String)
		if string(schemaID) != "exposure_intent" || string(schemaVersion) != "v1" {
			continue
		}
		targetPct, _ := obj["target_notional_pct"].(codec.DecimalString)
		if targetPct.Text != "0" && targetPct.Text != "0.000000" {
			continue
		}
		engineBlock, _ := obj["engine"].(codec.Object)
		engineID, _ := engineBlock["engine_id"].(codec.String)
		if engineID == "" {
			continue
		}
		out[string(engineID)] = true
	}
	return out, nil
}

func stringsToValue(ss []string) codec.Array {
	out := make(codec.Array, len(ss))
	for i, s := range ss {
		out[i] = codec.String(s)
	}
	return out
}
