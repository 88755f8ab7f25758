// Package regime classifies the day's risk regime, grounded on
// run_regime_snapshot_v3.py: drawdown depth, engine risk budget ledger
// health, capital-at-risk envelope severity, and broker-truth presence
// during submission days combine into one of four ordered labels
// (CRASH > STRESS > HIGH_RISK > NORMAL), each carrying a fixed risk
// multiplier and a blocking flag. Unlike the other stages in this
// library, regime_snapshot's produced_utc anchors to the end of the
// trading day (day_utc+"T23:59:59Z") rather than midnight, since it
// synthesizes same-day evidence that isn't final until the day closes.
package regime

import (
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/decimal"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "regime_snapshot"

var (
	crashThreshold    = mustParse("-0.150000")
	stressThreshold   = mustParse("-0.100000")
	highRiskThreshold = mustParse("-0.050000")
)

func mustParse(s string) *decimal.Decimal {
	d, err := decimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Inputs is the stage's fixed declared input set.
type Inputs struct {
	AccountingNAVPath          string
	DrawdownSnapshotPath       string
	EngineRiskBudgetLedgerPath string
	CapitalRiskEnvelopeV2Path  string

	SubmissionsPresent bool
	BrokerManifestPath string // only consulted when SubmissionsPresent
}

// Run executes the regime classification stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	manifest := make(inputmanifest.Manifest, 0, 5)

	_, navEntry, navOk, navErr := stagecommon.ReadArtifact("accounting_nav", in.AccountingNAVPath)
	manifest = append(manifest, navEntry)
	if navErr != nil {
		return nil, navErr
	}
	if !navOk {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_NAV", in.AccountingNAVPath)
	}

	ddObj, ddEntry, ddOk, ddErr := stagecommon.ReadArtifact("economic_drawdown_nav_snapshot", in.DrawdownSnapshotPath)
	manifest = append(manifest, ddEntry)
	if ddErr != nil {
		return nil, ddErr
	}
	if !ddOk {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_DRAWDOWN_SNAPSHOT", in.DrawdownSnapshotPath)
	}
	ddVal, _ := ddObj["drawdown_pct"].(codec.DecimalString)
	if ddVal.Text == "" {
		return nil, errs.New(errs.SchemaInvalid, "MISSING_REQUIRED_DRAWDOWN_PCT", in.DrawdownSnapshotPath)
	}
	ddPct, parseErr := decimal.Parse(ddVal.Text)
	if parseErr != nil {
		return nil, parseErr
	}

	riskObj, riskEntry, riskOk, riskErr := stagecommon.ReadArtifact("engine_risk_budget_ledger_v1", in.EngineRiskBudgetLedgerPath)
	manifest = append(manifest, riskEntry)
	if riskErr != nil {
		return nil, riskErr
	}
	if !riskOk {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_ENGINE_RISK_BUDGET_LEDGER", in.EngineRiskBudgetLedgerPath)
	}
	riskStatus := statusOrMissing(riskObj)

	capObj, capEntry, capOk, capErr := stagecommon.ReadArtifact("capital_risk_envelope_v2", in.CapitalRiskEnvelopeV2Path)
	manifest = append(manifest, capEntry)
	if capErr != nil {
		return nil, capErr
	}
	if !capOk {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_CAPITAL_ENVELOPE_V2", in.CapitalRiskEnvelopeV2Path)
	}
	capStatus := statusOrMissing(capObj)
	capSevere := capitalEnvelopeSevereFailure(capObj)

	brokerRequired := in.SubmissionsPresent
	brokerPresent := false
	brokerStatus := "MISSING"
	brokerTruthMissing := false
	if brokerRequired {
		brokerObj, brokerEntry, brokerOk, brokerErr := stagecommon.ReadArtifact("broker_event_day_manifest_v1", in.BrokerManifestPath)
		if brokerErr != nil {
			return nil, brokerErr
		}
		brokerPresent = brokerOk
		manifest = append(manifest, brokerEntry)
		if brokerOk {
			brokerStatus = statusOrMissing(brokerObj)
		}
		if !brokerPresent || brokerStatus != "OK" {
			brokerTruthMissing = true
		}
	}

	var reasonCodes []string
	crash := false
	if decimal.Cmp(ddPct, crashThreshold) <= 0 {
		crash = true
		reasonCodes = append(reasonCodes, "REGIME_CRASH_DRAWDOWN_LEQ_-0_150000")
	}
	if capSevere {
		crash = true
		reasonCodes = append(reasonCodes, "REGIME_CRASH_SEVERE_ENVELOPE_FAILURE_V2")
	}
	if brokerTruthMissing {
		crash = true
		reasonCodes = append(reasonCodes, "REGIME_CRASH_BROKER_TRUTH_MISSING_DURING_SUBMISSIONS")
	}

	stress := false
	if !crash {
		if decimal.Cmp(ddPct, stressThreshold) <= 0 {
			stress = true
			reasonCodes = append(reasonCodes, "REGIME_STRESS_DRAWDOWN_LEQ_-0_100000")
		}
		if capStatus != "PASS" {
			stress = true
			reasonCodes = append(reasonCodes, "REGIME_STRESS_CAPITAL_ENVELOPE_V2_NOT_PASS")
		}
	}

	highRisk := false
	if !crash && !stress {
		if decimal.Cmp(ddPct, highRiskThreshold) <= 0 {
			highRisk = true
			reasonCodes = append(reasonCodes, "REGIME_HIGH_RISK_DRAWDOWN_LEQ_-0_050000")
		}
		if brokerRequired && brokerPresent && (brokerStatus == "DEGRADED" || brokerStatus == "FAIL") {
			highRisk = true
			reasonCodes = append(reasonCodes, "REGIME_HIGH_RISK_BROKER_MANIFEST_NOT_OK")
		}
	}

	label := "NORMAL"
	multiplier := "1.00"
	blocking := false
	switch {
	case crash:
		label, multiplier, blocking = "CRASH", "0.25", true
	case stress:
		label, multiplier, blocking = "STRESS", "0.50", true
	case highRisk:
		label, multiplier, blocking = "HIGH_RISK", "0.75", false
	default:
		if len(reasonCodes) == 0 {
			reasonCodes = append(reasonCodes, "REGIME_NORMAL_NO_TRIGGERS")
		}
	}

	if riskStatus != "OK" {
		blocking = true
		label = "CRASH"
		multiplier = "0.25"
		reasonCodes = append(reasonCodes, "REGIME_CRASH_ENGINE_RISK_BUDGET_LEDGER_NOT_OK")
	}

	evidence := codec.NewObject().
		Set("drawdown_pct", ddVal).
		Set("engine_risk_budget_ledger_status", codec.String(riskStatus)).
		Set("capital_risk_envelope_v2_present", codec.Bool(true)).
		Set("capital_risk_envelope_v2_status", codec.String(capStatus)).
		Set("capital_risk_envelope_v2_severe_failure", codec.Bool(capSevere)).
		Set("submissions_present", codec.Bool(in.SubmissionsPresent)).
		Set("broker_manifest_required", codec.Bool(brokerRequired)).
		Set("broker_manifest_present", codec.Bool(brokerPresent)).
		Set("broker_manifest_status", codec.String(brokerStatus)).
		Set("broker_truth_missing_during_submissions", codec.Bool(brokerTruthMissing)).
		Build()

	body := codec.NewObject().
		Set("regime_label", codec.String(label)).
		Set("risk_multiplier", codec.DecimalString{Text: multiplier}).
		Set("blocking", codec.Bool(blocking)).
		Set("evidence", evidence).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v3",
		DayUTC:        day,
		ProducedUTC:   string(day) + "T23:59:59Z",
		Producer:      prod,
		Status:        "OK",
		ReasonCodes:   reasonCodes,
		InputManifest: manifest,
		SelfHashField: "snapshot_sha256",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func statusOrMissing(obj codec.Object) string {
	v, _ := obj["status"].(codec.String)
	if v == "" {
		return "MISSING"
	}
	return string(v)
}

func capitalEnvelopeSevereFailure(obj codec.Object) bool {
	if statusOrMissing(obj) != "FAIL" {
		return false
	}
	checks, _ := obj["checks"].(codec.Object)
	if checks != nil {
		for _, field := range []string{"nav_present", "drawdown_present", "positions_present", "allocation_summary_present"} {
			if v, ok := checks[field].(codec.Bool); ok && !bool(v) {
				return true
			}
		}
	}
	rcs, _ := obj["reason_codes"].(codec.Array)
	for _, rc := range rcs {
		s, _ := rc.(codec.String)
		if strings.Contains(string(s), "FAILCLOSED") {
			return true
		}
	}
	return false
}
