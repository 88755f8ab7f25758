// Package stressreplay writes the stress & drift sentinel artifact,
// grounded on run_stress_drift_sentinel_day_v1.py: a monitoring-only gate
// that never blocks trading directly (all three upstream inputs are
// optional and every failure mode degrades to a reason code rather than a
// hard error), but surfaces escalation_recommended for the systemic risk
// gate to consume and enforce an operator override on.
package stressreplay

import (
	"os"
	"strings"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/decimal"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "stress_drift_sentinel"

var corrThreshold = mustParse("0.75")

func mustParse(s string) *decimal.Decimal {
	d, err := decimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Inputs names the day's three optional monitoring inputs.
type Inputs struct {
	EngineDailyReturnsPath      string
	EngineCorrelationMatrixPath string
	BrokerReconciliationPath    string
}

// Run folds the day's drift, slippage, and correlation signals into a
// single escalation_recommended verdict.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	var manifest inputmanifest.Manifest
	var reasonCodes []string

	dailyStatus, driftNotes, dailyEntry := loadDailyReturns(in.EngineDailyReturnsPath)
	manifest = append(manifest, dailyEntry)
	driftOK := true

	brokerStatus, cashDiff, slipNotesIn, brokerEntry := loadBrokerRecon(in.BrokerReconciliationPath)
	manifest = append(manifest, brokerEntry)
	slippageOK := brokerStatus == "PASS"
	var slipNotes []string
	if !slippageOK {
		reasonCodes = append(reasonCodes, "Z_SLIPPAGE_OR_RECONCILIATION_NOT_PASS")
		slipNotes = append(slipNotes, "broker_reconciliation_v1_status="+brokerStatus)
	}
	slipNotes = append(slipNotes, slipNotesIn...)

	corrStatus, maxPairwise, corrNotesIn, corrEntry := loadCorr(in.EngineCorrelationMatrixPath)
	manifest = append(manifest, corrEntry)
	stressOK := true
	var corrNotes []string
	if corrStatus != "OK" && corrStatus != "DEGRADED_INSUFFICIENT_HISTORY" {
		stressOK = false
		reasonCodes = append(reasonCodes, "Z_CORRELATION_MATRIX_NOT_OK")
		corrNotes = append(corrNotes, "engine_corr_status="+corrStatus)
	}
	mp, mpErr := decimal.Parse(maxPairwise)
	if mpErr != nil {
		stressOK = false
		reasonCodes = append(reasonCodes, "Z_CORRELATION_MAX_PAIRWISE_PARSE_ERROR")
		corrNotes = append(corrNotes, "max_pairwise_parse_error")
	} else if decimal.Cmp(mp, corrThreshold) >= 0 && !mp.IsZero() {
		stressOK = false
		reasonCodes = append(reasonCodes, "Z_CORRELATION_THRESHOLD_BREACH")
		corrNotes = append(corrNotes, "max_pairwise="+maxPairwise+" threshold=0.75")
	}
	corrNotes = append(corrNotes, corrNotesIn...)

	escalationRecommended := !stressOK || !driftOK || !slippageOK
	status := "OK"
	if escalationRecommended {
		status = "FAIL"
		reasonCodes = append(reasonCodes, "Z_ESCALATION_RECOMMENDED")
	}

	body := codec.NewObject().
		Set("stress_ok", codec.Bool(stressOK)).
		Set("drift_ok", codec.Bool(driftOK)).
		Set("slippage_ok", codec.Bool(slippageOK)).
		Set("escalation_recommended", codec.Bool(escalationRecommended)).
		Set("metrics", codec.NewObject().
			Set("drift", codec.NewObject().
				Set("engine_daily_returns_status", codec.String(dailyStatus)).
				Set("notes", notesOrNone(driftNotes)).
				Build()).
			Set("slippage", codec.NewObject().
				Set("broker_reconciliation_status", codec.String(brokerStatus)).
				Set("cash_diff", codec.String(cashDiff)).
				Set("notes", notesOrNone(slipNotes)).
				Build()).
			Set("correlation", codec.NewObject().
				Set("engine_corr_status", codec.String(corrStatus)).
				Set("max_pairwise", codec.String(maxPairwise)).
				Set("threshold_max_pairwise", codec.String("0.75")).
				Set("notes", notesOrNone(corrNotes)).
				Build()).
			Build()).
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
		SelfHashField: "sentinel_sha256",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func notesOrNone(notes []string) codec.Array {
	if len(notes) == 0 {
		return codec.Array{codec.String("NONE")}
	}
	out := make(codec.Array, len(notes))
	for i, n := range notes {
		out[i] = codec.String(n)
	}
	return out
}

func stringField(o codec.Object, key string) string {
	if s, ok := o[key].(codec.String); ok {
		return string(s)
	}
	return ""
}

func readOptionalObject(typ, path string) (codec.Object, inputmanifest.Entry, bool) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, inputmanifest.Entry{Type: typ + "_missing", Path: path, Sha256: codec.HashBytes(nil)}, false
	}
	entry := inputmanifest.FromBytes(typ, path, data)
	v, decErr := codec.Decode(data)
	if decErr != nil {
		return nil, entry, false
	}
	obj, asErr := codec.AsObject(v)
	if asErr != nil {
		return nil, entry, false
	}
	return obj, entry, true
}

func loadDailyReturns(path string) (status string, notes []string, entry inputmanifest.Entry) {
	obj, e, ok := readOptionalObject("engine_daily_returns_v1", path)
	if !ok {
		if strings.HasSuffix(e.Type, "_missing") {
			return "NOT_AVAILABLE", nil, e
		}
		return "NOT_AVAILABLE", []string{"ENGINE_DAILY_RETURNS_PARSE_ERROR"}, e
	}
	st := stringField(obj, "status")
	if st == "" {
		st = "NOT_AVAILABLE"
	}
	return st, nil, e
}

func loadBrokerRecon(path string) (status, cashDiff string, notes []string, entry inputmanifest.Entry) {
	obj, e, ok := readOptionalObject("broker_reconciliation_v1", path)
	if !ok {
		if e.Type == "broker_reconciliation_v1_missing" {
			return "MISSING", "0", []string{"MISSING_BROKER_RECONCILIATION_V1"}, e
		}
		return "FAIL", "0", []string{"BROKER_RECON_PARSE_ERROR"}, e
	}
	st := stringField(obj, "status")
	if st == "" {
		st = "UNKNOWN"
	}
	cd := stringField(obj, "cash_diff")
	if cd == "" {
		cd = "0"
	}
	return st, cd, nil, e
}

func loadCorr(path string) (status, maxPairwise string, notes []string, entry inputmanifest.Entry) {
	obj, e, ok := readOptionalObject("engine_correlation_matrix_v1", path)
	if !ok {
		if e.Type == "engine_correlation_matrix_v1_missing" {
			return "MISSING", "0.000000", []string{"MISSING_ENGINE_CORRELATION_MATRIX_V1"}, e
		}
		return "FAIL", "0.000000", []string{"ENGINE_CORR_PARSE_ERROR"}, e
	}
	st := stringField(obj, "status")
	if st == "" {
		st = "UNKNOWN"
	}

	maxAbs := decimal.FromInt64(0)
	matrixObj, _ := obj["matrix"].(codec.Object)
	engineIDs, _ := matrixObj["engine_ids"].(codec.Array)
	corrRows, _ := matrixObj["corr"].(codec.Array)
	n := len(engineIDs)

	parseErr := false
	if n > 1 && len(corrRows) == n {
		for i := 0; i < n; i++ {
			row, rowOK := corrRows[i].(codec.Array)
			if !rowOK || len(row) != n {
				parseErr = true
				break
			}
			for j := i + 1; j < n; j++ {
				text := decimalText(row[j])
				c, pErr := decimal.Parse(text)
				if pErr != nil {
					parseErr = true
					break
				}
				absC := new(decimal.Decimal)
				absC.Abs(c)
				absMax := new(decimal.Decimal)
				absMax.Abs(maxAbs)
				if decimal.Cmp(absC, absMax) > 0 {
					maxAbs = c
				}
			}
			if parseErr {
				break
			}
		}
	}

	if parseErr {
		return st, "", []string{"CORR_MAX_PAIRWISE_PARSE_ERROR"}, e
	}

	text, fmtErr := decimal.FixedString(maxAbs, 6)
	if fmtErr != nil {
		return st, "", []string{"CORR_MAX_PAIRWISE_PARSE_ERROR"}, e
	}
	return st, text, nil, e
}

func decimalText(v codec.Value) string {
	switch t := v.(type) {
	case codec.DecimalString:
		return t.Text
	case codec.String:
		return string(t)
	case codec.Int:
		return t.Text
	default:
		return ""
	}
}
