// Package envelope writes the capital risk envelope gate, grounded on
// run_c2_capital_risk_envelope_gate_v2.py: sums max_loss_cents across
// open positions, compares it against the day's drawdown-scaled
// allowance from internal/drawdown, and PASSes only when every check
// holds. An empty open-positions list is SAFE_IDLE and trivially within
// envelope. A missing drawdown figure, or any open position lacking a
// non-negative max_loss_cents, fails closed rather than guessing a risk
// sum.
package envelope

import (
	"sort"
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/decimal"
	"github.com/constellation2/truthcore/internal/drawdown"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "capital_risk_envelope"

var tableRows = codec.Array{
	codec.NewObject().Set("threshold_drawdown_pct", codec.DecimalString{Text: "0.000000"}).Set("multiplier", codec.DecimalString{Text: "1.00"}).Build(),
	codec.NewObject().Set("threshold_drawdown_pct", codec.DecimalString{Text: "-0.050000"}).Set("multiplier", codec.DecimalString{Text: "0.75"}).Build(),
	codec.NewObject().Set("threshold_drawdown_pct", codec.DecimalString{Text: "-0.100000"}).Set("multiplier", codec.DecimalString{Text: "0.50"}).Build(),
	codec.NewObject().Set("threshold_drawdown_pct", codec.DecimalString{Text: "-0.150000"}).Set("multiplier", codec.DecimalString{Text: "0.25"}).Build(),
}

// Inputs is the stage's fixed declared input set. PositionsSnapshotV3Path
// is preferred; PositionsSnapshotV2Path is consulted only when v3 is
// absent.
type Inputs struct {
	AllocationSummaryPath   string
	NavPath                 string
	PositionsSnapshotV3Path string
	PositionsSnapshotV2Path string
}

// Run executes the capital risk envelope gate for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	manifest := make(inputmanifest.Manifest, 0, 3)
	var reasonCodes, notes []string

	allocObj, allocEntry, allocOk, allocErr := stagecommon.ReadArtifact("allocation_summary", in.AllocationSummaryPath)
	manifest = append(manifest, allocEntry)
	if allocErr != nil {
		return nil, allocErr
	}
	allocationPresent := allocOk && allocObj != nil
	if !allocationPresent {
		reasonCodes = append(reasonCodes, "B2_ALLOC_SUMMARY_SCHEMA_INVALID")
		notes = append(notes, "allocation_summary missing or not an object")
	}

	navObj, navEntry, navOk, navErr := stagecommon.ReadArtifact("accounting_nav", in.NavPath)
	manifest = append(manifest, navEntry)
	if navErr != nil {
		return nil, navErr
	}
	navPresent := navOk
	var navTotal int64
	var peakNav, drawdownAbs codec.Value = codec.Null{}, codec.Null{}
	var drawdownPctRaw string
	if navOk {
		navBlock, _ := navObj["nav"].(codec.Object)
		if navTotalVal, isInt := navBlock["nav_total"].(codec.Int); isInt {
			n, parseErr := decimal.Parse(navTotalVal.Text)
			if parseErr != nil {
				return nil, parseErr
			}
			navTotal = mustInt64(n)
		} else {
			navPresent = false
		}
		if hist, ok := navObj["history"].(codec.Object); ok {
			if v, ok := hist["peak_nav"].(codec.Int); ok {
				peakNav = v
			}
			if v, ok := hist["drawdown_abs"].(codec.Int); ok {
				drawdownAbs = v
			}
			if v, ok := hist["drawdown_pct"].(codec.DecimalString); ok {
				drawdownPctRaw = v.Text
			}
		}
	}
	if !navPresent {
		reasonCodes = append(reasonCodes, "B2_NAV_TOTAL_MISSING_OR_INVALID")
	}
	navTotalCents := navTotal * 100

	positionsPath := in.PositionsSnapshotV3Path
	posObj, posEntry, posOk, posErr := stagecommon.ReadArtifact("positions_snapshot_v3", positionsPath)
	if posErr != nil {
		return nil, posErr
	}
	if !posOk {
		positionsPath = in.PositionsSnapshotV2Path
		posObj, posEntry, posOk, posErr = stagecommon.ReadArtifact("positions_snapshot_v2", positionsPath)
		if posErr != nil {
			return nil, posErr
		}
	}
	manifest = append(manifest, posEntry)
	positionsPresent := posOk

	var items codec.Array
	if posOk {
		positionsBlock, _ := posObj["positions"].(codec.Object)
		arr, ok := positionsBlock["items"].(codec.Array)
		if !ok {
			positionsPresent = false
			reasonCodes = append(reasonCodes, "B2_POSITIONS_ITEMS_INVALID_OR_MISSING")
		} else {
			items = arr
		}
	} else {
		reasonCodes = append(reasonCodes, "B2_POSITIONS_ITEMS_INVALID_OR_MISSING")
	}

	var drawdownPresent bool
	var multiplier *decimal.Decimal
	var drawdownPctQ *decimal.Decimal
	if drawdownPctRaw != "" {
		parsed, parseErr := decimal.Parse(drawdownPctRaw)
		if parseErr != nil {
			return nil, parseErr
		}
		q, quantErr := decimal.Quantize(parsed, decimal.Scale6)
		if quantErr != nil {
			return nil, quantErr
		}
		drawdownPctQ = q
		multiplier = drawdown.Multiplier(q)
		drawdownPresent = true
	} else {
		reasonCodes = append(reasonCodes, "B2_DRAWDOWN_MISSING_FAILCLOSED")
		notes = append(notes, "drawdown_pct missing/null at enforcement time -> fail closed")
	}

	type posRow struct {
		id, engineID, exposureType, status string
		maxLossCents                       int64
		hasMaxLoss                         bool
	}
	rows := make([]posRow, 0, len(items))
	for _, it := range items {
		obj, ok := it.(codec.Object)
		if !ok {
			continue
		}
		r := posRow{
			id:           stringField(obj, "position_id", "unknown"),
			engineID:     stringField(obj, "engine_id", "unknown"),
			exposureType: stringField(obj, "market_exposure_type", "unknown"),
			status:       stringField(obj, "status", "unknown"),
		}
		if v, ok := obj["max_loss_cents"].(codec.Int); ok {
			n, parseErr := decimal.Parse(v.Text)
			if parseErr != nil {
				return nil, parseErr
			}
			if !n.Negative {
				r.maxLossCents = mustInt64(n)
				r.hasMaxLoss = true
			}
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	var riskSum int64
	allHaveMax := true
	breakdown := make(codec.Array, 0, len(rows))
	for _, r := range rows {
		included := false
		if r.status == "OPEN" {
			if r.hasMaxLoss {
				included = true
				riskSum += r.maxLossCents
			} else {
				allHaveMax = false
			}
		}
		maxLossVal := codec.Value(codec.Null{})
		if r.hasMaxLoss {
			maxLossVal = codec.NewInt(r.maxLossCents)
		}
		breakdown = append(breakdown, codec.NewObject().
			Set("position_id", codec.String(r.id)).
			Set("engine_id", codec.String(r.engineID)).
			Set("market_exposure_type", codec.String(r.exposureType)).
			Set("status", codec.String(r.status)).
			Set("max_loss_cents", maxLossVal).
			Set("included_in_risk_sum", codec.Bool(included)).
			Build())
	}
	if !allHaveMax {
		reasonCodes = append(reasonCodes, "B2_OPEN_POSITION_MISSING_MAX_LOSS_FAILCLOSED")
		notes = append(notes, "at least one OPEN position lacks max_loss_cents; cannot compute capital-at-risk -> fail closed")
	}

	var allowedVal, riskSumVal, headroomVal, multiplierVal, drawdownPctVal codec.Value = codec.Null{}, codec.Null{}, codec.Null{}, codec.Null{}, codec.Null{}
	withinEnvelope := false
	if drawdownPresent {
		multText, textErr := decimal.FixedString(multiplier, 2)
		if textErr != nil {
			return nil, textErr
		}
		multiplierVal = codec.DecimalString{Text: multText}
		ddText, ddErr := decimal.FixedString(drawdownPctQ, 6)
		if ddErr != nil {
			return nil, ddErr
		}
		drawdownPctVal = codec.DecimalString{Text: ddText}
	}
	if drawdownPresent && allHaveMax {
		allowedCents, allowedErr := drawdown.AllowedCents(navTotalCents, multiplier)
		if allowedErr != nil {
			return nil, allowedErr
		}
		riskSumVal = codec.NewInt(riskSum)
		allowedVal = codec.NewInt(allowedCents)
		headroomVal = codec.NewInt(allowedCents - riskSum)
		withinEnvelope = riskSum <= allowedCents
		if riskSum > allowedCents {
			reasonCodes = append(reasonCodes, "B2_PORTFOLIO_CAPITAL_AT_RISK_EXCEEDS_ENVELOPE")
		}
	}

	status := "PASS"
	if len(reasonCodes) > 0 {
		status = "FAIL"
	}

	checks := codec.NewObject().
		Set("allocation_summary_present", codec.Bool(allocationPresent)).
		Set("nav_present", codec.Bool(navPresent)).
		Set("positions_present", codec.Bool(positionsPresent)).
		Set("drawdown_present", codec.Bool(drawdownPresent)).
		Set("positions_all_have_max_loss", codec.Bool(allHaveMax)).
		Set("portfolio_within_envelope", codec.Bool(withinEnvelope)).
		Build()

	envelopeBlock := codec.NewObject().
		Set("drawdown_multiplier_table", tableRows).
		Set("base_envelope_pct", codec.DecimalString{Text: "0.020000"}).
		Set("nav_total", codec.NewInt(navTotal)).
		Set("nav_total_cents", codec.NewInt(navTotalCents)).
		Set("peak_nav", peakNav).
		Set("drawdown_abs", drawdownAbs).
		Set("drawdown_pct", drawdownPctVal).
		Set("multiplier", multiplierVal).
		Set("allowed_capital_at_risk_cents", allowedVal).
		Set("portfolio_capital_at_risk_cents", riskSumVal).
		Set("headroom_cents", headroomVal).
		Set("positions", breakdown).
		Build()

	body := codec.NewObject().
		Set("notes", stringsToValue(notes)).
		Set("checks", checks).
		Set("envelope", envelopeBlock).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v2",
		DayUTC:        day,
		Producer:      prod,
		Status:        status,
		ReasonCodes:   reasonCodes,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func stringsToValue(ss []string) codec.Array {
	out := make(codec.Array, len(ss))
	for i, s := range ss {
		out[i] = codec.String(s)
	}
	return out
}

func stringField(obj codec.Object, key, fallback string) string {
	v, ok := obj[key].(codec.String)
	if !ok || v == "" {
		return fallback
	}
	return string(v)
}

func mustInt64(d *decimal.Decimal) int64 {
	n, err := decimal.FloorToInt64(d)
	if err != nil {
		panic(err)
	}
	return n
}
