// Package drawdownpack writes the windowed drawdown series, grounded on
// gen_drawdown_window_pack_v1.py: folds the NAV history ledger into fixed
// 30/60/90-day windows, each reporting the most negative (worst)
// drawdown_pct observed in that window. A window with insufficient
// history still emits its (sentinel) object — v1 never partial-windows —
// and contributes an INSUFFICIENT_HISTORY_WINDOW_<n> reason code, which
// fails the artifact closed (status FAIL_INSUFFICIENT_HISTORY) without
// omitting it from the output. Also reports today's drawdown multiplier
// and capital-at-risk allowance alongside the windowed series, since both
// are pure functions of the same ledger the windows are folded from.
package drawdownpack

import (
	"time"

	"github.com/constellation2/truthcore/internal/artifact"
	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/decimal"
	"github.com/constellation2/truthcore/internal/drawdown"
	"github.com/constellation2/truthcore/internal/errs"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/stage/stagecommon"
	"github.com/constellation2/truthcore/internal/truthpath"
)

const SchemaID = "drawdown_window_pack"

var windowSizes = []int{30, 60, 90}

// Inputs is the stage's fixed declared input: the day's NAV history
// ledger and, for the capital-at-risk figures, the day's NAV total in
// whole-currency units.
type Inputs struct {
	LedgerPath    string
	NavTotalCents int64
}

// Run executes the drawdown window pack stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	ledgerObj, entry, ok, err := stagecommon.ReadArtifact("nav_history_ledger", in.LedgerPath)
	manifest := inputmanifest.Manifest{entry}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_LEDGER", in.LedgerPath)
	}

	daysArr, _ := ledgerObj["days"].(codec.Array)
	if len(daysArr) == 0 {
		return nil, errs.New(errs.SchemaInvalid, "LEDGER_DAYS_EMPTY", in.LedgerPath)
	}

	var reasonCodes []string
	windowsOut := make(codec.Array, 0, len(windowSizes))

	for _, n := range windowSizes {
		if len(daysArr) < n {
			reasonCodes = append(reasonCodes, insufficientHistoryCode(n))
			windowsOut = append(windowsOut, sentinelWindow(n, day))
			continue
		}
		w := daysArr[len(daysArr)-n:]
		startRow, _ := w[0].(codec.Object)
		endRow, _ := w[len(w)-1].(codec.Object)
		startDay, _ := startRow["day_utc"].(codec.String)
		endDay, _ := endRow["day_utc"].(codec.String)
		if startDay == "" || endDay == "" {
			return nil, errs.New(errs.SchemaInvalid, "LEDGER_DAY_UTC_MISSING", in.LedgerPath)
		}

		maxDD, maxErr := worstDrawdown(w)
		if maxErr != nil {
			return nil, maxErr
		}
		maxDDText, textErr := decimal.FixedString(maxDD, 6)
		if textErr != nil {
			return nil, textErr
		}

		windowsOut = append(windowsOut, codec.NewObject().
			Set("window_days", codec.NewInt(int64(n))).
			Set("window_start_day_utc", codec.String(startDay)).
			Set("window_end_day_utc", codec.String(endDay)).
			Set("max_drawdown_pct", codec.DecimalString{Text: maxDDText}).
			Build())
	}

	lastRow, _ := daysArr[len(daysArr)-1].(codec.Object)
	todayDD, _ := lastRow["drawdown_pct"].(codec.DecimalString)
	if todayDD.Text == "" {
		return nil, errs.New(errs.SchemaInvalid, "LEDGER_LAST_DAY_DRAWDOWN_MISSING", in.LedgerPath)
	}
	todayDDDec, parseErr := decimal.Parse(todayDD.Text)
	if parseErr != nil {
		return nil, parseErr
	}
	multiplier := drawdown.Multiplier(todayDDDec)
	allowedCents, allowedErr := drawdown.AllowedCents(in.NavTotalCents, multiplier)
	if allowedErr != nil {
		return nil, allowedErr
	}
	multiplierText, multErr := decimal.FixedString(multiplier, 2)
	if multErr != nil {
		return nil, multErr
	}

	status := "OK"
	if len(reasonCodes) > 0 {
		status = "FAIL_INSUFFICIENT_HISTORY"
	} else {
		reasonCodes = []string{"OK"}
	}

	body := codec.NewObject().
		Set("windows", windowsOut).
		Set("today_drawdown_multiplier", codec.DecimalString{Text: multiplierText}).
		Set("today_capital_at_risk_allowed_cents", codec.NewInt(allowedCents)).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
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

func insufficientHistoryCode(n int) string {
	switch n {
	case 30:
		return "INSUFFICIENT_HISTORY_WINDOW_30"
	case 60:
		return "INSUFFICIENT_HISTORY_WINDOW_60"
	default:
		return "INSUFFICIENT_HISTORY_WINDOW_90"
	}
}

func sentinelWindow(n int, day truthpath.DayUTC) codec.Object {
	return codec.NewObject().
		Set("window_days", codec.NewInt(int64(n))).
		Set("window_start_day_utc", codec.String(string(day))).
		Set("window_end_day_utc", codec.String(string(day))).
		Set("max_drawdown_pct", codec.DecimalString{Text: "0.000000"}).
		Build()
}

// worstDrawdown returns the most negative drawdown_pct across the window,
// matching _max_drawdown_pct's "min of the Decimal values" rule.
func worstDrawdown(rows codec.Array) (*decimal.Decimal, error) {
	var worst *decimal.Decimal
	for _, r := range rows {
		row, _ := r.(codec.Object)
		ddStr, _ := row["drawdown_pct"].(codec.DecimalString)
		if ddStr.Text == "" {
			return nil, errs.New(errs.SchemaInvalid, "LEDGER_ROW_MISSING_DRAWDOWN_PCT", "")
		}
		d, err := decimal.Parse(ddStr.Text)
		if err != nil {
			return nil, err
		}
		if worst == nil || decimal.Cmp(d, worst) < 0 {
			worst = d
		}
	}
	return worst, nil
}
