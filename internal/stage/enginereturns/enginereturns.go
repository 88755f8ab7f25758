// Package enginereturns writes the per-engine daily return artifact,
// grounded on run_engine_daily_returns_day_v1.py:
//
//	delta_engine_pnl(D) = (realized_pnl_to_date + unrealized_pnl)(D)
//	                    - (realized_pnl_to_date + unrealized_pnl)(prev_day)
//	daily_return(D)     = delta_engine_pnl(D) / nav_total(prev_day)
//
// nav_total(prev_day) == 0 with a nonzero delta is fail-closed
// (DIV0_PREV_NAV_WITH_NONZERO_DELTA_PNL); with a zero delta the return is
// defined as exactly zero rather than an indeterminate division.
package enginereturns

import (
	"sort"
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

const SchemaID = "engine_daily_returns"

// Inputs is the stage's fixed declared input set: the current and
// previous day's attribution, and the previous day's NAV.
type Inputs struct {
	PrevDayUTC   truthpath.DayUTC
	AttrPrevPath string
	AttrCurPath  string
	NavPrevPath  string
}

type enginePnl struct {
	realized   int64
	unrealized int64
	present    bool
}

// Run executes the engine daily returns stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	manifest := make(inputmanifest.Manifest, 0, 3)

	navPrevObj, navEntry, navOk, navErr := stagecommon.ReadArtifact("accounting_nav", in.NavPrevPath)
	manifest = append(manifest, navEntry)
	if navErr != nil {
		return nil, navErr
	}
	if !navOk {
		return nil, errs.New(errs.MissingInput, "NAV_MISSING", in.NavPrevPath)
	}
	navBlock, _ := navPrevObj["nav"].(codec.Object)
	navTotalVal, ok := navBlock["nav_total"].(codec.Int)
	if !ok {
		return nil, errs.New(errs.SchemaInvalid, "NAV_TOTAL_INVALID", in.NavPrevPath)
	}
	navPrev, parseErr := decimal.Parse(navTotalVal.Text)
	if parseErr != nil {
		return nil, parseErr
	}
	if navPrev.Negative {
		return nil, errs.New(errs.SchemaInvalid, "NAV_TOTAL_INVALID", in.NavPrevPath)
	}

	attrPrevObj, attrPrevEntry, attrPrevOk, attrPrevErr := stagecommon.ReadArtifact("accounting_attr", in.AttrPrevPath)
	manifest = append(manifest, attrPrevEntry)
	if attrPrevErr != nil {
		return nil, attrPrevErr
	}
	if !attrPrevOk {
		return nil, errs.New(errs.MissingInput, "ATTR_MISSING", in.AttrPrevPath)
	}

	attrCurObj, attrCurEntry, attrCurOk, attrCurErr := stagecommon.ReadArtifact("accounting_attr", in.AttrCurPath)
	manifest = append(manifest, attrCurEntry)
	if attrCurErr != nil {
		return nil, attrCurErr
	}
	if !attrCurOk {
		return nil, errs.New(errs.MissingInput, "ATTR_MISSING", in.AttrCurPath)
	}

	currencyPrev, pnlPrev, err := currencyAndPnlMap(attrPrevObj)
	if err != nil {
		return nil, err
	}
	currencyCur, pnlCur, err := currencyAndPnlMap(attrCurObj)
	if err != nil {
		return nil, err
	}
	if currencyPrev != currencyCur {
		return nil, errs.New(errs.PolicyViolation, "CURRENCY_MISMATCH", currencyPrev+" != "+currencyCur)
	}

	engineIDs := make(map[string]struct{})
	for id := range pnlPrev {
		engineIDs[id] = struct{}{}
	}
	for id := range pnlCur {
		engineIDs[id] = struct{}{}
	}
	if len(engineIDs) == 0 {
		return nil, errs.New(errs.MissingInput, "NO_ENGINES_FOUND", "")
	}
	ids := make([]string, 0, len(engineIDs))
	for id := range engineIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make(codec.Array, 0, len(ids))
	for _, id := range ids {
		p0 := pnlTotal(pnlPrev[id])
		p1 := pnlTotal(pnlCur[id])
		delta := p1 - p0

		var r *decimal.Decimal
		if navPrev.IsZero() {
			if delta != 0 {
				return nil, errs.New(errs.PolicyViolation, "DIV0_PREV_NAV_WITH_NONZERO_DELTA_PNL", id)
			}
			r = decimal.FromInt64(0)
		} else {
			deltaDec := decimal.FromInt64(delta)
			quo, quoErr := decimal.Quo(deltaDec, navPrev)
			if quoErr != nil {
				return nil, quoErr
			}
			q, qErr := decimal.Quantize(quo, decimal.Scale8)
			if qErr != nil {
				return nil, qErr
			}
			r = q
		}

		rText, textErr := decimal.FixedString(r, 8)
		if textErr != nil {
			return nil, textErr
		}
		rows = append(rows, codec.NewObject().
			Set("engine_id", codec.String(id)).
			Set("daily_return", codec.DecimalString{Text: rText}).
			Build())
	}

	body := codec.NewObject().
		Set("returns", codec.NewObject().
			Set("currency", codec.String(currencyPrev)).
			Set("by_engine", rows).
			Build()).
		Build()

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        day,
		Producer:      prod,
		Status:        "OK",
		ReasonCodes:   []string{"OK"},
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func pnlTotal(p enginePnl) int64 {
	if !p.present {
		return 0
	}
	return p.realized + p.unrealized
}

func currencyAndPnlMap(attrObj codec.Object) (string, map[string]enginePnl, error) {
	a, _ := attrObj["attribution"].(codec.Object)
	if a == nil {
		return "", nil, errs.New(errs.SchemaInvalid, "ATTRIBUTION_FIELD_MISSING", "")
	}
	currency, _ := a["currency"].(codec.String)
	if currency == "" {
		return "", nil, errs.New(errs.SchemaInvalid, "ATTR_CURRENCY_INVALID", "")
	}
	byEngine, _ := a["by_engine"].(codec.Array)

	out := make(map[string]enginePnl, len(byEngine))
	for _, item := range byEngine {
		row, _ := item.(codec.Object)
		if row == nil {
			continue
		}
		eid, _ := row["engine_id"].(codec.String)
		if eid == "" {
			continue
		}
		rp, rpOk := row["realized_pnl_to_date"].(codec.Int)
		up, upOk := row["unrealized_pnl"].(codec.Int)
		if !rpOk || !upOk {
			return "", nil, errs.New(errs.SchemaInvalid, "ATTR_PNL_FIELDS_NOT_INT", string(eid))
		}
		rpInt, rpErr := decimal.Parse(rp.Text)
		if rpErr != nil {
			return "", nil, rpErr
		}
		upInt, upErr := decimal.Parse(up.Text)
		if upErr != nil {
			return "", nil, upErr
		}
		rpN, _ := rpInt.Int64()
		upN, _ := upInt.Int64()
		out[string(eid)] = enginePnl{realized: rpN, unrealized: upN, present: true}
	}
	return string(currency), out, nil
}
