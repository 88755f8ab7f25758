// Package navsnapshot writes the day's NAV snapshot artifact, grounded on
// gen_nav_snapshot_v1.py: reads the day's accounting NAV, looks up the
// prior day's rolling peak from the NAV history ledger's latest pointer,
// and computes drawdown percent at 6dp half-up. The first day for a truth
// root (no prior peak) is the genesis case: peak = end_nav, drawdown = 0.
package navsnapshot

import (
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

const SchemaID = "nav_snapshot"

// Inputs are the stage's fixed declared-input paths (spec §4.4 "declared
// inputs"). LatestLedgerPointerPath may be empty, meaning no prior ledger
// exists yet (the genesis case).
type Inputs struct {
	AccountingNAVPath       string
	LatestLedgerPointerPath string
}

// Run executes the NAV snapshot stage for one day, returning a finalized
// artifact ready to write.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	manifest := make(inputmanifest.Manifest, 0, 3)

	navObj, navEntry, ok, err := stagecommon.ReadArtifact("accounting_nav", in.AccountingNAVPath)
	manifest = append(manifest, navEntry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.MissingInput, "MISSING_REQUIRED_INPUT", in.AccountingNAVPath)
	}

	navBlock, _ := navObj["nav"].(codec.Object)
	navTotalVal, ok := navBlock["nav_total"].(codec.Int)
	if !ok {
		return nil, errs.New(errs.SchemaInvalid, "NAV_TOTAL_MISSING_OR_NOT_INT", in.AccountingNAVPath)
	}
	endNav, err := decimal.Parse(navTotalVal.Text)
	if err != nil {
		return nil, err
	}
	if endNav.Negative {
		return nil, errs.New(errs.PolicyViolation, "NAV_TOTAL_NEGATIVE", navTotalVal.Text)
	}

	var peak *decimal.Decimal
	var ddPct *decimal.Decimal
	genesis := true

	if in.LatestLedgerPointerPath != "" {
		peakFromLedger, peakEntry, present, peakErr := loadPriorPeak(in.LatestLedgerPointerPath)
		manifest = append(manifest, peakEntry)
		if peakErr != nil {
			return nil, peakErr
		}
		if present {
			genesis = false
			zero := decimal.FromInt64(0)
			if endNav.Cmp(peakFromLedger) > 0 {
				peak = endNav
			} else {
				peak = peakFromLedger
			}
			if decimal.Cmp(peak, zero) <= 0 {
				return nil, errs.New(errs.PolicyViolation, "PEAK_NAV_NOT_POSITIVE", peak.String())
			}
			diff, subErr := decimal.Sub(endNav, peak)
			if subErr != nil {
				return nil, subErr
			}
			quo, quoErr := decimal.Quo(diff, peak)
			if quoErr != nil {
				return nil, quoErr
			}
			q, quantErr := decimal.Quantize(quo, decimal.Scale6)
			if quantErr != nil {
				return nil, quantErr
			}
			ddPct = q
		}
	}
	if genesis {
		peak = endNav
		ddPct = decimal.FromInt64(0)
	}

	ddPctVal, err := decimal.ToValue(ddPct, 6)
	if err != nil {
		return nil, err
	}
	endNavText, err := decimal.FixedString(endNav, 0)
	if err != nil {
		return nil, err
	}
	peakText, err := decimal.FixedString(peak, 0)
	if err != nil {
		return nil, err
	}

	body := codec.NewObject().
		Set("end_nav", codec.DecimalString{Text: endNavText}).
		Set("peak_nav_to_date", codec.DecimalString{Text: peakText}).
		Set("drawdown_pct", ddPctVal).
		Set("genesis", codec.Bool(genesis)).
		Build()

	reasonCodes := []string{"OK"}
	if genesis {
		reasonCodes = append(reasonCodes, "GENESIS_NO_PRIOR_PEAK")
	}

	env := artifact.Envelope{
		SchemaID:      SchemaID,
		SchemaVersion: "v1",
		DayUTC:        day,
		Producer:      prod,
		Status:        "OK",
		ReasonCodes:   reasonCodes,
		InputManifest: manifest,
		SelfHashField: "canonical_json_hash",
		Body:          body,
	}
	return artifact.Build(env, time.Now().UTC(), schemaValidate)
}

func loadPriorPeak(latestPointerPath string) (*decimal.Decimal, inputmanifest.Entry, bool, error) {
	pointerObj, entry, ok, err := stagecommon.ReadArtifact("nav_history_ledger_pointer", latestPointerPath)
	if err != nil {
		return nil, entry, false, err
	}
	if !ok {
		return nil, entry, false, nil
	}

	pointers, _ := pointerObj["pointers"].(codec.Object)
	ledgerPathVal, _ := pointers["ledger_path"].(codec.String)
	if ledgerPathVal == "" {
		return nil, entry, false, errs.New(errs.SchemaInvalid, "LEDGER_POINTER_MISSING_PATH", latestPointerPath)
	}

	ledgerObj, ledgerEntry, ledgerOk, ledgerErr := stagecommon.ReadArtifact("nav_history_ledger", string(ledgerPathVal))
	_ = ledgerEntry
	if ledgerErr != nil {
		return nil, entry, false, ledgerErr
	}
	if !ledgerOk {
		return nil, entry, false, errs.New(errs.MissingInput, "LEDGER_MISSING", string(ledgerPathVal))
	}

	daysArr, _ := ledgerObj["days"].(codec.Array)
	if len(daysArr) == 0 {
		return nil, entry, false, errs.New(errs.SchemaInvalid, "LEDGER_DAYS_EMPTY", string(ledgerPathVal))
	}
	lastDay, _ := daysArr[len(daysArr)-1].(codec.Object)
	peakStr, _ := lastDay["peak_nav_to_date"].(codec.DecimalString)
	if peakStr.Text == "" {
		return nil, entry, false, errs.New(errs.SchemaInvalid, "LEDGER_PEAK_MISSING", string(ledgerPathVal))
	}
	d, parseErr := decimal.Parse(peakStr.Text)
	if parseErr != nil {
		return nil, entry, false, parseErr
	}
	return d, entry, true, nil
}
