// Package correlation writes the engine correlation matrix artifact,
// grounded on run_engine_correlation_matrix_day_v1.py: folds the most
// recent window of engine_daily_returns days at or before the target day
// into aligned per-engine return series, then computes Pearson
// correlation pairwise, clamped to [-1,1] and quantized to 6dp. A
// degenerate pair (zero variance on either side) correlates at exactly
// 0, never NaN. Unlike the original, the square root in the denominator
// is computed with apd.Decimal's own Sqrt rather than a float64 detour —
// this module never touches a binary float.
package correlation

import (
	"os"
	"regexp"
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

const SchemaID = "engine_correlation_matrix"

var dayDirRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

var crowdingThreshold = mustParse("0.75")
var one = mustParse("1")
var negOne = mustParse("-1")
var zero = decimal.FromInt64(0)

func mustParse(s string) *decimal.Decimal {
	d, err := decimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Inputs locates the engine_daily_returns tree this matrix folds over.
type Inputs struct {
	ReturnsRoot string // directory containing one subdir per day
	ReturnsFile string // file name within each day dir
	WindowDays  int
}

// Run executes the engine correlation matrix stage for one day.
func Run(day truthpath.DayUTC, in Inputs, prod producer.Identity, schemaValidate func(string, []byte) error) (*artifact.Artifact, error) {
	if in.WindowDays <= 0 {
		return nil, errs.New(errs.PolicyViolation, "BAD_WINDOW_DAYS", "")
	}

	entries, err := os.ReadDir(in.ReturnsRoot)
	if err != nil {
		return nil, errs.Wrap(errs.MissingInput, "RETURNS_ROOT_UNREADABLE", in.ReturnsRoot, err)
	}
	var allDays []string
	for _, e := range entries {
		if e.IsDir() && dayDirRe.MatchString(e.Name()) {
			allDays = append(allDays, e.Name())
		}
	}
	sort.Strings(allDays)

	var eligible []string
	for _, d := range allDays {
		if d <= string(day) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		return nil, errs.New(errs.MissingInput, "NO_ELIGIBLE_DAYS", string(day))
	}
	win := eligible
	if len(win) > in.WindowDays {
		win = win[len(win)-in.WindowDays:]
	}

	manifest := make(inputmanifest.Manifest, 0, len(win))
	series := map[string][]*decimal.Decimal{}
	var reasonCodes []string
	status := "OK"

	for _, d := range win {
		p := in.ReturnsRoot + "/" + d + "/" + in.ReturnsFile
		obj, entry, ok, readErr := stagecommon.ReadArtifact("engine_daily_returns", p)
		manifest = append(manifest, entry)
		if readErr != nil {
			return nil, readErr
		}
		if !ok {
			status = "FAIL_CORRUPT_INPUTS"
			reasonCodes = append(reasonCodes, "MISSING_ENGINE_DAILY_RETURNS_FILE")
			continue
		}
		returnsBlock, _ := obj["returns"].(codec.Object)
		byEngine, _ := returnsBlock["by_engine"].(codec.Array)
		for _, item := range byEngine {
			row, _ := item.(codec.Object)
			if row == nil {
				continue
			}
			eid, _ := row["engine_id"].(codec.String)
			dr, _ := row["daily_return"].(codec.DecimalString)
			if eid == "" || dr.Text == "" {
				continue
			}
			val, parseErr := decimal.Parse(dr.Text)
			if parseErr != nil {
				continue
			}
			series[string(eid)] = append(series[string(eid)], val)
		}
	}

	engineIDs := make([]string, 0, len(series))
	for id := range series {
		engineIDs = append(engineIDs, id)
	}
	sort.Strings(engineIDs)

	var matrixEngineIDs []string
	var corr codec.Array
	var pairs codec.Array

	if len(engineIDs) == 0 {
		status = "DEGRADED_INSUFFICIENT_HISTORY"
		reasonCodes = append(reasonCodes, "NO_ENGINE_RETURNS_AVAILABLE")
		matrixEngineIDs = []string{"BOOTSTRAP"}
		corr = codec.Array{codec.Array{codec.DecimalString{Text: "1.000000"}}}
		pairs = codec.Array{}
	} else {
		matrixEngineIDs = engineIDs
		maxLen := 0
		for _, id := range engineIDs {
			if l := len(series[id]); l > maxLen {
				maxLen = l
			}
		}
		for _, id := range engineIDs {
			for len(series[id]) < maxLen {
				series[id] = append(series[id], zero)
			}
		}
		if maxLen < 2 {
			status = "DEGRADED_INSUFFICIENT_HISTORY"
			reasonCodes = append(reasonCodes, "INSUFFICIENT_HISTORY_LT_2")
		}

		n := len(engineIDs)
		corrRows := make([][]*decimal.Decimal, n)
		for i := 0; i < n; i++ {
			corrRows[i] = make([]*decimal.Decimal, n)
			for j := 0; j < n; j++ {
				if i == j {
					corrRows[i][j] = one
					continue
				}
				c, cErr := pearson(series[engineIDs[i]], series[engineIDs[j]])
				if cErr != nil {
					return nil, cErr
				}
				corrRows[i][j] = c
			}
		}

		corr = make(codec.Array, n)
		for i := 0; i < n; i++ {
			rowOut := make(codec.Array, n)
			for j := 0; j < n; j++ {
				text, textErr := decimal.FixedString(corrRows[i][j], 6)
				if textErr != nil {
					return nil, textErr
				}
				rowOut[j] = codec.DecimalString{Text: text}
			}
			corr[i] = rowOut
		}

		pairsOut := make(codec.Array, 0, n*(n-1)/2)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				c := corrRows[i][j]
				absC := new(decimal.Decimal)
				absC.Abs(c)
				flag := decimal.Cmp(absC, crowdingThreshold) >= 0
				corrText, _ := decimal.FixedString(c, 6)
				pairsOut = append(pairsOut, codec.NewObject().
					Set("engine_a", codec.String(engineIDs[i])).
					Set("engine_b", codec.String(engineIDs[j])).
					Set("corr", codec.DecimalString{Text: corrText}).
					Set("sustained", codec.NewInt(0)).
					Set("flag", codec.Bool(flag)).
					Build())
			}
		}
		pairs = pairsOut
	}

	if len(manifest) == 0 {
		manifest = inputmanifest.Manifest{inputmanifest.FromBytes("engine_daily_returns", in.ReturnsRoot, []byte{})}
	}

	flags := codec.NewObject().
		Set("crowding_threshold", codec.DecimalString{Text: "0.75"}).
		Set("sustained_days", codec.NewInt(1)).
		Set("pairs", pairs).
		Build()

	body := codec.NewObject().
		Set("window_days", codec.NewInt(int64(in.WindowDays))).
		Set("matrix", codec.NewObject().
			Set("engine_ids", stringsToValue(matrixEngineIDs)).
			Set("corr", corr).
			Build()).
		Set("flags", flags).
		Build()

	if len(reasonCodes) == 0 {
		reasonCodes = []string{"OK"}
	}

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

func stringsToValue(ss []string) codec.Array {
	out := make(codec.Array, len(ss))
	for i, s := range ss {
		out[i] = codec.String(s)
	}
	return out
}

// pearson computes the clamped, 6dp-quantized Pearson correlation of two
// aligned series. Degenerate inputs (fewer than 2 points, or zero
// variance on either side) correlate at exactly 0.
func pearson(a, b []*decimal.Decimal) (*decimal.Decimal, error) {
	if len(a) != len(b) || len(a) < 2 {
		return zero, nil
	}
	n := decimal.FromInt64(int64(len(a)))

	sumA, err := sumSeries(a)
	if err != nil {
		return nil, err
	}
	sumB, err := sumSeries(b)
	if err != nil {
		return nil, err
	}
	meanA, err := decimal.Quo(sumA, n)
	if err != nil {
		return nil, err
	}
	meanB, err := decimal.Quo(sumB, n)
	if err != nil {
		return nil, err
	}

	da := make([]*decimal.Decimal, len(a))
	db := make([]*decimal.Decimal, len(b))
	for i := range a {
		d, sErr := decimal.Sub(a[i], meanA)
		if sErr != nil {
			return nil, sErr
		}
		da[i] = d
		d2, sErr2 := decimal.Sub(b[i], meanB)
		if sErr2 != nil {
			return nil, sErr2
		}
		db[i] = d2
	}

	num := zero
	denA := zero
	denB := zero
	for i := range da {
		prod, mErr := decimal.Mul(da[i], db[i])
		if mErr != nil {
			return nil, mErr
		}
		num, err = decimal.Add(num, prod)
		if err != nil {
			return nil, err
		}
		sqA, sqErr := decimal.Mul(da[i], da[i])
		if sqErr != nil {
			return nil, sqErr
		}
		denA, err = decimal.Add(denA, sqA)
		if err != nil {
			return nil, err
		}
		sqB, sqErr2 := decimal.Mul(db[i], db[i])
		if sqErr2 != nil {
			return nil, sqErr2
		}
		denB, err = decimal.Add(denB, sqB)
		if err != nil {
			return nil, err
		}
	}

	if denA.IsZero() || denB.IsZero() {
		return zero, nil
	}

	denProd, err := decimal.Mul(denA, denB)
	if err != nil {
		return nil, err
	}
	den, err := decimal.Sqrt(denProd)
	if err != nil {
		return nil, err
	}
	if den.IsZero() {
		return zero, nil
	}

	c, err := decimal.Quo(num, den)
	if err != nil {
		return nil, err
	}
	c = decimal.Clamp(c, negOne, one)
	return decimal.Quantize(c, decimal.Scale6)
}

func sumSeries(xs []*decimal.Decimal) (*decimal.Decimal, error) {
	sum := zero
	var err error
	for _, x := range xs {
		sum, err = decimal.Add(sum, x)
		if err != nil {
			return nil, err
		}
	}
	return sum, nil
}
