// Package gate implements the precedence-ordered readiness evaluator from
// spec §4.5, grounded directly on run_gate_stack_verdict_v1.py's
// _class_precedence/_eval_gate/sort_key machinery: gates are data (loaded
// from a YAML registry, never hand-coded per gate), the evaluator walks
// them in (precedence, gate_id) order and fails closed on the first
// required-and-not-PASS gate.
package gate

import (
	"sort"
	"strings"

	"github.com/constellation2/truthcore/internal/codec"
)

// State is a gate's evaluated readiness.
type State string

const (
	Pass    State = "PASS"
	Fail    State = "FAIL"
	Missing State = "MISSING"
	Unknown State = "UNKNOWN"
)

// Definition is one gate's data-only declaration, loaded from the
// registry YAML — spec's "gate registry... no per-gate bespoke code in the
// evaluator."
type Definition struct {
	GateID           string   `yaml:"gate_id"`
	GateClass        string   `yaml:"gate_class"`
	Required         bool     `yaml:"required"`
	Blocking         bool     `yaml:"blocking"`
	ArtifactRelpath  string   `yaml:"artifact_relpath"` // may contain "{DAY}"
	StatusField      string   `yaml:"status_field"`
	PassStatusValues []string `yaml:"pass_status_values"`
}

// Registry is the full gate hierarchy: class precedence plus gate
// definitions. Lower Precedence numbers win (block) over higher ones.
type Registry struct {
	ClassPrecedence map[string]int `yaml:"class_precedence"`
	Gates           []Definition   `yaml:"gates"`
}

func (r Registry) precedenceOf(class string) int {
	if p, ok := r.ClassPrecedence[class]; ok {
		return p
	}
	return 9999
}

// ArtifactLookup resolves a gate's artifact by path, returning its decoded
// body (or ok=false if the artifact is absent). This is the only
// filesystem-touching seam the evaluator depends on, so tests can supply an
// in-memory fake.
type ArtifactLookup func(relpath string) (body codec.Object, sha256 string, present bool, err error)

// GateResult is one gate's observed evaluation.
type GateResult struct {
	GateID          string
	GateClass       string
	Required        bool
	Blocking        bool
	ObservedStatus  string // "MISSING" if absent, else the upper-cased status_field value
	ArtifactPath    string
	ArtifactSha256  string
	ReasonCodes     []string
	EvaluatedState  State
}

// Verdict is the final gate-stack evaluation result (spec §4.5): the
// overall status, which class blocked it (if any), and every individual
// gate's result in precedence order.
type Verdict struct {
	Status        string // "PASS" | "FAIL"
	BlockingClass string // gate_class of the first failing gate, or "NONE"
	ReasonCodes   []string
	Gates         []GateResult
}

// Evaluate walks reg.Gates in (precedence, gate_id) order, applying the
// exact fail-closed algorithm from run_gate_stack_verdict_v1.py: the first
// required-and-not-(PASS|OK) gate fails the verdict and names its class as
// BlockingClass; a non-required but blocking gate can likewise fail closed
// if present but not passing (and not MISSING, which is handled upstream by
// the gate's own required check).
func Evaluate(reg Registry, lookup ArtifactLookup) (*Verdict, error) {
	results := make([]GateResult, 0, len(reg.Gates))
	for _, def := range reg.Gates {
		gr, err := evalGate(def, lookup)
		if err != nil {
			return nil, err
		}
		results = append(results, gr)
	}

	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := reg.precedenceOf(results[i].GateClass), reg.precedenceOf(results[j].GateClass)
		if pi != pj {
			return pi < pj
		}
		return results[i].GateID < results[j].GateID
	})

	verdict := &Verdict{Status: "PASS", BlockingClass: "NONE"}
	for _, g := range results {
		isMissing := g.ObservedStatus == string(Missing)
		isFailish := g.ObservedStatus != "PASS" && g.ObservedStatus != "OK"

		if g.Required && isFailish {
			verdict.Status = "FAIL"
			verdict.BlockingClass = g.GateClass
			verdict.ReasonCodes = append(verdict.ReasonCodes,
				"GATE_REQUIRED_NOT_PASS:"+g.GateID+":"+g.ObservedStatus)
			if isMissing {
				verdict.ReasonCodes = append(verdict.ReasonCodes, "GATE_MISSING:"+g.GateID)
			}
			break
		}
		if !g.Required && g.Blocking && isFailish && !isMissing {
			verdict.Status = "FAIL"
			verdict.BlockingClass = g.GateClass
			verdict.ReasonCodes = append(verdict.ReasonCodes,
				"GATE_BLOCKING_NOT_PASS:"+g.GateID+":"+g.ObservedStatus)
			break
		}
	}

	verdict.Gates = results
	return verdict, nil
}

func evalGate(def Definition, lookup ArtifactLookup) (GateResult, error) {
	result := GateResult{
		GateID:    def.GateID,
		GateClass: def.GateClass,
		Required:  def.Required,
		Blocking:  def.Blocking,
	}

	body, sha, present, err := lookup(def.ArtifactRelpath)
	if err != nil {
		return GateResult{}, err
	}
	result.ArtifactPath = def.ArtifactRelpath
	result.ArtifactSha256 = sha

	if !present {
		result.ObservedStatus = string(Missing)
		result.EvaluatedState = Missing
		return result, nil
	}

	statusField := def.StatusField
	if statusField == "" {
		statusField = "status"
	}
	raw := ""
	if v, ok := body[statusField].(codec.String); ok {
		raw = strings.ToUpper(strings.TrimSpace(string(v)))
	}
	if raw == "" {
		raw = string(Unknown)
	}
	result.ObservedStatus = raw

	if rcArr, ok := body["reason_codes"].(codec.Array); ok {
		for _, v := range rcArr {
			if s, ok := v.(codec.String); ok {
				result.ReasonCodes = append(result.ReasonCodes, string(s))
			}
		}
	}

	passing := isPassValue(raw, def.PassStatusValues)
	switch {
	case def.Required && !passing:
		result.EvaluatedState = Fail
	case passing:
		result.EvaluatedState = Pass
	case raw == string(Missing):
		result.EvaluatedState = Missing
	default:
		result.EvaluatedState = Unknown
	}
	return result, nil
}

func isPassValue(status string, passValues []string) bool {
	for _, v := range passValues {
		if strings.ToUpper(strings.TrimSpace(v)) == status {
			return true
		}
	}
	return false
}
