package gate

// ClassKillSwitch is a synthetic top-precedence gate class (precedence 0,
// ahead of the spec's CLASS1..4), grounded on run_global_kill_switch_v1.py's
// fail-closed-if-missing posture: when tripped, it must block every
// lower-precedence gate's verdict regardless of their individual
// evaluation.
const ClassKillSwitch = "CLASS0_KILLSWITCH"

// WithKillSwitch prepends a synthetic kill-switch gate to reg's gate list
// so that Evaluate's ordinary precedence walk enforces the override for
// free — no special-cased branch in the evaluator itself, matching the
// "single evaluator, gates are data" design rule.
func WithKillSwitch(reg Registry, killSwitchArtifactRelpath string) Registry {
	out := reg
	out.ClassPrecedence = make(map[string]int, len(reg.ClassPrecedence)+1)
	for k, v := range reg.ClassPrecedence {
		out.ClassPrecedence[k] = v + 1
	}
	out.ClassPrecedence[ClassKillSwitch] = 0

	killGate := Definition{
		GateID:           "global_kill_switch",
		GateClass:        ClassKillSwitch,
		Required:         true,
		Blocking:         true,
		ArtifactRelpath:  killSwitchArtifactRelpath,
		StatusField:      "state",
		PassStatusValues: []string{"INACTIVE"},
	}
	out.Gates = append([]Definition{killGate}, reg.Gates...)
	return out
}
