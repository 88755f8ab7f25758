package gate

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRegistryYAML reads and strictly decodes a gate hierarchy registry from
// path (config.Config.GateRegistryPath), matching config.Load's decode
// posture: unknown fields are a load error rather than a silently ignored
// typo.
func LoadRegistryYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gate: read %s: %w", path, err)
	}

	var reg Registry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("gate: parse %s: %w", path, err)
	}

	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("gate: invalid %s: %w", path, err)
	}
	return &reg, nil
}

func (r Registry) validate() error {
	if len(r.Gates) == 0 {
		return fmt.Errorf("registry has no gates")
	}
	seen := make(map[string]bool, len(r.Gates))
	for _, g := range r.Gates {
		if g.GateID == "" {
			return fmt.Errorf("gate with empty gate_id")
		}
		if seen[g.GateID] {
			return fmt.Errorf("duplicate gate_id %q", g.GateID)
		}
		seen[g.GateID] = true
		if g.GateClass == "" {
			return fmt.Errorf("gate %q has empty gate_class", g.GateID)
		}
		if _, ok := r.ClassPrecedence[g.GateClass]; !ok {
			return fmt.Errorf("gate %q references undeclared gate_class %q", g.GateID, g.GateClass)
		}
		if g.ArtifactRelpath == "" {
			return fmt.Errorf("gate %q has empty artifact_relpath", g.GateID)
		}
	}
	return nil
}
