// Package config loads the core's YAML configuration: truth root, producer
// identity, the variant-authority registry, and per-stage window defaults.
// Grounded on the teacher's harness.LoadScenario — a strict-decode
// (yaml.KnownFields(true)) loader that rejects typo'd fields rather than
// silently ignoring them.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/constellation2/truthcore/internal/truthpath"
)

// VariantAuthorityEntry resolves Open Question #1: which of a legacy v1 or
// newer v2/v3 surface is authoritative for a given artifact kind, as of a
// given day. This is always read from config, never inferred from which
// files happen to exist on disk.
type VariantAuthorityEntry struct {
	EffectiveFrom truthpath.DayUTC `yaml:"effective_from"`
	Variant       string           `yaml:"variant"`
}

// StageDefaults carries per-stage window sizes and thresholds that stages
// may override via CLI flags.
type StageDefaults struct {
	ReturnWindowDays      int `yaml:"return_window_days"`
	CorrelationWindowDays int `yaml:"correlation_window_days"`
	DrawdownWindowDays    int `yaml:"drawdown_window_days"`
}

// Config is the root configuration document.
type Config struct {
	TruthRoot truthpath.TruthRoot `yaml:"truth_root"`

	ProducerRepo   string `yaml:"producer_repo"`
	ProducerModule string `yaml:"producer_module"`

	VariantAuthority map[string]VariantAuthorityEntry `yaml:"variant_authority"`
	StageDefaults    StageDefaults                     `yaml:"stage_defaults"`

	SchemaDir string `yaml:"schema_dir"`
	GateRegistryPath string `yaml:"gate_registry_path"`
}

// Load reads and strictly decodes a YAML config file from path. Unknown
// fields are a load error (catches typos like "turth_root"), matching the
// teacher's harness.LoadScenario decode posture.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TruthRoot == "" {
		return fmt.Errorf("truth_root is required")
	}
	if c.ProducerRepo == "" {
		return fmt.Errorf("producer_repo is required")
	}
	if c.SchemaDir == "" {
		return fmt.Errorf("schema_dir is required")
	}
	return nil
}

// VariantFor resolves the authoritative variant string for kind as of day,
// per Open Question #1. Returns ok=false if the kind has no registry entry
// or day precedes its effective_from.
func (c *Config) VariantFor(kind string, day truthpath.DayUTC) (string, bool) {
	entry, present := c.VariantAuthority[kind]
	if !present {
		return "", false
	}
	if string(day) < string(entry.EffectiveFrom) {
		return "", false
	}
	return entry.Variant, true
}
