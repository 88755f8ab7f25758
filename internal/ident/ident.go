// Package ident generates external-facing identifiers, adapted from the
// teacher's engine.UUIDv7Generator/FixedGenerator pair. It is deliberately
// narrow: day-keyed, self-hashed artifacts never use a random identifier
// (that would break identity-idempotence), so this package is reserved for
// the one place the spec names a fresh external ID — synthesizing a
// submission_id when the execution-evidence tree does not already supply
// one (spec §6.1's execution_evidence_v1/submissions/<day>/<submission_id>/
// layout).
package ident

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces submission identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers. Stateless and
// safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for deterministic tests.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator returns a Generator that yields tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token; panics once exhausted,
// a fail-fast signal that a test created more identifiers than expected.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("ident: FixedGenerator tokens exhausted")
	}
	tok := g.tokens[g.idx]
	g.idx++
	return tok
}
