// Package truthpath defines the newtype wrappers that keep day keys, truth
// roots, and content hashes from mixing with ordinary strings at API
// boundaries.
package truthpath

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

var dayRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

// DayUTC is a UTC calendar day key in YYYY-MM-DD form.
type DayUTC string

// ParseDayUTC validates s against the day-key grammar. It does not check the
// not-in-the-future invariant; callers that need that guarantee should call
// CheckNotFuture explicitly against a reference "now".
func ParseDayUTC(s string) (DayUTC, error) {
	if !dayRe.MatchString(s) {
		return "", fmt.Errorf("truthpath: malformed day_utc %q: must match YYYY-MM-DD", s)
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("truthpath: invalid day_utc %q: %w", s, err)
	}
	return DayUTC(s), nil
}

// CheckNotFuture enforces the day-key invariant: day_utc must not exceed
// today's UTC calendar date.
func (d DayUTC) CheckNotFuture(now time.Time) error {
	today := now.UTC().Format("2006-01-02")
	if string(d) > today {
		return fmt.Errorf("truthpath: day_utc %q is after today_utc %q", d, today)
	}
	return nil
}

// ProducedUTC returns the deterministic produced_utc timestamp for a
// rerunnable day-keyed artifact: day_utc + "T00:00:00Z".
func (d DayUTC) ProducedUTC() string {
	return string(d) + "T00:00:00Z"
}

func (d DayUTC) String() string { return string(d) }

// TruthRoot is the single configured directory under which all artifact
// kinds live. All path construction in this module is relative to it.
type TruthRoot string

// Join builds a path under the truth root from path-template elements.
func (r TruthRoot) Join(elems ...string) string {
	all := append([]string{string(r)}, elems...)
	return filepath.Join(all...)
}

func (r TruthRoot) String() string { return string(r) }

// Sha256Hex is a lowercase hex-encoded SHA-256 digest. It is always exactly
// 64 characters once populated.
type Sha256Hex string

var sha256Re = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidSha256Hex reports whether s is a well-formed lowercase hex SHA-256.
func ValidSha256Hex(s string) bool {
	return sha256Re.MatchString(s)
}

// ArtifactPath is a path to a truth artifact, either absolute or
// truth-root-relative (spec §6.5). Replay/integrity artifacts must use the
// relative form so hashes stay portable across deployments.
type ArtifactPath string

// RelativeTo returns p relative to root, or p unchanged if it is already
// relative or lies outside root.
func (p ArtifactPath) RelativeTo(root TruthRoot) ArtifactPath {
	rel, err := filepath.Rel(string(root), string(p))
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return p
	}
	return ArtifactPath(rel)
}
