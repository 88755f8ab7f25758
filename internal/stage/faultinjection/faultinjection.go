// Package faultinjection is a test-only harness, grounded on
// run_failure_injection_harness_v1.py: it deliberately corrupts or omits a
// stage's declared input files so the stage's own _test.go suite can
// assert the stage fails closed with the right errs.Kind rather than
// silently producing a degraded-but-"OK" artifact. It is not wired into
// cmd/truthctl — nothing in the production binary imports this package.
package faultinjection

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/errs"
)

// Omit deletes path, simulating a declared input that never arrived.
func Omit(t *testing.T, path string) {
	t.Helper()
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		require.NoError(t, err)
	}
}

// Corrupt overwrites path with bytes that fail JSON decoding outright,
// simulating a truncated or bit-flipped write.
func Corrupt(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))
}

// CorruptNotObject overwrites path with a syntactically valid JSON value
// that is not a top-level object, simulating a schema-shape violation the
// canonical decoder rejects at the codec.AsObject boundary.
func CorruptNotObject(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("[1,2,3]\n"), 0o644))
}

// Truncate overwrites path with only its first n bytes.
func Truncate(t *testing.T, path string, n int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if n > len(data) {
		n = len(data)
	}
	require.NoError(t, os.WriteFile(path, data[:n], 0o644))
}

// RequireFailsClosed asserts err is non-nil and wraps an *errs.Error of the
// given kind, the shape every stage's hard-failure path must take when a
// declared input is unreadable or malformed.
func RequireFailsClosed(t *testing.T, err error, wantKind errs.Kind) {
	t.Helper()
	require.Error(t, err)
	var coreErr *errs.Error
	require.True(t, errors.As(err, &coreErr), "expected *errs.Error, got %T: %v", err, err)
	require.Equal(t, wantKind, coreErr.Kind)
}
