package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation2/truthcore/internal/codec"
	"github.com/constellation2/truthcore/internal/inputmanifest"
	"github.com/constellation2/truthcore/internal/producer"
	"github.com/constellation2/truthcore/internal/truthpath"
)

func testEnvelope() Envelope {
	return Envelope{
		SchemaID:      "nav_snapshot",
		SchemaVersion: "v1",
		DayUTC:        truthpath.DayUTC("2026-07-01"),
		Producer:      producer.Identity{Repo: "truthcore", GitSha: "UNKNOWN", Module: "stage/navsnapshot"},
		Status:        "OK",
		ReasonCodes:   []string{"B_OK"},
		InputManifest: inputmanifest.Manifest{{Type: "accounting_nav", Path: "accounting_v1/nav/2026-07-01/nav.json", Sha256: "abc"}},
		SelfHashField: "canonical_json_hash",
		Body:          codec.Object{"nav_total_cents": codec.NewInt(100000)},
	}
}

func TestBuildDefaultsProducedUTC(t *testing.T) {
	a, err := Build(testEnvelope(), mustParseTime(t, "2026-07-02T00:00:00Z"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01T00:00:00Z", a.Envelope.ProducedUTC)
}

func TestBuildSelfHashSatisfiesHashExcludingInvariant(t *testing.T) {
	a, err := Build(testEnvelope(), mustParseTime(t, "2026-07-02T00:00:00Z"), nil)
	require.NoError(t, err)

	decoded, err := codec.Decode(a.Bytes)
	require.NoError(t, err)
	obj, err := codec.AsObject(decoded)
	require.NoError(t, err)

	recomputed, err := codec.HashExcluding(obj, "canonical_json_hash")
	require.NoError(t, err)
	assert.Equal(t, recomputed, a.SelfHash)

	hashField, ok := obj["canonical_json_hash"].(codec.String)
	require.True(t, ok)
	assert.Equal(t, a.SelfHash, string(hashField))
}

func TestBuildRejectsFutureDay(t *testing.T) {
	env := testEnvelope()
	env.DayUTC = truthpath.DayUTC("2099-01-01")
	_, err := Build(env, mustParseTime(t, "2026-07-02T00:00:00Z"), nil)
	require.Error(t, err)
}

func TestBuildRejectsMalformedDay(t *testing.T) {
	env := testEnvelope()
	env.DayUTC = truthpath.DayUTC("not-a-day")
	_, err := Build(env, mustParseTime(t, "2026-07-02T00:00:00Z"), nil)
	require.Error(t, err)
}

func TestBuildIsByteIdempotent(t *testing.T) {
	now := mustParseTime(t, "2026-07-02T00:00:00Z")
	a1, err := Build(testEnvelope(), now, nil)
	require.NoError(t, err)
	a2, err := Build(testEnvelope(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, a1.Bytes, a2.Bytes)
}

func TestBuildPropagatesSchemaValidationFailure(t *testing.T) {
	env := testEnvelope()
	_, err := Build(env, mustParseTime(t, "2026-07-02T00:00:00Z"), func(defName string, data []byte) error {
		return assert.AnError
	})
	require.Error(t, err)
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}
