package codec

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TestEncodeCanonicalBytesGolden locks the byte-exact shape of canonical
// encoding: sorted keys, compact separators, decimal strings always quoted,
// no trailing newline.
func TestEncodeCanonicalBytesGolden(t *testing.T) {
	obj := NewObject().
		Set("b_key", String("hello \"world\"")).
		Set("a_key", Array{NewInt(3), NewInt(1), DecimalString{Text: "-0.500000"}}).
		Set("z_flag", Bool(true)).
		Set("nil_field", Null{}).
		Build()

	got, err := Encode(obj)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "canonical_object", got)
}
