package resolution

import (
	"testing"

	"github.com/mlld-lang/mlld/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapStringInterpolationUsesText(t *testing.T) {
	t.Parallel()
	got, err := Unwrap(StringInterp, &value.Structured{Text: "canonical"})
	require.NoError(t, err)
	assert.Equal(t, "canonical", got)
}

func TestUnwrapStringInterpolationNilStructuredIsEmpty(t *testing.T) {
	t.Parallel()
	var s *value.Structured
	got, err := Unwrap(StringInterp, s)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestUnwrapStringInterpolationArrayIsElementWise(t *testing.T) {
	t.Parallel()
	in := []interface{}{&value.Structured{Text: "a"}, &value.Structured{Text: "b"}, "plain"}
	got, err := Unwrap(StringInterp, in)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "plain"}, got)
}

func TestUnwrapFieldAccessAndEqualityAndConditionPassThrough(t *testing.T) {
	t.Parallel()
	s := &value.Structured{Text: "x", Data: map[string]interface{}{"k": "v"}}
	for _, ctx := range []Context{FieldAccess, Equality, Condition} {
		got, err := Unwrap(ctx, s)
		require.NoError(t, err)
		assert.Same(t, s, got)
	}
}

func TestUnwrapUnknownContextErrors(t *testing.T) {
	t.Parallel()
	_, err := Unwrap(Context("bogus"), "x")
	assert.Error(t, err)
}

func TestTruthy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		v    interface{}
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"non-empty string", "x", true},
		{"zero int", 0, false},
		{"nonzero int", 1, true},
		{"zero float", 0.0, false},
		{"empty array", []interface{}{}, false},
		{"non-empty array", []interface{}{1}, true},
		{"empty map", map[string]interface{}{}, false},
		{"non-empty map", map[string]interface{}{"a": 1}, true},
		{"nil structured", (*value.Structured)(nil), false},
		{"empty-text structured", &value.Structured{Text: ""}, false},
		{"non-empty-text structured", &value.Structured{Text: "x"}, true},
		{"unrecognized type defaults truthy", struct{}{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Truthy(c.v))
		})
	}
}
