package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONParsesAndPreservesText(t *testing.T) {
	t.Parallel()
	s, err := NewJSON(`{"a": 1, "b": [2, 3]}`)
	require.NoError(t, err)
	assert.Equal(t, StructuredJSON, s.Kind)
	assert.Equal(t, `{"a": 1, "b": [2, 3]}`, s.Text)

	m, ok := s.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}

func TestNewJSONRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := NewJSON(`{not json`)
	assert.Error(t, err)
}

func TestStructuredStringUsesText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello", NewText("hello").String())
	var nilStructured *Structured
	assert.Equal(t, "", nilStructured.String())
}

func TestAccessDotField(t *testing.T) {
	t.Parallel()
	root := map[string]interface{}{"name": "ada", "age": float64(36)}
	got, err := Access(root, []Accessor{{DotName: "name"}})
	require.NoError(t, err)
	assert.Equal(t, "ada", got)
}

func TestAccessMissingFieldFails(t *testing.T) {
	t.Parallel()
	root := map[string]interface{}{"name": "ada"}
	_, err := Access(root, []Accessor{{DotName: "missing"}})
	assert.Error(t, err)
}

func TestAccessMissingFieldOptionalReturnsNil(t *testing.T) {
	t.Parallel()
	root := map[string]interface{}{"name": "ada"}
	got, err := Access(root, []Accessor{{DotName: "missing", Optional: true}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAccessBracketIndexNegative(t *testing.T) {
	t.Parallel()
	root := []interface{}{"a", "b", "c"}
	got, err := Access(root, []Accessor{{BracketIdx: intPtr(-1)}})
	require.NoError(t, err)
	assert.Equal(t, "c", got)
}

func TestAccessBracketIndexOutOfRangeFails(t *testing.T) {
	t.Parallel()
	root := []interface{}{"a", "b"}
	_, err := Access(root, []Accessor{{BracketIdx: intPtr(5)}})
	assert.Error(t, err)
}

func TestAccessSlice(t *testing.T) {
	t.Parallel()
	root := []interface{}{"a", "b", "c", "d", "e"}
	got, err := Access(root, []Accessor{{SliceStart: intPtr(1), SliceEnd: intPtr(-1)}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b", "c", "d"}, got)
}

func TestAccessChainThroughStructured(t *testing.T) {
	t.Parallel()
	s, err := NewJSON(`{"items": [{"n": "x"}, {"n": "y"}]}`)
	require.NoError(t, err)

	got, err := Access(s, []Accessor{
		{DotName: "items"},
		{BracketIdx: intPtr(1)},
		{DotName: "n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}

func TestParseAccessorPath(t *testing.T) {
	t.Parallel()
	chain, err := ParseAccessorPath(`items[1].name`)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "items", chain[0].DotName)
	require.NotNil(t, chain[1].BracketIdx)
	assert.Equal(t, 1, *chain[1].BracketIdx)
	assert.Equal(t, "name", chain[2].DotName)
}

func TestParseAccessorPathOptionalSuffix(t *testing.T) {
	t.Parallel()
	chain, err := ParseAccessorPath(`foo.bar?`)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.True(t, chain[1].Optional)
	assert.Equal(t, "bar", chain[1].DotName)
}

func TestParseAccessorPathSlice(t *testing.T) {
	t.Parallel()
	chain, err := ParseAccessorPath(`items[1:3]`)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.NotNil(t, chain[1].SliceStart)
	require.NotNil(t, chain[1].SliceEnd)
	assert.Equal(t, 1, *chain[1].SliceStart)
	assert.Equal(t, 3, *chain[1].SliceEnd)
}

func TestParseAccessorPathStringKey(t *testing.T) {
	t.Parallel()
	chain, err := ParseAccessorPath(`["odd-key"]`)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.NotNil(t, chain[0].StringKey)
	assert.Equal(t, "odd-key", *chain[0].StringKey)
}

func intPtr(i int) *int { return &i }
