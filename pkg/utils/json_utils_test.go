package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triple struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

func TestExtractJSONArray(t *testing.T) {
	t.Run("Plain array", func(t *testing.T) {
		var out []triple
		ok := ExtractJSONArray(`[{"source":"a","relation":"uses","target":"b"}]`, &out)

		require.True(t, ok)
		require.Len(t, out, 1)
		assert.Equal(t, "uses", out[0].Relation)
	})

	t.Run("Array inside markdown fence", func(t *testing.T) {
		var out []triple
		raw := "Here you go:\n```json\n[{\"source\":\"a\",\"relation\":\"uses\",\"target\":\"b\"}]\n```\nDone."
		ok := ExtractJSONArray(raw, &out)

		require.True(t, ok)
		assert.Len(t, out, 1)
	})

	t.Run("Array with surrounding prose", func(t *testing.T) {
		var out []triple
		ok := ExtractJSONArray(`The relationships are: [{"source":"x","relation":"r","target":"y"}] as requested`, &out)

		require.True(t, ok)
		assert.Equal(t, "x", out[0].Source)
	})

	t.Run("Object wrapping relationships key", func(t *testing.T) {
		var out []triple
		ok := ExtractJSONArray(`{"relationships":[{"source":"a","relation":"r","target":"b"}]}`, &out)

		require.True(t, ok)
		assert.Len(t, out, 1)
	})

	t.Run("Garbage yields no result, no panic", func(t *testing.T) {
		var out []triple
		ok := ExtractJSONArray("I could not find any relationships.", &out)

		assert.False(t, ok)
		assert.Empty(t, out)
	})

	t.Run("Broken JSON yields no result", func(t *testing.T) {
		var out []triple
		ok := ExtractJSONArray(`[{"source":"a","relation":]`, &out)

		assert.False(t, ok)
		assert.Empty(t, out)
	})
}
