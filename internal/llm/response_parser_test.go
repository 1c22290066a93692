package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "plain object", input: `{"should_end": true}`, want: `{"should_end": true}`, ok: true},
		{name: "fenced", input: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`, ok: true},
		{name: "surrounding prose", input: "Here you go:\n{\"a\": {\"b\": 2}}\nThanks", want: `{"a": {"b": 2}}`, ok: true},
		{name: "braces inside strings", input: `{"text": "a } b { c"}`, want: `{"text": "a } b { c"}`, ok: true},
		{name: "escaped quotes", input: `{"text": "he said \"hi\""}`, want: `{"text": "he said \"hi\""}`, ok: true},
		{name: "skips malformed first candidate", input: `{broken} then {"ok": true}`, want: `{"ok": true}`, ok: true},
		{name: "no json", input: "just words", ok: false},
		{name: "empty", input: "", ok: false},
		{name: "unterminated", input: `{"a": 1`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := DecodeObject(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, res.Raw)
			}
		})
	}
}

func TestDecodeArray(t *testing.T) {
	res, ok := DecodeArray("Predictions:\n```json\n[{\"content\": \"x\"}, {\"content\": \"y\"}]\n```")
	require.True(t, ok)
	assert.Len(t, res.Array(), 2)

	_, ok = DecodeArray(`{"not": "array"}`)
	assert.False(t, ok)
}

func TestDecodeValue(t *testing.T) {
	res, ok := DecodeValue(`Facts: [{"fact": "a"}, "b"]`)
	require.True(t, ok)
	assert.True(t, res.IsArray())

	res, ok = DecodeValue(`{"event_log": {"atomic_fact": ["a"]}}`)
	require.True(t, ok)
	assert.True(t, res.IsObject())

	res, ok = DecodeValue(`[broken {"ok": true}`)
	require.True(t, ok)
	assert.True(t, res.IsObject())

	_, ok = DecodeValue("none")
	assert.False(t, ok)
}

func TestDecodeObjectRepair(t *testing.T) {
	t.Run("valid input untouched", func(t *testing.T) {
		res, ok := DecodeObjectRepair(`{"title": "t", "content": "c"}`)
		require.True(t, ok)
		assert.Equal(t, "t", res.Get("title").String())
	})

	t.Run("trailing comma", func(t *testing.T) {
		res, ok := DecodeObjectRepair(`{"title": "t", "content": "c",}`)
		require.True(t, ok)
		assert.Equal(t, "c", res.Get("content").String())
	})

	t.Run("truncated reply", func(t *testing.T) {
		res, ok := DecodeObjectRepair(`{"title": "Trip", "content": "They planned a trip`)
		require.True(t, ok)
		assert.Equal(t, "Trip", res.Get("title").String())
	})

	t.Run("no object at all", func(t *testing.T) {
		_, ok := DecodeObjectRepair("nothing here")
		assert.False(t, ok)
	})
}

func TestBoolOr(t *testing.T) {
	res, ok := DecodeObject(`{"t": true, "f": false, "s": "TRUE", "n": 1, "z": 0, "junk": "maybe", "obj": {}}`)
	require.True(t, ok)

	assert.True(t, BoolOr(res, "t", false))
	assert.False(t, BoolOr(res, "f", true))
	assert.True(t, BoolOr(res, "s", false))
	assert.True(t, BoolOr(res, "n", false))
	assert.False(t, BoolOr(res, "z", true))
	assert.True(t, BoolOr(res, "junk", true))
	assert.False(t, BoolOr(res, "obj", false))
	assert.True(t, BoolOr(res, "missing", true))
}

func TestUnmarshal(t *testing.T) {
	res, ok := DecodeObject(`{"title": "x", "summary": "y"}`)
	require.True(t, ok)

	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	require.NoError(t, Unmarshal(res, &out))
	assert.Equal(t, "x", out.Title)
	assert.Equal(t, "y", out.Summary)

	var missing struct{}
	assert.ErrorIs(t, Unmarshal(res.Get("nope"), &missing), ErrNoJSON)
}
