package batcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArrayClean(t *testing.T) {
	items := ParseArrayResponse(`[{"label": "saas", "confidence": 0.9}, {"label": "fintech", "confidence": 0.7}]`)
	require.Len(t, items, 2)
	assert.Equal(t, "saas", items[0]["label"])
	assert.Equal(t, 0.9, items[0]["confidence"])
	assert.Equal(t, "fintech", items[1]["label"])
}

func TestParseArrayMarkdownFenced(t *testing.T) {
	items := ParseArrayResponse("```json\n[{\"label\": \"legal\"}]\n```")
	require.Len(t, items, 1)
	assert.Equal(t, "legal", items[0]["label"])
}

func TestParseArrayEmbeddedInProse(t *testing.T) {
	items := ParseArrayResponse(`Here are the results you asked for: [{"id": 1}, {"id": 2}] Hope that helps!`)
	require.Len(t, items, 2)
	assert.Equal(t, float64(1), items[0]["id"])
}

func TestParseArrayNewlineDelimited(t *testing.T) {
	items := ParseArrayResponse("{\"label\": \"a\"}\n{\"label\": \"b\"}")
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["label"])
	assert.Equal(t, "b", items[1]["label"])
}

func TestParseArrayGarbage(t *testing.T) {
	assert.Empty(t, ParseArrayResponse("I could not process your request."))
	assert.Empty(t, ParseArrayResponse(""))
	assert.Empty(t, ParseArrayResponse("[not json at all"))
}

func TestParseArrayPreferenceOrder(t *testing.T) {
	// A clean array wins even when a fence is also present later.
	items := ParseArrayResponse(`[{"src": "clean"}]`)
	require.Len(t, items, 1)
	assert.Equal(t, "clean", items[0]["src"])
}

func TestParseObjectResponse(t *testing.T) {
	obj, ok := ParseObjectResponse(`{"score": 8}`)
	require.True(t, ok)
	assert.Equal(t, float64(8), obj["score"])

	obj, ok = ParseObjectResponse("```json\n{\"score\": 5}\n```")
	require.True(t, ok)
	assert.Equal(t, float64(5), obj["score"])

	obj, ok = ParseObjectResponse(`The assessment is {"risk": "low"} overall.`)
	require.True(t, ok)
	assert.Equal(t, "low", obj["risk"])

	_, ok = ParseObjectResponse("no json here")
	assert.False(t, ok)
}
