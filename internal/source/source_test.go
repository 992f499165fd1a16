package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autokuma/autokuma/internal/entity"
)

func TestKumaLabelsFiltersAndStripsPrefix(t *testing.T) {
	labels := map[string]string{
		"kuma.demo.http.name": "Demo",
		"kuma.demo.http.url":  "https://example.com",
		"traefik.enable":      "true",
		"unrelated":           "x",
	}

	out := kumaLabels(labels, "kuma", nil)
	require.Len(t, out, 2)
	assert.Equal(t, entity.Label{Key: "demo.http.name", Value: "Demo"}, out[0])
}

func TestKumaLabelsInjectsBangSnippetInvocations(t *testing.T) {
	labels := map[string]string{
		"traefik.enable": "true",
		"other":          "x",
	}
	snippets := map[string]string{"!traefik.enable": "..."}

	out := kumaLabels(labels, "kuma", snippets)
	require.Len(t, out, 1)
	assert.Equal(t, "__!traefik.enable", out[0].Key)
	assert.Equal(t, "true", out[0].Value)

	assert.True(t, hasKumaLabels(labels, "kuma", snippets))
	assert.False(t, hasKumaLabels(map[string]string{"other": "x"}, "kuma", snippets))
}

func TestFlattenSettings(t *testing.T) {
	labels, err := flattenSettings("web", map[string]any{
		"type": "http",
		"name": "Web",
		"headers": map[string]any{
			"X-Token": "abc",
		},
		"accepted_statuscodes": []any{"200-299"},
		"interval":             60,
	})
	require.NoError(t, err)

	byKey := make(map[string]string, len(labels))
	for _, label := range labels {
		byKey[label.Key] = label.Value
	}

	assert.Equal(t, "Web", byKey["web.http.name"])
	assert.Equal(t, "abc", byKey["web.http.headers.X-Token"])
	assert.Equal(t, `["200-299"]`, byKey["web.http.accepted_statuscodes"])
	assert.Equal(t, "60", byKey["web.http.interval"])
	assert.NotContains(t, byKey, "web.http.type")
}

func TestFlattenSettingsRequiresType(t *testing.T) {
	_, err := flattenSettings("web", map[string]any{"name": "Web"})
	assert.Error(t, err)
}

func TestCompileNameMatcher(t *testing.T) {
	globMatcher, err := compileNameMatcher("test-*")
	require.NoError(t, err)
	assert.True(t, globMatcher.matches("test-runner"))
	assert.False(t, globMatcher.matches("prod-runner"))

	regexMatcher, err := compileNameMatcher("/^ci-[0-9]+$/")
	require.NoError(t, err)
	assert.True(t, regexMatcher.matches("ci-42"))
	assert.False(t, regexMatcher.matches("ci-x"))

	_, err = compileNameMatcher("/[unclosed/")
	assert.Error(t, err)
}

func TestNudgeNeverBlocks(t *testing.T) {
	notify := make(chan struct{}, 1)
	Nudge(notify)
	Nudge(notify) // second nudge coalesces instead of blocking
	assert.Len(t, notify, 1)
}
