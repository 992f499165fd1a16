package kuma

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntLenient(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{"number", `42`, 42, true},
		{"string", `"42"`, 42, true},
		{"padded string", `" 7 "`, 7, true},
		{"garbage", `"seven"`, 0, false},
		{"object", `{}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Int
			err := json.Unmarshal([]byte(tt.input), &v)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int(v))
		})
	}
}

func TestBoolLenient(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"False"`, false},
		{`1`, true},
		{`0`, false},
	}

	for _, tt := range tests {
		var v Bool
		require.NoError(t, json.Unmarshal([]byte(tt.input), &v), tt.input)
		assert.Equal(t, tt.want, bool(v), tt.input)
	}
}

func TestStringListLenient(t *testing.T) {
	var fromArray StringList
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &fromArray))
	assert.Equal(t, StringList{"a", "b"}, fromArray)

	var fromEncoded StringList
	require.NoError(t, json.Unmarshal([]byte(`"[\"a\",\"b\"]"`), &fromEncoded))
	assert.Equal(t, StringList{"a", "b"}, fromEncoded)

	// A scalar assigned to a list field becomes a single-element list.
	var fromScalar StringList
	require.NoError(t, json.Unmarshal([]byte(`"a"`), &fromScalar))
	assert.Equal(t, StringList{"a"}, fromScalar)

	var fromNumbers StringList
	require.NoError(t, json.Unmarshal([]byte(`[200, 301]`), &fromNumbers))
	assert.Equal(t, StringList{"200", "301"}, fromNumbers)
}

func TestBoolMapLenient(t *testing.T) {
	var fromObject BoolMap
	require.NoError(t, json.Unmarshal([]byte(`{"1": true}`), &fromObject))
	assert.Equal(t, BoolMap{"1": true}, fromObject)

	var fromEncoded BoolMap
	require.NoError(t, json.Unmarshal([]byte(`"{\"2\": true}"`), &fromEncoded))
	assert.Equal(t, BoolMap{"2": true}, fromEncoded)
}

func TestExpandStatusCodes(t *testing.T) {
	expanded := ExpandStatusCodes([]string{"200-299", "301"})

	assert.Len(t, expanded, 101)
	assert.Contains(t, expanded, 200)
	assert.Contains(t, expanded, 299)
	assert.Contains(t, expanded, 301)
	assert.NotContains(t, expanded, 300)

	// Unparseable entries and inverted ranges are dropped.
	assert.Empty(t, ExpandStatusCodes([]string{"x", "300-200"}))
}

func TestConfigEqualIgnoresEnvelopeAttributes(t *testing.T) {
	a := JSONObject{"webhookURL": "https://example.com", "id": float64(1), "name": "x"}
	b := JSONObject{"webhookURL": "https://example.com", "active": true}
	assert.True(t, ConfigEqual(a, b))

	c := JSONObject{"webhookURL": "https://other.example.com"}
	assert.False(t, ConfigEqual(a, c))
}
