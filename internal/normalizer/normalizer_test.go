package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) any {
	t.Helper()
	v, err := ParseJSON(text)
	require.NoError(t, err)
	return v
}

func TestNormalize_ValidJSONPassesThrough(t *testing.T) {
	n := New()
	inputs := []string{
		`{"a": 1, "b": [true, false, null], "c": {"d": "e"}}`,
		`[1, 2.5, -3e2, "x"]`,
		`"just a string"`,
		`42`,
		`null`,
		"  \n{\"padded\": true}\n\t",
		`{"code": "` + "```" + `inner fence` + "```" + `"}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			res := n.Normalize(in)
			require.True(t, res.OK(), "unexpected error: %v", res.Err)
			assert.Equal(t, MethodJSON, res.Method)
			if diff := cmp.Diff(mustParse(t, in), res.Value); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_FencesAreTransparent(t *testing.T) {
	n := New()
	payload := `{"personal_info": {"name": "Jane Doe"}, "skills": ["Python","SQL"]}`
	want := n.Normalize(payload)
	require.True(t, want.OK())

	wrapped := []string{
		"```json\n" + payload + "\n```",
		"```\n" + payload + "\n```",
		"```JSON\n" + payload + "```",
		"  ```json\n\n" + payload + "\n\n```  ",
		"```json " + payload + " ```",
		"```" + payload + "```",
	}
	for _, in := range wrapped {
		t.Run(in, func(t *testing.T) {
			got := n.Normalize(in)
			require.True(t, got.OK(), "unexpected error: %v", got.Err)
			assert.Equal(t, MethodJSONFenced, got.Method)
			if diff := cmp.Diff(want.Value, got.Value); diff != "" {
				t.Errorf("fenced value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_InvalidTextKeptVerbatim(t *testing.T) {
	inputs := []string{
		"Sorry, I can't process this.",
		`{"a": 1,}`,
		`{'a': 1}`,
		`{"a": 1} trailing prose`,
		"Here you go: {\"a\": 1}",
		"```json\n{broken\n```",
		"   ",
		"",
	}
	for _, relaxed := range []bool{false, true} {
		n := New(WithRelaxedLiterals(relaxed))
		for _, in := range inputs {
			if relaxed && (in == `{"a": 1,}` || in == `{'a': 1}`) {
				continue // valid relaxed syntax
			}
			res := n.Normalize(in)
			require.False(t, res.OK(), "relaxed=%v input %q parsed to %v", relaxed, in, res.Value)
			assert.Equal(t, KindInvalidStructuredOutput, res.Err.Kind)
			assert.Equal(t, in, res.Err.RawText)
			assert.NotEmpty(t, res.Err.Message)
			assert.Nil(t, res.Value)
		}
	}
}

func TestNormalize_RoundTripIsIdempotent(t *testing.T) {
	n := New()
	inputs := []string{
		`{"name": "Jane", "score": 0.87, "big": 12345678901234567890, "tags": ["a", "b"], "nested": {"x": null}}`,
		`[{"title": "Engineer", "match_score": 1e-3}]`,
		`{"html": "<b>&amp;</b>", "unicode": "café"}`,
	}
	for _, in := range inputs {
		first := n.Normalize(in)
		require.True(t, first.OK())

		encoded, err := json.Marshal(first.Value)
		require.NoError(t, err)

		second := n.Normalize(string(encoded))
		require.True(t, second.OK())
		if diff := cmp.Diff(first.Value, second.Value); diff != "" {
			t.Errorf("round trip changed value (-first +second):\n%s", diff)
		}
	}
}

func TestNormalize_FencedResumeScenario(t *testing.T) {
	raw := "```json\n{\"personal_info\": {\"name\": \"Jane Doe\"}, \"skills\": [\"Python\",\"SQL\"]}\n```"

	res := New().Normalize(raw)
	require.True(t, res.OK())

	want := map[string]any{
		"personal_info": map[string]any{"name": "Jane Doe"},
		"skills":        []any{"Python", "SQL"},
	}
	if diff := cmp.Diff(want, res.Value); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestNormalize_ApologyScenario(t *testing.T) {
	raw := "Sorry, I can't process this."

	res := New().Normalize(raw)
	require.False(t, res.OK())
	assert.Equal(t, KindInvalidStructuredOutput, res.Err.Kind)
	assert.Equal(t, raw, res.Err.RawText)
}

func TestNormalize_RelaxedLiteralFallback(t *testing.T) {
	raw := "```python\n{'name': 'Jane', 'remote': True, 'manager': None, 'skills': ('Go', 'SQL',), 'years': 5,}\n```"

	strict := New().Normalize(raw)
	assert.False(t, strict.OK(), "strict mode must not accept Python literals")

	res := New(WithRelaxedLiterals(true)).Normalize(raw)
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, MethodLiteralFenced, res.Method)

	want := map[string]any{
		"name":    "Jane",
		"remote":  true,
		"manager": nil,
		"skills":  []any{"Go", "SQL"},
		"years":   json.Number("5"),
	}
	if diff := cmp.Diff(want, res.Value); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestNormalize_RelaxedPrefersJSON(t *testing.T) {
	res := New(WithRelaxedLiterals(true)).Normalize(`{"a": true}`)
	require.True(t, res.OK())
	assert.Equal(t, MethodJSON, res.Method)
}

func TestResult_MarshalJSON(t *testing.T) {
	ok := New().Normalize(`{"skills": ["Go"]}`)
	b, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"skills": ["Go"]}`, string(b))

	bad := New().Normalize("nope")
	b, err = json.Marshal(bad)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "InvalidStructuredOutput", got["error"])
	assert.Equal(t, "nope", got["raw_text"])
	assert.Equal(t, bad.Err.Message, got["message"])
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     string
		stripped bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"tagged", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"untagged", "```\n[1]\n```", `[1]`, true},
		{"closing only", "{\"a\":1}\n```", `{"a":1}`, true},
		{"opening only", "```json\n{\"a\":1}", `{"a":1}`, true},
		{"inner fence kept", "```json\n{\"md\": \"```x```\"}\n```", "{\"md\": \"```x```\"}", true},
		{"payload on fence line", "```{\"a\":1}\n```", `{"a":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stripped := StripFences(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stripped, stripped)
		})
	}
}
