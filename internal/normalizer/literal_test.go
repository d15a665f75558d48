package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"single quotes", `{'a': 'b'}`, map[string]any{"a": "b"}},
		{"mixed quotes", `{"a": 'it"s'}`, map[string]any{"a": `it"s`}},
		{"escapes", `'line\nnext \'q\' \u00e9 \x41'`, "line\nnext 'q' é A"},
		{"unknown escape kept", `'C:\data'`, `C:\data`},
		{"python words", `[True, False, None]`, []any{true, false, nil}},
		{"json words", `[true, false, null]`, []any{true, false, nil}},
		{"tuple", `(1, 2)`, []any{json.Number("1"), json.Number("2")}},
		{"empty containers", `{'a': [], 'b': {}, 'c': ()}`, map[string]any{"a": []any{}, "b": map[string]any{}, "c": []any{}}},
		{"trailing commas", `{'a': [1, 2,],}`, map[string]any{"a": []any{json.Number("1"), json.Number("2")}}},
		{"numbers", `[-1, +2, 3.5, .5, 1_000, 1e3, 007]`, []any{
			json.Number("-1"), json.Number("2"), json.Number("3.5"), json.Number("0.5"),
			json.Number("1000"), json.Number("1e3"), json.Number("7"),
		}},
		{"non-string keys", `{1: 'a', True: 'b', None: 'c'}`, map[string]any{"1": "a", "true": "b", "null": "c"}},
		{"nested", "{\n  'job': {'title': 'Dev', 'skills': ['Go']}\n}", map[string]any{
			"job": map[string]any{"title": "Dev", "skills": []any{"Go"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLiteral(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLiteral(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestParseLiteral_Errors(t *testing.T) {
	inputs := []string{
		``,
		`{'a' 1}`,
		`{'a': 1`,
		`['a', 'b'`,
		`'unterminated`,
		`{['k']: 1}`,
		`[1] extra`,
		`undefined`,
		`-`,
		"'multi\nline'",
		`'\u12'`,
	}
	for _, in := range inputs {
		_, err := ParseLiteral(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseLiteral_DepthLimit(t *testing.T) {
	deep := ""
	for i := 0; i < maxLiteralDepth+1; i++ {
		deep += "["
	}
	_, err := ParseLiteral(deep)
	assert.ErrorContains(t, err, "nesting too deep")
}
