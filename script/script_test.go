package script

import (
	"testing"

	"github.com/effectus/fieldmap/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup map[string][]interface{}

func (f fakeLookup) FieldValues(field string, src source.Source) ([]interface{}, error) {
	return f[field], nil
}

func TestParse(t *testing.T) {
	s, err := Parse("source.a")
	require.NoError(t, err)
	assert.Equal(t, Script{Source: "source.a", Lang: DefaultLang}, s)

	s, err = Parse(map[string]interface{}{
		"source": "params.x",
		"params": map[string]interface{}{"x": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "params.x", s.Source)
	assert.Equal(t, 1, s.Params["x"])

	_, err = Parse(map[string]interface{}{"source": "1", "options": "x"})
	assert.Error(t, err)
	_, err = Parse("   ")
	assert.Error(t, err)
	_, err = Parse(42)
	assert.Error(t, err)
}

func TestCompileAndRun(t *testing.T) {
	compiler := NewCompiler()
	src := source.FromBytes([]byte(`{"timestamp": "2024-05-01T10:00:00Z", "tags": ["x", "y"]}`))

	tests := []struct {
		name     string
		script   Script
		lookup   SearchLookup
		expected []interface{}
	}{
		{
			name:     "slice of a source string",
			script:   Script{Source: "source.timestamp[0:10]"},
			expected: []interface{}{"2024-05-01"},
		},
		{
			name:     "list emits each element",
			script:   Script{Source: "source.tags"},
			expected: []interface{}{"x", "y"},
		},
		{
			name:     "params are visible",
			script:   Script{Source: "params.prefix + source.tags[0]", Params: map[string]interface{}{"prefix": "p-"}},
			expected: []interface{}{"p-x"},
		},
		{
			name:     "nil emits nothing",
			script:   Script{Source: "nil"},
			expected: nil,
		},
		{
			name:     "doc reads through the lookup",
			script:   Script{Source: `doc("other")`},
			lookup:   fakeLookup{"other": {"v1", "v2"}},
			expected: []interface{}{"v1", "v2"},
		},
		{
			name:     "doc falls back to the source",
			script:   Script{Source: `doc("tags")`},
			expected: []interface{}{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := compiler.Compile(tt.script)
			require.NoError(t, err)
			values, err := program.Provider()(tt.lookup)(src).Execute()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	compiler := NewCompiler()

	_, err := compiler.Compile(Script{Source: "source.a +"})
	assert.Error(t, err)

	_, err = compiler.Compile(Script{Source: "1", Lang: "painless"})
	assert.Error(t, err)
}
