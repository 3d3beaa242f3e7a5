package mapper

import (
	"errors"
	"testing"

	"github.com/effectus/fieldmap/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testScript = ScriptParam("script")
	testTarget = StringParam("target", "")
	testFlag   = BoolParam("flag", false)
)

func testParserContext() *ParserContext {
	leaf := &RuntimeFieldParser{
		Parameters: func() []Decoder {
			return []Decoder{testScript, testTarget, testFlag}
		},
		Validate: func(name string, params Params) error {
			if testFlag.Get(params) && testTarget.Get(params) == "" {
				return errors.New("[flag] requires [target]")
			}
			return nil
		},
		Create: func(c CreateContext) (RuntimeField, error) {
			return leafRuntimeField(c.FullName(), c.Type), nil
		},
	}
	return NewParserContext(MapRegistry{"keyword": leaf, "long": leaf}, nil)
}

func TestParseRuntimeFields(t *testing.T) {
	node := map[string]interface{}{
		"day": map[string]interface{}{
			"type":   "keyword",
			"script": "source.timestamp",
			"meta":   map[string]interface{}{"unit": "day"},
		},
		"count": map[string]interface{}{"type": "long"},
	}

	fields, err := ParseRuntimeFields(node, testParserContext(), "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, fields.Len())
	assert.Equal(t, []string{"count", "day"}, fields.Names())
	assert.Empty(t, fields.Removals())

	entry, ok := fields.Get("day")
	require.True(t, ok)
	assert.False(t, entry.Removed())
	assert.Equal(t, "day", entry.Field().Name())
	assert.Equal(t, "keyword", entry.Field().TypeName())

	// The caller's node is left as it was.
	assert.Equal(t, "keyword", node["day"].(map[string]interface{})["type"])
	assert.Contains(t, node["day"], "script")
}

func TestParseRuntimeFieldsRemoval(t *testing.T) {
	node := map[string]interface{}{
		"gone": nil,
		"kept": map[string]interface{}{"type": "keyword"},
	}

	_, err := ParseRuntimeFields(node, testParserContext(), "", nil, false)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.ErrorIs(t, err, ErrRemovalUnsupported)
	assert.Equal(t, "gone", parseErr.Field)

	fields, err := ParseRuntimeFields(node, testParserContext(), "", nil, true)
	require.NoError(t, err)
	entry, ok := fields.Get("gone")
	require.True(t, ok)
	assert.True(t, entry.Removed())
	assert.Nil(t, entry.Field())
	assert.Equal(t, []string{"gone"}, fields.Removals())
	require.Len(t, fields.Definitions(), 1)
	assert.Equal(t, "kept", fields.Definitions()[0].Name())
}

func TestParseRuntimeFieldsApply(t *testing.T) {
	existing := map[string]RuntimeField{
		"gone":  leafRuntimeField("gone", "keyword"),
		"stays": leafRuntimeField("stays", "keyword"),
		"kept":  leafRuntimeField("kept", "long"),
	}
	fields, err := ParseRuntimeFields(map[string]interface{}{
		"gone":  nil,
		"kept":  map[string]interface{}{"type": "keyword"},
		"fresh": map[string]interface{}{"type": "long"},
	}, testParserContext(), "", nil, true)
	require.NoError(t, err)

	merged := fields.Apply(existing)
	assert.Len(t, merged, 3)
	assert.NotContains(t, merged, "gone")
	assert.Equal(t, "keyword", merged["kept"].TypeName())
	assert.Equal(t, "long", merged["fresh"].TypeName())
	assert.Contains(t, existing, "gone")
}

func TestParseRuntimeFieldsErrors(t *testing.T) {
	tests := []struct {
		name    string
		node    map[string]interface{}
		parent  string
		wantErr error
		field   string
		param   string
	}{
		{
			name:    "missing type",
			node:    map[string]interface{}{"f": map[string]interface{}{"script": "1"}},
			wantErr: ErrMissingType,
			field:   "f",
		},
		{
			name:    "unknown type",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "unknown"}},
			wantErr: ErrUnknownType,
			field:   "f",
		},
		{
			name:    "unknown parameter",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "store": true}},
			wantErr: ErrUnknownParameter,
			field:   "f",
			param:   "store",
		},
		{
			name:    "null on non-nullable parameter",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "target": nil}},
			wantErr: ErrNullValue,
			field:   "f",
			param:   "target",
		},
		{
			name:    "null meta",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "meta": nil}},
			wantErr: ErrNullValue,
			field:   "f",
			param:   "meta",
		},
		{
			name:    "wrong value type",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "flag": 12}},
			wantErr: ErrInvalidValue,
			field:   "f",
			param:   "flag",
		},
		{
			name:    "cross-parameter validation",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "flag": true}},
			wantErr: ErrInvalidValue,
			field:   "f",
		},
		{
			name:    "not an object",
			node:    map[string]interface{}{"f": "keyword"},
			wantErr: ErrNotAnObject,
			field:   "f",
		},
		{
			name:    "script on sub-field",
			node:    map[string]interface{}{"f": map[string]interface{}{"type": "keyword", "script": "1"}},
			parent:  "obj",
			wantErr: ErrScriptOnSubField,
			field:   "f",
		},
		{
			name: "invalid meta",
			node: map[string]interface{}{"f": map[string]interface{}{
				"type": "keyword",
				"meta": map[string]interface{}{"unit": 1},
			}},
			wantErr: ErrInvalidValue,
			field:   "f",
			param:   "meta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuntimeFields(tt.node, testParserContext(), tt.parent, nil, true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.field, parseErr.Field)
			assert.Equal(t, tt.param, parseErr.Param)
		})
	}
}

func TestParseSubFieldsWithoutScript(t *testing.T) {
	var seen script.FactoryProvider = func(lookup script.SearchLookup) script.LeafFactory { return nil }
	var gotParent string
	var gotScript script.FactoryProvider
	ctx := NewParserContext(MapRegistry{"keyword": &RuntimeFieldParser{
		Create: func(c CreateContext) (RuntimeField, error) {
			gotParent = c.Parent
			gotScript = c.ParentScript
			return leafRuntimeField(c.FullName(), c.Type), nil
		},
	}}, nil)

	fields, err := ParseRuntimeFields(map[string]interface{}{
		"sub": map[string]interface{}{"type": "keyword"},
	}, ctx, "obj", seen, false)
	require.NoError(t, err)
	assert.Equal(t, "obj", gotParent)
	assert.NotNil(t, gotScript)

	entry, _ := fields.Get("sub")
	assert.Equal(t, "obj.sub", entry.Field().Name())
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Field: "f", Type: "keyword", Param: "store", Err: ErrUnknownParameter}
	assert.Equal(t, "failed to parse field [f] of type [keyword]: unknown parameter [store]", err.Error())

	err = &ParseError{Field: "f", Err: ErrMissingType}
	assert.Equal(t, "failed to parse field [f]: no type specified", err.Error())
}

func TestCollectFieldTypes(t *testing.T) {
	collected, err := CollectFieldTypes([]RuntimeField{
		leafRuntimeField("a", "keyword"),
		&testRuntimeField{name: "obj", typeName: "composite", types: []FieldType{
			newTestFieldType("obj.x", "long"),
			newTestFieldType("obj.y", "long"),
		}},
	})
	require.NoError(t, err)
	assert.Len(t, collected, 3)
	assert.Contains(t, collected, "obj.x")

	_, err = CollectFieldTypes([]RuntimeField{
		leafRuntimeField("x", "keyword"),
		&testRuntimeField{name: "other", typeName: "composite", types: []FieldType{newTestFieldType("x", "long")}},
	})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "found two runtime fields with same name [x]", err.Error())
}
