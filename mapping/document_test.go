package mapping

import (
	"errors"
	"testing"

	"github.com/effectus/fieldmap/mapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMapping = `
properties:
  message: {type: text, analyzer: english, copy_to: all_text}
  title:
    type: text
    copy_to: [all_text]
    fields:
      raw: {type: keyword}
  all_text: {type: text}
  attrs: {type: flattened}
  user:
    properties:
      name: {type: keyword, meta: {owner: identity}}
      age: {type: integer}
  author: {type: alias, path: user.name}
runtime:
  day: {type: keyword, script: "source.timestamp[0:10]"}
`

func fieldNames(fields []mapper.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleMapping))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"all_text", "attrs", "message", "title", "title.raw", "user.age", "user.name"},
		fieldNames(doc.Fields))
	assert.Equal(t, []mapper.Alias{{Name: "author", Path: "user.name"}}, doc.Aliases)
	assert.Contains(t, doc.Runtime, "day")

	byName := make(map[string]mapper.Field)
	for _, f := range doc.Fields {
		byName[f.Name()] = f
	}

	message := byName["message"]
	assert.Equal(t, []string{"all_text"}, message.CopyTo)
	analyzed, ok := message.Type.(mapper.Analyzed)
	require.True(t, ok)
	assert.Equal(t, "english", analyzed.Analyzer())

	allText, ok := byName["all_text"].Type.(mapper.Analyzed)
	require.True(t, ok)
	assert.Equal(t, DefaultAnalyzer, allText.Analyzer())

	raw, ok := byName["title.raw"].Type.(*FieldType)
	require.True(t, ok)
	assert.Equal(t, "title", raw.MultiFieldOf)
	assert.Equal(t, KeywordType, raw.TypeName())

	assert.True(t, mapper.IsDynamic(byName["attrs"].Type))
	assert.Equal(t, map[string]string{"owner": "identity"}, byName["user.name"].Type.Meta())
}

func TestParseDocumentJSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"properties": {"a": {"type": "long"}}, "runtime": {"b": null}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fieldNames(doc.Fields))
	assert.Contains(t, doc.Runtime, "b")
	assert.Nil(t, doc.Runtime["b"])
}

func TestParseDocumentEmpty(t *testing.T) {
	doc, err := ParseDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Fields)
	assert.Empty(t, doc.Aliases)
	assert.Empty(t, doc.Runtime)
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		mapping string
		wantErr error
		field   string
		param   string
	}{
		{name: "unknown section", mapping: "settings: {}", wantErr: mapper.ErrInvalidMapping},
		{name: "properties not an object", mapping: "properties: [a]", wantErr: mapper.ErrInvalidMapping},
		{name: "field not an object", mapping: "properties: {a: keyword}", wantErr: mapper.ErrNotAnObject, field: "a"},
		{name: "unknown type", mapping: "properties: {a: {type: geo_shape}}", wantErr: mapper.ErrUnknownType, field: "a"},
		{
			name:    "unknown parameter",
			mapping: "properties: {a: {type: keyword, analyzer: standard}}",
			wantErr: mapper.ErrUnknownParameter,
			field:   "a",
			param:   "analyzer",
		},
		{
			name:    "null parameter",
			mapping: "properties: {a: {type: keyword, copy_to: null}}",
			wantErr: mapper.ErrNullValue,
			field:   "a",
			param:   "copy_to",
		},
		{
			name:    "bad copy_to",
			mapping: "properties: {a: {type: keyword, copy_to: {b: 1}}}",
			wantErr: mapper.ErrInvalidValue,
			field:   "a",
			param:   "copy_to",
		},
		{
			name:    "object with leaf parameter",
			mapping: "properties: {a: {copy_to: b, properties: {}}}",
			wantErr: mapper.ErrUnknownParameter,
			field:   "a",
			param:   "copy_to",
		},
		{
			name:    "alias without path",
			mapping: "properties: {a: {type: alias}}",
			wantErr: mapper.ErrInvalidValue,
			field:   "a",
			param:   "path",
		},
		{
			name:    "multi-field without type",
			mapping: "properties: {a: {type: text, fields: {raw: {}}}}",
			wantErr: mapper.ErrMissingType,
			field:   "a.raw",
		},
		{
			name:    "multi-field with copy_to",
			mapping: "properties: {a: {type: text, fields: {raw: {type: keyword, copy_to: b}}}}",
			wantErr: mapper.ErrUnknownParameter,
			field:   "a.raw",
			param:   "copy_to",
		},
		{
			name:    "flattened multi-field",
			mapping: "properties: {a: {type: text, fields: {raw: {type: flattened}}}}",
			wantErr: mapper.ErrUnknownType,
			field:   "a.raw",
		},
		{
			name:    "defined twice",
			mapping: "properties: {a.b: {type: keyword}, a: {properties: {b: {type: long}}}}",
			wantErr: mapper.ErrInvalidMapping,
			field:   "a.b",
		},
		{name: "runtime not an object", mapping: "runtime: [a]", wantErr: mapper.ErrInvalidMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.mapping))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var parseErr *mapper.ParseError
			if errors.As(err, &parseErr) {
				assert.Equal(t, tt.field, parseErr.Field)
				assert.Equal(t, tt.param, parseErr.Param)
			} else {
				assert.Empty(t, tt.field)
			}
		})
	}
}

func TestFlattenedChildren(t *testing.T) {
	ft := newFieldType("attrs", FlattenedType, nil, "", "").(*FlattenedFieldType)

	child := ft.ChildFieldType("color.primary")
	require.NotNil(t, child)
	assert.Equal(t, "attrs.color.primary", child.Name())
	assert.Equal(t, KeywordType, child.TypeName())
	keyed := child.(*KeyedFieldType)
	assert.Equal(t, "attrs", keyed.Root())
	assert.Equal(t, "color.primary", keyed.Key())

	assert.Nil(t, ft.ChildFieldType(""))
}
