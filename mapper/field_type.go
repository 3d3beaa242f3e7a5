package mapper

import (
	"github.com/effectus/fieldmap/script"
	"github.com/effectus/fieldmap/source"
)

// FieldType describes how a field is queried and aggregated. The resolver
// only ever looks at its name, its type and whether it is a dynamic
// container; everything else is a capability for the query layers.
type FieldType interface {
	Name() string
	TypeName() string
	Meta() map[string]string
}

// DynamicFieldType is a container whose sub-keys are not declared up front.
// ChildFieldType returns nil when key has no field type.
type DynamicFieldType interface {
	FieldType
	ChildFieldType(key string) FieldType
}

// ValueFetcher is implemented by field types that compute their values
// instead of reading them from their source paths.
type ValueFetcher interface {
	FetchValues(lookup script.SearchLookup, src source.Source) ([]interface{}, error)
}

// Analyzed is implemented by text field types that carry an analyzer.
type Analyzed interface {
	Analyzer() string
}

// IsDynamic reports whether ft is a dynamic container.
func IsDynamic(ft FieldType) bool {
	_, ok := ft.(DynamicFieldType)
	return ok
}

// BaseFieldType holds the parts every field type shares.
type BaseFieldType struct {
	name     string
	typeName string
	meta     map[string]string
}

// NewBaseFieldType creates the shared part of a field type.
func NewBaseFieldType(name, typeName string, meta map[string]string) BaseFieldType {
	return BaseFieldType{name: name, typeName: typeName, meta: meta}
}

func (b BaseFieldType) Name() string {
	return b.name
}

func (b BaseFieldType) TypeName() string {
	return b.typeName
}

func (b BaseFieldType) Meta() map[string]string {
	return b.meta
}

// Field is a concretely mapped field: it owns its field type and may copy
// its value into other fields at index time.
type Field struct {
	Type   FieldType
	CopyTo []string
}

// Name returns the full name of the field.
func (f Field) Name() string {
	if f.Type == nil {
		return ""
	}
	return f.Type.Name()
}

// Alias redirects Name to the field at Path.
type Alias struct {
	Name string
	Path string
}
