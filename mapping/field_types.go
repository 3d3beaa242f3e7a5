package mapping

import (
	"github.com/effectus/fieldmap/mapper"
)

// Concrete field types.
const (
	KeywordType   = "keyword"
	TextType      = "text"
	LongType      = "long"
	IntegerType   = "integer"
	ShortType     = "short"
	ByteType      = "byte"
	DoubleType    = "double"
	FloatType     = "float"
	BooleanType   = "boolean"
	DateType      = "date"
	IPType        = "ip"
	FlattenedType = "flattened"
	AliasType     = "alias"
	ObjectType    = "object"
)

// DefaultAnalyzer is used by text fields that declare none.
const DefaultAnalyzer = "standard"

// FieldType is the field type of a concretely mapped leaf field.
type FieldType struct {
	mapper.BaseFieldType
	// MultiFieldOf names the parent of a multi-field, empty otherwise.
	MultiFieldOf string
}

// TextFieldType is a full-text field carrying its analyzer.
type TextFieldType struct {
	FieldType
	analyzer string
}

var _ mapper.Analyzed = (*TextFieldType)(nil)

func (t *TextFieldType) Analyzer() string {
	return t.analyzer
}

// FlattenedFieldType maps a whole object as keyword values; every key under
// it is addressable as name.key without being declared.
type FlattenedFieldType struct {
	FieldType
}

var _ mapper.DynamicFieldType = (*FlattenedFieldType)(nil)

func (f *FlattenedFieldType) ChildFieldType(key string) mapper.FieldType {
	if key == "" {
		return nil
	}
	return &KeyedFieldType{
		BaseFieldType: mapper.NewBaseFieldType(f.Name()+"."+key, KeywordType, f.Meta()),
		root:          f.Name(),
		key:           key,
	}
}

// KeyedFieldType is one key of a flattened field.
type KeyedFieldType struct {
	mapper.BaseFieldType
	root string
	key  string
}

// Root returns the flattened field holding the key.
func (k *KeyedFieldType) Root() string {
	return k.root
}

// Key returns the key below the flattened field.
func (k *KeyedFieldType) Key() string {
	return k.key
}

func newFieldType(name, typeName string, meta map[string]string, analyzer, multiFieldOf string) mapper.FieldType {
	base := FieldType{BaseFieldType: mapper.NewBaseFieldType(name, typeName, meta), MultiFieldOf: multiFieldOf}
	switch typeName {
	case TextType:
		if analyzer == "" {
			analyzer = DefaultAnalyzer
		}
		return &TextFieldType{FieldType: base, analyzer: analyzer}
	case FlattenedType:
		return &FlattenedFieldType{FieldType: base}
	default:
		return &base
	}
}

func isLeafType(typeName string) bool {
	switch typeName {
	case KeywordType, TextType, LongType, IntegerType, ShortType, ByteType,
		DoubleType, FloatType, BooleanType, DateType, IPType, FlattenedType:
		return true
	}
	return false
}
