package runtimefield

import (
	"fmt"

	"github.com/effectus/fieldmap/mapper"
	"github.com/effectus/fieldmap/script"
	"github.com/effectus/fieldmap/source"
)

// What to do when a script fails or emits a value of the wrong type.
const (
	OnScriptErrorFail     = "fail"
	OnScriptErrorContinue = "continue"
)

// ScriptFieldType is the field type of a leaf runtime field. Without a
// script it reads the values stored under its own name.
type ScriptFieldType struct {
	mapper.BaseFieldType
	provider      script.FactoryProvider
	coerce        coerceFunc
	onScriptError string
}

var (
	_ mapper.FieldType    = (*ScriptFieldType)(nil)
	_ mapper.ValueFetcher = (*ScriptFieldType)(nil)
)

// Scripted reports whether the values come from a script.
func (f *ScriptFieldType) Scripted() bool {
	return f.provider != nil
}

// FetchValues computes the field's values for one document.
func (f *ScriptFieldType) FetchValues(lookup script.SearchLookup, src source.Source) ([]interface{}, error) {
	if src == nil {
		src = source.Empty
	}
	var raw []interface{}
	var err error
	if f.provider != nil {
		raw, err = f.provider(lookup)(src).Execute()
	} else {
		raw, err = src.Extract(f.Name())
	}
	if err != nil {
		return f.fail(err)
	}

	values := make([]interface{}, 0, len(raw))
	for _, v := range raw {
		coerced, err := f.coerce(v)
		if err != nil {
			return f.fail(err)
		}
		values = append(values, coerced)
	}
	return values, nil
}

func (f *ScriptFieldType) fail(err error) ([]interface{}, error) {
	if f.onScriptError == OnScriptErrorContinue {
		return nil, nil
	}
	return nil, fmt.Errorf("runtime field [%s] of type [%s]: %w", f.Name(), f.TypeName(), err)
}

// LeafField is a runtime field backing exactly one ScriptFieldType.
type LeafField struct {
	fieldType *ScriptFieldType
	script    *script.Script
}

var _ mapper.RuntimeField = (*LeafField)(nil)

func (l *LeafField) Name() string {
	return l.fieldType.Name()
}

func (l *LeafField) TypeName() string {
	return l.fieldType.TypeName()
}

func (l *LeafField) Meta() map[string]string {
	return l.fieldType.Meta()
}

// Script returns the declared script, nil for sub-fields and source reads.
func (l *LeafField) Script() *script.Script {
	return l.script
}

// FieldType returns the backing field type.
func (l *LeafField) FieldType() *ScriptFieldType {
	return l.fieldType
}

func (l *LeafField) FieldTypes() []mapper.FieldType {
	return []mapper.FieldType{l.fieldType}
}

func (l *LeafField) Resolve(mapper.LookupFunc) (mapper.FieldType, error) {
	return l.fieldType, nil
}

// AliasField is a runtime field standing in for another field. Looking it
// up resolves its path instead.
type AliasField struct {
	name string
	path string
	meta map[string]string
}

var _ mapper.RuntimeField = (*AliasField)(nil)

func (a *AliasField) Name() string {
	return a.name
}

func (a *AliasField) TypeName() string {
	return AliasType
}

func (a *AliasField) Meta() map[string]string {
	return a.meta
}

// Path returns the name of the field this alias points to.
func (a *AliasField) Path() string {
	return a.path
}

// FieldTypes is empty: an alias owns no field type.
func (a *AliasField) FieldTypes() []mapper.FieldType {
	return nil
}

func (a *AliasField) Resolve(lookup mapper.LookupFunc) (mapper.FieldType, error) {
	return lookup(a.path)
}
