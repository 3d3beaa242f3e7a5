package runtimefield

import (
	"fmt"
	"sort"

	"github.com/effectus/fieldmap/mapper"
	"github.com/effectus/fieldmap/script"
	"github.com/effectus/fieldmap/source"
)

// CompositeField is an object runtime field: one script emits objects and
// every sub-field reads one key of them.
type CompositeField struct {
	fieldType *CompositeFieldType
	script    script.Script
}

var _ mapper.RuntimeField = (*CompositeField)(nil)

func (c *CompositeField) Name() string {
	return c.fieldType.Name()
}

func (c *CompositeField) TypeName() string {
	return CompositeType
}

func (c *CompositeField) Meta() map[string]string {
	return c.fieldType.Meta()
}

// Script returns the script shared by all sub-fields.
func (c *CompositeField) Script() script.Script {
	return c.script
}

// FieldTypes returns the sub-field types, sorted by name.
func (c *CompositeField) FieldTypes() []mapper.FieldType {
	keys := make([]string, 0, len(c.fieldType.children))
	for key := range c.fieldType.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]mapper.FieldType, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.fieldType.children[key])
	}
	return out
}

func (c *CompositeField) Resolve(mapper.LookupFunc) (mapper.FieldType, error) {
	return c.fieldType, nil
}

// CompositeFieldType is a dynamic container over the sub-fields of a
// composite runtime field.
type CompositeFieldType struct {
	mapper.BaseFieldType
	provider script.FactoryProvider
	children map[string]mapper.FieldType
}

var (
	_ mapper.DynamicFieldType = (*CompositeFieldType)(nil)
	_ mapper.ValueFetcher     = (*CompositeFieldType)(nil)
)

func (c *CompositeFieldType) ChildFieldType(key string) mapper.FieldType {
	child, ok := c.children[key]
	if !ok {
		return nil
	}
	return child
}

// FetchValues returns the objects emitted by the script.
func (c *CompositeFieldType) FetchValues(lookup script.SearchLookup, src source.Source) ([]interface{}, error) {
	if src == nil {
		src = source.Empty
	}
	values, err := c.provider(lookup)(src).Execute()
	if err != nil {
		return nil, fmt.Errorf("runtime field [%s] of type [%s]: %w", c.Name(), CompositeType, err)
	}
	return values, nil
}

// subFieldProvider reads key out of every object the parent script emits.
func subFieldProvider(parent script.FactoryProvider, key string) script.FactoryProvider {
	return func(lookup script.SearchLookup) script.LeafFactory {
		parentFactory := parent(lookup)
		return func(src source.Source) script.Leaf {
			return &subFieldLeaf{parent: parentFactory(src), key: key}
		}
	}
}

type subFieldLeaf struct {
	parent script.Leaf
	key    string
}

func (l *subFieldLeaf) Execute() ([]interface{}, error) {
	emitted, err := l.parent.Execute()
	if err != nil {
		return nil, err
	}
	var values []interface{}
	for _, item := range emitted {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("composite script must emit objects, got %T", item)
		}
		values = append(values, source.ExtractValues(obj, l.key)...)
	}
	return values, nil
}
