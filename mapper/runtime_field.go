package mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/effectus/fieldmap/script"
)

// TypeParam is the key holding a declaration's type.
const TypeParam = "type"

// LookupFunc resolves another field while a runtime field is being resolved.
// It re-enters the lookup that is resolving the runtime field, so loops are
// detected across runtime fields.
type LookupFunc func(name string) (FieldType, error)

// RuntimeField is a field whose values are computed at search time rather
// than read from the index.
type RuntimeField interface {
	Name() string
	TypeName() string
	Meta() map[string]string
	// FieldTypes returns every field type this runtime field backs.
	FieldTypes() []FieldType
	// Resolve returns the field type to use when this runtime field is
	// looked up by name.
	Resolve(lookup LookupFunc) (FieldType, error)
}

// FullName joins a parent object field name and a leaf name.
func FullName(parent, leaf string) string {
	if parent == "" {
		return leaf
	}
	return parent + "." + leaf
}

// CreateContext carries everything a RuntimeFieldParser needs to build a
// runtime field once its parameters are decoded.
type CreateContext struct {
	Name    string
	Type    string
	Parent  string
	Params  Params
	Context *ParserContext
	// ParentScript is set for sub-fields of an object field; the sub-field
	// reads from the parent's script instead of compiling its own.
	ParentScript script.FactoryProvider
}

// FullName returns the name including the parent object field, if any.
func (c CreateContext) FullName() string {
	return FullName(c.Parent, c.Name)
}

// Meta returns the decoded meta map.
func (c CreateContext) Meta() map[string]string {
	return MetaParam().Get(c.Params)
}

// RuntimeFieldParser builds runtime fields of one type.
type RuntimeFieldParser struct {
	// Parameters lists the type's decoders; meta is added automatically.
	Parameters func() []Decoder
	// Validate runs cross-parameter checks after every parameter is decoded.
	Validate func(name string, params Params) error
	Create   func(c CreateContext) (RuntimeField, error)
}

// Parse decodes node and creates the runtime field. Decoded keys are removed
// from node, so callers pass a working copy.
func (p *RuntimeFieldParser) Parse(name string, ctx *ParserContext, node map[string]interface{}, parent string, parentScript script.FactoryProvider) (RuntimeField, error) {
	typeName := fmt.Sprint(node[TypeParam])
	delete(node, TypeParam)

	decoders := map[string]Decoder{MetaParamName: MetaParam()}
	if p.Parameters != nil {
		for _, d := range p.Parameters() {
			decoders[d.ParamName()] = d
		}
	}

	keys := sortedKeys(node)
	values := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		raw := node[key]
		decoder, ok := decoders[key]
		if !ok {
			return nil, &ParseError{Field: name, Type: typeName, Param: key, Err: ErrUnknownParameter}
		}
		if raw == nil && !decoder.AcceptsNull() {
			return nil, &ParseError{Field: name, Type: typeName, Param: key, Err: ErrNullValue}
		}
		value, err := decoder.Decode(name, ctx, raw)
		if err != nil {
			return nil, wrapParamError(name, typeName, key, err)
		}
		values[key] = value
		delete(node, key)
	}

	params := Params{values: values}
	if p.Validate != nil {
		if err := p.Validate(name, params); err != nil {
			return nil, wrapParamError(name, typeName, "", err)
		}
	}

	field, err := p.Create(CreateContext{
		Name:         name,
		Type:         typeName,
		Parent:       parent,
		Params:       params,
		Context:      ctx,
		ParentScript: parentScript,
	})
	if err != nil {
		return nil, wrapParamError(name, typeName, "", err)
	}
	return field, nil
}

func wrapParamError(field, typeName, param string, err error) error {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return err
	}
	if errors.Is(err, ErrNullValue) {
		return &ParseError{Field: field, Type: typeName, Param: param, Err: ErrNullValue}
	}
	return &ParseError{Field: field, Type: typeName, Param: param, Err: ErrInvalidValue, Detail: err.Error()}
}

// ParserRegistry maps a runtime field type to its parser.
type ParserRegistry interface {
	RuntimeFieldParser(typeName string) (*RuntimeFieldParser, bool)
}

// MapRegistry is a ParserRegistry backed by a map. It is not safe to
// register while parsing.
type MapRegistry map[string]*RuntimeFieldParser

func (r MapRegistry) RuntimeFieldParser(typeName string) (*RuntimeFieldParser, bool) {
	p, ok := r[typeName]
	return p, ok && p != nil
}

// Types returns the registered type names.
func (r MapRegistry) Types() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParserContext holds the collaborators needed while parsing a mapping.
type ParserContext struct {
	Registry ParserRegistry
	Scripts  *script.Compiler
}

// NewParserContext creates a parser context. A nil compiler gets a fresh one.
func NewParserContext(registry ParserRegistry, compiler *script.Compiler) *ParserContext {
	if compiler == nil {
		compiler = script.NewCompiler()
	}
	return &ParserContext{Registry: registry, Scripts: compiler}
}

// RuntimeFieldParser looks up the parser for typeName.
func (c *ParserContext) RuntimeFieldParser(typeName string) (*RuntimeFieldParser, bool) {
	if c == nil || c.Registry == nil {
		return nil, false
	}
	return c.Registry.RuntimeFieldParser(typeName)
}

// Entry is one parsed runtime field declaration: a definition or a removal.
type Entry struct {
	field   RuntimeField
	removed bool
}

// Field returns the definition, nil for removals.
func (e Entry) Field() RuntimeField {
	return e.field
}

// Removed reports whether the declaration asked to delete the field.
func (e Entry) Removed() bool {
	return e.removed
}

// RuntimeFields is the frozen result of parsing a runtime section.
type RuntimeFields struct {
	entries map[string]Entry
}

// Len returns the number of entries, removals included.
func (r RuntimeFields) Len() int {
	return len(r.entries)
}

// Get returns the entry for name.
func (r RuntimeFields) Get(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns every entry name in sorted order.
func (r RuntimeFields) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the defined runtime fields sorted by name.
func (r RuntimeFields) Definitions() []RuntimeField {
	fields := make([]RuntimeField, 0, len(r.entries))
	for _, name := range r.Names() {
		if e := r.entries[name]; !e.removed {
			fields = append(fields, e.field)
		}
	}
	return fields
}

// Removals returns the names marked for removal, sorted.
func (r RuntimeFields) Removals() []string {
	var names []string
	for _, name := range r.Names() {
		if r.entries[name].removed {
			names = append(names, name)
		}
	}
	return names
}

// Apply merges the entries into existing and returns the result; existing
// is left untouched. Definitions replace fields of the same name and
// removals delete them.
func (r RuntimeFields) Apply(existing map[string]RuntimeField) map[string]RuntimeField {
	merged := make(map[string]RuntimeField, len(existing)+len(r.entries))
	for name, field := range existing {
		merged[name] = field
	}
	for name, e := range r.entries {
		if e.removed {
			delete(merged, name)
			continue
		}
		merged[name] = e.field
	}
	return merged
}

// ParseRuntimeFields parses a runtime section. parent is the name of the
// enclosing object field, empty at the top level; parentScript is that
// field's script. With supportsRemoval a null declaration yields a removal
// entry, otherwise it is an error. node is not modified.
func ParseRuntimeFields(node map[string]interface{}, ctx *ParserContext, parent string, parentScript script.FactoryProvider, supportsRemoval bool) (RuntimeFields, error) {
	entries := make(map[string]Entry, len(node))
	for _, fieldName := range sortedKeys(node) {
		switch value := node[fieldName].(type) {
		case nil:
			if !supportsRemoval {
				return RuntimeFields{}, &ParseError{Field: fieldName, Err: ErrRemovalUnsupported}
			}
			entries[fieldName] = Entry{removed: true}
		case map[string]interface{}:
			working := make(map[string]interface{}, len(value))
			for k, v := range value {
				working[k] = v
			}
			typeNode := working[TypeParam]
			if typeNode == nil {
				return RuntimeFields{}, &ParseError{Field: fieldName, Err: ErrMissingType}
			}
			typeName := fmt.Sprint(typeNode)
			if scriptNode := working["script"]; scriptNode != nil && parent != "" {
				return RuntimeFields{}, &ParseError{
					Field:  fieldName,
					Type:   typeName,
					Err:    ErrScriptOnSubField,
					Detail: fmt.Sprintf("object field [%s]", parent),
				}
			}
			parser, ok := ctx.RuntimeFieldParser(typeName)
			if !ok {
				return RuntimeFields{}, &ParseError{Field: fieldName, Type: typeName, Err: ErrUnknownType}
			}
			field, err := parser.Parse(fieldName, ctx, working, parent, parentScript)
			if err != nil {
				return RuntimeFields{}, err
			}
			delete(working, TypeParam)
			if remaining := sortedKeys(working); len(remaining) > 0 {
				return RuntimeFields{}, &ParseError{Field: fieldName, Type: typeName, Param: remaining[0], Err: ErrUnknownParameter}
			}
			entries[fieldName] = Entry{field: field}
		default:
			return RuntimeFields{}, &ParseError{
				Field:  fieldName,
				Err:    ErrNotAnObject,
				Detail: fmt.Sprintf("got %T", value),
			}
		}
	}
	return RuntimeFields{entries: entries}, nil
}

// CollectFieldTypes gathers the field types backing the given runtime
// fields by full name. Two runtime fields exposing the same name conflict.
func CollectFieldTypes(fields []RuntimeField) (map[string]FieldType, error) {
	collected := make(map[string]FieldType)
	for _, field := range fields {
		for _, ft := range field.FieldTypes() {
			if _, exists := collected[ft.Name()]; exists {
				return nil, &ConflictError{Field: ft.Name()}
			}
			collected[ft.Name()] = ft
		}
	}
	return collected, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
