package mapping

import (
	"fmt"
	"sort"

	"github.com/effectus/fieldmap/mapper"
	"gopkg.in/yaml.v3"
)

// Top-level sections of a mapping document.
const (
	PropertiesKey = "properties"
	RuntimeKey    = "runtime"
)

// Parameter names of concrete fields.
const (
	typeParamName     = "type"
	pathParamName     = "path"
	copyToParamName   = "copy_to"
	fieldsParamName   = "fields"
	analyzerParamName = "analyzer"
)

var (
	copyToParam   = mapper.StringListParam(copyToParamName)
	fieldsParam   = mapper.ObjectParam(fieldsParamName)
	analyzerParam = mapper.StringParam(analyzerParamName, DefaultAnalyzer)
	pathParam     = mapper.StringParam(pathParamName, "")
	metaParam     = mapper.MetaParam()
)

// Document is a decoded mapping: concrete fields, aliases and the raw
// runtime section, which is parsed later against a parser registry.
type Document struct {
	Fields  []mapper.Field
	Aliases []mapper.Alias
	Runtime map[string]interface{}
}

// ParseDocument decodes a YAML or JSON mapping document.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	return DecodeDocument(raw)
}

// DecodeDocument decodes an already unmarshalled mapping document.
func DecodeDocument(raw map[string]interface{}) (*Document, error) {
	p := &documentParser{names: make(map[string]struct{})}
	doc := &Document{}
	for _, key := range sortedKeys(raw) {
		switch key {
		case PropertiesKey:
			props, err := asObject(PropertiesKey, raw[key])
			if err != nil {
				return nil, err
			}
			if err := p.parseProperties(props, ""); err != nil {
				return nil, err
			}
		case RuntimeKey:
			if raw[key] == nil {
				continue
			}
			runtime, err := asObject(RuntimeKey, raw[key])
			if err != nil {
				return nil, err
			}
			doc.Runtime = runtime
		default:
			return nil, fmt.Errorf("%w: unknown section [%s]", mapper.ErrInvalidMapping, key)
		}
	}
	doc.Fields = p.fields
	doc.Aliases = p.aliases
	return doc, nil
}

type documentParser struct {
	fields  []mapper.Field
	aliases []mapper.Alias
	names   map[string]struct{}
}

func (p *documentParser) register(name, typeName string) error {
	if _, exists := p.names[name]; exists {
		return &mapper.ParseError{Field: name, Type: typeName, Err: mapper.ErrInvalidMapping, Detail: "field is defined more than once"}
	}
	p.names[name] = struct{}{}
	return nil
}

func (p *documentParser) parseProperties(props map[string]interface{}, parent string) error {
	for _, key := range sortedKeys(props) {
		name := mapper.FullName(parent, key)
		node, ok := props[key].(map[string]interface{})
		if !ok {
			return &mapper.ParseError{Field: name, Err: mapper.ErrNotAnObject, Detail: fmt.Sprintf("got %T", props[key])}
		}
		if err := p.parseField(name, node); err != nil {
			return err
		}
	}
	return nil
}

func (p *documentParser) parseField(name string, node map[string]interface{}) error {
	typeName := ObjectType
	if raw, ok := node[typeParamName]; ok {
		s, ok := raw.(string)
		if !ok {
			return &mapper.ParseError{Field: name, Param: typeParamName, Err: mapper.ErrInvalidValue, Detail: fmt.Sprintf("got %T", raw)}
		}
		typeName = s
	}

	switch {
	case typeName == ObjectType:
		return p.parseObject(name, node)
	case typeName == AliasType:
		return p.parseAlias(name, node)
	case isLeafType(typeName):
		return p.parseLeaf(name, typeName, node)
	default:
		return &mapper.ParseError{Field: name, Type: typeName, Err: mapper.ErrUnknownType}
	}
}

func (p *documentParser) parseObject(name string, node map[string]interface{}) error {
	for _, key := range sortedKeys(node) {
		if key != typeParamName && key != PropertiesKey {
			return &mapper.ParseError{Field: name, Type: ObjectType, Param: key, Err: mapper.ErrUnknownParameter}
		}
	}
	raw, ok := node[PropertiesKey]
	if !ok {
		return nil
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return &mapper.ParseError{Field: name, Type: ObjectType, Param: PropertiesKey, Err: mapper.ErrInvalidValue, Detail: fmt.Sprintf("expected an object but got %T", raw)}
	}
	return p.parseProperties(props, name)
}

func (p *documentParser) parseAlias(name string, node map[string]interface{}) error {
	params, err := decodeParams(name, AliasType, node, pathParam)
	if err != nil {
		return err
	}
	path := pathParam.Get(params)
	if path == "" {
		return &mapper.ParseError{Field: name, Type: AliasType, Param: pathParamName, Err: mapper.ErrInvalidValue, Detail: "path is required"}
	}
	if err := p.register(name, AliasType); err != nil {
		return err
	}
	p.aliases = append(p.aliases, mapper.Alias{Name: name, Path: path})
	return nil
}

func (p *documentParser) parseLeaf(name, typeName string, node map[string]interface{}) error {
	decoders := []mapper.Decoder{metaParam, copyToParam, fieldsParam}
	if typeName == TextType {
		decoders = append(decoders, analyzerParam)
	}
	params, err := decodeParams(name, typeName, node, decoders...)
	if err != nil {
		return err
	}
	if err := p.register(name, typeName); err != nil {
		return err
	}
	ft := newFieldType(name, typeName, metaParam.Get(params), analyzerParam.Get(params), "")
	p.fields = append(p.fields, mapper.Field{Type: ft, CopyTo: copyToParam.Get(params)})

	multiFields := fieldsParam.Get(params)
	for _, key := range sortedKeys(multiFields) {
		if err := p.parseMultiField(name, key, multiFields[key]); err != nil {
			return err
		}
	}
	return nil
}

// parseMultiField indexes the parent's value a second way under parent.key.
// Multi-fields cannot copy or declare multi-fields of their own.
func (p *documentParser) parseMultiField(parent, key string, raw interface{}) error {
	name := mapper.FullName(parent, key)
	node, ok := raw.(map[string]interface{})
	if !ok {
		return &mapper.ParseError{Field: name, Err: mapper.ErrNotAnObject, Detail: fmt.Sprintf("got %T", raw)}
	}
	typeName, _ := node[typeParamName].(string)
	if typeName == "" {
		return &mapper.ParseError{Field: name, Err: mapper.ErrMissingType}
	}
	if !isLeafType(typeName) || typeName == FlattenedType {
		return &mapper.ParseError{Field: name, Type: typeName, Err: mapper.ErrUnknownType, Detail: "not allowed as a multi-field"}
	}
	decoders := []mapper.Decoder{metaParam}
	if typeName == TextType {
		decoders = append(decoders, analyzerParam)
	}
	params, err := decodeParams(name, typeName, node, decoders...)
	if err != nil {
		return err
	}
	if err := p.register(name, typeName); err != nil {
		return err
	}
	ft := newFieldType(name, typeName, metaParam.Get(params), analyzerParam.Get(params), parent)
	p.fields = append(p.fields, mapper.Field{Type: ft})
	return nil
}

// decodeParams decodes every key of node except the type with the given
// decoders. Keys without a decoder are rejected.
func decodeParams(name, typeName string, node map[string]interface{}, decoders ...mapper.Decoder) (mapper.Params, error) {
	byName := make(map[string]mapper.Decoder, len(decoders))
	for _, d := range decoders {
		byName[d.ParamName()] = d
	}
	raw := make(map[string]interface{}, len(node))
	for _, key := range sortedKeys(node) {
		if key == typeParamName {
			continue
		}
		decoder, ok := byName[key]
		if !ok {
			return mapper.Params{}, &mapper.ParseError{Field: name, Type: typeName, Param: key, Err: mapper.ErrUnknownParameter}
		}
		if node[key] == nil && !decoder.AcceptsNull() {
			return mapper.Params{}, &mapper.ParseError{Field: name, Type: typeName, Param: key, Err: mapper.ErrNullValue}
		}
		value, err := decoder.Decode(name, nil, node[key])
		if err != nil {
			return mapper.Params{}, &mapper.ParseError{Field: name, Type: typeName, Param: key, Err: mapper.ErrInvalidValue, Detail: err.Error()}
		}
		raw[key] = value
	}
	return mapper.NewParams(raw), nil
}

func asObject(section string, raw interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: [%s] must be an object but got %T", mapper.ErrInvalidMapping, section, raw)
	}
	return obj, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
