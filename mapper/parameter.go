package mapper

import (
	"fmt"
	"sort"

	"github.com/effectus/fieldmap/script"
)

// Meta limits.
const (
	maxMetaEntries     = 5
	maxMetaKeyLength   = 20
	maxMetaValueLength = 50
)

// Decoder decodes one named parameter of a field declaration.
type Decoder interface {
	ParamName() string
	AcceptsNull() bool
	// Decode turns the raw value into the parameter's value. A nil raw value
	// is only passed when AcceptsNull is true and yields the default.
	Decode(field string, ctx *ParserContext, raw interface{}) (interface{}, error)
}

// Params is the frozen result of decoding a declaration.
type Params struct {
	values map[string]interface{}
}

// NewParams freezes values decoded outside of a RuntimeFieldParser.
func NewParams(values map[string]interface{}) Params {
	copied := make(map[string]interface{}, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Params{values: copied}
}

// Has reports whether the declaration set name explicitly.
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Names returns the explicitly set parameter names.
func (p Params) Names() []string {
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parameter is a typed Decoder. Values are immutable; the option methods
// return modified copies.
type Parameter[T any] struct {
	name       string
	nullable   bool
	def        T
	decode     func(field string, ctx *ParserContext, raw interface{}) (T, error)
	validators []func(T) error
}

// NewParameter creates a non-nullable parameter.
func NewParameter[T any](name string, def T, decode func(field string, ctx *ParserContext, raw interface{}) (T, error)) Parameter[T] {
	return Parameter[T]{name: name, def: def, decode: decode}
}

// Nullable allows an explicit null, which decodes to the default.
func (p Parameter[T]) Nullable() Parameter[T] {
	p.nullable = true
	return p
}

// WithValidator adds a check run on every decoded value.
func (p Parameter[T]) WithValidator(fn func(T) error) Parameter[T] {
	p.validators = append(append([]func(T) error(nil), p.validators...), fn)
	return p
}

func (p Parameter[T]) ParamName() string {
	return p.name
}

func (p Parameter[T]) AcceptsNull() bool {
	return p.nullable
}

// Default returns the value used when the parameter is absent.
func (p Parameter[T]) Default() T {
	return p.def
}

func (p Parameter[T]) Decode(field string, ctx *ParserContext, raw interface{}) (interface{}, error) {
	if raw == nil {
		if !p.nullable {
			return nil, ErrNullValue
		}
		return p.def, nil
	}
	value, err := p.decode(field, ctx, raw)
	if err != nil {
		return nil, err
	}
	for _, validate := range p.validators {
		if err := validate(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// Get returns the decoded value, or the default when the parameter was not set.
func (p Parameter[T]) Get(params Params) T {
	raw, ok := params.values[p.name]
	if !ok {
		return p.def
	}
	value, ok := raw.(T)
	if !ok {
		return p.def
	}
	return value
}

// StringParam decodes a string value.
func StringParam(name, def string) Parameter[string] {
	return NewParameter(name, def, func(field string, ctx *ParserContext, raw interface{}) (string, error) {
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("expected a string but got %T", raw)
		}
		return s, nil
	})
}

// BoolParam decodes a boolean value; "true" and "false" strings are accepted.
func BoolParam(name string, def bool) Parameter[bool] {
	return NewParameter(name, def, func(field string, ctx *ParserContext, raw interface{}) (bool, error) {
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch v {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return false, fmt.Errorf("expected a boolean but got [%v]", raw)
	})
}

// EnumParam decodes a string restricted to values; the first one is the default.
func EnumParam(name string, values ...string) Parameter[string] {
	def := ""
	if len(values) > 0 {
		def = values[0]
	}
	return StringParam(name, def).WithValidator(func(v string) error {
		for _, allowed := range values {
			if v == allowed {
				return nil
			}
		}
		return fmt.Errorf("unknown value [%s], expected one of %v", v, values)
	})
}

// StringListParam decodes a string or a list of strings.
func StringListParam(name string) Parameter[[]string] {
	return NewParameter[[]string](name, nil, func(field string, ctx *ParserContext, raw interface{}) ([]string, error) {
		return decodeStringList(raw)
	})
}

func decodeStringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings but found %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or a list of strings but got %T", raw)
	}
}

// ObjectParam decodes a nested object, copied so that later mutation by the
// caller does not leak into the declaration.
func ObjectParam(name string) Parameter[map[string]interface{}] {
	return NewParameter[map[string]interface{}](name, nil, func(field string, ctx *ParserContext, raw interface{}) (map[string]interface{}, error) {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected an object but got %T", raw)
		}
		out := make(map[string]interface{}, len(obj))
		for k, v := range obj {
			out[k] = v
		}
		return out, nil
	})
}

// ScriptParam decodes a script declaration. It is nullable.
func ScriptParam(name string) Parameter[*script.Script] {
	return NewParameter[*script.Script](name, nil, func(field string, ctx *ParserContext, raw interface{}) (*script.Script, error) {
		s, err := script.Parse(raw)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}).Nullable()
}

// MetaParamName is the reserved parameter every runtime field accepts.
const MetaParamName = "meta"

// MetaParam decodes the opaque string to string meta map.
func MetaParam() Parameter[map[string]string] {
	return NewParameter[map[string]string](MetaParamName, nil, func(field string, ctx *ParserContext, raw interface{}) (map[string]string, error) {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("[meta] must be an object but got %T", raw)
		}
		if len(obj) > maxMetaEntries {
			return nil, fmt.Errorf("[meta] can't have more than %d entries, but got %d", maxMetaEntries, len(obj))
		}
		meta := make(map[string]string, len(obj))
		for key, value := range obj {
			if len(key) > maxMetaKeyLength {
				return nil, fmt.Errorf("[meta] keys can't be longer than %d chars, but got [%s]", maxMetaKeyLength, key)
			}
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("[meta] values can only be strings, but got %T for field [%s]", value, key)
			}
			if len(s) > maxMetaValueLength {
				return nil, fmt.Errorf("[meta] values can't be longer than %d chars, but got [%s] for field [%s]", maxMetaValueLength, s, key)
			}
			meta[key] = s
		}
		return meta, nil
	})
}
