package runtimefield

import (
	"errors"
	"fmt"
	"time"

	"github.com/effectus/fieldmap/mapper"
	"github.com/effectus/fieldmap/script"
)

// Runtime field types.
const (
	KeywordType   = "keyword"
	LongType      = "long"
	DoubleType    = "double"
	BooleanType   = "boolean"
	DateType      = "date"
	IPType        = "ip"
	CompositeType = "composite"
	AliasType     = "alias"
)

// Parameter names.
const (
	ScriptParamName        = "script"
	OnScriptErrorParamName = "on_script_error"
	FormatParamName        = "format"
	FieldsParamName        = "fields"
	PathParamName          = "path"
)

// DefaultDateFormat is used by date fields declaring no format.
const DefaultDateFormat = time.RFC3339

var (
	scriptParam        = mapper.ScriptParam(ScriptParamName)
	onScriptErrorParam = mapper.EnumParam(OnScriptErrorParamName, OnScriptErrorFail, OnScriptErrorContinue)
	formatParam        = mapper.StringParam(FormatParamName, DefaultDateFormat).WithValidator(func(v string) error {
		if v == "" {
			return errors.New("format cannot be empty")
		}
		return nil
	})
	fieldsParam = mapper.ObjectParam(FieldsParamName)
	pathParam   = mapper.StringParam(PathParamName, "")
)

// DefaultRegistry returns a registry with every built-in runtime field type.
func DefaultRegistry() mapper.MapRegistry {
	return mapper.MapRegistry{
		KeywordType: leafParser(fixed(toKeyword)),
		LongType:    leafParser(fixed(toLong)),
		DoubleType:  leafParser(fixed(toDouble)),
		BooleanType: leafParser(fixed(toBoolean)),
		IPType:      leafParser(fixed(toIP)),
		DateType: leafParser(func(params mapper.Params) coerceFunc {
			return dateCoercer(formatParam.Get(params))
		}, formatParam),
		CompositeType: compositeParser(),
		AliasType:     aliasParser(),
	}
}

func fixed(fn coerceFunc) func(mapper.Params) coerceFunc {
	return func(mapper.Params) coerceFunc { return fn }
}

func leafParser(coercer func(mapper.Params) coerceFunc, extra ...mapper.Decoder) *mapper.RuntimeFieldParser {
	return &mapper.RuntimeFieldParser{
		Parameters: func() []mapper.Decoder {
			return append([]mapper.Decoder{scriptParam, onScriptErrorParam}, extra...)
		},
		Validate: func(name string, params mapper.Params) error {
			if params.Has(OnScriptErrorParamName) && scriptParam.Get(params) == nil {
				return fmt.Errorf("cannot set [%s] without [%s]", OnScriptErrorParamName, ScriptParamName)
			}
			return nil
		},
		Create: func(c mapper.CreateContext) (mapper.RuntimeField, error) {
			declared := scriptParam.Get(c.Params)
			var provider script.FactoryProvider
			switch {
			case c.ParentScript != nil:
				provider = subFieldProvider(c.ParentScript, c.Name)
			case declared != nil:
				program, err := c.Context.Scripts.Compile(*declared)
				if err != nil {
					return nil, err
				}
				provider = program.Provider()
			}
			ft := &ScriptFieldType{
				BaseFieldType: mapper.NewBaseFieldType(c.FullName(), c.Type, c.Meta()),
				provider:      provider,
				coerce:        coercer(c.Params),
				onScriptError: onScriptErrorParam.Get(c.Params),
			}
			return &LeafField{fieldType: ft, script: declared}, nil
		},
	}
}

func compositeParser() *mapper.RuntimeFieldParser {
	return &mapper.RuntimeFieldParser{
		Parameters: func() []mapper.Decoder {
			return []mapper.Decoder{scriptParam, onScriptErrorParam, fieldsParam}
		},
		Validate: func(name string, params mapper.Params) error {
			if scriptParam.Get(params) == nil {
				return fmt.Errorf("composite runtime field [%s] must declare a [%s]", name, ScriptParamName)
			}
			if len(fieldsParam.Get(params)) == 0 {
				return fmt.Errorf("composite runtime field [%s] must declare its [%s]", name, FieldsParamName)
			}
			return nil
		},
		Create: func(c mapper.CreateContext) (mapper.RuntimeField, error) {
			declared := scriptParam.Get(c.Params)
			program, err := c.Context.Scripts.Compile(*declared)
			if err != nil {
				return nil, err
			}
			provider := program.Provider()
			subFields, err := mapper.ParseRuntimeFields(fieldsParam.Get(c.Params), c.Context, c.FullName(), provider, false)
			if err != nil {
				return nil, err
			}

			onScriptError := onScriptErrorParam.Get(c.Params)
			children := make(map[string]mapper.FieldType, subFields.Len())
			for _, key := range subFields.Names() {
				entry, _ := subFields.Get(key)
				types := entry.Field().FieldTypes()
				if len(types) != 1 {
					return nil, fmt.Errorf("sub-field [%s] of type [%s] is not supported in a composite", key, entry.Field().TypeName())
				}
				if leaf, ok := types[0].(*ScriptFieldType); ok {
					leaf.onScriptError = onScriptError
				}
				children[key] = types[0]
			}

			return &CompositeField{
				fieldType: &CompositeFieldType{
					BaseFieldType: mapper.NewBaseFieldType(c.FullName(), CompositeType, c.Meta()),
					provider:      provider,
					children:      children,
				},
				script: *declared,
			}, nil
		},
	}
}

func aliasParser() *mapper.RuntimeFieldParser {
	return &mapper.RuntimeFieldParser{
		Parameters: func() []mapper.Decoder {
			return []mapper.Decoder{pathParam}
		},
		Validate: func(name string, params mapper.Params) error {
			if pathParam.Get(params) == "" {
				return fmt.Errorf("[%s] is required", PathParamName)
			}
			return nil
		},
		Create: func(c mapper.CreateContext) (mapper.RuntimeField, error) {
			path := pathParam.Get(c.Params)
			if path == c.FullName() {
				return nil, fmt.Errorf("alias [%s] cannot point to itself", path)
			}
			return &AliasField{name: c.FullName(), path: path, meta: c.Meta()}, nil
		},
	}
}
