package script

import (
	"fmt"
	"strings"
	"sync"

	"github.com/effectus/fieldmap/source"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultLang is the only script language understood by the Compiler.
const DefaultLang = "expr"

// Script is a declared script: its source text plus static parameters.
type Script struct {
	Source string                 `json:"source" yaml:"source"`
	Lang   string                 `json:"lang,omitempty" yaml:"lang,omitempty"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// Parse decodes a script declaration. Both the short string form and the
// object form ({source, lang, params}) are accepted.
func Parse(raw interface{}) (Script, error) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return Script{}, fmt.Errorf("script source cannot be empty")
		}
		return Script{Source: v, Lang: DefaultLang}, nil
	case map[string]interface{}:
		s := Script{Lang: DefaultLang}
		for key, value := range v {
			switch key {
			case "source":
				src, ok := value.(string)
				if !ok {
					return Script{}, fmt.Errorf("script source must be a string, got %T", value)
				}
				s.Source = src
			case "lang":
				lang, ok := value.(string)
				if !ok {
					return Script{}, fmt.Errorf("script lang must be a string, got %T", value)
				}
				s.Lang = lang
			case "params":
				params, ok := value.(map[string]interface{})
				if !ok {
					return Script{}, fmt.Errorf("script params must be an object, got %T", value)
				}
				s.Params = params
			default:
				return Script{}, fmt.Errorf("unknown script key [%s]", key)
			}
		}
		if strings.TrimSpace(s.Source) == "" {
			return Script{}, fmt.Errorf("script source cannot be empty")
		}
		return s, nil
	default:
		return Script{}, fmt.Errorf("script must be a string or an object, got %T", raw)
	}
}

// SearchLookup gives a running script access to other fields of the
// document being evaluated.
type SearchLookup interface {
	FieldValues(field string, src source.Source) ([]interface{}, error)
}

// Leaf evaluates a script against one document.
type Leaf interface {
	Execute() ([]interface{}, error)
}

// LeafFactory binds a compiled script to a document.
type LeafFactory func(src source.Source) Leaf

// FactoryProvider produces a LeafFactory for a search environment. Object
// runtime fields hand theirs down to their sub-fields so that the parent
// script is the only one compiled.
type FactoryProvider func(lookup SearchLookup) LeafFactory

// Compiler compiles scripts into reusable programs.
type Compiler struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewCompiler creates a compiler with an empty program cache.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*vm.Program)}
}

// Compile type-checks the script and returns a program bound to its params.
func (c *Compiler) Compile(s Script) (*Program, error) {
	lang := s.Lang
	if lang == "" {
		lang = DefaultLang
	}
	if lang != DefaultLang {
		return nil, fmt.Errorf("unsupported script lang [%s]", lang)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		c.cache = make(map[string]*vm.Program)
	}
	program, ok := c.cache[s.Source]
	if !ok {
		compiled, err := expr.Compile(s.Source, expr.Env(compileEnv()))
		if err != nil {
			return nil, fmt.Errorf("compiling script: %w", err)
		}
		c.cache[s.Source] = compiled
		program = compiled
	}
	return &Program{script: s, program: program}, nil
}

// Program is a compiled script.
type Program struct {
	script  Script
	program *vm.Program
}

// Script returns the declaration the program was compiled from.
func (p *Program) Script() Script {
	return p.script
}

// Provider turns the program into a FactoryProvider.
func (p *Program) Provider() FactoryProvider {
	return func(lookup SearchLookup) LeafFactory {
		return func(src source.Source) Leaf {
			return &programLeaf{program: p, lookup: lookup, src: src}
		}
	}
}

// Run evaluates the program against a document. A list result emits each
// element, a nil result emits nothing.
func (p *Program) Run(lookup SearchLookup, src source.Source) ([]interface{}, error) {
	if src == nil {
		src = source.Empty
	}
	doc, err := src.Map()
	if err != nil {
		return nil, fmt.Errorf("loading source: %w", err)
	}
	params := p.script.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	env := map[string]interface{}{
		"source": doc,
		"params": params,
		"doc": func(field string) ([]interface{}, error) {
			if lookup == nil {
				return src.Extract(field)
			}
			return lookup.FieldValues(field, src)
		},
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return nil, fmt.Errorf("running script: %w", err)
	}
	return emit(out), nil
}

type programLeaf struct {
	program *Program
	lookup  SearchLookup
	src     source.Source
}

func (l *programLeaf) Execute() ([]interface{}, error) {
	return l.program.Run(l.lookup, l.src)
}

func emit(out interface{}) []interface{} {
	switch v := out.(type) {
	case nil:
		return nil
	case []interface{}:
		values := make([]interface{}, 0, len(v))
		for _, item := range v {
			if item != nil {
				values = append(values, item)
			}
		}
		return values
	case []string:
		values := make([]interface{}, len(v))
		for i, item := range v {
			values[i] = item
		}
		return values
	default:
		return []interface{}{v}
	}
}

func compileEnv() map[string]interface{} {
	return map[string]interface{}{
		"source": map[string]interface{}{},
		"params": map[string]interface{}{},
		"doc": func(field string) ([]interface{}, error) {
			return nil, nil
		},
	}
}
