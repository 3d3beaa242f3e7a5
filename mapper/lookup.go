package mapper

import (
	"slices"
	"sort"
	"strings"

	"github.com/effectus/fieldmap/source"
	"github.com/tidwall/match"
)

type entryKind uint8

const (
	entryAlias entryKind = iota + 1
	entryRuntime
)

// indirection is a name that resolves through something else: an alias
// path or a runtime field.
type indirection struct {
	kind    entryKind
	path    string
	runtime RuntimeField
}

// Lookup resolves field names to field types. It is immutable once built and
// safe for concurrent use; mapping changes build a new Lookup.
type Lookup struct {
	fullNameToFieldType map[string]FieldType
	dynamicFieldTypes   map[string]DynamicFieldType
	indirections        map[string]indirection

	// runtimeNames holds every name a runtime field backs, sub-fields of
	// composite fields included, so that patterns can match them.
	runtimeNames map[string]struct{}

	// fieldToCopiedFields maps a copy_to target to every field copied into
	// it, the target itself included.
	fieldToCopiedFields map[string][]string

	maxParentPathDots int
}

// NewLookup indexes concrete fields, aliases and runtime fields. Concrete
// names are assumed unique. Runtime fields shadow aliases of the same name.
func NewLookup(fields []Field, aliases []Alias, runtimeFields []RuntimeField) (*Lookup, error) {
	runtimeTypes, err := CollectFieldTypes(runtimeFields)
	if err != nil {
		return nil, err
	}

	l := &Lookup{
		fullNameToFieldType: make(map[string]FieldType, len(fields)),
		dynamicFieldTypes:   make(map[string]DynamicFieldType),
		indirections:        make(map[string]indirection, len(aliases)+len(runtimeFields)),
		fieldToCopiedFields: make(map[string][]string),
		runtimeNames:        make(map[string]struct{}, len(runtimeTypes)),
	}
	for name := range runtimeTypes {
		l.runtimeNames[name] = struct{}{}
	}

	copied := make(map[string]map[string]struct{})
	for _, field := range fields {
		if field.Type == nil {
			continue
		}
		name := field.Type.Name()
		l.fullNameToFieldType[name] = field.Type
		if dft, ok := field.Type.(DynamicFieldType); ok {
			l.dynamicFieldTypes[name] = dft
		}
		for _, target := range field.CopyTo {
			sources, ok := copied[target]
			if !ok {
				sources = map[string]struct{}{target: {}}
				copied[target] = sources
			}
			sources[name] = struct{}{}
		}
	}
	for target, sources := range copied {
		names := make([]string, 0, len(sources))
		for name := range sources {
			names = append(names, name)
		}
		sort.Strings(names)
		l.fieldToCopiedFields[target] = names
	}

	for name := range l.dynamicFieldTypes {
		l.maxParentPathDots = max(l.maxParentPathDots, strings.Count(name, "."))
	}

	for _, alias := range aliases {
		l.indirections[alias.Name] = indirection{kind: entryAlias, path: alias.Path}
	}
	for _, rf := range runtimeFields {
		l.indirections[rf.Name()] = indirection{kind: entryRuntime, runtime: rf}
	}
	return l, nil
}

// MaxParentPathDots is the deepest dynamic container name, in dots. It
// bounds how many prefixes a dynamic lookup tries.
func (l *Lookup) MaxParentPathDots() int {
	return l.maxParentPathDots
}

// Get returns the field type for name, or nil if there is none. A
// *CycleError is returned when resolving name loops back on itself.
func (l *Lookup) Get(name string) (FieldType, error) {
	return newGuardedLookup(l).get(name)
}

// FieldTypes returns the concrete field types, sorted by name.
func (l *Lookup) FieldTypes() []FieldType {
	names := make([]string, 0, len(l.fullNameToFieldType))
	for name := range l.fullNameToFieldType {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]FieldType, len(names))
	for i, name := range names {
		out[i] = l.fullNameToFieldType[name]
	}
	return out
}

// Names returns every concrete, alias and runtime field name, sorted.
// Sub-fields of composite runtime fields are included.
func (l *Lookup) Names() []string {
	return l.SimpleMatchToFullName("*")
}

// SimpleMatchToFullName returns the names matching pattern, where '*'
// matches any run of characters and '?' exactly one. A pattern without
// wildcards is returned as is, whether or not such a field exists.
func (l *Lookup) SimpleMatchToFullName(pattern string) []string {
	if !match.IsPattern(pattern) {
		return []string{pattern}
	}
	seen := make(map[string]struct{})
	for name := range l.indirections {
		if match.Match(name, pattern) {
			seen[name] = struct{}{}
		}
	}
	for name := range l.fullNameToFieldType {
		if match.Match(name, pattern) {
			seen[name] = struct{}{}
		}
	}
	for name := range l.runtimeNames {
		if match.Match(name, pattern) {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourcePaths returns where the values of a concrete field live in the
// stored source. A multi-field reads from its parent field and a copy_to
// target also reads from every field copied into it. Aliases must be
// resolved before calling.
func (l *Lookup) SourcePaths(field string) ([]string, error) {
	if len(l.fullNameToFieldType) == 0 {
		return []string{}, nil
	}

	ft, err := newGuardedLookup(l).dynamic(field)
	if err != nil {
		return nil, err
	}
	if ft != nil {
		return []string{field}, nil
	}

	resolved := field
	if idx := strings.LastIndexByte(field, '.'); idx > 0 {
		parent := field[:idx]
		if _, ok := l.fullNameToFieldType[parent]; ok {
			resolved = parent
		}
	}

	if sources, ok := l.fieldToCopiedFields[resolved]; ok {
		return slices.Clone(sources), nil
	}
	return []string{resolved}, nil
}

// Values returns the values of field in src. Computed field types produce
// their own values; every other field is read from its source paths.
func (l *Lookup) Values(field string, src source.Source) ([]interface{}, error) {
	return (&fetchLookup{lookup: l}).FieldValues(field, src)
}

// guardedLookup resolves a single top-level Get, remembering every name it
// went through so that loops surface as a *CycleError.
type guardedLookup struct {
	lookup *Lookup
	path   []string
	seen   map[string]struct{}
}

func newGuardedLookup(l *Lookup) *guardedLookup {
	return &guardedLookup{lookup: l, seen: make(map[string]struct{})}
}

func (g *guardedLookup) get(field string) (FieldType, error) {
	if _, ok := g.seen[field]; ok {
		chain := append(slices.Clone(g.path), field)
		return nil, &CycleError{Chain: chain}
	}
	g.seen[field] = struct{}{}
	g.path = append(g.path, field)

	if entry, ok := g.lookup.indirections[field]; ok {
		return g.resolve(entry)
	}
	if ft, ok := g.lookup.fullNameToFieldType[field]; ok {
		return ft, nil
	}
	// Fields like 'path_to_container.path_to_key' belong to a dynamic
	// container declared at 'path_to_container'.
	return g.dynamic(field)
}

func (g *guardedLookup) resolve(entry indirection) (FieldType, error) {
	switch entry.kind {
	case entryAlias:
		return g.get(entry.path)
	case entryRuntime:
		return entry.runtime.Resolve(g.get)
	default:
		return nil, nil
	}
}

// dynamic tries every dotted prefix of field, shortest first, as a dynamic
// container and hands it the rest of the name as the key.
func (g *guardedLookup) dynamic(field string) (FieldType, error) {
	l := g.lookup
	dotIndex := -1
	for depth := 0; depth <= l.maxParentPathDots; depth++ {
		next := strings.IndexByte(field[dotIndex+1:], '.')
		if next < 0 {
			return nil, nil
		}
		dotIndex += next + 1

		parent := field[:dotIndex]
		key := field[dotIndex+1:]
		if dft, ok := l.dynamicFieldTypes[parent]; ok {
			return dft.ChildFieldType(key), nil
		}
		if entry, ok := l.indirections[parent]; ok {
			// The candidate shows up in the chain of a loop through it.
			n := len(g.path)
			g.path = append(g.path, parent)
			ft, err := g.resolve(entry)
			if err != nil {
				return nil, err
			}
			g.path = g.path[:n]
			if dft, ok := ft.(DynamicFieldType); ok {
				return dft.ChildFieldType(key), nil
			}
		}
	}
	return nil, nil
}
