package mapping

import (
	"fmt"
	"time"

	"github.com/effectus/fieldmap/mapper"
	"github.com/google/uuid"
)

// Snapshot is one immutable version of a mapping together with the lookup
// built from it.
type Snapshot struct {
	ID        uuid.UUID
	Version   int64
	CreatedAt time.Time

	fields  []mapper.Field
	aliases []mapper.Alias
	runtime map[string]mapper.RuntimeField
	lookup  *mapper.Lookup
}

// Lookup returns the resolver of this snapshot.
func (s *Snapshot) Lookup() *mapper.Lookup {
	return s.lookup
}

// Fields returns the concrete fields.
func (s *Snapshot) Fields() []mapper.Field {
	return append([]mapper.Field(nil), s.fields...)
}

// Aliases returns the field aliases.
func (s *Snapshot) Aliases() []mapper.Alias {
	return append([]mapper.Alias(nil), s.aliases...)
}

// RuntimeField returns the top-level runtime field called name.
func (s *Snapshot) RuntimeField(name string) (mapper.RuntimeField, bool) {
	rf, ok := s.runtime[name]
	return rf, ok
}

// RuntimeNames returns the names of the top-level runtime fields, sorted.
func (s *Snapshot) RuntimeNames() []string {
	return sortedKeys(s.runtime)
}

// Stats counts the declarations in the snapshot.
func (s *Snapshot) Stats() Stats {
	return Stats{Fields: len(s.fields), Aliases: len(s.aliases), Runtime: len(s.runtime)}
}

// Stats counts the declarations of a snapshot.
type Stats struct {
	Fields  int
	Aliases int
	Runtime int
}

func buildSnapshot(version int64, fields []mapper.Field, aliases []mapper.Alias, runtime map[string]mapper.RuntimeField) (*Snapshot, error) {
	if err := validate(fields, aliases); err != nil {
		return nil, err
	}
	runtimeFields := make([]mapper.RuntimeField, 0, len(runtime))
	for _, name := range sortedKeys(runtime) {
		runtimeFields = append(runtimeFields, runtime[name])
	}
	lookup, err := mapper.NewLookup(fields, aliases, runtimeFields)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:        uuid.New(),
		Version:   version,
		CreatedAt: time.Now().UTC(),
		fields:    fields,
		aliases:   aliases,
		runtime:   runtime,
		lookup:    lookup,
	}, nil
}

// validate checks alias paths and copy_to targets against the whole mapping.
func validate(fields []mapper.Field, aliases []mapper.Alias) error {
	concrete := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		concrete[f.Name()] = struct{}{}
	}
	aliasNames := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		if _, clash := concrete[a.Name]; clash {
			return &mapper.ParseError{Field: a.Name, Type: AliasType, Err: mapper.ErrInvalidMapping, Detail: "field is defined more than once"}
		}
		aliasNames[a.Name] = struct{}{}
	}

	for _, a := range aliases {
		invalid := func(reason string) error {
			return &mapper.ParseError{
				Field:  a.Name,
				Type:   AliasType,
				Param:  pathParamName,
				Err:    mapper.ErrInvalidValue,
				Detail: fmt.Sprintf("invalid path [%s] for field alias [%s]: %s", a.Path, a.Name, reason),
			}
		}
		_, isAlias := aliasNames[a.Path]
		switch {
		case a.Path == a.Name:
			return invalid("an alias cannot refer to itself")
		case isAlias:
			return invalid("an alias cannot refer to another alias")
		}
		if _, ok := concrete[a.Path]; !ok {
			return invalid("an alias must refer to an existing field in the mappings")
		}
	}

	for _, f := range fields {
		for _, target := range f.CopyTo {
			if _, ok := aliasNames[target]; ok {
				return &mapper.ParseError{
					Field:  f.Name(),
					Type:   f.Type.TypeName(),
					Param:  copyToParamName,
					Err:    mapper.ErrInvalidValue,
					Detail: fmt.Sprintf("cannot copy to field alias [%s]", target),
				}
			}
		}
	}
	return nil
}
