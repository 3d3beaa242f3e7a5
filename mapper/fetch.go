package mapper

import (
	"slices"

	"github.com/effectus/fieldmap/script"
	"github.com/effectus/fieldmap/source"
)

// fetchLookup is the script.SearchLookup handed to computed field types.
// Each nested fetch carries the chain of fields being computed so that a
// script reading its own field fails instead of recursing forever.
type fetchLookup struct {
	lookup *Lookup
	chain  []string
}

var _ script.SearchLookup = (*fetchLookup)(nil)

func (f *fetchLookup) FieldValues(field string, src source.Source) ([]interface{}, error) {
	if slices.Contains(f.chain, field) {
		return nil, &CycleError{Chain: append(slices.Clone(f.chain), field)}
	}
	if src == nil {
		src = source.Empty
	}

	ft, err := f.lookup.Get(field)
	if err != nil {
		return nil, err
	}
	if ft == nil {
		return nil, nil
	}

	if fetcher, ok := ft.(ValueFetcher); ok {
		next := &fetchLookup{lookup: f.lookup, chain: append(slices.Clone(f.chain), field)}
		return fetcher.FetchValues(next, src)
	}

	paths, err := f.lookup.SourcePaths(ft.Name())
	if err != nil {
		return nil, err
	}
	var values []interface{}
	for _, path := range paths {
		found, err := src.Extract(path)
		if err != nil {
			return nil, err
		}
		values = append(values, found...)
	}
	return values, nil
}
