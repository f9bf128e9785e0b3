package native

import (
	"context"
	"fmt"

	"github.com/justapithecus/datumo/datumo"
)

// Importer registers one source per subset document.
type Importer struct{}

// NewImporter takes no options.
func NewImporter(datumo.Options) (datumo.Importer, error) { return Importer{}, nil }

// Import implements datumo.Importer.
func (Importer) Import(ctx context.Context, store datumo.Store, url string, opts datumo.Options, reg datumo.SourceRegistry) error {
	subsets, err := listSubsets(ctx, store)
	if err != nil {
		return err
	}
	if len(subsets) == 0 {
		return fmt.Errorf("%s: %s/*.json: %w", url, AnnotationsDir, datumo.ErrNotFound)
	}
	for _, name := range subsets {
		src := datumo.Source{
			Name:    name,
			URL:     url,
			Format:  datumo.DefaultFormat,
			Options: opts.With(OptSubset, name),
		}
		if err := reg.AddSource(name, src); err != nil {
			return err
		}
	}
	return nil
}

// Detect reports whether store holds at least one subset document.
func (Importer) Detect(ctx context.Context, store datumo.Store) (bool, error) {
	subsets, err := listSubsets(ctx, store)
	return len(subsets) > 0, err
}

func listSubsets(ctx context.Context, store datumo.Store) ([]string, error) {
	paths, err := store.List(ctx, AnnotationsDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if name, ok := subsetFromPath(p); ok {
			out = append(out, name)
		}
	}
	return out, nil
}
