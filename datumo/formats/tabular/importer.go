package tabular

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Importer registers a directory holding annotations.parquet as one source.
type Importer struct{}

// NewImporter takes no options.
func NewImporter(datumo.Options) (datumo.Importer, error) { return Importer{}, nil }

// Import implements datumo.Importer.
func (Importer) Import(ctx context.Context, store datumo.Store, url string, opts datumo.Options, reg datumo.SourceRegistry) error {
	ok, err := Importer{}.Detect(ctx, store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s in %s: %w", TableFile, url, datumo.ErrNotFound)
	}
	name := path.Base(strings.TrimRight(url, "/"))
	if name == "" || name == "." || name == "/" {
		name = Name
	}
	return reg.AddSource(name, datumo.Source{Name: name, URL: url, Format: Name, Options: opts.Clone()})
}

// Detect reports whether the table file exists.
func (Importer) Detect(ctx context.Context, store datumo.Store) (bool, error) {
	return store.Exists(ctx, TableFile)
}
