package voc

import (
	"context"
	"fmt"

	"github.com/justapithecus/datumo/datumo"
)

// Importer registers one source per task whose ImageSets directory holds
// subset lists.
type Importer struct{}

// NewImporter takes no options.
func NewImporter(datumo.Options) (datumo.Importer, error) { return Importer{}, nil }

// Import implements datumo.Importer. Sources are named after the task.
func (Importer) Import(ctx context.Context, store datumo.Store, url string, opts datumo.Options, reg datumo.SourceRegistry) error {
	tasks, err := presentTasks(ctx, store)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("voc dataset at %s: %w", url, datumo.ErrNotFound)
	}
	for _, t := range tasks {
		src := datumo.Source{Name: t.String(), URL: url, Format: t.Plugin(), Options: opts.Clone()}
		if err := reg.AddSource(t.String(), src); err != nil {
			return err
		}
	}
	return nil
}

// Detect reports whether any task directory is present.
func (Importer) Detect(ctx context.Context, store datumo.Store) (bool, error) {
	tasks, err := presentTasks(ctx, store)
	return len(tasks) > 0, err
}

func presentTasks(ctx context.Context, store datumo.Store) ([]Task, error) {
	var out []Task
	for _, t := range Tasks {
		files, err := listFiles(ctx, store, t.subsetsDir(), ".txt")
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}
