package datumo

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// ProjectDataset is the merged, provenance-tracking view of a project's
// sources and its own dataset.
type ProjectDataset struct {
	*Dataset

	project *Project
	sources []projectSource
}

type projectSource struct {
	name string
	ex   Extractor
	// nested is set for sources that are themselves projects; only these
	// accept write-back.
	nested *ProjectDataset
}

// Project returns the owning project.
func (pd *ProjectDataset) Project() *Project { return pd.project }

// Source returns the extractor of the named source.
func (pd *ProjectDataset) Source(name string) (Extractor, bool) {
	i := slices.IndexFunc(pd.sources, func(s projectSource) bool { return s.name == name })
	if i < 0 {
		return nil, false
	}
	return pd.sources[i].ex, true
}

// SourceNames returns the source names in merge order.
func (pd *ProjectDataset) SourceNames() []string {
	names := make([]string, len(pd.sources))
	for i, s := range pd.sources {
		names[i] = s.name
	}
	return names
}

// MakeDataset loads every source and merges them with the project's own
// dataset.
//
// Sources are overlaid in declared order. A new item from a nested project
// keeps its provenance prefixed with the source name; items from other
// formats belong to this project. Colliding items get the deduplicated
// union of annotations and keep the earlier image; when their provenance
// differs the result belongs to this project. The own dataset is applied
// last and replaces source items, borrowing their image when it has none.
// Finally the subset allow-list is applied.
func (p *Project) MakeDataset(ctx context.Context) (*ProjectDataset, error) {
	logger := p.env.logger
	pd := &ProjectDataset{project: p}
	for _, src := range p.Config.Sources {
		ps, err := p.openSource(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		pd.sources = append(pd.sources, ps)
	}

	own, err := p.openOwn(ctx)
	if err != nil {
		return nil, err
	}

	cats := Categories{}
	for _, s := range pd.sources {
		if cats, err = MergeCategories(cats, s.ex.Categories()); err != nil {
			logger.LogMerge(ctx, s.name, 0, 0, err)
			return nil, fmt.Errorf("source %q: %w", s.name, err)
		}
	}
	if own != nil && own.Len() != 0 {
		for k, d := range own.Categories() {
			cats[k] = d
		}
	}
	ds := NewDataset(cats)

	for _, s := range pd.sources {
		items, collisions := 0, 0
		for it, err := range s.ex.Items(ctx) {
			if err != nil {
				logger.LogMerge(ctx, s.name, items, collisions, err)
				return nil, fmt.Errorf("source %q: %w", s.name, err)
			}
			items++
			var path []string
			if s.nested != nil {
				path = append([]string{s.name}, it.Path...)
			}
			merged := it.Clone()
			merged.Path = path
			if existing, ok := ds.Get(it.SubsetName(), it.ID); ok {
				collisions++
				if !slices.Equal(normStrings(existing.Path), normStrings(path)) {
					path = nil
				}
				merged = overlay(existing, it, path)
			}
			ds.subset(merged.SubsetName()).put(merged)
		}
		logger.LogMerge(ctx, s.name, items, collisions, nil)
	}

	if own != nil {
		for it, err := range own.Items(ctx) {
			if err != nil {
				return nil, fmt.Errorf("own dataset: %w", err)
			}
			merged := it.Clone()
			merged.Path = nil
			if existing, ok := ds.Get(it.SubsetName(), it.ID); ok && !it.HasImage() && existing.HasImage() {
				merged.Image = existing.Image
				if merged.Size == (image.Point{}) {
					merged.Size = existing.Size
				}
			}
			ds.subset(merged.SubsetName()).put(merged)
		}
	}

	if allow := p.Config.Subsets; len(allow) != 0 {
		for _, name := range slices.Clone(ds.order) {
			if !slices.Contains(allow, name) {
				delete(ds.subsets, name)
				ds.order = slices.DeleteFunc(ds.order, func(x string) bool { return x == name })
			}
		}
	}

	pd.Dataset = ds
	return pd, nil
}

func (p *Project) sourceLocation(src Source) string {
	if src.URL == "" {
		return p.LocalSourceDir(src.Name)
	}
	if u, err := url.Parse(src.URL); err == nil && len(u.Scheme) > 1 {
		return src.URL
	}
	if filepath.IsAbs(src.URL) || p.dir == "" {
		return src.URL
	}
	return filepath.Join(p.dir, src.URL)
}

func (p *Project) openSource(ctx context.Context, src Source) (projectSource, error) {
	loc := p.sourceLocation(src)
	if FormatKindOf(src.Format) == FormatNative {
		child, err := LoadProject(ctx, p.env, loc)
		if err != nil {
			return projectSource{}, err
		}
		cpd, err := child.MakeDataset(ctx)
		if err != nil {
			return projectSource{}, err
		}
		return projectSource{name: src.Name, ex: cpd, nested: cpd}, nil
	}
	ex, err := p.env.Extract(ctx, loc, src.Format, src.Options)
	if err != nil {
		return projectSource{}, err
	}
	return projectSource{name: src.Name, ex: ex}, nil
}

// openOwn returns the extractor over the project's own dataset directory, or
// nil when the project has none yet.
func (p *Project) openOwn(ctx context.Context) (Extractor, error) {
	if p.dir == "" {
		return nil, nil
	}
	dir := filepath.Join(p.dir, p.Config.DatasetDir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil
	}
	store, err := NewFS(dir)
	if err != nil {
		return nil, err
	}
	files, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	ex, err := p.env.MakeExtractor(ctx, DefaultFormat, store, nil)
	if err != nil {
		return nil, fmt.Errorf("own dataset: %w", err)
	}
	return ex, nil
}

// -----------------------------------------------------------------------------
// Routing
// -----------------------------------------------------------------------------

// Get returns (subset, id). A non-empty path routes the lookup to the named
// source with one segment stripped.
func (pd *ProjectDataset) Get(ctx context.Context, subset, id string, path []string) (*DatasetItem, error) {
	if len(path) == 0 {
		it, ok := pd.Dataset.Get(subset, id)
		if !ok {
			return nil, fmt.Errorf("item %s/%s: %w", subset, id, ErrNotFound)
		}
		return it, nil
	}
	s, err := pd.source(path[0])
	if err != nil {
		return nil, err
	}
	if s.nested != nil {
		return s.nested.Get(ctx, subset, id, path[1:])
	}
	if len(path) > 1 {
		return nil, fmt.Errorf("item path %v: %w", path, ErrNotFound)
	}
	return findItem(ctx, s.ex, subset, id)
}

// Put stores it under path. A non-empty path first forwards the write to the
// named source, recursively, stripping one segment per hop; the merged view
// is updated in every case. Only nested project sources accept writes.
func (pd *ProjectDataset) Put(ctx context.Context, it *DatasetItem, path []string) (*DatasetItem, error) {
	if len(path) > 0 {
		s, err := pd.source(path[0])
		if err != nil {
			return nil, err
		}
		if s.nested == nil {
			return nil, fmt.Errorf("datumo: source %q is read-only", s.name)
		}
		if _, err := s.nested.Put(ctx, it, path[1:]); err != nil {
			return nil, err
		}
	}
	stored := it.Clone()
	stored.Path = slices.Clone(path)
	pd.subset(stored.SubsetName()).put(stored)
	return stored, nil
}

// IterateOwn returns the items this project owns (empty provenance).
func (pd *ProjectDataset) IterateOwn() Extractor {
	return pd.Select(func(it *DatasetItem) bool { return len(it.Path) == 0 })
}

func (pd *ProjectDataset) source(name string) (projectSource, error) {
	i := slices.IndexFunc(pd.sources, func(s projectSource) bool { return s.name == name })
	if i < 0 {
		return projectSource{}, fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	return pd.sources[i], nil
}

func findItem(ctx context.Context, ex Extractor, subset, id string) (*DatasetItem, error) {
	if subset == "" {
		subset = DefaultSubset
	}
	for it, err := range ex.Items(ctx) {
		if err != nil {
			return nil, err
		}
		if it.ID == id && it.SubsetName() == subset {
			return it, nil
		}
	}
	return nil, fmt.Errorf("item %s/%s: %w", subset, id, ErrNotFound)
}

// -----------------------------------------------------------------------------
// Saving
// -----------------------------------------------------------------------------

// SaveOptions controls ProjectDataset.Save.
type SaveOptions struct {
	// Dir is the target project directory; empty saves in place. A
	// directory other than the project's own implies Merge.
	Dir string
	// Merge flattens every source into the saved dataset and drops the
	// sources from the saved configuration.
	Merge bool
	// NoRecursive skips saving nested project sources before an in-place
	// save. By default they persist first, so routed Puts are kept.
	NoRecursive bool
	// SaveImages writes item images alongside annotations.
	SaveImages bool
}

// Save persists the dataset with the native converter and then runs the
// environment's save hooks.
func (pd *ProjectDataset) Save(ctx context.Context, opts SaveOptions) error {
	start := time.Now()
	p := pd.project
	logger := p.env.logger

	dir, merge := opts.Dir, opts.Merge
	if dir == "" {
		if p.dir == "" {
			return fmt.Errorf("datumo: project has no directory")
		}
		dir = p.dir
	} else {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		dir = abs
		if dir != p.dir {
			merge = true
		}
	}

	target := p
	var content Extractor
	if merge {
		cfg := p.Config.Clone()
		cfg.Sources = nil
		target = NewProject(p.env, cfg)
		content = clearPaths(pd)
	} else {
		if !opts.NoRecursive {
			for _, s := range pd.sources {
				if s.nested == nil {
					continue
				}
				if err := s.nested.Save(ctx, SaveOptions{SaveImages: opts.SaveImages}); err != nil {
					return fmt.Errorf("save source %q: %w", s.name, err)
				}
			}
		}
		content = pd.IterateOwn()
	}

	err := pd.writeDataset(ctx, dir, target.Config.DatasetDir, content, opts.SaveImages)
	if err == nil {
		err = target.Save(ctx, dir)
	}
	n := 0
	if err == nil {
		n = content.Len()
	}
	logger.LogSave(ctx, dir, n, merge, time.Since(start), err)
	if err != nil {
		return err
	}

	ev := SaveEvent{Dir: dir, Config: target.Config, Dataset: content, Merged: merge}
	for _, h := range p.env.hooks {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("save hook: %w", err)
		}
	}
	return nil
}

// writeDataset converts content into a scratch store first, so lazily
// loaded media can still be read from the old files, then replaces the
// dataset directory contents.
func (pd *ProjectDataset) writeDataset(ctx context.Context, dir, datasetDir string, content Extractor, saveImages bool) error {
	env := pd.project.env
	scratch := NewMemory()
	if err := env.Convert(ctx, content, DefaultFormat, Options{OptSaveImages: saveImages}, scratch); err != nil {
		return err
	}

	root, err := NewFS(dir)
	if err != nil {
		return err
	}
	dst := Sub(root, datasetDir)
	stale, err := dst.List(ctx, "")
	if err != nil {
		return err
	}
	fresh, err := scratch.List(ctx, "")
	if err != nil {
		return err
	}
	for _, p := range stale {
		if _, found := slices.BinarySearch(fresh, p); found {
			continue
		}
		if err := dst.Delete(ctx, p); err != nil {
			return err
		}
	}
	return CopyStore(ctx, scratch, dst, "")
}

func clearPaths(src Extractor) Extractor {
	v := newView(src, func(_ context.Context, it *DatasetItem) (*DatasetItem, error) {
		if len(it.Path) == 0 {
			return it, nil
		}
		out := it.Clone()
		out.Path = nil
		return out, nil
	})
	v.oneToOne = true
	return v
}

// -----------------------------------------------------------------------------
// Derived projects
// -----------------------------------------------------------------------------

// Filter selects items and annotations for export and extraction.
type Filter struct {
	// Items keeps the items it returns true for; nil keeps all.
	Items func(*DatasetItem) bool
	// Annotations keeps the annotations it returns true for; nil keeps all.
	Annotations func(*DatasetItem, Annotation) bool
	// RemoveEmpty drops items left without annotations.
	RemoveEmpty bool
}

// Apply returns src restricted by f.
func (f Filter) Apply(src Extractor) Extractor {
	if f.Items != nil {
		src = FilterItems(f.Items)(src)
	}
	if f.Annotations != nil || f.RemoveEmpty {
		keep := f.Annotations
		if keep == nil {
			keep = func(*DatasetItem, Annotation) bool { return true }
		}
		src = FilterAnnotations(keep, f.RemoveEmpty)(src)
	}
	return src
}

// TransformProject applies t and saves the result as a self-contained
// project in dir (in place when dir is empty).
func (pd *ProjectDataset) TransformProject(ctx context.Context, t Transform, dir string) (*Project, error) {
	return pd.saveBranch(ctx, t(pd), dir)
}

// ExtractProject saves the filtered dataset as a self-contained project.
func (pd *ProjectDataset) ExtractProject(ctx context.Context, f Filter, dir string) (*Project, error) {
	return pd.saveBranch(ctx, f.Apply(pd), dir)
}

// ApplyModel runs the named project model over every item and saves the
// predictions as a self-contained project.
func (pd *ProjectDataset) ApplyModel(ctx context.Context, model, dir string) (*Project, error) {
	l, err := pd.project.MakeExecutableModel(model)
	if err != nil {
		return nil, err
	}
	return pd.TransformProject(ctx, ModelInference(l), dir)
}

// ExportProject writes the filtered dataset to location with conv. A local
// directory created by a failed export is removed.
func (pd *ProjectDataset) ExportProject(ctx context.Context, location string, conv Converter, f Filter) error {
	env := pd.project.env
	_, statErr := os.Stat(location)
	created := os.IsNotExist(statErr) && !hasScheme(location)

	store, err := env.OpenStore(ctx, location)
	if err != nil {
		return err
	}
	err = conv.Convert(ContextWithLogger(ctx, env.logger), f.Apply(pd), store)
	if err != nil && created {
		_ = os.RemoveAll(location)
	}
	return err
}

func (pd *ProjectDataset) saveBranch(ctx context.Context, src Extractor, dir string) (*Project, error) {
	p := pd.project
	var cfg Config
	if dir == "" {
		if p.dir == "" {
			return nil, fmt.Errorf("datumo: either a save directory or a project directory is required")
		}
		dir = p.dir
		cfg = p.Config.Clone()
		cfg.Sources = nil
	} else {
		cfg = DefaultConfig()
		cfg.ProjectName = filepath.Base(dir)
	}

	ds, err := MergeExtractors(ctx, src)
	if err != nil {
		return nil, err
	}
	dst := NewProject(p.env, cfg)
	branch := &ProjectDataset{Dataset: ds, project: dst}
	if err := branch.Save(ctx, SaveOptions{Dir: dir, Merge: true, SaveImages: true}); err != nil {
		return nil, err
	}
	dst.dir, _ = filepath.Abs(dir)
	return dst, nil
}

func hasScheme(location string) bool {
	u, err := url.Parse(location)
	return err == nil && len(u.Scheme) > 1 && u.Scheme != "file"
}
