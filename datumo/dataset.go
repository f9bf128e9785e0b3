package datumo

import (
	"context"
	"fmt"
	"image"
	"iter"
	"slices"
)

// -----------------------------------------------------------------------------
// Subset
// -----------------------------------------------------------------------------

// Subset is an insertion-ordered collection of items keyed by id.
// Replacing an item keeps its position.
type Subset struct {
	name  string
	order []string
	items map[string]*DatasetItem
}

func newSubset(name string) *Subset {
	return &Subset{name: name, items: make(map[string]*DatasetItem)}
}

// Name returns the subset name.
func (s *Subset) Name() string { return s.name }

// Len returns the number of items.
func (s *Subset) Len() int { return len(s.order) }

// Get returns the item with id.
func (s *Subset) Get(id string) (*DatasetItem, bool) {
	it, ok := s.items[id]
	return it, ok
}

func (s *Subset) put(it *DatasetItem) {
	if _, ok := s.items[it.ID]; !ok {
		s.order = append(s.order, it.ID)
	}
	s.items[it.ID] = it
}

func (s *Subset) remove(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	return true
}

// All yields the items in insertion order.
func (s *Subset) All() iter.Seq[*DatasetItem] {
	return func(yield func(*DatasetItem) bool) {
		for _, id := range s.order {
			if !yield(s.items[id]) {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Dataset is a mutable, memory-resident collection of items partitioned into
// subsets. It implements Extractor, so it can be fed to any Converter.
//
// Dataset is not safe for concurrent mutation.
type Dataset struct {
	categories Categories
	subsets    map[string]*Subset
	order      []string
}

// NewDataset creates an empty dataset with the given categories.
func NewDataset(cats Categories) *Dataset {
	if cats == nil {
		cats = Categories{}
	}
	return &Dataset{categories: cats, subsets: make(map[string]*Subset)}
}

// DatasetFromItems builds a dataset from literal items, keeping their
// provenance.
func DatasetFromItems(cats Categories, items ...*DatasetItem) *Dataset {
	ds := NewDataset(cats)
	for _, it := range items {
		ds.subset(it.SubsetName()).put(it)
	}
	return ds
}

// LoadDataset drains an extractor into a new dataset. The first iteration
// error aborts the load.
func LoadDataset(ctx context.Context, ex Extractor) (*Dataset, error) {
	ds := NewDataset(ex.Categories())
	for _, name := range ex.Subsets() {
		ds.subset(name)
	}
	for it, err := range ex.Items(ctx) {
		if err != nil {
			return nil, err
		}
		ds.subset(it.SubsetName()).put(it)
	}
	return ds, nil
}

// MergeExtractors merges sources into one dataset owned by the caller: every
// item's provenance is reset to empty.
//
// Categories must agree across sources (ErrCategoryConflict otherwise). Items
// sharing (subset, id) are combined: annotations become the deduplicated
// union and the earlier image wins when present.
func MergeExtractors(ctx context.Context, sources ...Extractor) (*Dataset, error) {
	cats := Categories{}
	for _, src := range sources {
		merged, err := MergeCategories(cats, src.Categories())
		if err != nil {
			return nil, err
		}
		cats = merged
	}

	ds := NewDataset(cats)
	for _, src := range sources {
		for it, err := range src.Items(ctx) {
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			merged := it.Clone()
			merged.Path = nil
			if existing, ok := ds.Get(it.SubsetName(), it.ID); ok {
				merged = overlay(existing, it, nil)
			}
			ds.subset(merged.SubsetName()).put(merged)
		}
	}
	return ds, nil
}

// overlay combines a colliding item into existing, returning a new item with
// the given provenance.
func overlay(existing, it *DatasetItem, path []string) *DatasetItem {
	merged := it.Clone()
	merged.Path = path
	merged.Annotations = MergeAnnotations(existing.Annotations, it.Annotations)
	if existing.HasImage() {
		merged.Image = existing.Image
		if existing.Size != (image.Point{}) {
			merged.Size = existing.Size
		}
	}
	if merged.Size == (image.Point{}) {
		merged.Size = existing.Size
	}
	return merged
}

// Items implements Extractor.
func (d *Dataset) Items(ctx context.Context) iter.Seq2[*DatasetItem, error] {
	return func(yield func(*DatasetItem, error) bool) {
		for _, name := range d.order {
			for it := range d.subsets[name].All() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}

// Subsets implements Extractor.
func (d *Dataset) Subsets() []string { return slices.Clone(d.order) }

// Categories implements Extractor.
func (d *Dataset) Categories() Categories { return d.categories }

// Len implements Extractor.
func (d *Dataset) Len() int {
	n := 0
	for _, s := range d.subsets {
		n += s.Len()
	}
	return n
}

// Subset returns the named subset.
func (d *Dataset) Subset(name string) (*Subset, bool) {
	s, ok := d.subsets[name]
	return s, ok
}

func (d *Dataset) subset(name string) *Subset {
	if name == "" {
		name = DefaultSubset
	}
	s, ok := d.subsets[name]
	if !ok {
		s = newSubset(name)
		d.subsets[name] = s
		d.order = append(d.order, name)
	}
	return s
}

// Get returns the item (subset, id).
func (d *Dataset) Get(subset, id string) (*DatasetItem, bool) {
	if subset == "" {
		subset = DefaultSubset
	}
	s, ok := d.subsets[subset]
	if !ok {
		return nil, false
	}
	return s.Get(id)
}

// Put inserts or replaces an item. A plain dataset owns all of its items, so
// the stored copy has empty provenance.
func (d *Dataset) Put(it *DatasetItem) *DatasetItem {
	stored := it.Clone()
	stored.Path = nil
	d.subset(stored.SubsetName()).put(stored)
	return stored
}

// Update puts every item.
func (d *Dataset) Update(items ...*DatasetItem) {
	for _, it := range items {
		d.Put(it)
	}
}

// Remove deletes (subset, id) and reports whether it existed.
func (d *Dataset) Remove(subset, id string) bool {
	if subset == "" {
		subset = DefaultSubset
	}
	s, ok := d.subsets[subset]
	return ok && s.remove(id)
}

// DefineCategories sets the categories of a dataset that has none yet.
func (d *Dataset) DefineCategories(cats Categories) error {
	if len(d.categories) != 0 {
		return fmt.Errorf("datumo: categories already defined")
	}
	d.categories = cats
	return nil
}

// Select returns a read-only view of the items matching pred.
func (d *Dataset) Select(pred func(*DatasetItem) bool) Extractor {
	return FilterItems(pred)(d)
}
