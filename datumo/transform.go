package datumo

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
)

// Transform derives a new dataset view from an extractor. Views are lazy:
// the mapping runs on every iteration.
type Transform func(Extractor) Extractor

// Chain applies transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(src Extractor) Extractor {
		for _, t := range ts {
			src = t(src)
		}
		return src
	}
}

// mapFunc returns the replacement item, or nil to drop it.
type mapFunc func(ctx context.Context, it *DatasetItem) (*DatasetItem, error)

// view is an Extractor computing its items from src through fn.
type view struct {
	src        Extractor
	fn         mapFunc
	categories Categories
	// oneToOne views keep every item in its subset, so Subsets and Len
	// delegate to src.
	oneToOne bool
}

func newView(src Extractor, fn mapFunc) *view {
	return &view{src: src, fn: fn, categories: src.Categories()}
}

func (v *view) Items(ctx context.Context) iter.Seq2[*DatasetItem, error] {
	return func(yield func(*DatasetItem, error) bool) {
		for it, err := range v.src.Items(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := v.fn(ctx, it)
			if err != nil {
				yield(nil, err)
				return
			}
			if out == nil {
				continue
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

func (v *view) Categories() Categories { return v.categories }

func (v *view) Subsets() []string {
	if v.oneToOne {
		return v.src.Subsets()
	}
	var names []string
	for it, err := range v.Items(context.Background()) {
		if err != nil {
			break
		}
		if name := it.SubsetName(); !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func (v *view) Len() int {
	if v.oneToOne {
		return v.src.Len()
	}
	n := 0
	for _, err := range v.Items(context.Background()) {
		if err != nil {
			break
		}
		n++
	}
	return n
}

// -----------------------------------------------------------------------------
// Built-in transforms
// -----------------------------------------------------------------------------

// FilterItems keeps the items for which pred returns true.
func FilterItems(pred func(*DatasetItem) bool) Transform {
	return func(src Extractor) Extractor {
		return newView(src, func(_ context.Context, it *DatasetItem) (*DatasetItem, error) {
			if !pred(it) {
				return nil, nil
			}
			return it, nil
		})
	}
}

// FilterAnnotations keeps the annotations for which pred returns true. With
// removeEmpty, items left without annotations are dropped.
func FilterAnnotations(pred func(*DatasetItem, Annotation) bool, removeEmpty bool) Transform {
	return func(src Extractor) Extractor {
		v := newView(src, func(_ context.Context, it *DatasetItem) (*DatasetItem, error) {
			out := it.Clone()
			out.Annotations = slices.DeleteFunc(out.Annotations, func(a Annotation) bool {
				return !pred(it, a)
			})
			if removeEmpty && len(out.Annotations) == 0 {
				return nil, nil
			}
			return out, nil
		})
		v.oneToOne = !removeEmpty
		return v
	}
}

// Reindex renames items to consecutive integers starting at start, in
// iteration order.
func Reindex(start int) Transform {
	return func(src Extractor) Extractor {
		return &reindexView{src: src, start: start}
	}
}

// reindexView counts per iteration, so repeated or concurrent passes produce
// the same ids.
type reindexView struct {
	src   Extractor
	start int
}

func (r *reindexView) Items(ctx context.Context) iter.Seq2[*DatasetItem, error] {
	return func(yield func(*DatasetItem, error) bool) {
		next := r.start
		for it, err := range r.src.Items(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			out := it.Clone()
			out.ID = strconv.Itoa(next)
			next++
			if !yield(out, nil) {
				return
			}
		}
	}
}

func (r *reindexView) Subsets() []string      { return r.src.Subsets() }
func (r *reindexView) Categories() Categories { return r.src.Categories() }
func (r *reindexView) Len() int               { return r.src.Len() }

// RemapSubsets renames subsets. Subsets mapped to "" are dropped; unmapped
// subsets keep their names.
func RemapSubsets(mapping map[string]string) Transform {
	return func(src Extractor) Extractor {
		return newView(src, func(_ context.Context, it *DatasetItem) (*DatasetItem, error) {
			name := it.SubsetName()
			to, ok := mapping[name]
			if !ok {
				return it, nil
			}
			if to == "" {
				return nil, nil
			}
			out := it.Clone()
			out.Subset = to
			return out, nil
		})
	}
}

// ModelInference replaces the annotations of every item with the launcher's
// predictions on its image. Items without images end up with no
// annotations. When the launcher reports categories they replace the
// source's.
func ModelInference(l Launcher) Transform {
	return func(src Extractor) Extractor {
		v := newView(src, func(ctx context.Context, it *DatasetItem) (*DatasetItem, error) {
			out := it.Clone()
			out.Annotations = nil
			if !it.HasImage() {
				return out, nil
			}
			img, err := it.Image.Resolve()
			if err != nil {
				return nil, err
			}
			anns, err := l.Launch(ctx, img)
			if err != nil {
				return nil, fmt.Errorf("launch on item %q: %w", it.ID, err)
			}
			out.Annotations = anns
			return out, nil
		})
		v.oneToOne = true
		if cl, ok := l.(CategoryLauncher); ok {
			v.categories = cl.Categories()
		}
		return v
	}
}
