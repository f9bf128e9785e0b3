package yolo

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"iter"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Extractor reads a YOLO layout from a Store. Construction indexes and
// validates the annotation files; every iteration parses them again.
type Extractor struct {
	store      datumo.Store
	categories datumo.Categories
	fallback   image.Point
	subsets    []string
	// files maps a subset to its annotation file paths in listing order.
	files  map[string][]string
	length int
}

// NewExtractor indexes the label file and every annotation file under store.
// Image sizes come from the sibling image header, falling back to the
// "image_size" option.
func NewExtractor(ctx context.Context, store datumo.Store, opts datumo.Options) (datumo.Extractor, error) {
	fallback, err := parseImageSize(opts)
	if err != nil {
		return nil, err
	}
	namesPath, err := findNames(ctx, store)
	if err != nil {
		return nil, err
	}
	labels, err := readLabels(ctx, store, namesPath)
	if err != nil {
		return nil, err
	}

	paths, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	e := &Extractor{
		store:      store,
		categories: datumo.Categories{datumo.KindLabel: labels},
		fallback:   fallback,
		files:      make(map[string][]string),
	}
	for _, p := range paths {
		if path.Ext(p) != AnnotationExt {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := e.size(ctx, p); err != nil {
			return nil, err
		}
		if _, err := readEntries(ctx, store, p, labels.Len()); err != nil {
			return nil, err
		}
		subset, _ := splitItemPath(p)
		if _, ok := e.files[subset]; !ok {
			e.subsets = append(e.subsets, subset)
		}
		e.files[subset] = append(e.files[subset], p)
		e.length++
	}
	return e, nil
}

func (e *Extractor) Subsets() []string             { return slices.Clone(e.subsets) }
func (e *Extractor) Categories() datumo.Categories { return e.categories }
func (e *Extractor) Len() int                      { return e.length }

// Items parses each annotation file as it is reached.
func (e *Extractor) Items(ctx context.Context) iter.Seq2[*datumo.DatasetItem, error] {
	return func(yield func(*datumo.DatasetItem, error) bool) {
		nlabels := e.categories.Labels().Len()
		for _, subset := range e.subsets {
			for _, p := range e.files[subset] {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				it, err := e.readItem(ctx, p, nlabels)
				if err != nil {
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

func (e *Extractor) readItem(ctx context.Context, p string, nlabels int) (*datumo.DatasetItem, error) {
	subset, id := splitItemPath(p)
	it := &datumo.DatasetItem{ID: id, Subset: subset}
	sz, err := e.size(ctx, p)
	if err != nil {
		return nil, err
	}
	it.Size = sz.Point
	if sz.file != "" {
		it.Image = datumo.LoadImage(ctx, e.store, sz.file)
	}
	entries, err := readEntries(ctx, e.store, p, nlabels)
	if err != nil {
		return nil, err
	}
	w, h := float64(it.Size.X), float64(it.Size.Y)
	for _, en := range entries {
		x, y, bw, bh := datumo.FromYOLO(en.v[0], en.v[1], en.v[2], en.v[3], w, h)
		it.Annotations = append(it.Annotations, datumo.NewBbox(x, y, bw, bh, en.label))
	}
	return it, nil
}

// sizeSource is an item's image size and, when one exists, its image path.
type sizeSource struct {
	image.Point
	file string
}

// size resolves the image size of the annotation file at p.
func (e *Extractor) size(ctx context.Context, p string) (sizeSource, error) {
	imgPath, ok, err := datumo.FindImage(ctx, e.store, strings.TrimSuffix(p, AnnotationExt))
	if err != nil {
		return sizeSource{}, err
	}
	switch {
	case ok:
		pt, err := datumo.ImageSize(ctx, e.store, imgPath)
		if err != nil {
			return sizeSource{}, err
		}
		return sizeSource{Point: pt, file: imgPath}, nil
	case e.fallback != image.Point{}:
		return sizeSource{Point: e.fallback}, nil
	default:
		return sizeSource{}, fmt.Errorf("image size of %s: %w", p, datumo.ErrNotFound)
	}
}

func parseImageSize(opts datumo.Options) (image.Point, error) {
	size, err := opts.Ints(OptImageSize)
	if err != nil || size == nil {
		return image.Point{}, err
	}
	if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
		return image.Point{}, fmt.Errorf("option %q: want [width, height], got %v", OptImageSize, size)
	}
	return image.Pt(size[0], size[1]), nil
}

func readLabels(ctx context.Context, store datumo.Store, p string) (*datumo.LabelCategories, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	labels := datumo.NewLabelCategories()
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			labels.Add(name, "")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, datumo.Malformed(p, err)
	}
	return labels, nil
}

// entry is one parsed annotation line in normalized coordinates.
type entry struct {
	label int
	v     [4]float64
}

func readEntries(ctx context.Context, store datumo.Store, p string, nlabels int) ([]entry, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var out []entry
	sc := bufio.NewScanner(rc)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		loc := p + ":" + strconv.Itoa(line)
		if len(fields) != 5 {
			return nil, datumo.Malformed(loc, fmt.Errorf("want 5 fields, got %d", len(fields)))
		}
		label, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, datumo.Malformed(loc, err)
		}
		if label < 0 || label >= nlabels {
			return nil, datumo.Malformed(loc, fmt.Errorf("label %d out of range [0, %d)", label, nlabels))
		}
		en := entry{label: label}
		for i := range en.v {
			if en.v[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
				return nil, datumo.Malformed(loc, err)
			}
		}
		out = append(out, en)
	}
	if err := sc.Err(); err != nil {
		return nil, datumo.Malformed(p, err)
	}
	return out, nil
}
