package tabular

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"iter"
	"slices"

	"github.com/parquet-go/parquet-go"

	"github.com/justapithecus/datumo/datumo"
)

const readBatch = 256

// Extractor reads the annotation table from a Store. The table is scanned
// once at construction for validation and counts; each iteration reads it
// again.
type Extractor struct {
	store      datumo.Store
	categories datumo.Categories
	subsets    []string
	length     int
}

// NewExtractor validates the table. Mask rasters stay encoded until first
// use.
func NewExtractor(ctx context.Context, store datumo.Store, _ datumo.Options) (datumo.Extractor, error) {
	cats, err := readCategories(ctx, store)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, store)
	if err != nil {
		return nil, err
	}
	subsets, items, err := groupRows(rows)
	if err != nil {
		return nil, err
	}
	e := &Extractor{store: store, categories: cats, subsets: subsets}
	for _, list := range items {
		e.length += len(list)
	}
	return e, nil
}

func (e *Extractor) Subsets() []string             { return slices.Clone(e.subsets) }
func (e *Extractor) Categories() datumo.Categories { return e.categories }
func (e *Extractor) Len() int                      { return e.length }

// Items re-reads the table and yields items subset by subset.
func (e *Extractor) Items(ctx context.Context) iter.Seq2[*datumo.DatasetItem, error] {
	return func(yield func(*datumo.DatasetItem, error) bool) {
		rows, err := readRows(ctx, e.store)
		if err != nil {
			yield(nil, err)
			return
		}
		subsets, items, err := groupRows(rows)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, name := range subsets {
			for _, it := range items[name] {
				img, found, err := datumo.FindImage(ctx, e.store, imageStem(it.Subset, it.ID))
				if err != nil {
					yield(nil, err)
					return
				}
				if found {
					it.Image = datumo.LoadImage(ctx, e.store, img)
				}
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}

// groupRows folds rows into items, keyed by subset and id in first-seen
// order.
func groupRows(rows []annotationRow) ([]string, map[string][]*datumo.DatasetItem, error) {
	type key struct{ subset, id string }
	index := make(map[key]*datumo.DatasetItem)
	items := make(map[string][]*datumo.DatasetItem)
	var subsets []string
	for i, row := range rows {
		subset := row.Subset
		if subset == "" {
			subset = datumo.DefaultSubset
		}
		k := key{subset, row.ItemID}
		it, ok := index[k]
		if !ok {
			it = &datumo.DatasetItem{ID: row.ItemID, Subset: subset, Path: row.Path, Size: sizeOf(row)}
			index[k] = it
			if _, seen := items[subset]; !seen {
				subsets = append(subsets, subset)
			}
			items[subset] = append(items[subset], it)
		}
		if row.Kind == "" {
			continue
		}
		ann, err := decodeRow(row)
		if err != nil {
			return nil, nil, datumo.Malformed(fmt.Sprintf("%s row %d", TableFile, i), err)
		}
		it.Annotations = append(it.Annotations, ann)
	}
	return subsets, items, nil
}

func readCategories(ctx context.Context, store datumo.Store) (datumo.Categories, error) {
	rc, err := store.Get(ctx, CategoriesFile)
	if errors.Is(err, datumo.ErrNotFound) {
		return datumo.Categories{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var doc categoriesDoc
	if err := jsonCodec.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, datumo.Malformed(CategoriesFile, err)
	}
	cats, err := decodeCategories(doc)
	if err != nil {
		return nil, datumo.Malformed(CategoriesFile, err)
	}
	return cats, nil
}

func readRows(ctx context.Context, store datumo.Store) ([]annotationRow, error) {
	rc, err := store.Get(ctx, TableFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, datumo.Malformed(TableFile, err)
	}
	r := parquet.NewGenericReader[annotationRow](file)
	defer func() { _ = r.Close() }()

	out := make([]annotationRow, 0, r.NumRows())
	for {
		// Fresh batches keep decoded slices from aliasing across reads.
		batch := make([]annotationRow, readBatch)
		n, err := r.Read(batch)
		out = append(out, batch[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, datumo.Malformed(TableFile, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func decodeRow(row annotationRow) (datumo.Annotation, error) {
	kind, err := datumo.ParseKind(row.Kind)
	if err != nil {
		return nil, err
	}
	base := datumo.AnnotationBase{ID: int(row.ID), Label: int(row.Label), Group: int(row.Group)}
	if row.Attributes != "" {
		if err := jsonCodec.UnmarshalFromString(row.Attributes, &base.Attributes); err != nil {
			return nil, err
		}
	}

	switch kind {
	case datumo.KindLabel:
		return &datumo.Label{AnnotationBase: base}, nil
	case datumo.KindBbox:
		if len(row.Points) != 4 {
			return nil, fmt.Errorf("bbox needs 4 values, got %d", len(row.Points))
		}
		p := row.Points
		return &datumo.Bbox{AnnotationBase: base, X: p[0], Y: p[1], W: p[2], H: p[3]}, nil
	case datumo.KindPolygon:
		return &datumo.Polygon{AnnotationBase: base, Points: row.Points}, nil
	case datumo.KindPolyLine:
		return &datumo.PolyLine{AnnotationBase: base, Points: row.Points}, nil
	case datumo.KindPoints:
		pts := &datumo.Points{AnnotationBase: base, Points: row.Points}
		if len(row.Visibility) > 0 {
			if len(row.Visibility) != len(row.Points)/2 {
				return nil, fmt.Errorf("%d visibility flags for %d points", len(row.Visibility), len(row.Points)/2)
			}
			for _, v := range row.Visibility {
				pts.Visibility = append(pts.Visibility, datumo.Visibility(v))
			}
		}
		return pts, nil
	case datumo.KindCaption:
		return &datumo.Caption{AnnotationBase: base, Caption: row.Caption}, nil
	case datumo.KindMask:
		m := &datumo.Mask{AnnotationBase: base}
		if len(row.Mask) > 0 {
			data := row.Mask
			m.Image = datumo.NewLazy("", func() (*datumo.Raster, error) {
				img, err := png.Decode(bytes.NewReader(data))
				if err != nil {
					return nil, fmt.Errorf("%w: mask: %w", datumo.ErrDecodeFailure, err)
				}
				return datumo.RasterFrom(img), nil
			})
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported kind %s", row.Kind)
}
