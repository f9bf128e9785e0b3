package native

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"iter"
	"path"
	"slices"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Extractor reads a native dataset from a Store.
type Extractor struct {
	store      datumo.Store
	subsets    []string
	categories datumo.Categories
	length     int
	// images maps "<subset>/<id>" to the stored image path.
	images map[string]string
}

// NewExtractor scans the annotation documents under store. Every document is
// parsed once so malformed input fails construction.
func NewExtractor(ctx context.Context, store datumo.Store, opts datumo.Options) (datumo.Extractor, error) {
	only, err := opts.String(OptSubset, "")
	if err != nil {
		return nil, err
	}
	paths, err := store.List(ctx, AnnotationsDir)
	if err != nil {
		return nil, err
	}
	e := &Extractor{store: store, categories: datumo.Categories{}, images: make(map[string]string)}
	for _, p := range paths {
		name, ok := subsetFromPath(p)
		if !ok || (only != "" && name != only) {
			continue
		}
		e.subsets = append(e.subsets, name)
	}
	if len(e.subsets) == 0 {
		return nil, fmt.Errorf("%s/*.json: %w", AnnotationsDir, datumo.ErrNotFound)
	}
	slices.Sort(e.subsets)

	for i, name := range e.subsets {
		doc, err := e.readDocument(ctx, name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if e.categories, err = decodeCategories(doc.Categories); err != nil {
				return nil, datumo.Malformed(subsetPath(name), err)
			}
		}
		e.length += len(doc.Items)
	}

	imagePaths, err := store.List(ctx, ImagesDir)
	if err != nil {
		return nil, err
	}
	for _, p := range imagePaths {
		if !datumo.IsImagePath(p) {
			continue
		}
		rel := strings.TrimPrefix(p, ImagesDir+"/")
		e.images[strings.TrimSuffix(rel, path.Ext(rel))] = p
	}
	return e, nil
}

func (e *Extractor) Subsets() []string             { return slices.Clone(e.subsets) }
func (e *Extractor) Categories() datumo.Categories { return e.categories }
func (e *Extractor) Len() int                      { return e.length }

// Items re-reads each subset document from the store.
func (e *Extractor) Items(ctx context.Context) iter.Seq2[*datumo.DatasetItem, error] {
	return func(yield func(*datumo.DatasetItem, error) bool) {
		for _, name := range e.subsets {
			doc, err := e.readDocument(ctx, name)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, d := range doc.Items {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				it, err := e.decodeItem(ctx, name, d)
				if err != nil {
					yield(nil, datumo.Malformed(subsetPath(name), err))
					return
				}
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}

func (e *Extractor) readDocument(ctx context.Context, subset string) (*document, error) {
	p := subsetPath(subset)
	rc, err := e.store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var doc document
	if err := jsonCodec.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, datumo.Malformed(p, err)
	}
	return &doc, nil
}

func (e *Extractor) decodeItem(ctx context.Context, subset string, d itemDoc) (*datumo.DatasetItem, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("item without id")
	}
	it := &datumo.DatasetItem{ID: d.ID, Subset: subset, Path: d.Path}
	if d.Image != nil {
		it.Size = image.Pt(d.Image.Size[0], d.Image.Size[1])
	}
	if p, ok := e.images[subset+"/"+d.ID]; ok {
		it.Image = datumo.LoadImage(ctx, e.store, p)
	}
	for i, ad := range d.Annotations {
		ann, err := e.decodeAnnotation(ctx, ad)
		if err != nil {
			return nil, fmt.Errorf("item %q annotation %d: %w", d.ID, i, err)
		}
		it.Annotations = append(it.Annotations, ann)
	}
	return it, nil
}

func (e *Extractor) decodeAnnotation(ctx context.Context, d annotationDoc) (datumo.Annotation, error) {
	kind, err := datumo.ParseKind(d.Type)
	if err != nil {
		return nil, err
	}
	base := datumo.AnnotationBase{ID: d.ID, Label: datumo.NoLabel, Group: d.Group, Attributes: d.Attributes}
	if d.LabelID != nil {
		base.Label = *d.LabelID
	}

	switch kind {
	case datumo.KindLabel:
		return &datumo.Label{AnnotationBase: base}, nil
	case datumo.KindMask:
		m := &datumo.Mask{AnnotationBase: base}
		if d.MaskID != nil {
			m.Image = datumo.LoadRaster(ctx, e.store, maskPath(*d.MaskID))
		}
		return m, nil
	case datumo.KindPoints:
		p := &datumo.Points{AnnotationBase: base, Points: d.Points}
		if d.Visibility != nil {
			p.Visibility = make([]datumo.Visibility, len(d.Visibility))
			for i, v := range d.Visibility {
				p.Visibility[i] = datumo.Visibility(v)
			}
		}
		return p, nil
	case datumo.KindPolygon:
		return &datumo.Polygon{AnnotationBase: base, Points: d.Points}, nil
	case datumo.KindPolyLine:
		return &datumo.PolyLine{AnnotationBase: base, Points: d.Points}, nil
	case datumo.KindBbox:
		if len(d.Bbox) != 4 {
			return nil, fmt.Errorf("bbox needs 4 values, got %d", len(d.Bbox))
		}
		return &datumo.Bbox{AnnotationBase: base, X: d.Bbox[0], Y: d.Bbox[1], W: d.Bbox[2], H: d.Bbox[3]}, nil
	case datumo.KindCaption:
		c := &datumo.Caption{AnnotationBase: base}
		if d.Caption != nil {
			c.Caption = *d.Caption
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown annotation type %q", d.Type)
	}
}

func decodeCategories(d categoriesDoc) (datumo.Categories, error) {
	cats := datumo.Categories{}
	if d.Label != nil {
		cats[datumo.KindLabel] = &datumo.LabelCategories{Items: d.Label.Labels}
	}
	if d.Mask != nil {
		cm := make(map[int]color.RGBA, len(d.Mask.Colormap))
		for _, c := range d.Mask.Colormap {
			cm[c.LabelID] = color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
		}
		mc := datumo.NewMaskCategories(cm)
		if err := mc.Validate(); err != nil {
			return nil, err
		}
		cats[datumo.KindMask] = mc
	}
	if d.Points != nil {
		pc := &datumo.PointsCategories{}
		for _, t := range d.Points.Items {
			pc.Add(t.LabelID, t.Labels, t.Adjacent)
		}
		cats[datumo.KindPoints] = pc
	}
	return cats, nil
}
