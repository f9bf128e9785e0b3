package native

import (
	"bytes"
	"context"
	"image"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/datumo/datumo"
)

// Converter writes datasets in the native layout.
type Converter struct {
	saveImages bool
	workers    int
}

// NewConverter recognizes "save_images" and "workers". Workers bounds the
// number of concurrent mask and image writes; the default of 1 encodes
// serially.
func NewConverter(opts datumo.Options) (datumo.Converter, error) {
	save, err := opts.SaveImages()
	if err != nil {
		return nil, err
	}
	workers, err := opts.Int(datumo.OptWorkers, 1)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Converter{saveImages: save, workers: workers}, nil
}

// Name implements datumo.Converter.
func (c *Converter) Name() string { return datumo.DefaultFormat }

// Convert writes one document per subset. Mask ids are unique across the
// whole run; every document repeats the dataset categories.
func (c *Converter) Convert(ctx context.Context, src datumo.Extractor, dst datumo.Store) (err error) {
	log := datumo.LoggerFrom(ctx)
	var items int
	defer func() { log.LogConvert(ctx, c.Name(), items, 0, err) }()

	cats := encodeCategories(src.Categories())
	docs := make(map[string]*document)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var maskID int
	for it, ierr := range src.Items(ctx) {
		if ierr != nil {
			_ = g.Wait()
			return ierr
		}
		name := it.SubsetName()
		doc, ok := docs[name]
		if !ok {
			doc = &document{Info: map[string]any{}, Categories: cats, Items: []itemDoc{}}
			docs[name] = doc
		}

		d := itemDoc{ID: it.ID, Path: it.Path, Annotations: []annotationDoc{}}
		if it.Size != (image.Point{}) {
			d.Image = &imageDoc{Size: [2]int{it.Size.X, it.Size.Y}}
		}
		for _, ann := range it.Annotations {
			ad := encodeAnnotation(ann)
			if m, ok := ann.(*datumo.Mask); ok && m.Image != nil {
				maskID++
				id, img := maskID, m.Image
				ad.MaskID = &id
				g.Go(func() error {
					r, err := img.Resolve()
					if err != nil {
						return err
					}
					return datumo.PutPNG(gctx, dst, maskPath(id), &r.Gray)
				})
			}
			d.Annotations = append(d.Annotations, ad)
		}
		if c.saveImages && it.HasImage() {
			p, img := imagePath(name, it.ID), it.Image
			g.Go(func() error { return datumo.WriteImage(gctx, dst, p, img) })
		}
		doc.Items = append(doc.Items, d)
		items++
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(docs) == 0 {
		docs[datumo.DefaultSubset] = &document{Info: map[string]any{}, Categories: cats, Items: []itemDoc{}}
	}
	for _, name := range slices.Sorted(maps.Keys(docs)) {
		data, err := jsonCodec.Marshal(docs[name])
		if err != nil {
			return err
		}
		if err := dst.Put(ctx, subsetPath(name), bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}

func encodeAnnotation(ann datumo.Annotation) annotationDoc {
	b := ann.Base()
	d := annotationDoc{
		ID:         b.ID,
		Type:       ann.Kind().String(),
		Attributes: b.Attributes,
		Group:      b.Group,
	}
	if d.Attributes == nil {
		d.Attributes = datumo.Attributes{}
	}
	if b.HasLabel() {
		label := b.Label
		d.LabelID = &label
	}
	switch a := ann.(type) {
	case *datumo.Points:
		d.Points = a.Points
		if a.Visibility != nil {
			d.Visibility = make([]int, len(a.Visibility))
			for i, v := range a.Visibility {
				d.Visibility[i] = int(v)
			}
		}
	case *datumo.Polygon:
		d.Points = a.Points
	case *datumo.PolyLine:
		d.Points = a.Points
	case *datumo.Bbox:
		d.Bbox = []float64{a.X, a.Y, a.W, a.H}
	case *datumo.Caption:
		caption := a.Caption
		d.Caption = &caption
	}
	return d
}

func encodeCategories(cats datumo.Categories) categoriesDoc {
	var d categoriesDoc
	if lc := cats.Labels(); lc != nil {
		d.Label = &labelCategoriesDoc{Labels: slices.Clone(lc.Items)}
		if d.Label.Labels == nil {
			d.Label.Labels = []datumo.LabelDef{}
		}
	}
	if mc := cats.Masks(); mc != nil {
		d.Mask = &maskCategoriesDoc{Colormap: []colorDoc{}}
		for _, id := range slices.Sorted(maps.Keys(mc.Colormap)) {
			c := mc.Colormap[id]
			d.Mask.Colormap = append(d.Mask.Colormap, colorDoc{LabelID: id, R: c.R, G: c.G, B: c.B})
		}
	}
	if pc := cats.Points(); pc != nil {
		d.Points = &pointsCategoriesDoc{Items: []pointsTemplateDoc{}}
		for _, id := range slices.Sorted(maps.Keys(pc.Items)) {
			t := pc.Items[id]
			d.Points.Items = append(d.Points.Items, pointsTemplateDoc{LabelID: id, Labels: t.Labels, Adjacent: t.Adjacent})
		}
	}
	return d
}
