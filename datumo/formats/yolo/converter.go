package yolo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Converter writes bounding boxes in YOLO form. Other annotation kinds are
// skipped.
type Converter struct {
	saveImages bool
}

// NewConverter recognizes "save_images".
func NewConverter(opts datumo.Options) (datumo.Converter, error) {
	save, err := opts.SaveImages()
	if err != nil {
		return nil, err
	}
	return &Converter{saveImages: save}, nil
}

// Name implements datumo.Converter.
func (c *Converter) Name() string { return Name }

// Convert implements datumo.Converter.
func (c *Converter) Convert(ctx context.Context, src datumo.Extractor, dst datumo.Store) (err error) {
	log := datumo.LoggerFrom(ctx)
	var items, skipped int
	defer func() { log.LogConvert(ctx, Name, items, skipped, err) }()

	var names []string
	if lc := src.Categories().Labels(); lc != nil {
		for _, d := range lc.Items {
			names = append(names, d.Name)
		}
	}
	if err := dst.Put(ctx, NamesFile, strings.NewReader(strings.Join(names, "\n"))); err != nil {
		return err
	}

	for it, ierr := range src.Items(ctx) {
		if ierr != nil {
			return ierr
		}
		stem := path.Join(subsetDir(it.Subset), it.ID)
		size, err := itemSize(it)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		for _, ann := range it.Annotations {
			box, ok := ann.(*datumo.Bbox)
			if !ok || !box.HasLabel() {
				log.LogSkip(ctx, Name, it.ID, ann.Kind())
				skipped++
				continue
			}
			if size == (image.Point{}) {
				return fmt.Errorf("item %s: image size: %w", it.ID, datumo.ErrNotFound)
			}
			x0, y0, x1, y1 := box.Corners()
			cx, cy, nw, nh := datumo.ToYOLO(x0, y0, x1, y1, float64(size.X), float64(size.Y))
			fmt.Fprintf(&buf, "%d %.6f %.6f %.6f %.6f\n", box.Label, cx, cy, nw, nh)
		}
		if err := dst.Put(ctx, stem+AnnotationExt, &buf); err != nil {
			return err
		}
		if c.saveImages && it.HasImage() {
			if err := datumo.WriteImage(ctx, dst, stem+".png", it.Image); err != nil {
				return err
			}
		}
		items++
	}
	return nil
}

// itemSize prefers the recorded size and decodes the image otherwise.
func itemSize(it *datumo.DatasetItem) (image.Point, error) {
	if it.Size != (image.Point{}) || !it.HasImage() {
		return it.Size, nil
	}
	img, err := it.Image.Resolve()
	if err != nil {
		return image.Point{}, err
	}
	return img.Bounds().Size(), nil
}
