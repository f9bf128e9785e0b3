package tabular

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/parquet-go/parquet-go"

	"github.com/justapithecus/datumo/datumo"
)

// Converter writes a dataset as a single Parquet table.
type Converter struct {
	saveImages  bool
	compression parquet.WriterOption
}

// NewConverter recognizes "save_images" and "compression".
func NewConverter(opts datumo.Options) (datumo.Converter, error) {
	save, err := opts.SaveImages()
	if err != nil {
		return nil, err
	}
	name, err := opts.String(OptCompression, "snappy")
	if err != nil {
		return nil, err
	}
	comp, err := compressionOption(name)
	if err != nil {
		return nil, err
	}
	return &Converter{saveImages: save, compression: comp}, nil
}

func compressionOption(name string) (parquet.WriterOption, error) {
	switch name {
	case "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("option %q: unknown codec %q", OptCompression, name)
	}
}

// Name implements datumo.Converter.
func (c *Converter) Name() string { return Name }

// Convert implements datumo.Converter. Every annotation variant has a
// column mapping, so nothing is skipped.
func (c *Converter) Convert(ctx context.Context, src datumo.Extractor, dst datumo.Store) (err error) {
	log := datumo.LoggerFrom(ctx)
	var items int
	defer func() { log.LogConvert(ctx, Name, items, 0, err) }()

	data, err := jsonCodec.MarshalIndent(encodeCategories(src.Categories()), "", "  ")
	if err != nil {
		return err
	}
	if err := dst.Put(ctx, CategoriesFile, bytes.NewReader(data)); err != nil {
		return err
	}

	var rows []annotationRow
	for it, ierr := range src.Items(ctx) {
		if ierr != nil {
			return ierr
		}
		itemRows, err := encodeItem(it)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		rows = append(rows, itemRows...)
		if c.saveImages && it.HasImage() {
			if err := datumo.WriteImage(ctx, dst, imageStem(it.SubsetName(), it.ID)+".png", it.Image); err != nil {
				return err
			}
		}
		items++
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[annotationRow](&buf, c.compression)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close table: %w", err)
	}
	return dst.Put(ctx, TableFile, &buf)
}

// encodeItem returns one row per annotation, or a single placeholder row
// when the item has none.
func encodeItem(it *datumo.DatasetItem) ([]annotationRow, error) {
	base := annotationRow{
		Subset: it.SubsetName(),
		ItemID: it.ID,
		Path:   it.Path,
		Width:  int32(it.Size.X),
		Height: int32(it.Size.Y),
		Label:  datumo.NoLabel,
	}
	if len(it.Annotations) == 0 {
		return []annotationRow{base}, nil
	}

	rows := make([]annotationRow, 0, len(it.Annotations))
	for _, ann := range it.Annotations {
		row := base
		b := ann.Base()
		row.Kind = ann.Kind().String()
		row.ID = int64(b.ID)
		row.Label = int32(b.Label)
		row.Group = int64(b.Group)
		if len(b.Attributes) > 0 {
			attrs, err := jsonCodec.MarshalToString(b.Attributes)
			if err != nil {
				return nil, err
			}
			row.Attributes = attrs
		}

		switch a := ann.(type) {
		case *datumo.Label:
		case *datumo.Bbox:
			row.Points = []float64{a.X, a.Y, a.W, a.H}
		case *datumo.Polygon:
			row.Points = a.Points
		case *datumo.PolyLine:
			row.Points = a.Points
		case *datumo.Points:
			row.Points = a.Points
			for _, v := range a.Visibility {
				row.Visibility = append(row.Visibility, int32(v))
			}
		case *datumo.Caption:
			row.Caption = a.Caption
		case *datumo.Mask:
			if a.Image != nil {
				r, err := a.Image.Resolve()
				if err != nil {
					return nil, err
				}
				var buf bytes.Buffer
				if err := png.Encode(&buf, &r.Gray); err != nil {
					return nil, err
				}
				row.Mask = buf.Bytes()
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sizeOf(row annotationRow) image.Point {
	return image.Pt(int(row.Width), int(row.Height))
}
