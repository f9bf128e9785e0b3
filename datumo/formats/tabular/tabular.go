// Package tabular stores datasets as one Parquet table with a row per
// annotation, for analysis in dataframe tools.
//
// Layout, relative to the dataset root:
//
//	annotations.parquet
//	categories.json
//	images/<subset>/<item_id>.png
//
// Items without annotations are kept as a single row with an empty kind.
package tabular

import (
	"image/color"
	"maps"
	"path"
	"slices"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/justapithecus/datumo/datumo"
)

// Name is the registry name of the format.
const Name = "parquet"

// Layout paths.
const (
	TableFile      = "annotations.parquet"
	CategoriesFile = "categories.json"
	ImagesDir      = "images"
)

// imageStem returns the image path of an item without extension.
func imageStem(subset, id string) string {
	return path.Join(ImagesDir, subset, id)
}

// OptCompression selects the Parquet page compression: "snappy" (default),
// "gzip", "zstd" or "none".
const OptCompression = "compression"

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Module returns the importer, extractor and converter of the format.
func Module() datumo.Module {
	return datumo.Module{
		Name: Name,
		Items: []datumo.Plugin{
			{Kind: datumo.PluginImporter, Name: Name, Factory: datumo.ImporterFactory(NewImporter)},
			{Kind: datumo.PluginExtractor, Name: Name, Factory: datumo.ExtractorFactory(NewExtractor)},
			{Kind: datumo.PluginConverter, Name: Name, Factory: datumo.ConverterFactory(NewConverter)},
		},
	}
}

// annotationRow is one table row. Geometry columns not used by Kind are
// left empty.
type annotationRow struct {
	Subset     string    `parquet:"subset"`
	ItemID     string    `parquet:"item_id"`
	Path       []string  `parquet:"path"`
	Width      int32     `parquet:"width"`
	Height     int32     `parquet:"height"`
	Kind       string    `parquet:"kind"`
	ID         int64     `parquet:"id"`
	Label      int32     `parquet:"label"`
	Group      int64     `parquet:"group"`
	Attributes string    `parquet:"attributes"`
	Points     []float64 `parquet:"points"`
	Visibility []int32   `parquet:"visibility"`
	Caption    string    `parquet:"caption"`
	// Mask holds a PNG-encoded gray raster.
	Mask []byte `parquet:"mask"`
}

// -----------------------------------------------------------------------------
// categories.json
// -----------------------------------------------------------------------------

type categoriesDoc struct {
	Labels   []datumo.LabelDef                `json:"labels,omitempty"`
	Colormap map[string][3]uint8              `json:"colormap,omitempty"`
	Points   map[string]datumo.PointsTemplate `json:"points,omitempty"`
}

func encodeCategories(cats datumo.Categories) categoriesDoc {
	var d categoriesDoc
	if lc := cats.Labels(); lc != nil {
		d.Labels = slices.Clone(lc.Items)
		if d.Labels == nil {
			d.Labels = []datumo.LabelDef{}
		}
	}
	if mc := cats.Masks(); mc != nil {
		d.Colormap = make(map[string][3]uint8, len(mc.Colormap))
		for idx, c := range mc.Colormap {
			d.Colormap[strconv.Itoa(idx)] = [3]uint8{c.R, c.G, c.B}
		}
	}
	if pc := cats.Points(); pc != nil {
		d.Points = make(map[string]datumo.PointsTemplate, len(pc.Items))
		for idx, t := range pc.Items {
			d.Points[strconv.Itoa(idx)] = t
		}
	}
	return d
}

func decodeCategories(d categoriesDoc) (datumo.Categories, error) {
	cats := datumo.Categories{}
	if d.Labels != nil {
		cats[datumo.KindLabel] = &datumo.LabelCategories{Items: d.Labels}
	}
	if d.Colormap != nil {
		cm := make(map[int]color.RGBA, len(d.Colormap))
		for _, k := range slices.Sorted(maps.Keys(d.Colormap)) {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return nil, err
			}
			c := d.Colormap[k]
			cm[idx] = color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
		}
		mc := datumo.NewMaskCategories(cm)
		if err := mc.Validate(); err != nil {
			return nil, err
		}
		cats[datumo.KindMask] = mc
	}
	if d.Points != nil {
		pc := &datumo.PointsCategories{}
		for k, t := range d.Points {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return nil, err
			}
			pc.Add(idx, t.Labels, t.Adjacent)
		}
		cats[datumo.KindPoints] = pc
	}
	return cats, nil
}
