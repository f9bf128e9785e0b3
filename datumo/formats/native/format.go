// Package native implements the project's own dataset format: one JSON
// document per subset plus PNG masks and images.
//
// Layout, relative to the dataset root:
//
//	annotations/<subset>.json
//	annotations/masks/<mask_id>.png
//	images/<subset>/<item_id>.png
package native

import (
	"path"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/justapithecus/datumo/datumo"
)

// Layout paths.
const (
	AnnotationsDir = "annotations"
	MasksDir       = "annotations/masks"
	ImagesDir      = "images"
	MaskExt        = ".png"
	ImageExt       = ".png"
)

// OptSubset restricts an extractor to one subset file.
const OptSubset = "subset"

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Module returns the extractor, importer and converter of the native format.
func Module() datumo.Module {
	return datumo.Module{
		Name: datumo.DefaultFormat,
		Items: []datumo.Plugin{
			{Kind: datumo.PluginExtractor, Name: datumo.DefaultFormat, Factory: datumo.ExtractorFactory(NewExtractor)},
			{Kind: datumo.PluginImporter, Name: datumo.DefaultFormat, Factory: datumo.ImporterFactory(NewImporter)},
			{Kind: datumo.PluginConverter, Name: datumo.DefaultFormat, Factory: datumo.ConverterFactory(NewConverter)},
		},
	}
}

// -----------------------------------------------------------------------------
// Document schema
// -----------------------------------------------------------------------------

type document struct {
	Info       map[string]any `json:"info"`
	Categories categoriesDoc  `json:"categories"`
	Items      []itemDoc      `json:"items"`
}

type categoriesDoc struct {
	Label  *labelCategoriesDoc  `json:"label,omitempty"`
	Mask   *maskCategoriesDoc   `json:"mask,omitempty"`
	Points *pointsCategoriesDoc `json:"points,omitempty"`
}

type labelCategoriesDoc struct {
	Labels []datumo.LabelDef `json:"labels"`
}

type maskCategoriesDoc struct {
	Colormap []colorDoc `json:"colormap"`
}

type colorDoc struct {
	LabelID int   `json:"label_id"`
	R       uint8 `json:"r"`
	G       uint8 `json:"g"`
	B       uint8 `json:"b"`
}

type pointsCategoriesDoc struct {
	Items []pointsTemplateDoc `json:"items"`
}

type pointsTemplateDoc struct {
	LabelID  int      `json:"label_id"`
	Labels   []string `json:"labels"`
	Adjacent [][2]int `json:"adjacent"`
}

type itemDoc struct {
	ID          string          `json:"id"`
	Path        []string        `json:"path,omitempty"`
	Image       *imageDoc       `json:"image,omitempty"`
	Annotations []annotationDoc `json:"annotations"`
}

type imageDoc struct {
	// Size is [width, height].
	Size [2]int `json:"size"`
}

type annotationDoc struct {
	ID         int               `json:"id"`
	Type       string            `json:"type"`
	Attributes datumo.Attributes `json:"attributes"`
	Group      int               `json:"group"`
	LabelID    *int              `json:"label_id,omitempty"`
	MaskID     *int              `json:"mask_id,omitempty"`
	Points     []float64         `json:"points,omitempty"`
	Visibility []int             `json:"visibility,omitempty"`
	Bbox       []float64         `json:"bbox,omitempty"`
	Caption    *string           `json:"caption,omitempty"`
}

func subsetPath(subset string) string {
	return path.Join(AnnotationsDir, subset+".json")
}

func imagePath(subset, id string) string {
	return path.Join(ImagesDir, subset, id+ImageExt)
}

func maskPath(id int) string {
	return path.Join(MasksDir, strconv.Itoa(id)+MaskExt)
}

// subsetFromPath returns the subset name of "annotations/<subset>.json", or
// false for any other path.
func subsetFromPath(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, AnnotationsDir+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, ".json")
	return name, ok && name != ""
}
