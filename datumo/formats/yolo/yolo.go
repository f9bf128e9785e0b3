// Package yolo reads and writes darknet-style YOLO detection datasets.
//
// Layout, relative to the dataset root:
//
//	obj.names                  one label per line, line index = label id
//	<id>.txt                   items of the default subset
//	obj_<subset>_data/<id>.txt items of other subsets
//
// Each .txt line is "<label> <cx> <cy> <w> <h>" with coordinates normalized
// to the image size. Images sit next to their .txt file.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/justapithecus/datumo/datumo"
)

// Name is the registry name of the format.
const Name = "yolo"

// Layout names.
const (
	NamesFile     = "obj.names"
	NamesExt      = ".names"
	AnnotationExt = ".txt"
	subsetPrefix  = "obj_"
	subsetSuffix  = "_data"
)

// OptImageSize supplies [width, height] for items without a sibling image.
const OptImageSize = "image_size"

// Module returns the extractor, importer and converter of the format.
func Module() datumo.Module {
	return datumo.Module{
		Name: Name,
		Items: []datumo.Plugin{
			{Kind: datumo.PluginExtractor, Name: Name, Factory: datumo.ExtractorFactory(NewExtractor)},
			{Kind: datumo.PluginImporter, Name: Name, Factory: datumo.ImporterFactory(NewImporter)},
			{Kind: datumo.PluginConverter, Name: Name, Factory: datumo.ConverterFactory(NewConverter)},
		},
	}
}

// subsetDir returns the directory holding the subset's files.
func subsetDir(subset string) string {
	if subset == "" || subset == datumo.DefaultSubset {
		return ""
	}
	return subsetPrefix + subset + subsetSuffix
}

// splitItemPath maps an annotation file path to (subset, item id).
func splitItemPath(p string) (string, string) {
	stem := strings.TrimSuffix(p, path.Ext(p))
	first, rest, ok := strings.Cut(stem, "/")
	if ok && strings.HasPrefix(first, subsetPrefix) && strings.HasSuffix(first, subsetSuffix) {
		name := strings.TrimSuffix(strings.TrimPrefix(first, subsetPrefix), subsetSuffix)
		if name != "" {
			return name, rest
		}
	}
	return datumo.DefaultSubset, stem
}

// findNames returns the single root-level *.names file.
func findNames(ctx context.Context, store datumo.Store) (string, error) {
	paths, err := store.List(ctx, "")
	if err != nil {
		return "", err
	}
	var found []string
	for _, p := range paths {
		if !strings.Contains(p, "/") && path.Ext(p) == NamesExt {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("*%s file: %w", NamesExt, datumo.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("*%s file: %w: %v", NamesExt, datumo.ErrAmbiguous, found)
	}
}

// -----------------------------------------------------------------------------
// Importer
// -----------------------------------------------------------------------------

// Importer registers the whole layout as a single source.
type Importer struct{}

// NewImporter takes no options.
func NewImporter(datumo.Options) (datumo.Importer, error) { return Importer{}, nil }

// Import implements datumo.Importer. The source is named after the last
// element of url.
func (Importer) Import(ctx context.Context, store datumo.Store, url string, opts datumo.Options, reg datumo.SourceRegistry) error {
	if _, err := findNames(ctx, store); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	name := path.Base(strings.TrimRight(strings.ReplaceAll(url, `\`, "/"), "/"))
	if name == "" || name == "." || name == "/" {
		name = Name
	}
	return reg.AddSource(name, datumo.Source{Name: name, URL: url, Format: Name, Options: opts.Clone()})
}

// Detect reports whether store has a root-level *.names file. Several of them
// still match so the extractor can report the ambiguity.
func (Importer) Detect(ctx context.Context, store datumo.Store) (bool, error) {
	_, err := findNames(ctx, store)
	switch {
	case err == nil, errors.Is(err, datumo.ErrAmbiguous):
		return true, nil
	case errors.Is(err, datumo.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
