// Package datumo ingests annotated computer-vision datasets, merges them with
// provenance tracking, and re-emits them in any registered format.
//
// Datumo focuses on data integration: one canonical annotation model,
// pluggable codecs, an overlay merge, and write-back routing to the source an
// item came from. It does not serve requests or manage version control.
package datumo

import (
	"context"
	"fmt"
	"image"
	"io"
	"iter"
	"net/url"
)

// DefaultSubset names the partition used for items whose source has none.
const DefaultSubset = "default"

// DefaultFormat is the registry name of the native format. Project-owned
// datasets are always persisted with it.
const DefaultFormat = "datumo"

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the storage a codec reads from or writes to.
//
// Implementations may target filesystems, memory, S3, or other object stores.
// Paths are slash-separated and relative to the store root.
type Store interface {
	// Put writes data to the given path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// StoreFactory opens a Store for a parsed location URL.
type StoreFactory func(ctx context.Context, u *url.URL) (Store, error)

// -----------------------------------------------------------------------------
// Codec contracts
// -----------------------------------------------------------------------------

// Extractor is a read-only codec producing a dataset from one source.
//
// Items is single-pass restartable: each call re-reads from the backing
// source. Independent iterations may run concurrently; each opens and closes
// its own handles.
type Extractor interface {
	// Items yields every item in subset order. An error ends the sequence.
	Items(ctx context.Context) iter.Seq2[*DatasetItem, error]

	// Subsets returns the subset names in iteration order.
	Subsets() []string

	// Categories returns the dataset-wide category descriptors.
	Categories() Categories

	// Len returns the number of items.
	Len() int
}

// Converter is a write codec serializing a dataset to one layout.
//
// Converters skip annotation kinds their format cannot represent.
type Converter interface {
	// Name returns the format identifier (for example, "yolo").
	Name() string

	// Convert writes a self-describing, re-importable representation of src.
	Convert(ctx context.Context, src Extractor, dst Store) error
}

// Source describes one input of a project.
type Source struct {
	Name    string  `yaml:"name"`
	URL     string  `yaml:"url,omitempty"`
	Format  string  `yaml:"format,omitempty"`
	Options Options `yaml:"options,omitempty"`
}

// SourceRegistry receives the sources an Importer discovers.
type SourceRegistry interface {
	AddSource(name string, src Source) error
}

// Importer resolves a location into one or more sources.
//
// An importer splits a layout into ready-to-use sources (for example, one
// source per VOC task directory) and registers them with reg.
type Importer interface {
	Import(ctx context.Context, store Store, url string, opts Options, reg SourceRegistry) error
}

// Launcher runs a model over one image and returns its predictions.
type Launcher interface {
	Launch(ctx context.Context, img image.Image) ([]Annotation, error)
}

// ExtractorFactory constructs an Extractor over a Store.
type ExtractorFactory func(ctx context.Context, store Store, opts Options) (Extractor, error)

// ImporterFactory constructs an Importer.
type ImporterFactory func(opts Options) (Importer, error)

// ConverterFactory constructs a Converter. The "save_images" option is
// recognized by every built-in converter.
type ConverterFactory func(opts Options) (Converter, error)

// LauncherFactory constructs a Launcher.
type LauncherFactory func(opts Options) (Launcher, error)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a registry miss or a missing required file.
	ErrNotFound = errNotFound{}

	// ErrAmbiguous indicates several candidates where exactly one is required.
	ErrAmbiguous = errAmbiguous{}

	// ErrMalformedInput indicates an unparsable line, XML or JSON document.
	ErrMalformedInput = errMalformedInput{}

	// ErrUnsupportedAnnotation indicates an annotation kind a format cannot
	// represent. Converters recover from it locally.
	ErrUnsupportedAnnotation = errUnsupportedAnnotation{}

	// ErrCategoryConflict indicates sources disagree on a category set.
	ErrCategoryConflict = errCategoryConflict{}

	// ErrDecodeFailure indicates a lazy image or mask failed to decode.
	ErrDecodeFailure = errDecodeFailure{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errAmbiguous struct{}

func (errAmbiguous) Error() string { return "ambiguous" }

type errMalformedInput struct{}

func (errMalformedInput) Error() string { return "malformed input" }

type errUnsupportedAnnotation struct{}

func (errUnsupportedAnnotation) Error() string { return "unsupported annotation" }

type errCategoryConflict struct{}

func (errCategoryConflict) Error() string {
	return "category conflict: merging different categories is not supported"
}

type errDecodeFailure struct{}

func (errDecodeFailure) Error() string { return "decode failure" }

// ConstructionError reports a plugin factory that was found but failed.
type ConstructionError struct {
	Kind PluginKind
	Name string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("datumo: construct %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Malformed wraps a parse failure at location with ErrMalformedInput.
func Malformed(location string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedInput, location)
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedInput, location, err)
}
