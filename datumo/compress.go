package datumo

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor wraps streams with a compression format.
type Compressor interface {
	// Name returns the compressor identifier (for example, "gzip").
	Name() string

	// Extension returns the file suffix (for example, ".gz"), or "".
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Gzip Compressor
// -----------------------------------------------------------------------------

type gzipCompressor struct{}

// NewGzipCompressor creates a gzip compressor.
func NewGzipCompressor() Compressor { return gzipCompressor{} }

func (gzipCompressor) Name() string      { return "gzip" }
func (gzipCompressor) Extension() string { return ".gz" }

func (gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd Compressor
// -----------------------------------------------------------------------------

type zstdCompressor struct{}

// NewZstdCompressor creates a Zstandard compressor.
func NewZstdCompressor() Compressor { return zstdCompressor{} }

func (zstdCompressor) Name() string      { return "zstd" }
func (zstdCompressor) Extension() string { return ".zst" }

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// LZ4 Compressor
// -----------------------------------------------------------------------------

type lz4Compressor struct{}

// NewLZ4Compressor creates an LZ4 frame compressor, tuned for speed over
// ratio.
func NewLZ4Compressor() Compressor { return lz4Compressor{} }

func (lz4Compressor) Name() string      { return "lz4" }
func (lz4Compressor) Extension() string { return ".lz4" }

func (lz4Compressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Compressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// -----------------------------------------------------------------------------
// NoOp Compressor
// -----------------------------------------------------------------------------

type noopCompressor struct{}

// NewNoOpCompressor creates a pass-through compressor.
func NewNoOpCompressor() Compressor { return noopCompressor{} }

func (noopCompressor) Name() string      { return "noop" }
func (noopCompressor) Extension() string { return "" }

func (noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
