package datumo

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ArchiveFormat selects the container used to ship an exported dataset.
type ArchiveFormat string

// Supported archive formats.
const (
	ArchiveZip     ArchiveFormat = "zip"
	ArchiveTarGzip ArchiveFormat = "tar.gz"
	ArchiveTarZstd ArchiveFormat = "tar.zst"
	ArchiveTarLZ4  ArchiveFormat = "tar.lz4"
)

// ParseArchiveFormat accepts a format name or a file name ending in one.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	s = strings.ToLower(s)
	for _, f := range []ArchiveFormat{ArchiveZip, ArchiveTarGzip, ArchiveTarZstd, ArchiveTarLZ4} {
		if s == string(f) || strings.HasSuffix(s, "."+string(f)) {
			return f, nil
		}
	}
	if s == "tgz" || strings.HasSuffix(s, ".tgz") {
		return ArchiveTarGzip, nil
	}
	return "", fmt.Errorf("archive format %q: %w", s, ErrNotFound)
}

// Extension returns the file suffix for the format, including the dot.
func (f ArchiveFormat) Extension() string { return "." + string(f) }

func (f ArchiveFormat) compressor() (Compressor, error) {
	switch f {
	case ArchiveTarGzip:
		return NewGzipCompressor(), nil
	case ArchiveTarZstd:
		return NewZstdCompressor(), nil
	case ArchiveTarLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("archive format %q: %w", f, ErrNotFound)
	}
}

// Pack writes every object of store to w in the given archive format.
func Pack(ctx context.Context, store Store, w io.Writer, format ArchiveFormat) error {
	paths, err := store.List(ctx, "")
	if err != nil {
		return err
	}
	if format == ArchiveZip {
		return packZip(ctx, store, paths, w)
	}
	comp, err := format.compressor()
	if err != nil {
		return err
	}
	cw, err := comp.Compress(w)
	if err != nil {
		return err
	}
	if err := packTar(ctx, store, paths, cw); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func packZip(ctx context.Context, store Store, paths []string, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		fw, err := zw.Create(p)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if err := copyFrom(ctx, store, p, fw); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func packTar(ctx context.Context, store Store, paths []string, w io.Writer) error {
	tw := tar.NewWriter(w)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readAll(ctx, store, p)
		if err != nil {
			return err
		}
		hdr := &tar.Header{Name: p, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}
	return tw.Close()
}

// Unpack extracts an archive into dst. Entries that would escape the store
// root are rejected by the store.
func Unpack(ctx context.Context, r io.ReaderAt, size int64, format ArchiveFormat, dst Store) error {
	if format == ArchiveZip {
		zr, err := zip.NewReader(r, size)
		if err != nil {
			return Malformed("zip archive", err)
		}
		for _, f := range zr.File {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return Malformed(f.Name, err)
			}
			err = dst.Put(ctx, f.Name, rc)
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
		return nil
	}

	comp, err := format.compressor()
	if err != nil {
		return err
	}
	cr, err := comp.Decompress(io.NewSectionReader(r, 0, size))
	if err != nil {
		return Malformed(string(format)+" archive", err)
	}
	defer closer(cr)()
	tr := tar.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return Malformed(string(format)+" archive", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := dst.Put(ctx, hdr.Name, tr); err != nil {
			return err
		}
	}
}

func copyFrom(ctx context.Context, store Store, p string, w io.Writer) error {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return err
	}
	defer closer(rc)()
	_, err = io.Copy(w, rc)
	return err
}

func readAll(ctx context.Context, store Store, p string) ([]byte, error) {
	rc, err := store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer closer(rc)()
	return io.ReadAll(rc)
}
