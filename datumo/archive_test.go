package datumo

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"annotations/train.json": `{"items":[]}`,
		"images/train/a.png":     "png-bytes",
		"labels.txt":             "cat\ndog\n",
	}

	for _, format := range []ArchiveFormat{ArchiveZip, ArchiveTarGzip, ArchiveTarZstd, ArchiveTarLZ4} {
		t.Run(string(format), func(t *testing.T) {
			src := NewMemory()
			for p, v := range files {
				require.NoError(t, src.Put(ctx, p, strings.NewReader(v)))
			}

			var buf bytes.Buffer
			require.NoError(t, Pack(ctx, src, &buf, format))

			dst := NewMemory()
			require.NoError(t, Unpack(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), format, dst))

			got, err := dst.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, got, len(files))
			for p, v := range files {
				assert.Equal(t, v, read(t, dst, p))
			}
		})
	}
}

func TestUnpack_Garbage(t *testing.T) {
	data := []byte("definitely not an archive")
	for _, format := range []ArchiveFormat{ArchiveZip, ArchiveTarGzip} {
		err := Unpack(context.Background(), bytes.NewReader(data), int64(len(data)), format, NewMemory())
		assert.ErrorIs(t, err, ErrMalformedInput, "format %s", format)
	}
}

func TestParseArchiveFormat(t *testing.T) {
	for in, want := range map[string]ArchiveFormat{
		"zip":                  ArchiveZip,
		"export.ZIP":           ArchiveZip,
		"tar.gz":               ArchiveTarGzip,
		"out.tgz":              ArchiveTarGzip,
		"dataset.tar.zst":      ArchiveTarZstd,
		"/tmp/dataset.tar.lz4": ArchiveTarLZ4,
	} {
		got, err := ParseArchiveFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseArchiveFormat("rar")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ".tar.zst", ArchiveTarZstd.Extension())
}
