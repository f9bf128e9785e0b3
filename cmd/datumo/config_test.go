package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
	"github.com/justapithecus/datumo/datumo/formats/builtin"
	"github.com/justapithecus/datumo/datumo/minio"
	"github.com/justapithecus/datumo/datumo/s3"
)

func TestLoadSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datumo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
log_format: json
archive: tar.lz4
snapshots: false
aliases:
  Darknet: yolo
s3:
  region: eu-west-1
  endpoint: http://localhost:4566
  path_style: true
minio:
  access_key: minioadmin
`), 0o644))
	t.Setenv("DATUMO_S3_REGION", "us-east-2")
	t.Setenv("DATUMO_MINIO_SECRET_KEY", "secret")

	got, err := loadSettings(path, nil)
	require.NoError(t, err)

	want := settings{
		LogLevel:  slog.LevelDebug,
		LogJSON:   true,
		Archive:   datumo.ArchiveTarLZ4,
		Aliases:   map[string]string{"darknet": "yolo"},
		Snapshots: false,
		Stores: builtin.StoreConfig{
			S3:    s3.ClientConfig{Region: "us-east-2", Endpoint: "http://localhost:4566", UsePathStyle: true},
			MinIO: minio.Credentials{AccessKey: "minioadmin", SecretKey: "secret"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "yolo", got.resolveFormat("DARKNET"))
	assert.Equal(t, "voc", got.resolveFormat("voc"))
}

func TestLoadSettings_Errors(t *testing.T) {
	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	for name, doc := range map[string]string{
		"level":   "log_level: loud\n",
		"format":  "log_format: xml\n",
		"archive": "archive: rar\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "datumo.yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
			_, err := loadSettings(path, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseOptions(t *testing.T) {
	got, err := parseOptions([]string{"save_images=true", "workers=4", "image_size=640,480", "subset=train", "score=0.5"})
	require.NoError(t, err)
	want := datumo.Options{
		"save_images": true,
		"workers":     4,
		"image_size":  []any{640, 480},
		"subset":      "train",
		"score":       0.5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	_, err = parseOptions([]string{"novalue"})
	assert.Error(t, err)
}
