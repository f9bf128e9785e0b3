package minio

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/datumo/datumo"
)

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "b", "/root/")
	k, err := s.key("annotations/default.json")
	require.NoError(t, err)
	assert.Equal(t, "root/annotations/default.json", k)

	for _, p := range []string{"", ".", "..", "../x", "a/../../x"} {
		_, err := s.key(p)
		assert.ErrorIs(t, err, datumo.ErrInvalidPath, "path %q", p)
	}
}

func TestParseURL(t *testing.T) {
	u, err := url.Parse("minio://localhost:9000/datasets/voc/2012?secure=false")
	require.NoError(t, err)
	endpoint, bucket, prefix, secure, err := parseURL(u)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", endpoint)
	assert.Equal(t, "datasets", bucket)
	assert.Equal(t, "voc/2012", prefix)
	assert.False(t, secure)

	u, err = url.Parse("minio://localhost:9000")
	require.NoError(t, err)
	_, _, _, _, err = parseURL(u)
	assert.Error(t, err)
}

// TestStore_Integration requires a running MinIO instance.
func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}
	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	const bucket = "test-datumo"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "it")
	require.NoError(t, store.Put(ctx, "a/b.txt", strings.NewReader("hello")))

	rc, err := store.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "a/b.txt")

	require.NoError(t, store.Delete(ctx, "a/b.txt"))
	_, err = store.Get(ctx, "a/b.txt")
	assert.ErrorIs(t, err, datumo.ErrNotFound)
}
