package datumo

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fs,
		"memory": NewMemory(),
		"sub":    Sub(NewMemory(), "nested/root"),
	}
}

func read(t *testing.T, s Store, p string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), p)
	require.NoError(t, err)
	defer closer(rc)()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "a/b.txt", strings.NewReader("one")))
			require.NoError(t, s.Put(ctx, "a/b.txt", strings.NewReader("two")))
			assert.Equal(t, "two", read(t, s, "a/b.txt"))

			ok, err := s.Exists(ctx, "a/b.txt")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_Missing(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "nope.txt")
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Exists(ctx, "nope.txt")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete(ctx, "nope.txt"))
		})
	}
}

func TestStore_InvalidPath(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"", ".", "..", "../x", "a/../../x"} {
				assert.ErrorIs(t, s.Put(ctx, p, strings.NewReader("x")), ErrInvalidPath, "put %q", p)
				_, err := s.Get(ctx, p)
				assert.ErrorIs(t, err, ErrInvalidPath, "get %q", p)
			}
			_, err := s.List(ctx, "../up")
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"ab.txt", "a/1.txt", "a/2/3.txt", "b.txt"} {
				require.NoError(t, s.Put(ctx, p, strings.NewReader(p)))
			}

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"ab.txt", "a/1.txt", "a/2/3.txt", "b.txt"}, all)

			sub, err := s.List(ctx, "a")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a/1.txt", "a/2/3.txt"}, sub)

			none, err := s.List(ctx, "zzz")
			require.NoError(t, err)
			assert.Empty(t, none)

			require.NoError(t, s.Delete(ctx, "a/1.txt"))
			sub, err = s.List(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/2/3.txt"}, sub)
		})
	}
}

func TestSub_ScopesPaths(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	sub := Sub(Sub(base, "x"), "y")

	require.NoError(t, sub.Put(ctx, "f.txt", strings.NewReader("v")))
	assert.Equal(t, "v", read(t, base, "x/y/f.txt"))
	assert.Same(t, base, Sub(base, ""))
}

func TestCopyStore(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	for _, p := range []string{"keep/1", "keep/2", "skip/3"} {
		require.NoError(t, src.Put(ctx, p, strings.NewReader(p)))
	}
	dst, err := NewFS(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, CopyStore(ctx, src, dst, "keep"))
	got, err := dst.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep/1", "keep/2"}, got)
	assert.Equal(t, "keep/2", read(t, dst, "keep/2"))
}
