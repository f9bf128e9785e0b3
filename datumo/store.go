package datumo

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidPath indicates a path that would escape the storage root.
var ErrInvalidPath = errors.New("invalid path: escapes storage root")

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore implements Store on the local filesystem.
type fsStore struct {
	root string
}

// NewFS creates a filesystem-backed Store rooted at dir, creating dir when
// missing.
func NewFS(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &fsStore{root: dir}, nil
}

// Put writes through a temporary file and renames it into place, so readers
// never observe a partial object.
func (f *fsStore) Put(_ context.Context, p string, r io.Reader) error {
	fullPath, err := f.safePathForFile(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *fsStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	fullPath, err := f.safePathForFile(p)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *fsStore) Exists(_ context.Context, p string) (bool, error) {
	fullPath, err := f.safePathForFile(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *fsStore) List(_ context.Context, prefix string) ([]string, error) {
	searchPath, err := f.safePathForPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = filepath.Walk(searchPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (f *fsStore) Delete(_ context.Context, p string) error {
	fullPath, err := f.safePathForFile(p)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *fsStore) safePathForFile(p string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == "." || p == "" {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	fullPath := filepath.Join(f.root, cleaned)
	absRoot, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return fullPath, nil
}

func (f *fsStore) safePathForPrefix(p string) (string, error) {
	if p == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == "." {
		return f.root, nil
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(f.root, cleaned), nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore implements Store with an in-memory map.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Store. It is safe for concurrent use and
// backs export archives and tests.
func NewMemory() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, p string, r io.Reader) error {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return ErrInvalidPath
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[normalized] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return nil, ErrInvalidPath
	}
	m.mu.RLock()
	data, exists := m.data[normalized]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *memoryStore) Exists(_ context.Context, p string) (bool, error) {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return false, ErrInvalidPath
	}
	m.mu.RLock()
	_, exists := m.data[normalized]
	m.mu.RUnlock()
	return exists, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	normalized, valid := normalizePathForPrefix(prefix)
	if !valid {
		return nil, ErrInvalidPath
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for p := range m.data {
		if underPrefix(p, normalized) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

func (m *memoryStore) Delete(_ context.Context, p string) error {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return ErrInvalidPath
	}
	m.mu.Lock()
	delete(m.data, normalized)
	m.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------
// Prefixed Store
// -----------------------------------------------------------------------------

// prefixStore scopes every path of an underlying Store under a directory.
type prefixStore struct {
	base   Store
	prefix string
}

// Sub returns a Store whose root is dir inside base. Nested Sub calls
// collapse into one prefix.
func Sub(base Store, dir string) Store {
	dir, _ = normalizePathForPrefix(dir)
	if dir == "" {
		return base
	}
	if ps, ok := base.(*prefixStore); ok {
		return &prefixStore{base: ps.base, prefix: path.Join(ps.prefix, dir)}
	}
	return &prefixStore{base: base, prefix: dir}
}

func (s *prefixStore) full(p string) (string, error) {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return "", ErrInvalidPath
	}
	return path.Join(s.prefix, normalized), nil
}

func (s *prefixStore) Put(ctx context.Context, p string, r io.Reader) error {
	full, err := s.full(p)
	if err != nil {
		return err
	}
	return s.base.Put(ctx, full, r)
}

func (s *prefixStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := s.full(p)
	if err != nil {
		return nil, err
	}
	return s.base.Get(ctx, full)
}

func (s *prefixStore) Exists(ctx context.Context, p string) (bool, error) {
	full, err := s.full(p)
	if err != nil {
		return false, err
	}
	return s.base.Exists(ctx, full)
}

func (s *prefixStore) List(ctx context.Context, prefix string) ([]string, error) {
	normalized, valid := normalizePathForPrefix(prefix)
	if !valid {
		return nil, ErrInvalidPath
	}
	paths, err := s.base.List(ctx, path.Join(s.prefix, normalized))
	if err != nil {
		return nil, err
	}
	out := paths[:0]
	for _, p := range paths {
		if rel, ok := strings.CutPrefix(p, s.prefix+"/"); ok {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (s *prefixStore) Delete(ctx context.Context, p string) error {
	full, err := s.full(p)
	if err != nil {
		return err
	}
	return s.base.Delete(ctx, full)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// CopyStore copies every object of src under prefix into dst.
func CopyStore(ctx context.Context, src, dst Store, prefix string) error {
	paths, err := src.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyObject(ctx, src, dst, p); err != nil {
			return err
		}
	}
	return nil
}

func copyObject(ctx context.Context, src, dst Store, p string) error {
	rc, err := src.Get(ctx, p)
	if err != nil {
		return err
	}
	defer closer(rc)()
	return dst.Put(ctx, p, rc)
}

// underPrefix matches whole path segments: "a/b" is under "a" but "ab" is not.
func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/")
}

func normalizePathForFile(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	cleaned := path.Clean(filepath.ToSlash(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." || cleaned == "" {
		return "", false
	}
	return cleaned, true
}

func normalizePathForPrefix(p string) (string, bool) {
	if p == "" {
		return "", true
	}
	cleaned := path.Clean(filepath.ToSlash(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." || cleaned == "" {
		return "", true
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
