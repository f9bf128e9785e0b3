// Package minio stores datasets in a MinIO bucket through minio-go.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/justapithecus/datumo/datumo"
)

// Scheme is the URL scheme served by Factory.
const Scheme = "minio"

// Store implements datumo.Store for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a store. rootPrefix is prepended to every key.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(rootPrefix, "/")}
}

func (s *Store) key(name string) (string, error) {
	if name == "" {
		return "", datumo.ErrInvalidPath
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", datumo.ErrInvalidPath
	}
	return path.Join(s.prefix, strings.TrimPrefix(cleaned, "/")), nil
}

// Put uploads r to name, replacing any existing object.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Get opens name for reading. Missing objects return datumo.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("minio: %s: %w", name, datumo.ErrNotFound)
		}
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

// Exists stats the object.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	key, err := s.key(name)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all object names with the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.prefix
	if prefix != "" {
		cleaned := path.Clean(prefix)
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return nil, datumo.ErrInvalidPath
		}
		if cleaned != "." {
			fullPrefix = path.Join(s.prefix, strings.TrimPrefix(cleaned, "/"))
		}
	}
	if fullPrefix != "" && fullPrefix == s.prefix {
		fullPrefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// -----------------------------------------------------------------------------
// Factory
// -----------------------------------------------------------------------------

// Credentials for static-key access.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Factory returns a datumo.StoreFactory for
// "minio://endpoint/bucket/prefix?secure=false" URLs.
func Factory(creds Credentials) datumo.StoreFactory {
	return func(_ context.Context, u *url.URL) (datumo.Store, error) {
		endpoint, bucket, prefix, secure, err := parseURL(u)
		if err != nil {
			return nil, err
		}
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
			Secure: secure,
		})
		if err != nil {
			return nil, err
		}
		return NewStore(client, bucket, prefix), nil
	}
}

func parseURL(u *url.URL) (endpoint, bucket, prefix string, secure bool, err error) {
	endpoint = u.Host
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if endpoint == "" || bucket == "" {
		return "", "", "", false, errors.New("minio: want minio://endpoint/bucket[/prefix]")
	}
	secure = true
	if v := u.Query().Get("secure"); v != "" {
		if secure, err = strconv.ParseBool(v); err != nil {
			return "", "", "", false, err
		}
	}
	return endpoint, bucket, prefix, secure, nil
}
