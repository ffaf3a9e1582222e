// Package blobstore implements physical
// persistence of one payload file per key, named by a 128-bit digest of
// the key, plus a well-known index file, via the filesystem collaborator.
package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"path"

	akaerrors "akavache/errors"
	"akavache/fs"
)

// IndexFileName is the well-known name of the serialized CacheIndex
// within a cache's directory.
const IndexFileName = "akavache-index.json"

// Store persists payloads for a single cache directory.
type Store struct {
	filesystem fs.FileSystem
	dir        string
}

// New creates a Store rooted at dir, using filesystem for all I/O.
func New(filesystem fs.FileSystem, dir string) *Store {
	return &Store{filesystem: filesystem, dir: dir}
}

// Digest returns the 32-hex-character, 128-bit digest used as a payload
// file's name. The key itself is never derivable from
// the digest; the index is the sole authority on which key a file
// belongs to.
func Digest(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) path(key string) string {
	return path.Join(s.dir, Digest(key))
}

// IndexPath returns the path of this store's index file.
func (s *Store) IndexPath() string {
	return path.Join(s.dir, IndexFileName)
}

// EnsureDir creates the cache directory if it does not already exist.
func (s *Store) EnsureDir(ctx context.Context) error {
	return s.filesystem.MkdirAll(ctx, s.dir)
}

// Write stores data under key, creating or truncating any existing
// payload file.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if err := s.filesystem.WriteFile(ctx, s.path(key), data); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, key, "failed to write payload", err)
	}
	return nil
}

// Read streams the whole payload file for key into memory.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.filesystem.OpenRead(ctx, s.path(key))
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, key, "failed to open payload", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, key, "failed to read payload", err)
	}
	return data, nil
}

// Delete removes the payload file for key. A missing file is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.filesystem.Delete(ctx, s.path(key)); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, key, "failed to delete payload", err)
	}
	return nil
}

// Exists reports whether a payload file for key is present.
func (s *Store) Exists(ctx context.Context, key string) bool {
	exists, err := s.filesystem.Stat(ctx, s.path(key))
	return err == nil && exists
}

// WriteIndex persists the serialized CacheIndex.
func (s *Store) WriteIndex(ctx context.Context, data []byte) error {
	if err := s.filesystem.WriteFile(ctx, s.IndexPath(), data); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, "", "failed to write index", err)
	}
	return nil
}

// ReadIndex loads the serialized CacheIndex. A missing index file is
// reported via ok=false rather than an error: a missing index means
// an empty cache.
func (s *Store) ReadIndex(ctx context.Context) (data []byte, ok bool, err error) {
	exists, err := s.filesystem.Stat(ctx, s.IndexPath())
	if err != nil {
		return nil, false, akaerrors.Wrap(akaerrors.IoFailure, "", "failed to stat index", err)
	}
	if !exists {
		return nil, false, nil
	}

	rc, err := s.filesystem.OpenRead(ctx, s.IndexPath())
	if err != nil {
		return nil, false, akaerrors.Wrap(akaerrors.IoFailure, "", "failed to open index", err)
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, false, akaerrors.Wrap(akaerrors.IoFailure, "", "failed to read index", err)
	}
	return data, true, nil
}
