// Package fs defines the filesystem collaborator: the external
// boundary the BlobStore and CacheIndex persist through. Its
// internals (actual disk I/O, default directory discovery) are a thin
// shim; callers needing a different backing store (network share, test
// double) implement FileSystem directly.
package fs

import (
	"context"
	"io"
)

// DirectoryKind selects which default-directory family to resolve.
type DirectoryKind int

const (
	// LocalMachineDir is the local-only per-application directory.
	LocalMachineDir DirectoryKind = iota
	// RoamingDir is the roaming per-user directory.
	RoamingDir
	// SecretDir is the roaming per-user directory's secret subfolder.
	SecretDir
)

// FileSystem is the external collaborator: open, read/write, delete,
// mkdir, and default-directory discovery. The core
// never assumes a particular backing store.
type FileSystem interface {
	// OpenRead opens path for reading. Returns an IoFailure-kinded error
	// (see akavache/errors) if the file cannot be opened, including
	// "does not exist" — callers translate that into KeyNotFound or
	// treat it as "index absent" as appropriate for the call site.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)
	// OpenWrite opens path for writing, creating or truncating it.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)
	// WriteFile atomically replaces path's contents with data. Preferred
	// over OpenWrite for the index file and payload writes, since a
	// crash mid-write must never leave a half-written file in place.
	WriteFile(ctx context.Context, path string, data []byte) error
	// Stat reports whether path exists.
	Stat(ctx context.Context, path string) (exists bool, err error)
	// Delete removes path. A missing file is not an error.
	Delete(ctx context.Context, path string) error
	// MkdirAll creates path and any missing parents.
	MkdirAll(ctx context.Context, path string) error
	// DefaultDirectory resolves the default directory for kind, using
	// applicationName to namespace it.
	DefaultDirectory(kind DirectoryKind, applicationName string) (string, error)
}
