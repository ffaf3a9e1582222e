package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/google/uuid"

	akaerrors "akavache/errors"
)

// OSFileSystem is the default FileSystem, backed by the local disk. Its
// default-directory resolution uses github.com/OpenPeeDeeP/xdg for
// platform-appropriate roaming/local/secret directories.
type OSFileSystem struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// NewOSFileSystem creates the default disk-backed FileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{dirPerm: 0o755, filePerm: 0o600}
}

func (f *OSFileSystem) OpenRead(_ context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, "", "open for read failed: "+path, err)
	}
	return file, nil
}

func (f *OSFileSystem) OpenWrite(_ context.Context, path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), f.dirPerm); err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, "", "mkdir for write failed: "+path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.filePerm)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, "", "open for write failed: "+path, err)
	}
	return file, nil
}

// WriteFile writes via a temp file in the same directory followed by a
// rename, so a crash mid-write can never leave a half-written payload or
// index file in place.
func (f *OSFileSystem) WriteFile(_ context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, f.dirPerm); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, "", "mkdir failed: "+dir, err)
	}

	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpPath, data, f.filePerm); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, "", "write temp file failed: "+tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return akaerrors.Wrap(akaerrors.IoFailure, "", "rename temp file failed: "+path, err)
	}
	return nil
}

func (f *OSFileSystem) Stat(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, akaerrors.Wrap(akaerrors.IoFailure, "", "stat failed: "+path, err)
}

func (f *OSFileSystem) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return akaerrors.Wrap(akaerrors.IoFailure, "", "delete failed: "+path, err)
	}
	return nil
}

func (f *OSFileSystem) MkdirAll(_ context.Context, path string) error {
	if err := os.MkdirAll(path, f.dirPerm); err != nil {
		return akaerrors.Wrap(akaerrors.IoFailure, "", "mkdir failed: "+path, err)
	}
	return nil
}

func (f *OSFileSystem) DefaultDirectory(kind DirectoryKind, applicationName string) (string, error) {
	x := xdg.New("akavache", applicationName)
	switch kind {
	case LocalMachineDir:
		return x.CacheHome(), nil
	case RoamingDir:
		return x.DataHome(), nil
	case SecretDir:
		return filepath.Join(x.DataHome(), "SecretCache"), nil
	default:
		return "", akaerrors.New(akaerrors.IoFailure, "", "unknown directory kind")
	}
}
