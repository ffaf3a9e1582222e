package fs

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	akaerrors "akavache/errors"
)

// memWriter adapts a bytes.Buffer into an io.WriteCloser whose
// Close commits the buffered bytes back into the MemFileSystem.
type memWriter struct {
	fs   *MemFileSystem
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

// MemFileSystem is a process-memory-only FileSystem, backing the
// InMemory store kind: no path, payloads held in a concurrent map keyed
// by the digest.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFileSystem creates an empty in-memory FileSystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string][]byte)}
}

func (m *MemFileSystem) OpenRead(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, akaerrors.New(akaerrors.IoFailure, "", "no such file: "+path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemFileSystem) OpenWrite(_ context.Context, path string) (io.WriteCloser, error) {
	return &memWriter{fs: m, path: path}, nil
}

func (m *MemFileSystem) WriteFile(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *MemFileSystem) Stat(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *MemFileSystem) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *MemFileSystem) MkdirAll(_ context.Context, _ string) error {
	return nil
}

func (m *MemFileSystem) DefaultDirectory(kind DirectoryKind, applicationName string) (string, error) {
	switch kind {
	case LocalMachineDir:
		return strings.Join([]string{"mem", applicationName, "local"}, "/"), nil
	case RoamingDir:
		return strings.Join([]string{"mem", applicationName, "roaming"}, "/"), nil
	case SecretDir:
		return strings.Join([]string{"mem", applicationName, "roaming", "SecretCache"}, "/"), nil
	default:
		return "", akaerrors.New(akaerrors.IoFailure, "", "unknown directory kind")
	}
}
