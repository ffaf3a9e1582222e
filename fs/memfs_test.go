package fs

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFileSystem_WriteFileThenOpenRead(t *testing.T) {
	f := NewMemFileSystem()
	ctx := context.Background()

	require.NoError(t, f.WriteFile(ctx, "path", []byte("hello")))

	rc, err := f.OpenRead(ctx, "path")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestMemFileSystem_OpenReadMissingFileErrors(t *testing.T) {
	f := NewMemFileSystem()
	_, err := f.OpenRead(context.Background(), "nope")
	assert.Error(t, err)
}

func TestMemFileSystem_OpenWriteCommitsOnClose(t *testing.T) {
	f := NewMemFileSystem()
	ctx := context.Background()

	w, err := f.OpenWrite(ctx, "path")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	exists, _ := f.Stat(ctx, "path")
	assert.False(t, exists, "write should not be visible before Close")

	require.NoError(t, w.Close())
	exists, _ = f.Stat(ctx, "path")
	assert.True(t, exists)
}

func TestMemFileSystem_DeleteMissingIsNotAnError(t *testing.T) {
	f := NewMemFileSystem()
	assert.NoError(t, f.Delete(context.Background(), "nope"))
}

func TestMemFileSystem_DefaultDirectoryIsSynthetic(t *testing.T) {
	f := NewMemFileSystem()
	dir, err := f.DefaultDirectory(LocalMachineDir, "TestApp")
	require.NoError(t, err)
	assert.Contains(t, dir, "TestApp")
}
