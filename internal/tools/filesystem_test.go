package tools

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemReadWrite(t *testing.T) {
	dir := t.TempDir()
	fsys, err := NewFilesystem(dir, true)
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFile("pkg/mod.py", []byte("x = 1\n")))
	data, err := fsys.ReadFile("pkg/mod.py")
	require.NoError(t, err)
	require.Equal(t, "x = 1\n", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "pkg"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFilesystemKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.py")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o755))

	fsys, err := NewFilesystem(dir, true)
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile(path, []byte("new")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestFilesystemRejectsEscapesAndReadOnlyWrites(t *testing.T) {
	dir := t.TempDir()
	fsys, err := NewFilesystem(dir, true)
	require.NoError(t, err)
	require.Error(t, fsys.WriteFile("../outside.py", []byte("x")))

	ro, err := NewFilesystem(dir, false)
	require.NoError(t, err)
	err = ro.WriteFile("a.py", []byte("x"))
	require.True(t, errors.Is(err, ErrReadOnly))
	require.NoFileExists(t, filepath.Join(dir, "a.py"))
}
