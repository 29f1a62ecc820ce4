package filex

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSubDir_CreatesPrivateDirectory(t *testing.T) {
	base := t.TempDir()

	got, err := EnsureSubDir(base, "media")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "media"), got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}

	again, err := EnsureSubDir(base, "media")
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestEnsureSubDir_FailsIfFileWithSameNameExists(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "history"), []byte("x"), 0o600))

	_, err := EnsureSubDir(base, "history")
	require.Error(t, err)
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_a.json")

	require.NoError(t, WriteFileAtomic(path, []byte("[1]"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("[1,2]"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[1,2]", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMoveFile_Rename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tmp")
	dst := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	require.NoError(t, MoveFile(src, dst))
	require.False(t, Exists(src))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))
}

func TestMoveFile_FallsBackToCopy(t *testing.T) {
	orig := rename
	rename = func(string, string) error { return errors.New("cross-device link") }
	t.Cleanup(func() { rename = orig })

	dir := t.TempDir()
	src := filepath.Join(dir, "b.tmp")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("copied"), 0o600))

	require.NoError(t, MoveFile(src, dst))
	require.False(t, Exists(src))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "copied", string(b))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, Exists(filepath.Join(dir, "missing")))
	require.False(t, Exists(dir))

	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, nil, 0o600))
	require.True(t, Exists(p))
}
