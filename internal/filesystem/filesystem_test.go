package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/mtdl/internal/filesystem"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestNumberedPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		create []string
		path   string
		want   string
	}{
		{
			name: "free path is unchanged",
			path: "video.mp4",
			want: "video.mp4",
		},
		{
			name:   "suffix goes before the extension",
			create: []string{"report.pdf"},
			path:   "report.pdf",
			want:   "report_2.pdf",
		},
		{
			name:   "skips taken suffixes",
			create: []string{"data.bin", "data_2.bin", "data_3.bin"},
			path:   "data.bin",
			want:   "data_4.bin",
		},
		{
			name:   "no extension",
			create: []string{"README"},
			path:   "README",
			want:   "README_2",
		},
		{
			name:   "only the last extension is kept",
			create: []string{"archive.tar.gz"},
			path:   "archive.tar.gz",
			want:   "archive.tar_2.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := filepath.Join(dir, tt.name)
			require.NoError(t, filesystem.EnsureDirectory(sub))

			for _, c := range tt.create {
				touch(t, filepath.Join(sub, c))
			}

			got := filesystem.NumberedPath(filepath.Join(sub, tt.path))
			assert.Equal(t, filepath.Join(sub, tt.want), got)
		})
	}
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tmp")
	dst := filepath.Join(dir, "nested", "a.bin")

	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	require.NoError(t, filesystem.Move(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	ok, err := filesystem.Exists(src)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, filesystem.Move(filepath.Join(dir, "missing"), filepath.Join(dir, "x")))
}

func TestCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "f.txt")

	f, err := filesystem.CreateFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = filesystem.CreateFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size(), "CreateFile truncates")
}

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	touch(t, file)

	assert.True(t, filesystem.DirExists(dir))
	assert.False(t, filesystem.DirExists(file))
	assert.False(t, filesystem.DirExists(filepath.Join(dir, "nope")))
}

func TestRemoveAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	touch(t, a)
	touch(t, b)

	require.NoError(t, filesystem.RemoveAll(a, "", filepath.Join(dir, "missing"), b))

	for _, p := range []string{a, b} {
		ok, err := filesystem.Exists(p)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	nonEmpty := filepath.Join(dir, "full")
	require.NoError(t, filesystem.EnsureDirectory(nonEmpty))
	touch(t, filepath.Join(nonEmpty, "inner"))

	err := filesystem.RemoveAll(nonEmpty)
	assert.Error(t, err, "a non-empty directory cannot be removed")
}
