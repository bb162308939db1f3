package http

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/mtdl/internal/chunk"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

func fileTask(t *testing.T, dir string, id int, from int64, content string) *ChunkTask {
	t.Helper()

	store, err := chunk.NewFileStore(filepath.Join(dir, "part_"+string(rune('a'+id))))
	require.NoError(t, err)

	_, err = store.Write([]byte(content))
	require.NoError(t, err)

	return newChunkTask(id, httpPkg.ByteRange{From: from, To: from + int64(len(content)) - 1}, store)
}

func memoryTask(t *testing.T, id int, from int64, content string) *ChunkTask {
	t.Helper()

	store := chunk.NewMemoryStore(int64(len(content)))
	_, err := store.Write([]byte(content))
	require.NoError(t, err)

	return newChunkTask(id, httpPkg.ByteRange{From: from, To: from + int64(len(content)) - 1}, store)
}

func TestMerger_OrdersByRange(t *testing.T) {
	dir := t.TempDir()

	tasks := []*ChunkTask{
		fileTask(t, dir, 2, 10, "klmno"),
		fileTask(t, dir, 0, 0, "abcde"),
		fileTask(t, dir, 1, 5, "fghij"),
	}

	var (
		started  int
		finished = -1
		reports  int
	)

	m := &Merger{
		OutputPath: filepath.Join(dir, "out.txt"),
		Callbacks: &Callbacks{
			MergeStarted:  func(n int) { started = n },
			MergeProgress: func(int, int, int64, int64) { reports++ },
			MergeFinished: func(code int) { finished = code },
		},
	}

	path, err := m.Merge(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "out.txt"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmno", string(got))

	assert.Equal(t, 3, started)
	assert.Equal(t, dlErrors.CodeOK, finished)
	assert.GreaterOrEqual(t, reports, 3)

	for _, task := range tasks {
		assert.True(t, task.Store.Disposed())
		_, err := os.Stat(task.Store.Path())
		assert.True(t, os.IsNotExist(err))
	}

	_, err = os.Stat(m.TempPath())
	assert.True(t, os.IsNotExist(err), "temp file should have been renamed")
}

func TestMerger_MemoryChunks(t *testing.T) {
	dir := t.TempDir()

	tasks := []*ChunkTask{
		memoryTask(t, 0, 0, "hello "),
		memoryTask(t, 1, 6, "world"),
	}

	m := &Merger{OutputPath: filepath.Join(dir, "greeting")}

	path, err := m.Merge(context.Background(), tasks)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestMerger_KeepInMergeDir(t *testing.T) {
	outDir := t.TempDir()
	mergeDir := t.TempDir()

	m := &Merger{
		OutputPath:     filepath.Join(outDir, "f.bin"),
		MergeDir:       mergeDir,
		KeepInMergeDir: true,
	}

	path, err := m.Merge(context.Background(), []*ChunkTask{memoryTask(t, 0, 0, "x"), memoryTask(t, 1, 1, "y")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(mergeDir, "f.bin"), path)
}

func TestMerger_NumbersExistingOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	m := &Merger{OutputPath: out}

	path, err := m.Merge(context.Background(), []*ChunkTask{memoryTask(t, 0, 0, "new")})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "f_2.bin"), path)
}

func TestMerger_MissingSource(t *testing.T) {
	dir := t.TempDir()

	first := fileTask(t, dir, 0, 0, "abc")
	second := fileTask(t, dir, 1, 3, "def")
	require.NoError(t, second.Store.Close())
	require.NoError(t, os.Remove(second.Store.Path()))

	finished := 0
	m := &Merger{
		OutputPath: filepath.Join(dir, "out"),
		Callbacks:  &Callbacks{MergeFinished: func(code int) { finished = code }},
	}

	_, err := m.Merge(context.Background(), []*ChunkTask{first, second})
	require.Error(t, err)

	assert.Equal(t, dlErrors.CodeChunkSourceMissing, dlErrors.CodeOf(err))
	assert.Equal(t, dlErrors.CodeChunkSourceMissing, finished)

	_, statErr := os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMerger_Canceled(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &Merger{OutputPath: filepath.Join(dir, "out")}

	_, err := m.Merge(ctx, []*ChunkTask{fileTask(t, dir, 0, 0, "abc")})
	require.Error(t, err)

	assert.Equal(t, dlErrors.CodeCanceled, dlErrors.CodeOf(err))
	assert.NotEmpty(t, m.TempPath())
}

func TestMerger_CreateFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	m := &Merger{
		OutputPath: filepath.Join(dir, "out"),
		MergeDir:   filepath.Join(blocker, "sub"),
	}

	_, err := m.Merge(context.Background(), []*ChunkTask{memoryTask(t, 0, 0, "abc")})
	assert.Equal(t, dlErrors.CodeCreateFile, dlErrors.CodeOf(err))
}
