package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/NamanBalaji/mtdl/internal/chunk"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/filesystem"
	"github.com/NamanBalaji/mtdl/internal/logger"
)

const (
	mergeWriteBuffer = 4 * 1024 * 1024
	mergeBlockSize   = 64 * 1024
)

// Merger reassembles finished chunks, in range order, into the output file.
type Merger struct {
	OutputPath     string
	MergeDir       string
	KeepInMergeDir bool
	UpdateInterval time.Duration
	Callbacks      *Callbacks

	tempPath string
}

// TempPath is the file the last Merge wrote into. After a failed or canceled
// merge it is left in place.
func (m *Merger) TempPath() string {
	return m.tempPath
}

func (m *Merger) callbacks() *Callbacks {
	if m.Callbacks == nil {
		return &Callbacks{}
	}

	return m.Callbacks
}

// Merge writes every task's bytes into a temp file in MergeDir, disposing each
// chunk store once copied, then renames the result to a free name next to
// OutputPath (or inside MergeDir with KeepInMergeDir). It returns that path.
func (m *Merger) Merge(ctx context.Context, tasks []*ChunkTask) (finalPath string, err error) {
	cb := m.callbacks()

	ordered := make([]*ChunkTask, len(tasks))
	copy(ordered, tasks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.From < ordered[j].Range.From
	})

	cb.mergeStarted(len(ordered))
	defer func() {
		cb.mergeFinished(dlErrors.CodeOf(err))
	}()

	mergeDir := m.MergeDir
	if mergeDir == "" {
		mergeDir = filepath.Dir(m.OutputPath)
	}

	m.tempPath = filesystem.NumberedPath(filepath.Join(mergeDir, chunk.MergeFileName(m.OutputPath)))

	out, err := filesystem.CreateFile(m.tempPath)
	if err != nil {
		return "", dlErrors.Wrap(dlErrors.CodeCreateFile, err, m.tempPath)
	}

	bufWriter := bufio.NewWriterSize(out, mergeWriteBuffer)

	var total int64

	for i, task := range ordered {
		if ctx.Err() != nil {
			out.Close()
			return "", interrupted(ctx, m.tempPath)
		}

		n, cerr := m.appendChunk(ctx, bufWriter, task, i, len(ordered))
		if cerr != nil {
			out.Close()
			return "", cerr
		}

		total += n
	}

	logger.Debugf("Flushing %d bytes to disk for file %s", total, m.tempPath)

	if err := bufWriter.Flush(); err != nil {
		out.Close()
		return "", dlErrors.Wrap(dlErrors.CodeMergeChunks, err, m.tempPath)
	}

	if err := out.Close(); err != nil {
		return "", dlErrors.Wrap(dlErrors.CodeMergeChunks, err, m.tempPath)
	}

	dir := filepath.Dir(m.OutputPath)
	if m.KeepInMergeDir {
		dir = mergeDir
	}

	finalPath = filesystem.NumberedPath(filepath.Join(dir, filepath.Base(m.OutputPath)))
	if err := filesystem.Move(m.tempPath, finalPath); err != nil {
		return "", dlErrors.Wrap(dlErrors.CodeMergeChunks, err, finalPath)
	}

	return finalPath, nil
}

func (m *Merger) appendChunk(ctx context.Context, w io.Writer, task *ChunkTask, index, count int) (int64, error) {
	if task.Store == nil {
		return 0, dlErrors.Newf(dlErrors.CodeChunkSourceMissing, "chunk %d has no data", task.ID)
	}

	size := task.Store.Size()

	src, err := task.Store.Open()
	if err != nil {
		if errors.Is(err, chunk.ErrSourceMissing) {
			return 0, dlErrors.Wrap(dlErrors.CodeChunkSourceMissing, err, task.Store.Path())
		}

		return 0, dlErrors.Wrap(dlErrors.CodeMergeChunks, err, task.Store.Path())
	}

	cb := m.callbacks()
	block := make([]byte, mergeBlockSize)
	lastReport := time.Now()

	var pos int64

	for {
		if ctx.Err() != nil {
			src.Close()
			return pos, interrupted(ctx, m.tempPath)
		}

		n, rerr := src.Read(block)
		if n > 0 {
			if _, werr := w.Write(block[:n]); werr != nil {
				src.Close()
				return pos, dlErrors.Wrap(dlErrors.CodeMergeChunks, werr, m.tempPath)
			}

			pos += int64(n)

			if time.Since(lastReport) >= m.UpdateInterval {
				cb.mergeProgress(index, count, pos, size)
				lastReport = time.Now()
			}
		}

		if rerr == io.EOF {
			break
		}

		if rerr != nil {
			src.Close()
			return pos, dlErrors.Wrap(dlErrors.CodeMergeChunks, rerr, task.Store.Path())
		}
	}

	src.Close()
	cb.mergeProgress(index, count, pos, size)

	if err := task.Store.Dispose(); err != nil {
		logger.Warnf("Failed to remove chunk %d source: %v", task.ID, err)
	}

	return pos, nil
}
