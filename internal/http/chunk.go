package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/NamanBalaji/mtdl/internal/chunk"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/status"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

// ChunkTask is one byte range of a download and the store receiving it.
// A worker owns it while running; the merger owns it afterwards.
type ChunkTask struct {
	ID    int
	Range httpPkg.ByteRange
	Store *chunk.Store

	processed atomic.Int64
	state     atomic.Int32
	attempt   atomic.Int32
}

func newChunkTask(id int, r httpPkg.ByteRange, store *chunk.Store) *ChunkTask {
	t := &ChunkTask{ID: id, Range: r, Store: store}
	t.state.Store(int32(status.Preparing))

	return t
}

// Size is the expected byte count, or -1 when the range is open-ended.
func (t *ChunkTask) Size() int64 {
	return t.Range.Length()
}

func (t *ChunkTask) Processed() int64 {
	return t.processed.Load()
}

func (t *ChunkTask) State() status.State {
	return status.State(t.state.Load())
}

func (t *ChunkTask) setState(s status.State) {
	t.state.Store(int32(s))
}

// Snapshot returns an immutable copy of the task's progress.
func (t *ChunkTask) Snapshot() ChunkSnapshot {
	s := ChunkSnapshot{
		TaskID:         t.ID,
		Range:          t.Range,
		TotalBytes:     t.Size(),
		ProcessedBytes: t.processed.Load(),
		State:          status.State(t.state.Load()),
		Attempt:        int(t.attempt.Load()),
	}

	if t.Store != nil {
		s.Backing = t.Store.Kind()
	}

	return s
}

// ChunkSnapshot is the published state of one chunk.
type ChunkSnapshot struct {
	TaskID         int
	Range          httpPkg.ByteRange
	TotalBytes     int64
	ProcessedBytes int64
	State          status.State
	Attempt        int
	Backing        chunk.Backing
}

// streamer copies a response body into a sink in bounded reads.
type streamer struct {
	bufferSize int
	limiter    *rate.Limiter
	interval   time.Duration
	idle       time.Duration
	resource   string
}

// aborter is a reader whose pending Read can be unblocked from another
// goroutine.
type aborter interface {
	abort()
}

// copy moves exactly expected bytes from r to w, or everything up to EOF when
// expected is negative. onProgress receives the running total at most once
// per interval. A read that yields nothing for idle aborts the body with a
// Timeout error.
func (s streamer) copy(ctx context.Context, r io.Reader, w io.Writer, expected int64, onProgress func(written int64)) (int64, error) {
	buffer := make([]byte, max(s.bufferSize, 1))
	lastReport := time.Now()

	var (
		written int64
		stalled atomic.Bool
	)

	arm, disarm := func() {}, func() {}

	if a, ok := r.(aborter); ok && s.idle > 0 {
		watchdog := time.AfterFunc(s.idle, func() {
			stalled.Store(true)
			a.abort()
		})
		watchdog.Stop()
		defer watchdog.Stop()

		arm = func() { watchdog.Reset(s.idle) }
		disarm = func() { watchdog.Stop() }
	}

	for expected < 0 || written < expected {
		if ctx.Err() != nil {
			return written, interrupted(ctx, s.resource)
		}

		p := buffer
		if expected >= 0 {
			if remaining := expected - written; remaining < int64(len(p)) {
				p = p[:remaining]
			}
		}

		arm()
		n, err := r.Read(p)
		disarm()

		if n > 0 {
			if _, werr := w.Write(p[:n]); werr != nil {
				return written, dlErrors.Wrap(dlErrors.CodeChunkWrite, werr, s.resource)
			}

			written += int64(n)

			if s.limiter != nil {
				if lerr := s.limiter.WaitN(ctx, n); lerr != nil {
					if ctx.Err() != nil {
						return written, interrupted(ctx, s.resource)
					}

					return written, dlErrors.Wrap(dlErrors.CodeTimeout, lerr, s.resource)
				}
			}

			if onProgress != nil && time.Since(lastReport) >= s.interval {
				onProgress(written)
				lastReport = time.Now()
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return written, interrupted(ctx, s.resource)
			}

			if stalled.Load() {
				return written, dlErrors.Wrap(dlErrors.CodeTimeout,
					fmt.Errorf("%w: no data for %s: %w", httpPkg.ErrTimeout, s.idle, err), s.resource)
			}

			if errors.Is(err, io.EOF) {
				break
			}

			return written, httpPkg.TransportError(s.resource, err)
		}
	}

	if expected >= 0 && written != expected {
		return written, dlErrors.Newf(dlErrors.CodeIncompleteRead, "received %d of %d bytes", written, expected)
	}

	return written, nil
}
