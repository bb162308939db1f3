package http

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mtdl/internal/chunk"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/logger"
	"github.com/NamanBalaji/mtdl/internal/status"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

// ConnectedHook runs after a chunk's request succeeds and before any byte is
// stored. A non-nil error fails the chunk without retrying.
type ConnectedHook func(ctx context.Context, task *ChunkTask) error

// ChunkWorker downloads one ChunkTask with the two-tier retry policy.
type ChunkWorker struct {
	task      *ChunkTask
	url       string
	headers   *httpPkg.HeaderSet
	client    *httpPkg.Client
	policy    retryPolicy
	stream    streamer
	connected ConnectedHook
	publish   func(ChunkSnapshot)
	log       zerolog.Logger
}

func newChunkWorker(task *ChunkTask, url string, cfg *Config, stream streamer, connected ConnectedHook, publish func(ChunkSnapshot)) *ChunkWorker {
	return &ChunkWorker{
		task:      task,
		url:       url,
		headers:   cfg.Headers,
		client:    cfg.Client,
		policy:    cfg.policy(),
		stream:    stream,
		connected: connected,
		publish:   publish,
		log:       logger.With(map[string]interface{}{"chunk": task.ID, "range": task.Range.String()}),
	}
}

func (w *ChunkWorker) report() {
	if w.publish != nil {
		w.publish(w.task.Snapshot())
	}
}

func (w *ChunkWorker) transition(s status.State) {
	w.task.setState(s)
	w.report()
}

// Run downloads the chunk. It returns nil once every expected byte is in the
// store; otherwise the terminal error, whose code is the last failure's code.
func (w *ChunkWorker) Run(ctx context.Context) error {
	resource := fmt.Sprintf("%s [chunk %d]", w.url, w.task.ID)

	err := w.policy.run(ctx, resource, w.restart, func(n int) error {
		w.task.attempt.Store(int32(n))
		return w.attempt(ctx)
	})
	if err == nil {
		w.transition(status.Finished)
		w.log.Debug().Int64("bytes", w.task.Processed()).Msg("chunk finished")

		return nil
	}

	w.task.setState(status.Errored)
	w.report()

	if w.task.Store != nil && w.task.Store.Kind() == chunk.Memory {
		_ = w.task.Store.Dispose()
	}

	if dlErrors.IsCanceled(err) {
		w.log.Debug().Msg("chunk canceled")
	} else {
		w.log.Warn().Err(err).Int("code", dlErrors.CodeOf(err)).Msg("chunk failed")
	}

	return err
}

func (w *ChunkWorker) restart(n int) error {
	if n > 0 {
		w.log.Debug().Int("restart", n).Msg("restarting chunk worker")
	}

	w.transition(status.Preparing)

	return nil
}

// attempt is one fresh request for the whole range into an emptied store.
func (w *ChunkWorker) attempt(ctx context.Context) error {
	if err := w.task.Store.Reset(); err != nil {
		return dlErrors.Wrap(dlErrors.CodeChunkWrite, err, w.task.Store.Path())
	}

	w.task.processed.Store(0)
	w.transition(status.Connecting)

	conn := newConnection(w.url, w.headers, w.client, w.task.Range)

	defer func() {
		if err := conn.close(); err != nil {
			logger.Errorf("Failed to close connection for chunk %d: %v", w.task.ID, err)
		}
	}()

	if err := conn.connect(ctx); err != nil {
		w.task.setState(status.Errored)
		w.report()

		return err
	}

	w.transition(status.Connected)

	if w.connected != nil {
		if err := w.connected(ctx, w.task); err != nil {
			return vetoError(err, w.url)
		}
	}

	w.transition(status.Downloading)

	_, err := w.stream.copy(ctx, conn, w.task.Store, w.task.Size(), func(written int64) {
		w.task.processed.Store(written)
		w.report()
	})

	w.task.processed.Store(w.task.Store.Size())

	if err != nil {
		w.task.setState(status.Errored)
		w.report()
	}

	return err
}

// vetoError keeps a coded hook error as is and turns anything else into a
// non-retryable Custom error.
func vetoError(err error, resource string) error {
	var de *dlErrors.DownloadError
	if dlErrors.As(err, &de) {
		de.Retryable = false
		return de
	}

	return dlErrors.Wrap(dlErrors.CodeCustom, err, resource)
}
