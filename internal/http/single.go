package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/logger"
	"github.com/NamanBalaji/mtdl/internal/status"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

// SingleDownloader streams a resource over one connection into a caller
// supplied writer. A retried attempt resumes after the bytes already written.
type SingleDownloader struct {
	url string
	cfg *Config

	running atomic.Bool
	written atomic.Int64

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

func NewSingleDownloader(url string, opts ...ConfigOption) *SingleDownloader {
	return &SingleDownloader{url: url, cfg: newConfig(opts...)}
}

// Stop cancels a running transfer.
func (s *SingleDownloader) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel(dlErrors.ErrCanceledByUser)
	}
}

// DownloadedBytes is the number of bytes handed to the writer so far.
func (s *SingleDownloader) DownloadedBytes() int64 {
	return s.written.Load()
}

// DownloadString returns the body as text.
func (s *SingleDownloader) DownloadString(ctx context.Context) (string, error) {
	var sb strings.Builder

	_, err := s.Download(ctx, &sb)
	if err != nil {
		return "", err
	}

	return sb.String(), nil
}

// Download writes the configured range of the resource to w.
func (s *SingleDownloader) Download(ctx context.Context, w io.Writer) (*Result, error) {
	res := &Result{RunID: uuid.New(), ContentLength: -1, StartedAt: time.Now(), Chunks: 1}

	if !s.running.CompareAndSwap(false, true) {
		res.Code = dlErrors.CodeCustom
		res.Message = ErrAlreadyRunning.Error()

		return res, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.written.Store(0)

	err := s.run(runCtx, w, res)
	if err != nil && runCtx.Err() != nil {
		err = canceledError(runCtx, s.url, err)
	}

	res.FinishedAt = time.Now()
	res.BytesTransferred = s.written.Load()
	res.Code = dlErrors.CodeOf(err)
	res.Message = dlErrors.MessageOf(err)

	if err != nil {
		logger.Warnf("Streaming %s failed: %v", s.url, err)
	}

	s.cfg.Callbacks.downloadFinished(res.BytesTransferred, res.Code, "")

	return res, err
}

func (s *SingleDownloader) run(ctx context.Context, w io.Writer, res *Result) error {
	cb := &s.cfg.Callbacks
	cb.preparing()

	if s.url == "" {
		return dlErrors.Newf(dlErrors.CodeNoURL, "no url specified")
	}

	if err := httpPkg.ValidateURL(s.url); err != nil {
		return err
	}

	rng := s.cfg.Range
	task := newChunkTask(0, rng, nil)
	sink := &countingWriter{w: w, n: &s.written}
	meter := newSpeedMeter(smoothingWindow)
	started := false

	stream := streamer{
		bufferSize: s.cfg.BufferSize,
		limiter:    newLimiter(s.cfg.RateLimit, s.cfg.BufferSize),
		interval:   s.cfg.UpdateInterval,
		idle:       s.cfg.Timeout,
		resource:   s.url,
	}

	report := func() {
		task.processed.Store(s.written.Load())
		p := newProgress(res.ContentLength, s.written.Load(), meter.observe(time.Now(), s.written.Load()))
		cb.progress(map[int]ChunkSnapshot{0: task.Snapshot()}, p)
	}

	return s.cfg.policy().run(ctx, s.url, nil, func(n int) error {
		task.attempt.Store(int32(n))
		task.setState(status.Connecting)
		cb.connecting(s.url, n)

		cur := rng
		if done := s.written.Load(); done > 0 {
			cur.From = rng.From + done
		}

		conn := newConnection(s.url, s.cfg.Headers, s.cfg.Client, cur)
		defer conn.close()

		if err := conn.connect(ctx); err != nil {
			task.setState(status.Errored)
			return err
		}

		if !started {
			started = true
			res.ContentLength = expectedLength(rng, conn.response)

			if res.ContentLength == 0 {
				return dlErrors.Newf(dlErrors.CodeZeroLengthContent, "the file on the server is empty")
			}

			if err := cb.connected(ConnectedInfo{
				URL:           s.url,
				StatusCode:    conn.response.StatusCode,
				ContentLength: res.ContentLength,
				AcceptRanges:  conn.response.StatusCode == http.StatusPartialContent,
				Header:        conn.response.Header,
			}); err != nil {
				return vetoError(err, s.url)
			}

			cb.downloadStarted(res.ContentLength)
		}

		task.setState(status.Downloading)

		remaining := int64(-1)
		if res.ContentLength >= 0 {
			remaining = res.ContentLength - s.written.Load()
		}

		_, err := stream.copy(ctx, conn, sink, remaining, func(int64) { report() })
		if err != nil {
			task.setState(status.Errored)
			report()

			return err
		}

		task.setState(status.Finished)
		report()

		return nil
	})
}

// expectedLength is the byte count the range will yield, or -1 when neither
// the range nor the response says.
func expectedLength(rng httpPkg.ByteRange, resp *httpPkg.Response) int64 {
	available := int64(-1)

	if resp.ContentLength >= 0 {
		available = resp.ContentLength
		if resp.StatusCode != http.StatusPartialContent {
			available = max(resp.ContentLength-rng.From, 0)
		}
	}

	switch {
	case rng.IsOpenEnded():
		return available
	case available < 0:
		return rng.Length()
	default:
		return min(rng.Length(), available)
	}
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))

	return n, err
}
