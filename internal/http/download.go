package http

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/NamanBalaji/mtdl/internal/chunk"
	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/filesystem"
	"github.com/NamanBalaji/mtdl/internal/logger"
	"github.com/NamanBalaji/mtdl/internal/preflight"
	"github.com/NamanBalaji/mtdl/internal/progress"
	"github.com/NamanBalaji/mtdl/internal/repository"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

var ErrAlreadyRunning = errors.New("download already running")

var _ progress.Source = (*Downloader)(nil)

// Recorder stores the outcome of finished runs.
type Recorder interface {
	Save(record *repository.Record) error
}

// Result is the terminal outcome of one run.
type Result struct {
	RunID            uuid.UUID
	Code             int
	Message          string
	BytesTransferred int64
	ContentLength    int64
	FinalPath        string
	Merged           bool
	Chunks           int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Succeeded reports whether the run ended with 200 or 206.
func (r *Result) Succeeded() bool {
	return dlErrors.IsSuccess(r.Code)
}

// Downloader fetches one URL in concurrent byte-range chunks and reassembles
// them into a single file.
type Downloader struct {
	url        string
	outputPath string
	cfg        *Config
	preflight  *preflight.Preflight
	limiter    *rate.Limiter

	running atomic.Bool

	mu        sync.RWMutex
	cancel    context.CancelCauseFunc
	tasks     []*ChunkTask
	snapshots map[int]ChunkSnapshot
	progress  Progress
	log       zerolog.Logger
}

func NewDownloader(url, outputPath string, opts ...ConfigOption) *Downloader {
	cfg := newConfig(opts...)

	return &Downloader{
		url:        url,
		outputPath: outputPath,
		cfg:        cfg,
		preflight:  preflight.New(cfg.Probe),
		limiter:    newLimiter(cfg.RateLimit, cfg.BufferSize),
		log:        zerolog.Nop(),
	}
}

// Download runs the whole pipeline. The Result is always non-nil and the
// error is nil exactly when the run succeeded.
func (d *Downloader) Download(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.New(), ContentLength: -1, StartedAt: time.Now()}

	if !d.running.CompareAndSwap(false, true) {
		res.Code = dlErrors.CodeCustom
		res.Message = ErrAlreadyRunning.Error()

		return res, ErrAlreadyRunning
	}
	defer d.running.Store(false)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	d.mu.Lock()
	d.cancel = cancel
	d.tasks = nil
	d.snapshots = nil
	d.progress = Progress{}
	d.log = logger.With(map[string]interface{}{"run": res.RunID.String(), "url": d.url})
	d.mu.Unlock()

	d.log.Info().Str("output", d.outputPath).Int("threads", d.cfg.Threads).Msg("download started")

	err := d.run(runCtx, res)
	if err != nil && runCtx.Err() != nil {
		err = canceledError(runCtx, d.url, err)
	}

	res.FinishedAt = time.Now()
	res.BytesTransferred = d.DownloadedBytes()
	res.Code = dlErrors.CodeOf(err)
	res.Message = dlErrors.MessageOf(err)

	if err != nil {
		res.FinalPath = ""
		d.log.Warn().Err(err).Int("code", res.Code).Msg("download failed")
	} else {
		d.log.Info().Str("path", res.FinalPath).Int64("bytes", res.BytesTransferred).Msg("download finished")
	}

	d.cfg.Callbacks.downloadFinished(res.BytesTransferred, res.Code, res.FinalPath)
	d.record(res)

	return res, err
}

// Stop cancels a running download. It is a no-op when nothing runs.
func (d *Downloader) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()

	if cancel != nil {
		cancel(dlErrors.ErrCanceledByUser)
	}
}

// DownloadedBytes is the number of bytes currently held by the run's chunks.
func (d *Downloader) DownloadedBytes() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int64
	for _, t := range d.tasks {
		total += t.Processed()
	}

	return total
}

// Progress returns the latest aggregate progress.
func (d *Downloader) Progress() progress.Progress {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.progress
}

// Chunks returns a copy of the latest snapshot of every started chunk.
func (d *Downloader) Chunks() map[int]ChunkSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return maps.Clone(d.snapshots)
}

func (d *Downloader) plan() preflight.Plan {
	return preflight.Plan{
		URL:        d.url,
		OutputPath: d.outputPath,
		TempDir:    d.cfg.TempDir,
		MergeDir:   d.cfg.MergeDir,
		UseRAM:     d.cfg.UseRAM,
	}
}

func (d *Downloader) run(ctx context.Context, res *Result) error {
	cb := &d.cfg.Callbacks
	cb.preparing()

	plan := d.plan()
	if err := d.preflight.Validate(ctx, plan); err != nil {
		return err
	}

	info, err := d.probe(ctx)
	if err != nil {
		return err
	}

	d.log.Debug().Int64("length", info.ContentLength).Bool("ranges", info.AcceptRanges).Msg("resource probed")

	if err := cb.connected(ConnectedInfo{
		URL:           d.url,
		StatusCode:    info.StatusCode,
		ContentLength: info.ContentLength,
		AcceptRanges:  info.AcceptRanges,
		Header:        info.Header,
	}); err != nil {
		return vetoError(err, d.url)
	}

	length := info.ContentLength
	if length == 0 {
		return dlErrors.Newf(dlErrors.CodeZeroLengthContent, "the file on the server is empty")
	}

	span := int64(-1)
	if length > 0 {
		resolved, err := d.cfg.Range.Resolve(length)
		if err != nil {
			return err
		}

		span = resolved.Length()
	} else if !d.cfg.Range.IsOpenEnded() {
		span = d.cfg.Range.Length()
	}

	res.ContentLength = span

	if err := d.preflight.CheckCapacity(ctx, plan, span); err != nil {
		return err
	}

	chunkCount := 1
	if span > chunk.SplitThreshold {
		chunkCount = d.cfg.Threads
	}

	ranges, err := chunk.Split(length, d.cfg.Range, chunkCount)
	if err != nil {
		return err
	}

	tasks, err := d.createTasks(ranges)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.tasks = tasks
	d.mu.Unlock()

	res.Chunks = len(tasks)
	cb.downloadStarted(span)

	if err := d.runWorkers(ctx, tasks, span); err != nil {
		d.cleanup(tasks)
		return err
	}

	if ctx.Err() != nil {
		d.cleanup(tasks)
		return interrupted(ctx, d.url)
	}

	return d.assemble(ctx, tasks, res)
}

// probe resolves the content length, retrying within the connection budget.
func (d *Downloader) probe(ctx context.Context) (*httpPkg.ProbeResult, error) {
	policy := retryPolicy{connection: d.cfg.ConnectionRetries, delay: d.cfg.RetryDelay}

	var info *httpPkg.ProbeResult

	err := policy.run(ctx, d.url, nil, func(n int) error {
		d.cfg.Callbacks.connecting(d.url, n)

		r, err := d.cfg.Client.Probe(ctx, d.url, d.cfg.Headers)
		if err != nil {
			return err
		}

		info = r

		return nil
	})

	return info, err
}

func (d *Downloader) createTasks(ranges []httpPkg.ByteRange) ([]*ChunkTask, error) {
	tempDir, _ := d.plan().Dirs()
	tasks := make([]*ChunkTask, 0, len(ranges))

	for i, r := range ranges {
		if d.cfg.UseRAM {
			tasks = append(tasks, newChunkTask(i, r, chunk.NewMemoryStore(r.Length())))
			continue
		}

		path := filesystem.NumberedPath(filepath.Join(tempDir, chunk.ChunkFileName(d.outputPath, i, len(ranges))))

		store, err := chunk.NewFileStore(path)
		if err != nil {
			d.cleanup(tasks)
			return nil, dlErrors.Wrap(dlErrors.CodeCreateFile, err, path)
		}

		tasks = append(tasks, newChunkTask(i, r, store))
	}

	return tasks, nil
}

// runWorkers runs one ChunkWorker per task, at most Threads at a time. The
// first terminal failure cancels the others.
func (d *Downloader) runWorkers(ctx context.Context, tasks []*ChunkTask, total int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Threads)

	snapshots := make(chan ChunkSnapshot, len(tasks)*4)
	done := make(chan struct{})

	go d.aggregate(snapshots, total, done)

	stream := streamer{
		bufferSize: d.cfg.BufferSize,
		limiter:    d.limiter,
		interval:   d.cfg.UpdateInterval,
		idle:       d.cfg.Timeout,
		resource:   d.url,
	}

	publish := func(s ChunkSnapshot) {
		snapshots <- s
	}

	for _, task := range tasks {
		w := newChunkWorker(task, d.url, d.cfg, stream, d.chunkHook(), publish)

		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	err := g.Wait()

	close(snapshots)
	<-done

	return err
}

// chunkHook checks the chunk's volume for room before disk-backed chunks
// receive data.
func (d *Downloader) chunkHook() ConnectedHook {
	if d.cfg.UseRAM {
		return nil
	}

	return func(ctx context.Context, task *ChunkTask) error {
		return d.preflight.CheckChunkSpace(ctx, task.Store.Path(), task.Size())
	}
}

// aggregate is the only writer of the snapshot map.
func (d *Downloader) aggregate(in <-chan ChunkSnapshot, total int64, done chan<- struct{}) {
	defer close(done)

	latest := make(map[int]ChunkSnapshot)
	meter := newSpeedMeter(smoothingWindow)

	for s := range in {
		latest[s.TaskID] = s

		var downloaded int64
		for _, c := range latest {
			downloaded += c.ProcessedBytes
		}

		p := newProgress(total, downloaded, meter.observe(time.Now(), downloaded))

		d.mu.Lock()
		d.snapshots = maps.Clone(latest)
		d.progress = p
		d.mu.Unlock()

		d.cfg.Callbacks.progress(maps.Clone(latest), p)
	}
}

// assemble turns finished chunks into the output file: a rename for a single
// file-backed chunk, a merge otherwise.
func (d *Downloader) assemble(ctx context.Context, tasks []*ChunkTask, res *Result) error {
	if len(tasks) == 1 && tasks[0].Store.Kind() == chunk.File {
		path, err := d.promote(tasks[0])
		if err != nil {
			return err
		}

		res.FinalPath = path

		return nil
	}

	_, mergeDir := d.plan().Dirs()

	m := &Merger{
		OutputPath:     d.outputPath,
		MergeDir:       mergeDir,
		KeepInMergeDir: d.cfg.KeepInMergeDir && d.cfg.MergeDir != "",
		UpdateInterval: d.cfg.MergeUpdateInterval,
		Callbacks:      &d.cfg.Callbacks,
	}

	path, err := m.Merge(ctx, tasks)
	if err != nil {
		if ctx.Err() != nil || dlErrors.IsCanceled(err) {
			d.cleanup(tasks, m.TempPath())
		} else {
			d.release(tasks)
		}

		return err
	}

	res.FinalPath = path
	res.Merged = true

	return nil
}

// promote renames the only chunk file to a free name at the destination.
func (d *Downloader) promote(task *ChunkTask) (string, error) {
	src := task.Store.Path()

	if err := task.Store.Close(); err != nil {
		return "", dlErrors.Wrap(dlErrors.CodeMergeChunks, err, src)
	}

	if ok, _ := filesystem.Exists(src); !ok {
		return "", dlErrors.Newf(dlErrors.CodeChunkSourceMissing, "chunk file %s is missing", src)
	}

	dir := filepath.Dir(d.outputPath)
	if d.cfg.KeepInMergeDir {
		dir = filepath.Dir(src)
	}

	dst := filesystem.NumberedPath(filepath.Join(dir, filepath.Base(d.outputPath)))
	if err := filesystem.Move(src, dst); err != nil {
		return "", dlErrors.Wrap(dlErrors.CodeMergeChunks, err, dst)
	}

	return dst, nil
}

// cleanup removes chunk data and the given extra files, unless artifacts are
// kept, in which case only handles and memory are released.
func (d *Downloader) cleanup(tasks []*ChunkTask, extra ...string) {
	if d.cfg.KeepArtifacts {
		d.release(tasks)
		return
	}

	var result *multierror.Error

	for _, t := range tasks {
		if err := t.Store.Dispose(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := filesystem.RemoveAll(extra...); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		d.log.Warn().Err(err).Msg("failed to remove download artifacts")
	}
}

// release closes file handles and frees memory chunks, leaving files on disk.
func (d *Downloader) release(tasks []*ChunkTask) {
	for _, t := range tasks {
		if t.Store.Kind() == chunk.Memory {
			_ = t.Store.Dispose()
			continue
		}

		if err := t.Store.Close(); err != nil {
			d.log.Warn().Err(err).Str("path", t.Store.Path()).Msg("failed to close chunk file")
		}
	}
}

func (d *Downloader) record(res *Result) {
	if d.cfg.Recorder == nil {
		return
	}

	rec := &repository.Record{
		ID:               res.RunID,
		URL:              d.url,
		OutputPath:       d.outputPath,
		FinalPath:        res.FinalPath,
		ContentLength:    res.ContentLength,
		BytesTransferred: res.BytesTransferred,
		Threads:          d.cfg.Threads,
		Chunks:           res.Chunks,
		Code:             res.Code,
		Message:          res.Message,
		StartedAt:        res.StartedAt,
		FinishedAt:       res.FinishedAt,
	}

	if err := d.cfg.Recorder.Save(rec); err != nil {
		d.log.Warn().Err(err).Msg("failed to save history record")
	}
}

// canceledError reports a run ended by its caller. It replaces whatever error
// the pipeline produced.
func canceledError(ctx context.Context, resource string, cause error) error {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return dlErrors.Wrap(dlErrors.CodeTimeout, errors.Join(context.Cause(ctx), cause), resource)
	}

	return dlErrors.Wrap(dlErrors.CodeCanceled, errors.Join(dlErrors.ErrCanceledByUser, cause), resource)
}
