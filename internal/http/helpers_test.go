package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name  string
		retry int
		base  time.Duration
		want  time.Duration
	}{
		{name: "first", retry: 0, base: time.Second, want: time.Second},
		{name: "doubles", retry: 3, base: time.Second, want: 8 * time.Second},
		{name: "negative retry", retry: -2, base: time.Second, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.retry, tt.base)
			assert.GreaterOrEqual(t, got, tt.want*9/10)
			assert.LessOrEqual(t, got, tt.want*11/10)
		})
	}

	assert.Equal(t, 2*time.Minute, calculateBackoff(30, time.Second))
	assert.Zero(t, calculateBackoff(5, 0))
}

func TestRetryPolicy_Attempts(t *testing.T) {
	retryable := dlErrors.NewHTTPError(errors.New("boom"), "x", http.StatusServiceUnavailable, "503 Service Unavailable")

	tests := []struct {
		name     string
		policy   retryPolicy
		want     int
		restarts int
	}{
		{name: "single", policy: retryPolicy{}, want: 1, restarts: 1},
		{name: "connection", policy: retryPolicy{connection: 3}, want: 4, restarts: 1},
		{name: "worker", policy: retryPolicy{worker: 2}, want: 3, restarts: 3},
		{name: "both", policy: retryPolicy{connection: 2, worker: 1}, want: 6, restarts: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts, cycles int

			err := tt.policy.run(context.Background(), "x",
				func(int) error { cycles++; return nil },
				func(n int) error {
					attempts++
					assert.Equal(t, attempts, n)

					return retryable
				})

			require.Error(t, err)
			assert.ErrorIs(t, err, dlErrors.ErrRetriesExhausted)
			assert.Equal(t, http.StatusServiceUnavailable, dlErrors.CodeOf(err))
			assert.Equal(t, tt.want, attempts)
			assert.Equal(t, tt.want, tt.policy.maxAttempts())
			assert.Equal(t, tt.restarts, cycles)
		})
	}
}

func TestRetryPolicy_StopsOnSuccessAndFatal(t *testing.T) {
	p := retryPolicy{connection: 5, worker: 5}

	calls := 0
	err := p.run(context.Background(), "x", nil, func(n int) error {
		calls++
		if n < 3 {
			return dlErrors.Newf(dlErrors.CodeNetwork, "flaky")
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = p.run(context.Background(), "x", nil, func(int) error {
		calls++
		return dlErrors.Newf(dlErrors.CodeInsufficientDisk, "full")
	})
	assert.Equal(t, dlErrors.CodeInsufficientDisk, dlErrors.CodeOf(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, -1, retryPolicy{connection: -1}.maxAttempts())
}

func TestRetryPolicy_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())

	err := retryPolicy{connection: -1, worker: -1}.run(ctx, "x", nil, func(n int) error {
		if n == 2 {
			cancel(dlErrors.ErrCanceledByUser)
		}

		return dlErrors.Newf(dlErrors.CodeNetwork, "down")
	})

	assert.Equal(t, dlErrors.CodeCanceled, dlErrors.CodeOf(err))
	assert.False(t, dlErrors.IsRetryable(err))
}

func TestInterrupted(t *testing.T) {
	user, cancelUser := context.WithCancelCause(context.Background())
	cancelUser(dlErrors.ErrCanceledByUser)

	sibling, cancelSibling := context.WithCancelCause(context.Background())
	cancelSibling(errors.New("chunk 3 failed"))

	deadline, cancelDeadline := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelDeadline()

	canceled := interrupted(user, "x")
	assert.Equal(t, dlErrors.CodeCanceled, dlErrors.CodeOf(canceled))
	assert.ErrorIs(t, canceled, dlErrors.ErrCanceledByUser)
	assert.False(t, dlErrors.IsRetryable(canceled))

	timedOut := interrupted(deadline, "x")
	assert.Equal(t, dlErrors.CodeTimeout, dlErrors.CodeOf(timedOut))
	assert.ErrorIs(t, timedOut, context.DeadlineExceeded)

	aborted := interrupted(sibling, "x")
	assert.Equal(t, dlErrors.CodeAborted, dlErrors.CodeOf(aborted))
	assert.ErrorIs(t, aborted, dlErrors.ErrAbortedBySibling)
}

func TestStreamer_Copy(t *testing.T) {
	data := []byte(strings.Repeat("0123456789", 100))

	t.Run("exact", func(t *testing.T) {
		var buf bytes.Buffer

		var reports []int64

		s := streamer{bufferSize: 64}
		n, err := s.copy(context.Background(), bytes.NewReader(data), &buf, int64(len(data)), func(w int64) {
			reports = append(reports, w)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Equal(t, data, buf.Bytes())
		assert.NotEmpty(t, reports)
	})

	t.Run("throttled", func(t *testing.T) {
		var reports []int64

		s := streamer{bufferSize: 64, interval: time.Hour}
		n, err := s.copy(context.Background(), bytes.NewReader(data), io.Discard, int64(len(data)), func(w int64) {
			reports = append(reports, w)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Empty(t, reports)
	})

	t.Run("idle read aborted", func(t *testing.T) {
		r := newStallReader([]byte("abc"))

		start := time.Now()
		n, err := streamer{bufferSize: 64, idle: 50 * time.Millisecond}.copy(context.Background(), r, io.Discard, 100, nil)

		assert.Equal(t, int64(3), n)
		assert.Equal(t, dlErrors.CodeTimeout, dlErrors.CodeOf(err))
		assert.True(t, dlErrors.IsRetryable(err))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("idle unset waits for context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		r := newStallReader(nil)
		go func() {
			<-ctx.Done()
			r.abort()
		}()

		_, err := streamer{bufferSize: 64}.copy(ctx, r, io.Discard, 100, nil)
		assert.Equal(t, dlErrors.CodeTimeout, dlErrors.CodeOf(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("stops at expected", func(t *testing.T) {
		var buf bytes.Buffer

		n, err := streamer{bufferSize: 64}.copy(context.Background(), bytes.NewReader(data), &buf, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
		assert.Equal(t, "0123456789", buf.String())
	})

	t.Run("until eof", func(t *testing.T) {
		n, err := streamer{bufferSize: 7}.copy(context.Background(), bytes.NewReader(data), io.Discard, -1, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
	})

	t.Run("short body", func(t *testing.T) {
		_, err := streamer{bufferSize: 64}.copy(context.Background(), bytes.NewReader(data[:50]), io.Discard, 100, nil)
		assert.Equal(t, dlErrors.CodeIncompleteRead, dlErrors.CodeOf(err))
		assert.True(t, dlErrors.IsRetryable(err))
	})

	t.Run("read error", func(t *testing.T) {
		r := io.MultiReader(bytes.NewReader(data[:10]), iotest.ErrReader(errors.New("connection reset by peer")))
		_, err := streamer{bufferSize: 64}.copy(context.Background(), r, io.Discard, 100, nil)
		assert.Equal(t, dlErrors.CodeNetwork, dlErrors.CodeOf(err))
	})

	t.Run("write error", func(t *testing.T) {
		_, err := streamer{bufferSize: 64}.copy(context.Background(), bytes.NewReader(data), failingWriter{}, 100, nil)
		assert.Equal(t, dlErrors.CodeChunkWrite, dlErrors.CodeOf(err))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := streamer{bufferSize: 64}.copy(ctx, bytes.NewReader(data), io.Discard, 100, nil)
		assert.Equal(t, dlErrors.CodeCanceled, dlErrors.CodeOf(err))
	})

	t.Run("rate limited", func(t *testing.T) {
		s := streamer{bufferSize: 100, limiter: newLimiter(1000, 100)}
		n, err := s.copy(context.Background(), bytes.NewReader(data), io.Discard, 200, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(200), n)
	})
}

// stallReader returns its data once and then blocks until aborted.
type stallReader struct {
	data    []byte
	aborted chan struct{}
	once    sync.Once
}

func newStallReader(data []byte) *stallReader {
	return &stallReader{data: data, aborted: make(chan struct{})}
}

func (r *stallReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]

		return n, nil
	}

	<-r.aborted

	return 0, errors.New("read on closed body")
}

func (r *stallReader) abort() {
	r.once.Do(func() { close(r.aborted) })
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0, 8192))

	l := newLimiter(100, 8192)
	require.NotNil(t, l)
	assert.Equal(t, 8192, l.Burst())
}

func TestVetoError(t *testing.T) {
	coded := vetoError(dlErrors.Newf(dlErrors.CodeInsufficientDisk, "full"), "x")
	assert.Equal(t, dlErrors.CodeInsufficientDisk, dlErrors.CodeOf(coded))
	assert.False(t, dlErrors.IsRetryable(coded))

	// A coded error that would normally be retried must still stop the run.
	network := vetoError(dlErrors.Newf(dlErrors.CodeNetwork, "no"), "x")
	assert.False(t, dlErrors.IsRetryable(network))

	plain := vetoError(errors.New("nope"), "x")
	assert.Equal(t, dlErrors.CodeCustom, dlErrors.CodeOf(plain))
	assert.False(t, dlErrors.IsRetryable(plain))
}

func TestExpectedLength(t *testing.T) {
	tests := []struct {
		name   string
		rng    httpPkg.ByteRange
		status int
		length int64
		want   int64
	}{
		{name: "full 200", rng: httpPkg.FullRange, status: 200, length: 100, want: 100},
		{name: "full unknown", rng: httpPkg.FullRange, status: 200, length: -1, want: -1},
		{name: "tail 206", rng: httpPkg.ByteRange{From: 10, To: -1}, status: 206, length: 90, want: 90},
		{name: "tail ignored", rng: httpPkg.ByteRange{From: 10, To: -1}, status: 200, length: 100, want: 90},
		{name: "closed 206", rng: httpPkg.ByteRange{From: 10, To: 19}, status: 206, length: 10, want: 10},
		{name: "closed overlong", rng: httpPkg.ByteRange{From: 90, To: 199}, status: 206, length: 10, want: 10},
		{name: "closed unknown", rng: httpPkg.ByteRange{From: 0, To: 9}, status: 200, length: -1, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &httpPkg.Response{StatusCode: tt.status, ContentLength: tt.length}
			assert.Equal(t, tt.want, expectedLength(tt.rng, resp))
		})
	}
}

func TestSpeedMeter(t *testing.T) {
	m := newSpeedMeter(5 * time.Second)
	start := time.Now()

	assert.Zero(t, m.observe(start, 0))
	assert.Equal(t, int64(1000), m.observe(start.Add(time.Second), 1000))
	assert.Equal(t, int64(1000), m.observe(start.Add(2*time.Second), 2000))
}

func TestNewProgress(t *testing.T) {
	p := newProgress(1000, 250, 50)
	assert.InDelta(t, 25.0, p.Percentage, 0.001)
	assert.Equal(t, 15*time.Second, p.ETA)

	unknown := newProgress(-1, 250, 50)
	assert.Zero(t, unknown.Percentage)
	assert.Equal(t, "unknown", unknown.GetETA())

	done := newProgress(1000, 1000, 50)
	assert.InDelta(t, 100.0, done.Percentage, 0.001)
}
