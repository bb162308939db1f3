package preflight_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/preflight"
)

// fakeProbe maps directory prefixes to volume names.
type fakeProbe struct {
	mounts   map[string]string
	free     map[string]uint64
	notReady map[string]bool
	memory   uint64
	asked    []string
}

func (f *fakeProbe) VolumeOf(_ context.Context, path string) (string, error) {
	best, vol := "", "root"
	for prefix, v := range f.mounts {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best, vol = prefix, v
		}
	}

	return vol, nil
}

func (f *fakeProbe) VolumeReady(_ context.Context, volume string) error {
	if f.notReady[volume] {
		return errors.New("not mounted")
	}

	return nil
}

func (f *fakeProbe) FreeSpace(_ context.Context, volume string) (uint64, error) {
	f.asked = append(f.asked, volume)
	return f.free[volume], nil
}

func (f *fakeProbe) AvailableMemory(context.Context) (uint64, error) {
	return f.memory, nil
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "file.bin")

	tests := []struct {
		name string
		plan preflight.Plan
		code int
	}{
		{
			name: "ok",
			plan: preflight.Plan{URL: "http://example.com/f", OutputPath: out},
			code: dlErrors.CodeOK,
		},
		{
			name: "missing url",
			plan: preflight.Plan{OutputPath: out},
			code: dlErrors.CodeNoURL,
		},
		{
			name: "bad url",
			plan: preflight.Plan{URL: "gopher://x", OutputPath: out},
			code: dlErrors.CodeInvalidURL,
		},
		{
			name: "missing file name",
			plan: preflight.Plan{URL: "http://example.com/f"},
			code: dlErrors.CodeNoFileName,
		},
		{
			name: "missing temp dir",
			plan: preflight.Plan{URL: "http://example.com/f", OutputPath: out, TempDir: filepath.Join(dir, "nope")},
			code: dlErrors.CodeTempDirMissing,
		},
		{
			name: "missing merge dir",
			plan: preflight.Plan{URL: "http://example.com/f", OutputPath: out, TempDir: dir, MergeDir: filepath.Join(dir, "nope")},
			code: dlErrors.CodeMergeDirMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := preflight.New(&fakeProbe{})
			err := p.Validate(context.Background(), tt.plan)
			assert.Equal(t, tt.code, dlErrors.CodeOf(err))
		})
	}
}

func TestValidate_DriveNotReady(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, "tmp")
	require.NoError(t, os.Mkdir(tempDir, 0o755))

	probe := &fakeProbe{
		mounts:   map[string]string{tempDir: "usb"},
		notReady: map[string]bool{"usb": true},
	}

	err := preflight.New(probe).Validate(context.Background(), preflight.Plan{
		URL:        "http://example.com/f",
		OutputPath: filepath.Join(dir, "f.bin"),
		TempDir:    tempDir,
	})
	assert.Equal(t, dlErrors.CodeDriveNotReady, dlErrors.CodeOf(err))
}

func TestCheckCapacity(t *testing.T) {
	plan := preflight.Plan{
		URL:        "http://example.com/f",
		OutputPath: "/data/out/f.bin",
		TempDir:    "/scratch/tmp",
		MergeDir:   "/data/merge",
	}
	mounts := map[string]string{"/data": "data", "/scratch": "scratch"}

	tests := []struct {
		name   string
		length int64
		free   map[string]uint64
		useRAM bool
		memory uint64
		code   int
	}{
		{
			name:   "enough everywhere",
			length: 1000,
			free:   map[string]uint64{"data": 1100, "scratch": 5000},
			code:   dlErrors.CodeOK,
		},
		{
			name:   "below margin on one volume",
			length: 1000,
			free:   map[string]uint64{"data": 5000, "scratch": 1099},
			code:   dlErrors.CodeInsufficientDisk,
		},
		{
			name:   "unknown length skips checks",
			length: -1,
			free:   map[string]uint64{},
			code:   dlErrors.CodeOK,
		},
		{
			name:   "ram mode needs memory",
			length: 1000,
			free:   map[string]uint64{"data": 5000, "scratch": 5000},
			useRAM: true,
			memory: 1000,
			code:   dlErrors.CodeInsufficientMemory,
		},
		{
			name:   "ram mode with enough memory",
			length: 1000,
			free:   map[string]uint64{"data": 5000, "scratch": 5000},
			useRAM: true,
			memory: 2000,
			code:   dlErrors.CodeOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &fakeProbe{mounts: mounts, free: tt.free, memory: tt.memory}
			plan := plan
			plan.UseRAM = tt.useRAM

			err := preflight.New(probe).CheckCapacity(context.Background(), plan, tt.length)
			assert.Equal(t, tt.code, dlErrors.CodeOf(err))
		})
	}
}

func TestCheckCapacity_DistinctVolumesOnce(t *testing.T) {
	probe := &fakeProbe{
		mounts: map[string]string{"/data": "data"},
		free:   map[string]uint64{"data": 1 << 30},
	}

	plan := preflight.Plan{URL: "http://x/f", OutputPath: "/data/a/f.bin", TempDir: "/data/b", MergeDir: "/data/c"}
	require.NoError(t, preflight.New(probe).CheckCapacity(context.Background(), plan, 100))
	assert.Equal(t, []string{"data"}, probe.asked)
}

func TestCheckChunkSpace(t *testing.T) {
	probe := &fakeProbe{free: map[string]uint64{"root": preflight.ChunkHeadroom + 100}}
	p := preflight.New(probe)

	assert.NoError(t, p.CheckChunkSpace(context.Background(), "/tmp/x.chunk_0.tmp", 100))

	err := p.CheckChunkSpace(context.Background(), "/tmp/x.chunk_0.tmp", 101)
	assert.Equal(t, dlErrors.CodeInsufficientDisk, dlErrors.CodeOf(err))
	assert.False(t, dlErrors.IsRetryable(err))
}

func TestCapacityErrorDetails(t *testing.T) {
	plan := preflight.Plan{URL: "http://x/f", OutputPath: "/data/f.bin", UseRAM: true}

	t.Run("disk", func(t *testing.T) {
		probe := &fakeProbe{mounts: map[string]string{"/data": "data"}, free: map[string]uint64{"data": 500}}

		err := preflight.New(probe).CheckCapacity(context.Background(), plan, 1000)

		var de *dlErrors.DownloadError
		require.True(t, dlErrors.As(err, &de))
		assert.Equal(t, "data", de.Details["volume"])
		assert.Equal(t, uint64(1100), de.Details["need"])
		assert.Equal(t, uint64(500), de.Details["free"])
	})

	t.Run("memory", func(t *testing.T) {
		probe := &fakeProbe{mounts: map[string]string{"/data": "data"}, free: map[string]uint64{"data": 1 << 20}, memory: 10}

		err := preflight.New(probe).CheckCapacity(context.Background(), plan, 1000)

		var de *dlErrors.DownloadError
		require.True(t, dlErrors.As(err, &de))
		assert.Equal(t, dlErrors.CodeInsufficientMemory, de.Code)
		assert.Equal(t, "memory", de.Details["volume"])
		assert.Equal(t, uint64(10), de.Details["free"])
	})

	t.Run("chunk", func(t *testing.T) {
		probe := &fakeProbe{free: map[string]uint64{"root": 5}}

		err := preflight.New(probe).CheckChunkSpace(context.Background(), "/tmp/c.tmp", 0)

		var de *dlErrors.DownloadError
		require.True(t, dlErrors.As(err, &de))
		assert.Equal(t, "root", de.Details["volume"])
		assert.Equal(t, uint64(preflight.ChunkHeadroom), de.Details["need"])
	})
}

func TestPlanDirs(t *testing.T) {
	tempDir, mergeDir := preflight.Plan{OutputPath: "/out/f.bin"}.Dirs()
	assert.Equal(t, "/out", tempDir)
	assert.Equal(t, "/out", mergeDir)

	tempDir, mergeDir = preflight.Plan{OutputPath: "/out/f.bin", TempDir: "/t"}.Dirs()
	assert.Equal(t, "/t", tempDir)
	assert.Equal(t, "/t", mergeDir)
}

func TestSystemProbe(t *testing.T) {
	probe := preflight.NewSystemProbe()
	dir := t.TempDir()

	vol, err := probe.VolumeOf(context.Background(), filepath.Join(dir, "not", "yet", "there.bin"))
	require.NoError(t, err)
	assert.NotEmpty(t, vol)

	require.NoError(t, probe.VolumeReady(context.Background(), vol))

	free, err := probe.FreeSpace(context.Background(), vol)
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
