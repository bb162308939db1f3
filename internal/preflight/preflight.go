// Package preflight checks paths, volumes, disk space and memory before a
// download touches the network.
package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"

	"github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/filesystem"
	"github.com/NamanBalaji/mtdl/internal/logger"
	httpmod "github.com/NamanBalaji/mtdl/pkg/http"
)

const (
	// Margin is the factor applied to the content length for space checks.
	Margin = 1.1
	// ChunkHeadroom is added to a chunk's remaining bytes by CheckChunkSpace.
	ChunkHeadroom = 1024 * 1024
)

// Plan lists the inputs of a download that preflight inspects.
type Plan struct {
	URL        string
	OutputPath string
	TempDir    string
	MergeDir   string
	UseRAM     bool
}

// Dirs returns the effective temp and merge directories. An empty temp dir
// means the output directory and an empty merge dir means the temp dir.
func (p Plan) Dirs() (tempDir, mergeDir string) {
	tempDir = p.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(p.OutputPath)
	}

	mergeDir = p.MergeDir
	if mergeDir == "" {
		mergeDir = tempDir
	}

	return tempDir, mergeDir
}

type Preflight struct {
	probe SystemProbe
}

func New(probe SystemProbe) *Preflight {
	if probe == nil {
		probe = NewSystemProbe()
	}

	return &Preflight{probe: probe}
}

// Validate checks the URL, the output name, the configured directories and the
// readiness of every volume the download writes to.
func (p *Preflight) Validate(ctx context.Context, plan Plan) error {
	if strings.TrimSpace(plan.URL) == "" {
		return errors.Newf(errors.CodeNoURL, "no URL specified")
	}

	if err := httpmod.ValidateURL(plan.URL); err != nil {
		return err
	}

	base := filepath.Base(plan.OutputPath)
	if strings.TrimSpace(plan.OutputPath) == "" || base == "." || base == string(filepath.Separator) {
		return errors.Newf(errors.CodeNoFileName, "no output file name specified")
	}

	if plan.TempDir != "" && !filesystem.DirExists(plan.TempDir) {
		return errors.Newf(errors.CodeTempDirMissing, "temporary directory %q does not exist", plan.TempDir)
	}

	if plan.MergeDir != "" && !filesystem.DirExists(plan.MergeDir) {
		return errors.Newf(errors.CodeMergeDirMissing, "merging directory %q does not exist", plan.MergeDir)
	}

	volumes, err := p.volumes(ctx, plan)
	if err != nil {
		return err
	}

	for _, v := range volumes {
		if err := p.probe.VolumeReady(ctx, v); err != nil {
			return errors.Wrap(errors.CodeDriveNotReady, err, v)
		}
	}

	return nil
}

// CheckCapacity verifies that every volume, and memory in RAM mode, can hold
// Margin times contentLength. An unknown length (< 0) skips the checks.
func (p *Preflight) CheckCapacity(ctx context.Context, plan Plan, contentLength int64) error {
	if contentLength < 0 {
		logger.Debugf("Content length unknown, skipping capacity checks")
		return nil
	}

	need := uint64(float64(contentLength) * Margin)

	volumes, err := p.volumes(ctx, plan)
	if err != nil {
		return err
	}

	for _, v := range volumes {
		free, err := p.probe.FreeSpace(ctx, v)
		if err != nil {
			return errors.Wrap(errors.CodeDriveNotReady, err, v)
		}

		if free < need {
			logger.Warnf("Not enough space on %s: need %s, have %s", v, units.BytesSize(float64(need)), units.BytesSize(float64(free)))

			return errors.WithDetails(
				errors.Newf(errors.CodeInsufficientDisk, "not enough space on %s: need %s, have %s",
					v, units.BytesSize(float64(need)), units.BytesSize(float64(free))),
				capacityDetails(v, need, free))
		}
	}

	if plan.UseRAM {
		avail, err := p.probe.AvailableMemory(ctx)
		if err != nil {
			return errors.Wrap(errors.CodeInsufficientMemory, err, "memory")
		}

		if avail < need {
			return errors.WithDetails(
				errors.Newf(errors.CodeInsufficientMemory, "not enough memory: need %s, have %s",
					units.BytesSize(float64(need)), units.BytesSize(float64(avail))),
				capacityDetails("memory", need, avail))
		}
	}

	return nil
}

// CheckChunkSpace verifies that the volume holding path has room for the
// remaining bytes of one chunk plus ChunkHeadroom.
func (p *Preflight) CheckChunkSpace(ctx context.Context, path string, remaining int64) error {
	volume, err := p.probe.VolumeOf(ctx, path)
	if err != nil {
		return errors.Wrap(errors.CodeDriveNotReady, err, path)
	}

	if err := p.probe.VolumeReady(ctx, volume); err != nil {
		return errors.Wrap(errors.CodeDriveNotReady, err, volume)
	}

	free, err := p.probe.FreeSpace(ctx, volume)
	if err != nil {
		return errors.Wrap(errors.CodeDriveNotReady, err, volume)
	}

	need := uint64(max(remaining, 0)) + ChunkHeadroom
	if free < need {
		return errors.WithDetails(
			errors.Newf(errors.CodeInsufficientDisk, "not enough space on %s for chunk: need %s, have %s",
				volume, units.BytesSize(float64(need)), units.BytesSize(float64(free))),
			capacityDetails(volume, need, free))
	}

	return nil
}

func capacityDetails(volume string, need, free uint64) map[string]interface{} {
	return map[string]interface{}{"volume": volume, "need": need, "free": free}
}

// volumes returns the distinct volumes of the output, temp and merge directories.
func (p *Preflight) volumes(ctx context.Context, plan Plan) ([]string, error) {
	tempDir, mergeDir := plan.Dirs()

	seen := make(map[string]struct{})
	var out []string

	for _, dir := range []string{filepath.Dir(plan.OutputPath), tempDir, mergeDir} {
		v, err := p.probe.VolumeOf(ctx, dir)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDriveNotReady, err, dir)
		}

		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out, nil
}
