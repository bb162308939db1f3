package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemProbe answers the resource questions asked before and during a download.
type SystemProbe interface {
	// VolumeOf returns an identifier of the volume holding path. path need not exist.
	VolumeOf(ctx context.Context, path string) (string, error)
	// VolumeReady returns an error when volume cannot be used.
	VolumeReady(ctx context.Context, volume string) error
	FreeSpace(ctx context.Context, volume string) (uint64, error)
	AvailableMemory(ctx context.Context) (uint64, error)
}

type systemProbe struct{}

// NewSystemProbe returns a SystemProbe backed by the host's mount table.
func NewSystemProbe() SystemProbe {
	return systemProbe{}
}

func (systemProbe) VolumeOf(ctx context.Context, path string) (string, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return "", err
	}

	partitions, err := disk.PartitionsWithContext(ctx, true)
	if err != nil || len(partitions) == 0 {
		return dir, nil
	}

	best := ""
	for _, p := range partitions {
		if isUnder(dir, p.Mountpoint) && len(p.Mountpoint) > len(best) {
			best = p.Mountpoint
		}
	}

	if best == "" {
		return dir, nil
	}

	return best, nil
}

func (systemProbe) VolumeReady(ctx context.Context, volume string) error {
	usage, err := disk.UsageWithContext(ctx, volume)
	if err != nil {
		return err
	}

	if usage.Total == 0 {
		return fmt.Errorf("volume %s reports no capacity", volume)
	}

	return nil
}

func (systemProbe) FreeSpace(ctx context.Context, volume string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, volume)
	if err != nil {
		return 0, err
	}

	return usage.Free, nil
}

func (systemProbe) AvailableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return vm.Available, nil
}

// existingAncestor returns the closest existing directory at or above path.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return abs, nil
		}
		abs = parent
	}
}

func isUnder(path, mount string) bool {
	if mount == "" {
		return false
	}

	if path == mount {
		return true
	}

	prefix := mount
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return strings.HasPrefix(path, prefix)
}
