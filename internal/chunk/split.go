package chunk

import (
	"path/filepath"
	"strconv"

	"github.com/NamanBalaji/mtdl/pkg/http"
)

// SplitThreshold is the span at or below which a download is never split.
const SplitThreshold int64 = 1024 * 1024

// Split partitions rng of a resource of contentLength bytes into at most
// chunkCount contiguous ranges, using SplitThreshold.
func Split(contentLength int64, rng http.ByteRange, chunkCount int) ([]http.ByteRange, error) {
	return SplitWithThreshold(contentLength, rng, chunkCount, SplitThreshold)
}

// SplitWithThreshold is Split with an explicit threshold. The ranges are
// ascending, disjoint and cover rng exactly; the last one absorbs the
// remainder of the integer division. An unknown contentLength (< 0) yields rng
// unchanged as a single range.
func SplitWithThreshold(contentLength int64, rng http.ByteRange, chunkCount int, threshold int64) ([]http.ByteRange, error) {
	if !rng.Valid() {
		return nil, invalidRange(rng)
	}

	resolved, err := rng.Resolve(contentLength)
	if err != nil {
		return nil, err
	}

	span := resolved.Length()
	if span < 0 || chunkCount <= 1 || span <= threshold || span <= int64(chunkCount) {
		return []http.ByteRange{resolved}, nil
	}

	size := span / int64(chunkCount)
	ranges := make([]http.ByteRange, chunkCount)

	start := resolved.From
	for i := 0; i < chunkCount; i++ {
		end := start + size - 1
		if i == chunkCount-1 {
			end = resolved.To
		}

		ranges[i] = http.ByteRange{From: start, To: end}
		start = end + 1
	}

	return ranges, nil
}

func invalidRange(rng http.ByteRange) error {
	_, err := http.NewByteRange(rng.From, rng.To)
	return err
}

// ChunkFileName names the temp file of chunk taskID of outputPath.
func ChunkFileName(outputPath string, taskID, chunkCount int) string {
	base := filepath.Base(outputPath)
	if chunkCount <= 1 {
		return base + ".tmp"
	}

	return base + ".chunk_" + strconv.Itoa(taskID) + ".tmp"
}

// MergeFileName names the temp file the merge writes into.
func MergeFileName(outputPath string) string {
	return filepath.Base(outputPath) + ".tmp"
}
