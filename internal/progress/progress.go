package progress

// Progress is a point-in-time view of a transfer. Sizes are in bytes and
// GetTotalSize returns -1 while the length is unknown.
type Progress interface {
	GetTotalSize() int64
	GetDownloaded() int64
	GetPercentage() float64
	GetSpeedBPS() int64
	GetETA() string
}

// Source reports the progress of a running or finished transfer.
type Source interface {
	Progress() Progress
	DownloadedBytes() int64
}

// Remaining returns the bytes left to transfer, or -1 when the total is unknown.
func Remaining(p Progress) int64 {
	total := p.GetTotalSize()
	if total < 0 {
		return -1
	}

	return max(total-p.GetDownloaded(), 0)
}
