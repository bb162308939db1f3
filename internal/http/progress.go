package http

import (
	"fmt"
	"time"
)

const smoothingWindow = 5 * time.Second

// Progress is the aggregate state of a run.
type Progress struct {
	TotalSize  int64
	Downloaded int64
	Percentage float64
	SpeedBPS   int64
	ETA        time.Duration
}

func (p Progress) GetTotalSize() int64    { return p.TotalSize }
func (p Progress) GetDownloaded() int64   { return p.Downloaded }
func (p Progress) GetPercentage() float64 { return p.Percentage }
func (p Progress) GetSpeedBPS() int64     { return p.SpeedBPS }

func (p Progress) GetETA() string {
	if p.ETA == 0 {
		return "unknown"
	}

	hrs := int(p.ETA.Hours())
	mins := int(p.ETA.Minutes()) % 60
	secs := int(p.ETA.Seconds()) % 60

	switch {
	case hrs > 0:
		return fmt.Sprintf("%dh %dm %ds", hrs, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func newProgress(total, downloaded, speedBPS int64) Progress {
	p := Progress{
		TotalSize:  total,
		Downloaded: downloaded,
		SpeedBPS:   speedBPS,
	}

	if total > 0 {
		p.Percentage = float64(downloaded) / float64(total) * 100
		if downloaded >= total {
			p.Percentage = 100
		}

		if remaining := total - downloaded; remaining > 0 && speedBPS > 0 {
			p.ETA = time.Duration(float64(remaining)/float64(speedBPS)) * time.Second
		}
	}

	return p
}

type sample struct {
	t     time.Time
	bytes int64
}

// speedMeter averages the transfer rate over a sliding window.
type speedMeter struct {
	window  time.Duration
	history []sample
}

func newSpeedMeter(window time.Duration) *speedMeter {
	return &speedMeter{window: window}
}

func (m *speedMeter) observe(now time.Time, total int64) int64 {
	m.history = append(m.history, sample{t: now, bytes: total})

	cutoff := now.Add(-m.window)
	for len(m.history) > 1 && m.history[0].t.Before(cutoff) {
		m.history = m.history[1:]
	}

	if len(m.history) < 2 {
		return 0
	}

	oldest := m.history[0]

	elapsed := now.Sub(oldest.t).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return int64(float64(total-oldest.bytes) / elapsed)
}
