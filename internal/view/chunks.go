package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	dlhttp "github.com/NamanBalaji/mtdl/internal/http"
	"github.com/NamanBalaji/mtdl/internal/status"
)

const barWidth = 24

func stateStyle(s status.State) lipgloss.Style {
	switch s {
	case status.Preparing:
		return StatePreparing
	case status.Connecting:
		return StateConnecting
	case status.Connected:
		return StateConnected
	case status.Downloading:
		return StateDownloading
	case status.Finished:
		return StateFinished
	case status.Errored:
		return StateErrored
	default:
		return StateUnknown
	}
}

// StateLabel returns the styled name of a chunk state.
func StateLabel(s status.State) string {
	var icon string

	switch s {
	case status.Preparing:
		icon = "○"
	case status.Connecting, status.Connected:
		icon = "◌"
	case status.Downloading:
		icon = "●"
	case status.Finished:
		icon = "✔"
	case status.Errored:
		icon = "✖"
	default:
		icon = "?"
	}

	return stateStyle(s).Render(icon + " " + s.String())
}

// ChunkBar returns a styled progress bar of the given width.
func ChunkBar(width int, percent float64, s status.State) string {
	if width <= 0 {
		return ""
	}

	percent = min(max(percent, 0), 1)

	filledWidth := int(float64(width) * percent)
	emptyWidth := width - filledWidth

	filled := lipgloss.NewStyle().Foreground(stateStyle(s).GetForeground())

	return filled.Render(strings.Repeat("█", filledWidth)) + BarEmptyStyle.Render(strings.Repeat("░", emptyWidth))
}

func fraction(c dlhttp.ChunkSnapshot) float64 {
	if c.State == status.Finished {
		return 1
	}

	if c.TotalBytes <= 0 {
		return 0
	}

	return float64(c.ProcessedBytes) / float64(c.TotalBytes)
}

// ActiveChunks counts chunks that have not yet finished or failed.
func ActiveChunks(chunks map[int]dlhttp.ChunkSnapshot) int {
	active := 0

	for _, c := range chunks {
		if !c.State.IsTerminal() {
			active++
		}
	}

	return active
}

// ChunkTable renders one line per chunk, ordered by chunk id.
func ChunkTable(chunks map[int]dlhttp.ChunkSnapshot) string {
	ids := make([]int, 0, len(chunks))
	for id := range chunks {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	var b strings.Builder

	for _, id := range ids {
		c := chunks[id]

		total := "?"
		if c.TotalBytes >= 0 {
			total = units.BytesSize(float64(c.TotalBytes))
		}

		label := lipgloss.NewStyle().Width(16).Render(StateLabel(c.State))

		fmt.Fprintf(&b, "%s %s %s %s %s\n",
			LabelStyle.Render(fmt.Sprintf("#%-3d", c.TaskID)),
			label,
			ChunkBar(barWidth, fraction(c), c.State),
			ValueStyle.Render(fmt.Sprintf("%9s / %-9s", units.BytesSize(float64(c.ProcessedBytes)), total)),
			LabelStyle.Render(fmt.Sprintf("%s try %d", c.Backing, c.Attempt)),
		)
	}

	return b.String()
}

// Summary renders the outcome of a finished run.
func Summary(res *dlhttp.Result) string {
	elapsed := res.FinishedAt.Sub(res.StartedAt)

	if !res.Succeeded() {
		msg := fmt.Sprintf("✖ %s (%d)", dlErrors.CodeText(res.Code), res.Code)
		if res.Message != "" {
			msg += ": " + res.Message
		}

		return ErrorStyle.Render(msg)
	}

	lines := []string{
		fmt.Sprintf("✔ saved %s", res.FinalPath),
		fmt.Sprintf("%s in %s over %d chunk(s)",
			units.BytesSize(float64(res.BytesTransferred)), units.HumanDuration(elapsed), res.Chunks),
	}

	return SuccessStyle.Render(strings.Join(lines, "\n"))
}
