package view

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	Base     = lipgloss.Color("#1e1e2e")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Surface0 = lipgloss.Color("#313244")

	Mauve    = lipgloss.Color("#cba6f7")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")
	Yellow   = lipgloss.Color("#f9e2af")
	Green    = lipgloss.Color("#a6e3a1")
	Teal     = lipgloss.Color("#94e2d5")
	Sapphire = lipgloss.Color("#74c7ec")
	Lavender = lipgloss.Color("#b4befe")
)

var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Red).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Red).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Base).
			Background(Green).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().Foreground(Lavender).Bold(true)
	LabelStyle  = lipgloss.NewStyle().Foreground(Subtext0)
	ValueStyle  = lipgloss.NewStyle().Foreground(Text)

	BarEmptyStyle = lipgloss.NewStyle().Foreground(Surface0)

	StatePreparing   = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StateConnecting  = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	StateConnected   = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	StateDownloading = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StateFinished    = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StateErrored     = lipgloss.NewStyle().Foreground(Red).Bold(true)
	StateUnknown     = lipgloss.NewStyle().Foreground(Mauve).Bold(true)
)
