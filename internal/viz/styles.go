package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/armsim/internal/supervisor"
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(48)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)

	sparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	sparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	sparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

var phaseStyles = map[supervisor.Phase]lipgloss.Style{
	supervisor.Idle:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#888899")),
	supervisor.Spawning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")),
	supervisor.Streaming: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")),
	supervisor.Stopped:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444")),
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// PhaseBadge renders a phase label. Busy phases get a spinner frame.
func PhaseBadge(p supervisor.Phase, frame int) string {
	label := strings.ToUpper(p.String())
	if p == supervisor.Spawning || p == supervisor.Streaming {
		label = spinnerFrames[frame%len(spinnerFrames)] + " " + label
	}
	return phaseStyles[p].Render(label)
}

// Sparkline renders the last width values as block characters. Lower is
// greener, matching a fitness that is minimized.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var b strings.Builder
	for _, v := range values {
		norm := (v - lo) / span
		idx := int(norm * float64(len(chars)-1))
		if idx < 0 || idx >= len(chars) {
			idx = 0
		}
		c := string(chars[idx])
		switch {
		case norm < 0.3:
			b.WriteString(sparkHigh.Render(c))
		case norm < 0.7:
			b.WriteString(sparkMid.Render(c))
		default:
			b.WriteString(sparkLow.Render(c))
		}
	}
	return b.String()
}
