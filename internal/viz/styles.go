package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00cccc"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff88ff"))

	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))

	// run status
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	graphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
)

// level colors a glyph by where norm falls in [0, 1].
func level(norm float64, s string) string {
	switch {
	case norm > 0.7:
		return okStyle.Render(s)
	case norm > 0.3:
		return pausedStyle.Render(s)
	}
	return failStyle.Render(s)
}

// progressBar renders the completed fraction of a run.
func progressBar(frac float64, width int) string {
	filled := max(0, min(int(frac*float64(width)), width))
	return level(frac, strings.Repeat("█", filled)+strings.Repeat("░", width-filled))
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline sketches the last width values on one line.
func sparkline(values []float64, width int) string {
	values = finite(values)
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

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
		idx := max(0, min(int(norm*float64(len(sparkRunes)-1)), len(sparkRunes)-1))
		b.WriteString(level(norm, string(sparkRunes[idx])))
	}
	return b.String()
}

func separator(width int) string {
	return subtleStyle.Render(strings.Repeat("─", width))
}
