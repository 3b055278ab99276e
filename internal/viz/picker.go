package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/dynopt/internal/exercise"
)

// picker lists exercises and remembers the one chosen with enter.
type picker struct {
	items  []exercise.Exercise
	cursor int
	chosen string
}

func newPicker(items []exercise.Exercise) picker { return picker{items: items} }

func (m picker) Init() tea.Cmd { return nil }

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.items) > 0 {
			m.chosen = m.items[m.cursor].Name()
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m picker) View() string {
	var b strings.Builder
	b.WriteString("\n\n    " + titleStyle.Render("DYNOPT") + "\n    " + subtleStyle.Render("estimation and control lab") + "\n    " + subtleStyle.Render("─────────────────────────") + "\n\n")
	for i, e := range m.items {
		desc := e.Describe()
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		if i == m.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", titleStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-26s", e.Name())), desc))
		} else {
			b.WriteString(fmt.Sprintf("    %s  %s\n", subtleStyle.Render(fmt.Sprintf("  %-26s", e.Name())), subtleStyle.Render(desc)))
		}
	}
	b.WriteString("\n    " + hintStyle.Render("j/k navigate  enter select  q quit") + "\n")
	return b.String()
}

// Pick shows items and returns the chosen name, or "" when the user quits.
func Pick(items []exercise.Exercise) (string, error) {
	final, err := tea.NewProgram(newPicker(items), tea.WithAltScreen()).Run()
	if err != nil {
		return "", err
	}
	return final.(picker).chosen, nil
}
