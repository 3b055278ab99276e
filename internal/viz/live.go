package viz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/solver"
)

const (
	historyCapacity = 200
	minInterval     = 10 * time.Millisecond
	maxInterval     = 2 * time.Second
)

var (
	chartStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(40)
)

type TickMsg time.Time

// LoopModel steps a closed loop one cycle per tick and shows the output
// against its estimate and setpoint band, the moves and the parameter
// estimates.
type LoopModel struct {
	ctx      context.Context
	title    string
	loop     *loop.Loop
	interval time.Duration
	records  []loop.Record
	running  bool
	err      error
}

func NewLoopModel(ctx context.Context, title string, l *loop.Loop, interval time.Duration) LoopModel {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return LoopModel{
		ctx:      ctx,
		title:    title,
		loop:     l,
		interval: interval,
		records:  make([]loop.Record, 0, historyCapacity),
		running:  true,
	}
}

func (m LoopModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m LoopModel) Init() tea.Cmd { return m.tick() }

// Update handles keys and runs a cycle per tick while not paused.
func (m LoopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "+", "=":
			m.interval = max(m.interval/2, minInterval)
		case "-", "_":
			m.interval = min(m.interval*2, maxInterval)
		}
	case TickMsg:
		if m.running && !m.loop.Done() {
			rec, err := m.loop.Step(m.ctx)
			if err != nil {
				m.err = err
				return m, tea.Quit
			}
			m.records = append(m.records, rec)
			if len(m.records) > historyCapacity {
				m.records = m.records[1:]
			}
		}
		if m.loop.Done() {
			return m, nil
		}
		return m, m.tick()
	}
	return m, nil
}

// Err is the error that stopped the loop, if any.
func (m LoopModel) Err() error { return m.err }

// History returns every cycle run so far.
func (m LoopModel) History() *loop.History { return m.loop.History() }

func (m LoopModel) column(f func(loop.Record) float64) []float64 {
	out := make([]float64, len(m.records))
	for i, r := range m.records {
		out[i] = f(r)
	}
	return out
}

func (m LoopModel) status() string {
	switch {
	case m.loop.Done():
		return okStyle.Render("DONE")
	case !m.running:
		return pausedStyle.Render("PAUSED")
	}
	return okStyle.Render("RUNNING")
}

func (m LoopModel) View() string {
	var charts strings.Builder
	if len(m.records) > 1 {
		outputs := [][]float64{
			finite(m.column(func(r loop.Record) float64 { return r.YMeas })),
			finite(m.column(func(r loop.Record) float64 { return r.YEst })),
			finite(m.column(func(r loop.Record) float64 { return r.SP })),
		}
		var data [][]float64
		for _, s := range outputs {
			if len(s) > 0 {
				data = append(data, s)
			}
		}
		charts.WriteString(graphStyle.Render(asciigraph.PlotMany(data,
			asciigraph.Height(12), asciigraph.Width(60),
			asciigraph.Caption("y meas, y est, sp"))) + "\n\n")
		charts.WriteString(graphStyle.Render(asciigraph.Plot(m.column(func(r loop.Record) float64 { return r.U }),
			asciigraph.Height(5), asciigraph.Width(60),
			asciigraph.Caption("u"))))
	} else {
		charts.WriteString(subtleStyle.Render("waiting for the first cycles..."))
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	done := len(m.loop.History().Records)
	total := m.loop.Cycles()
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
	}
	s.WriteString(progressBar(frac, 24) + fmt.Sprintf(" %d/%d\n\n", done, total))

	if n := len(m.records); n > 0 {
		r := m.records[n-1]
		row := func(label string, v float64) {
			s.WriteString(labelStyle.Render(label) + valueStyle.Render(fmt.Sprintf("%.3f", v)) + "\n")
		}
		row("Time", r.Time)
		row("u", r.U)
		row("y", r.Y)
		row("y meas", r.YMeas)
		row("y est", r.YEst)
		row("sp", r.SP)
		s.WriteString(labelStyle.Render("Estimate"))
		if r.EstStatus == solver.StatusSuccess {
			s.WriteString(okStyle.Render("ok") + "\n")
		} else {
			s.WriteString(failStyle.Render("failed") + "\n")
		}

		s.WriteString("\nPARAMETERS\n")
		names := make([]string, 0, len(r.Params))
		for k := range r.Params {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) == 0 {
			s.WriteString(labelStyle.Render("  (none)") + "\n")
		}
		for _, k := range names {
			trail := m.column(func(rec loop.Record) float64 { return rec.Params[k] })
			s.WriteString(labelStyle.Render(k) + valueStyle.Render(fmt.Sprintf("%-9.3f", r.Params[k])) + " " + sparkline(trail, 12) + "\n")
		}
	}
	s.WriteString("\n" + separator(30) + "\n")
	s.WriteString(hintStyle.Render(fmt.Sprintf("space pause  +/- speed (%s)  q quit", m.interval)))

	return lipgloss.JoinHorizontal(lipgloss.Top, chartStyle.Render(charts.String()), statsStyle.Render(s.String()))
}

// RunLoop shows l in the terminal until it finishes or the user quits, and
// returns the cycles that ran.
func RunLoop(ctx context.Context, title string, l *loop.Loop, interval time.Duration) (*loop.History, error) {
	final, err := tea.NewProgram(NewLoopModel(ctx, title, l, interval), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return l.History(), err
	}
	if m, ok := final.(LoopModel); ok && m.Err() != nil {
		return m.History(), m.Err()
	}
	return l.History(), nil
}
