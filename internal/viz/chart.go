package viz

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dynopt/internal/exercise"
	"github.com/san-kum/dynopt/internal/export"
)

const (
	chartHeight = 10
	chartWidth  = 80
)

// RenderSeries draws values as a line chart. Non-finite points are dropped
// and an empty series renders as an empty string.
func RenderSeries(caption string, values []float64) string {
	values = finite(values)
	if len(values) == 0 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(chartHeight),
		asciigraph.Width(chartWidth),
		asciigraph.Caption(caption),
	)
}

// RenderPanel draws every series of a panel on shared axes.
func RenderPanel(caption string, panel export.Panel) string {
	var data [][]float64
	var names []string
	for _, s := range panel.Series {
		v := finite(s.Y)
		if len(v) == 0 {
			continue
		}
		data = append(data, v)
		names = append(names, s.Name)
	}
	if len(data) == 0 {
		return ""
	}
	if len(names) > 1 {
		caption += " (" + strings.Join(names, ", ") + ")"
	}
	return asciigraph.PlotMany(data,
		asciigraph.Height(chartHeight),
		asciigraph.Width(chartWidth),
		asciigraph.Caption(caption),
	)
}

// RenderReport writes one chart per figure panel followed by the scalar
// results.
func RenderReport(w io.Writer, rep *exercise.Report) error {
	var b strings.Builder
	for _, fig := range rep.Figures {
		b.WriteString(fig.Title + "\n")
		for _, p := range fig.Panels {
			caption := p.YLabel
			if p.Title != "" {
				caption = p.Title
			}
			if chart := RenderPanel(caption, p); chart != "" {
				b.WriteString(chart + "\n\n")
			}
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(rep.Scalars) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tVALUE")
	for _, name := range rep.ScalarNames() {
		fmt.Fprintf(tw, "%s\t%.6g\n", name, rep.Scalars[name])
	}
	return tw.Flush()
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
