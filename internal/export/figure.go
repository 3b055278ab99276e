// Package export renders exercise figures to PNG files with gonum/plot.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var ErrEmptyFigure = errors.New("export: figure has no panels")

type Style int

const (
	Line Style = iota
	Dashed
	Dotted
	Markers
	Step
)

func (s Style) String() string {
	switch s {
	case Dashed:
		return "dashed"
	case Dotted:
		return "dotted"
	case Markers:
		return "markers"
	case Step:
		return "step"
	default:
		return "line"
	}
}

type Series struct {
	Name  string
	X, Y  []float64
	Style Style
}

type Panel struct {
	Title  string
	XLabel string
	YLabel string
	Series []Series
}

type Figure struct {
	Name   string
	Title  string
	Panels []Panel
}

// Dimensions of one panel; a figure stacks its panels vertically.
var (
	PanelWidth  = 8 * vg.Inch
	PanelHeight = 3 * vg.Inch
	DPI         = 120
)

// FileName is the PNG file name derived from the figure name.
func (f Figure) FileName() string {
	name := f.Name
	if name == "" {
		name = f.Title
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "figure"
	}
	return name + ".png"
}

// SavePNG draws the figure and writes it to path.
func SavePNG(fig Figure, path string) error {
	if len(fig.Panels) == 0 {
		return ErrEmptyFigure
	}
	plots := make([][]*plot.Plot, len(fig.Panels))
	for i, panel := range fig.Panels {
		p, err := buildPanel(panel)
		if err != nil {
			return fmt.Errorf("export: panel %d of %s: %w", i, fig.FileName(), err)
		}
		if i == 0 && fig.Title != "" && panel.Title == "" {
			p.Title.Text = fig.Title
		}
		plots[i] = []*plot.Plot{p}
	}

	h := PanelHeight * vg.Length(len(plots))
	c := vgimg.NewWith(vgimg.UseWH(PanelWidth, h), vgimg.UseDPI(DPI))
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      1,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: cannot create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: cannot create png: %w", err)
	}
	bw := bufio.NewWriter(f)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		f.Close()
		return fmt.Errorf("export: cannot write png: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveAll writes every figure into dir and returns the written paths. A
// failing figure does not stop the others.
func SaveAll(dir string, figs []Figure) ([]string, error) {
	var paths []string
	var errs error
	for _, fig := range figs {
		path := filepath.Join(dir, fig.FileName())
		if err := SavePNG(fig, path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, errs
}

func buildPanel(panel Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = panel.XLabel
	p.Y.Label.Text = panel.YLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, s := range panel.Series {
		pts, err := points(s)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Name, err)
		}
		if len(pts) == 0 {
			continue
		}
		col := plotutil.Color(i)
		switch s.Style {
		case Markers:
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = col
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			sc.GlyphStyle.Radius = vg.Points(2)
			p.Add(sc)
			p.Legend.Add(s.Name, sc)
		default:
			l, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = col
			l.LineStyle.Width = vg.Points(1.5)
			switch s.Style {
			case Dashed:
				l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			case Dotted:
				l.LineStyle.Dashes = []vg.Length{vg.Points(1.5), vg.Points(2.5)}
			case Step:
				l.StepStyle = plotter.PostStep
			}
			p.Add(l)
			p.Legend.Add(s.Name, l)
		}
	}
	return p, nil
}

// points pairs X and Y and drops samples that are not finite.
func points(s Series) (plotter.XYs, error) {
	if len(s.X) != len(s.Y) {
		return nil, fmt.Errorf("%d x values for %d y values", len(s.X), len(s.Y))
	}
	pts := make(plotter.XYs, 0, len(s.X))
	for i := range s.X {
		if !finite(s.X[i]) || !finite(s.Y[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: s.X[i], Y: s.Y[i]})
	}
	return pts, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
