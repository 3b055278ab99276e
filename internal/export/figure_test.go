package export

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sampleFigure() Figure {
	x := []float64{0, 1, 2, 3}
	return Figure{
		Name:  "MHE Tracking",
		Title: "Estimator",
		Panels: []Panel{
			{YLabel: "y", Series: []Series{
				{Name: "measured", X: x, Y: []float64{0, 1, math.NaN(), 3}, Style: Markers},
				{Name: "estimated", X: x, Y: []float64{0, 1.1, 2, 2.9}},
			}},
			{YLabel: "u", XLabel: "time", Series: []Series{
				{Name: "u", X: x, Y: []float64{1, 1, 2, 2}, Style: Step},
				{Name: "limit", X: x, Y: []float64{3, 3, 3, 3}, Style: Dashed},
			}},
		},
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "fig.png")
	if err := SavePNG(sampleFigure(), path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}
}

func TestSavePNGErrors(t *testing.T) {
	dir := t.TempDir()
	if err := SavePNG(Figure{Name: "empty"}, filepath.Join(dir, "e.png")); err != ErrEmptyFigure {
		t.Errorf("expected ErrEmptyFigure, got %v", err)
	}
	bad := Figure{Panels: []Panel{{Series: []Series{{Name: "x", X: []float64{1, 2}, Y: []float64{1}}}}}}
	if err := SavePNG(bad, filepath.Join(dir, "b.png")); err == nil {
		t.Error("expected error for mismatched series")
	}
}

func TestSaveAllAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	figs := []Figure{sampleFigure(), {Name: "empty"}, {Name: "also empty"}}
	paths, err := SaveAll(dir, figs)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "mhe_tracking.png" {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		fig  Figure
		want string
	}{
		{Figure{Name: "Bad Data/L1"}, "bad_data_l1.png"},
		{Figure{Title: "ARX"}, "arx.png"},
		{Figure{}, "figure.png"},
	}
	for _, tt := range tests {
		if got := tt.fig.FileName(); got != tt.want {
			t.Errorf("FileName() = %q, want %q", got, tt.want)
		}
	}
}
