package sysid

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dataset"
)

func noiseFreeLab() dataset.HeaterLab {
	cfg := dataset.DefaultHeaterLab()
	cfg.Noise = 0
	return cfg
}

func TestIdentifySISO(t *testing.T) {
	f := dataset.SyntheticSISO(noiseFreeLab())
	u, _ := f.Rows("voltage")
	y, _ := f.Rows("temperature")

	res, err := Identify(u, y, 2, 2, PredMeas)
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if math.Abs(res.Gain[0][0]-0.6) > 1e-3 {
		t.Errorf("expected gain 0.6, got %f", res.Gain[0][0])
	}
	for k := range y {
		if math.Abs(res.Predicted[k][0]-y[k][0]) > 1e-6 {
			t.Fatalf("one-step prediction off at %d: %f vs %f", k, res.Predicted[k][0], y[k][0])
		}
	}

	ss, err := res.Model.SteadyState([]float64{0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ss[0]-23) > 1e-2 {
		t.Errorf("expected ambient steady state 23, got %f", ss[0])
	}
}

func TestIdentifyModelPrediction(t *testing.T) {
	f := dataset.SyntheticSISO(noiseFreeLab())
	u, _ := f.Rows("voltage")
	y, _ := f.Rows("temperature")

	res, err := Identify(u, y, 2, 2, PredModel)
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	for k := range y {
		if math.Abs(res.Predicted[k][0]-y[k][0]) > 1e-3 {
			t.Fatalf("free-run prediction off at %d: %f vs %f", k, res.Predicted[k][0], y[k][0])
		}
	}
}

func TestIdentifyMIMO(t *testing.T) {
	cfg := noiseFreeLab()
	f := dataset.SyntheticMIMO(cfg)
	u, _ := f.Rows("H1", "H2")
	y, _ := f.Rows("T1", "T2")

	res, err := Identify(u, y, 2, 2, PredMeas)
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	want := [][]float64{
		{cfg.Gain, cfg.Coupling * cfg.Gain},
		{cfg.Coupling * cfg.Gain, cfg.Gain},
	}
	for i := range want {
		for j := range want[i] {
			if math.Abs(res.Gain[i][j]-want[i][j]) > 1e-3 {
				t.Errorf("gain[%d][%d]: expected %f, got %f", i, j, want[i][j], res.Gain[i][j])
			}
		}
	}
}

func TestSimulateStepTest(t *testing.T) {
	m := &ARX{
		NA: 1,
		NB: 1,
		A:  [][]float64{{0.5}},
		B:  [][][]float64{{{1}}},
		C:  []float64{0},
	}
	if g := m.Gain()[0][0]; g != 2 {
		t.Fatalf("expected gain 2, got %f", g)
	}

	u := make([][]float64, 60)
	for k := range u {
		u[k] = []float64{1}
	}
	y, err := m.Simulate(u, [][]float64{{0}})
	if err != nil {
		t.Fatal(err)
	}
	if y[1][0] != 1 || y[2][0] != 1.5 {
		t.Errorf("unexpected response %v", y[:3])
	}
	if math.Abs(y[59][0]-2) > 1e-9 {
		t.Errorf("expected steady state 2, got %f", y[59][0])
	}

	if _, err := m.Simulate(u, nil); !errors.Is(err, ErrDimensions) {
		t.Errorf("expected ErrDimensions, got %v", err)
	}
	if _, err := m.SteadyState([]float64{1, 2}); !errors.Is(err, ErrDimensions) {
		t.Errorf("expected ErrDimensions, got %v", err)
	}
}

func TestIdentifyErrors(t *testing.T) {
	rows := func(n int, v float64) [][]float64 {
		out := make([][]float64, n)
		for k := range out {
			out[k] = []float64{v}
		}
		return out
	}

	tests := []struct {
		name string
		u, y [][]float64
		want error
	}{
		{"mismatched lengths", rows(10, 0), rows(9, 1), ErrDimensions},
		{"too short", rows(5, 0), rows(5, 1), ErrNotEnoughSamples},
		{"no excitation", rows(50, 0), rows(50, 1), ErrSingular},
		{"not finite", rows(50, math.NaN()), rows(50, 1), ErrDimensions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Identify(tt.u, tt.y, 2, 2, PredMeas); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParsePrediction(t *testing.T) {
	if p, err := ParsePrediction("model"); err != nil || p != PredModel {
		t.Errorf("expected PredModel, got %v %v", p, err)
	}
	if _, err := ParsePrediction("future"); err == nil {
		t.Error("expected error")
	}
}
