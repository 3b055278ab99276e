package estimate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/sim"
	"github.com/san-kum/dynopt/internal/solver"
)

func decayData(t *testing.T) Data {
	t.Helper()
	joined, err := dataset.OuterJoin(dataset.DecaySet1(), dataset.DecaySet2(), "time")
	if err != nil {
		t.Fatal(err)
	}
	times, _ := joined.Column("time")
	x1, _ := joined.Column("x1")
	x2, _ := joined.Column("x2")
	return Data{Times: times, Outputs: Columns(x1, x2)}
}

// bestDecayRate scans k and solves each initial condition in closed form.
func bestDecayRate(d Data) float64 {
	best, bestSSE := 0.0, math.Inf(1)
	for k := 0.1; k < 10; k += 1e-4 {
		sse := 0.0
		for i := 0; i < 2; i++ {
			var yy, ye, ee float64
			for s, tm := range d.Times {
				y := d.Outputs[s][i]
				if math.IsNaN(y) {
					continue
				}
				e := math.Exp(-k * tm)
				yy += y * y
				ye += y * e
				ee += e * e
			}
			sse += yy - ye*ye/ee
		}
		if sse < bestSSE {
			best, bestSSE = k, sse
		}
	}
	return best
}

func TestFitSharedDecayRate(t *testing.T) {
	d := decayData(t)
	p := Problem{
		Params: []solver.Param{{Name: "k", Init: 1, Lower: 0, Upper: math.Inf(1)}},
		FreeInitial: []Initial{
			{Index: 0, Param: solver.Free("x1_0", 2)},
			{Index: 1, Param: solver.Free("x2_0", 3.6)},
		},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewExpDecay(theta[0], 2), dynamo.State{2, 3.6}
		},
		MaxStep: 0.01,
		Loss:    solver.L2,
	}
	opts := solver.DefaultOptions()
	opts.Method = solver.BFGS

	res, err := Fit(context.Background(), p, d, opts)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if res.Status != solver.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Message)
	}

	want := bestDecayRate(d)
	if math.Abs(res.Params["k"]-want) > 0.01 {
		t.Errorf("expected k near %.4f, got %.4f", want, res.Params["k"])
	}
	if len(res.Predicted) != len(d.Times) {
		t.Errorf("expected %d predictions, got %d", len(d.Times), len(res.Predicted))
	}
	// predictions follow the analytic solution from the fitted initial state
	for s, tm := range d.Times {
		want := res.Initial[0] * math.Exp(-res.Params["k"]*tm)
		if math.Abs(res.Predicted[s][0]-want) > 1e-6 {
			t.Fatalf("prediction %d: expected %f, got %f", s, want, res.Predicted[s][0])
		}
	}
}

func TestFitThirdOrder(t *testing.T) {
	f := dataset.ThirdOrderData()
	times, _ := f.Column("time")
	x, _ := f.Column("x")
	d := Data{Times: times, Outputs: Columns(x)}

	p := Problem{
		Params: []solver.Param{
			solver.Free("a", 0), solver.Free("b", 0), solver.Free("c", 0), solver.Free("d", 0),
		},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewThirdOrder(theta[0], theta[1], theta[2], theta[3]), dynamo.State{2, 0, 0}
		},
		Observe: func(_ dynamo.System, x dynamo.State) []float64 { return []float64{x[0]} },
		MaxStep: 0.01,
		Loss:    solver.L2,
	}
	opts := solver.DefaultOptions()
	opts.Starts = 4
	opts.Seed = 3

	res, err := Fit(context.Background(), p, d, opts)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	initial := 0.0
	for _, v := range x {
		initial += (v - 2) * (v - 2)
	}
	sse := SSE(res.Predicted, d)
	if sse >= initial/10 {
		t.Errorf("expected SSE below %.2f, got %.4f", initial/10, sse)
	}
	if math.Abs(sse-res.Objective) > 1e-6 {
		t.Errorf("objective %f does not match SSE %f", res.Objective, sse)
	}
}

func TestFitFirstOrderProcess(t *testing.T) {
	truth := models.NewFOPDT(2, 4)
	var times []float64
	var inputs []dynamo.Control
	for k := 0; k <= 80; k++ {
		tm := float64(k) * 0.5
		times = append(times, tm)
		u := 0.0
		switch {
		case tm >= 20:
			u = 3
		case tm >= 2:
			u = 1
		}
		inputs = append(inputs, dynamo.Control{u})
	}
	states, err := sim.Trajectory(integrators.NewRK4(), truth, dynamo.State{0}, times, inputs, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	outputs := make([][]float64, len(states))
	for k, x := range states {
		outputs[k] = []float64{truth.Output(x)}
	}

	p := Problem{
		Params: []solver.Param{
			solver.Bounded("K", 1, 1, 3),
			solver.Bounded("tau", 5, 1, 10),
		},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewFOPDT(theta[0], theta[1]), dynamo.State{0}
		},
		Observe: func(sys dynamo.System, x dynamo.State) []float64 {
			return []float64{sys.(*models.FOPDT).Output(x)}
		},
		MaxStep: 0.05,
		Loss:    solver.L2,
	}
	res, err := Fit(context.Background(), p, Data{Times: times, Inputs: inputs, Outputs: outputs}, solver.DefaultOptions())
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if math.Abs(res.Params["K"]-2) > 0.02 {
		t.Errorf("expected K near 2, got %f", res.Params["K"])
	}
	if math.Abs(res.Params["tau"]-4) > 0.05 {
		t.Errorf("expected tau near 4, got %f", res.Params["tau"])
	}
}

func TestFitErrors(t *testing.T) {
	build := func(theta []float64) (dynamo.System, dynamo.State) {
		return models.NewExpDecay(theta[0], 1), dynamo.State{1}
	}
	base := Problem{Params: []solver.Param{solver.Free("k", 1)}, Build: build, Loss: solver.L2}

	tests := []struct {
		name string
		p    Problem
		d    Data
		want error
	}{
		{
			name: "no model",
			p:    Problem{},
			d:    Data{Times: []float64{0}, Outputs: [][]float64{{1}}},
			want: ErrNoModel,
		},
		{
			name: "nothing measured",
			p:    base,
			d:    Data{Times: []float64{0, 1}, Outputs: [][]float64{{math.NaN()}, {math.NaN()}}},
			want: ErrNoData,
		},
		{
			name: "ragged outputs",
			p:    base,
			d:    Data{Times: []float64{0, 1}, Outputs: [][]float64{{1}}},
			want: dynamo.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(context.Background(), tt.p, tt.d, solver.DefaultOptions())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	bad := base
	bad.Integrator = "leapfrog"
	if _, err := Fit(context.Background(), bad, Data{Times: []float64{0, 1}, Outputs: [][]float64{{1}, {0.5}}}, solver.DefaultOptions()); err == nil {
		t.Error("expected error for unknown integrator")
	}
}

func TestFitMaskedSamples(t *testing.T) {
	d := Data{
		Times:   []float64{0, 1, 2},
		Outputs: [][]float64{{1}, {100}, {math.Exp(-2)}},
		Mask:    [][]bool{{true}, {false}, {true}},
	}
	p := Problem{
		Params: []solver.Param{{Name: "k", Init: 0.5, Lower: 0, Upper: math.Inf(1)}},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewExpDecay(theta[0], 1), dynamo.State{1}
		},
		MaxStep: 0.01,
		Loss:    solver.L2,
	}
	res, err := Fit(context.Background(), p, d, solver.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Params["k"]-1) > 1e-3 {
		t.Errorf("masked outlier should be ignored, got k=%f", res.Params["k"])
	}
}

func TestSimulateFOPDT(t *testing.T) {
	times := make([]float64, 200)
	u := make([]float64, 200)
	for k := range times {
		times[k] = float64(k) * 0.5
		if k >= 10 {
			u[k] = 1
		}
	}
	y := SimulateFOPDT(FOPDT{K: 2, Tau: 3, Theta: 2}, times, u, 1)
	if y[10] != 1 || y[14] != 1 {
		t.Errorf("output moved before the dead time elapsed: %v", y[10:16])
	}
	if y[15] <= 1 {
		t.Errorf("expected response after dead time, got %f", y[15])
	}
	if math.Abs(y[len(y)-1]-3) > 1e-6 {
		t.Errorf("expected steady state 3, got %f", y[len(y)-1])
	}
}

func TestFitFOPDT(t *testing.T) {
	var times, u []float64
	for k := 0; k <= 60; k++ {
		times = append(times, float64(k))
		v := 0.0
		if k >= 5 {
			v = 1
		}
		u = append(u, v)
	}
	truth := FOPDT{K: 2, Tau: 5, Theta: 2}
	y := SimulateFOPDT(truth, times, u, 0)

	opts := solver.DefaultOptions()
	opts.Starts = 3
	opts.Seed = 7
	fit, err := FitFOPDT(context.Background(), times, u, y, FOPDT{K: 1, Tau: 3, Theta: 1}, opts)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if math.Abs(fit.K-truth.K) > 0.05 || math.Abs(fit.Tau-truth.Tau) > 0.2 || math.Abs(fit.Theta-truth.Theta) > 0.2 {
		t.Errorf("expected %+v, got %+v", truth, fit.FOPDT)
	}
	if fit.SSE > 1e-3 {
		t.Errorf("expected near-zero SSE, got %g", fit.SSE)
	}

	if _, err := FitFOPDT(context.Background(), times, u[:10], y, truth, opts); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}
