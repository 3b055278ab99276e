package solver

import (
	"context"
	"errors"
	"math"
	"testing"
)

func quadratic(x []float64) float64 {
	return (x[0]-3)*(x[0]-3) + 2*(x[1]+1)*(x[1]+1)
}

func TestSolveUnbounded(t *testing.T) {
	for _, method := range []Method{NelderMead, BFGS} {
		t.Run(string(method), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Method = method
			res, err := Solve(context.Background(), Problem{
				Params:    []Param{Free("a", 0), Free("b", 0)},
				Objective: quadratic,
			}, opts)
			if err != nil {
				t.Fatalf("solve failed: %v", err)
			}
			if res.Status != StatusSuccess {
				t.Fatalf("expected success, got %v (%s)", res.Status, res.Message)
			}
			if math.Abs(res.X[0]-3) > 1e-3 || math.Abs(res.X[1]+1) > 1e-3 {
				t.Errorf("expected (3, -1), got %v", res.X)
			}
			if a, ok := res.Value("a"); !ok || a != res.X[0] {
				t.Errorf("Value(a) = %v, %v", a, ok)
			}
			if res.Named()["b"] != res.X[1] {
				t.Error("Named does not match X")
			}
		})
	}
}

func TestSolveRespectsBounds(t *testing.T) {
	tests := []struct {
		name  string
		param Param
		obj   func(x []float64) float64
		check func(v float64) bool
	}{
		{
			name:  "two sided, optimum above",
			param: Bounded("x", 1, 0, 2),
			obj:   func(x []float64) float64 { return (x[0] - 5) * (x[0] - 5) },
			check: func(v float64) bool { return v <= 2 && v > 1.999 },
		},
		{
			name:  "two sided, interior",
			param: Bounded("x", 9, 1, 10),
			obj:   func(x []float64) float64 { return (x[0] - 4) * (x[0] - 4) },
			check: func(v float64) bool { return math.Abs(v-4) < 1e-3 },
		},
		{
			name:  "lower only",
			param: Bounded("x", 2, 0, math.Inf(1)),
			obj:   func(x []float64) float64 { return (x[0] + 1) * (x[0] + 1) },
			check: func(v float64) bool { return v >= 0 && v < 1e-3 },
		},
		{
			name:  "upper only",
			param: Bounded("x", -2, math.Inf(-1), 1),
			obj:   func(x []float64) float64 { return (x[0] - 3) * (x[0] - 3) },
			check: func(v float64) bool { return v <= 1 && v > 1-1e-3 },
		},
		{
			name:  "initial value outside bounds",
			param: Bounded("UA", 1e4, 3e4, 1e5),
			obj:   func(x []float64) float64 { return math.Abs(x[0]-5e4) / 1e4 },
			check: func(v float64) bool { return math.Abs(v-5e4) < 50 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Solve(context.Background(), Problem{Params: []Param{tt.param}, Objective: tt.obj}, DefaultOptions())
			if err != nil {
				t.Fatalf("solve failed: %v", err)
			}
			if !tt.check(res.X[0]) {
				t.Errorf("unexpected solution %g", res.X[0])
			}
		})
	}
}

func TestSolveFixedParameter(t *testing.T) {
	res, err := Solve(context.Background(), Problem{
		Params: []Param{Bounded("fixed", 7, 7, 7), Free("x", 0)},
		Objective: func(x []float64) float64 {
			return (x[1] - x[0]) * (x[1] - x[0])
		},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if res.X[0] != 7 {
		t.Errorf("fixed parameter moved to %g", res.X[0])
	}
	if math.Abs(res.X[1]-7) > 1e-3 {
		t.Errorf("expected x=7, got %g", res.X[1])
	}
}

func TestSolveMultistartFindsGlobalMinimum(t *testing.T) {
	// Two wells; the one near x=+1 is only a local minimum.
	obj := func(x []float64) float64 {
		return (x[0]*x[0]-1)*(x[0]*x[0]-1) + 0.3*x[0]
	}
	opts := DefaultOptions()
	opts.Starts = 16
	opts.Seed = 7

	res, err := Solve(context.Background(), Problem{
		Params:    []Param{Bounded("x", 1, -2, 2)},
		Objective: obj,
	}, opts)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if res.X[0] > 0 {
		t.Errorf("expected global minimum near -1, got %g", res.X[0])
	}
	if res.Evaluations <= 0 {
		t.Error("expected evaluations to be counted")
	}
}

func TestSolveReportsFailure(t *testing.T) {
	res, err := Solve(context.Background(), Problem{
		Params:    []Param{Free("x", 1)},
		Objective: func(x []float64) float64 { return math.NaN() },
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("failure should be reported as a status, got error %v", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("expected failed status, got %v", res.Status)
	}
	if res.Message == "" {
		t.Error("expected a failure message")
	}
}

func TestSolveRejectsNegativeInfinity(t *testing.T) {
	res, err := Solve(context.Background(), Problem{
		Params: []Param{Bounded("x", 5, 0, 10)},
		Objective: func(x []float64) float64 {
			if x[0] > 9 {
				return math.Inf(-1)
			}
			return (x[0] - 2) * (x[0] - 2)
		},
	}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(res.F, 0) || math.Abs(res.X[0]-2) > 1e-3 {
		t.Errorf("expected the finite minimum at 2, got x=%v f=%v", res.X, res.F)
	}
}

func TestSolveErrors(t *testing.T) {
	_, err := Solve(context.Background(), Problem{Params: []Param{Free("x", 0)}}, DefaultOptions())
	if !errors.Is(err, ErrNoObjective) {
		t.Errorf("expected ErrNoObjective, got %v", err)
	}

	_, err = Solve(context.Background(), Problem{
		Params:    []Param{Bounded("x", 0, 2, 1)},
		Objective: func(x []float64) float64 { return x[0] },
	}, DefaultOptions())
	if !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Solve(ctx, Problem{Params: []Param{Free("x", 0)}, Objective: quadratic1D}, DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func quadratic1D(x []float64) float64 { return (x[0] - 1) * (x[0] - 1) }

func TestLoss(t *testing.T) {
	tests := []struct {
		loss Loss
		e    float64
		gap  float64
		want float64
	}{
		{L1, 1.0, 0, 1.0},
		{L1, -1.0, 0, 1.0},
		{L1, 0.1, 0.25, 0},
		{L1, -0.5, 0.25, 0.375},
		{L2, -2, 0.25, 4},
	}
	for _, tt := range tests {
		if got := tt.loss.Eval(tt.e, tt.gap); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%v.Eval(%g, %g) = %g, want %g", tt.loss, tt.e, tt.gap, got, tt.want)
		}
	}
}

func TestParseLoss(t *testing.T) {
	for in, want := range map[string]Loss{"l1": L1, "1": L1, "L2": L2, "2": L2} {
		got, err := ParseLoss(in)
		if err != nil || got != want {
			t.Errorf("ParseLoss(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLoss("huber"); err == nil {
		t.Error("expected error for unknown loss")
	}
}

func TestParamClamp(t *testing.T) {
	p := Bounded("K", 1, 1, 3)
	if p.Clamp(5) != 3 || p.Clamp(-1) != 1 || p.Clamp(2) != 2 {
		t.Error("clamp does not respect bounds")
	}
}
