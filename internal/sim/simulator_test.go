package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
)

type decay struct{}

func (d *decay) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{-x[0] + u[0]}
}

func (d *decay) StateDim() int   { return 1 }
func (d *decay) ControlDim() int { return 1 }

type blowup struct{}

func (b *blowup) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[0] * x[0] * 1e6}
}

func (b *blowup) StateDim() int   { return 1 }
func (b *blowup) ControlDim() int { return 0 }

type countingObserver struct{ steps int }

func (c *countingObserver) OnStep(x dynamo.State, u dynamo.Control, t float64) { c.steps++ }

func TestSimulatorRun(t *testing.T) {
	s := New(&decay{}, integrators.NewRK4())
	obs := &countingObserver{}
	s.AddObserver(obs)

	cfg := dynamo.Config{Dt: 0.1, Duration: 1.0, MaxStep: 0.05, ValidateState: true}
	result, err := s.Run(context.Background(), dynamo.State{1.0}, cfg, Constant(dynamo.Control{0}))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if obs.steps != 10 {
		t.Errorf("expected 10 observations, got %d", obs.steps)
	}

	final := result.Final()[0]
	if math.Abs(final-math.Exp(-1)) > 1e-6 {
		t.Errorf("expected final state ~%.6f, got %.6f", math.Exp(-1), final)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	s := New(&decay{}, integrators.NewRK45())
	cfg := dynamo.Config{Dt: 0.5, Duration: 2.0, Adaptive: true, Tolerance: 1e-9, MinDt: 1e-10, ValidateState: true}
	result, err := s.Run(context.Background(), dynamo.State{0}, cfg, Constant(dynamo.Control{1}))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got, want := result.Final()[0], 1-math.Exp(-2); math.Abs(got-want) > 1e-6 {
		t.Errorf("got %.8f, want %.8f", got, want)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := New(&decay{}, integrators.NewRK4())

	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0, Duration: 1.0}},
		{"negative dt", dynamo.Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", dynamo.Config{Dt: 0.1, Duration: 0}},
		{"adaptive without tolerance", dynamo.Config{Dt: 0.1, Duration: 1.0, Adaptive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), dynamo.State{1.0}, tt.cfg, Constant(dynamo.Control{0}))
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorDimensionMismatch(t *testing.T) {
	s := New(&decay{}, integrators.NewRK4())
	_, err := s.Run(context.Background(), dynamo.State{1, 2}, dynamo.DefaultConfig(), Constant(dynamo.Control{0}))
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&decay{}, integrators.NewRK4())
	result, err := s.Run(ctx, dynamo.State{1}, dynamo.DefaultConfig(), Constant(dynamo.Control{0}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(result.States) != 1 {
		t.Errorf("expected only the initial state, got %d", len(result.States))
	}
}

func TestSimulatorStopsOnInvalidState(t *testing.T) {
	s := New(&blowup{}, integrators.NewEuler())
	cfg := dynamo.Config{Dt: 1, Duration: 10, ValidateState: true}
	result, err := s.Run(context.Background(), dynamo.State{1}, cfg, Constant(nil))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected a recorded simulation error")
	}
	var simErr dynamo.SimError
	if !errors.As(result.Errors[0], &simErr) {
		t.Errorf("expected SimError, got %T", result.Errors[0])
	}
}

func TestTrajectory(t *testing.T) {
	times := []float64{0, 0.5, 1.5, 3}
	inputs := []dynamo.Control{{1}, {1}, {1}}

	states, err := Trajectory(integrators.NewRK4(), &decay{}, dynamo.State{0}, times, inputs, 0.01)
	if err != nil {
		t.Fatalf("trajectory failed: %v", err)
	}
	if len(states) != len(times) {
		t.Fatalf("expected %d states, got %d", len(times), len(states))
	}
	for i, ts := range times {
		want := 1 - math.Exp(-ts)
		if math.Abs(states[i][0]-want) > 1e-8 {
			t.Errorf("t=%.1f: got %.8f, want %.8f", ts, states[i][0], want)
		}
	}
}

func TestTrajectoryErrors(t *testing.T) {
	_, err := Trajectory(integrators.NewRK4(), &decay{}, dynamo.State{0}, []float64{0, 1, 2}, []dynamo.Control{{1}}, 0.1)
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for short inputs, got %v", err)
	}

	_, err = Trajectory(integrators.NewEuler(), &blowup{}, dynamo.State{1}, []float64{0, 1, 2, 3, 4, 5, 6, 7}, nil, 1)
	if !IsDiverged(err) {
		t.Errorf("expected divergence, got %v", err)
	}
}

func TestSteps(t *testing.T) {
	policy := Steps([]float64{0, 5, 10}, []dynamo.Control{{2}, {3}, {4}})
	tests := []struct {
		t    float64
		want float64
	}{
		{0, 2}, {4.9, 2}, {5, 3}, {12, 4},
	}
	for _, tt := range tests {
		if got := policy.Compute(nil, tt.t)[0]; got != tt.want {
			t.Errorf("t=%.1f: got %.1f, want %.1f", tt.t, got, tt.want)
		}
	}
}
