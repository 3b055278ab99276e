package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
)

type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	observers  []dynamo.Observer
}

func New(dyn dynamo.System, integrator dynamo.Integrator) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run integrates the system from x0 over cfg.Duration in steps of cfg.Dt.
// The controller is evaluated once per step and its output held over the
// step. Each step is subdivided so no integrator step exceeds cfg.MaxStep.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, ctrl dynamo.Controller) (*dynamo.Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.dyn.StateDim() {
		return nil, fmt.Errorf("%w: got %d states, want %d", dynamo.ErrDimensionMismatch, len(x0), s.dyn.StateDim())
	}

	steps := int(cfg.Duration/cfg.Dt + 1e-9)
	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Errors:   make([]error, 0),
	}

	x := x0.Clone()
	t := 0.0

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u := ctrl.Compute(x, t)
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		next := t + cfg.Dt
		var newX dynamo.State
		if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok && cfg.Adaptive {
			h := cfg.MaxStep
			if h <= 0 {
				h = cfg.Dt
			}
			var err error
			newX, err = integrators.PropagateAdaptive(adaptive, s.dyn, x, u, t, next, h, cfg.Tolerance, cfg.MinDt)
			if err != nil {
				result.Errors = append(result.Errors, err)
				break
			}
		} else {
			newX = integrators.Propagate(s.integrator, s.dyn, x, u, t, next, cfg.MaxStep)
		}

		if cfg.ValidateState && !newX.IsValid() {
			err := dynamo.SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
			result.Errors = append(result.Errors, err)
			break
		}

		x = newX
		t = next
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	return result, nil
}

func (s *Simulator) validateConfig(cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	return nil
}

// Trajectory integrates sys through the sample times, holding inputs[i] on
// [times[i], times[i+1]). It returns the state at every sample time, the
// first being x0. A nil inputs slice means the system has no controls.
func Trajectory(integ dynamo.Integrator, sys dynamo.System, x0 dynamo.State, times []float64, inputs []dynamo.Control, maxStep float64) ([]dynamo.State, error) {
	if len(times) == 0 {
		return nil, nil
	}
	if len(x0) != sys.StateDim() {
		return nil, fmt.Errorf("%w: got %d states, want %d", dynamo.ErrDimensionMismatch, len(x0), sys.StateDim())
	}
	if inputs != nil && len(inputs) < len(times)-1 {
		return nil, fmt.Errorf("%w: %d inputs for %d samples", dynamo.ErrDimensionMismatch, len(inputs), len(times))
	}

	states := make([]dynamo.State, len(times))
	states[0] = x0.Clone()
	x := states[0]
	for i := 1; i < len(times); i++ {
		var u dynamo.Control
		if inputs != nil {
			u = inputs[i-1]
		}
		x = integrators.Propagate(integ, sys, x, u, times[i-1], times[i], maxStep)
		if !x.IsValid() {
			return states[:i], &dynamo.SimulationError{Step: i, Time: times[i], State: x, Wrapped: dynamo.ErrInvalidState}
		}
		states[i] = x
	}
	return states, nil
}

// IsDiverged reports whether err came from a trajectory that left the
// finite domain.
func IsDiverged(err error) bool {
	return errors.Is(err, dynamo.ErrInvalidState)
}
