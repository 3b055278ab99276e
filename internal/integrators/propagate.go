package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// New returns a fresh integrator by name. Each call allocates new scratch
// buffers, so the result may be used by one goroutine only.
func New(name string) (dynamo.Integrator, error) {
	switch name {
	case "", "rk4":
		return NewRK4(), nil
	case "rk45":
		return NewRK45(), nil
	case "euler":
		return NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

// Names lists the integrators accepted by New.
func Names() []string {
	return []string{"euler", "rk4", "rk45"}
}

// Propagate advances x from t0 to t1 with u held constant (zero-order hold),
// using equal sub-steps no longer than maxStep. A non-positive maxStep takes
// a single step over the whole interval.
func Propagate(integ dynamo.Integrator, sys dynamo.System, x dynamo.State, u dynamo.Control, t0, t1, maxStep float64) dynamo.State {
	span := t1 - t0
	if span <= 0 {
		return x.Clone()
	}

	n := 1
	if maxStep > 0 {
		n = int(math.Ceil(span/maxStep - 1e-9))
		if n < 1 {
			n = 1
		}
	}

	h := span / float64(n)
	t := t0
	for i := 0; i < n; i++ {
		x = integ.Step(sys, x, u, t, h)
		t += h
	}
	return x
}

// PropagateAdaptive advances x from t0 to t1 with error control, starting
// from step dt. It fails with dynamo.ErrStepTooSmall when the controller
// asks for a step below minDt.
func PropagateAdaptive(integ dynamo.AdaptiveIntegrator, sys dynamo.System, x dynamo.State, u dynamo.Control, t0, t1, dt, tol, minDt float64) (dynamo.State, error) {
	if dt <= 0 {
		dt = t1 - t0
	}
	t := t0
	for t1-t > 1e-12 {
		h := math.Min(dt, t1-t)
		xNew, dtNew, err := integ.StepAdaptive(sys, x, u, t, h, tol)
		if errors.Is(err, ErrStepRejected) {
			if dtNew < minDt {
				return x, &dynamo.SimulationError{Time: t, State: x, Wrapped: dynamo.ErrStepTooSmall}
			}
			dt = dtNew
			continue
		}
		if err != nil {
			return x, err
		}
		x = xNew
		t += h
		dt = dtNew
	}
	return x, nil
}
