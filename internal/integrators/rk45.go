package integrators

import (
	"errors"
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// ErrStepRejected is returned by StepAdaptive when the local error estimate
// exceeds the tolerance. The suggested step is still returned.
var ErrStepRejected = errors.New("integrators: step rejected (error above tolerance)")

// Dormand-Prince 5(4) tableau. The seventh stage is evaluated at the fifth
// order solution and only enters the error estimate.
var (
	dpNodes = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}

	dpMatrix = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}

	// fifth minus fourth order weights
	dpError = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

// RK45 is the embedded Dormand-Prince pair. Stage buffers are reused between
// steps, so an RK45 must not be shared between goroutines.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64

	k     [7]dynamo.State
	stage dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) ensureScratch(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	xNew, _, _ := r.StepAdaptive(dyn, x, u, t, dt, 1e-6)
	return xNew
}

// StepAdaptive takes one step of dt and returns the fifth order solution with
// the step size suggested for the next step. A step whose scaled error is
// above tol returns ErrStepRejected with a smaller suggestion.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k[0], dyn.Derive(x, u, t))
	for s := 1; s < len(r.k); s++ {
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < s; j++ {
				acc += dpMatrix[s][j] * r.k[j][i]
			}
			r.stage[i] = x[i] + dt*acc
		}
		if s == len(r.k)-1 {
			break
		}
		copy(r.k[s], dyn.Derive(r.stage, u, t+dpNodes[s]*dt))
	}
	// The last row of the tableau is the solution itself.
	xNew := r.stage.Clone()
	copy(r.k[6], dyn.Derive(xNew, u, t+dt))

	errMax := 0.0
	for i := 0; i < n; i++ {
		est := 0.0
		for s, w := range dpError {
			est += w * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}
	ratio := errMax / tol

	if ratio > 1 {
		return xNew, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), ErrStepRejected
	}
	if ratio == 0 {
		return xNew, dt * r.maxScale, nil
	}
	return xNew, dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2)), nil
}
