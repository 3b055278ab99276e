package integrators

import "github.com/san-kum/dynopt/internal/dynamo"

// RK4 is the classical fourth order method. Like RK45 it keeps its stage
// buffers between steps.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k[0], dyn.Derive(x, u, t))
	for s, h := range [3]float64{0.5 * dt, 0.5 * dt, dt} {
		for i := 0; i < n; i++ {
			r.stage[i] = x[i] + h*r.k[s][i]
		}
		copy(r.k[s+1], dyn.Derive(r.stage, u, t+h))
	}

	out := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		out[i] = x[i] + dt/6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return out
}
