package estimate

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/solver"
)

// FOPDT holds first order plus dead time parameters: gain K, time constant
// Tau and dead time Theta.
type FOPDT struct {
	K     float64
	Tau   float64
	Theta float64
}

type FOPDTFit struct {
	FOPDT
	Predicted []float64
	SSE       float64
	Status    solver.Status
}

// SimulateFOPDT returns the response to u starting from y[0] = y0. Each
// step uses the exact zero-order-hold solution with the delayed input read
// by linear interpolation; inputs before t[0] take the value u[0].
func SimulateFOPDT(m FOPDT, t, u []float64, y0 float64) []float64 {
	y := make([]float64, len(t))
	if len(t) == 0 {
		return y
	}
	y[0] = y0
	u0 := u[0]
	for k := 0; k < len(t)-1; k++ {
		dt := t[k+1] - t[k]
		ud := interpolate(t, u, t[k]-m.Theta)
		a := math.Exp(-dt / m.Tau)
		y[k+1] = y0 + (y[k]-y0)*a + (1-a)*m.K*(ud-u0)
	}
	return y
}

func interpolate(t, v []float64, at float64) float64 {
	if at <= t[0] {
		return v[0]
	}
	n := len(t)
	if at >= t[n-1] {
		return v[n-1]
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t[mid] <= at {
			lo = mid
		} else {
			hi = mid
		}
	}
	w := (at - t[lo]) / (t[hi] - t[lo])
	return v[lo] + w*(v[hi]-v[lo])
}

// FitFOPDT fits gain, time constant and dead time to a step response by
// least squares, starting from init.
func FitFOPDT(ctx context.Context, t, u, y []float64, init FOPDT, opts solver.Options) (*FOPDTFit, error) {
	if len(t) != len(u) || len(t) != len(y) {
		return nil, fmt.Errorf("%w: %d times, %d inputs, %d outputs", dynamo.ErrDimensionMismatch, len(t), len(u), len(y))
	}
	if len(t) < 3 {
		return nil, ErrNoData
	}

	span := t[len(t)-1] - t[0]
	tau := init.Tau
	if tau <= 0 {
		tau = span / 5
	}
	params := []solver.Param{
		solver.Free("K", init.K),
		{Name: "tau", Init: tau, Lower: 1e-6 * span, Upper: math.Inf(1)},
		solver.Bounded("theta", init.Theta, 0, span/2),
	}

	sse := func(m FOPDT) float64 {
		pred := SimulateFOPDT(m, t, u, y[0])
		sum := 0.0
		for k := range y {
			e := pred[k] - y[k]
			sum += e * e
		}
		return sum
	}
	objective := func(x []float64) float64 {
		return sse(FOPDT{K: x[0], Tau: x[1], Theta: x[2]})
	}

	res, err := solver.Solve(ctx, solver.Problem{Params: params, Objective: objective}, opts)
	if err != nil {
		return nil, err
	}
	m := FOPDT{K: res.X[0], Tau: res.X[1], Theta: res.X[2]}
	return &FOPDTFit{
		FOPDT:     m,
		Predicted: SimulateFOPDT(m, t, u, y[0]),
		SSE:       sse(m),
		Status:    res.Status,
	}, nil
}
