// Package estimate fits model parameters and initial conditions to a batch
// of measurements by simulating the model over the whole data horizon.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/sim"
	"github.com/san-kum/dynopt/internal/solver"
)

var (
	ErrNoModel = errors.New("estimate: problem has no model builder")
	ErrNoData  = errors.New("estimate: no measured samples")
)

// Initial marks one initial state as an estimated quantity.
type Initial struct {
	Index int
	solver.Param
}

type Problem struct {
	Params      []solver.Param
	FreeInitial []Initial
	// Build returns the model and its initial state for the parameter values,
	// given in the order of Params.
	Build func(params []float64) (dynamo.System, dynamo.State)
	// Observe maps a state of sys to the measured outputs. Nil observes the
	// state itself.
	Observe    func(sys dynamo.System, x dynamo.State) []float64
	Integrator string
	MaxStep    float64
	Loss       solver.Loss
	MeasGap    float64
}

// Data holds samples on a shared time grid. Inputs[k] is held on
// [Times[k], Times[k+1]). Outputs that are NaN or masked out do not enter
// the objective.
type Data struct {
	Times   []float64
	Inputs  []dynamo.Control
	Outputs [][]float64
	Mask    [][]bool
}

func (d Data) measured(k, i int) bool {
	if math.IsNaN(d.Outputs[k][i]) {
		return false
	}
	if d.Mask == nil {
		return true
	}
	return d.Mask[k][i]
}

type Result struct {
	Params    map[string]float64
	Initial   dynamo.State
	Predicted [][]float64
	Objective float64
	Status    solver.Status
	Evals     int
	Message   string
}

// Fit minimizes the summed loss between predicted and measured outputs.
func Fit(ctx context.Context, p Problem, d Data, opts solver.Options) (*Result, error) {
	if p.Build == nil {
		return nil, ErrNoModel
	}
	if len(d.Outputs) != len(d.Times) {
		return nil, fmt.Errorf("%w: %d output rows for %d samples", dynamo.ErrDimensionMismatch, len(d.Outputs), len(d.Times))
	}
	if d.Mask != nil && len(d.Mask) != len(d.Times) {
		return nil, fmt.Errorf("%w: %d mask rows for %d samples", dynamo.ErrDimensionMismatch, len(d.Mask), len(d.Times))
	}
	if countMeasured(d) == 0 {
		return nil, ErrNoData
	}
	if _, err := integrators.New(p.Integrator); err != nil {
		return nil, err
	}

	params := make([]solver.Param, 0, len(p.Params)+len(p.FreeInitial))
	params = append(params, p.Params...)
	for _, fi := range p.FreeInitial {
		params = append(params, fi.Param)
	}

	objective := func(theta []float64) float64 {
		pred, err := p.predict(theta, d)
		if err != nil {
			return math.Inf(1)
		}
		return p.cost(pred, d)
	}

	res, err := solver.Solve(ctx, solver.Problem{Params: params, Objective: objective}, opts)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Params:    make(map[string]float64, len(p.Params)),
		Objective: res.F,
		Status:    res.Status,
		Evals:     res.Evaluations,
		Message:   res.Message,
	}
	for i, prm := range p.Params {
		out.Params[prm.Name] = res.X[i]
	}
	_, x0 := p.model(res.X)
	out.Initial = x0
	if pred, err := p.predict(res.X, d); err == nil {
		out.Predicted = pred
	} else {
		out.Status = solver.StatusFailed
		out.Message = err.Error()
	}
	return out, nil
}

func (p Problem) model(theta []float64) (dynamo.System, dynamo.State) {
	sys, x0 := p.Build(theta[:len(p.Params)])
	x0 = x0.Clone()
	for j, fi := range p.FreeInitial {
		x0[fi.Index] = theta[len(p.Params)+j]
	}
	return sys, x0
}

// predict runs with a fresh integrator so concurrent solver starts do not
// share scratch buffers.
func (p Problem) predict(theta []float64, d Data) ([][]float64, error) {
	sys, x0 := p.model(theta)
	integ, err := integrators.New(p.Integrator)
	if err != nil {
		return nil, err
	}
	states, err := sim.Trajectory(integ, sys, x0, d.Times, d.Inputs, p.MaxStep)
	if err != nil {
		return nil, err
	}
	pred := make([][]float64, len(states))
	for k, x := range states {
		if p.Observe != nil {
			pred[k] = p.Observe(sys, x)
		} else {
			pred[k] = []float64(x.Clone())
		}
	}
	return pred, nil
}

func (p Problem) cost(pred [][]float64, d Data) float64 {
	sum := 0.0
	for k := range d.Outputs {
		for i := range d.Outputs[k] {
			if !d.measured(k, i) {
				continue
			}
			sum += p.Loss.Eval(pred[k][i]-d.Outputs[k][i], p.MeasGap)
		}
	}
	return sum
}

func countMeasured(d Data) int {
	n := 0
	for k := range d.Outputs {
		for i := range d.Outputs[k] {
			if d.measured(k, i) {
				n++
			}
		}
	}
	return n
}

// SSE returns the sum of squared errors over the measured samples.
func SSE(pred [][]float64, d Data) float64 {
	sum := 0.0
	for k := range d.Outputs {
		if k >= len(pred) {
			break
		}
		for i := range d.Outputs[k] {
			if d.measured(k, i) {
				e := pred[k][i] - d.Outputs[k][i]
				sum += e * e
			}
		}
	}
	return sum
}

// Columns converts per-channel columns into the sample-major layout of
// Data.Outputs.
func Columns(cols ...[]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	rows := make([][]float64, len(cols[0]))
	for k := range rows {
		rows[k] = make([]float64, len(cols))
		for i, c := range cols {
			rows[k][i] = c[k]
		}
	}
	return rows
}
