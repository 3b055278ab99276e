// Package mhe implements a moving horizon estimator: each update appends one
// sample to a sliding window and re-fits the estimated parameters (and
// optionally initial states) against the measurements in that window.
package mhe

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/logging"
	"github.com/san-kum/dynopt/internal/solver"
)

var (
	ErrNoModel = errors.New("mhe: model needs Build and Observe")
	ErrHorizon = errors.New("mhe: horizon must cover at least two points")
)

type Tuning struct {
	// Horizon is the number of time points in the window, the arrival
	// point included.
	Horizon    int            `yaml:"horizon"`
	Dt         float64        `yaml:"dt"`
	Loss       solver.Loss    `yaml:"ev_type"`
	MeasGap    float64        `yaml:"meas_gap"`
	WMeas      float64        `yaml:"wmeas"`
	WModel     float64        `yaml:"wmodel"`
	MaxStep    float64        `yaml:"max_step"`
	Integrator string         `yaml:"integrator"`
	Solver     solver.Options `yaml:"solver"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Horizon: 41,
		Dt:      0.5,
		Loss:    solver.L1,
		MeasGap: 0.25,
		WMeas:   1,
		Solver:  solver.DefaultOptions(),
	}
}

// Parameter is a model parameter seen by the estimator. Only parameters
// with Estimate set are adjusted; DMax limits the change per update (0 for
// no limit).
type Parameter struct {
	solver.Param `yaml:",inline"`
	Estimate     bool    `yaml:"status"`
	DMax         float64 `yaml:"dmax"`
}

// InitialState marks a state of the arrival point as estimated within
// [Lower, Upper].
type InitialState struct {
	Index        int
	Lower, Upper float64
}

type Model struct {
	Build       func(params []float64) dynamo.System
	Observe     func(sys dynamo.System, x dynamo.State) float64
	Initial     dynamo.State
	FreeInitial []InitialState
}

type Estimate struct {
	Params    map[string]float64
	Output    float64
	State     dynamo.State
	Status    solver.Status
	Objective float64
	// Window holds the estimated outputs over the current window.
	Window []float64
}

type sample struct {
	u        dynamo.Control
	y        float64
	measured bool
	// model and state are the last estimate at this sample; model is NaN
	// before the first solve that covered it.
	model float64
	state dynamo.State
}

type Estimator struct {
	tuning  Tuning
	model   Model
	params  []Parameter
	values  []float64
	arrival dynamo.State
	window  []sample
	cycle   int
	log     *zap.SugaredLogger
}

func New(model Model, params []Parameter, tuning Tuning, log *zap.SugaredLogger) (*Estimator, error) {
	if model.Build == nil || model.Observe == nil {
		return nil, ErrNoModel
	}
	if tuning.Horizon < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrHorizon, tuning.Horizon)
	}
	if tuning.Dt <= 0 {
		return nil, fmt.Errorf("mhe: dt must be positive, got %f", tuning.Dt)
	}
	if _, err := integrators.New(tuning.Integrator); err != nil {
		return nil, err
	}
	for _, fi := range model.FreeInitial {
		if fi.Index < 0 || fi.Index >= len(model.Initial) {
			return nil, fmt.Errorf("%w: free initial state %d of %d", dynamo.ErrDimensionMismatch, fi.Index, len(model.Initial))
		}
	}
	for _, p := range params {
		if p.Lower > p.Upper {
			return nil, fmt.Errorf("%w: %s", solver.ErrInvalidBounds, p.Name)
		}
	}
	if tuning.WMeas <= 0 {
		tuning.WMeas = 1
	}
	if tuning.MaxStep <= 0 {
		tuning.MaxStep = tuning.Dt
	}

	e := &Estimator{
		tuning: tuning,
		model:  model,
		params: append([]Parameter(nil), params...),
		log:    logging.OrNop(log).Named("mhe"),
	}
	e.Reset()
	return e, nil
}

// Reset clears the window and returns parameters and the arrival state to
// their initial values.
func (e *Estimator) Reset() {
	e.values = make([]float64, len(e.params))
	for i, p := range e.params {
		e.values[i] = p.Clamp(p.Init)
	}
	e.arrival = e.model.Initial.Clone()
	e.window = nil
	e.cycle = 0
}

// Values returns the current parameter values in declaration order.
func (e *Estimator) Values() []float64 {
	return append([]float64(nil), e.values...)
}

func (e *Estimator) Value(name string) (float64, bool) {
	for i, p := range e.params {
		if p.Name == name {
			return e.values[i], true
		}
	}
	return 0, false
}

// Len returns the number of samples in the window.
func (e *Estimator) Len() int { return len(e.window) }

// Update adds the input applied over the last interval and the output
// measured at its end, then re-estimates. A failed solve keeps the previous
// parameter values; only context cancellation is returned as an error.
func (e *Estimator) Update(ctx context.Context, u dynamo.Control, y float64, measured bool) (*Estimate, error) {
	if measured && (math.IsNaN(y) || math.IsInf(y, 0)) {
		measured = false
	}
	if len(e.window) == e.tuning.Horizon-1 {
		e.shift()
	}
	e.window = append(e.window, sample{u: u.Clone(), y: y, measured: measured, model: math.NaN()})
	e.cycle++

	bounds := e.bounds()
	objective := func(theta []float64) float64 {
		outs, _, err := e.simulate(theta)
		if err != nil {
			return math.Inf(1)
		}
		return e.cost(outs)
	}

	res, err := solver.Solve(ctx, solver.Problem{Params: bounds, Objective: objective}, e.tuning.Solver)
	if err != nil {
		return nil, err
	}

	est := &Estimate{Status: res.Status, Objective: res.F}
	if res.Status == solver.StatusSuccess {
		copy(e.values, res.X[:len(e.params)])
		for j, fi := range e.model.FreeInitial {
			e.arrival[fi.Index] = res.X[len(e.params)+j]
		}
	} else {
		e.log.Warnw("estimation failed, holding previous values", "cycle", e.cycle, "message", res.Message)
	}

	outs, states, err := e.simulate(e.current())
	if err != nil {
		est.Status = solver.StatusFailed
		e.log.Warnw("estimated trajectory is not finite", "cycle", e.cycle, "error", err)
		est.Params = e.named()
		est.Output = math.NaN()
		return est, nil
	}
	for j := range e.window {
		e.window[j].model = outs[j]
		e.window[j].state = states[j]
	}

	est.Params = e.named()
	est.Output = outs[len(outs)-1]
	est.State = states[len(states)-1].Clone()
	est.Window = outs
	e.log.Debugw("estimate", "cycle", e.cycle, "params", est.Params, "output", est.Output, "objective", res.F)
	return est, nil
}

// shift drops the oldest sample and moves the arrival point onto the last
// estimated state at that sample.
func (e *Estimator) shift() {
	first := e.window[0]
	if first.state != nil {
		e.arrival = first.state.Clone()
	} else {
		sys := e.model.Build(e.values)
		integ, _ := integrators.New(e.tuning.Integrator)
		e.arrival = integrators.Propagate(integ, sys, e.arrival, first.u, 0, e.tuning.Dt, e.tuning.MaxStep)
	}
	e.window = e.window[1:]
}

// bounds returns the solver parameters for this update: estimated
// parameters within DMax of their current value, fixed ones pinned, then
// the free initial states.
func (e *Estimator) bounds() []solver.Param {
	out := make([]solver.Param, 0, len(e.params)+len(e.model.FreeInitial))
	for i, p := range e.params {
		v := e.values[i]
		prm := solver.Param{Name: p.Name, Init: v, Lower: v, Upper: v}
		if p.Estimate {
			prm.Lower, prm.Upper = p.Lower, p.Upper
			if p.DMax > 0 {
				prm.Lower = math.Max(p.Lower, v-p.DMax)
				prm.Upper = math.Min(p.Upper, v+p.DMax)
			}
		}
		out = append(out, prm)
	}
	for _, fi := range e.model.FreeInitial {
		v := math.Min(math.Max(e.arrival[fi.Index], fi.Lower), fi.Upper)
		out = append(out, solver.Bounded(fmt.Sprintf("x%d_0", fi.Index), v, fi.Lower, fi.Upper))
	}
	return out
}

func (e *Estimator) current() []float64 {
	theta := append([]float64(nil), e.values...)
	for _, fi := range e.model.FreeInitial {
		theta = append(theta, e.arrival[fi.Index])
	}
	return theta
}

func (e *Estimator) named() map[string]float64 {
	out := make(map[string]float64, len(e.params))
	for i, p := range e.params {
		out[p.Name] = e.values[i]
	}
	return out
}

// simulate runs the window from the arrival point. It allocates its own
// integrator since the solver evaluates starts concurrently.
func (e *Estimator) simulate(theta []float64) ([]float64, []dynamo.State, error) {
	sys := e.model.Build(theta[:len(e.params)])
	x := e.arrival.Clone()
	for j, fi := range e.model.FreeInitial {
		x[fi.Index] = theta[len(e.params)+j]
	}
	integ, err := integrators.New(e.tuning.Integrator)
	if err != nil {
		return nil, nil, err
	}

	outs := make([]float64, len(e.window))
	states := make([]dynamo.State, len(e.window))
	for j, s := range e.window {
		x = integrators.Propagate(integ, sys, x, s.u, 0, e.tuning.Dt, e.tuning.MaxStep)
		if !x.IsValid() {
			return nil, nil, &dynamo.SimulationError{Step: j, State: x, Wrapped: dynamo.ErrInvalidState}
		}
		outs[j] = e.model.Observe(sys, x)
		if math.IsNaN(outs[j]) || math.IsInf(outs[j], 0) {
			return nil, nil, &dynamo.SimulationError{Step: j, State: x, Wrapped: dynamo.ErrInvalidState}
		}
		states[j] = x
	}
	return outs, states, nil
}

func (e *Estimator) cost(outs []float64) float64 {
	t := e.tuning
	sum := 0.0
	for j, s := range e.window {
		if s.measured {
			sum += t.WMeas * t.Loss.Eval(outs[j]-s.y, t.MeasGap)
		}
		if t.WModel > 0 && !math.IsNaN(s.model) {
			sum += t.WModel * t.Loss.Eval(outs[j]-s.model, 0)
		}
	}
	return sum
}
