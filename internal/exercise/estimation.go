package exercise

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/estimate"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/integrators"
	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/sim"
	"github.com/san-kum/dynopt/internal/solver"
)

// expDecay fits one decay constant shared by two data sets measured on
// different time grids, with both initial conditions free.
type expDecay struct{}

func (expDecay) Name() string { return "exp_decay" }

func (expDecay) Describe() string {
	return "fit k in dx/dt = -k x to two joined decay data sets"
}

func (e expDecay) Run(ctx context.Context, env Env) (*Report, error) {
	cfg := env.Config
	joined, err := dataset.OuterJoin(dataset.DecaySet1(), dataset.DecaySet2(), "time")
	if err != nil {
		return nil, err
	}
	times, _ := joined.Column("time")
	x1, _ := joined.Column("x1")
	x2, _ := joined.Column("x2")

	m1, m2 := dataset.Mask(x1), dataset.Mask(x2)
	mask := make([][]bool, len(times))
	for k := range mask {
		mask[k] = []bool{m1[k], m2[k]}
	}

	p := estimate.Problem{
		Params: []solver.Param{{Name: "k", Init: 1, Lower: 0, Upper: math.Inf(1)}},
		FreeInitial: []estimate.Initial{
			{Index: 0, Param: solver.Free("x1_0", x1[0])},
			{Index: 1, Param: solver.Free("x2_0", x2[0])},
		},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewExpDecay(theta[0], 2), dynamo.State{x1[0], x2[0]}
		},
		Integrator: cfg.Estimator.Tuning.Integrator,
		MaxStep:    cfg.Estimator.MaxStep,
		Loss:       cfg.Estimator.Loss,
	}
	d := estimate.Data{Times: times, Outputs: estimate.Columns(x1, x2), Mask: mask}

	res, err := estimate.Fit(ctx, p, d, cfg.Solver)
	if err != nil {
		return nil, err
	}
	k := res.Params["k"]
	env.Log.Infow("fitted decay constant", "k", k, "status", res.Status)

	pred1, pred2 := column(res.Predicted, 0), column(res.Predicted, 1)
	exact1 := make([]float64, len(times))
	exact2 := make([]float64, len(times))
	deviation := 0.0
	for i, t := range times {
		exact1[i] = res.Initial[0] * math.Exp(-k*t)
		exact2[i] = res.Initial[1] * math.Exp(-k*t)
		deviation = math.Max(deviation, math.Max(math.Abs(exact1[i]-pred1[i]), math.Abs(exact2[i]-pred2[i])))
	}

	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "x1", "x2", "x1_pred", "x2_pred", "x1_exact", "x2_exact"},
		times, x1, x2, pred1, pred2, exact1, exact2); err != nil {
		return nil, err
	}
	rep.Scalars["k"] = k
	rep.Scalars["x1_0"] = res.Initial[0]
	rep.Scalars["x2_0"] = res.Initial[1]
	rep.Scalars["objective"] = res.Objective
	rep.Scalars["exact_deviation"] = deviation
	rep.Scalars["status"] = float64(res.Status)
	rep.Figures = []export.Figure{{
		Name:  "exp_decay",
		Title: fmt.Sprintf("Exponential decay, k = %.4f", k),
		Panels: []export.Panel{{
			XLabel: "Time",
			YLabel: "Value",
			Series: []export.Series{
				{Name: "Predicted 1", X: times, Y: pred1, Style: export.Dashed},
				{Name: "Predicted 2", X: times, Y: pred2, Style: export.Dashed},
				{Name: "Measured 1", X: times, Y: x1, Style: export.Markers},
				{Name: "Measured 2", X: times, Y: x2, Style: export.Markers},
			},
		}},
	}}
	return rep, nil
}

// thirdOrder fits x''' = a x'' + b x' + c x + d written as three first order
// states, then re-simulates the fit on a fine grid.
type thirdOrder struct{}

func (thirdOrder) Name() string { return "third_order" }

func (thirdOrder) Describe() string {
	return "fit a, b, c, d of a third order differential equation"
}

func (e thirdOrder) Run(ctx context.Context, env Env) (*Report, error) {
	cfg := env.Config
	data := dataset.ThirdOrderData()
	times, _ := data.Column("time")
	x, _ := data.Column("x")
	x0 := dynamo.State{x[0], 0, 0}

	p := estimate.Problem{
		Params: []solver.Param{
			solver.Free("a", 0), solver.Free("b", 0), solver.Free("c", 0), solver.Free("d", 0),
		},
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewThirdOrder(theta[0], theta[1], theta[2], theta[3]), x0
		},
		Observe:    func(_ dynamo.System, s dynamo.State) []float64 { return []float64{s[0]} },
		Integrator: cfg.Estimator.Tuning.Integrator,
		MaxStep:    cfg.Estimator.MaxStep,
		Loss:       cfg.Estimator.Loss,
	}
	d := estimate.Data{Times: times, Outputs: estimate.Columns(x)}

	res, err := estimate.Fit(ctx, p, d, cfg.Solver)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("fitted third order model", "params", res.Params, "status", res.Status)

	model := models.NewThirdOrder(res.Params["a"], res.Params["b"], res.Params["c"], res.Params["d"])
	simulator := sim.New(model, integrators.NewRK45())
	fine, err := simulator.Run(ctx, x0, dynamo.Config{
		Dt:            0.05,
		Duration:      times[len(times)-1],
		MaxStep:       0.01,
		Tolerance:     1e-8,
		MinDt:         1e-9,
		Adaptive:      true,
		ValidateState: true,
	}, sim.Constant(nil))
	if err != nil {
		return nil, err
	}
	if len(fine.Errors) > 0 {
		env.Log.Warnw("fine simulation stopped early", "error", fine.Errors[0])
	}
	smooth := make([]float64, len(fine.States))
	for i, s := range fine.States {
		smooth[i] = s[0]
	}

	pred := column(res.Predicted, 0)
	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "x", "x_pred"}, times, x, pred); err != nil {
		return nil, err
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		rep.Scalars[name] = res.Params[name]
	}
	rep.Scalars["sse"] = estimate.SSE(res.Predicted, d)
	rep.Scalars["status"] = float64(res.Status)
	rep.Figures = []export.Figure{{
		Name:  "third_order",
		Title: "Third order fit",
		Panels: []export.Panel{{
			XLabel: "Time",
			YLabel: "Value",
			Series: []export.Series{
				{Name: "Simulated", X: fine.Times, Y: smooth},
				{Name: "Predicted", X: times, Y: pred, Style: export.Markers},
				{Name: "Measured", X: times, Y: x, Style: export.Markers},
			},
		}},
	}}
	return rep, nil
}

// fopdtEstimation records a first order process driven by the input
// schedule and fits gain and time constant to the whole record at once.
type fopdtEstimation struct{}

func (fopdtEstimation) Name() string { return "fopdt_estimation" }

func (fopdtEstimation) Describe() string {
	return "batch estimation of K and tau from a noisy first order step record"
}

func (e fopdtEstimation) Run(ctx context.Context, env Env) (*Report, error) {
	cfg := env.Config
	plant := models.NewFOPDT(cfg.Loop.Plant["K"], cfg.Loop.Plant["tau"])
	process := loop.NewProcess(plant, plant.Output, dynamo.State{0}, cfg.Loop.Dt, cfg.Loop.Noise, cfg.Seed)

	n := cfg.Loop.Cycles
	if n < 2 {
		return nil, fmt.Errorf("exercise: %s needs at least 2 cycles, got %d", e.Name(), n)
	}
	times := make([]float64, n+1)
	u := make([]float64, n+1)
	actual := make([]float64, n+1)
	meas := make([]float64, n+1)
	inputs := make([]dynamo.Control, n)
	for k := 0; k < n; k++ {
		u[k] = cfg.Loop.Inputs.At(k)
		inputs[k] = dynamo.Control{u[k]}
		times[k+1] = float64(k+1) * cfg.Loop.Dt
		actual[k+1], meas[k+1] = process.Step(inputs[k])
	}
	u[n] = u[n-1]

	params := parametersOf(cfg.Estimator.Params)
	p := estimate.Problem{
		Params: params,
		Build: func(theta []float64) (dynamo.System, dynamo.State) {
			return models.NewFOPDT(theta[0], theta[1]), dynamo.State{0}
		},
		Observe: func(sys dynamo.System, x dynamo.State) []float64 {
			return []float64{sys.(*models.FOPDT).Output(x)}
		},
		Integrator: cfg.Estimator.Tuning.Integrator,
		MaxStep:    cfg.Estimator.MaxStep,
		Loss:       cfg.Estimator.Tuning.Loss,
		MeasGap:    cfg.Estimator.Tuning.MeasGap,
	}
	res, err := estimate.Fit(ctx, p, estimate.Data{Times: times, Inputs: inputs, Outputs: estimate.Columns(meas)}, cfg.Solver)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("fitted first order model", "params", res.Params, "status", res.Status)

	est := column(res.Predicted, 0)
	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "u", "y", "y_meas", "y_est"}, times, u, actual, meas, est); err != nil {
		return nil, err
	}
	for _, prm := range params {
		rep.Scalars[prm.Name] = res.Params[prm.Name]
	}
	rep.Scalars["objective"] = res.Objective
	rep.Scalars["status"] = float64(res.Status)
	rep.Figures = []export.Figure{{
		Name:  "fopdt_estimation",
		Title: "First order estimation",
		Panels: []export.Panel{
			{YLabel: "Input", Series: []export.Series{{Name: "Input (u) meas", X: times, Y: u, Style: export.Step}}},
			{XLabel: "Time", YLabel: "Output", Series: []export.Series{
				{Name: "Output (y) meas", X: times, Y: meas, Style: export.Markers},
				{Name: "Output (y) actual", X: times, Y: actual},
				{Name: "Output (y) estimated", X: times, Y: est, Style: export.Dashed},
			}},
		},
	}}
	return rep, nil
}

// parametersOf returns the estimated parameters as solver parameters. Fixed
// ones are pinned to their initial value.
func parametersOf(ps []mhe.Parameter) []solver.Param {
	out := make([]solver.Param, len(ps))
	for i, p := range ps {
		out[i] = p.Param
		if !p.Estimate {
			v := p.Clamp(p.Init)
			out[i] = solver.Param{Name: p.Name, Init: v, Lower: v, Upper: v}
		}
	}
	return out
}

// column extracts output i of sample-major predictions.
func column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for k, r := range rows {
		out[k] = r[i]
	}
	return out
}
