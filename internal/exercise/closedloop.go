package exercise

import (
	"context"
	"fmt"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/metrics"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/mpc"
	"github.com/san-kum/dynopt/internal/solver"
)

func fopdtEstimatorModel() mhe.Model {
	return mhe.Model{
		Build: func(p []float64) dynamo.System { return models.NewFOPDT(p[0], p[1]) },
		Observe: func(sys dynamo.System, x dynamo.State) float64 {
			return sys.(*models.FOPDT).Output(x)
		},
		Initial: dynamo.State{0},
	}
}

func fopdtControllerModel() mpc.Model {
	return mpc.Model{
		Build: func(p []float64) dynamo.System { return models.NewFOPDT(p[0], p[1]) },
		Observe: func(sys dynamo.System, x dynamo.State) float64 {
			return sys.(*models.FOPDT).Output(x)
		},
		Sync: func(sys dynamo.System, y float64) dynamo.State {
			return sys.(*models.FOPDT).StateFor(y)
		},
	}
}

// controller builds the configured loop controller, or nil for "none".
func controller(env Env, model mpc.Model) (loop.Controller, error) {
	cfg := env.Config.Controller
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "mpc":
		c, err := mpc.New(model, cfg.Tuning, 0, env.Log)
		if err != nil {
			return nil, err
		}
		return loop.MPC{Controller: c}, nil
	case "pid":
		return loop.NewPID(cfg.Kp, cfg.Ki, cfg.Kd, env.Config.Loop.Dt, cfg.Tuning.MVLower, cfg.Tuning.MVUpper), nil
	default:
		return nil, fmt.Errorf("exercise: unknown controller %q", cfg.Kind)
	}
}

func loopConfig(c *config.Config) loop.Config {
	return loop.Config{
		Cycles:            c.Loop.Cycles,
		Dt:                c.Loop.Dt,
		Setpoints:         c.Loop.Setpoints,
		Inputs:            c.Loop.Inputs,
		SPBand:            c.Loop.SPBand,
		ControlOnMeasured: c.Loop.ControlOnMeasured,
	}
}

// fopdtLoop estimates K and tau of a first order process with MHE. With
// control set, the estimates feed an MPC that tracks the setpoint schedule;
// otherwise the process follows the input schedule.
type fopdtLoop struct {
	name    string
	about   string
	control bool
}

func (f fopdtLoop) Name() string { return f.name }

func (f fopdtLoop) Describe() string { return f.about }

func (f fopdtLoop) NewLoop(env Env) (*loop.Loop, error) {
	cfg := env.Config
	plant := models.NewFOPDT(cfg.Loop.Plant["K"], cfg.Loop.Plant["tau"])
	process := loop.NewProcess(plant, plant.Output, dynamo.State{0}, cfg.Loop.Dt, cfg.Loop.Noise, cfg.Seed)

	est, err := mhe.New(fopdtEstimatorModel(), cfg.Estimator.Params, cfg.Estimator.Tuning, env.Log)
	if err != nil {
		return nil, err
	}
	ctrl, err := controller(env, fopdtControllerModel())
	if err != nil {
		return nil, err
	}
	if f.control && ctrl == nil {
		return nil, fmt.Errorf("exercise: %s needs a controller", f.name)
	}

	l, err := loop.New(loopConfig(cfg), process, est, ctrl, env.Log)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics.Defaults(cfg.Loop.Dt) {
		l.AddMetric(m)
	}
	return l, nil
}

func (f fopdtLoop) Run(ctx context.Context, env Env) (*Report, error) {
	l, err := f.NewLoop(env)
	if err != nil {
		return nil, err
	}
	h, err := l.Run(ctx)
	if err != nil {
		return nil, err
	}

	times, u := h.Column("time"), h.Column("u")
	y, meas, est := h.Column("y"), h.Column("y_meas"), h.Column("y_est")
	sp, hi, lo := h.Column("sp"), h.Column("hi"), h.Column("lo")
	gain, tau := h.Column("K"), h.Column("tau")

	rep := newReport(f.name)
	if err := rep.table([]string{"time", "u", "y", "y_meas", "y_est", "sp", "hi", "lo", "K", "tau"},
		times, u, y, meas, est, sp, hi, lo, gain, tau); err != nil {
		return nil, err
	}
	for name, v := range h.Metrics {
		rep.Scalars[name] = v
	}
	rep.Scalars["K"] = gain[len(gain)-1]
	rep.Scalars["tau"] = tau[len(tau)-1]
	rep.Scalars["failed_cycles"] = float64(failedCycles(h))

	plant := env.Config.Loop.Plant
	outputs := []export.Series{
		{Name: "Output (y) meas", X: times, Y: meas, Style: export.Markers},
		{Name: "Output (y) actual", X: times, Y: y},
		{Name: "Output (y) estimated", X: times, Y: est, Style: export.Dashed},
	}
	if f.control {
		outputs = append(outputs,
			export.Series{Name: "SP hi", X: times, Y: hi, Style: export.Dotted},
			export.Series{Name: "SP lo", X: times, Y: lo, Style: export.Dotted})
	}
	rep.Figures = []export.Figure{{
		Name:  f.name,
		Title: f.about,
		Panels: []export.Panel{
			{YLabel: "Input (u)", Series: []export.Series{{Name: "u", X: times, Y: u, Style: export.Step}}},
			{YLabel: "Output (y)", Series: outputs},
			{YLabel: "Gain (K)", Series: []export.Series{
				{Name: "Actual", X: times, Y: constant(len(times), plant["K"]), Style: export.Dotted},
				{Name: "Estimated", X: times, Y: gain},
			}},
			{XLabel: "Time", YLabel: "Time constant (tau)", Series: []export.Series{
				{Name: "Actual", X: times, Y: constant(len(times), plant["tau"]), Style: export.Dotted},
				{Name: "Estimated", X: times, Y: tau},
			}},
		},
	}}
	return rep, nil
}

// cstrMHE estimates the heat transfer coefficient and the unmeasured
// concentration of a reactor from its temperature and the jacket
// temperature. A cycle whose estimate fails is recorded as zeros.
type cstrMHE struct{}

func (cstrMHE) Name() string { return "cstr_mhe" }

func (cstrMHE) Describe() string {
	return "moving horizon estimation of UA and concentration in a stirred tank reactor"
}

func (cstrMHE) model(initial dynamo.State) mhe.Model {
	return mhe.Model{
		Build: func(p []float64) dynamo.System {
			c := models.NewCSTR()
			c.UA = p[0]
			return c
		},
		Observe: func(_ dynamo.System, x dynamo.State) float64 { return x[1] },
		Initial: initial,
		FreeInitial: []mhe.InitialState{
			{Index: 0, Lower: 0, Upper: 1},
			{Index: 1, Lower: 250, Upper: 500},
		},
	}
}

func (e cstrMHE) NewLoop(env Env) (*loop.Loop, error) {
	l, _, err := e.build(env)
	return l, err
}

// build also returns the plant so Run can record the true concentration.
func (e cstrMHE) build(env Env) (*loop.Loop, *loop.Process, error) {
	cfg := env.Config
	plant := models.NewCSTR()
	if ua, ok := cfg.Loop.Plant["UA"]; ok {
		if err := plant.SetParam("UA", ua); err != nil {
			return nil, nil, err
		}
	}
	x0 := dynamo.State{cfg.Loop.Plant["Ca"], cfg.Loop.Plant["T"]}
	observe := func(x dynamo.State) float64 { return x[1] }
	process := loop.NewProcess(plant, observe, x0, cfg.Loop.Dt, cfg.Loop.Noise, cfg.Seed)

	guess := x0.Clone()
	for i, name := range []string{"Ca", "T"} {
		if v, ok := cfg.Estimator.Initial[name]; ok {
			guess[i] = v
		}
	}
	est, err := mhe.New(e.model(guess), cfg.Estimator.Params, cfg.Estimator.Tuning, env.Log)
	if err != nil {
		return nil, nil, err
	}
	l, err := loop.New(loopConfig(cfg), process, est, nil, env.Log)
	if err != nil {
		return nil, nil, err
	}
	l.AddMetric(metrics.NewEstimationError())
	l.AddMetric(metrics.NewParameterVariation())
	return l, process, nil
}

func (e cstrMHE) Run(ctx context.Context, env Env) (*Report, error) {
	l, process, err := e.build(env)
	if err != nil {
		return nil, err
	}
	var caActual []float64
	l.AddObserver(loop.ObserverFunc(func(loop.Record) {
		caActual = append(caActual, process.State()[0])
	}))

	h, err := l.Run(ctx)
	if err != nil {
		return nil, err
	}

	n := len(h.Records)
	times, tc, tMeas := h.Column("time"), h.Column("u"), h.Column("y_meas")
	ua := make([]float64, n)
	tEst := make([]float64, n)
	caEst := make([]float64, n)
	for i, r := range h.Records {
		if r.EstStatus != solver.StatusSuccess || r.XEst == nil {
			env.Log.Warnw("estimate failed, recording zeros", "cycle", r.Cycle)
			continue
		}
		ua[i] = r.Params["UA"]
		tEst[i] = r.YEst
		caEst[i] = r.XEst[0]
	}

	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "tc", "t_meas", "t_est", "ca_actual", "ca_est", "ua_est"},
		times, tc, tMeas, tEst, caActual, caEst, ua); err != nil {
		return nil, err
	}
	for name, v := range h.Metrics {
		rep.Scalars[name] = v
	}
	if n > 0 {
		rep.Scalars["UA"] = ua[n-1]
		rep.Scalars["ca_error"] = caEst[n-1] - caActual[n-1]
	}
	rep.Scalars["failed_cycles"] = float64(failedCycles(h))

	rep.Figures = []export.Figure{{
		Name:  "cstr_mhe",
		Title: "Reactor estimation",
		Panels: []export.Panel{
			{YLabel: "Jacket T (K)", Series: []export.Series{{Name: "T_c", X: times, Y: tc}}},
			{YLabel: "UA", Series: []export.Series{
				{Name: "Actual UA", X: times, Y: constant(n, env.Config.Loop.Plant["UA"]), Style: export.Dashed},
				{Name: "Predicted UA", X: times, Y: ua, Style: export.Dotted},
			}},
			{YLabel: "Reactor T (K)", Series: []export.Series{
				{Name: "Measured T", X: times, Y: tMeas, Style: export.Markers},
				{Name: "Predicted T", X: times, Y: tEst},
			}},
			{XLabel: "Time (min)", YLabel: "Reactor Ca (mol/L)", Series: []export.Series{
				{Name: "Measured Ca", X: times, Y: caActual, Style: export.Markers},
				{Name: "Predicted Ca", X: times, Y: caEst},
			}},
		},
	}}
	return rep, nil
}

func failedCycles(h *loop.History) int {
	n := 0
	for _, r := range h.Records {
		if r.EstStatus != solver.StatusSuccess {
			n++
		}
	}
	return n
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
