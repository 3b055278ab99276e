package exercise

import (
	"context"
	"fmt"

	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/estimate"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/sysid"
)

const (
	stepPoints = 241
	stepAt     = 5
	stepSize   = 100
)

// labData reads a heater lab file, or generates one of the same shape when
// offline or when the source cannot be read.
func labData(ctx context.Context, env Env, source string, synthetic func(dataset.HeaterLab) *dataset.Frame) (*dataset.Frame, error) {
	cfg := env.Config.Data
	if cfg.Offline || source == "" {
		return synthetic(cfg.Lab), nil
	}
	f, err := env.Loader.Load(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		env.Log.Warnw("using synthetic lab data", "source", source, "error", err)
		return synthetic(cfg.Lab), nil
	}
	return f, nil
}

// identify fits an ARX model to the named input and output columns.
func identify(env Env, f *dataset.Frame, inputs, outputs []string) (*sysid.Result, [][]float64, [][]float64, error) {
	u, err := f.Rows(inputs...)
	if err != nil {
		return nil, nil, nil, err
	}
	y, err := f.Rows(outputs...)
	if err != nil {
		return nil, nil, nil, err
	}
	pred, err := sysid.ParsePrediction(env.Config.Estimator.Prediction)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := sysid.Identify(u, y, env.Config.Estimator.NA, env.Config.Estimator.NB, pred)
	if err != nil {
		return nil, nil, nil, err
	}
	return res, u, y, nil
}

// stepTest starts the model at its zero-input steady state and steps input
// m by stepSize at sample stepAt.
func stepTest(model *sysid.ARX, m int) ([]float64, [][]float64, [][]float64, error) {
	y0, err := model.SteadyState(make([]float64, model.Inputs()))
	if err != nil {
		return nil, nil, nil, err
	}
	times := make([]float64, stepPoints)
	u := make([][]float64, stepPoints)
	for k := range u {
		times[k] = float64(k)
		u[k] = make([]float64, model.Inputs())
		if k >= stepAt {
			u[k][m] = stepSize
		}
	}
	init := make([][]float64, max(model.NA, model.NB))
	for k := range init {
		init[k] = y0
	}
	y, err := model.Simulate(u, init)
	if err != nil {
		return nil, nil, nil, err
	}
	return times, u, y, nil
}

type sisoARX struct{}

func (sisoARX) Name() string { return "siso_arx" }

func (sisoARX) Describe() string {
	return "ARX identification and step test of the single heater lab, with an FOPDT fit"
}

func (e sisoARX) Run(ctx context.Context, env Env) (*Report, error) {
	f, err := labData(ctx, env, env.Config.Data.SISO, dataset.SyntheticSISO)
	if err != nil {
		return nil, err
	}
	res, u, y, err := identify(env, f, []string{"voltage"}, []string{"temperature"})
	if err != nil {
		return nil, err
	}
	t, err := f.Column("time")
	if err != nil {
		return nil, err
	}
	uc, yc, pred := column(u, 0), column(y, 0), column(res.Predicted, 0)
	env.Log.Infow("identified ARX model", "a", res.Model.A[0], "b", res.Model.B[0][0], "gain", res.Gain[0][0])

	fit, err := estimate.FitFOPDT(ctx, t, uc, yc, estimate.FOPDT{K: res.Gain[0][0]}, env.Config.Solver)
	if err != nil {
		return nil, err
	}

	st, su, sy, err := stepTest(res.Model, 0)
	if err != nil {
		return nil, err
	}

	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "u", "y", "y_pred", "y_fopdt"}, t, uc, yc, pred, fit.Predicted); err != nil {
		return nil, err
	}
	rep.Scalars["gain"] = res.Gain[0][0]
	rep.Scalars["fopdt_K"] = fit.K
	rep.Scalars["fopdt_tau"] = fit.Tau
	rep.Scalars["fopdt_theta"] = fit.Theta
	rep.Scalars["fopdt_sse"] = fit.SSE
	rep.Scalars["step_final"] = sy[len(sy)-1][0]
	rep.Figures = []export.Figure{
		{
			Name:  "siso_sysid",
			Title: "SISO identification",
			Panels: []export.Panel{
				{YLabel: "MV Voltage (mV)", Series: []export.Series{{Name: "V1", X: t, Y: uc}}},
				{XLabel: "Time", YLabel: "CV Temp", Series: []export.Series{
					{Name: "T1 meas", X: t, Y: yc},
					{Name: "T1 pred", X: t, Y: pred, Style: export.Dashed},
					{Name: "T1 FOPDT", X: t, Y: fit.Predicted, Style: export.Dotted},
				}},
			},
		},
		{
			Name:  "siso_step_test",
			Title: "Step Test 1",
			Panels: []export.Panel{
				{YLabel: "Heater (V)", Series: []export.Series{{Name: "H1", X: st, Y: column(su, 0), Style: export.Step}}},
				{XLabel: "Time (sec)", YLabel: "Temperature", Series: []export.Series{{Name: "T1", X: st, Y: column(sy, 0), Style: export.Dashed}}},
			},
		},
	}
	return rep, nil
}

type mimoARX struct{}

func (mimoARX) Name() string { return "mimo_arx" }

func (mimoARX) Describe() string {
	return "ARX identification, steady state gains and step tests of the two heater lab"
}

func (e mimoARX) Run(ctx context.Context, env Env) (*Report, error) {
	f, err := labData(ctx, env, env.Config.Data.MIMO, dataset.SyntheticMIMO)
	if err != nil {
		return nil, err
	}
	inputs, outputs := []string{"H1", "H2"}, []string{"T1", "T2"}
	res, u, y, err := identify(env, f, inputs, outputs)
	if err != nil {
		return nil, err
	}
	t, err := f.Column("Time")
	if err != nil {
		return nil, err
	}

	header := []string{"time"}
	cols := [][]float64{t}
	for m, name := range inputs {
		header = append(header, name)
		cols = append(cols, column(u, m))
	}
	for i, name := range outputs {
		header = append(header, name, name+"_pred")
		cols = append(cols, column(y, i), column(res.Predicted, i))
	}

	rep := newReport(e.Name())
	if err := rep.table(header, cols...); err != nil {
		return nil, err
	}
	for i, out := range outputs {
		for m, in := range inputs {
			rep.Scalars[fmt.Sprintf("K_%s_%s", out, in)] = res.Gain[i][m]
		}
	}
	env.Log.Infow("identified ARX model", "gain", res.Gain)

	fit := export.Figure{Name: "mimo_sysid", Title: "MIMO identification"}
	var mvs, cvs []export.Series
	for m, name := range inputs {
		mvs = append(mvs, export.Series{Name: name, X: t, Y: column(u, m)})
	}
	for i, name := range outputs {
		cvs = append(cvs,
			export.Series{Name: name + " meas", X: t, Y: column(y, i)},
			export.Series{Name: name + " pred", X: t, Y: column(res.Predicted, i), Style: export.Dashed})
	}
	fit.Panels = []export.Panel{{YLabel: "MVs", Series: mvs}, {XLabel: "Time", YLabel: "CVs", Series: cvs}}
	rep.Figures = append(rep.Figures, fit)

	for m, name := range inputs {
		st, su, sy, err := stepTest(res.Model, m)
		if err != nil {
			return nil, err
		}
		fig := export.Figure{
			Name:  fmt.Sprintf("mimo_step_test_%d", m+1),
			Title: fmt.Sprintf("Step Test %d (%s)", m+1, name),
		}
		var hs, ts []export.Series
		for j, in := range inputs {
			hs = append(hs, export.Series{Name: in, X: st, Y: column(su, j), Style: export.Step})
		}
		for i, out := range outputs {
			ts = append(ts, export.Series{Name: out, X: st, Y: column(sy, i), Style: export.Dashed})
			rep.Scalars[fmt.Sprintf("step%d_%s_final", m+1, out)] = sy[len(sy)-1][i]
		}
		fig.Panels = []export.Panel{{YLabel: "Heater (%)", Series: hs}, {XLabel: "Time (sec)", YLabel: "Temperature", Series: ts}}
		rep.Figures = append(rep.Figures, fig)
	}
	return rep, nil
}
