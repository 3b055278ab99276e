package exercise

import (
	"context"

	"github.com/san-kum/dynopt/internal/baddata"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/metrics"
)

// badData compares how a filtered bias update, an l1-norm MHE and a squared
// error MHE respond to corrupted flow measurements.
type badData struct{}

func (badData) Name() string { return "bad_data" }

func (badData) Describe() string {
	return "filtered bias vs l1-norm vs squared error MHE on corrupted flow data"
}

func (e badData) Run(ctx context.Context, env Env) (*Report, error) {
	cfg := env.Config.Estimator.BadData
	z := baddata.Measurements(cfg.Cycles, cfg.Truth, env.Config.Seed, cfg.Corruptions()...)

	res, err := baddata.Compare(ctx, z, cfg.Config, env.Log)
	if err != nil {
		return nil, err
	}

	rep := newReport(e.Name())
	if err := rep.table([]string{"time", "measured", "truth", "filtered_bias", "l1", "l2"},
		res.Time, res.Measured, res.Truth, res.FilteredBias, res.L1, res.L2); err != nil {
		return nil, err
	}
	for name, est := range map[string][]float64{"filtered_bias": res.FilteredBias, "l1": res.L1, "l2": res.L2} {
		s := metrics.Summarize(est[1:])
		rep.Scalars[name+"_rmse"] = metrics.RMSE(est[1:], res.Truth[1:])
		rep.Scalars[name+"_max"] = s.Max
		rep.Scalars[name+"_std"] = s.Std
	}
	env.Log.Infow("compared estimators",
		"filtered_bias_rmse", rep.Scalars["filtered_bias_rmse"],
		"l1_rmse", rep.Scalars["l1_rmse"],
		"l2_rmse", rep.Scalars["l2_rmse"])

	rep.Figures = []export.Figure{{
		Name:  "bad_data",
		Title: "Estimator response to bad data",
		Panels: []export.Panel{{
			XLabel: "Time",
			YLabel: "Flow",
			Series: []export.Series{
				{Name: "Measured", X: res.Time, Y: res.Measured, Style: export.Markers},
				{Name: "Actual", X: res.Time, Y: res.Truth, Style: export.Dotted},
				{Name: "Filtered bias update", X: res.Time, Y: res.FilteredBias, Style: export.Dashed},
				{Name: "l1-norm MHE", X: res.Time, Y: res.L1},
				{Name: "Squared error MHE", X: res.Time, Y: res.L2, Style: export.Dashed},
			},
		}},
	}}
	return rep, nil
}
