package baddata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/logging"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/models"
	"github.com/san-kum/dynopt/internal/solver"
)

type Config struct {
	Truth   float64 `yaml:"truth"`
	Valve   float64 `yaml:"valve"`
	X0      float64 `yaml:"x0"`
	Alpha   float64 `yaml:"alpha"`
	Horizon int     `yaml:"horizon"`
	// WModelL2 anchors the squared error estimator to its previous
	// predictions.
	WModelL2 float64        `yaml:"wmodel_l2"`
	WMeas    float64        `yaml:"wmeas"`
	Solver   solver.Options `yaml:"solver"`
}

func DefaultConfig() Config {
	return Config{
		Truth:    37.727,
		Valve:    42,
		X0:       40,
		Alpha:    0.0951,
		Horizon:  50,
		WModelL2: 10,
		WMeas:    100,
		Solver:   solver.DefaultOptions(),
	}
}

type Result struct {
	Time         []float64
	Measured     []float64
	Truth        []float64
	FilteredBias []float64
	L1           []float64
	L2           []float64
}

// Compare runs the filtered bias update and two flow estimators, one with
// an l1-norm and one with a squared error objective, over measurements z.
// Index 0 of every estimate is the initial guess X0.
func Compare(ctx context.Context, z []float64, cfg Config, log *zap.SugaredLogger) (*Result, error) {
	log = logging.OrNop(log)
	n := len(z)
	res := &Result{
		Time:         make([]float64, n),
		Measured:     append([]float64(nil), z...),
		Truth:        make([]float64, n),
		FilteredBias: make([]float64, n),
	}
	fb := NewFilteredBias(cfg.Alpha, cfg.X0)
	res.FilteredBias[0] = cfg.X0
	for k := range z {
		res.Time[k] = float64(k)
		res.Truth[k] = cfg.Truth
		if k > 0 {
			res.FilteredBias[k] = fb.Update(z[k])
		}
	}

	l1 := cfg.tuning(solver.L1, 0)
	l2 := cfg.tuning(solver.L2, cfg.WModelL2)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := cfg.estimate(gctx, z, l1, log.With("estimator", "l1"))
		res.L1 = out
		return err
	})
	g.Go(func() error {
		out, err := cfg.estimate(gctx, z, l2, log.With("estimator", "l2"))
		res.L2 = out
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (cfg Config) tuning(loss solver.Loss, wmodel float64) mhe.Tuning {
	t := mhe.DefaultTuning()
	t.Horizon = cfg.Horizon
	t.Dt = 1
	t.MaxStep = 0.05
	t.Loss = loss
	t.MeasGap = 0
	t.WMeas = cfg.WMeas
	t.WModel = wmodel
	t.Solver = cfg.Solver
	return t
}

// FlowModel is the estimator model of the flow line with the disturbance
// d as its only parameter.
func FlowModel(valve float64) mhe.Model {
	return mhe.Model{
		Build: func(p []float64) dynamo.System {
			f := models.NewFlow()
			f.D = p[0]
			return f
		},
		Observe: func(sys dynamo.System, x dynamo.State) float64 { return x[0] },
		Initial: dynamo.State{valve},
	}
}

func (cfg Config) estimate(ctx context.Context, z []float64, tuning mhe.Tuning, log *zap.SugaredLogger) ([]float64, error) {
	params := []mhe.Parameter{{Param: solver.Free("d", 0), Estimate: true}}
	est, err := mhe.New(FlowModel(cfg.Valve), params, tuning, log)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(z))
	out[0] = cfg.X0
	for k := 1; k < len(z); k++ {
		r, err := est.Update(ctx, dynamo.Control{cfg.Valve}, z[k], true)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", k, err)
		}
		out[k] = r.Output
		if k%25 == 0 {
			log.Infow("progress", "cycle", k, "of", len(z)-1, "estimate", r.Output)
		}
	}
	return out, nil
}
