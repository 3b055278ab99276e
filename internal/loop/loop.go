// Package loop runs the process, estimator and controller cycle used by
// the closed-loop exercises.
package loop

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/logging"
	"github.com/san-kum/dynopt/internal/metrics"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/mpc"
	"github.com/san-kum/dynopt/internal/solver"
)

var ErrNoProcess = errors.New("loop: no process")

type Config struct {
	Cycles int     `yaml:"cycles"`
	Dt     float64 `yaml:"dt"`
	// Setpoints drive the controller; Inputs drive the process directly
	// when there is no controller.
	Setpoints Schedule `yaml:"setpoints"`
	Inputs    Schedule `yaml:"inputs"`
	SPBand    float64  `yaml:"sp_band"`
	// ModelParams are handed to the controller when there is no estimator.
	ModelParams []float64 `yaml:"model_params"`
	// ControlOnMeasured gives the controller the noisy measurement instead
	// of the true process output.
	ControlOnMeasured bool `yaml:"control_on_measured"`
}

type Record struct {
	Cycle     int                `json:"cycle"`
	Time      float64            `json:"time"`
	U         float64            `json:"u"`
	Y         float64            `json:"y"`
	YMeas     float64            `json:"y_meas"`
	YEst      float64            `json:"y_est"`
	SP        float64            `json:"sp"`
	Hi        float64            `json:"hi"`
	Lo        float64            `json:"lo"`
	Params    map[string]float64 `json:"params,omitempty"`
	Values    []float64          `json:"-"`
	XEst      dynamo.State       `json:"-"`
	EstStatus solver.Status      `json:"est_status"`
}

func (r Record) sample() metrics.Sample {
	return metrics.Sample{
		Time:   r.Time,
		U:      r.U,
		Y:      r.Y,
		YMeas:  r.YMeas,
		YEst:   r.YEst,
		SP:     r.SP,
		Hi:     r.Hi,
		Lo:     r.Lo,
		Params: r.Values,
	}
}

type Observer interface {
	OnCycle(r Record)
}

type ObserverFunc func(r Record)

func (f ObserverFunc) OnCycle(r Record) { f(r) }

type History struct {
	Records []Record
	Metrics map[string]float64
}

// Column extracts one field of every record: "u", "y", "y_meas", "y_est",
// "sp", "hi", "lo" or a parameter name.
func (h *History) Column(name string) []float64 {
	out := make([]float64, len(h.Records))
	for i, r := range h.Records {
		switch name {
		case "time":
			out[i] = r.Time
		case "u":
			out[i] = r.U
		case "y":
			out[i] = r.Y
		case "y_meas":
			out[i] = r.YMeas
		case "y_est":
			out[i] = r.YEst
		case "sp":
			out[i] = r.SP
		case "hi":
			out[i] = r.Hi
		case "lo":
			out[i] = r.Lo
		default:
			v, ok := r.Params[name]
			if !ok {
				v = math.NaN()
			}
			out[i] = v
		}
	}
	return out
}

type Loop struct {
	cfg       Config
	process   *Process
	estimator *mhe.Estimator
	ctrl      Controller
	observers []Observer
	metrics   []metrics.Metric
	cycle     int
	lastMeas  float64
	history   History
	log       *zap.SugaredLogger
}

// New wires a loop. The estimator and the controller are optional.
func New(cfg Config, process *Process, est *mhe.Estimator, ctrl Controller, log *zap.SugaredLogger) (*Loop, error) {
	if process == nil {
		return nil, ErrNoProcess
	}
	return &Loop{
		cfg:       cfg,
		process:   process,
		estimator: est,
		ctrl:      ctrl,
		lastMeas:  process.Output(),
		log:       logging.OrNop(log).Named("loop"),
	}, nil
}

func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

func (l *Loop) AddMetric(m metrics.Metric) { l.metrics = append(l.metrics, m) }

// Done reports whether all configured cycles have run.
func (l *Loop) Done() bool { return l.cycle >= l.cfg.Cycles }

func (l *Loop) Cycles() int { return l.cfg.Cycles }

// Step runs one cycle: controller, process, estimator, then metrics and
// observers.
func (l *Loop) Step(ctx context.Context) (Record, error) {
	i := l.cycle
	sp := mpc.Band(l.cfg.Setpoints.At(i), l.cfg.SPBand)
	rec := Record{Cycle: i, Time: float64(i+1) * l.cfg.Dt, SP: sp.SP, Hi: sp.Hi, Lo: sp.Lo, YEst: math.NaN()}

	params := l.cfg.ModelParams
	if l.estimator != nil {
		params = l.estimator.Values()
	}

	var u float64
	if l.ctrl != nil {
		y := l.process.Output()
		if l.cfg.ControlOnMeasured {
			y = l.lastMeas
		}
		var err error
		u, err = l.ctrl.Move(ctx, y, params, sp)
		if err != nil {
			return rec, err
		}
	} else {
		u = l.cfg.Inputs.At(i)
	}
	rec.U = u

	rec.Y, rec.YMeas = l.process.Step(dynamo.Control{u})
	l.lastMeas = rec.YMeas

	if l.estimator != nil {
		est, err := l.estimator.Update(ctx, dynamo.Control{u}, rec.YMeas, true)
		if err != nil {
			return rec, err
		}
		rec.YEst = est.Output
		rec.Params = est.Params
		rec.Values = l.estimator.Values()
		rec.XEst = est.State
		rec.EstStatus = est.Status
	}

	sample := rec.sample()
	for _, m := range l.metrics {
		m.Observe(sample)
	}
	for _, o := range l.observers {
		o.OnCycle(rec)
	}
	l.history.Records = append(l.history.Records, rec)
	l.cycle++
	l.log.Debugw("cycle", "cycle", i, "u", u, "y", rec.Y, "y_meas", rec.YMeas, "y_est", rec.YEst)
	return rec, nil
}

// Run steps until all cycles are done or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) (*History, error) {
	for !l.Done() {
		select {
		case <-ctx.Done():
			return l.History(), ctx.Err()
		default:
		}
		if _, err := l.Step(ctx); err != nil {
			return l.History(), err
		}
	}
	return l.History(), nil
}

// History returns the records so far with the current metric values.
func (l *Loop) History() *History {
	return &History{
		Records: append([]Record(nil), l.history.Records...),
		Metrics: metrics.Values(l.metrics),
	}
}
