// Package mpc implements a single-input single-output model predictive
// controller with move blocking on top of the solver package.
package mpc

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
	ErrNoModel = errors.New("mpc: model needs Build, Observe and Sync")
	ErrHorizon = errors.New("mpc: horizon must cover at least two points")
	ErrMVRange = errors.New("mpc: MV lower limit above upper limit")
)

// dmaxPenalty weights moves beyond DMax between later blocks; the first
// move is bounded directly.
const dmaxPenalty = 1e6

type Tuning struct {
	// Horizon is the number of prediction points, the current one included.
	Horizon int     `yaml:"horizon"`
	Dt      float64 `yaml:"dt"`
	// Blocks is the number of independent moves. The first Blocks-1 last one
	// step each and the final block holds to the end of the horizon.
	Blocks     int            `yaml:"blocks"`
	CVType     solver.Loss    `yaml:"cv_type"`
	WSPHI      float64        `yaml:"wsphi"`
	WSPLO      float64        `yaml:"wsplo"`
	DCost      float64        `yaml:"dcost"`
	MVLower    float64        `yaml:"mv_lower"`
	MVUpper    float64        `yaml:"mv_upper"`
	DMax       float64        `yaml:"dmax"`
	TrInit     int            `yaml:"tr_init"`
	TrTau      float64        `yaml:"tr_tau"`
	MaxStep    float64        `yaml:"max_step"`
	Integrator string         `yaml:"integrator"`
	Solver     solver.Options `yaml:"solver"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Horizon: 11,
		Dt:      0.5,
		Blocks:  4,
		CVType:  solver.L1,
		WSPHI:   20,
		WSPLO:   20,
		DCost:   0.1,
		MVLower: -10,
		MVUpper: 10,
		Solver:  solver.DefaultOptions(),
	}
}

// Setpoint is the target for the controlled variable. L1 control keeps the
// output inside [Lo, Hi]; L2 control tracks SP.
type Setpoint struct {
	SP float64
	Hi float64
	Lo float64
}

// Band returns a setpoint with a dead-band of +/- half around sp.
func Band(sp, half float64) Setpoint {
	return Setpoint{SP: sp, Hi: sp + half, Lo: sp - half}
}

type Model struct {
	Build   func(params []float64) dynamo.System
	Observe func(sys dynamo.System, x dynamo.State) float64
	// Sync returns the state that reproduces the measured output y.
	Sync func(sys dynamo.System, y float64) dynamo.State
}

type Move struct {
	U         float64
	Plan      []float64
	Predicted []float64
	Status    solver.Status
	Objective float64
}

type Controller struct {
	tuning Tuning
	model  Model
	u      float64
	plan   []float64
	blocks []int
	cycle  int
	log    *zap.SugaredLogger
}

// New returns a controller whose previous move is u0.
func New(model Model, tuning Tuning, u0 float64, log *zap.SugaredLogger) (*Controller, error) {
	if model.Build == nil || model.Observe == nil || model.Sync == nil {
		return nil, ErrNoModel
	}
	if tuning.Horizon < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrHorizon, tuning.Horizon)
	}
	if tuning.Dt <= 0 {
		return nil, fmt.Errorf("mpc: dt must be positive, got %f", tuning.Dt)
	}
	if tuning.MVLower > tuning.MVUpper {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrMVRange, tuning.MVLower, tuning.MVUpper)
	}
	if _, err := integrators.New(tuning.Integrator); err != nil {
		return nil, err
	}
	if tuning.MaxStep <= 0 {
		tuning.MaxStep = tuning.Dt
	}
	if tuning.TrTau <= 0 {
		tuning.TrTau = float64(tuning.Horizon-1) * tuning.Dt / 3
	}

	c := &Controller{
		tuning: tuning,
		model:  model,
		u:      math.Min(math.Max(u0, tuning.MVLower), tuning.MVUpper),
		blocks: blockLengths(tuning.Horizon-1, tuning.Blocks),
		log:    logging.OrNop(log).Named("mpc"),
	}
	return c, nil
}

// blockLengths splits steps into n blocks: n-1 single steps and a final
// block with the remainder.
func blockLengths(steps, n int) []int {
	if n < 1 {
		n = 1
	}
	if n > steps {
		n = steps
	}
	out := make([]int, n)
	for i := 0; i < n-1; i++ {
		out[i] = 1
	}
	out[n-1] = steps - (n - 1)
	return out
}

// Last returns the most recent move.
func (c *Controller) Last() float64 { return c.u }

// Update computes the next move from the measured output y and the current
// model parameters. A failed solve holds the previous move.
func (c *Controller) Update(ctx context.Context, y float64, params []float64, sp Setpoint) (*Move, error) {
	c.cycle++
	sys := c.model.Build(params)
	x0 := c.model.Sync(sys, y)

	prms := c.bounds()
	objective := func(v []float64) float64 {
		plan := c.expand(v)
		pred, err := c.predict(params, x0, plan)
		if err != nil {
			return math.Inf(1)
		}
		return c.cost(y, pred, plan, sp)
	}

	res, err := solver.Solve(ctx, solver.Problem{Params: prms, Objective: objective}, c.tuning.Solver)
	if err != nil {
		return nil, err
	}

	move := &Move{Status: res.Status, Objective: res.F}
	if res.Status != solver.StatusSuccess {
		c.log.Warnw("control solve failed, holding previous move", "cycle", c.cycle, "u", c.u, "message", res.Message)
		move.U = c.u
		move.Plan = c.hold()
		if pred, err := c.predict(params, x0, move.Plan); err == nil {
			move.Predicted = pred
		}
		return move, nil
	}

	plan := c.expand(res.X)
	pred, _ := c.predict(params, x0, plan)
	c.u = plan[0]
	c.plan = res.X
	move.U = c.u
	move.Plan = plan
	move.Predicted = pred
	c.log.Debugw("move", "cycle", c.cycle, "u", c.u, "objective", res.F)
	return move, nil
}

func (c *Controller) hold() []float64 {
	plan := make([]float64, c.tuning.Horizon-1)
	for i := range plan {
		plan[i] = c.u
	}
	return plan
}

// bounds warm-starts from the previous plan shifted by one block.
func (c *Controller) bounds() []solver.Param {
	t := c.tuning
	out := make([]solver.Param, len(c.blocks))
	for i := range out {
		init := c.u
		if i+1 < len(c.plan) {
			init = c.plan[i+1]
		} else if len(c.plan) > 0 {
			init = c.plan[len(c.plan)-1]
		}
		lo, hi := t.MVLower, t.MVUpper
		if i == 0 && t.DMax > 0 {
			lo = math.Max(lo, c.u-t.DMax)
			hi = math.Min(hi, c.u+t.DMax)
		}
		init = math.Min(math.Max(init, lo), hi)
		out[i] = solver.Bounded(fmt.Sprintf("u%d", i), init, lo, hi)
	}
	return out
}

// expand maps block values to one move per step.
func (c *Controller) expand(v []float64) []float64 {
	plan := make([]float64, 0, c.tuning.Horizon-1)
	for i, n := range c.blocks {
		for j := 0; j < n; j++ {
			plan = append(plan, v[i])
		}
	}
	return plan
}

// predict returns the model output at every horizon point, starting with
// the synced current point.
func (c *Controller) predict(params []float64, x0 dynamo.State, plan []float64) ([]float64, error) {
	sys := c.model.Build(params)
	integ, err := integrators.New(c.tuning.Integrator)
	if err != nil {
		return nil, err
	}
	x := x0.Clone()
	pred := make([]float64, len(plan)+1)
	pred[0] = c.model.Observe(sys, x)
	for j, u := range plan {
		x = integrators.Propagate(integ, sys, x, dynamo.Control{u}, 0, c.tuning.Dt, c.tuning.MaxStep)
		if !x.IsValid() {
			return nil, &dynamo.SimulationError{Step: j, State: x, Wrapped: dynamo.ErrInvalidState}
		}
		pred[j+1] = c.model.Observe(sys, x)
	}
	return pred, nil
}

func (c *Controller) cost(y0 float64, pred, plan []float64, sp Setpoint) float64 {
	t := c.tuning
	sum := 0.0
	for j := 1; j < len(pred); j++ {
		hi, lo, target := sp.Hi, sp.Lo, sp.SP
		if t.TrInit > 0 {
			w := math.Exp(-float64(j) * t.Dt / t.TrTau)
			hi += (y0 - hi) * w
			lo += (y0 - lo) * w
			target += (y0 - target) * w
		}
		if t.CVType == solver.L2 {
			e := pred[j] - target
			sum += e * e
			continue
		}
		if pred[j] > hi {
			sum += t.WSPHI * (pred[j] - hi)
		}
		if pred[j] < lo {
			sum += t.WSPLO * (lo - pred[j])
		}
	}

	prev := c.u
	for j, u := range plan {
		du := u - prev
		if t.CVType == solver.L2 {
			sum += t.DCost * du * du
		} else {
			sum += t.DCost * math.Abs(du)
		}
		if j > 0 && t.DMax > 0 && math.Abs(du) > t.DMax {
			sum += dmaxPenalty * (math.Abs(du) - t.DMax)
		}
		prev = u
	}
	return sum
}
