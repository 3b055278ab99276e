package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInvalidBounds indicates a parameter whose lower bound exceeds its upper bound.
	ErrInvalidBounds = errors.New("solver: lower bound above upper bound")

	// ErrNoObjective indicates a problem without an objective function.
	ErrNoObjective = errors.New("solver: problem has no objective")
)

// Status is the application status of a solve.
type Status int

const (
	StatusFailed  Status = 0
	StatusSuccess Status = 1
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failed"
}

type Method string

const (
	NelderMead Method = "nelder-mead"
	BFGS       Method = "bfgs"
)

type Param struct {
	Name  string
	Init  float64
	Lower float64
	Upper float64
}

// Free returns an unbounded parameter.
func Free(name string, init float64) Param {
	return Param{Name: name, Init: init, Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Bounded returns a parameter restricted to [lo, hi].
func Bounded(name string, init, lo, hi float64) Param {
	return Param{Name: name, Init: init, Lower: lo, Upper: hi}
}

// Clamp returns v limited to the parameter bounds.
func (p Param) Clamp(v float64) float64 {
	return math.Min(math.Max(v, p.Lower), p.Upper)
}

type Problem struct {
	Params    []Param
	Objective func(x []float64) float64
}

type Options struct {
	Method         Method  `yaml:"method"`
	MaxEvaluations int     `yaml:"max_evaluations"`
	Tolerance      float64 `yaml:"tolerance"`
	// Starts is the number of starting points. The first start is always
	// the parameters' initial values; the rest are random perturbations.
	Starts int `yaml:"starts"`
	// Restarts reruns the method from its own solution with a fresh simplex
	// while that keeps improving the objective.
	Restarts    int     `yaml:"restarts"`
	SimplexSize float64 `yaml:"simplex_size"`
	Seed        int64   `yaml:"seed"`
}

func DefaultOptions() Options {
	return Options{
		Method:         NelderMead,
		MaxEvaluations: 4000,
		Tolerance:      1e-10,
		Starts:         1,
		Restarts:       2,
		SimplexSize:    0.2,
	}
}

type Result struct {
	Names       []string
	X           []float64
	F           float64
	Status      Status
	Evaluations int
	Message     string
}

// Value returns the solution value of the named parameter.
func (r *Result) Value(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.X[i], true
		}
	}
	return 0, false
}

// Named returns the solution keyed by parameter name.
func (r *Result) Named() map[string]float64 {
	out := make(map[string]float64, len(r.Names))
	for i, n := range r.Names {
		out[n] = r.X[i]
	}
	return out
}

// Solve minimizes the problem objective subject to the parameter bounds.
// A failed optimization is reported through Result.Status, not as an error;
// errors are reserved for malformed problems and context cancellation.
func Solve(ctx context.Context, p Problem, opts Options) (*Result, error) {
	if p.Objective == nil {
		return nil, ErrNoObjective
	}
	opts = withDefaults(opts)

	names := make([]string, len(p.Params))
	transforms := make([]transform, len(p.Params))
	free := make([]int, 0, len(p.Params))
	for i, prm := range p.Params {
		if prm.Lower > prm.Upper {
			return nil, fmt.Errorf("%w: %s [%g, %g]", ErrInvalidBounds, prm.Name, prm.Lower, prm.Upper)
		}
		names[i] = prm.Name
		transforms[i] = newTransform(prm)
		if transforms[i].kind != boundFixed {
			free = append(free, i)
		}
	}

	s := &search{problem: p, transforms: transforms, free: free}

	if len(free) == 0 {
		x := s.model(nil)
		f := s.objective(x)
		return &Result{Names: names, X: x, F: f, Status: statusFor(f, nil), Evaluations: 1}, nil
	}

	starts := s.startingPoints(opts)
	results := make([]*Result, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	for i, z0 := range starts {
		g.Go(func() error {
			r, err := s.run(gctx, z0, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *Result
	evals := 0
	for _, r := range results {
		evals += r.Evaluations
		if best == nil || r.F < best.F {
			best = r
		}
	}
	best.Names = names
	best.Evaluations = evals
	return best, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Method == "" {
		opts.Method = def.Method
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = def.MaxEvaluations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.Starts <= 0 {
		opts.Starts = 1
	}
	if opts.Restarts < 0 {
		opts.Restarts = 0
	}
	if opts.SimplexSize <= 0 {
		opts.SimplexSize = def.SimplexSize
	}
	return opts
}

func statusFor(f float64, err error) Status {
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return StatusFailed
	}
	return StatusSuccess
}

type search struct {
	problem    Problem
	transforms []transform
	free       []int
}

// model maps a search point to the full parameter vector.
func (s *search) model(z []float64) []float64 {
	x := make([]float64, len(s.transforms))
	for i, t := range s.transforms {
		if t.kind == boundFixed {
			x[i] = t.lo
		}
	}
	for j, i := range s.free {
		x[i] = s.transforms[i].toModel(z[j])
	}
	return x
}

func (s *search) objective(x []float64) float64 {
	f := s.problem.Objective(x)
	if math.IsNaN(f) || math.IsInf(f, -1) {
		return math.Inf(1)
	}
	return f
}

func (s *search) startingPoints(opts Options) [][]float64 {
	rng := rand.New(rand.NewSource(opts.Seed))
	starts := make([][]float64, opts.Starts)
	for k := range starts {
		z := make([]float64, len(s.free))
		for j, i := range s.free {
			t := s.transforms[i]
			init := s.problem.Params[i].Init
			switch {
			case k == 0:
				z[j] = t.toSearch(init)
			case t.kind == boundBoth:
				z[j] = t.toSearch(t.lo + (t.hi-t.lo)*(0.05+0.9*rng.Float64()))
			default:
				z[j] = t.toSearch(init) + rng.NormFloat64()
			}
		}
		starts[k] = z
	}
	return starts
}

// run performs one start: the method followed by restarts from its own
// solution while the objective keeps improving.
func (s *search) run(ctx context.Context, z0 []float64, opts Options) (*Result, error) {
	z := append([]float64(nil), z0...)
	f := math.Inf(1)
	evals := 0
	message := ""

	for attempt := 0; attempt <= opts.Restarts && evals < opts.MaxEvaluations; attempt++ {
		loc, n, msg, err := s.minimize(ctx, z, opts)
		evals += n
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			message = err.Error()
		}
		if loc == nil || !(loc.F < f) {
			break
		}
		gain := f - loc.F
		copy(z, loc.X)
		f = loc.F
		message = msg
		if !math.IsInf(gain, 1) && gain <= opts.Tolerance*(1+math.Abs(f)) {
			break
		}
	}

	if math.IsInf(f, 1) && message == "" {
		message = "objective is not finite at any visited point"
	}
	return &Result{X: s.model(z), F: f, Status: statusFor(f, nil), Evaluations: evals, Message: message}, nil
}

func (s *search) minimize(ctx context.Context, z0 []float64, opts Options) (*optimize.Location, int, string, error) {
	fn := func(z []float64) float64 {
		return s.objective(s.model(z))
	}
	problem := optimize.Problem{Func: fn}

	var method optimize.Method = &optimize.NelderMead{SimplexSize: opts.SimplexSize}
	if opts.Method == BFGS {
		problem.Grad = func(grad, z []float64) {
			fd.Gradient(grad, fn, z, &fd.Settings{Formula: fd.Central})
		}
		method = &optimize.BFGS{}
	}

	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Relative:   opts.Tolerance,
			Iterations: 100,
		},
		Recorder: &contextRecorder{ctx: ctx},
	}

	res, err := optimize.Minimize(problem, z0, settings, method)
	if err != nil && opts.Method == BFGS && ctx.Err() == nil {
		// Line searches fail on kinked objectives; fall back to the simplex method.
		nm := opts
		nm.Method = NelderMead
		from := z0
		if res != nil && !math.IsInf(res.F, 1) {
			from = res.X
		}
		loc, n, msg, nmErr := s.minimize(ctx, from, nm)
		if res != nil {
			n += res.Stats.FuncEvaluations
		}
		return loc, n, msg, nmErr
	}
	if res == nil {
		return nil, 0, "", err
	}
	return &res.Location, res.Stats.FuncEvaluations, res.Status.String(), err
}

// contextRecorder stops an optimization when its context is done.
type contextRecorder struct {
	ctx context.Context
}

func (r *contextRecorder) Init() error {
	return r.ctx.Err()
}

func (r *contextRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}
