// Package exercise holds the runnable exercises: each one gathers its data,
// builds a model, solves it and reports aligned series, scalar results and
// figures.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/dynopt/internal/config"
	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/export"
	"github.com/san-kum/dynopt/internal/logging"
	"github.com/san-kum/dynopt/internal/loop"
)

var ErrUnknownExercise = errors.New("exercise: unknown exercise")

// Env is what an exercise runs with.
type Env struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	Loader *dataset.Loader
}

func (e Env) withDefaults(name string) Env {
	if e.Config == nil {
		e.Config = config.Default(name)
	}
	e.Log = logging.OrNop(e.Log).Named(name)
	if e.Loader == nil {
		e.Loader = dataset.NewLoader()
	}
	return e
}

type Exercise interface {
	Name() string
	Describe() string
	Run(ctx context.Context, env Env) (*Report, error)
}

// LoopExercise is an exercise built on the estimator and controller cycle.
// NewLoop returns the loop without running it, for step-by-step views.
type LoopExercise interface {
	Exercise
	NewLoop(env Env) (*loop.Loop, error)
}

// Report is the outcome of one run. Series holds the aligned result columns,
// the first being the time axis.
type Report struct {
	Exercise string
	Series   *dataset.Frame
	Scalars  map[string]float64
	Figures  []export.Figure
}

func newReport(name string) *Report {
	return &Report{Exercise: name, Scalars: make(map[string]float64)}
}

// table sets the report series from names and columns of equal length.
func (r *Report) table(header []string, cols ...[]float64) error {
	f, err := dataset.NewFrame(header, cols...)
	if err != nil {
		return fmt.Errorf("exercise: %s: %w", r.Exercise, err)
	}
	r.Series = f
	return nil
}

// ScalarNames returns the scalar keys in sorted order.
func (r *Report) ScalarNames() []string {
	names := make([]string, 0, len(r.Scalars))
	for k := range r.Scalars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type Registry struct {
	exercises map[string]Exercise
}

func NewRegistry() *Registry {
	r := &Registry{exercises: make(map[string]Exercise)}

	r.register(expDecay{})
	r.register(thirdOrder{})
	r.register(fopdtEstimation{})
	r.register(sisoARX{})
	r.register(mimoARX{})
	r.register(fopdtLoop{name: "mhe", about: "moving horizon estimation of K and tau on a simulated first order process"})
	r.register(fopdtLoop{name: "mhe_mpc", about: "closed loop MHE feeding an MPC on a first order process", control: true})
	r.register(cstrMHE{})
	r.register(badData{})
	r.register(appleStorage{})
	r.register(loadFollowing{})
	r.register(constProduction{})
	r.register(loadFollowingStorage{})
	r.register(batteryArbitrage{})

	return r
}

func (r *Registry) register(e Exercise) { r.exercises[e.Name()] = e }

func (r *Registry) Get(name string) (Exercise, error) {
	e, ok := r.exercises[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExercise, name)
	}
	return e, nil
}

// List returns the exercises sorted by name.
func (r *Registry) List() []Exercise {
	out := make([]Exercise, 0, len(r.exercises))
	for _, e := range r.exercises {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.exercises))
	for name := range r.exercises {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run looks up and runs an exercise, filling in a default config, logger
// and loader when env leaves them out.
func (r *Registry) Run(ctx context.Context, name string, env Env) (*Report, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	env = env.withDefaults(name)
	env.Log.Infow("running exercise", "exercise", name)
	return e.Run(ctx, env)
}

// NewLoop builds the loop of a closed-loop exercise.
func (r *Registry) NewLoop(name string, env Env) (*loop.Loop, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	le, ok := e.(LoopExercise)
	if !ok {
		return nil, fmt.Errorf("exercise: %s has no closed loop", name)
	}
	return le.NewLoop(env.withDefaults(name))
}
