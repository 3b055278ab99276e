package loop

import (
	"math/rand"

	"github.com/san-kum/dynopt/internal/dynamo"
	"github.com/san-kum/dynopt/internal/integrators"
)

// Process is the simulated plant. Each Step advances one cycle with the
// input held and returns the true and the measured output.
type Process struct {
	sys     dynamo.System
	observe func(x dynamo.State) float64
	x       dynamo.State
	dt      float64
	maxStep float64
	noise   float64
	integ   dynamo.Integrator
	rng     *rand.Rand
}

// NewProcess adds uniform measurement noise (rand-0.5)*noise from a source
// seeded with seed.
func NewProcess(sys dynamo.System, observe func(x dynamo.State) float64, x0 dynamo.State, dt, noise float64, seed int64) *Process {
	return &Process{
		sys:     sys,
		observe: observe,
		x:       x0.Clone(),
		dt:      dt,
		maxStep: dt / 10,
		noise:   noise,
		integ:   integrators.NewRK4(),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (p *Process) Step(u dynamo.Control) (actual, measured float64) {
	p.x = integrators.Propagate(p.integ, p.sys, p.x, u, 0, p.dt, p.maxStep)
	actual = p.observe(p.x)
	return actual, actual + (p.rng.Float64()-0.5)*p.noise
}

// Output returns the noise-free output at the current state.
func (p *Process) Output() float64 { return p.observe(p.x) }

func (p *Process) State() dynamo.State { return p.x.Clone() }

// Step is a change of a scheduled value at a cycle.
type Step struct {
	Cycle int     `yaml:"cycle"`
	Value float64 `yaml:"value"`
}

// Schedule is a piecewise constant signal over cycles, sorted by cycle.
type Schedule []Step

// At returns the value of the last step at or before cycle, or zero.
func (s Schedule) At(cycle int) float64 {
	v := 0.0
	for _, st := range s {
		if st.Cycle > cycle {
			break
		}
		v = st.Value
	}
	return v
}
