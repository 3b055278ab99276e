package dispatch

import (
	"fmt"
	"math"
)

type LoadFollowingConfig struct {
	Points    int     `yaml:"points"`
	Horizon   float64 `yaml:"horizon"`
	RampLimit float64 `yaml:"ramp_limit"`
	// Under and Over weigh production below and above demand.
	Under float64 `yaml:"under"`
	Over  float64 `yaml:"over"`
}

func DefaultLoadFollowing() LoadFollowingConfig {
	return LoadFollowingConfig{Points: 101, Horizon: 1, RampLimit: 1, Under: 1000, Over: 1}
}

// LoadFollowing ramps one generator to follow d = cos(2 pi t) + 3. The
// generator starts matched to demand and is discretized with backward Euler.
func LoadFollowing(cfg LoadFollowingConfig) (*Plan, error) {
	if cfg.Points < 2 {
		return nil, fmt.Errorf("dispatch: need at least 2 points, got %d", cfg.Points)
	}
	t, dt := grid(cfg.Points, cfg.Horizon)
	d := make([]float64, len(t))
	for k, tk := range t {
		d[k] = math.Cos(2*math.Pi*tk) + 3
	}

	p := NewLP()
	n := len(t) - 1
	g, r, under, over := make([]Var, n), make([]Var, n), make([]Var, n), make([]Var, n)
	for i := 0; i < n; i++ {
		k := i + 1
		g[i] = p.Free(fmt.Sprintf("g[%d]", k), 0)
		r[i] = p.Var(fmt.Sprintf("r[%d]", k), -cfg.RampLimit, cfg.RampLimit, 0)
		under[i] = p.Var(fmt.Sprintf("under[%d]", k), 0, math.Inf(1), cfg.Under)
		over[i] = p.Var(fmt.Sprintf("over[%d]", k), 0, math.Inf(1), cfg.Over)

		if i == 0 {
			p.Constrain("ramp[1]", EQ, d[0], T(g[0], 1), T(r[0], -dt))
		} else {
			p.Constrain(fmt.Sprintf("ramp[%d]", k), EQ, 0, T(g[i], 1), T(g[i-1], -1), T(r[i], -dt))
		}
		// d - g = under - over
		p.Constrain(fmt.Sprintf("balance[%d]", k), EQ, d[k], T(g[i], 1), T(under[i], 1), T(over[i], -1))
	}

	sol, err := p.Solve()
	if err != nil {
		return nil, err
	}
	plan := newPlan("time", t)
	plan.add("demand", d)
	plan.add("generation", prepend(d[0], sol.Values(g)))
	plan.add("ramp", prepend(0, sol.Values(r)))
	plan.add("under", prepend(0, sol.Values(under)))
	plan.add("over", prepend(0, sol.Values(over)))
	plan.Objective = sol.Objective
	plan.Scalars["under_total"] = sum(sol.Values(under))
	plan.Scalars["over_total"] = sum(sol.Values(over))
	return plan, nil
}

type ConstProductionConfig struct {
	Points     int     `yaml:"points"`
	Horizon    float64 `yaml:"horizon"`
	Efficiency float64 `yaml:"efficiency"`
}

func DefaultConstProduction() ConstProductionConfig {
	return ConstProductionConfig{Points: 101, Horizon: 1, Efficiency: 0.7}
}

// ConstProduction finds the lowest constant generation that, with a storage
// of round trip losses, meets d = 10 - 2 sin(2 pi t). Storage is periodic
// over the horizon. Delivering q from storage draws q/eta.
func ConstProduction(cfg ConstProductionConfig) (*Plan, error) {
	if cfg.Points < 2 {
		return nil, fmt.Errorf("dispatch: need at least 2 points, got %d", cfg.Points)
	}
	if cfg.Efficiency <= 0 || cfg.Efficiency > 1 {
		return nil, fmt.Errorf("dispatch: efficiency must be in (0, 1], got %f", cfg.Efficiency)
	}
	t, dt := grid(cfg.Points, cfg.Horizon)
	d := make([]float64, len(t))
	for k, tk := range t {
		d[k] = 10 - 2*math.Sin(2*math.Pi*tk)
	}

	p := NewLP()
	g := p.Free("g", 1)
	s := make([]Var, len(t))
	for k := range s {
		s[k] = p.Var(fmt.Sprintf("s[%d]", k), 0, math.Inf(1), 0)
	}
	n := len(t) - 1
	store, draw := make([]Var, n), make([]Var, n)
	for i := 0; i < n; i++ {
		k := i + 1
		store[i] = p.Var(fmt.Sprintf("store[%d]", k), 0, math.Inf(1), 0)
		draw[i] = p.Var(fmt.Sprintf("draw[%d]", k), 0, math.Inf(1), 0)
		p.Constrain(fmt.Sprintf("balance[%d]", k), EQ, d[k], T(g, 1), T(draw[i], 1), T(store[i], -1))
		p.Constrain(fmt.Sprintf("storage[%d]", k), EQ, 0,
			T(s[k], 1), T(s[k-1], -1), T(store[i], -dt), T(draw[i], dt/cfg.Efficiency))
	}
	p.Constrain("periodic", EQ, 0, T(s[0], 1), T(s[n], -1))

	sol, err := p.Solve()
	if err != nil {
		return nil, err
	}
	gen := make([]float64, len(t))
	for k := range gen {
		gen[k] = sol.Value(g)
	}
	plan := newPlan("time", t)
	plan.add("demand", d)
	plan.add("generation", gen)
	plan.add("storage", sol.Values(s))
	plan.add("store", prepend(0, sol.Values(store)))
	plan.add("recover", prepend(0, sol.Values(draw)))
	plan.Objective = sol.Objective
	plan.Scalars["generation"] = sol.Value(g)
	return plan, nil
}

type LoadFollowingStorageConfig struct {
	Points     int     `yaml:"points"`
	Horizon    float64 `yaml:"horizon"`
	RampLimit  float64 `yaml:"ramp_limit"`
	Efficiency float64 `yaml:"efficiency"`
	Under      float64 `yaml:"under"`
	Over       float64 `yaml:"over"`
}

func DefaultLoadFollowingStorage() LoadFollowingStorageConfig {
	return LoadFollowingStorageConfig{Points: 101, Horizon: 1, RampLimit: 4, Efficiency: 0.85, Under: 1000, Over: 1}
}

// Renewable is the daytime source 3 cos(4 pi t) + 3, switched off in the
// first and last quarter of the grid.
func Renewable(t []float64) []float64 {
	out := make([]float64, len(t))
	quarter := len(t) / 4
	for k, tk := range t {
		if k < quarter || k >= len(t)-quarter {
			continue
		}
		out[k] = 3*math.Cos(math.Pi*tk/6*24) + 3
	}
	return out
}

// LoadFollowingStorage combines a ramp limited generator, a renewable
// source and a periodic storage to meet d = 7 - 2 sin(2 pi t) while
// minimizing generation and the weighted production mismatch.
func LoadFollowingStorage(cfg LoadFollowingStorageConfig) (*Plan, error) {
	if cfg.Points < 2 {
		return nil, fmt.Errorf("dispatch: need at least 2 points, got %d", cfg.Points)
	}
	if cfg.Efficiency <= 0 || cfg.Efficiency > 1 {
		return nil, fmt.Errorf("dispatch: efficiency must be in (0, 1], got %f", cfg.Efficiency)
	}
	t, dt := grid(cfg.Points, cfg.Horizon)
	d := make([]float64, len(t))
	for k, tk := range t {
		d[k] = 7 - 2*math.Sin(2*math.Pi*tk)
	}
	ren := Renewable(t)

	p := NewLP()
	s := make([]Var, len(t))
	for k := range s {
		s[k] = p.Var(fmt.Sprintf("s[%d]", k), 0, math.Inf(1), 0)
	}
	n := len(t) - 1
	g, dg := make([]Var, n), make([]Var, n)
	store, draw := make([]Var, n), make([]Var, n)
	under, over := make([]Var, n), make([]Var, n)
	for i := 0; i < n; i++ {
		k := i + 1
		g[i] = p.Var(fmt.Sprintf("g[%d]", k), 0, math.Inf(1), 1)
		dg[i] = p.Var(fmt.Sprintf("dg[%d]", k), -cfg.RampLimit, cfg.RampLimit, 0)
		store[i] = p.Var(fmt.Sprintf("store[%d]", k), 0, math.Inf(1), 0)
		draw[i] = p.Var(fmt.Sprintf("draw[%d]", k), 0, math.Inf(1), 0)
		under[i] = p.Var(fmt.Sprintf("under[%d]", k), 0, math.Inf(1), cfg.Under)
		over[i] = p.Var(fmt.Sprintf("over[%d]", k), 0, math.Inf(1), cfg.Over)

		if i == 0 {
			p.Constrain("ramp[1]", EQ, d[0], T(g[0], 1), T(dg[0], -dt))
		} else {
			p.Constrain(fmt.Sprintf("ramp[%d]", k), EQ, 0, T(g[i], 1), T(g[i-1], -1), T(dg[i], -dt))
		}
		// g + r + draw - store - d = over - under
		p.Constrain(fmt.Sprintf("balance[%d]", k), EQ, d[k]-ren[k],
			T(g[i], 1), T(draw[i], 1), T(store[i], -1), T(over[i], -1), T(under[i], 1))
		p.Constrain(fmt.Sprintf("storage[%d]", k), EQ, 0,
			T(s[k], 1), T(s[k-1], -1), T(store[i], -dt), T(draw[i], dt/cfg.Efficiency))
	}
	p.Constrain("periodic", EQ, 0, T(s[0], 1), T(s[n], -1))

	sol, err := p.Solve()
	if err != nil {
		return nil, err
	}
	plan := newPlan("time", t)
	plan.add("demand", d)
	plan.add("renewable", ren)
	plan.add("generation", prepend(d[0], sol.Values(g)))
	plan.add("ramp", prepend(0, sol.Values(dg)))
	plan.add("storage", sol.Values(s))
	plan.add("store", prepend(0, sol.Values(store)))
	plan.add("recover", prepend(0, sol.Values(draw)))
	plan.add("under", prepend(0, sol.Values(under)))
	plan.add("over", prepend(0, sol.Values(over)))
	plan.Objective = sol.Objective
	plan.Scalars["under_total"] = sum(sol.Values(under))
	plan.Scalars["over_total"] = sum(sol.Values(over))
	plan.Scalars["generation_total"] = sum(sol.Values(g))
	return plan, nil
}
