// Package dispatch formulates the energy and storage scheduling exercises
// as linear programs and solves them with the gonum simplex method.
package dispatch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	ErrInfeasible = errors.New("dispatch: problem is infeasible")
	ErrUnbounded  = errors.New("dispatch: problem is unbounded")
)

type Sense int

const (
	EQ Sense = iota
	LE
	GE
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "="
	}
}

// Var is a variable handle returned by LP.Var.
type Var int

type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for a Term.
func T(v Var, coef float64) Term { return Term{Var: v, Coef: coef} }

type row struct {
	name  string
	terms []Term
	sense Sense
	rhs   float64
}

// LP is a linear program over bounded variables: minimize c'x subject to
// rows of =, <= and >= constraints and lower <= x <= upper. Bounds may be
// infinite.
type LP struct {
	names []string
	lower []float64
	upper []float64
	cost  []float64
	rows  []row
}

func NewLP() *LP {
	return &LP{}
}

func (p *LP) Var(name string, lower, upper, cost float64) Var {
	p.names = append(p.names, name)
	p.lower = append(p.lower, lower)
	p.upper = append(p.upper, upper)
	p.cost = append(p.cost, cost)
	return Var(len(p.names) - 1)
}

// Free adds a variable without bounds.
func (p *LP) Free(name string, cost float64) Var {
	return p.Var(name, math.Inf(-1), math.Inf(1), cost)
}

func (p *LP) AddCost(v Var, c float64) {
	p.cost[v] += c
}

func (p *LP) Constrain(name string, sense Sense, rhs float64, terms ...Term) {
	p.rows = append(p.rows, row{name: name, terms: terms, sense: sense, rhs: rhs})
}

func (p *LP) NumVars() int { return len(p.names) }

func (p *LP) NumRows() int { return len(p.rows) }

type Solution struct {
	X         []float64
	Objective float64
}

func (s *Solution) Value(v Var) float64 { return s.X[v] }

// Values returns the solution for a slice of handles.
func (s *Solution) Values(vs []Var) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = s.X[v]
	}
	return out
}

// column maps an original variable to standard form:
// x = offset + sign*x'[col] (- x'[neg] for free variables).
type column struct {
	fixed  bool
	offset float64
	sign   float64
	col    int
	neg    int
}

const (
	simplexTol  = 1e-10
	feasibleTol = 1e-9
)

// Solve converts the program to standard form, min c'x s.t. Ax = b, x >= 0,
// and runs the simplex method.
func (p *LP) Solve() (*Solution, error) {
	for j := range p.names {
		if p.lower[j] > p.upper[j] {
			return nil, fmt.Errorf("%w: %s has bounds [%g, %g]", ErrInfeasible, p.names[j], p.lower[j], p.upper[j])
		}
	}

	used := make([]bool, len(p.names))
	for _, r := range p.rows {
		for _, t := range r.terms {
			if t.Coef != 0 {
				used[t.Var] = true
			}
		}
	}

	cols := make([]column, len(p.names))
	var c []float64
	addCol := func(cost float64) int {
		c = append(c, cost)
		return len(c) - 1
	}
	type boundRow struct {
		col, slack int
		rhs        float64
	}
	var bounds []boundRow

	for j := range p.names {
		lo, hi := p.lower[j], p.upper[j]
		loInf, hiInf := math.IsInf(lo, -1), math.IsInf(hi, 1)
		switch {
		case !used[j]:
			// variables outside every row sit at the cheaper finite bound
			v, err := p.unconstrained(j)
			if err != nil {
				return nil, err
			}
			cols[j] = column{fixed: true, offset: v}
		case !loInf && !hiInf && lo == hi:
			cols[j] = column{fixed: true, offset: lo}
		case !loInf:
			cols[j] = column{offset: lo, sign: 1, col: addCol(p.cost[j]), neg: -1}
			if !hiInf {
				bounds = append(bounds, boundRow{col: cols[j].col, slack: addCol(0), rhs: hi - lo})
			}
		case !hiInf:
			cols[j] = column{offset: hi, sign: -1, col: addCol(-p.cost[j]), neg: -1}
		default:
			cols[j] = column{sign: 1, col: addCol(p.cost[j]), neg: addCol(-p.cost[j])}
		}
	}

	type stdRow struct {
		coef map[int]float64
		rhs  float64
	}
	var rows []stdRow
	for _, r := range p.rows {
		coef := make(map[int]float64)
		rhs := r.rhs
		for _, t := range r.terms {
			cm := cols[t.Var]
			rhs -= t.Coef * cm.offset
			if cm.fixed {
				continue
			}
			coef[cm.col] += t.Coef * cm.sign
			if cm.neg >= 0 {
				coef[cm.neg] -= t.Coef
			}
		}
		switch r.sense {
		case LE:
			coef[addCol(0)] = 1
		case GE:
			coef[addCol(0)] = -1
		}
		empty := true
		for _, v := range coef {
			if v != 0 {
				empty = false
				break
			}
		}
		if empty {
			if math.Abs(rhs) > feasibleTol {
				return nil, fmt.Errorf("%w: row %s reduces to 0 %s %g", ErrInfeasible, r.name, r.sense, rhs)
			}
			continue
		}
		rows = append(rows, stdRow{coef: coef, rhs: rhs})
	}
	for _, b := range bounds {
		rows = append(rows, stdRow{coef: map[int]float64{b.col: 1, b.slack: 1}, rhs: b.rhs})
	}

	objective := 0.0
	for j, cm := range cols {
		objective += p.cost[j] * cm.offset
	}

	x := make([]float64, len(p.names))
	if len(rows) == 0 {
		for j, cm := range cols {
			x[j] = cm.offset
		}
		return &Solution{X: x, Objective: objective}, nil
	}

	if len(rows) > len(c) {
		return nil, fmt.Errorf("dispatch: %d rows exceed %d columns", len(rows), len(c))
	}
	A := mat.NewDense(len(rows), len(c), nil)
	b := make([]float64, len(rows))
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for col, v := range r.coef {
			A.Set(i, col, sign*v)
		}
		b[i] = sign * r.rhs
	}

	f, std, err := lp.Simplex(c, A, b, simplexTol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return nil, ErrUnbounded
	case errors.Is(err, lp.ErrSingular):
		return nil, fmt.Errorf("dispatch: redundant constraints: %w", err)
	case err != nil:
		return nil, fmt.Errorf("dispatch: simplex: %w", err)
	}

	for j, cm := range cols {
		v := cm.offset
		if !cm.fixed {
			v += cm.sign * std[cm.col]
			if cm.neg >= 0 {
				v -= std[cm.neg]
			}
		}
		x[j] = v
	}
	return &Solution{X: x, Objective: f + objective}, nil
}

func (p *LP) unconstrained(j int) (float64, error) {
	lo, hi, cost := p.lower[j], p.upper[j], p.cost[j]
	switch {
	case cost > 0 && !math.IsInf(lo, -1):
		return lo, nil
	case cost < 0 && !math.IsInf(hi, 1):
		return hi, nil
	case cost == 0:
		switch {
		case !math.IsInf(lo, -1):
			return lo, nil
		case !math.IsInf(hi, 1):
			return hi, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnbounded, p.names[j])
	}
}
