// Package optim searches tuning values by exhaustive grid evaluation.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrNoTrials = errors.New("optim: no successful trial")

// Objective scores one combination of tuning values. Lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type Result struct {
	Best   map[string]float64
	Score  float64
	Trials []Trial
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	limit      int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d names for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, limit: runtime.GOMAXPROCS(0)}, nil
}

// SetLimit bounds the number of concurrent evaluations.
func (g *GridSearch) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	g.limit = n
}

// Size is the number of combinations.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every combination. Failed trials are recorded and skipped;
// the search fails only when none succeeds or ctx ends.
func (g *GridSearch) Search(ctx context.Context, score Objective) (*Result, error) {
	var combos []map[string]float64
	g.enumerate(0, make(map[string]float64), &combos)

	trials := make([]Trial, len(combos))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limit)
	for i, params := range combos {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := score(gctx, params)
			if err == nil && math.IsNaN(s) {
				err = fmt.Errorf("optim: NaN score")
			}
			trials[i] = Trial{Params: params, Score: s, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Score: math.Inf(1), Trials: trials}
	var errs error
	for _, t := range trials {
		if t.Err != nil {
			errs = multierr.Append(errs, t.Err)
			continue
		}
		if t.Score < res.Score {
			res.Score = t.Score
			res.Best = t.Params
		}
	}
	if res.Best == nil {
		return nil, multierr.Append(ErrNoTrials, errs)
	}
	return res, nil
}

// Ranked returns the successful trials ordered by score.
func (r *Result) Ranked() []Trial {
	var out []Trial
	for _, t := range r.Trials {
		if t.Err == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		params := make(map[string]float64, len(current))
		for k, v := range current {
			params[k] = v
		}
		*out = append(*out, params)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		g.enumerate(depth+1, current, out)
	}
	delete(current, paramName)
}

// Linspace returns n evenly spaced values from lo to hi.
func Linspace(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
