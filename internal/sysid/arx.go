// Package sysid identifies discrete ARX models from input/output records.
package sysid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotEnoughSamples = errors.New("sysid: not enough samples for the model order")
	ErrSingular         = errors.New("sysid: regression is singular")
	ErrDimensions       = errors.New("sysid: inconsistent data dimensions")
)

// maxCondition is the largest regression condition number accepted.
const maxCondition = 1e12

// Prediction selects how Identify reports the fitted outputs.
type Prediction int

const (
	// PredMeas predicts one step ahead from measured past outputs.
	PredMeas Prediction = iota
	// PredModel simulates the model from the first samples only.
	PredModel
)

func (p Prediction) String() string {
	if p == PredModel {
		return "model"
	}
	return "meas"
}

// ParsePrediction accepts "meas" or "model".
func ParsePrediction(s string) (Prediction, error) {
	switch s {
	case "meas", "":
		return PredMeas, nil
	case "model":
		return PredModel, nil
	default:
		return 0, fmt.Errorf("sysid: unknown prediction %q", s)
	}
}

// ARX holds, per output i,
//
//	y_i[k] = sum_j A[i][j] y_i[k-1-j] + sum_m sum_j B[i][m][j] u_m[k-1-j] + C[i]
type ARX struct {
	NA, NB int
	A      [][]float64
	B      [][][]float64
	C      []float64
}

func (m *ARX) Outputs() int { return len(m.A) }

func (m *ARX) Inputs() int {
	if len(m.B) == 0 {
		return 0
	}
	return len(m.B[0])
}

// Gain returns the steady state gain from input m to output i.
func (m *ARX) Gain() [][]float64 {
	g := make([][]float64, m.Outputs())
	for i := range g {
		den := 1 - floats.Sum(m.A[i])
		g[i] = make([]float64, m.Inputs())
		for j := range g[i] {
			g[i][j] = floats.Sum(m.B[i][j]) / den
		}
	}
	return g
}

// SteadyState returns the outputs reached when u is held forever.
func (m *ARX) SteadyState(u []float64) ([]float64, error) {
	if len(u) != m.Inputs() {
		return nil, fmt.Errorf("%w: %d inputs, model has %d", ErrDimensions, len(u), m.Inputs())
	}
	y := make([]float64, m.Outputs())
	for i := range y {
		num := m.C[i]
		for j, uj := range u {
			num += floats.Sum(m.B[i][j]) * uj
		}
		y[i] = num / (1 - floats.Sum(m.A[i]))
	}
	return y, nil
}

// Simulate runs the model over the input sequence. The rows of y0 are taken
// as the first outputs; lags reaching before the first sample reuse it.
func (m *ARX) Simulate(u [][]float64, y0 [][]float64) ([][]float64, error) {
	if len(y0) == 0 {
		return nil, fmt.Errorf("%w: no initial outputs", ErrDimensions)
	}
	for _, row := range u {
		if len(row) != m.Inputs() {
			return nil, fmt.Errorf("%w: input row has %d values, model has %d", ErrDimensions, len(row), m.Inputs())
		}
	}
	y := make([][]float64, len(u))
	for k := range y {
		if k < len(y0) {
			if len(y0[k]) != m.Outputs() {
				return nil, fmt.Errorf("%w: initial row has %d values, model has %d", ErrDimensions, len(y0[k]), m.Outputs())
			}
			y[k] = append([]float64(nil), y0[k]...)
			continue
		}
		y[k] = m.step(y, u, k)
	}
	return y, nil
}

func (m *ARX) step(y, u [][]float64, k int) []float64 {
	out := make([]float64, m.Outputs())
	for i := range out {
		v := m.C[i]
		for j := 0; j < m.NA; j++ {
			v += m.A[i][j] * y[lag(k, j)][i]
		}
		for n := 0; n < m.Inputs(); n++ {
			for j := 0; j < m.NB; j++ {
				v += m.B[i][n][j] * u[lag(k, j)][n]
			}
		}
		out[i] = v
	}
	return out
}

// lag returns the index of sample k-1-j, clamped to the first sample.
func lag(k, j int) int {
	if i := k - 1 - j; i > 0 {
		return i
	}
	return 0
}

type Result struct {
	Model     *ARX
	Predicted [][]float64
	Gain      [][]float64
}

// Identify fits an ARX model with na output lags and nb input lags to
// sample-major records u[k][m] and y[k][i] by least squares.
func Identify(u, y [][]float64, na, nb int, pred Prediction) (*Result, error) {
	if len(u) != len(y) || len(y) == 0 {
		return nil, fmt.Errorf("%w: %d input rows, %d output rows", ErrDimensions, len(u), len(y))
	}
	if na < 0 || nb < 1 {
		return nil, fmt.Errorf("sysid: invalid order na=%d nb=%d", na, nb)
	}
	nu, ny := len(u[0]), len(y[0])
	for k := range y {
		if len(u[k]) != nu || len(y[k]) != ny {
			return nil, fmt.Errorf("%w: row %d", ErrDimensions, k)
		}
		if !finite(u[k]) || !finite(y[k]) {
			return nil, fmt.Errorf("%w: row %d is not finite", ErrDimensions, k)
		}
	}

	n0 := max(na, nb)
	rows := len(y) - n0
	cols := na + nu*nb + 1
	if rows < cols {
		return nil, fmt.Errorf("%w: %d usable rows for %d coefficients", ErrNotEnoughSamples, rows, cols)
	}

	model := &ARX{
		NA: na,
		NB: nb,
		A:  make([][]float64, ny),
		B:  make([][][]float64, ny),
		C:  make([]float64, ny),
	}

	for i := 0; i < ny; i++ {
		x := mat.NewDense(rows, cols, nil)
		b := mat.NewVecDense(rows, nil)
		for r := 0; r < rows; r++ {
			k := n0 + r
			c := 0
			for j := 0; j < na; j++ {
				x.Set(r, c, y[k-1-j][i])
				c++
			}
			for m := 0; m < nu; m++ {
				for j := 0; j < nb; j++ {
					x.Set(r, c, u[k-1-j][m])
					c++
				}
			}
			x.Set(r, c, 1)
			b.SetVec(r, y[k][i])
		}

		if c := mat.Cond(x, 2); math.IsInf(c, 1) || math.IsNaN(c) || c > maxCondition {
			return nil, fmt.Errorf("%w: output %d has condition number %g", ErrSingular, i, c)
		}

		var qr mat.QR
		qr.Factorize(x)
		var beta mat.VecDense
		if err := qr.SolveVecTo(&beta, false, b); err != nil {
			var cond mat.Condition
			if errors.As(err, &cond) {
				return nil, fmt.Errorf("%w: output %d (%v)", ErrSingular, i, err)
			}
			return nil, err
		}

		c := 0
		model.A[i] = make([]float64, na)
		for j := 0; j < na; j++ {
			model.A[i][j] = beta.AtVec(c)
			c++
		}
		model.B[i] = make([][]float64, nu)
		for m := 0; m < nu; m++ {
			model.B[i][m] = make([]float64, nb)
			for j := 0; j < nb; j++ {
				model.B[i][m][j] = beta.AtVec(c)
				c++
			}
		}
		model.C[i] = beta.AtVec(c)
	}

	res := &Result{Model: model, Gain: model.Gain()}
	switch pred {
	case PredModel:
		p, err := model.Simulate(u, y[:n0])
		if err != nil {
			return nil, err
		}
		res.Predicted = p
	default:
		res.Predicted = make([][]float64, len(y))
		for k := range y {
			if k < n0 {
				res.Predicted[k] = append([]float64(nil), y[k]...)
				continue
			}
			res.Predicted[k] = model.step(y, u, k)
		}
	}
	return res, nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
