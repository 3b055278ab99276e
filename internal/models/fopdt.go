package models

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// FOPDT is the first order model tau dy/dt = -y + K u. The output is the
// state, so changing K or tau never moves the current output.
type FOPDT struct {
	K   float64
	Tau float64
}

func NewFOPDT(k, tau float64) *FOPDT {
	return &FOPDT{K: k, Tau: tau}
}

func (f *FOPDT) StateDim() int   { return 1 }
func (f *FOPDT) ControlDim() int { return 1 }

func (f *FOPDT) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{(-x[0] + f.K*u[0]) / f.Tau}
}

func (f *FOPDT) Output(x dynamo.State) float64 {
	return x[0]
}

// StateFor returns the state that produces output y.
func (f *FOPDT) StateFor(y float64) dynamo.State {
	return dynamo.State{y}
}

func (f *FOPDT) GetParams() map[string]float64 {
	return map[string]float64{"K": f.K, "tau": f.Tau}
}

func (f *FOPDT) SetParam(name string, value float64) error {
	switch name {
	case "K":
		f.K = value
	case "tau":
		if value <= 0 {
			return fmt.Errorf("%w: tau must be positive, got %f", dynamo.ErrParameterBounds, value)
		}
		f.Tau = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
