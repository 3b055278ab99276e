package models

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// Flow is a valve and line model, tau dF/dt = -F + Cv u + d. The control
// vector is [u], the disturbance d is a model parameter.
type Flow struct {
	Tau float64
	Cv  float64
	D   float64
}

func NewFlow() *Flow {
	return &Flow{Tau: 0.1, Cv: 1}
}

func (f *Flow) StateDim() int   { return 1 }
func (f *Flow) ControlDim() int { return 1 }

func (f *Flow) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{(-x[0] + f.Cv*u[0] + f.D) / f.Tau}
}

func (f *Flow) GetParams() map[string]float64 {
	return map[string]float64{"tau": f.Tau, "Cv": f.Cv, "d": f.D}
}

func (f *Flow) SetParam(name string, value float64) error {
	switch name {
	case "tau":
		if value <= 0 {
			return fmt.Errorf("%w: tau must be positive, got %f", dynamo.ErrParameterBounds, value)
		}
		f.Tau = value
	case "Cv":
		f.Cv = value
	case "d":
		f.D = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
