package models

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// ExpDecay is dx_i/dt = -K x_i for Channels independent states sharing one
// decay constant.
type ExpDecay struct {
	K        float64
	Channels int
}

func NewExpDecay(k float64, channels int) *ExpDecay {
	if channels < 1 {
		channels = 1
	}
	return &ExpDecay{K: k, Channels: channels}
}

func (e *ExpDecay) StateDim() int   { return e.Channels }
func (e *ExpDecay) ControlDim() int { return 0 }

func (e *ExpDecay) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, len(x))
	for i, v := range x {
		dx[i] = -e.K * v
	}
	return dx
}

func (e *ExpDecay) GetParams() map[string]float64 {
	return map[string]float64{"k": e.K}
}

func (e *ExpDecay) SetParam(name string, value float64) error {
	switch name {
	case "k":
		e.K = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
