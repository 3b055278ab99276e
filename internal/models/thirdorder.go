package models

import (
	"fmt"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// ThirdOrder is x''' = A x'' + B x' + C x + D written with the states
// [x, y = x', z = x''].
type ThirdOrder struct {
	A, B, C, D float64
}

func NewThirdOrder(a, b, c, d float64) *ThirdOrder {
	return &ThirdOrder{A: a, B: b, C: c, D: d}
}

func (m *ThirdOrder) StateDim() int   { return 3 }
func (m *ThirdOrder) ControlDim() int { return 0 }

func (m *ThirdOrder) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{
		x[1],
		x[2],
		m.A*x[2] + m.B*x[1] + m.C*x[0] + m.D,
	}
}

func (m *ThirdOrder) GetParams() map[string]float64 {
	return map[string]float64{"a": m.A, "b": m.B, "c": m.C, "d": m.D}
}

func (m *ThirdOrder) SetParam(name string, value float64) error {
	switch name {
	case "a":
		m.A = value
	case "b":
		m.B = value
	case "c":
		m.C = value
	case "d":
		m.D = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
