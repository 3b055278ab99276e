package models

import (
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// CSTR is a continuously stirred tank with an exothermic first order
// reaction A -> B and a cooling jacket. States are [Ca, T], the control is
// the jacket temperature [Tc].
type CSTR struct {
	Q     float64 // volumetric flowrate (m^3/sec)
	V     float64 // reactor volume (m^3)
	Rho   float64 // density (kg/m^3)
	Cp    float64 // heat capacity (J/kg-K)
	MdelH float64 // heat of reaction, positive when exothermic (J/mol)
	ER    float64 // activation energy over gas constant (K)
	K0    float64 // pre-exponential factor (1/sec)
	UA    float64 // overall heat transfer coefficient times area (W/K)
	Ca0   float64 // feed concentration (mol/m^3)
	T0    float64 // feed temperature (K)
}

func NewCSTR() *CSTR {
	return &CSTR{
		Q:     100,
		V:     100,
		Rho:   1000,
		Cp:    0.239,
		MdelH: 5e4,
		ER:    8750,
		K0:    7.2e10,
		UA:    5e4,
		Ca0:   1,
		T0:    350,
	}
}

func (c *CSTR) StateDim() int   { return 2 }
func (c *CSTR) ControlDim() int { return 1 }

func (c *CSTR) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	ca, temp := x[0], x[1]
	tc := u[0]

	rate := c.K0 * math.Exp(-c.ER/temp) * ca

	dCa := c.Q/c.V*(c.Ca0-ca) - rate
	dT := c.Q/c.V*(c.T0-temp) +
		c.MdelH/(c.Rho*c.Cp)*rate +
		c.UA/(c.V*c.Rho*c.Cp)*(tc-temp)

	return dynamo.State{dCa, dT}
}

func (c *CSTR) GetParams() map[string]float64 {
	return map[string]float64{
		"q": c.Q, "V": c.V, "rho": c.Rho, "Cp": c.Cp, "mdelH": c.MdelH,
		"ER": c.ER, "k0": c.K0, "UA": c.UA, "Ca0": c.Ca0, "T0": c.T0,
	}
}

func (c *CSTR) SetParam(name string, value float64) error {
	switch name {
	case "q":
		c.Q = value
	case "V":
		c.V = value
	case "rho":
		c.Rho = value
	case "Cp":
		c.Cp = value
	case "mdelH":
		c.MdelH = value
	case "ER":
		c.ER = value
	case "k0":
		c.K0 = value
	case "UA":
		if value < 0 {
			return fmt.Errorf("%w: UA must be non-negative, got %f", dynamo.ErrParameterBounds, value)
		}
		c.UA = value
	case "Ca0":
		c.Ca0 = value
	case "T0":
		c.T0 = value
	default:
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownParameter, name)
	}
	return nil
}
