package loop

import (
	"context"
	"math"

	"github.com/san-kum/dynopt/internal/mpc"
)

// Controller picks the input for the next cycle from the output it is given,
// the latest model parameters and the setpoint.
type Controller interface {
	Move(ctx context.Context, y float64, params []float64, sp mpc.Setpoint) (float64, error)
}

// MPC adapts mpc.Controller.
type MPC struct {
	*mpc.Controller
}

func (m MPC) Move(ctx context.Context, y float64, params []float64, sp mpc.Setpoint) (float64, error) {
	move, err := m.Update(ctx, y, params, sp)
	if err != nil {
		return m.Last(), err
	}
	return move.U, nil
}

// PID is a discrete PID on the setpoint centre with output clamping and
// conditional integration against windup.
type PID struct {
	Kp, Ki, Kd   float64
	Dt           float64
	Lower, Upper float64
	integral     float64
	prevErr      float64
	first        bool
}

func NewPID(kp, ki, kd, dt, lower, upper float64) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		Dt:    dt,
		Lower: lower,
		Upper: upper,
		first: true,
	}
}

func (p *PID) Move(ctx context.Context, y float64, params []float64, sp mpc.Setpoint) (float64, error) {
	err := sp.SP - y
	derivative := 0.0
	if !p.first {
		derivative = (err - p.prevErr) / p.Dt
	}
	p.prevErr = err
	p.first = false

	u := p.Kp*err + p.Ki*(p.integral+err*p.Dt) + p.Kd*derivative
	clamped := math.Min(math.Max(u, p.Lower), p.Upper)
	if clamped == u {
		p.integral += err * p.Dt
	}
	return clamped, nil
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Ki": p.Ki,
		"Kd": p.Kd,
	}
}

func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	}
}
