package sim

import "github.com/san-kum/dynopt/internal/dynamo"

// OpenLoop ignores the state and returns a time scheduled input.
type OpenLoop func(t float64) dynamo.Control

func (f OpenLoop) Compute(x dynamo.State, t float64) dynamo.Control {
	return f(t)
}

// Constant holds u for the whole run.
func Constant(u dynamo.Control) OpenLoop {
	return func(float64) dynamo.Control { return u }
}

// Steps returns a piecewise constant input that switches to values[i] at
// times[i]. Before the first switch time the first value is used.
func Steps(times []float64, values []dynamo.Control) OpenLoop {
	return func(t float64) dynamo.Control {
		current := values[0]
		for i, ts := range times {
			if t+1e-9 >= ts {
				current = values[i]
			}
		}
		return current
	}
}
