// Package metrics scores closed-loop runs: setpoint tracking, control
// effort, parameter movement and estimator agreement.
package metrics

// Sample is what a metric sees each cycle.
type Sample struct {
	Time   float64
	U      float64
	Y      float64
	YMeas  float64
	YEst   float64
	SP     float64
	Hi     float64
	Lo     float64
	Params []float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Defaults returns the metrics recorded for every closed-loop run.
func Defaults(dt float64) []Metric {
	return []Metric{
		NewTrackingError(dt),
		NewControlEffort(),
		NewParameterVariation(),
		NewEstimationError(),
		NewInBand(),
	}
}

// Values collects the current value of each metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
