package metrics

import "math"

// ParameterVariation sums the absolute parameter changes between cycles. A
// jumpy estimator scores high even when it tracks the measurements well.
type ParameterVariation struct {
	name string
	sum  float64
	prev []float64
}

func NewParameterVariation() *ParameterVariation {
	return &ParameterVariation{name: "parameter_variation"}
}

func (p *ParameterVariation) Name() string { return p.name }

func (p *ParameterVariation) Observe(s Sample) {
	if p.prev != nil && len(p.prev) == len(s.Params) {
		for i, v := range s.Params {
			p.sum += math.Abs(v - p.prev[i])
		}
	}
	p.prev = append(p.prev[:0], s.Params...)
}

func (p *ParameterVariation) Value() float64 { return p.sum }

func (p *ParameterVariation) Reset() {
	p.sum = 0
	p.prev = nil
}

// EstimationError is the RMS difference between estimated and measured
// outputs. Cycles without an estimate are skipped.
type EstimationError struct {
	name    string
	sumSq   float64
	samples int
}

func NewEstimationError() *EstimationError {
	return &EstimationError{name: "estimation_error"}
}

func (e *EstimationError) Name() string { return e.name }

func (e *EstimationError) Observe(s Sample) {
	if math.IsNaN(s.YEst) || math.IsNaN(s.YMeas) {
		return
	}
	d := s.YEst - s.YMeas
	e.sumSq += d * d
	e.samples++
}

func (e *EstimationError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return math.Sqrt(e.sumSq / float64(e.samples))
}

func (e *EstimationError) Reset() {
	e.sumSq = 0
	e.samples = 0
}
