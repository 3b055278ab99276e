package metrics

import "math"

// TrackingError integrates the distance of the true output from the
// setpoint band (IAE outside [Lo, Hi]).
type TrackingError struct {
	name string
	dt   float64
	sum  float64
}

func NewTrackingError(dt float64) *TrackingError {
	return &TrackingError{name: "tracking_error", dt: dt}
}

func (m *TrackingError) Name() string { return m.name }

func (m *TrackingError) Observe(s Sample) {
	switch {
	case s.Y > s.Hi:
		m.sum += (s.Y - s.Hi) * m.dt
	case s.Y < s.Lo:
		m.sum += (s.Lo - s.Y) * m.dt
	}
}

func (m *TrackingError) Value() float64 { return m.sum }

func (m *TrackingError) Reset() { m.sum = 0 }

// InBand is the fraction of cycles with the true output inside the
// setpoint band.
type InBand struct {
	name    string
	inside  int
	samples int
}

func NewInBand() *InBand {
	return &InBand{name: "in_band"}
}

func (b *InBand) Name() string {
	return b.name
}

func (b *InBand) Observe(s Sample) {
	b.samples++
	if s.Y >= s.Lo && s.Y <= s.Hi {
		b.inside++
	}
}

func (b *InBand) Value() float64 {
	if b.samples == 0 {
		return math.NaN()
	}
	return float64(b.inside) / float64(b.samples)
}

func (b *InBand) Reset() {
	b.inside = 0
	b.samples = 0
}
