// Package baddata generates corrupted flow measurements and compares how
// estimators cope with them.
package baddata

import "math/rand"

// Corruption alters a measurement series in place.
type Corruption interface {
	Apply(z []float64, rng *rand.Rand)
}

// Noise adds uniform noise in [-Amplitude, Amplitude] to every sample.
type Noise struct {
	Amplitude float64 `yaml:"amplitude"`
}

func (n Noise) Apply(z []float64, rng *rand.Rand) {
	for i := range z {
		z[i] += (rng.Float64() - 0.5) * 2 * n.Amplitude
	}
}

// Outliers replaces samples at the given cycles.
type Outliers map[int]float64

func (o Outliers) Apply(z []float64, _ *rand.Rand) {
	for i, v := range o {
		if i >= 0 && i < len(z) {
			z[i] = v
		}
	}
}

// Drift ramps the measurement away from the true value by Rate per cycle
// from Start.
type Drift struct {
	Start int     `yaml:"start"`
	Rate  float64 `yaml:"rate"`
}

func (d Drift) Apply(z []float64, _ *rand.Rand) {
	for i := d.Start; i < len(z); i++ {
		if i >= 0 {
			z[i] += d.Rate * float64(i-d.Start)
		}
	}
}

// NoiseIncrease adds extra uniform noise from Start.
type NoiseIncrease struct {
	Start     int     `yaml:"start"`
	Amplitude float64 `yaml:"amplitude"`
}

func (n NoiseIncrease) Apply(z []float64, rng *rand.Rand) {
	for i := range z {
		// draw for every sample so the stream does not depend on Start
		r := rng.Float64()
		if i >= n.Start {
			z[i] += (r - 0.5) * 2 * n.Amplitude
		}
	}
}

// Measurements returns n+1 samples of a constant true value with the
// corruptions applied in order.
func Measurements(n int, truth float64, seed int64, cs ...Corruption) []float64 {
	rng := rand.New(rand.NewSource(seed))
	z := make([]float64, n+1)
	for i := range z {
		z[i] = truth
	}
	for _, c := range cs {
		c.Apply(z, rng)
	}
	return z
}

// FilteredBias is the exponential filter xb[k] = Alpha z[k] + (1-Alpha) xb[k-1].
type FilteredBias struct {
	Alpha float64
	x     float64
}

func NewFilteredBias(alpha, x0 float64) *FilteredBias {
	return &FilteredBias{Alpha: alpha, x: x0}
}

func (f *FilteredBias) Update(z float64) float64 {
	f.x = f.Alpha*z + (1-f.Alpha)*f.x
	return f.x
}

func (f *FilteredBias) Value() float64 { return f.x }
