package dataset

import "math/rand"

// HeaterLab configures the synthetic heater/temperature lab. Each heater
// drives its own sensor through two first order lags and leaks a fraction
// of its effect into the other sensor.
type HeaterLab struct {
	Samples  int     `yaml:"samples"`
	Dt       float64 `yaml:"dt"`
	Ambient  float64 `yaml:"ambient"`
	Gain     float64 `yaml:"gain"`
	Coupling float64 `yaml:"coupling"`
	Tau1     float64 `yaml:"tau1"`
	Tau2     float64 `yaml:"tau2"`
	Noise    float64 `yaml:"noise"`
	Hold     int     `yaml:"hold"`
	Seed     int64   `yaml:"seed"`
}

func DefaultHeaterLab() HeaterLab {
	return HeaterLab{
		Samples:  600,
		Dt:       1,
		Ambient:  23,
		Gain:     0.6,
		Coupling: 0.3,
		Tau1:     120,
		Tau2:     15,
		Noise:    0.05,
		Hold:     60,
		Seed:     1,
	}
}

// SyntheticSISO returns a frame with the columns of the single heater lab
// file: time, voltage (heater %) and temperature.
func SyntheticSISO(cfg HeaterLab) *Frame {
	times, heaters, temps := cfg.simulate(1)
	return &Frame{
		Header:  []string{"time", "voltage", "temperature"},
		Columns: [][]float64{times, heaters[0], temps[0]},
	}
}

// SyntheticMIMO returns a frame with the columns of the two heater lab file:
// Time, H1, H2, T1, T2.
func SyntheticMIMO(cfg HeaterLab) *Frame {
	times, heaters, temps := cfg.simulate(2)
	return &Frame{
		Header:  []string{"Time", "H1", "H2", "T1", "T2"},
		Columns: [][]float64{times, heaters[0], heaters[1], temps[0], temps[1]},
	}
}

func (cfg HeaterLab) simulate(n int) ([]float64, [][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	hold := cfg.Hold
	if hold < 1 {
		hold = 1
	}

	times := make([]float64, cfg.Samples)
	heaters := make([][]float64, n)
	temps := make([][]float64, n)
	for i := 0; i < n; i++ {
		heaters[i] = make([]float64, cfg.Samples)
		temps[i] = make([]float64, cfg.Samples)
	}

	a1 := 1 - cfg.Dt/cfg.Tau1
	a2 := 1 - cfg.Dt/cfg.Tau2
	lag1 := make([]float64, n)
	lag2 := make([]float64, n)
	levels := make([]float64, n)

	for k := 0; k < cfg.Samples; k++ {
		times[k] = float64(k) * cfg.Dt
		for i := 0; i < n; i++ {
			// heaters switch at staggered times so the inputs are not collinear
			if (k+i*hold/2)%hold == 0 {
				levels[i] = float64(rng.Intn(11)) * 10
			}
			heaters[i][k] = levels[i]
			temps[i][k] = cfg.Ambient + lag2[i] + cfg.Noise*(rng.Float64()-0.5)*2
		}

		next1 := make([]float64, n)
		for i := 0; i < n; i++ {
			drive := cfg.Gain * heaters[i][k]
			for j := 0; j < n; j++ {
				if j != i {
					drive += cfg.Coupling * cfg.Gain * heaters[j][k]
				}
			}
			next1[i] = a1*lag1[i] + (1-a1)*drive
			lag2[i] = a2*lag2[i] + (1-a2)*lag1[i]
		}
		copy(lag1, next1)
	}
	return times, heaters, temps
}
