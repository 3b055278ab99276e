// Package config holds the yaml configuration of every exercise, with
// per-exercise defaults and named presets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynopt/internal/baddata"
	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/dispatch"
	"github.com/san-kum/dynopt/internal/loop"
	"github.com/san-kum/dynopt/internal/mhe"
	"github.com/san-kum/dynopt/internal/mpc"
	"github.com/san-kum/dynopt/internal/solver"
)

const (
	DefaultDataDir  = "data"
	DefaultPlotDir  = "plots"
	DefaultLogLevel = "info"
	DefaultSeed     = 1
)

type Config struct {
	Exercise   string           `yaml:"exercise"`
	Seed       int64            `yaml:"seed"`
	Solver     solver.Options   `yaml:"solver"`
	Loop       LoopConfig       `yaml:"loop"`
	Estimator  EstimatorConfig  `yaml:"estimator"`
	Controller ControllerConfig `yaml:"controller"`
	Data       DataConfig       `yaml:"data"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Output     OutputConfig     `yaml:"output"`
}

type LoopConfig struct {
	Cycles    int           `yaml:"cycles"`
	Dt        float64       `yaml:"dt"`
	Noise     float64       `yaml:"noise"`
	Setpoints loop.Schedule `yaml:"setpoints"`
	Inputs    loop.Schedule `yaml:"inputs"`
	SPBand    float64       `yaml:"sp_band"`

	// Plant holds the true process parameters and initial state by name.
	Plant             map[string]float64 `yaml:"plant"`
	ControlOnMeasured bool               `yaml:"control_on_measured"`
}

type EstimatorConfig struct {
	Tuning mhe.Tuning      `yaml:"tuning"`
	Params []mhe.Parameter `yaml:"params"`

	// Initial is the estimator's guess of the initial state by name. States
	// it leaves out start at the plant's value.
	Initial map[string]float64 `yaml:"initial"`

	// Loss and MaxStep apply to the batch fits.
	Loss    solver.Loss `yaml:"loss"`
	MaxStep float64     `yaml:"max_step"`

	// ARX orders and prediction mode ("meas" or "model").
	NA         int    `yaml:"na"`
	NB         int    `yaml:"nb"`
	Prediction string `yaml:"prediction"`

	BadData BadDataConfig `yaml:"bad_data"`
}

type BadDataConfig struct {
	baddata.Config `yaml:",inline"`

	Cycles        int                   `yaml:"cycles"`
	Noise         float64               `yaml:"noise"`
	Outliers      []Outlier             `yaml:"outliers"`
	Drift         baddata.Drift         `yaml:"drift"`
	NoiseIncrease baddata.NoiseIncrease `yaml:"noise_increase"`
}

// Outlier replaces the measurement at Cycle.
type Outlier struct {
	Cycle int     `yaml:"cycle"`
	Value float64 `yaml:"value"`
}

// Corruptions lists the configured corruptions in application order.
func (b BadDataConfig) Corruptions() []baddata.Corruption {
	var cs []baddata.Corruption
	if b.Noise > 0 {
		cs = append(cs, baddata.Noise{Amplitude: b.Noise})
	}
	if b.NoiseIncrease.Amplitude > 0 {
		cs = append(cs, b.NoiseIncrease)
	}
	if b.Drift.Rate != 0 {
		cs = append(cs, b.Drift)
	}
	if len(b.Outliers) > 0 {
		o := make(baddata.Outliers, len(b.Outliers))
		for _, v := range b.Outliers {
			o[v.Cycle] = v.Value
		}
		cs = append(cs, o)
	}
	return cs
}

// ControllerConfig selects the loop controller: "mpc", "pid" or "none".
type ControllerConfig struct {
	Kind   string     `yaml:"kind"`
	Tuning mpc.Tuning `yaml:"tuning"`
	Kp     float64    `yaml:"kp"`
	Ki     float64    `yaml:"ki"`
	Kd     float64    `yaml:"kd"`
}

type DataConfig struct {
	SISO    string            `yaml:"siso"`
	MIMO    string            `yaml:"mimo"`
	Offline bool              `yaml:"offline"`
	Lab     dataset.HeaterLab `yaml:"lab"`
}

type DispatchConfig struct {
	LoadFollowing        dispatch.LoadFollowingConfig        `yaml:"load_following"`
	ConstProduction      dispatch.ConstProductionConfig      `yaml:"const_production"`
	LoadFollowingStorage dispatch.LoadFollowingStorageConfig `yaml:"load_following_storage"`
	Battery              dispatch.BatteryConfig              `yaml:"battery"`
	AppleStorage         dispatch.AppleStorageConfig         `yaml:"apple_storage"`
}

type OutputConfig struct {
	DataDir  string `yaml:"data_dir"`
	PlotDir  string `yaml:"plot_dir"`
	LogLevel string `yaml:"log_level"`
	Plots    bool   `yaml:"plots"`
}

// DefaultConfig returns the shared defaults without exercise specifics.
func DefaultConfig() *Config {
	est := mhe.DefaultTuning()
	ctl := mpc.DefaultTuning()
	return &Config{
		Seed:   DefaultSeed,
		Solver: solver.DefaultOptions(),
		Loop: LoopConfig{
			Cycles: 50,
			Dt:     0.5,
			SPBand: 0.1,
		},
		Estimator: EstimatorConfig{
			Tuning:     est,
			Loss:       solver.L2,
			MaxStep:    0.01,
			NA:         2,
			NB:         2,
			Prediction: "meas",
			BadData: BadDataConfig{
				Config:   baddata.DefaultConfig(),
				Cycles:   150,
				Noise:    1,
				Outliers: []Outlier{{Cycle: 50, Value: 100}, {Cycle: 100, Value: 0}},
			},
		},
		Controller: ControllerConfig{Kind: "none", Tuning: ctl, Kp: 2, Ki: 0.5},
		Data: DataConfig{
			SISO: dataset.SISOSource,
			MIMO: dataset.MIMOSource,
			Lab:  dataset.DefaultHeaterLab(),
		},
		Dispatch: DispatchConfig{
			LoadFollowing:        dispatch.DefaultLoadFollowing(),
			ConstProduction:      dispatch.DefaultConstProduction(),
			LoadFollowingStorage: dispatch.DefaultLoadFollowingStorage(),
			Battery:              dispatch.DefaultBattery(),
			AppleStorage:         dispatch.DefaultAppleStorage(),
		},
		Output: OutputConfig{
			DataDir:  DefaultDataDir,
			PlotDir:  DefaultPlotDir,
			LogLevel: DefaultLogLevel,
			Plots:    true,
		},
	}
}

// Default returns the configuration an exercise runs with out of the box.
func Default(exercise string) *Config {
	cfg := DefaultConfig()
	cfg.Exercise = exercise
	if apply, ok := defaults[exercise]; ok {
		apply(cfg)
	}
	return cfg
}

func fopdtParams() []mhe.Parameter {
	return []mhe.Parameter{
		{Param: solver.Bounded("K", 3, 1, 3), Estimate: true, DMax: 1},
		{Param: solver.Bounded("tau", 4, 1, 10), Estimate: true, DMax: 0.1},
	}
}

func stepInputs() loop.Schedule {
	return loop.Schedule{{Cycle: 0, Value: 2}, {Cycle: 10, Value: 3}, {Cycle: 20, Value: 4}, {Cycle: 30, Value: 1}, {Cycle: 40, Value: 3}}
}

var defaults = map[string]func(*Config){
	"mhe": func(c *Config) {
		c.Loop.Cycles = 50
		c.Loop.Noise = 0.25
		c.Loop.Plant = map[string]float64{"K": 1, "tau": 5}
		c.Loop.Inputs = stepInputs()
		c.Estimator.Params = fopdtParams()
	},
	"fopdt_estimation": func(c *Config) {
		c.Loop.Cycles = 50
		c.Loop.Noise = 0.25
		c.Loop.Plant = map[string]float64{"K": 1, "tau": 5}
		c.Loop.Inputs = stepInputs()
		c.Estimator.Params = fopdtParams()
		c.Estimator.Params[0].Init = 1
		c.Estimator.Params[1].Init = 5
	},
	"mhe_mpc": func(c *Config) {
		c.Loop.Cycles = 100
		c.Loop.Noise = 0.25
		c.Loop.Plant = map[string]float64{"K": 1, "tau": 5}
		c.Loop.Setpoints = loop.Schedule{{Cycle: 0, Value: 3}, {Cycle: 20, Value: 5}, {Cycle: 25, Value: 6}, {Cycle: 26, Value: 5}, {Cycle: 40, Value: 2}, {Cycle: 60, Value: 4}, {Cycle: 80, Value: 3}}
		c.Estimator.Params = fopdtParams()
		c.Controller.Kind = "mpc"
	},
	"cstr_mhe": func(c *Config) {
		c.Loop.Cycles = 50
		c.Loop.Dt = 0.1
		c.Loop.Noise = 0
		c.Loop.Plant = map[string]float64{"UA": 5e4, "Ca": 0.7, "T": 335}
		c.Loop.Inputs = loop.Schedule{{Cycle: 0, Value: 280}, {Cycle: 5, Value: 300}}
		c.Estimator.Initial = map[string]float64{"Ca": 0.5, "T": 335}
		c.Estimator.Tuning.Horizon = 21
		c.Estimator.Tuning.Dt = 0.1
		c.Estimator.Tuning.MeasGap = 0.1
		c.Estimator.Tuning.MaxStep = 0.01
		c.Estimator.Params = []mhe.Parameter{
			{Param: solver.Bounded("UA", 1e4, 3e4, 1e5), Estimate: true},
		}
	},
	"exp_decay": func(c *Config) {
		c.Solver.Method = solver.BFGS
	},
	"third_order": func(c *Config) {
		c.Solver.Starts = 4
		c.Solver.Seed = 3
	},
	"mimo_arx": func(c *Config) {
		c.Estimator.NA = 3
		c.Estimator.NB = 4
	},
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var probe struct {
		Exercise string `yaml:"exercise"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default(probe.Exercise)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ModelParams returns the loop plant parameters in the given order.
func (c *Config) ModelParams(names ...string) []float64 {
	out := make([]float64, len(names))
	for i, n := range names {
		out[i] = c.Loop.Plant[n]
	}
	return out
}
