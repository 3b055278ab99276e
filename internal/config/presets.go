package config

import (
	"sort"

	"github.com/san-kum/dynopt/internal/solver"
)

// Presets adjust an exercise's defaults. They are applied on top of
// Default(exercise).
var Presets = map[string]map[string]func(*Config){
	"mhe": {
		"tight": func(c *Config) {
			c.Estimator.Params[0].DMax = 0.5
			c.Estimator.Params[1].DMax = 0.05
		},
		"squared": func(c *Config) {
			c.Estimator.Tuning.Loss = solver.L2
			c.Estimator.Tuning.MeasGap = 0
		},
		"noisy": func(c *Config) {
			c.Loop.Noise = 1
		},
	},
	"mhe_mpc": {
		"aggressive": func(c *Config) {
			c.Controller.Tuning.DCost = 0.01
			c.Controller.Tuning.Blocks = 6
			c.Controller.Tuning.WSPHI = 50
			c.Controller.Tuning.WSPLO = 50
		},
		"smooth": func(c *Config) {
			c.Controller.Tuning.DCost = 1
			c.Controller.Tuning.DMax = 0.5
			c.Controller.Tuning.TrInit = 1
		},
		"squared": func(c *Config) {
			c.Controller.Tuning.CVType = solver.L2
		},
		"pid": func(c *Config) {
			c.Controller.Kind = "pid"
		},
	},
	"cstr_mhe": {
		"squared": func(c *Config) {
			c.Estimator.Tuning.Loss = solver.L2
			c.Estimator.Tuning.MeasGap = 0
		},
	},
	"bad_data": {
		"outliers": func(c *Config) {},
		"drift": func(c *Config) {
			c.Estimator.BadData.Outliers = nil
			c.Estimator.BadData.Drift.Start = 50
			c.Estimator.BadData.Drift.Rate = 0.05
		},
		"noise_increase": func(c *Config) {
			c.Estimator.BadData.Outliers = nil
			c.Estimator.BadData.NoiseIncrease.Start = 50
			c.Estimator.BadData.NoiseIncrease.Amplitude = 3
		},
	},
	"siso_arx": {
		"first_order": func(c *Config) {
			c.Estimator.NA = 1
			c.Estimator.NB = 1
		},
		"free_run": func(c *Config) {
			c.Estimator.Prediction = "model"
		},
	},
	"battery_arbitrage": {
		"small_battery": func(c *Config) {
			c.Dispatch.Battery.Capacity = 10
			c.Dispatch.Battery.ChargeLimit = 3
			c.Dispatch.Battery.DischargeLimit = 3
		},
	},
	"load_following": {
		"coarse": func(c *Config) {
			c.Dispatch.LoadFollowing.Points = 51
		},
	},
	"const_production_storage": {
		"lossless": func(c *Config) {
			c.Dispatch.ConstProduction.Efficiency = 1
		},
	},
}

func GetPreset(exercise, preset string) *Config {
	exercisePresets, ok := Presets[exercise]
	if !ok {
		return nil
	}
	apply, ok := exercisePresets[preset]
	if !ok {
		return nil
	}
	cfg := Default(exercise)
	apply(cfg)
	return cfg
}

func ListPresets(exercise string) []string {
	exercisePresets, ok := Presets[exercise]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(exercisePresets))
	for name := range exercisePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
