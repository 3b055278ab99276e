package dispatch

import (
	"fmt"
	"math"

	"github.com/san-kum/dynopt/internal/dataset"
)

// Market is an hourly price, solar and demand profile.
type Market struct {
	Hours  []float64
	Price  []float64
	PV     []float64
	Demand []float64
}

// MarketFrom reads hour, price, pv and demand columns.
func MarketFrom(f *dataset.Frame) (Market, error) {
	var m Market
	cols := []*[]float64{&m.Hours, &m.Price, &m.PV, &m.Demand}
	for i, name := range []string{"hour", "price", "pv", "demand"} {
		c, err := f.Column(name)
		if err != nil {
			return Market{}, fmt.Errorf("dispatch: %w", err)
		}
		*cols[i] = c
	}
	return m, nil
}

type BatteryConfig struct {
	Capacity        float64 `yaml:"capacity"`
	InitialCharge   float64 `yaml:"initial_charge"`
	MinCharge       float64 `yaml:"min_charge"`
	MaxCharge       float64 `yaml:"max_charge"`
	ChargeEff       float64 `yaml:"charge_efficiency"`
	DischargeEff    float64 `yaml:"discharge_efficiency"`
	ChargeLimit     float64 `yaml:"charge_limit"`
	DischargeLimit  float64 `yaml:"discharge_limit"`
	ImportLimit     float64 `yaml:"import_limit"`
	ExportLimit     float64 `yaml:"export_limit"`
	ExportPriceRate float64 `yaml:"export_price_rate"`
}

func DefaultBattery() BatteryConfig {
	return BatteryConfig{
		Capacity:        30,
		InitialCharge:   0.5,
		MinCharge:       0.1,
		MaxCharge:       1,
		ChargeEff:       0.94,
		DischargeEff:    0.94,
		ChargeLimit:     10,
		DischargeLimit:  10,
		ImportLimit:     7,
		ExportLimit:     7,
		ExportPriceRate: 0.9,
	}
}

// Baseline is the cost of serving the market with the grid alone.
func Baseline(m Market, cfg BatteryConfig) float64 {
	cost := 0.0
	for k := range m.Hours {
		net := m.Demand[k] - m.PV[k]
		if net > 0 {
			cost += m.Price[k] * net
		} else {
			cost += cfg.ExportPriceRate * m.Price[k] * net
		}
	}
	return cost
}

// BatteryArbitrage schedules a home battery against hourly prices. The state
// of charge before the first hour is fixed and every hour is a decision.
func BatteryArbitrage(m Market, cfg BatteryConfig) (*Plan, error) {
	n := len(m.Hours)
	if n == 0 || len(m.Price) != n || len(m.PV) != n || len(m.Demand) != n {
		return nil, fmt.Errorf("dispatch: inconsistent market profile")
	}
	if cfg.Capacity <= 0 || cfg.ChargeEff <= 0 || cfg.DischargeEff <= 0 {
		return nil, fmt.Errorf("dispatch: capacity and efficiencies must be positive")
	}

	p := NewLP()
	soc := make([]Var, n)
	ch, dis := make([]Var, n), make([]Var, n)
	in, out := make([]Var, n), make([]Var, n)
	for k := 0; k < n; k++ {
		soc[k] = p.Var(fmt.Sprintf("soc[%d]", k), cfg.MinCharge, cfg.MaxCharge, 0)
		ch[k] = p.Var(fmt.Sprintf("charge[%d]", k), 0, cfg.ChargeLimit, 0)
		dis[k] = p.Var(fmt.Sprintf("discharge[%d]", k), 0, cfg.DischargeLimit, 0)
		in[k] = p.Var(fmt.Sprintf("import[%d]", k), 0, cfg.ImportLimit, m.Price[k])
		out[k] = p.Var(fmt.Sprintf("export[%d]", k), 0, cfg.ExportLimit, -cfg.ExportPriceRate*m.Price[k])

		c, d := cfg.ChargeEff/cfg.Capacity, -1/(cfg.DischargeEff*cfg.Capacity)
		if k == 0 {
			p.Constrain("soc[0]", EQ, cfg.InitialCharge, T(soc[0], 1), T(ch[0], -c), T(dis[0], -d))
		} else {
			p.Constrain(fmt.Sprintf("soc[%d]", k), EQ, 0,
				T(soc[k], 1), T(soc[k-1], -1), T(ch[k], -c), T(dis[k], -d))
		}
		// demand + charge + import = pv + discharge + export
		p.Constrain(fmt.Sprintf("balance[%d]", k), EQ, m.PV[k]-m.Demand[k],
			T(ch[k], 1), T(in[k], 1), T(dis[k], -1), T(out[k], -1))
	}

	sol, err := p.Solve()
	if err != nil {
		return nil, err
	}
	plan := newPlan("hour", m.Hours)
	plan.add("price", m.Price)
	plan.add("pv", m.PV)
	plan.add("demand", m.Demand)
	plan.add("soc", sol.Values(soc))
	plan.add("charge", sol.Values(ch))
	plan.add("discharge", sol.Values(dis))
	plan.add("import", sol.Values(in))
	plan.add("export", sol.Values(out))
	plan.Objective = sol.Objective
	plan.Scalars["cost"] = sol.Objective
	plan.Scalars["baseline"] = Baseline(m, cfg)
	plan.Scalars["savings"] = Baseline(m, cfg) - sol.Objective
	return plan, nil
}

// Harvest is a weekly production, own consumption and price profile.
type Harvest struct {
	Week    []float64
	Produce []float64
	Demand  []float64
	Price   []float64
}

func HarvestFrom(f *dataset.Frame) (Harvest, error) {
	var h Harvest
	cols := []*[]float64{&h.Week, &h.Produce, &h.Demand, &h.Price}
	for i, name := range []string{"week", "produce", "demand", "price"} {
		c, err := f.Column(name)
		if err != nil {
			return Harvest{}, fmt.Errorf("dispatch: %w", err)
		}
		*cols[i] = c
	}
	return h, nil
}

type AppleStorageConfig struct {
	Capacity    float64 `yaml:"capacity"`
	Initial     float64 `yaml:"initial"`
	MovePenalty float64 `yaml:"move_penalty"`
}

func DefaultAppleStorage() AppleStorageConfig {
	return AppleStorageConfig{Capacity: 6, Initial: 0, MovePenalty: 1e-6}
}

// AppleStorage decides each week how much of the harvest to sell and how much
// to keep in a cold store of limited capacity to maximize revenue.
func AppleStorage(h Harvest, cfg AppleStorageConfig) (*Plan, error) {
	n := len(h.Week)
	if n == 0 || len(h.Produce) != n || len(h.Demand) != n || len(h.Price) != n {
		return nil, fmt.Errorf("dispatch: inconsistent harvest profile")
	}

	p := NewLP()
	stock := make([]Var, n)
	sell, in, out := make([]Var, n), make([]Var, n), make([]Var, n)
	for k := 0; k < n; k++ {
		stock[k] = p.Var(fmt.Sprintf("stock[%d]", k), 0, cfg.Capacity, 0)
		sell[k] = p.Var(fmt.Sprintf("sell[%d]", k), 0, math.Inf(1), -h.Price[k])
		in[k] = p.Var(fmt.Sprintf("in[%d]", k), 0, math.Inf(1), cfg.MovePenalty)
		out[k] = p.Var(fmt.Sprintf("out[%d]", k), 0, math.Inf(1), cfg.MovePenalty)

		if k == 0 {
			p.Constrain("stock[0]", EQ, cfg.Initial, T(stock[0], 1), T(in[0], -1), T(out[0], 1))
		} else {
			p.Constrain(fmt.Sprintf("stock[%d]", k), EQ, 0,
				T(stock[k], 1), T(stock[k-1], -1), T(in[k], -1), T(out[k], 1))
		}
		// sell + in + demand = out + produce
		p.Constrain(fmt.Sprintf("balance[%d]", k), EQ, h.Produce[k]-h.Demand[k],
			T(sell[k], 1), T(in[k], 1), T(out[k], -1))
	}

	sol, err := p.Solve()
	if err != nil {
		return nil, err
	}
	sold := sol.Values(sell)
	revenue := 0.0
	for k, s := range sold {
		revenue += h.Price[k] * s
	}
	plan := newPlan("week", h.Week)
	plan.add("produce", h.Produce)
	plan.add("demand", h.Demand)
	plan.add("price", h.Price)
	plan.add("sell", sold)
	plan.add("stock", sol.Values(stock))
	plan.add("in", sol.Values(in))
	plan.add("out", sol.Values(out))
	plan.Objective = sol.Objective
	plan.Scalars["revenue"] = revenue
	return plan, nil
}
