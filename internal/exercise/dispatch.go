package exercise

import (
	"context"

	"github.com/san-kum/dynopt/internal/dataset"
	"github.com/san-kum/dynopt/internal/dispatch"
	"github.com/san-kum/dynopt/internal/export"
)

// panelSpec names the plan columns drawn in one panel.
type panelSpec struct {
	ylabel  string
	columns []string
	style   export.Style
}

// planReport lays a solved plan out as a report with one figure whose
// panels follow specs.
func planReport(name, title, xlabel string, plan *dispatch.Plan, specs ...panelSpec) (*Report, error) {
	rep := newReport(name)
	cols := make([][]float64, len(plan.Columns))
	for i, c := range plan.Columns {
		cols[i] = c.Values
	}
	if err := rep.table(plan.Header(), cols...); err != nil {
		return nil, err
	}
	for k, v := range plan.Scalars {
		rep.Scalars[k] = v
	}
	rep.Scalars["objective"] = plan.Objective

	x := plan.Columns[0].Values
	fig := export.Figure{Name: name, Title: title}
	for i, spec := range specs {
		p := export.Panel{YLabel: spec.ylabel}
		if i == len(specs)-1 {
			p.XLabel = xlabel
		}
		for _, c := range spec.columns {
			p.Series = append(p.Series, export.Series{Name: c, X: x, Y: plan.Column(c), Style: spec.style})
		}
		fig.Panels = append(fig.Panels, p)
	}
	rep.Figures = []export.Figure{fig}
	return rep, nil
}

type appleStorage struct{}

func (appleStorage) Name() string { return "apple_storage" }

func (appleStorage) Describe() string {
	return "weekly orchard sales with limited cold storage, maximizing revenue"
}

func (e appleStorage) Run(ctx context.Context, env Env) (*Report, error) {
	h, err := dispatch.HarvestFrom(dataset.OrchardSeason())
	if err != nil {
		return nil, err
	}
	plan, err := dispatch.AppleStorage(h, env.Config.Dispatch.AppleStorage)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("planned sales", "revenue", plan.Scalars["revenue"])
	return planReport(e.Name(), "Orchard storage", "Week", plan,
		panelSpec{ylabel: "Apples", columns: []string{"produce", "demand", "sell"}, style: export.Step},
		panelSpec{ylabel: "Storage", columns: []string{"stock", "in", "out"}, style: export.Step},
		panelSpec{ylabel: "Price", columns: []string{"price"}, style: export.Step},
	)
}

type loadFollowing struct{}

func (loadFollowing) Name() string { return "load_following" }

func (loadFollowing) Describe() string {
	return "ramp limited generator following a cyclic demand"
}

func (e loadFollowing) Run(ctx context.Context, env Env) (*Report, error) {
	plan, err := dispatch.LoadFollowing(env.Config.Dispatch.LoadFollowing)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("planned generation", "under", plan.Scalars["under_total"], "over", plan.Scalars["over_total"])
	return planReport(e.Name(), "Load following", "Time", plan,
		panelSpec{ylabel: "Power", columns: []string{"demand", "generation"}},
		panelSpec{ylabel: "Ramp", columns: []string{"ramp"}},
		panelSpec{ylabel: "Mismatch", columns: []string{"under", "over"}},
	)
}

type constProduction struct{}

func (constProduction) Name() string { return "const_production_storage" }

func (constProduction) Describe() string {
	return "constant generation with lossy periodic storage covering a cyclic demand"
}

func (e constProduction) Run(ctx context.Context, env Env) (*Report, error) {
	plan, err := dispatch.ConstProduction(env.Config.Dispatch.ConstProduction)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("planned generation", "generation", plan.Scalars["generation"])
	return planReport(e.Name(), "Constant production with storage", "Time", plan,
		panelSpec{ylabel: "Power", columns: []string{"demand", "generation"}},
		panelSpec{ylabel: "Storage", columns: []string{"storage"}},
		panelSpec{ylabel: "Flow", columns: []string{"store", "recover"}},
	)
}

type loadFollowingStorage struct{}

func (loadFollowingStorage) Name() string { return "load_following_storage" }

func (loadFollowingStorage) Describe() string {
	return "ramp limited generator, renewable source and storage following a demand"
}

func (e loadFollowingStorage) Run(ctx context.Context, env Env) (*Report, error) {
	plan, err := dispatch.LoadFollowingStorage(env.Config.Dispatch.LoadFollowingStorage)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("planned generation",
		"generation", plan.Scalars["generation_total"],
		"under", plan.Scalars["under_total"],
		"over", plan.Scalars["over_total"])
	return planReport(e.Name(), "Load following with storage", "Time", plan,
		panelSpec{ylabel: "Power", columns: []string{"demand", "renewable", "generation"}},
		panelSpec{ylabel: "Storage", columns: []string{"storage"}},
		panelSpec{ylabel: "Flow", columns: []string{"store", "recover"}},
		panelSpec{ylabel: "Mismatch", columns: []string{"under", "over"}},
	)
}

type batteryArbitrage struct{}

func (batteryArbitrage) Name() string { return "battery_arbitrage" }

func (batteryArbitrage) Describe() string {
	return "day ahead home battery schedule against grid prices, solar and demand"
}

func (e batteryArbitrage) Run(ctx context.Context, env Env) (*Report, error) {
	m, err := dispatch.MarketFrom(dataset.BatteryDay())
	if err != nil {
		return nil, err
	}
	plan, err := dispatch.BatteryArbitrage(m, env.Config.Dispatch.Battery)
	if err != nil {
		return nil, err
	}
	env.Log.Infow("planned battery", "cost", plan.Scalars["cost"], "savings", plan.Scalars["savings"])
	return planReport(e.Name(), "Battery arbitrage", "Hour", plan,
		panelSpec{ylabel: "Price", columns: []string{"price"}, style: export.Step},
		panelSpec{ylabel: "kW", columns: []string{"pv", "demand"}, style: export.Step},
		panelSpec{ylabel: "State of charge", columns: []string{"soc"}},
		panelSpec{ylabel: "Flows", columns: []string{"charge", "discharge", "import", "export"}, style: export.Step},
	)
}
