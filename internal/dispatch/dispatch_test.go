package dispatch

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/dynopt/internal/dataset"
)

const tol = 1e-6

func TestLPBounded(t *testing.T) {
	p := NewLP()
	x := p.Var("x", 0, 2, 1)
	y := p.Var("y", 0, math.Inf(1), 2)
	p.Constrain("demand", GE, 3, T(x, 1), T(y, 1))

	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(sol.Value(x)-2) > tol || math.Abs(sol.Value(y)-1) > tol {
		t.Errorf("expected x=2 y=1, got x=%f y=%f", sol.Value(x), sol.Value(y))
	}
	if math.Abs(sol.Objective-4) > tol {
		t.Errorf("expected objective 4, got %f", sol.Objective)
	}
}

func TestLPFreeAndUpperOnly(t *testing.T) {
	p := NewLP()
	x := p.Free("x", 1)
	p.Constrain("floor", GE, -5, T(x, 1))
	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(sol.Value(x)+5) > tol {
		t.Errorf("expected x=-5, got %f", sol.Value(x))
	}

	p = NewLP()
	a := p.Var("a", math.Inf(-1), 4, -1)
	b := p.Var("b", 0, 8, 0)
	p.Constrain("sum", EQ, 10, T(a, 1), T(b, 1))
	sol, err = p.Solve()
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(sol.Value(a)-4) > tol || math.Abs(sol.Value(b)-6) > tol {
		t.Errorf("expected a=4 b=6, got a=%f b=%f", sol.Value(a), sol.Value(b))
	}
	if math.Abs(sol.Objective+4) > tol {
		t.Errorf("expected objective -4, got %f", sol.Objective)
	}
}

func TestLPFixedAndUnusedVariables(t *testing.T) {
	p := NewLP()
	x := p.Var("x", 3, 3, 1)
	y := p.Var("y", 0, 10, 1)
	idle := p.Var("idle", -2, 5, -1)
	p.Constrain("sum", LE, 5, T(x, 1), T(y, 1))
	p.Constrain("need", GE, 4, T(x, 1), T(y, 1))

	sol, err := p.Solve()
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if sol.Value(x) != 3 {
		t.Errorf("expected fixed x=3, got %f", sol.Value(x))
	}
	if math.Abs(sol.Value(y)-1) > tol {
		t.Errorf("expected y=1, got %f", sol.Value(y))
	}
	if sol.Value(idle) != 5 {
		t.Errorf("expected idle at its upper bound, got %f", sol.Value(idle))
	}
	if math.Abs(sol.Objective-(3+1-5)) > tol {
		t.Errorf("unexpected objective %f", sol.Objective)
	}
}

func TestLPErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *LP
		want  error
	}{
		{"infeasible row", func() *LP {
			p := NewLP()
			x := p.Var("x", 0, 1, 1)
			p.Constrain("too much", GE, 2, T(x, 1))
			return p
		}, ErrInfeasible},
		{"inverted bounds", func() *LP {
			p := NewLP()
			p.Var("x", 2, 1, 0)
			return p
		}, ErrInfeasible},
		{"unbounded row", func() *LP {
			p := NewLP()
			x := p.Var("x", 0, math.Inf(1), -1)
			p.Constrain("floor", GE, 1, T(x, 1))
			return p
		}, ErrUnbounded},
		{"unbounded column", func() *LP {
			p := NewLP()
			p.Var("x", 0, math.Inf(1), -1)
			return p
		}, ErrUnbounded},
		{"empty row", func() *LP {
			p := NewLP()
			x := p.Var("x", 1, 1, 0)
			p.Constrain("pinned", EQ, 2, T(x, 1))
			return p
		}, ErrInfeasible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Solve()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAppleStorage(t *testing.T) {
	h, err := HarvestFrom(dataset.OrchardSeason())
	if err != nil {
		t.Fatal(err)
	}
	plan, err := AppleStorage(h, DefaultAppleStorage())
	if err != nil {
		t.Fatalf("apple storage failed: %v", err)
	}
	if math.Abs(plan.Scalars["revenue"]-17.3) > 1e-4 {
		t.Errorf("expected revenue 17.3, got %f", plan.Scalars["revenue"])
	}
	for k, s := range plan.Column("stock") {
		if s < -tol || s > 6+tol {
			t.Errorf("week %d: stock %f outside [0, 6]", k+1, s)
		}
	}
	sell := plan.Column("sell")
	if math.Abs(sell[4]-8) > 1e-4 {
		t.Errorf("expected to sell 8 in the last week, got %f", sell[4])
	}
}

func TestLoadFollowing(t *testing.T) {
	cfg := DefaultLoadFollowing()
	cfg.Points = 21
	plan, err := LoadFollowing(cfg)
	if err != nil {
		t.Fatalf("load following failed: %v", err)
	}
	if plan.Scalars["under_total"] > tol {
		t.Errorf("expected no underproduction, got %f", plan.Scalars["under_total"])
	}
	if plan.Scalars["over_total"] <= 0 {
		t.Error("expected overproduction where demand falls faster than the ramp")
	}
	d, g, r := plan.Column("demand"), plan.Column("generation"), plan.Column("ramp")
	for k := range d {
		if g[k] < d[k]-tol {
			t.Errorf("point %d: generation %f below demand %f", k, g[k], d[k])
		}
		if math.Abs(r[k]) > cfg.RampLimit+tol {
			t.Errorf("point %d: ramp %f exceeds limit", k, r[k])
		}
	}
	if g[0] != d[0] {
		t.Errorf("expected generation to start at demand %f, got %f", d[0], g[0])
	}
}

func TestConstProduction(t *testing.T) {
	cfg := DefaultConstProduction()
	cfg.Points = 41
	plan, err := ConstProduction(cfg)
	if err != nil {
		t.Fatalf("const production failed: %v", err)
	}
	g := plan.Scalars["generation"]
	if g <= 10 || g >= 12 {
		t.Errorf("expected generation in (10, 12), got %f", g)
	}
	s := plan.Column("storage")
	if math.Abs(s[0]-s[len(s)-1]) > tol {
		t.Errorf("storage not periodic: %f vs %f", s[0], s[len(s)-1])
	}
	for k, v := range s {
		if v < -tol {
			t.Errorf("point %d: negative storage %f", k, v)
		}
	}
	d, gen, in, out := plan.Column("demand"), plan.Column("generation"), plan.Column("store"), plan.Column("recover")
	for k := 1; k < len(d); k++ {
		if math.Abs(gen[k]+out[k]-in[k]-d[k]) > tol {
			t.Errorf("point %d: supply %f does not meet demand %f", k, gen[k]+out[k]-in[k], d[k])
		}
	}

	cfg.Efficiency = 0
	if _, err := ConstProduction(cfg); err == nil {
		t.Error("expected error for zero efficiency")
	}
}

func TestLoadFollowingStorage(t *testing.T) {
	cfg := DefaultLoadFollowingStorage()
	cfg.Points = 41
	plan, err := LoadFollowingStorage(cfg)
	if err != nil {
		t.Fatalf("load following with storage failed: %v", err)
	}
	d, ren := plan.Column("demand"), plan.Column("renewable")
	g, q, c := plan.Column("generation"), plan.Column("recover"), plan.Column("store")
	under, over := plan.Column("under"), plan.Column("over")
	for k := 1; k < len(d); k++ {
		residual := g[k] + ren[k] + q[k] - c[k] - d[k] - (over[k] - under[k])
		if math.Abs(residual) > 1e-6 {
			t.Errorf("point %d: balance residual %g", k, residual)
		}
	}
	s := plan.Column("storage")
	if math.Abs(s[0]-s[len(s)-1]) > tol {
		t.Errorf("storage not periodic: %f vs %f", s[0], s[len(s)-1])
	}
	for k, v := range plan.Column("ramp") {
		if math.Abs(v) > cfg.RampLimit+tol {
			t.Errorf("point %d: ramp %f exceeds limit", k, v)
		}
	}
}

func TestRenewable(t *testing.T) {
	tm, _ := grid(101, 1)
	r := Renewable(tm)
	if r[0] != 0 || r[24] != 0 || r[100] != 0 {
		t.Error("expected no renewable output in the first and last quarter")
	}
	if math.Abs(r[50]-6) > 1e-9 {
		t.Errorf("expected peak 6 at midday, got %f", r[50])
	}
}

func TestBatteryArbitrage(t *testing.T) {
	m, err := MarketFrom(dataset.BatteryDay())
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultBattery()
	plan, err := BatteryArbitrage(m, cfg)
	if err != nil {
		t.Fatalf("battery arbitrage failed: %v", err)
	}
	if plan.Scalars["cost"] > plan.Scalars["baseline"]+1e-9 {
		t.Errorf("battery cost %f above grid-only cost %f", plan.Scalars["cost"], plan.Scalars["baseline"])
	}
	soc := plan.Column("soc")
	ch, dis := plan.Column("charge"), plan.Column("discharge")
	in, out := plan.Column("import"), plan.Column("export")
	for k := range soc {
		if soc[k] < cfg.MinCharge-tol || soc[k] > cfg.MaxCharge+tol {
			t.Errorf("hour %d: soc %f out of range", k+1, soc[k])
		}
		residual := m.Demand[k] + ch[k] + in[k] - m.PV[k] - dis[k] - out[k]
		if math.Abs(residual) > 1e-6 {
			t.Errorf("hour %d: balance residual %g", k+1, residual)
		}
		if in[k] > cfg.ImportLimit+tol || out[k] > cfg.ExportLimit+tol {
			t.Errorf("hour %d: grid limits exceeded", k+1)
		}
	}

	m.Price = m.Price[:3]
	if _, err := BatteryArbitrage(m, cfg); err == nil {
		t.Error("expected error for inconsistent profile")
	}
}

func TestPlanTable(t *testing.T) {
	p := newPlan("time", []float64{0, 1})
	p.add("x", []float64{2, 3})
	if h := p.Header(); len(h) != 2 || h[1] != "x" {
		t.Errorf("unexpected header %v", h)
	}
	rows := p.Rows()
	if len(rows) != 2 || rows[1][0] != 1 || rows[1][1] != 3 {
		t.Errorf("unexpected rows %v", rows)
	}
	if p.Column("missing") != nil {
		t.Error("expected nil for a missing column")
	}
}
