package dispatch

// Column is a named schedule.
type Column struct {
	Name   string
	Values []float64
}

// Plan is a solved schedule. The first column is the time axis.
type Plan struct {
	Columns   []Column
	Objective float64
	Scalars   map[string]float64
}

func newPlan(timeName string, times []float64) *Plan {
	return &Plan{
		Columns: []Column{{Name: timeName, Values: times}},
		Scalars: make(map[string]float64),
	}
}

func (p *Plan) add(name string, values []float64) {
	p.Columns = append(p.Columns, Column{Name: name, Values: values})
}

// Column returns the named schedule or nil.
func (p *Plan) Column(name string) []float64 {
	for _, c := range p.Columns {
		if c.Name == name {
			return c.Values
		}
	}
	return nil
}

// Header and Rows lay the plan out as a table.
func (p *Plan) Header() []string {
	h := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		h[i] = c.Name
	}
	return h
}

func (p *Plan) Rows() [][]float64 {
	if len(p.Columns) == 0 {
		return nil
	}
	rows := make([][]float64, len(p.Columns[0].Values))
	for k := range rows {
		rows[k] = make([]float64, len(p.Columns))
		for i, c := range p.Columns {
			rows[k][i] = c.Values[k]
		}
	}
	return rows
}

func grid(points int, horizon float64) ([]float64, float64) {
	t := make([]float64, points)
	dt := horizon / float64(points-1)
	for k := range t {
		t[k] = float64(k) * dt
	}
	return t, dt
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

// prepend puts the fixed initial value in front of the decision values.
func prepend(v0 float64, v []float64) []float64 {
	return append([]float64{v0}, v...)
}
