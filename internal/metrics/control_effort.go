package metrics

import "math"

// ControlEffort is the total move size, sum |u[k] - u[k-1]|.
type ControlEffort struct {
	name  string
	sum   float64
	prev  float64
	first bool
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name:  "control_effort",
		first: true,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s Sample) {
	if !c.first {
		c.sum += math.Abs(s.U - c.prev)
	}
	c.prev = s.U
	c.first = false
}

func (c *ControlEffort) Value() float64 {
	return c.sum
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.prev = 0
	c.first = true
}
