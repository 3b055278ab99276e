package solver

import (
	"fmt"
	"math"
	"strings"
)

// Loss selects how a model/measurement mismatch is penalized. The numbering
// follows the usual EV_TYPE and CV_TYPE convention.
type Loss int

const (
	// L1 is the absolute error outside a dead-band.
	L1 Loss = 1
	// L2 is the squared error.
	L2 Loss = 2
)

func (l Loss) String() string {
	switch l {
	case L1:
		return "l1"
	case L2:
		return "l2"
	default:
		return fmt.Sprintf("loss(%d)", int(l))
	}
}

// Eval returns the penalty for error e. For L1 the band |e| <= gap/2 costs
// nothing; L2 ignores the gap.
func (l Loss) Eval(e, gap float64) float64 {
	if l == L2 {
		return e * e
	}
	d := math.Abs(e) - gap/2
	if d < 0 {
		return 0
	}
	return d
}

// ParseLoss accepts "l1", "1", "l2" or "2".
func ParseLoss(s string) (Loss, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l1", "1", "":
		return L1, nil
	case "l2", "2":
		return L2, nil
	default:
		return 0, fmt.Errorf("unknown loss %q", s)
	}
}

// MarshalYAML and UnmarshalYAML keep config files readable ("l1", "l2").
func (l Loss) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

func (l *Loss) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseLoss(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
