package solver

import "math"

type boundKind int

const (
	boundFree boundKind = iota
	boundLower
	boundUpper
	boundBoth
	boundFixed
)

// transform maps an unconstrained search coordinate z to a parameter value
// that always satisfies the parameter bounds.
type transform struct {
	kind   boundKind
	lo, hi float64
	origin float64
	scale  float64
}

// edgeFraction keeps the initial point away from the flat ends of tanh.
const edgeFraction = 0.01

func newTransform(p Param) transform {
	lo, hi := p.Lower, p.Upper
	loInf, hiInf := math.IsInf(lo, -1), math.IsInf(hi, 1)
	switch {
	case !loInf && !hiInf && lo == hi:
		return transform{kind: boundFixed, lo: lo, hi: hi}
	case !loInf && !hiInf:
		return transform{kind: boundBoth, lo: lo, hi: hi}
	case !loInf:
		scale := p.Init - lo
		if scale <= 0 {
			scale = math.Max(math.Abs(lo), 1) * 0.1
		}
		return transform{kind: boundLower, lo: lo, hi: hi, origin: lo, scale: scale}
	case !hiInf:
		scale := hi - p.Init
		if scale <= 0 {
			scale = math.Max(math.Abs(hi), 1) * 0.1
		}
		return transform{kind: boundUpper, lo: lo, hi: hi, origin: hi, scale: scale}
	default:
		return transform{kind: boundFree, lo: lo, hi: hi, origin: p.Init, scale: math.Max(math.Abs(p.Init), 1)}
	}
}

func (t transform) toModel(z float64) float64 {
	switch t.kind {
	case boundBoth:
		return t.lo + (t.hi-t.lo)*(1+math.Tanh(z))/2
	case boundLower:
		return t.origin + t.scale*math.Exp(z)
	case boundUpper:
		return t.origin - t.scale*math.Exp(z)
	case boundFixed:
		return t.lo
	default:
		return t.origin + t.scale*z
	}
}

func (t transform) toSearch(v float64) float64 {
	switch t.kind {
	case boundBoth:
		frac := (v - t.lo) / (t.hi - t.lo)
		frac = math.Min(math.Max(frac, edgeFraction), 1-edgeFraction)
		return math.Atanh(2*frac - 1)
	case boundLower:
		d := v - t.origin
		if d <= 0 {
			return 0
		}
		return math.Log(d / t.scale)
	case boundUpper:
		d := t.origin - v
		if d <= 0 {
			return 0
		}
		return math.Log(d / t.scale)
	case boundFixed:
		return 0
	default:
		return (v - t.origin) / t.scale
	}
}
