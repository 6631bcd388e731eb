// Package fade tracks per-device cross-fades between effects and shapes them
// with easing curves.
package fade

import (
	"fmt"
	"math"
)

// Curve names an easing function applied to fade progress.
type Curve string

const (
	// CurveLinear provides constant rate of change.
	CurveLinear Curve = "LINEAR"
	// CurveInOutCubic provides smooth acceleration and deceleration.
	CurveInOutCubic Curve = "EASE_IN_OUT_CUBIC"
	// CurveInOutSine provides gentle sine wave easing.
	CurveInOutSine Curve = "EASE_IN_OUT_SINE"
	// CurveOutExponential provides sharp start, smooth end.
	CurveOutExponential Curve = "EASE_OUT_EXPONENTIAL"
	// CurveBezier provides the standard ease-in-out bezier curve.
	CurveBezier Curve = "BEZIER"
	// CurveSCurve provides sigmoid easing.
	CurveSCurve Curve = "S_CURVE"
)

// sCurveSteepness controls how sharp the sigmoid transition is.
const sCurveSteepness = 10.0

var curves = map[Curve]bool{
	CurveLinear:         true,
	CurveInOutCubic:     true,
	CurveInOutSine:      true,
	CurveOutExponential: true,
	CurveBezier:         true,
	CurveSCurve:         true,
}

// ParseCurve validates a curve name. An empty name means CurveLinear.
func ParseCurve(name string) (Curve, error) {
	if name == "" {
		return CurveLinear, nil
	}
	c := Curve(name)
	if !curves[c] {
		return "", fmt.Errorf("unknown fade curve %q", name)
	}
	return c, nil
}

// Apply maps linear progress (clamped to 0-1) onto the curve. Every curve
// returns exactly 0 at 0 and exactly 1 at 1 so fades always finish cleanly.
func (c Curve) Apply(progress float64) float64 {
	switch {
	case progress <= 0:
		return 0
	case progress >= 1:
		return 1
	}

	switch c {
	case CurveInOutCubic:
		if progress < 0.5 {
			return 4 * progress * progress * progress
		}
		temp := -2*progress + 2
		return 1 - temp*temp*temp/2

	case CurveInOutSine:
		return -(math.Cos(math.Pi*progress) - 1) / 2

	case CurveOutExponential:
		return 1 - math.Pow(2, -10*progress)

	case CurveBezier:
		// ease-in-out control points (0.42, 0, 0.58, 1)
		return cubicBezier(0, 1, progress)

	case CurveSCurve:
		lo := sigmoid(0)
		hi := sigmoid(1)
		return (sigmoid(progress) - lo) / (hi - lo)

	default:
		return progress
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-sCurveSteepness*(x-0.5)))
}

// cubicBezier evaluates the y polynomial of a cubic bezier with end points
// (0,0) and (1,1) directly at t. The x control points are not solved for.
func cubicBezier(p1y, p2y, t float64) float64 {
	cy := 3 * p1y
	by := 3*(p2y-p1y) - cy
	ay := 1 - cy - by

	tSquared := t * t
	tCubed := tSquared * t

	return ay*tCubed + by*tSquared + cy*t
}
