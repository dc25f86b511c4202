package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

const K_FLOAT_EPSILON float32 = 1.192092896e-07

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Lerp interpolates linearly between a and b.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// SnapTo rounds v down to a multiple of step. A non-positive step returns v.
func SnapTo(v, step float32) float32 {
	if step <= 0 {
		return v
	}
	return float32(gomath.Floor(float64(v/step))) * step
}

func Pow(base, exp float32) float32 {
	return float32(gomath.Pow(float64(base), float64(exp)))
}

func DegToRad(degrees float32) float32 {
	return degrees * gomath.Pi / 180.0
}

func RadToDeg(radians float32) float32 {
	return radians * 180.0 / gomath.Pi
}

// NearlyEqual compares with the float32 machine epsilon scaled by magnitude.
func NearlyEqual(a, b float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	scale := Max(Abs(a), Abs(b), 1)
	return diff <= K_FLOAT_EPSILON*scale*4
}

func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

func Max[T constraints.Ordered](first T, rest ...T) T {
	m := first
	for _, v := range rest {
		if v > m {
			m = v
		}
	}
	return m
}
