package math

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. lo must not exceed hi.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// Saturate clamps v to the unit interval.
func Saturate[T constraints.Float](v T) T {
	return Clamp(v, 0, 1)
}
