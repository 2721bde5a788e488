package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return min(max(v, lo), hi)
}

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// SaturateInt8 narrows v, pinning out-of-range values to the int8 limits.
func SaturateInt8[T constraints.Integer](v T) int8 {
	switch {
	case int64(v) < -128 && v < 0:
		return -128
	case v > 0 && uint64(v) > 127:
		return 127
	}
	return int8(v)
}
