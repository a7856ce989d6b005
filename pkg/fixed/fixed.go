// Package fixed implements the 16-bit fixed-point arithmetic shared by the
// DSP chain.
//
// A fixed16 value is an int16 interpreted as a real number in [-1, 1), with
// 32767 standing for 1.0. A ufixed16 value is a uint16 interpreted as a real
// number in [0, 1], with 65535 standing for 1.0.
package fixed

import "math"

const (
	// One is the fixed16 representation of 1.0.
	One int16 = math.MaxInt16
	// UOne is the ufixed16 representation of 1.0.
	UOne uint16 = math.MaxUint16
)

// FromFloat converts a real value in [-1, 1] to fixed16.
func FromFloat(v float64) int16 {
	return int16(v * math.MaxInt16)
}

// UFromFloat converts a real value in [0, 1] to ufixed16.
func UFromFloat(v float64) uint16 {
	return uint16(v * math.MaxUint16)
}

// ToFloat converts a fixed16 value to a real value.
func ToFloat(v int16) float64 {
	return float64(v) / math.MaxInt16
}

// UToFloat converts a ufixed16 value to a real value.
func UToFloat(v uint16) float64 {
	return float64(v) / math.MaxUint16
}

// Saturate clamps v into the int16 range.
func Saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Mul multiplies two fixed16 values.
func Mul(a, b int16) int16 {
	return int16((int32(a) * int32(b)) >> 15)
}

// UMul scales a fixed16 value by a ufixed16 factor.
func UMul(a int16, b uint16) int16 {
	return int16((int32(a) * int32(b)) >> 16)
}

// AddSat adds two fixed16 values, saturating at the int16 limits.
func AddSat(a, b int16) int16 {
	return Saturate(int32(a) + int32(b))
}

// Interpolate returns the linear interpolation between a and b at pos, where
// pos is a ufixed16 fraction of the way from a to b.
func Interpolate(a, b int16, pos uint16) int16 {
	return int16((int32(b)*int32(pos) + int32(a)*(65536-int32(pos))) >> 16)
}

// InterpolateScale interpolates between a and b at pos and scales the result
// by mag in a single step.
func InterpolateScale(a, b int16, pos uint16, mag int16) int16 {
	v := int64(b)*int64(pos) + int64(a)*(65536-int64(pos))
	return int16(MulHigh(int32(v), int32(mag)))
}

// MulHigh returns the upper 32 bits of the 64-bit product of a and b.
func MulHigh(a, b int32) int32 {
	return int32((int64(a) * int64(b)) >> 32)
}

// MulWT multiplies a by the signed top halfword of b and keeps the upper 32
// bits of the 48-bit product.
func MulWT(a int32, b uint32) int16 {
	return int16((int64(a) * int64(int16(b>>16))) >> 16)
}

// AddBlock adds src into dst sample by sample with saturation. The shorter
// length of the two wins.
func AddBlock(dst, src []int16) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = AddSat(dst[i], src[i])
	}
}
