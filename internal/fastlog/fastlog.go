// Package fastlog approximates logarithms of 32-bit words in fixed point,
// without floating point, for sampling exponential waiting times.
package fastlog

import "math/bits"

// FracBits is the number of fractional bits in Lg and Ln results.
const FracBits = 26

const (
	fracMask = 1<<FracBits - 1

	// ln2Q21 is round(ln(2) * 2^21).
	ln2Q21 = 1453635
)

// Max is Ln(0xffffffff)+1, an upper bound on every Ln result.
var Max = Ln(0xffffffff) + 1

// Lg returns a piecewise-linear approximation of log2(x)*2^26: the integer
// part floor(log2 x) followed by the 26 bits below the leading one. Lg(0) is 0.
func Lg(x uint32) int64 {
	if x == 0 {
		return 0
	}
	lg := bits.Len32(x) - 1
	var mant uint64
	if lg >= FracBits {
		mant = uint64(x) >> (lg - FracBits)
	} else {
		mant = uint64(x) << (FracBits - lg)
	}
	return int64(lg)<<FracBits | int64(mant&fracMask)
}

// Ln returns an approximation of ln(x)*2^26.
func Ln(x uint32) int64 {
	return (Lg(x) * ln2Q21) >> 21
}
