package builder

import (
	"math"
	"math/big"
)

// Approximation predicts the object reference of token id as
// Offset + id*Slope. The difference to the real reference is the
// correction stored per id.
type Approximation struct {
	Slope  int64
	Offset int64
}

func (a Approximation) At(id int) int64 {
	return a.Offset + int64(id)*a.Slope
}

// FitLeastSquares fits refs[i] ~ Offset + i*Slope with integer least squares.
// The sums are exact; slope and offset are truncated toward zero.
func FitLeastSquares(refs []int64) Approximation {
	if len(refs) == 0 {
		return Approximation{}
	}
	var sumX, sumY, sumXY, sumXX big.Int
	var x, y, t big.Int
	for i, ref := range refs {
		x.SetInt64(int64(i))
		y.SetInt64(ref)
		sumX.Add(&sumX, &x)
		sumY.Add(&sumY, &y)
		sumXY.Add(&sumXY, t.Mul(&x, &y))
		sumXX.Add(&sumXX, t.Mul(&x, &x))
	}
	n := big.NewInt(int64(len(refs)))

	var num, den, a, b big.Int
	num.Sub(a.Mul(n, &sumXY), b.Mul(&sumX, &sumY))
	den.Sub(a.Mul(n, &sumXX), b.Mul(&sumX, &sumX))
	slope := new(big.Int)
	if den.Sign() != 0 {
		slope.Quo(&num, &den)
	}
	offset := new(big.Int).Sub(&sumY, a.Mul(slope, &sumX))
	offset.Quo(offset, n)
	return Approximation{Slope: clamp(slope), Offset: clamp(offset)}
}

func clamp(v *big.Int) int64 {
	if v.IsInt64() {
		return v.Int64()
	}
	if v.Sign() < 0 {
		return math.MinInt64
	}
	return math.MaxInt64
}

// Corrections returns refs[i] - a.At(i) for every id together with the
// narrowest width that holds all of them.
func Corrections(refs []int64, a Approximation) ([]int64, int) {
	corrections := make([]int64, len(refs))
	var maxAbs uint64
	for i, ref := range refs {
		c := ref - a.At(i)
		corrections[i] = c
		abs := uint64(c)
		if c < 0 {
			abs = uint64(-c)
		}
		maxAbs = max(maxAbs, abs)
	}
	return corrections, WidthFor(maxAbs)
}

// WidthFor returns the byte width, one of 1, 2, 4 or 8, of the narrowest
// signed integer whose positive range holds maxAbs.
func WidthFor(maxAbs uint64) int {
	switch {
	case maxAbs <= math.MaxInt8:
		return 1
	case maxAbs <= math.MaxInt16:
		return 2
	case maxAbs <= math.MaxInt32:
		return 4
	default:
		return 8
	}
}
