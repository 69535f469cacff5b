package mediakit

import "fmt"

// Rational is an exact fraction used for time bases and frame rates.
// The zero value is treated as "unset" by consumers that backfill time
// bases (codec contexts, track collections).
type Rational struct {
	Num int64
	Den int64
}

// DefaultTimeBase is the microsecond time base applied to packets and
// tracks that do not declare their own.
var DefaultTimeBase = Rational{Num: 1, Den: 1000000}

// NewRational returns the reduced fraction num/den.
func NewRational(num, den int64) Rational {
	return Rational{Num: num, Den: den}.Reduce()
}

// IsZero reports whether the rational is unset.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

// Float returns the rational as a float64, or 0 for an unset rational.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns den/num.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Reduce returns the rational in lowest terms with a positive denominator.
func (r Rational) Reduce() Rational {
	if r.Num == 0 || r.Den == 0 {
		return Rational{Num: r.Num, Den: r.Den}
	}
	g := gcd64(abs64(r.Num), abs64(r.Den))
	num, den := r.Num/g, r.Den/g
	if den < 0 {
		num, den = -num, -den
	}
	return Rational{Num: num, Den: den}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rescale converts a value expressed in time base from into time base to,
// rounding to the nearest representable value.
func Rescale(v int64, from, to Rational) int64 {
	if from.IsZero() || to.IsZero() {
		return v
	}
	// v * from.Num * to.Den / (from.Den * to.Num), rounded half away from zero.
	num := from.Num * to.Den
	den := from.Den * to.Num
	p := v * num
	if (p >= 0) == (den >= 0) {
		return (p + den/2) / den
	}
	return (p - den/2) / den
}

func gcd64(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
