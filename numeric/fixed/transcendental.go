package fixed

import "github.com/holiman/uint256"

const (
	maxLog2Iterations = 64
	maxTaylorTerms    = 48
)

var (
	pi     = Rate{inner: *uint256.MustFromDecimal("3141592653589793238")}
	halfPi = Rate{inner: *uint256.MustFromDecimal("1570796326794896619")}
	twoPi  = Rate{inner: *uint256.MustFromDecimal("6283185307179586477")}
	ln2    = Rate{inner: *uint256.MustFromDecimal("693147180559945309")}

	twoScale = *new(uint256.Int).Lsh(scale, 1)

	// exp(x) leaves the 256-bit range a little above x = 136 and rounds to
	// zero below x = -41.5.
	maxExpArg = SignedFromInt64(135)
	minExpArg = SignedFromInt64(-42)
)

// Pi returns π truncated to 18 fractional digits.
func Pi() Rate { return pi }

// TwoPi returns 2π rounded to 18 fractional digits.
func TwoPi() Rate { return twoPi }

// Ln2 returns ln 2 truncated to 18 fractional digits.
func Ln2() Rate { return ln2 }

// Log2 returns the base-2 logarithm of x. The integer part comes from
// normalising x into [1, 2); each further bit is produced by one squaring.
func Log2(x Rate) (Signed, error) {
	if x.IsZero() {
		return Signed{}, ErrDomain
	}
	y := x.inner
	var n int64
	for y.Cmp(&twoScale) >= 0 {
		y.Rsh(&y, 1)
		n++
	}
	for y.Lt(scale) {
		y.Lsh(&y, 1)
		n--
	}
	result := SignedFromInt64(n)
	bit := new(uint256.Int).Rsh(scale, 1)
	for i := 0; i < maxLog2Iterations && !bit.IsZero(); i++ {
		y.MulDivOverflow(&y, &y, scale)
		if y.Cmp(&twoScale) >= 0 {
			y.Rsh(&y, 1)
			result.inner.Add(&result.inner, bit)
		}
		bit.Rsh(bit, 1)
	}
	return result, nil
}

// Ln returns the natural logarithm of x.
func Ln(x Rate) (Signed, error) {
	l, err := Log2(x)
	if err != nil {
		return Signed{}, err
	}
	return l.MulRate(ln2)
}

// Exp returns e^x. The argument is split as k·ln2 + r with r in [0, ln2);
// e^r is summed as a Taylor series and the result shifted by k bits.
func Exp(x Signed) (Rate, error) {
	if x.Cmp(maxExpArg) > 0 {
		return Rate{}, ErrOverflow
	}
	if x.Cmp(minExpArg) < 0 {
		return Rate{}, nil
	}
	a := x.Abs()
	var q, r uint256.Int
	q.DivMod(&a.inner, &ln2.inner, &r)
	k := int64(q.Uint64())
	if x.negative() {
		if r.IsZero() {
			k = -k
		} else {
			k = -(k + 1)
			r.Sub(&ln2.inner, &r)
		}
	}
	sum := expTaylor(&r)
	if k >= 0 {
		if sum.BitLen()+int(k) > 256 {
			return Rate{}, ErrOverflow
		}
		sum.Lsh(&sum, uint(k))
	} else {
		sum.Rsh(&sum, uint(-k))
	}
	return Rate{inner: sum}, nil
}

func expTaylor(r *uint256.Int) uint256.Int {
	sum := *scale
	term := *scale
	for i := uint64(1); i <= maxTaylorTerms; i++ {
		term.MulDivOverflow(&term, r, scale)
		term.Div(&term, uint256.NewInt(i))
		if term.IsZero() {
			break
		}
		sum.Add(&sum, &term)
	}
	return sum
}

// Pow returns x^y computed as exp(y·ln x). Results beyond the exponential
// window saturate to MaxRate or zero.
func Pow(x Rate, y Signed) (Rate, error) {
	switch {
	case y.IsZero():
		return One(), nil
	case x.IsZero():
		if y.Sign() < 0 {
			return Rate{}, ErrDomain
		}
		return Rate{}, nil
	case x.Equal(One()):
		return One(), nil
	}
	l, err := Ln(x)
	if err != nil {
		return Rate{}, err
	}
	t, err := y.Mul(l)
	if err != nil {
		if y.Sign()*l.Sign() > 0 {
			return MaxRate(), nil
		}
		return Rate{}, nil
	}
	if t.Cmp(maxExpArg) > 0 {
		return MaxRate(), nil
	}
	return Exp(t)
}

// Cos returns the cosine of x (radians), bounded to [-1, 1]. The argument is
// folded into [0, π/2] before the Taylor series runs.
func Cos(x Signed) (Signed, error) {
	a := x.Abs().inner
	a.Mod(&a, &twoPi.inner)
	if a.Gt(&pi.inner) {
		a.Sub(&twoPi.inner, &a)
	}
	flip := false
	if a.Gt(&halfPi.inner) {
		a.Sub(&pi.inner, &a)
		flip = true
	}
	var a2 uint256.Int
	a2.MulDivOverflow(&a, &a, scale)

	sum := SignedFromInt64(1)
	term := *scale
	for i := uint64(1); i <= maxTaylorTerms; i++ {
		term.MulDivOverflow(&term, &a2, scale)
		term.Div(&term, uint256.NewInt((2*i-1)*(2*i)))
		if term.IsZero() {
			break
		}
		if i%2 == 1 {
			sum.inner.Sub(&sum.inner, &term)
		} else {
			sum.inner.Add(&sum.inner, &term)
		}
	}
	one := SignedFromInt64(1)
	if sum.Cmp(one) > 0 {
		sum = one
	}
	if sum.Sign() < 0 {
		sum = Signed{}
	}
	if flip {
		return sum.Neg()
	}
	return sum, nil
}
