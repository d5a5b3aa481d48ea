package fixed

import "github.com/holiman/uint256"

// Signed is a two's complement fixed-point value sharing Rate's scale. It is
// used for the intermediate terms of the transcendental functions.
type Signed struct {
	inner uint256.Int
}

var minSigned = func() uint256.Int {
	var v uint256.Int
	v[3] = 1 << 63
	return v
}()

// SignedFromRate converts an unsigned value, failing when it does not fit in
// 255 bits.
func SignedFromRate(r Rate) (Signed, error) {
	if r.inner[3]>>63 == 1 {
		return Signed{}, ErrOverflow
	}
	return Signed{inner: r.inner}, nil
}

// SignedFromInt64 converts a whole signed number.
func SignedFromInt64(n int64) Signed {
	var s Signed
	if n < 0 {
		s.inner.Mul(uint256.NewInt(uint64(-n)), scale)
		s.inner.Neg(&s.inner)
		return s
	}
	s.inner.Mul(uint256.NewInt(uint64(n)), scale)
	return s
}

// Rate converts back to unsigned, failing with ErrDomain for negative values.
func (s Signed) Rate() (Rate, error) {
	if s.Sign() < 0 {
		return Rate{}, ErrDomain
	}
	return Rate{inner: s.inner}, nil
}

// Sign returns -1, 0 or +1.
func (s Signed) Sign() int { return s.inner.Sign() }

func (s Signed) IsZero() bool { return s.inner.IsZero() }

// Cmp compares s and o as signed values.
func (s Signed) Cmp(o Signed) int {
	switch {
	case s.inner.Eq(&o.inner):
		return 0
	case s.inner.Slt(&o.inner):
		return -1
	default:
		return 1
	}
}

// Neg returns -s.
func (s Signed) Neg() (Signed, error) {
	if s.inner.Eq(&minSigned) {
		return Signed{}, ErrOverflow
	}
	var out Signed
	out.inner.Neg(&s.inner)
	return out, nil
}

// Abs returns |s| as an unsigned value.
func (s Signed) Abs() Rate {
	var out Rate
	out.inner.Abs(&s.inner)
	return out
}

func (s Signed) Add(o Signed) (Signed, error) {
	var out Signed
	out.inner.Add(&s.inner, &o.inner)
	sa, so, sr := s.negative(), o.negative(), out.negative()
	if sa == so && sr != sa {
		return Signed{}, ErrOverflow
	}
	return out, nil
}

func (s Signed) Sub(o Signed) (Signed, error) {
	neg, err := o.Neg()
	if err != nil {
		return Signed{}, err
	}
	return s.Add(neg)
}

func (s Signed) Mul(o Signed) (Signed, error) {
	a, b := s.Abs(), o.Abs()
	var out Signed
	if _, overflow := out.inner.MulDivOverflow(&a.inner, &b.inner, scale); overflow || out.negative() {
		return Signed{}, ErrOverflow
	}
	if s.negative() != o.negative() {
		out.inner.Neg(&out.inner)
	}
	return out, nil
}

func (s Signed) Div(o Signed) (Signed, error) {
	if o.inner.IsZero() {
		return Signed{}, ErrDivisionByZero
	}
	a, b := s.Abs(), o.Abs()
	var out Signed
	if _, overflow := out.inner.MulDivOverflow(&a.inner, scale, &b.inner); overflow || out.negative() {
		return Signed{}, ErrOverflow
	}
	if s.negative() != o.negative() {
		out.inner.Neg(&out.inner)
	}
	return out, nil
}

// MulRate multiplies by an unsigned factor.
func (s Signed) MulRate(r Rate) (Signed, error) {
	o, err := SignedFromRate(r)
	if err != nil {
		return Signed{}, err
	}
	return s.Mul(o)
}

func (s Signed) String() string {
	if s.negative() {
		return "-" + s.Abs().String()
	}
	return Rate{inner: s.inner}.String()
}

func (s Signed) negative() bool { return s.inner[3]>>63 == 1 }
