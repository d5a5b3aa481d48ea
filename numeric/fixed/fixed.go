// Package fixed implements deterministic fixed-point arithmetic with 18
// fractional digits on top of 256-bit integers. Every operation reports
// overflow, division by zero and domain violations as errors.
package fixed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional decimal digits carried by Rate.
const Decimals = 18

var (
	ErrOverflow       = errors.New("fixed: arithmetic overflow")
	ErrDivisionByZero = errors.New("fixed: division by zero")
	ErrDomain         = errors.New("fixed: argument outside function domain")
	ErrSyntax         = errors.New("fixed: invalid decimal literal")
)

var (
	scale    = uint256.NewInt(1_000_000_000_000_000_000)
	bpsScale = uint256.NewInt(100_000_000_000_000)
)

// Rate is an unsigned fixed-point value. The zero value is 0.
type Rate struct {
	inner uint256.Int
}

// Zero returns 0.
func Zero() Rate { return Rate{} }

// One returns 1.0.
func One() Rate {
	var r Rate
	r.inner.Set(scale)
	return r
}

// MaxRate returns the largest representable Rate.
func MaxRate() Rate {
	var r Rate
	r.inner.SetAllOne()
	return r
}

// FromInner wraps a raw scaled integer. A nil value yields zero.
func FromInner(v *uint256.Int) Rate {
	var r Rate
	if v != nil {
		r.inner.Set(v)
	}
	return r
}

// FromUint64 converts a whole number.
func FromUint64(n uint64) Rate {
	var r Rate
	r.inner.Mul(uint256.NewInt(n), scale)
	return r
}

// FromBps converts basis points (1/10_000) to a Rate.
func FromBps(bps uint64) Rate {
	var r Rate
	r.inner.Mul(uint256.NewInt(bps), bpsScale)
	return r
}

// FromRational returns n/d, truncated to 18 fractional digits.
func FromRational(n, d uint64) (Rate, error) {
	if d == 0 {
		return Rate{}, ErrDivisionByZero
	}
	var r Rate
	r.inner.Mul(uint256.NewInt(n), scale)
	r.inner.Div(&r.inner, uint256.NewInt(d))
	return r, nil
}

// MustRational is FromRational for compile-time constants.
func MustRational(n, d uint64) Rate {
	r, err := FromRational(n, d)
	if err != nil {
		panic(err)
	}
	return r
}

// Ratio returns n/d for two balances.
func Ratio(n, d *uint256.Int) (Rate, error) {
	if d == nil || d.IsZero() {
		return Rate{}, ErrDivisionByZero
	}
	if n == nil {
		return Rate{}, nil
	}
	var r Rate
	if _, overflow := r.inner.MulDivOverflow(n, scale, d); overflow {
		return Rate{}, ErrOverflow
	}
	return r, nil
}

// Parse reads a non-negative decimal literal such as "0.045" or "12".
func Parse(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rate{}, ErrSyntax
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > Decimals) {
		return Rate{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return Rate{}, fmt.Errorf("%w: %q", ErrSyntax, s)
			}
		}
	}
	w, err := uint256.FromDecimal(whole)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	var r Rate
	if _, overflow := r.inner.MulOverflow(w, scale); overflow {
		return Rate{}, ErrOverflow
	}
	if hasFrac {
		f, err := uint256.FromDecimal(frac + strings.Repeat("0", Decimals-len(frac)))
		if err != nil {
			return Rate{}, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		if _, overflow := r.inner.AddOverflow(&r.inner, f); overflow {
			return Rate{}, ErrOverflow
		}
	}
	return r, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Rate {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Inner returns a copy of the raw scaled integer.
func (r Rate) Inner() *uint256.Int {
	return new(uint256.Int).Set(&r.inner)
}

func (r Rate) IsZero() bool { return r.inner.IsZero() }

// Cmp compares r and o and returns -1, 0 or +1.
func (r Rate) Cmp(o Rate) int { return r.inner.Cmp(&o.inner) }

// Equal reports whether r and o carry the same value.
func (r Rate) Equal(o Rate) bool { return r.inner.Eq(&o.inner) }

func (r Rate) Add(o Rate) (Rate, error) {
	var out Rate
	if _, overflow := out.inner.AddOverflow(&r.inner, &o.inner); overflow {
		return Rate{}, ErrOverflow
	}
	return out, nil
}

// Sub fails with ErrOverflow when o > r.
func (r Rate) Sub(o Rate) (Rate, error) {
	var out Rate
	if _, underflow := out.inner.SubOverflow(&r.inner, &o.inner); underflow {
		return Rate{}, ErrOverflow
	}
	return out, nil
}

func (r Rate) Mul(o Rate) (Rate, error) {
	var out Rate
	if _, overflow := out.inner.MulDivOverflow(&r.inner, &o.inner, scale); overflow {
		return Rate{}, ErrOverflow
	}
	return out, nil
}

func (r Rate) Div(o Rate) (Rate, error) {
	if o.inner.IsZero() {
		return Rate{}, ErrDivisionByZero
	}
	var out Rate
	if _, overflow := out.inner.MulDivOverflow(&r.inner, scale, &o.inner); overflow {
		return Rate{}, ErrOverflow
	}
	return out, nil
}

// MulUint64 multiplies by a whole number.
func (r Rate) MulUint64(n uint64) (Rate, error) {
	var out Rate
	if _, overflow := out.inner.MulOverflow(&r.inner, uint256.NewInt(n)); overflow {
		return Rate{}, ErrOverflow
	}
	return out, nil
}

// DivUint64 divides by a whole number, truncating.
func (r Rate) DivUint64(n uint64) (Rate, error) {
	if n == 0 {
		return Rate{}, ErrDivisionByZero
	}
	var out Rate
	out.inner.Div(&r.inner, uint256.NewInt(n))
	return out, nil
}

// Min returns the smaller of a and b.
func Min(a, b Rate) Rate {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the value as a plain decimal without trailing zeros.
func (r Rate) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&r.inner, scale, &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	digits := frac.Dec()
	digits = strings.Repeat("0", Decimals-len(digits)) + digits
	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// Float64 approximates the value for metrics and display. It never feeds
// back into ledger arithmetic.
func (r Rate) Float64() float64 {
	f, err := strconv.ParseFloat(r.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rate) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
