package fixed

import "github.com/holiman/uint256"

// MulBalance returns floor(amount × r) for a raw token amount.
func MulBalance(amount *uint256.Int, r Rate) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, &r.inner, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// DivBalance returns floor(amount / r) for a raw token amount.
func DivBalance(amount *uint256.Int, r Rate) (*uint256.Int, error) {
	if r.inner.IsZero() {
		return nil, ErrDivisionByZero
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, scale, &r.inner)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MulDivBalance returns floor(amount × num / den). It is used to rescale a
// balance between two index values without an intermediate rounding step.
func MulDivBalance(amount *uint256.Int, num, den Rate) (*uint256.Int, error) {
	if den.inner.IsZero() {
		return nil, ErrDivisionByZero
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, &num.inner, &den.inner)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckedSub returns a - b or ErrOverflow when b > a.
func CheckedSub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(orZero(a), orZero(b))
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MinBalance returns the smaller of a and b as a fresh value.
func MinBalance(a, b *uint256.Int) *uint256.Int {
	a, b = orZero(a), orZero(b)
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

var zeroBalance uint256.Int

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return &zeroBalance
	}
	return v
}
