package lending

import (
	"fmt"

	"kylix/numeric/fixed"
)

// Curve selects the function an InterestRateModel prices borrows with.
type Curve string

const (
	// CurveCosine interpolates between y0, ym and y1 along a cosine arc that
	// bottoms out at the utilisation point xm.
	CurveCosine Curve = "cosine"
	// CurveJump is the kinked linear model: a gentle slope up to the kink and
	// a steep one beyond it.
	CurveJump Curve = "jump"
)

// InterestRateModel is the immutable rate configuration attached to a pool.
// Both parameter sets are stored; Curve decides which one is evaluated.
type InterestRateModel struct {
	Curve Curve

	Y0 fixed.Rate
	Y1 fixed.Rate
	Xm fixed.Rate
	Ym fixed.Rate

	BaseRate fixed.Rate
	Slope1   fixed.Rate
	Slope2   fixed.Rate
	Kink     fixed.Rate
}

// DefaultInterestRateModel returns the cosine curve with the jump parameters
// populated as well.
func DefaultInterestRateModel() InterestRateModel {
	return DefaultConfig().InterestModel()
}

// Validate checks every parameter lies in [0, 1] and the curve is known.
func (m InterestRateModel) Validate() error {
	switch m.Curve {
	case CurveCosine, CurveJump:
	default:
		return fmt.Errorf("%w: unknown curve %q", ErrInvalidInterestModel, m.Curve)
	}
	one := fixed.One()
	for name, v := range map[string]fixed.Rate{
		"y0": m.Y0, "y1": m.Y1, "xm": m.Xm, "ym": m.Ym,
		"base": m.BaseRate, "slope1": m.Slope1, "slope2": m.Slope2, "kink": m.Kink,
	} {
		if v.Cmp(one) > 0 {
			return fmt.Errorf("%w: %s must not exceed 1", ErrInvalidInterestModel, name)
		}
	}
	return nil
}

// BorrowRate evaluates the configured curve at utilisation u.
func (m InterestRateModel) BorrowRate(u fixed.Rate) (fixed.Rate, error) {
	if m.Curve == CurveJump {
		return m.CalculateJumpInterest(u)
	}
	return m.CalculateCosineInterest(u)
}

// CalculateCosineInterest returns
//
//	[y0·(1+C)·(1−H) + y1·(1+C)·H + ym·(1−C)] / 2
//
// where C = cos(2π·u^n), n = −1/log2(xm) and H = 1 when u > xm. The points
// u = 0, u = 1 and u = xm return y0, y1 and ym exactly.
func (m InterestRateModel) CalculateCosineInterest(u fixed.Rate) (fixed.Rate, error) {
	one := fixed.One()
	if u.Cmp(one) > 0 {
		return fixed.Zero(), ErrInvalidUtilisation
	}
	switch {
	case u.IsZero():
		return m.Y0, nil
	case u.Equal(one):
		return m.Y1, nil
	case u.Equal(m.Xm):
		return m.Ym, nil
	}

	logXm, err := fixed.Log2(m.Xm)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	n, err := fixed.SignedFromInt64(-1).Div(logXm)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	un, err := fixed.Pow(u, n)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	x, err := fixed.TwoPi().Mul(un)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	angle, err := fixed.SignedFromRate(x)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	c, err := fixed.Cos(angle)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	unit := fixed.SignedFromInt64(1)
	rising, err := unit.Add(c)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	falling, err := unit.Sub(c)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	risingRate, err := rising.Rate()
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	fallingRate, err := falling.Rate()
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}

	outer := m.Y0
	if u.Cmp(m.Xm) > 0 {
		outer = m.Y1
	}
	a, err := outer.Mul(risingRate)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	b, err := m.Ym.Mul(fallingRate)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	sum, err := a.Add(b)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	rate, err := sum.DivUint64(2)
	return rate, arithmetic(err)
}

// CalculateJumpInterest returns base + u/kink·slope1 up to the kink and
// base + slope1 + slope2·(u−kink)/(1−kink) beyond it.
func (m InterestRateModel) CalculateJumpInterest(u fixed.Rate) (fixed.Rate, error) {
	one := fixed.One()
	if u.Cmp(one) > 0 {
		return fixed.Zero(), ErrInvalidUtilisation
	}
	if u.Cmp(m.Kink) <= 0 {
		if m.Kink.IsZero() {
			return m.BaseRate, nil
		}
		scaled, err := u.Mul(m.Slope1)
		if err != nil {
			return fixed.Zero(), arithmetic(err)
		}
		part, err := scaled.Div(m.Kink)
		if err != nil {
			return fixed.Zero(), arithmetic(err)
		}
		rate, err := m.BaseRate.Add(part)
		return rate, arithmetic(err)
	}
	excess, err := u.Sub(m.Kink)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	span, err := one.Sub(m.Kink)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	steep, err := excess.Mul(m.Slope2)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	steep, err = steep.Div(span)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	rate, err := m.BaseRate.Add(m.Slope1)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	rate, err = rate.Add(steep)
	return rate, arithmetic(err)
}
