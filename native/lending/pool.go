package lending

import (
	"github.com/holiman/uint256"

	"kylix/native/assets"
	"kylix/numeric/fixed"
)

// SecondsPerYear converts annual rates into per-second accrual.
const SecondsPerYear = 31_536_000

// PoolParams are the parameters fixed at pool creation.
type PoolParams struct {
	InterestModel        InterestRateModel
	ReserveFactor        fixed.Rate
	CollateralFactor     fixed.Rate
	LiquidationThreshold fixed.Rate
}

// Pool holds the liquidity and accrual state of one underlying asset. The
// pool id doubles as the id of its LP share token.
type Pool struct {
	ID                    assets.ID
	Asset                 assets.ID
	ReserveBalance        *uint256.Int
	BorrowedBalance       *uint256.Int
	Activated             bool
	InterestModel         InterestRateModel
	ReserveFactor         fixed.Rate
	CollateralFactor      fixed.Rate
	LiquidationThreshold  fixed.Rate
	BorrowIndex           fixed.Rate
	SupplyIndex           fixed.Rate
	LastAccruedInterestAt uint64
}

// NewPool returns an inactive pool seeded with balance whose indexes start
// at 1.0.
func NewPool(id, asset assets.ID, balance *uint256.Int, now uint64, params PoolParams) (*Pool, error) {
	reserve := new(uint256.Int)
	if balance != nil {
		reserve.Set(balance)
	}
	pool := &Pool{
		ID:                    id,
		Asset:                 asset,
		ReserveBalance:        reserve,
		BorrowedBalance:       new(uint256.Int),
		InterestModel:         params.InterestModel,
		ReserveFactor:         params.ReserveFactor,
		CollateralFactor:      params.CollateralFactor,
		LiquidationThreshold:  params.LiquidationThreshold,
		BorrowIndex:           fixed.One(),
		SupplyIndex:           fixed.One(),
		LastAccruedInterestAt: now,
	}
	if err := pool.UpdateIndexes(now); err != nil {
		return nil, err
	}
	return pool, nil
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ReserveBalance = balanceOrZero(p.ReserveBalance).Clone()
	clone.BorrowedBalance = balanceOrZero(p.BorrowedBalance).Clone()
	return &clone
}

// IsEmpty reports whether the pool holds no undeployed liquidity.
func (p *Pool) IsEmpty() bool {
	return balanceOrZero(p.ReserveBalance).IsZero()
}

func (p *Pool) IsActive() bool { return p.Activated }

// UtilisationRatio returns borrowed / (borrowed + reserve), or zero for a pool
// with no liquidity at all.
func (p *Pool) UtilisationRatio() (fixed.Rate, error) {
	borrowed := balanceOrZero(p.BorrowedBalance)
	total, err := fixed.CheckedAdd(borrowed, p.ReserveBalance)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	if total.IsZero() {
		return fixed.Zero(), nil
	}
	u, err := fixed.Ratio(borrowed, total)
	return u, arithmetic(err)
}

// BorrowInterestRate evaluates the pool's curve at the current utilisation.
// A pool with nothing borrowed charges nothing.
func (p *Pool) BorrowInterestRate() (fixed.Rate, error) {
	if balanceOrZero(p.BorrowedBalance).IsZero() {
		return fixed.Zero(), nil
	}
	u, err := p.UtilisationRatio()
	if err != nil {
		return fixed.Zero(), err
	}
	return p.InterestModel.BorrowRate(u)
}

// SupplyInterestRate returns borrow_rate × utilisation × (1 − reserve_factor).
func (p *Pool) SupplyInterestRate() (fixed.Rate, error) {
	borrowRate, err := p.BorrowInterestRate()
	if err != nil || borrowRate.IsZero() {
		return fixed.Zero(), err
	}
	u, err := p.UtilisationRatio()
	if err != nil {
		return fixed.Zero(), err
	}
	keep, err := fixed.One().Sub(p.ReserveFactor)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	rate, err := borrowRate.Mul(u)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	rate, err = rate.Mul(keep)
	return rate, arithmetic(err)
}

// UpdateIndexes accrues interest up to now. The supply index grows linearly
// and is updated before the borrow index, which compounds continuously. The
// call is a no-op unless now is past the last accrual, and on error the pool
// is left untouched.
func (p *Pool) UpdateIndexes(now uint64) error {
	if p.LastAccruedInterestAt >= now {
		return nil
	}
	elapsed := now - p.LastAccruedInterestAt

	borrowRate, err := p.BorrowInterestRate()
	if err != nil {
		return err
	}
	supplyRate, err := p.SupplyInterestRate()
	if err != nil {
		return err
	}

	supplyIndex, err := p.linearGrowth(supplyRate, elapsed)
	if err != nil {
		return err
	}
	borrowIndex, err := p.compoundGrowth(borrowRate, elapsed)
	if err != nil {
		return err
	}

	p.SupplyIndex = supplyIndex
	p.BorrowIndex = borrowIndex
	p.LastAccruedInterestAt = now
	return nil
}

func (p *Pool) linearGrowth(rate fixed.Rate, elapsed uint64) (fixed.Rate, error) {
	accrued, err := rate.MulUint64(elapsed)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	accrued, err = accrued.DivUint64(SecondsPerYear)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	increment, err := fixed.One().Add(accrued)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	index, err := p.SupplyIndex.Mul(increment)
	return index, arithmetic(err)
}

func (p *Pool) compoundGrowth(rate fixed.Rate, elapsed uint64) (fixed.Rate, error) {
	exponent, err := rate.MulUint64(elapsed)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	exponent, err = exponent.DivUint64(SecondsPerYear)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	signed, err := fixed.SignedFromRate(exponent)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	increment, err := fixed.Exp(signed)
	if err != nil {
		return fixed.Zero(), arithmetic(err)
	}
	index, err := p.BorrowIndex.Mul(increment)
	return index, arithmetic(err)
}

// ScaledSupplyBalance converts a deposit into LP share units.
func (p *Pool) ScaledSupplyBalance(deposit *uint256.Int) (*uint256.Int, error) {
	out, err := fixed.DivBalance(deposit, p.SupplyIndex)
	return out, arithmetic(err)
}

// ScaledBorrowBalance converts an amount into index-independent debt units.
func (p *Pool) ScaledBorrowBalance(amount *uint256.Int) (*uint256.Int, error) {
	out, err := fixed.DivBalance(amount, p.BorrowIndex)
	return out, arithmetic(err)
}

// AccruedDeposit converts LP share units back into underlying units.
func (p *Pool) AccruedDeposit(scaled *uint256.Int) (*uint256.Int, error) {
	out, err := fixed.MulBalance(scaled, p.SupplyIndex)
	return out, arithmetic(err)
}

// RepayableAmount returns the loan balance grown by the borrow index since
// the loan's snapshot.
func (p *Pool) RepayableAmount(loan *Loan) (*uint256.Int, error) {
	if loan == nil {
		return new(uint256.Int), nil
	}
	out, err := fixed.MulDivBalance(loan.BorrowedBalance, p.BorrowIndex, loan.BorrowIndexAtBorrowTime)
	return out, arithmetic(err)
}

// MaxBorrowAmount returns collateral × collateral_factor.
func (p *Pool) MaxBorrowAmount(collateral *uint256.Int) (*uint256.Int, error) {
	out, err := fixed.MulBalance(collateral, p.CollateralFactor)
	return out, arithmetic(err)
}

// MoveAssetOnBorrow shifts amount from the reserve into the borrowed balance.
func (p *Pool) MoveAssetOnBorrow(amount *uint256.Int) error {
	reserve, err := fixed.CheckedSub(p.ReserveBalance, amount)
	if err != nil {
		return arithmetic(err)
	}
	borrowed, err := fixed.CheckedAdd(p.BorrowedBalance, amount)
	if err != nil {
		return arithmetic(err)
	}
	p.ReserveBalance, p.BorrowedBalance = reserve, borrowed
	return nil
}

// MoveAssetOnRepay returns pay to the reserve and retires principal from the
// borrowed balance. The borrowed balance tracks principal only; the part of
// pay above principal is interest earned by the pool.
func (p *Pool) MoveAssetOnRepay(pay, principal *uint256.Int) error {
	principal = fixed.MinBalance(balanceOrZero(principal), balanceOrZero(p.BorrowedBalance))
	borrowed, err := fixed.CheckedSub(p.BorrowedBalance, principal)
	if err != nil {
		return arithmetic(err)
	}
	reserve, err := fixed.CheckedAdd(p.ReserveBalance, pay)
	if err != nil {
		return arithmetic(err)
	}
	p.ReserveBalance, p.BorrowedBalance = reserve, borrowed
	return nil
}

func balanceOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
