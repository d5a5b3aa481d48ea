package lending

import (
	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/numeric/fixed"
)

// LoanKey identifies a collateralised position.
type LoanKey struct {
	Account         crypto.Address
	Asset           assets.ID
	CollateralAsset assets.ID
}

// Loan is a single collateralised debt. BorrowedBalance is expressed at the
// borrow index captured in BorrowIndexAtBorrowTime and includes interest
// folded in by earlier rebases. Principal is the part of it that was lent out
// of the pool and is what the pool's borrowed balance accounts for.
type Loan struct {
	BorrowedBalance         *uint256.Int
	Principal               *uint256.Int
	CollateralBalance       *uint256.Int
	BorrowIndexAtBorrowTime fixed.Rate
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	return &Loan{
		BorrowedBalance:         balanceOrZero(l.BorrowedBalance).Clone(),
		Principal:               balanceOrZero(l.Principal).Clone(),
		CollateralBalance:       balanceOrZero(l.CollateralBalance).Clone(),
		BorrowIndexAtBorrowTime: l.BorrowIndexAtBorrowTime,
	}
}

// Rebase folds interest accrued since the snapshot into the balance, adds
// amount and collateral, and moves the snapshot to the pool's current index.
func (l *Loan) Rebase(pool *Pool, amount, collateral *uint256.Int) error {
	repayable, err := pool.RepayableAmount(l)
	if err != nil {
		return err
	}
	borrowed, err := fixed.CheckedAdd(repayable, amount)
	if err != nil {
		return arithmetic(err)
	}
	principal, err := fixed.CheckedAdd(balanceOrZero(l.Principal), amount)
	if err != nil {
		return arithmetic(err)
	}
	held, err := fixed.CheckedAdd(l.CollateralBalance, collateral)
	if err != nil {
		return arithmetic(err)
	}
	l.BorrowedBalance = borrowed
	l.Principal = principal
	l.CollateralBalance = held
	l.BorrowIndexAtBorrowTime = pool.BorrowIndex
	return nil
}

// RepayPartial reduces the debt, principal and collateral by the given amounts.
func (l *Loan) RepayPartial(borrowed, principal, collateral *uint256.Int) error {
	remaining, err := fixed.CheckedSub(l.BorrowedBalance, borrowed)
	if err != nil {
		return arithmetic(err)
	}
	outstanding, err := fixed.CheckedSub(balanceOrZero(l.Principal), principal)
	if err != nil {
		return arithmetic(err)
	}
	held, err := fixed.CheckedSub(l.CollateralBalance, collateral)
	if err != nil {
		return arithmetic(err)
	}
	l.BorrowedBalance = remaining
	l.Principal = outstanding
	l.CollateralBalance = held
	return nil
}

// SupplyIndex records the pool supply index at a depositor's last mint.
type SupplyIndex struct {
	SupplyIndex           fixed.Rate
	LastAccruedInterestAt uint64
}
