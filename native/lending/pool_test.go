package lending

import (
	"testing"

	"github.com/holiman/uint256"

	"kylix/numeric/fixed"
)

func jumpParams() PoolParams {
	cfg := DefaultConfig()
	cfg.RateCurve = string(CurveJump)
	return cfg.PoolParams()
}

func TestIdlePoolChargesNothing(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(10_000), 0, jumpParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	u, err := pool.UtilisationRatio()
	if err != nil || !u.IsZero() {
		t.Fatalf("expected zero utilisation, got %s (%v)", u, err)
	}
	rate, err := pool.BorrowInterestRate()
	if err != nil || !rate.IsZero() {
		t.Fatalf("expected zero borrow rate, got %s (%v)", rate, err)
	}
}

func TestHalfUtilisedPoolRates(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(5_000), 0, jumpParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.BorrowedBalance = uint256.NewInt(5_000)

	u, err := pool.UtilisationRatio()
	if err != nil {
		t.Fatalf("utilisation: %v", err)
	}
	if !u.Equal(fixed.MustParse("0.5")) {
		t.Fatalf("expected 0.5 utilisation, got %s", u)
	}
	borrow, err := pool.BorrowInterestRate()
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	if !borrow.Equal(fixed.MustParse("0.045")) {
		t.Fatalf("expected 4.5%% borrow rate, got %s", borrow)
	}
	supply, err := pool.SupplyInterestRate()
	if err != nil {
		t.Fatalf("supply rate: %v", err)
	}
	if !supply.Equal(fixed.MustParse("0.02025")) {
		t.Fatalf("expected 2.025%% supply rate, got %s", supply)
	}
}

func TestIndexesAreMonotone(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(4_000), 0, DefaultConfig().PoolParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.BorrowedBalance = uint256.NewInt(6_000)

	now := uint64(0)
	prevSupply, prevBorrow := pool.SupplyIndex, pool.BorrowIndex
	for _, step := range []uint64{1, 60, 3_600, 86_400, SecondsPerYear} {
		now += step
		if err := pool.UpdateIndexes(now); err != nil {
			t.Fatalf("update at %d: %v", now, err)
		}
		if pool.SupplyIndex.Cmp(prevSupply) < 0 || pool.BorrowIndex.Cmp(prevBorrow) < 0 {
			t.Fatalf("index decreased at %d", now)
		}
		if pool.LastAccruedInterestAt != now {
			t.Fatalf("timestamp not advanced")
		}
		prevSupply, prevBorrow = pool.SupplyIndex, pool.BorrowIndex
	}
	if pool.BorrowIndex.Cmp(pool.SupplyIndex) <= 0 {
		t.Fatalf("borrow index should outgrow supply index: %s vs %s", pool.BorrowIndex, pool.SupplyIndex)
	}

	if err := pool.UpdateIndexes(now - 10); err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if !pool.BorrowIndex.Equal(prevBorrow) || pool.LastAccruedInterestAt != now {
		t.Fatalf("stale timestamp must not change the pool")
	}
}

func TestUpdateIndexesSingleYearJump(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(5_000), 0, jumpParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.BorrowedBalance = uint256.NewInt(5_000)
	if err := pool.UpdateIndexes(SecondsPerYear); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !pool.SupplyIndex.Equal(fixed.MustParse("1.02025")) {
		t.Fatalf("unexpected supply index %s", pool.SupplyIndex)
	}
	closeTo(t, pool.BorrowIndex, "1.046027859908716942")
}

func TestLoanRepayableAmount(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(1_000), 0, jumpParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	loan := &Loan{
		BorrowedBalance:         uint256.NewInt(1_000),
		Principal:               uint256.NewInt(1_000),
		CollateralBalance:       uint256.NewInt(4_000),
		BorrowIndexAtBorrowTime: fixed.One(),
	}
	pool.BorrowIndex = fixed.MustParse("1.1")
	repayable, err := pool.RepayableAmount(loan)
	if err != nil {
		t.Fatalf("repayable: %v", err)
	}
	if repayable.Uint64() != 1_100 {
		t.Fatalf("expected 1100, got %s", repayable)
	}

	if err := loan.Rebase(pool, uint256.NewInt(100), uint256.NewInt(500)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if loan.BorrowedBalance.Uint64() != 1_200 || loan.CollateralBalance.Uint64() != 4_500 {
		t.Fatalf("unexpected rebased loan %s/%s", loan.BorrowedBalance, loan.CollateralBalance)
	}
	if loan.Principal.Uint64() != 1_100 {
		t.Fatalf("principal should only grow by the new amount, got %s", loan.Principal)
	}
	if !loan.BorrowIndexAtBorrowTime.Equal(pool.BorrowIndex) {
		t.Fatalf("snapshot not moved to current index")
	}
}

func TestMoveAssetOnRepayCapsPrincipal(t *testing.T) {
	pool, err := NewPool(100, 2, uint256.NewInt(900), 0, jumpParams())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := pool.MoveAssetOnBorrow(uint256.NewInt(100)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := pool.MoveAssetOnBorrow(uint256.NewInt(900)); err == nil {
		t.Fatalf("expected overdraw to fail")
	}
	if err := pool.MoveAssetOnRepay(uint256.NewInt(55), uint256.NewInt(50)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if pool.ReserveBalance.Uint64() != 855 || pool.BorrowedBalance.Uint64() != 50 {
		t.Fatalf("interest must not retire principal: reserve=%s borrowed=%s", pool.ReserveBalance, pool.BorrowedBalance)
	}
	if err := pool.MoveAssetOnRepay(uint256.NewInt(70), uint256.NewInt(60)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if pool.ReserveBalance.Uint64() != 925 || !pool.BorrowedBalance.IsZero() {
		t.Fatalf("unexpected balances reserve=%s borrowed=%s", pool.ReserveBalance, pool.BorrowedBalance)
	}
}
