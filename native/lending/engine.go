package lending

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"kylix/core/events"
	"kylix/crypto"
	"kylix/native/assets"
	nativecommon "kylix/native/common"
	"kylix/numeric/fixed"
)

const moduleName = "lending"

type engineState interface {
	GetPool(asset assets.ID) (*Pool, error)
	PutPool(pool *Pool) error
	ForEachPool(fn func(*Pool) error) error
	GetLoan(key LoanKey) (*Loan, error)
	PutLoan(key LoanKey, loan *Loan) error
	DeleteLoan(key LoanKey) error
	ForEachLoan(account crypto.Address, fn func(LoanKey, *Loan) error) error
	GetAssetPrice(asset, base assets.ID) (fixed.Rate, bool, error)
	PutAssetPrice(asset, base assets.ID, price fixed.Rate) error
	GetSupplyIndex(account crypto.Address, asset assets.ID) (*SupplyIndex, error)
	PutSupplyIndex(account crypto.Address, asset assets.ID, index *SupplyIndex) error
}

// TokenLedger is the fungible-token capability the engine moves funds with.
type TokenLedger interface {
	Balance(id assets.ID, who crypto.Address) (*uint256.Int, error)
	Transfer(id assets.ID, from, to crypto.Address, amount *uint256.Int, preservation assets.Preservation) error
	MintInto(id assets.ID, who crypto.Address, amount *uint256.Int) error
	BurnFrom(id assets.ID, who crypto.Address, amount *uint256.Int) error
	Create(id assets.ID, owner crypto.Address, meta assets.Metadata) error
	TotalIssuance(id assets.ID) (*uint256.Int, error)
	AssetExists(id assets.ID) (bool, error)
	Metadata(id assets.ID) (assets.Metadata, error)
}

// Clock reports the current time in seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 { return uint64(time.Now().Unix()) }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 { return f() }

// Engine orchestrates the state transitions of the lending module. It is not
// safe for concurrent use; callers serialise operations and commit or discard
// the backing state after each one.
type Engine struct {
	state   engineState
	tokens  TokenLedger
	clock   Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	custody crypto.Address
	anchor  assets.ID
	params  PoolParams
}

// NewEngine constructs an engine with the parameters new pools receive.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		clock:   SystemClock{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		custody: cfg.CustodyAccount(),
		anchor:  cfg.Anchor(),
		params:  cfg.PoolParams(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the engine to the token ledger.
func (e *Engine) SetTokens(tokens TokenLedger) { e.tokens = tokens }

func (e *Engine) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock{}
	}
	e.clock = clock
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", moduleName))
}

// Custody returns the account holding reserves and collateral.
func (e *Engine) Custody() crypto.Address { return e.custody }

// Anchor returns the asset cross prices are derived through.
func (e *Engine) Anchor() assets.ID { return e.anchor }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func (e *Engine) mutable() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// CreateLendingPool creates an inactive pool for asset seeded with balance
// from who, registers its LP token under id and mints who's share.
func (e *Engine) CreateLendingPool(who crypto.Address, id, asset assets.ID, balance *uint256.Int) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if balance == nil || balance.IsZero() {
		return ErrInvalidLiquiditySupply
	}
	existing, err := e.state.GetPool(asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: asset %d", ErrLendingPoolAlreadyExists, asset)
	}
	taken, err := e.tokens.AssetExists(id)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %d", ErrIDAlreadyExists, id)
	}
	if err := e.requireBalance(asset, who, balance); err != nil {
		return err
	}
	underlying, err := e.tokens.Metadata(asset)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	pool, err := NewPool(id, asset, balance, now, e.params)
	if err != nil {
		return err
	}
	scaled, err := pool.ScaledSupplyBalance(balance)
	if err != nil {
		return err
	}

	if err := e.tokens.Transfer(asset, who, e.custody, balance, assets.Expendable); err != nil {
		return err
	}
	if err := e.tokens.Create(id, e.custody, shareMetadata(underlying)); err != nil {
		return err
	}
	minted, err := e.updateAndMint(who, pool, scaled, now)
	if err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.LendingPoolAdded{Who: who, PoolID: uint32(id), Asset: uint32(asset), Balance: balance.Clone()})
	e.emitter.Emit(events.LPTokenMinted{Who: who, PoolID: uint32(id), Amount: minted})
	e.logger.Info("lending pool created",
		slog.Uint64("asset", uint64(asset)),
		slog.Uint64("pool_id", uint64(id)),
		slog.String("balance", balance.Dec()))
	return nil
}

// ActivateLendingPool opens a pending pool for supply and borrowing.
func (e *Engine) ActivateLendingPool(asset assets.ID) error {
	if err := e.mutable(); err != nil {
		return err
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if pool.IsActive() {
		return ErrLendingPoolAlreadyActivated
	}
	if pool.IsEmpty() {
		return ErrLendingPoolIsEmpty
	}
	pool.Activated = true
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPoolStatus{Type: events.TypeLendingPoolActivated, Asset: uint32(asset)})
	e.logger.Info("lending pool activated", slog.Uint64("asset", uint64(asset)))
	return nil
}

// DeactivateLendingPool returns an active pool to pending.
func (e *Engine) DeactivateLendingPool(asset assets.ID) error {
	if err := e.mutable(); err != nil {
		return err
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if !pool.IsActive() {
		return ErrLendingPoolAlreadyDeactivated
	}
	pool.Activated = false
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPoolStatus{Type: events.TypeLendingPoolDeactivated, Asset: uint32(asset)})
	e.logger.Info("lending pool deactivated", slog.Uint64("asset", uint64(asset)))
	return nil
}

// UpdatePoolRateModel announces a rate model change for asset. Pool
// parameters are immutable, so only the notification is published.
func (e *Engine) UpdatePoolRateModel(asset assets.ID) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if _, err := e.loadPool(asset); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPoolStatus{Type: events.TypeLendingPoolRateModelUpdated, Asset: uint32(asset)})
	return nil
}

// UpdatePoolKink announces a kink change for asset. Like UpdatePoolRateModel
// it does not mutate the pool.
func (e *Engine) UpdatePoolKink(asset assets.ID) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if _, err := e.loadPool(asset); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPoolStatus{Type: events.TypeLendingPoolKinkUpdated, Asset: uint32(asset)})
	return nil
}

// Supply deposits balance of asset into its active pool and mints LP shares,
// including interest accrued on who's existing shares.
func (e *Engine) Supply(who crypto.Address, asset assets.ID, balance *uint256.Int) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if balance == nil || balance.IsZero() {
		return ErrInvalidLiquiditySupply
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if !pool.IsActive() {
		return ErrLendingPoolNotActive
	}
	if err := e.requireBalance(asset, who, balance); err != nil {
		return err
	}

	now := e.clock.Now()
	if err := pool.UpdateIndexes(now); err != nil {
		return err
	}
	reserve, err := fixed.CheckedAdd(pool.ReserveBalance, balance)
	if err != nil {
		return arithmetic(err)
	}
	scaled, err := pool.ScaledSupplyBalance(balance)
	if err != nil {
		return err
	}
	pool.ReserveBalance = reserve

	if err := e.tokens.Transfer(asset, who, e.custody, balance, assets.Expendable); err != nil {
		return err
	}
	minted, err := e.updateAndMint(who, pool, scaled, now)
	if err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.Deposit{Type: events.TypeDepositSupplied, Who: who, Asset: uint32(asset), Balance: balance.Clone()})
	e.emitter.Emit(events.LPTokenMinted{Who: who, PoolID: uint32(pool.ID), Amount: minted})
	e.logger.Debug("liquidity supplied",
		slog.Uint64("asset", uint64(asset)),
		slog.String("balance", balance.Dec()),
		slog.String("minted", minted.Dec()))
	return nil
}

// Withdraw returns balance of asset to who and burns the matching LP shares.
func (e *Engine) Withdraw(who crypto.Address, asset assets.ID, balance *uint256.Int) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if balance == nil || balance.IsZero() {
		return ErrInvalidLiquidityWithdrawal
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if balanceOrZero(pool.ReserveBalance).Lt(balance) {
		return ErrNotEnoughLiquiditySupply
	}
	if err := pool.UpdateIndexes(e.clock.Now()); err != nil {
		return err
	}
	shares, err := e.tokens.Balance(pool.ID, who)
	if err != nil {
		return err
	}
	eligible, err := pool.AccruedDeposit(shares)
	if err != nil {
		return err
	}
	if eligible.Lt(balance) {
		return ErrNotEnoughEligibleLiquidityToWithdraw
	}
	burn, err := pool.ScaledSupplyBalance(balance)
	if err != nil {
		return err
	}
	burn = fixed.MinBalance(burn, shares)
	reserve, err := fixed.CheckedSub(pool.ReserveBalance, balance)
	if err != nil {
		return arithmetic(err)
	}
	pool.ReserveBalance = reserve

	if err := e.tokens.Transfer(asset, e.custody, who, balance, assets.Expendable); err != nil {
		return err
	}
	if err := e.tokens.BurnFrom(pool.ID, who, burn); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.Deposit{Type: events.TypeDepositWithdrawn, Who: who, Asset: uint32(asset), Balance: balance.Clone()})
	e.logger.Debug("liquidity withdrawn",
		slog.Uint64("asset", uint64(asset)),
		slog.String("balance", balance.Dec()),
		slog.String("burned", burn.Dec()))
	return nil
}

// Borrow lends amount of asset to who against collateralAmount of
// collateralAsset. Borrowing again against the same collateral asset adds to
// the existing loan.
func (e *Engine) Borrow(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID, collateralAmount *uint256.Int) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() || collateralAmount == nil || collateralAmount.IsZero() {
		return ErrInvalidLiquidityWithdrawal
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if !pool.IsActive() {
		return ErrLendingPoolNotActive
	}
	if err := e.requireBalance(collateralAsset, who, collateralAmount); err != nil {
		return err
	}
	if balanceOrZero(pool.ReserveBalance).Lt(amount) {
		return ErrNotEnoughLiquiditySupply
	}
	equivalent, err := e.GetEquivalentAssetAmount(asset, collateralAsset, collateralAmount)
	if err != nil {
		return err
	}
	eligible, err := pool.MaxBorrowAmount(equivalent)
	if err != nil {
		return err
	}
	if eligible.Lt(amount) {
		return ErrNotEnoughCollateral
	}

	if err := pool.UpdateIndexes(e.clock.Now()); err != nil {
		return err
	}
	key := LoanKey{Account: who, Asset: asset, CollateralAsset: collateralAsset}
	loan, err := e.state.GetLoan(key)
	if err != nil {
		return err
	}
	if loan == nil {
		loan = &Loan{
			BorrowedBalance:         new(uint256.Int),
			CollateralBalance:       new(uint256.Int),
			BorrowIndexAtBorrowTime: pool.BorrowIndex,
		}
	}
	if err := loan.Rebase(pool, amount, collateralAmount); err != nil {
		return err
	}
	if err := pool.MoveAssetOnBorrow(amount); err != nil {
		return err
	}

	if err := e.tokens.Transfer(asset, e.custody, who, amount, assets.Expendable); err != nil {
		return err
	}
	if err := e.tokens.Transfer(collateralAsset, who, e.custody, collateralAmount, assets.Preserve); err != nil {
		return err
	}
	if err := e.state.PutLoan(key, loan); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.DepositBorrowed{
		Who:              who,
		Asset:            uint32(asset),
		Amount:           amount.Clone(),
		CollateralAsset:  uint32(collateralAsset),
		CollateralAmount: collateralAmount.Clone(),
	})
	e.logger.Debug("loan opened",
		slog.Uint64("asset", uint64(asset)),
		slog.Uint64("collateral_asset", uint64(collateralAsset)),
		slog.String("amount", amount.Dec()))
	return nil
}

// Repay pays down the loan identified by (who, asset, collateralAsset).
// Collateral is released in proportion to the share of debt repaid; a full
// repayment closes the loan and releases all of it.
func (e *Engine) Repay(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidLiquiditySupply
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if err := pool.UpdateIndexes(e.clock.Now()); err != nil {
		return err
	}
	key := LoanKey{Account: who, Asset: asset, CollateralAsset: collateralAsset}
	loan, err := e.state.GetLoan(key)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanDoesNotExist
	}
	repayable, err := pool.RepayableAmount(loan)
	if err != nil {
		return err
	}
	pay := fixed.MinBalance(amount, repayable)
	full := !amount.Lt(repayable)
	if err := e.requireBalance(asset, who, pay); err != nil {
		return err
	}

	released := balanceOrZero(loan.CollateralBalance).Clone()
	retired := balanceOrZero(loan.Principal).Clone()
	if !full {
		ratio, err := fixed.Ratio(pay, repayable)
		if err != nil {
			return arithmetic(err)
		}
		reduction, err := fixed.MulBalance(loan.BorrowedBalance, ratio)
		if err != nil {
			return arithmetic(err)
		}
		if retired, err = fixed.MulBalance(balanceOrZero(loan.Principal), ratio); err != nil {
			return arithmetic(err)
		}
		released, err = fixed.MulBalance(loan.CollateralBalance, ratio)
		if err != nil {
			return arithmetic(err)
		}
		if err := loan.RepayPartial(reduction, retired, released); err != nil {
			return err
		}
	}
	if err := pool.MoveAssetOnRepay(pay, retired); err != nil {
		return err
	}

	if err := e.tokens.Transfer(asset, who, e.custody, pay, assets.Preserve); err != nil {
		return err
	}
	if err := e.tokens.Transfer(collateralAsset, e.custody, who, released, assets.Expendable); err != nil {
		return err
	}
	if full {
		err = e.state.DeleteLoan(key)
	} else {
		err = e.state.PutLoan(key, loan)
	}
	if err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emitter.Emit(events.DepositRepaid{
		Who:                who,
		Asset:              uint32(asset),
		Paid:               pay,
		CollateralAsset:    uint32(collateralAsset),
		ReleasedCollateral: released,
		Closed:             full,
	})
	e.logger.Debug("loan repaid",
		slog.Uint64("asset", uint64(asset)),
		slog.String("paid", pay.Dec()),
		slog.Bool("closed", full))
	return nil
}

// updateAndMint mints the new scaled deposit plus the interest earned on the
// depositor's existing shares since their last snapshot, then moves the
// snapshot to the pool's current supply index.
func (e *Engine) updateAndMint(who crypto.Address, pool *Pool, scaled *uint256.Int, now uint64) (*uint256.Int, error) {
	snapshot, err := e.state.GetSupplyIndex(who, pool.Asset)
	if err != nil {
		return nil, err
	}
	minted := scaled.Clone()
	if snapshot != nil {
		held, err := e.tokens.Balance(pool.ID, who)
		if err != nil {
			return nil, err
		}
		growth, err := pool.SupplyIndex.Sub(snapshot.SupplyIndex)
		if err != nil {
			return nil, arithmetic(err)
		}
		interest, err := fixed.MulBalance(held, growth)
		if err != nil {
			return nil, arithmetic(err)
		}
		if minted, err = fixed.CheckedAdd(minted, interest); err != nil {
			return nil, arithmetic(err)
		}
	}
	if err := e.state.PutSupplyIndex(who, pool.Asset, &SupplyIndex{
		SupplyIndex:           pool.SupplyIndex,
		LastAccruedInterestAt: now,
	}); err != nil {
		return nil, err
	}
	if err := e.tokens.MintInto(pool.ID, who, minted); err != nil {
		return nil, err
	}
	return minted, nil
}

func (e *Engine) loadPool(asset assets.ID) (*Pool, error) {
	pool, err := e.state.GetPool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: asset %d", ErrLendingPoolDoesNotExist, asset)
	}
	return pool, nil
}

func (e *Engine) requireBalance(asset assets.ID, who crypto.Address, amount *uint256.Int) error {
	bal, err := e.tokens.Balance(asset, who)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return ErrNotEnoughLiquiditySupply
	}
	return nil
}

func shareMetadata(underlying assets.Metadata) assets.Metadata {
	return assets.Metadata{
		Name:       underlying.Name + " lending share",
		Symbol:     "L" + underlying.Symbol,
		Decimals:   underlying.Decimals,
		MinBalance: new(uint256.Int),
	}
}
