package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"kylix/core/events"
	"kylix/core/genesis"
	"kylix/core/state"
	"kylix/crypto"
	"kylix/native/assets"
	nativecommon "kylix/native/common"
	"kylix/native/lending"
	"kylix/numeric/fixed"
	"kylix/observability"
	"kylix/storage"
)

var errNilDatabase = errors.New("core: database not configured")

// Ledger is the transactional front of the lending module. Each mutating call
// runs inside one storage transaction: either every record it touches is
// committed together with its events, or nothing is.
type Ledger struct {
	db      storage.Database
	cfg     lending.Config
	clock   lending.Clock
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger

	mu sync.Mutex
}

// LedgerOption customises the ledger instance.
type LedgerOption func(*Ledger)

// WithClock overrides the time source used for interest accrual.
func WithClock(clock lending.Clock) LedgerOption {
	return func(l *Ledger) { l.clock = clock }
}

// WithPauses wires the module pause switch.
func WithPauses(pauses nativecommon.PauseView) LedgerOption {
	return func(l *Ledger) { l.pauses = pauses }
}

// WithEmitter sets where committed events are published.
func WithEmitter(emitter events.Emitter) LedgerOption {
	return func(l *Ledger) { l.emitter = emitter }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger binds the lending engine to db.
func NewLedger(db storage.Database, cfg lending.Config, opts ...LedgerOption) (*Ledger, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		db:      db,
		cfg:     cfg,
		clock:   lending.SystemClock{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = lending.SystemClock{}
	}
	if l.emitter == nil {
		l.emitter = events.NoopEmitter{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l, nil
}

// Custody returns the account that holds pool reserves and collateral.
func (l *Ledger) Custody() crypto.Address { return l.cfg.CustodyAccount() }

type unit struct {
	tx      storage.Tx
	state   *state.Manager
	tokens  *assets.Ledger
	engine  *lending.Engine
	pending *events.Buffer
}

func (l *Ledger) begin() (*unit, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	pending := new(events.Buffer)
	manager := state.NewManager(tx)
	tokens := assets.NewLedger(manager)
	tokens.SetEmitter(pending)
	engine := lending.NewEngine(l.cfg)
	engine.SetState(manager)
	engine.SetTokens(tokens)
	engine.SetClock(l.clock)
	engine.SetEmitter(pending)
	engine.SetPauses(l.pauses)
	engine.SetLogger(l.logger)
	return &unit{tx: tx, state: manager, tokens: tokens, engine: engine, pending: pending}, nil
}

// update runs fn in a fresh transaction. asset names the pool whose gauges
// are refreshed after a successful commit; zero skips the refresh.
func (l *Ledger) update(operation string, asset assets.ID, fn func(*unit) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	u, err := l.begin()
	if err != nil {
		observability.Lending().ObserveOperation(operation, lending.KindInternal.String(), time.Since(start))
		return err
	}
	if err := fn(u); err != nil {
		u.tx.Discard()
		u.pending.Reset()
		kind := lending.Classify(err)
		observability.Lending().ObserveOperation(operation, kind.String(), time.Since(start))
		l.logger.Debug("ledger operation rejected",
			slog.String("operation", operation),
			slog.String("status", kind.String()),
			slog.Any("error", err))
		return err
	}
	var pool *lending.Pool
	if asset != 0 {
		pool, _ = u.state.GetPool(asset)
	}
	if err := u.tx.Commit(); err != nil {
		u.pending.Reset()
		observability.Lending().ObserveOperation(operation, lending.KindInternal.String(), time.Since(start))
		return fmt.Errorf("commit %s: %w", operation, err)
	}
	u.pending.Flush(events.Fanout{l.emitter, observability.Events()})
	if pool != nil {
		observePool(pool)
	}
	observability.Lending().ObserveOperation(operation, "success", time.Since(start))
	return nil
}

// view runs fn against a transaction that is always discarded.
func (l *Ledger) view(fn func(*unit) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.begin()
	if err != nil {
		return err
	}
	defer u.tx.Discard()
	return fn(u)
}

func observePool(pool *lending.Pool) {
	utilisation, err := pool.UtilisationRatio()
	if err != nil {
		utilisation = fixed.Zero()
	}
	observability.Lending().ObservePool(uint32(pool.Asset), utilisation.Float64(), pool.SupplyIndex.Float64(), pool.BorrowIndex.Float64())
}

// CreateAsset registers a token. It is used to apply genesis and by
// administrative tooling.
func (l *Ledger) CreateAsset(id assets.ID, owner crypto.Address, meta assets.Metadata) error {
	return l.update("create_asset", 0, func(u *unit) error {
		return u.tokens.Create(id, owner, meta)
	})
}

// Mint credits amount of id to who.
func (l *Ledger) Mint(id assets.ID, who crypto.Address, amount *uint256.Int) error {
	return l.update("mint", 0, func(u *unit) error {
		return u.tokens.MintInto(id, who, amount)
	})
}

// Balance returns the free balance of who in id.
func (l *Ledger) Balance(id assets.ID, who crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.view(func(u *unit) error {
		balance, err := u.tokens.Balance(id, who)
		out = balance
		return err
	})
	return out, err
}

// AssetExists reports whether id has been registered.
func (l *Ledger) AssetExists(id assets.ID) (bool, error) {
	var out bool
	err := l.view(func(u *unit) error {
		exists, err := u.tokens.AssetExists(id)
		out = exists
		return err
	})
	return out, err
}

// ApplyGenesis seeds the ledger from spec. It is idempotent across restarts.
func (l *Ledger) ApplyGenesis(spec *genesis.Spec) error {
	if err := genesis.Apply(spec, l); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}

// AssetMetadata returns the registered metadata of id.
func (l *Ledger) AssetMetadata(id assets.ID) (assets.Metadata, error) {
	var out assets.Metadata
	err := l.view(func(u *unit) error {
		meta, err := u.tokens.Metadata(id)
		out = meta
		return err
	})
	return out, err
}

func (l *Ledger) CreateLendingPool(who crypto.Address, id, asset assets.ID, balance *uint256.Int) error {
	return l.update("create_pool", asset, func(u *unit) error {
		return u.engine.CreateLendingPool(who, id, asset, balance)
	})
}

func (l *Ledger) ActivateLendingPool(asset assets.ID) error {
	return l.update("activate_pool", asset, func(u *unit) error {
		return u.engine.ActivateLendingPool(asset)
	})
}

func (l *Ledger) DeactivateLendingPool(asset assets.ID) error {
	return l.update("deactivate_pool", asset, func(u *unit) error {
		return u.engine.DeactivateLendingPool(asset)
	})
}

func (l *Ledger) UpdatePoolRateModel(asset assets.ID) error {
	return l.update("update_rate_model", 0, func(u *unit) error {
		return u.engine.UpdatePoolRateModel(asset)
	})
}

func (l *Ledger) UpdatePoolKink(asset assets.ID) error {
	return l.update("update_kink", 0, func(u *unit) error {
		return u.engine.UpdatePoolKink(asset)
	})
}

func (l *Ledger) Supply(who crypto.Address, asset assets.ID, balance *uint256.Int) error {
	return l.update("supply", asset, func(u *unit) error {
		return u.engine.Supply(who, asset, balance)
	})
}

func (l *Ledger) Withdraw(who crypto.Address, asset assets.ID, balance *uint256.Int) error {
	return l.update("withdraw", asset, func(u *unit) error {
		return u.engine.Withdraw(who, asset, balance)
	})
}

func (l *Ledger) Borrow(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID, collateralAmount *uint256.Int) error {
	return l.update("borrow", asset, func(u *unit) error {
		return u.engine.Borrow(who, asset, amount, collateralAsset, collateralAmount)
	})
}

func (l *Ledger) Repay(who crypto.Address, asset assets.ID, amount *uint256.Int, collateralAsset assets.ID) error {
	return l.update("repay", asset, func(u *unit) error {
		return u.engine.Repay(who, asset, amount, collateralAsset)
	})
}

// SetAssetPrice records how many base units one unit of asset is worth.
func (l *Ledger) SetAssetPrice(asset, base assets.ID, price fixed.Rate) error {
	return l.update("set_price", 0, func(u *unit) error {
		return u.engine.SetAssetPrice(asset, base, price)
	})
}

func (l *Ledger) GetAssetPrice(asset, base assets.ID) (fixed.Rate, error) {
	var out fixed.Rate
	err := l.view(func(u *unit) error {
		price, err := u.engine.GetAssetPrice(asset, base)
		out = price
		return err
	})
	return out, err
}

func (l *Ledger) GetEquivalentAssetAmount(quote, base assets.ID, amount *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.view(func(u *unit) error {
		equivalent, err := u.engine.GetEquivalentAssetAmount(quote, base, amount)
		out = equivalent
		return err
	})
	return out, err
}

func (l *Ledger) EstimateCollateralAmount(borrowAsset assets.ID, amount *uint256.Int, collateralAsset assets.ID) (*uint256.Int, error) {
	var out *uint256.Int
	err := l.view(func(u *unit) error {
		needed, err := u.engine.EstimateCollateralAmount(borrowAsset, amount, collateralAsset)
		out = needed
		return err
	})
	return out, err
}

func (l *Ledger) GetLendingPools(filter lending.PoolFilter) ([]lending.PoolSummary, lending.AggregatedTotals, error) {
	var (
		pools  []lending.PoolSummary
		totals lending.AggregatedTotals
	)
	err := l.view(func(u *unit) error {
		var err error
		pools, totals, err = u.engine.GetLendingPools(filter)
		return err
	})
	return pools, totals, err
}

func (l *Ledger) GetUserLTV(account crypto.Address) (lending.UserLTV, error) {
	var out lending.UserLTV
	err := l.view(func(u *unit) error {
		ltv, err := u.engine.GetUserLTV(account)
		out = ltv
		return err
	})
	return out, err
}

func (l *Ledger) GetAssetWiseSupplies(account crypto.Address) ([]lending.SuppliedAsset, *uint256.Int, error) {
	var (
		supplies []lending.SuppliedAsset
		total    *uint256.Int
	)
	err := l.view(func(u *unit) error {
		var err error
		supplies, total, err = u.engine.GetAssetWiseSupplies(account)
		return err
	})
	return supplies, total, err
}

func (l *Ledger) GetAssetWiseBorrowsCollaterals(account crypto.Address) (lending.BorrowsCollaterals, error) {
	var out lending.BorrowsCollaterals
	err := l.view(func(u *unit) error {
		report, err := u.engine.GetAssetWiseBorrowsCollaterals(account)
		out = report
		return err
	})
	return out, err
}
