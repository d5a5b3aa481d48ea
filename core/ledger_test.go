package core

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"kylix/core/events"
	"kylix/core/genesis"
	"kylix/crypto"
	"kylix/native/assets"
	nativecommon "kylix/native/common"
	"kylix/native/lending"
	"kylix/storage"
)

const (
	assetUSDT assets.ID = 1
	assetDOT  assets.ID = 2
	assetKSM  assets.ID = 3
	poolDOT   assets.ID = 100
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

type harness struct {
	ledger *Ledger
	db     storage.Database
	events *recorder
	pauses *nativecommon.PauseSet
	now    uint64
	alice  crypto.Address
	bob    crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := storage.NewMemDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:     db,
		events: &recorder{},
		pauses: nativecommon.NewPauseSet(),
		now:    1_700_000_000,
		alice:  crypto.MustAddress(crypto.KylixPrefix, bytes.Repeat([]byte{0xa1}, 20)),
		bob:    crypto.MustAddress(crypto.KylixPrefix, bytes.Repeat([]byte{0xb0}, 20)),
	}
	h.ledger, err = NewLedger(db, lending.DefaultConfig(),
		WithClock(lending.ClockFunc(func() uint64 { return h.now })),
		WithEmitter(h.events),
		WithPauses(h.pauses),
	)
	require.NoError(t, err)

	owner := h.alice.String()
	require.NoError(t, h.ledger.ApplyGenesis(&genesis.Spec{
		Assets: []genesis.AssetSpec{
			{ID: uint32(assetUSDT), Name: "Tether", Symbol: "USDT", Decimals: 6, Owner: owner},
			{ID: uint32(assetDOT), Name: "Polkadot", Symbol: "DOT", Decimals: 10, Owner: owner},
			{ID: uint32(assetKSM), Name: "Kusama", Symbol: "KSM", Decimals: 12, MinBalance: "1", Owner: owner},
		},
		Balances: []genesis.BalanceSpec{
			{Asset: uint32(assetDOT), Account: owner, Amount: "100000"},
			{Asset: uint32(assetKSM), Account: h.bob.String(), Amount: "1000"},
			{Asset: uint32(assetUSDT), Account: h.bob.String(), Amount: "1000"},
		},
		Prices: []genesis.PriceSpec{
			{Asset: uint32(assetDOT), Base: uint32(assetUSDT), Price: "1"},
			{Asset: uint32(assetKSM), Base: uint32(assetUSDT), Price: "1"},
		},
	}))
	h.events.events = nil
	return h
}

func (h *harness) activePool(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ledger.CreateLendingPool(h.alice, poolDOT, assetDOT, uint256.NewInt(10_000)))
	require.NoError(t, h.ledger.ActivateLendingPool(assetDOT))
}

// snapshot returns every committed key/value pair.
func (h *harness) snapshot(t *testing.T) map[string]string {
	t.Helper()
	tx, err := h.db.Begin()
	require.NoError(t, err)
	defer tx.Discard()
	out := make(map[string]string)
	require.NoError(t, tx.Iterate(nil, func(key, value []byte) error {
		out[string(key)] = string(value)
		return nil
	}))
	return out
}

func TestLedgerBorrowAndRepayRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.activePool(t)

	require.NoError(t, h.ledger.Borrow(h.bob, assetDOT, uint256.NewInt(400), assetUSDT, uint256.NewInt(900)))
	dot, err := h.ledger.Balance(assetDOT, h.bob)
	require.NoError(t, err)
	require.Equal(t, uint64(400), dot.Uint64())

	ltv, err := h.ledger.GetUserLTV(h.bob)
	require.NoError(t, err)
	require.Equal(t, "0.444444444444444444", ltv.CurrentLTV.String())

	require.NoError(t, h.ledger.Repay(h.bob, assetDOT, uint256.NewInt(400), assetUSDT))
	usdt, err := h.ledger.Balance(assetUSDT, h.bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), usdt.Uint64())

	pools, _, err := h.ledger.GetLendingPools(lending.PoolFilter{})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, pools[0].ReserveBalance.Uint64(), pools[0].Balance.Uint64())

	require.Contains(t, h.events.types(), events.TypeDepositBorrowed)
	require.Contains(t, h.events.types(), events.TypeDepositRepaid)
}

func TestLedgerFullRepayReleasesMinBalanceCollateral(t *testing.T) {
	h := newHarness(t)
	h.activePool(t)

	require.NoError(t, h.ledger.Borrow(h.bob, assetDOT, uint256.NewInt(400), assetKSM, uint256.NewInt(900)))
	require.NoError(t, h.ledger.Repay(h.bob, assetDOT, uint256.NewInt(400), assetKSM))

	ksm, err := h.ledger.Balance(assetKSM, h.bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), ksm.Uint64())
	custody, err := h.ledger.Balance(assetKSM, h.ledger.Custody())
	require.NoError(t, err)
	require.True(t, custody.IsZero())

	loans, err := h.ledger.GetAssetWiseBorrowsCollaterals(h.bob)
	require.NoError(t, err)
	require.Empty(t, loans.Borrowed)
}

func TestLedgerWithdrawLastDeposit(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ledger.CreateLendingPool(h.bob, 101, assetKSM, uint256.NewInt(500)))
	require.NoError(t, h.ledger.ActivateLendingPool(assetKSM))

	require.NoError(t, h.ledger.Withdraw(h.bob, assetKSM, uint256.NewInt(500)))

	ksm, err := h.ledger.Balance(assetKSM, h.bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), ksm.Uint64())
	custody, err := h.ledger.Balance(assetKSM, h.ledger.Custody())
	require.NoError(t, err)
	require.True(t, custody.IsZero())
	shares, err := h.ledger.Balance(101, h.bob)
	require.NoError(t, err)
	require.True(t, shares.IsZero())
}

func TestLedgerFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.activePool(t)
	before := h.snapshot(t)
	emitted := len(h.events.types())

	// The borrowed DOT moves first; moving all of bob's KSM then breaches
	// its minimum balance and the whole call must roll back.
	err := h.ledger.Borrow(h.bob, assetDOT, uint256.NewInt(100), assetKSM, uint256.NewInt(1_000))
	require.True(t, errors.Is(err, assets.ErrBelowMinimum), "got %v", err)

	require.Equal(t, before, h.snapshot(t))
	require.Len(t, h.events.types(), emitted)
	dot, err := h.ledger.Balance(assetDOT, h.bob)
	require.NoError(t, err)
	require.True(t, dot.IsZero())
}

func TestLedgerPauseRejectsMutations(t *testing.T) {
	h := newHarness(t)
	h.activePool(t)
	h.pauses.Pause("lending")

	err := h.ledger.Supply(h.alice, assetDOT, uint256.NewInt(10))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.Equal(t, lending.KindValidation, lending.Classify(err))

	_, _, err = h.ledger.GetLendingPools(lending.PoolFilter{})
	require.NoError(t, err)

	h.pauses.Resume("lending")
	require.NoError(t, h.ledger.Supply(h.alice, assetDOT, uint256.NewInt(10)))
}

func TestLedgerGenesisIsIdempotent(t *testing.T) {
	h := newHarness(t)
	spec := &genesis.Spec{
		Assets: []genesis.AssetSpec{
			{ID: uint32(assetDOT), Name: "Polkadot", Symbol: "DOT", Decimals: 10, Owner: h.alice.String()},
		},
		Balances: []genesis.BalanceSpec{
			{Asset: uint32(assetDOT), Account: h.alice.String(), Amount: "5"},
		},
	}
	require.NoError(t, h.ledger.ApplyGenesis(spec))
	dot, err := h.ledger.Balance(assetDOT, h.alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), dot.Uint64())
}

func TestNewLedgerRejectsInvalidConfig(t *testing.T) {
	db, err := storage.NewMemDB()
	require.NoError(t, err)
	defer db.Close()

	cfg := lending.DefaultConfig()
	cfg.CollateralFactorBps = 0
	_, err = NewLedger(db, cfg)
	require.Error(t, err)

	_, err = NewLedger(nil, lending.DefaultConfig())
	require.Error(t, err)
}
