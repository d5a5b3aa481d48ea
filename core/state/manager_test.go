package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/native/lending"
	"kylix/numeric/fixed"
	"kylix/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := storage.NewMemDB()
	require.NoError(t, err)
	tx, err := db.Begin()
	require.NoError(t, err)
	t.Cleanup(func() {
		tx.Discard()
		_ = db.Close()
	})
	return NewManager(tx)
}

func TestPoolRecordPreservesAccrualState(t *testing.T) {
	m := newTestManager(t)
	pool, err := lending.NewPool(100, 2, uint256.NewInt(10_000), 42, lending.DefaultConfig().PoolParams())
	require.NoError(t, err)
	pool.BorrowedBalance = uint256.NewInt(2_500)
	pool.Activated = true
	pool.BorrowIndex = fixed.MustParse("1.000000123456789012")
	require.NoError(t, m.PutPool(pool))

	got, err := m.GetPool(2)
	require.NoError(t, err)
	require.Equal(t, pool, got)

	missing, err := m.GetPool(3)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestForEachPoolOrdersByAsset(t *testing.T) {
	m := newTestManager(t)
	params := lending.DefaultConfig().PoolParams()
	for _, asset := range []assets.ID{300, 2, 70_000} {
		pool, err := lending.NewPool(asset+1, asset, uint256.NewInt(1), 0, params)
		require.NoError(t, err)
		require.NoError(t, m.PutPool(pool))
	}
	var seen []assets.ID
	require.NoError(t, m.ForEachPool(func(p *lending.Pool) error {
		seen = append(seen, p.Asset)
		return nil
	}))
	require.Equal(t, []assets.ID{2, 300, 70_000}, seen)
}

func TestLoansAreScopedToAccount(t *testing.T) {
	m := newTestManager(t)
	alice := crypto.DeriveAccount("alice")
	bob := crypto.DeriveAccount("bob")
	loan := &lending.Loan{
		BorrowedBalance:         uint256.NewInt(500),
		Principal:               uint256.NewInt(480),
		CollateralBalance:       uint256.NewInt(1_000),
		BorrowIndexAtBorrowTime: fixed.One(),
	}
	aliceKey := lending.LoanKey{Account: alice, Asset: 2, CollateralAsset: 3}
	require.NoError(t, m.PutLoan(aliceKey, loan))
	require.NoError(t, m.PutLoan(lending.LoanKey{Account: bob, Asset: 2, CollateralAsset: 1}, loan))

	var keys []lending.LoanKey
	require.NoError(t, m.ForEachLoan(alice, func(key lending.LoanKey, got *lending.Loan) error {
		require.Equal(t, loan, got)
		keys = append(keys, key)
		return nil
	}))
	require.Equal(t, []lending.LoanKey{aliceKey}, keys)

	require.NoError(t, m.DeleteLoan(aliceKey))
	got, err := m.GetLoan(aliceKey)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPricesAndSupplyIndexes(t *testing.T) {
	m := newTestManager(t)
	_, ok, err := m.GetAssetPrice(2, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.PutAssetPrice(2, 1, fixed.MustParse("6.25")))
	price, ok, err := m.GetAssetPrice(2, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, price.Equal(fixed.MustParse("6.25")))

	alice := crypto.DeriveAccount("alice")
	snapshot := &lending.SupplyIndex{SupplyIndex: fixed.MustParse("1.05"), LastAccruedInterestAt: 99}
	require.NoError(t, m.PutSupplyIndex(alice, 2, snapshot))
	got, err := m.GetSupplyIndex(alice, 2)
	require.NoError(t, err)
	require.Equal(t, snapshot, got)
}

func TestAssetStoreThroughLedger(t *testing.T) {
	m := newTestManager(t)
	ledger := assets.NewLedger(m)
	owner := crypto.DeriveAccount("issuer")
	alice := crypto.DeriveAccount("alice")
	require.NoError(t, ledger.Create(2, owner, assets.Metadata{Name: "Polkadot", Symbol: "dot", Decimals: 10}))
	require.NoError(t, ledger.MintInto(2, alice, uint256.NewInt(700)))

	meta, err := ledger.Metadata(2)
	require.NoError(t, err)
	require.Equal(t, "DOT", meta.Symbol)
	require.Equal(t, owner, meta.Owner)
	require.Equal(t, uint64(700), meta.Supply.Uint64())

	require.NoError(t, ledger.Transfer(2, alice, owner, uint256.NewInt(700), assets.Expendable))
	holders := map[crypto.Address]uint64{}
	require.NoError(t, m.AssetHolders(2, func(who crypto.Address, amount *uint256.Int) error {
		holders[who] = amount.Uint64()
		return nil
	}))
	require.Equal(t, map[crypto.Address]uint64{owner: 700}, holders)
}
