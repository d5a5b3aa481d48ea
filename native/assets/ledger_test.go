package assets

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"kylix/core/events"
	"kylix/crypto"
)

type mapStore struct {
	meta     map[ID]*Metadata
	balances map[ID]map[crypto.Address]*uint256.Int
}

func newMapStore() *mapStore {
	return &mapStore{
		meta:     make(map[ID]*Metadata),
		balances: make(map[ID]map[crypto.Address]*uint256.Int),
	}
}

func (m *mapStore) GetAssetMetadata(id ID) (*Metadata, bool, error) {
	meta, ok := m.meta[id]
	if !ok {
		return nil, false, nil
	}
	return meta.Clone(), true, nil
}

func (m *mapStore) PutAssetMetadata(id ID, meta *Metadata) error {
	m.meta[id] = meta.Clone()
	return nil
}

func (m *mapStore) GetAssetBalance(id ID, who crypto.Address) (*uint256.Int, error) {
	if bal, ok := m.balances[id][who]; ok {
		return bal.Clone(), nil
	}
	return nil, nil
}

func (m *mapStore) PutAssetBalance(id ID, who crypto.Address, amount *uint256.Int) error {
	if m.balances[id] == nil {
		m.balances[id] = make(map[crypto.Address]*uint256.Int)
	}
	if amount.IsZero() {
		delete(m.balances[id], who)
		return nil
	}
	m.balances[id][who] = amount.Clone()
	return nil
}

func TestLedgerCreateAndMint(t *testing.T) {
	ledger := NewLedger(newMapStore())
	owner := crypto.DeriveAccount("owner")
	alice := crypto.DeriveAccount("alice")

	require.NoError(t, ledger.Create(1, owner, Metadata{Name: "Tether", Symbol: " usdt ", Decimals: 6}))
	require.ErrorIs(t, ledger.Create(1, owner, Metadata{}), ErrAssetExists)

	exists, err := ledger.AssetExists(1)
	require.NoError(t, err)
	require.True(t, exists)

	meta, err := ledger.Metadata(1)
	require.NoError(t, err)
	require.Equal(t, "USDT", meta.Symbol)
	require.Equal(t, owner, meta.Owner)

	require.NoError(t, ledger.MintInto(1, alice, uint256.NewInt(1_000)))
	bal, err := ledger.Balance(1, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), bal.Uint64())

	supply, err := ledger.TotalIssuance(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), supply.Uint64())

	require.NoError(t, ledger.BurnFrom(1, alice, uint256.NewInt(400)))
	supply, err = ledger.TotalIssuance(1)
	require.NoError(t, err)
	require.Equal(t, uint64(600), supply.Uint64())
	require.ErrorIs(t, ledger.BurnFrom(1, alice, uint256.NewInt(601)), ErrInsufficientBalance)
}

func TestLedgerTransferPreservation(t *testing.T) {
	ledger := NewLedger(newMapStore())
	owner := crypto.DeriveAccount("owner")
	alice := crypto.DeriveAccount("alice")
	bob := crypto.DeriveAccount("bob")

	require.NoError(t, ledger.Create(2, owner, Metadata{Symbol: "DOT", MinBalance: uint256.NewInt(10)}))
	require.NoError(t, ledger.MintInto(2, alice, uint256.NewInt(100)))

	require.ErrorIs(t, ledger.Transfer(2, alice, bob, uint256.NewInt(95), Preserve), ErrBelowMinimum)
	require.NoError(t, ledger.Transfer(2, alice, bob, uint256.NewInt(90), Preserve))
	require.ErrorIs(t, ledger.Transfer(2, alice, bob, uint256.NewInt(11), Expendable), ErrInsufficientBalance)
	require.NoError(t, ledger.Transfer(2, alice, bob, uint256.NewInt(10), Expendable))

	aliceBal, err := ledger.Balance(2, alice)
	require.NoError(t, err)
	require.True(t, aliceBal.IsZero())
	bobBal, err := ledger.Balance(2, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bobBal.Uint64())
}

func TestLedgerUnknownAsset(t *testing.T) {
	ledger := NewLedger(newMapStore())
	who := crypto.DeriveAccount("alice")
	require.ErrorIs(t, ledger.MintInto(9, who, uint256.NewInt(1)), ErrUnknownAsset)
	_, err := ledger.TotalIssuance(9)
	require.ErrorIs(t, err, ErrUnknownAsset)
}

func TestLedgerEmitsEvents(t *testing.T) {
	ledger := NewLedger(newMapStore())
	var buf events.Buffer
	ledger.SetEmitter(&buf)
	owner := crypto.DeriveAccount("owner")
	alice := crypto.DeriveAccount("alice")

	require.NoError(t, ledger.Create(3, owner, Metadata{Symbol: "KSM"}))
	require.NoError(t, ledger.MintInto(3, alice, uint256.NewInt(5)))
	require.NoError(t, ledger.Transfer(3, alice, owner, uint256.NewInt(2), Expendable))

	emitted := buf.Events()
	require.Len(t, emitted, 2)
	require.Equal(t, events.TypeTokenSupply, emitted[0].EventType())
	require.Equal(t, events.TypeTransfer, emitted[1].EventType())
}
