package state

import (
	"math/big"

	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
)

type storedAssetMetadata struct {
	Name       string
	Symbol     string
	Decimals   uint8
	MinBalance *big.Int
	Owner      []byte
	Supply     *big.Int
}

// GetAssetMetadata implements assets.Store.
func (m *Manager) GetAssetMetadata(id assets.ID) (*assets.Metadata, bool, error) {
	stored := new(storedAssetMetadata)
	ok, err := m.get(AssetMetadataKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	minBalance, err := fromBig(stored.MinBalance)
	if err != nil {
		return nil, false, err
	}
	supply, err := fromBig(stored.Supply)
	if err != nil {
		return nil, false, err
	}
	meta := &assets.Metadata{
		Name:       stored.Name,
		Symbol:     stored.Symbol,
		Decimals:   stored.Decimals,
		MinBalance: minBalance,
		Supply:     supply,
	}
	if len(stored.Owner) > 0 {
		if meta.Owner, err = addressFrom(stored.Owner); err != nil {
			return nil, false, err
		}
	}
	return meta, true, nil
}

// PutAssetMetadata implements assets.Store.
func (m *Manager) PutAssetMetadata(id assets.ID, meta *assets.Metadata) error {
	stored := &storedAssetMetadata{
		Name:       meta.Name,
		Symbol:     meta.Symbol,
		Decimals:   meta.Decimals,
		MinBalance: toBig(meta.MinBalance),
		Supply:     toBig(meta.Supply),
	}
	if !meta.Owner.IsZero() {
		stored.Owner = meta.Owner.Bytes()
	}
	return m.put(AssetMetadataKey(id), stored)
}

// GetAssetBalance implements assets.Store. Missing balances read as nil.
func (m *Manager) GetAssetBalance(id assets.ID, who crypto.Address) (*uint256.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(AssetBalanceKey(id, who), amount)
	if err != nil || !ok {
		return nil, err
	}
	return fromBig(amount)
}

// PutAssetBalance implements assets.Store. A zero balance removes the entry.
func (m *Manager) PutAssetBalance(id assets.ID, who crypto.Address, amount *uint256.Int) error {
	key := AssetBalanceKey(id, who)
	if amount == nil || amount.IsZero() {
		return m.kv.Delete(key)
	}
	return m.put(key, amount.ToBig())
}

// AssetHolders visits every non-zero balance of id.
func (m *Manager) AssetHolders(id assets.ID, fn func(crypto.Address, *uint256.Int) error) error {
	prefix := compositeKey(assetBalancePrefix, idBytes(id))
	return m.iterate(prefix, func() interface{} { return new(big.Int) }, func(key []byte, record interface{}) error {
		who, err := addressFrom(key)
		if err != nil {
			return err
		}
		amount, err := fromBig(record.(*big.Int))
		if err != nil {
			return err
		}
		return fn(who, amount)
	})
}
