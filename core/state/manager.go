package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/numeric/fixed"
	"kylix/storage"
)

// Manager reads and writes ledger records through a storage transaction.
// Records are RLP encoded and keyed so that related entries share a prefix.
type Manager struct {
	kv storage.KV
}

// NewManager creates a state manager operating on the provided store.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

var (
	poolPrefix          = []byte("lending/pool/")
	loanPrefix          = []byte("lending/loan/")
	pricePrefix         = []byte("lending/price/")
	supplyIndexPrefix   = []byte("lending/supply/")
	assetMetadataPrefix = []byte("asset/meta/")
	assetBalancePrefix  = []byte("asset/balance/")
)

func compositeKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func idBytes(id assets.ID) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(id))
	return buf[:]
}

func idFrom(b []byte) assets.ID {
	return assets.ID(binary.BigEndian.Uint32(b))
}

func PoolKey(asset assets.ID) []byte {
	return compositeKey(poolPrefix, idBytes(asset))
}

func LoanKey(account crypto.Address, asset, collateral assets.ID) []byte {
	return compositeKey(loanPrefix, account.Bytes(), idBytes(asset), idBytes(collateral))
}

func PriceKey(asset, base assets.ID) []byte {
	return compositeKey(pricePrefix, idBytes(asset), idBytes(base))
}

func SupplyIndexKey(account crypto.Address, asset assets.ID) []byte {
	return compositeKey(supplyIndexPrefix, account.Bytes(), idBytes(asset))
}

func AssetMetadataKey(id assets.ID) []byte {
	return compositeKey(assetMetadataPrefix, idBytes(id))
}

func AssetBalanceKey(id assets.ID, who crypto.Address) []byte {
	return compositeKey(assetBalancePrefix, idBytes(id), who.Bytes())
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func (m *Manager) iterate(prefix []byte, newRecord func() interface{}, fn func(key []byte, record interface{}) error) error {
	return m.kv.Iterate(prefix, func(key, value []byte) error {
		record := newRecord()
		if err := rlp.DecodeBytes(value, record); err != nil {
			return fmt.Errorf("state: decode %x: %w", key, err)
		}
		return fn(key[len(prefix):], record)
	})
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("state: negative amount %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("state: amount %s exceeds 256 bits", b)
	}
	return v, nil
}

func rateToBig(r fixed.Rate) *big.Int {
	return r.Inner().ToBig()
}

func rateFromBig(b *big.Int) (fixed.Rate, error) {
	v, err := fromBig(b)
	if err != nil {
		return fixed.Zero(), err
	}
	return fixed.FromInner(v), nil
}

func addressFrom(b []byte) (crypto.Address, error) {
	return crypto.NewAddress(crypto.KylixPrefix, b)
}
