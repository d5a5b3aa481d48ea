package assets

import (
	"fmt"

	"github.com/holiman/uint256"

	"kylix/core/events"
	"kylix/crypto"
)

// Store persists asset metadata and balances. Missing balances read as zero
// and writing a zero balance removes the entry.
type Store interface {
	GetAssetMetadata(id ID) (*Metadata, bool, error)
	PutAssetMetadata(id ID, meta *Metadata) error
	GetAssetBalance(id ID, who crypto.Address) (*uint256.Int, error)
	PutAssetBalance(id ID, who crypto.Address, amount *uint256.Int) error
}

// Ledger is the fungible-token capability consumed by the lending engine.
type Ledger struct {
	store   Store
	emitter events.Emitter
}

// NewLedger binds the ledger to a store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where transfer and supply events are published.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// Create registers a new asset owned by owner.
func (l *Ledger) Create(id ID, owner crypto.Address, meta Metadata) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	_, exists, err := l.store.GetAssetMetadata(id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %d", ErrAssetExists, id)
	}
	meta.Owner = owner
	meta.normalize()
	meta.Supply = new(uint256.Int)
	return l.store.PutAssetMetadata(id, &meta)
}

// AssetExists reports whether id has been registered.
func (l *Ledger) AssetExists(id ID) (bool, error) {
	if l == nil || l.store == nil {
		return false, errNilStore
	}
	_, exists, err := l.store.GetAssetMetadata(id)
	return exists, err
}

// Metadata returns the registered metadata for id.
func (l *Ledger) Metadata(id ID) (Metadata, error) {
	meta, err := l.metadata(id)
	if err != nil {
		return Metadata{}, err
	}
	return *meta, nil
}

// Balance returns the balance of who in asset id.
func (l *Ledger) Balance(id ID, who crypto.Address) (*uint256.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	bal, err := l.store.GetAssetBalance(id, who)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return new(uint256.Int), nil
	}
	return bal, nil
}

// TotalIssuance returns the outstanding supply of id.
func (l *Ledger) TotalIssuance(id ID) (*uint256.Int, error) {
	meta, err := l.metadata(id)
	if err != nil {
		return nil, err
	}
	return meta.Supply.Clone(), nil
}

// Transfer moves amount of id between two accounts.
func (l *Ledger) Transfer(id ID, from, to crypto.Address, amount *uint256.Int, preservation Preservation) error {
	meta, err := l.metadata(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal, err := l.Balance(id, from)
	if err != nil {
		return err
	}
	remaining, underflow := new(uint256.Int).SubOverflow(fromBal, amount)
	if underflow {
		return fmt.Errorf("%w: asset %d", ErrInsufficientBalance, id)
	}
	if preservation == Preserve && remaining.Lt(meta.MinBalance) {
		return fmt.Errorf("%w: asset %d", ErrBelowMinimum, id)
	}
	if from.Equal(to) {
		return nil
	}
	toBal, err := l.Balance(id, to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrOverflow
	}
	if err := l.store.PutAssetBalance(id, from, remaining); err != nil {
		return err
	}
	if err := l.store.PutAssetBalance(id, to, credited); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: uint32(id), From: from, To: to, Amount: amount.Clone()})
	return nil
}

// MintInto credits who with freshly issued units of id.
func (l *Ledger) MintInto(id ID, who crypto.Address, amount *uint256.Int) error {
	meta, err := l.metadata(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal, err := l.Balance(id, who)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ErrOverflow
	}
	supply, overflow := new(uint256.Int).AddOverflow(meta.Supply, amount)
	if overflow {
		return ErrOverflow
	}
	meta.Supply = supply
	if err := l.store.PutAssetBalance(id, who, credited); err != nil {
		return err
	}
	if err := l.store.PutAssetMetadata(id, meta); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Asset:   uint32(id),
		Account: who,
		Total:   supply.Clone(),
		Delta:   amount.Clone(),
		Reason:  events.SupplyReasonMint,
	})
	return nil
}

// BurnFrom destroys amount of id held by who.
func (l *Ledger) BurnFrom(id ID, who crypto.Address, amount *uint256.Int) error {
	meta, err := l.metadata(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal, err := l.Balance(id, who)
	if err != nil {
		return err
	}
	remaining, underflow := new(uint256.Int).SubOverflow(bal, amount)
	if underflow {
		return fmt.Errorf("%w: asset %d", ErrInsufficientBalance, id)
	}
	supply, underflow := new(uint256.Int).SubOverflow(meta.Supply, amount)
	if underflow {
		return ErrOverflow
	}
	meta.Supply = supply
	if err := l.store.PutAssetBalance(id, who, remaining); err != nil {
		return err
	}
	if err := l.store.PutAssetMetadata(id, meta); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Asset:   uint32(id),
		Account: who,
		Total:   supply.Clone(),
		Delta:   amount.Clone(),
		Reason:  events.SupplyReasonBurn,
	})
	return nil
}

func (l *Ledger) metadata(id ID) (*Metadata, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	meta, exists, err := l.store.GetAssetMetadata(id)
	if err != nil {
		return nil, err
	}
	if !exists || meta == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}
	meta.normalize()
	return meta, nil
}
