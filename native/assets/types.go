package assets

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"

	"kylix/crypto"
)

// ID identifies a fungible asset, including lending pool share tokens.
type ID uint32

// Preservation controls whether a transfer may drain the sender.
type Preservation uint8

const (
	// Expendable allows the sender balance to reach zero.
	Expendable Preservation = iota
	// Preserve keeps the sender at or above the asset's minimum balance.
	Preserve
)

var (
	ErrAssetExists         = errors.New("assets: asset already exists")
	ErrUnknownAsset        = errors.New("assets: unknown asset")
	ErrInsufficientBalance = errors.New("assets: insufficient balance")
	ErrBelowMinimum        = errors.New("assets: balance would fall below minimum")
	ErrOverflow            = errors.New("assets: balance overflow")
	errNilStore            = errors.New("assets: store not configured")
)

// Metadata describes a registered asset.
type Metadata struct {
	Name       string
	Symbol     string
	Decimals   uint8
	MinBalance *uint256.Int
	Owner      crypto.Address
	Supply     *uint256.Int
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	if m.MinBalance != nil {
		clone.MinBalance = m.MinBalance.Clone()
	}
	if m.Supply != nil {
		clone.Supply = m.Supply.Clone()
	}
	return &clone
}

func (m *Metadata) normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	if m.MinBalance == nil {
		m.MinBalance = new(uint256.Int)
	}
	if m.Supply == nil {
		m.Supply = new(uint256.Int)
	}
}
