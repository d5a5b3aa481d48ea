package events

import (
	"strings"

	"github.com/holiman/uint256"

	"kylix/crypto"
)

const (
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "assets.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta for a fungible token.
type TokenSupply struct {
	Asset   uint32
	Account crypto.Address
	Total   *uint256.Int
	Delta   *uint256.Int
	Reason  string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *Record {
	attrs := map[string]string{
		"asset": formatAsset(e.Asset),
		"total": formatAmount(e.Total),
	}
	if e.Delta != nil {
		attrs["delta"] = e.Delta.Dec()
	}
	if account := e.Account.String(); account != "" {
		attrs["account"] = account
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &Record{Type: TypeTokenSupply, Attributes: attrs}
}
