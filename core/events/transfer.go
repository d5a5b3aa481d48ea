package events

import (
	"github.com/holiman/uint256"

	"kylix/crypto"
)

const (
	// TypeTransfer is emitted for every token balance movement.
	TypeTransfer = "assets.transfer"
)

type Transfer struct {
	Asset  uint32
	From   crypto.Address
	To     crypto.Address
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *Record {
	attrs := map[string]string{
		"asset":  formatAsset(e.Asset),
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	return &Record{Type: TypeTransfer, Attributes: attrs}
}
