package events

import (
	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/numeric/fixed"
)

const (
	TypeLendingPoolAdded            = "lending.pool_added"
	TypeLendingPoolActivated        = "lending.pool_activated"
	TypeLendingPoolDeactivated      = "lending.pool_deactivated"
	TypeLendingPoolRateModelUpdated = "lending.pool_rate_model_updated"
	TypeLendingPoolKinkUpdated      = "lending.pool_kink_updated"
	TypeLPTokenMinted               = "lending.lp_token_minted"
	TypeDepositSupplied             = "lending.deposit_supplied"
	TypeDepositWithdrawn            = "lending.deposit_withdrawn"
	TypeDepositBorrowed             = "lending.deposit_borrowed"
	TypeDepositRepaid               = "lending.deposit_repaid"
	TypeAssetPriceAdded             = "lending.asset_price_added"
)

// LendingPoolAdded is emitted once a pool is created and seeded.
type LendingPoolAdded struct {
	Who     crypto.Address
	PoolID  uint32
	Asset   uint32
	Balance *uint256.Int
}

func (LendingPoolAdded) EventType() string { return TypeLendingPoolAdded }

func (e LendingPoolAdded) Event() *Record {
	return &Record{Type: TypeLendingPoolAdded, Attributes: map[string]string{
		"who":     e.Who.String(),
		"poolId":  formatAsset(e.PoolID),
		"asset":   formatAsset(e.Asset),
		"balance": formatAmount(e.Balance),
	}}
}

// LendingPoolStatus covers the activation and parameter notifications that
// only carry the pool's asset.
type LendingPoolStatus struct {
	Type  string
	Asset uint32
}

func (e LendingPoolStatus) EventType() string { return e.Type }

func (e LendingPoolStatus) Event() *Record {
	return &Record{Type: e.Type, Attributes: map[string]string{"asset": formatAsset(e.Asset)}}
}

// LPTokenMinted reports the share tokens credited to a depositor.
type LPTokenMinted struct {
	Who    crypto.Address
	PoolID uint32
	Amount *uint256.Int
}

func (LPTokenMinted) EventType() string { return TypeLPTokenMinted }

func (e LPTokenMinted) Event() *Record {
	return &Record{Type: TypeLPTokenMinted, Attributes: map[string]string{
		"who":    e.Who.String(),
		"poolId": formatAsset(e.PoolID),
		"amount": formatAmount(e.Amount),
	}}
}

// Deposit covers supply and withdraw movements.
type Deposit struct {
	Type    string
	Who     crypto.Address
	Asset   uint32
	Balance *uint256.Int
}

func (e Deposit) EventType() string { return e.Type }

func (e Deposit) Event() *Record {
	return &Record{Type: e.Type, Attributes: map[string]string{
		"who":     e.Who.String(),
		"asset":   formatAsset(e.Asset),
		"balance": formatAmount(e.Balance),
	}}
}

// DepositBorrowed is emitted when a loan is opened or increased.
type DepositBorrowed struct {
	Who              crypto.Address
	Asset            uint32
	Amount           *uint256.Int
	CollateralAsset  uint32
	CollateralAmount *uint256.Int
}

func (DepositBorrowed) EventType() string { return TypeDepositBorrowed }

func (e DepositBorrowed) Event() *Record {
	return &Record{Type: TypeDepositBorrowed, Attributes: map[string]string{
		"who":              e.Who.String(),
		"asset":            formatAsset(e.Asset),
		"amount":           formatAmount(e.Amount),
		"collateralAsset":  formatAsset(e.CollateralAsset),
		"collateralAmount": formatAmount(e.CollateralAmount),
	}}
}

// DepositRepaid is emitted for partial and full repayments.
type DepositRepaid struct {
	Who                crypto.Address
	Asset              uint32
	Paid               *uint256.Int
	CollateralAsset    uint32
	ReleasedCollateral *uint256.Int
	Closed             bool
}

func (DepositRepaid) EventType() string { return TypeDepositRepaid }

func (e DepositRepaid) Event() *Record {
	closed := "false"
	if e.Closed {
		closed = "true"
	}
	return &Record{Type: TypeDepositRepaid, Attributes: map[string]string{
		"who":                e.Who.String(),
		"asset":              formatAsset(e.Asset),
		"paid":               formatAmount(e.Paid),
		"collateralAsset":    formatAsset(e.CollateralAsset),
		"releasedCollateral": formatAmount(e.ReleasedCollateral),
		"closed":             closed,
	}}
}

// AssetPriceAdded is emitted when a directed pair price is stored.
type AssetPriceAdded struct {
	Asset uint32
	Base  uint32
	Price fixed.Rate
}

func (AssetPriceAdded) EventType() string { return TypeAssetPriceAdded }

func (e AssetPriceAdded) Event() *Record {
	return &Record{Type: TypeAssetPriceAdded, Attributes: map[string]string{
		"asset": formatAsset(e.Asset),
		"base":  formatAsset(e.Base),
		"price": e.Price.String(),
	}}
}
