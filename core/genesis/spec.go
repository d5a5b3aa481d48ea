package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/numeric/fixed"
)

// Spec describes the tokens, balances and prices a fresh ledger starts with.
type Spec struct {
	Assets   []AssetSpec   `json:"assets" yaml:"assets"`
	Balances []BalanceSpec `json:"balances" yaml:"balances"`
	Prices   []PriceSpec   `json:"prices" yaml:"prices"`
}

type AssetSpec struct {
	ID         uint32 `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Symbol     string `json:"symbol" yaml:"symbol"`
	Decimals   uint8  `json:"decimals" yaml:"decimals"`
	MinBalance string `json:"minBalance,omitempty" yaml:"min_balance"`
	Owner      string `json:"owner" yaml:"owner"`
}

type BalanceSpec struct {
	Asset   uint32 `json:"asset" yaml:"asset"`
	Account string `json:"account" yaml:"account"`
	Amount  string `json:"amount" yaml:"amount"`
}

// PriceSpec states that one unit of Asset is worth Price units of Base.
type PriceSpec struct {
	Asset uint32 `json:"asset" yaml:"asset"`
	Base  uint32 `json:"base" yaml:"base"`
	Price string `json:"price" yaml:"price"`
}

// Target receives the genesis records.
type Target interface {
	AssetExists(id assets.ID) (bool, error)
	CreateAsset(id assets.ID, owner crypto.Address, meta assets.Metadata) error
	Mint(id assets.ID, who crypto.Address, amount *uint256.Int) error
	SetAssetPrice(asset, base assets.ID, price fixed.Rate) error
}

// Load reads a JSON genesis file and validates it.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate checks every record without touching any ledger.
func (s *Spec) Validate() error {
	if s == nil {
		return nil
	}
	ids := make(map[uint32]struct{}, len(s.Assets))
	for i := range s.Assets {
		asset := &s.Assets[i]
		if err := asset.validate(); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, dup := ids[asset.ID]; dup {
			return fmt.Errorf("assets[%d]: duplicate id %d", i, asset.ID)
		}
		ids[asset.ID] = struct{}{}
	}
	for i, balance := range s.Balances {
		if _, ok := ids[balance.Asset]; !ok {
			return fmt.Errorf("balances[%d]: unknown asset %d", i, balance.Asset)
		}
		if _, err := crypto.DecodeAddress(balance.Account); err != nil {
			return fmt.Errorf("balances[%d]: account: %w", i, err)
		}
		if _, err := parseAmount(balance.Amount); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}
	for i, price := range s.Prices {
		if price.Asset == price.Base {
			return fmt.Errorf("prices[%d]: asset and base must differ", i)
		}
		parsed, err := fixed.Parse(strings.TrimSpace(price.Price))
		if err != nil {
			return fmt.Errorf("prices[%d]: %w", i, err)
		}
		if parsed.IsZero() {
			return fmt.Errorf("prices[%d]: price must be positive", i)
		}
	}
	return nil
}

// Apply writes the spec into target. Assets that already exist are left
// untouched together with their balances, so restarting over a populated
// database is a no-op. Prices are always refreshed.
func Apply(spec *Spec, target Target) error {
	if spec == nil {
		return nil
	}
	if target == nil {
		return fmt.Errorf("genesis target must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	ordered := append([]AssetSpec(nil), spec.Assets...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	fresh := make(map[uint32]bool, len(ordered))
	for _, asset := range ordered {
		id := assets.ID(asset.ID)
		exists, err := target.AssetExists(id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		owner, err := crypto.DecodeAddress(asset.Owner)
		if err != nil {
			return err
		}
		minBalance, err := parseAmount(asset.MinBalance)
		if err != nil {
			return err
		}
		meta := assets.Metadata{
			Name:       asset.Name,
			Symbol:     asset.Symbol,
			Decimals:   asset.Decimals,
			MinBalance: minBalance,
		}
		if err := target.CreateAsset(id, owner, meta); err != nil {
			return fmt.Errorf("create asset %d: %w", asset.ID, err)
		}
		fresh[asset.ID] = true
	}

	for _, balance := range spec.Balances {
		if !fresh[balance.Asset] {
			continue
		}
		account, err := crypto.DecodeAddress(balance.Account)
		if err != nil {
			return err
		}
		amount, err := parseAmount(balance.Amount)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			continue
		}
		if err := target.Mint(assets.ID(balance.Asset), account, amount); err != nil {
			return fmt.Errorf("mint asset %d: %w", balance.Asset, err)
		}
	}

	for _, price := range spec.Prices {
		parsed, err := fixed.Parse(strings.TrimSpace(price.Price))
		if err != nil {
			return err
		}
		if err := target.SetAssetPrice(assets.ID(price.Asset), assets.ID(price.Base), parsed); err != nil {
			return fmt.Errorf("set price %d/%d: %w", price.Asset, price.Base, err)
		}
	}
	return nil
}

func (a *AssetSpec) validate() error {
	if a.ID == 0 {
		return fmt.Errorf("id must be positive")
	}
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if a.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	if _, err := crypto.DecodeAddress(a.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if _, err := parseAmount(a.MinBalance); err != nil {
		return fmt.Errorf("min balance: %w", err)
	}
	return nil
}

func parseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
