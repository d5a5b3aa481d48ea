package lending

import (
	"sort"

	"github.com/holiman/uint256"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/numeric/fixed"
)

// AssetInfo is the token metadata attached to every reporting record.
type AssetInfo struct {
	AssetID  uint32       `json:"assetId"`
	Name     string       `json:"assetName"`
	Symbol   string       `json:"assetSymbol"`
	Decimals uint8        `json:"decimals"`
	Balance  *uint256.Int `json:"balance"`
}

// PoolSummary describes one pool for listings.
type PoolSummary struct {
	ID             uint32       `json:"id"`
	AssetID        uint32       `json:"assetId"`
	Asset          string       `json:"asset"`
	AssetDecimals  uint8        `json:"assetDecimals"`
	AssetSymbol    string       `json:"assetSymbol"`
	CollateralQ    uint64       `json:"collateralQ"`
	Utilization    fixed.Rate   `json:"utilization"`
	BorrowAPY      fixed.Rate   `json:"borrowApy"`
	SupplyAPY      fixed.Rate   `json:"supplyApy"`
	Activated      bool         `json:"isActivated"`
	Balance        *uint256.Int `json:"balance"`
	ReserveBalance *uint256.Int `json:"reserveBalance"`
}

// AggregatedTotals are pool totals in anchor units.
type AggregatedTotals struct {
	TotalSupply *uint256.Int `json:"totalSupply"`
	TotalBorrow *uint256.Int `json:"totalBorrow"`
}

// SuppliedAsset is an account's deposit in one pool.
type SuppliedAsset struct {
	AssetInfo
	APY         fixed.Rate   `json:"apy"`
	Supplied    *uint256.Int `json:"supplied"`
	AnchorValue *uint256.Int `json:"anchorValue"`
}

// BorrowedAsset is one outstanding loan of an account.
type BorrowedAsset struct {
	AssetInfo
	CollateralAssetID uint32       `json:"collateralAssetId"`
	APY               fixed.Rate   `json:"apy"`
	Borrowed          *uint256.Int `json:"borrowed"`
	AnchorValue       *uint256.Int `json:"anchorValue"`
}

// CollateralAsset is the collateral locked behind one loan.
type CollateralAsset struct {
	AssetInfo
	Amount      *uint256.Int `json:"amount"`
	AnchorValue *uint256.Int `json:"anchorValue"`
}

// UserLTV reports an account's current loan-to-value and the limits of the
// tightest pool it borrows from.
type UserLTV struct {
	CurrentLTV     fixed.Rate `json:"currentLtv"`
	SaleLTV        fixed.Rate `json:"saleLtv"`
	LiquidationLTV fixed.Rate `json:"liquidationLtv"`
}

// BorrowsCollaterals groups an account's loans for reporting.
type BorrowsCollaterals struct {
	Borrowed        []BorrowedAsset   `json:"borrowed"`
	Collateral      []CollateralAsset `json:"collateral"`
	TotalBorrow     *uint256.Int      `json:"totalBorrow"`
	TotalCollateral *uint256.Int      `json:"totalCollateral"`
}

// PoolFilter narrows GetLendingPools. Nil fields match everything.
type PoolFilter struct {
	Asset   *assets.ID
	Account *crypto.Address
}

var hundred = fixed.FromUint64(100)

// GetLendingPools lists pools ordered by asset together with their reserve
// and borrowed totals in anchor units. Pools without a price toward the
// anchor contribute zero to the totals.
func (e *Engine) GetLendingPools(filter PoolFilter) ([]PoolSummary, AggregatedTotals, error) {
	totals := AggregatedTotals{TotalSupply: new(uint256.Int), TotalBorrow: new(uint256.Int)}
	if err := e.ready(); err != nil {
		return nil, totals, err
	}
	pools, err := e.listPools()
	if err != nil {
		return nil, totals, err
	}
	var borrowing map[assets.ID]bool
	if filter.Account != nil {
		if borrowing, err = e.borrowedAssets(*filter.Account); err != nil {
			return nil, totals, err
		}
	}

	summaries := make([]PoolSummary, 0, len(pools))
	for _, pool := range pools {
		if filter.Asset != nil && pool.Asset != *filter.Asset {
			continue
		}
		if filter.Account != nil && !borrowing[pool.Asset] {
			shares, err := e.tokens.Balance(pool.ID, *filter.Account)
			if err != nil {
				return nil, totals, err
			}
			if shares.IsZero() {
				continue
			}
		}
		summary, err := e.summarise(pool)
		if err != nil {
			return nil, totals, err
		}
		summaries = append(summaries, summary)
		totals.TotalSupply = saturatingAdd(totals.TotalSupply, e.anchorValue(pool.Asset, pool.ReserveBalance))
		totals.TotalBorrow = saturatingAdd(totals.TotalBorrow, e.anchorValue(pool.Asset, pool.BorrowedBalance))
	}
	return summaries, totals, nil
}

// GetUserLTV wraps ComputeUserLTV in its reporting record.
func (e *Engine) GetUserLTV(account crypto.Address) (UserLTV, error) {
	current, sale, liquidation, err := e.ComputeUserLTV(account)
	if err != nil {
		return UserLTV{}, err
	}
	return UserLTV{CurrentLTV: current, SaleLTV: sale, LiquidationLTV: liquidation}, nil
}

// ComputeUserLTV returns borrowed/collateral across all of account's loans
// in anchor units, with the minimum collateral factor and liquidation
// threshold of the pools borrowed from. Pool indexes are brought up to date
// on copies only.
func (e *Engine) ComputeUserLTV(account crypto.Address) (current, sale, liquidation fixed.Rate, err error) {
	if err = e.ready(); err != nil {
		return
	}
	now := e.clock.Now()
	borrowed := new(uint256.Int)
	collateral := new(uint256.Int)
	found := false
	pools := make(map[assets.ID]*Pool)

	err = e.state.ForEachLoan(account, func(key LoanKey, loan *Loan) error {
		pool, ok := pools[key.Asset]
		if !ok {
			p, err := e.loadPool(key.Asset)
			if err != nil {
				return err
			}
			if err := p.UpdateIndexes(now); err != nil {
				return err
			}
			pools[key.Asset], pool = p, p
		}
		repayable, err := pool.RepayableAmount(loan)
		if err != nil {
			return err
		}
		debtValue, err := e.GetEquivalentAssetAmount(e.anchor, key.Asset, repayable)
		if err != nil {
			return err
		}
		collateralValue, err := e.GetEquivalentAssetAmount(e.anchor, key.CollateralAsset, loan.CollateralBalance)
		if err != nil {
			return err
		}
		if borrowed, err = fixed.CheckedAdd(borrowed, debtValue); err != nil {
			return arithmetic(err)
		}
		if collateral, err = fixed.CheckedAdd(collateral, collateralValue); err != nil {
			return arithmetic(err)
		}
		if !found {
			sale, liquidation = pool.CollateralFactor, pool.LiquidationThreshold
			found = true
		} else {
			sale = fixed.Min(sale, pool.CollateralFactor)
			liquidation = fixed.Min(liquidation, pool.LiquidationThreshold)
		}
		return nil
	})
	if err != nil || !found {
		return fixed.Zero(), fixed.Zero(), fixed.Zero(), err
	}
	if !collateral.IsZero() {
		if current, err = fixed.Ratio(borrowed, collateral); err != nil {
			return fixed.Zero(), fixed.Zero(), fixed.Zero(), arithmetic(err)
		}
	}
	return current, sale, liquidation, nil
}

// GetAssetWiseSupplies lists account's deposits with their accrued value and
// the total in anchor units.
func (e *Engine) GetAssetWiseSupplies(account crypto.Address) ([]SuppliedAsset, *uint256.Int, error) {
	total := new(uint256.Int)
	if err := e.ready(); err != nil {
		return nil, total, err
	}
	pools, err := e.listPools()
	if err != nil {
		return nil, total, err
	}
	now := e.clock.Now()
	out := make([]SuppliedAsset, 0)
	for _, pool := range pools {
		shares, err := e.tokens.Balance(pool.ID, account)
		if err != nil {
			return nil, total, err
		}
		if shares.IsZero() {
			continue
		}
		if err := pool.UpdateIndexes(now); err != nil {
			return nil, total, err
		}
		supplied, err := pool.AccruedDeposit(shares)
		if err != nil {
			return nil, total, err
		}
		info, err := e.assetInfo(pool.Asset, account)
		if err != nil {
			return nil, total, err
		}
		apy, err := pool.SupplyInterestRate()
		if err != nil {
			return nil, total, err
		}
		value := e.anchorValue(pool.Asset, supplied)
		total = saturatingAdd(total, value)
		out = append(out, SuppliedAsset{AssetInfo: info, APY: apy, Supplied: supplied, AnchorValue: value})
	}
	return out, total, nil
}

// GetAssetWiseBorrowsCollaterals lists account's loans and the collateral
// behind them, each valued in anchor units.
func (e *Engine) GetAssetWiseBorrowsCollaterals(account crypto.Address) (BorrowsCollaterals, error) {
	out := BorrowsCollaterals{
		Borrowed:        make([]BorrowedAsset, 0),
		Collateral:      make([]CollateralAsset, 0),
		TotalBorrow:     new(uint256.Int),
		TotalCollateral: new(uint256.Int),
	}
	if err := e.ready(); err != nil {
		return out, err
	}
	now := e.clock.Now()
	pools := make(map[assets.ID]*Pool)
	err := e.state.ForEachLoan(account, func(key LoanKey, loan *Loan) error {
		pool, ok := pools[key.Asset]
		if !ok {
			p, err := e.state.GetPool(key.Asset)
			if err != nil {
				return err
			}
			if p == nil {
				return nil
			}
			if err := p.UpdateIndexes(now); err != nil {
				return err
			}
			pools[key.Asset], pool = p, p
		}
		repayable, err := pool.RepayableAmount(loan)
		if err != nil {
			return err
		}
		apy, err := pool.BorrowInterestRate()
		if err != nil {
			return err
		}
		borrowInfo, err := e.assetInfo(key.Asset, account)
		if err != nil {
			return err
		}
		collateralInfo, err := e.assetInfo(key.CollateralAsset, account)
		if err != nil {
			return err
		}
		debtValue := e.anchorValue(key.Asset, repayable)
		collateralValue := e.anchorValue(key.CollateralAsset, loan.CollateralBalance)
		out.TotalBorrow = saturatingAdd(out.TotalBorrow, debtValue)
		out.TotalCollateral = saturatingAdd(out.TotalCollateral, collateralValue)
		out.Borrowed = append(out.Borrowed, BorrowedAsset{
			AssetInfo:         borrowInfo,
			CollateralAssetID: uint32(key.CollateralAsset),
			APY:               apy,
			Borrowed:          repayable,
			AnchorValue:       debtValue,
		})
		out.Collateral = append(out.Collateral, CollateralAsset{
			AssetInfo:   collateralInfo,
			Amount:      balanceOrZero(loan.CollateralBalance).Clone(),
			AnchorValue: collateralValue,
		})
		return nil
	})
	return out, err
}

func (e *Engine) summarise(pool *Pool) (PoolSummary, error) {
	meta, err := e.tokens.Metadata(pool.Asset)
	if err != nil {
		return PoolSummary{}, err
	}
	utilisation, err := pool.UtilisationRatio()
	if err != nil {
		return PoolSummary{}, err
	}
	borrowRate, err := pool.BorrowInterestRate()
	if err != nil {
		return PoolSummary{}, err
	}
	supplyRate, err := pool.SupplyInterestRate()
	if err != nil {
		return PoolSummary{}, err
	}
	borrowAPY, err := borrowRate.Mul(hundred)
	if err != nil {
		return PoolSummary{}, arithmetic(err)
	}
	supplyAPY, err := supplyRate.Mul(hundred)
	if err != nil {
		return PoolSummary{}, arithmetic(err)
	}
	collateralQ, err := pool.CollateralFactor.Mul(hundred)
	if err != nil {
		return PoolSummary{}, arithmetic(err)
	}
	total, err := fixed.CheckedAdd(pool.ReserveBalance, pool.BorrowedBalance)
	if err != nil {
		return PoolSummary{}, arithmetic(err)
	}
	q := new(uint256.Int).Div(collateralQ.Inner(), fixed.One().Inner())
	return PoolSummary{
		ID:             uint32(pool.ID),
		AssetID:        uint32(pool.Asset),
		Asset:          meta.Name,
		AssetDecimals:  meta.Decimals,
		AssetSymbol:    meta.Symbol,
		CollateralQ:    q.Uint64(),
		Utilization:    utilisation,
		BorrowAPY:      borrowAPY,
		SupplyAPY:      supplyAPY,
		Activated:      pool.Activated,
		Balance:        total,
		ReserveBalance: balanceOrZero(pool.ReserveBalance).Clone(),
	}, nil
}

func (e *Engine) assetInfo(asset assets.ID, account crypto.Address) (AssetInfo, error) {
	meta, err := e.tokens.Metadata(asset)
	if err != nil {
		return AssetInfo{}, err
	}
	bal, err := e.tokens.Balance(asset, account)
	if err != nil {
		return AssetInfo{}, err
	}
	return AssetInfo{
		AssetID:  uint32(asset),
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Balance:  bal.Clone(),
	}, nil
}

// anchorValue converts amount of asset into anchor units, reading missing or
// unusable prices as zero.
func (e *Engine) anchorValue(asset assets.ID, amount *uint256.Int) *uint256.Int {
	out, err := e.GetEquivalentAssetAmount(e.anchor, asset, amount)
	if err != nil {
		return new(uint256.Int)
	}
	return out
}

func (e *Engine) listPools() ([]*Pool, error) {
	var pools []*Pool
	err := e.state.ForEachPool(func(p *Pool) error {
		pools = append(pools, p.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Asset < pools[j].Asset })
	return pools, nil
}

func (e *Engine) borrowedAssets(account crypto.Address) (map[assets.ID]bool, error) {
	out := make(map[assets.ID]bool)
	err := e.state.ForEachLoan(account, func(key LoanKey, _ *Loan) error {
		out[key.Asset] = true
		return nil
	})
	return out, err
}

func saturatingAdd(a, b *uint256.Int) *uint256.Int {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}
