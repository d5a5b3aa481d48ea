package state

import (
	"fmt"
	"math/big"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/native/lending"
	"kylix/numeric/fixed"
)

type storedRateModel struct {
	Curve    string
	Y0       *big.Int
	Y1       *big.Int
	Xm       *big.Int
	Ym       *big.Int
	BaseRate *big.Int
	Slope1   *big.Int
	Slope2   *big.Int
	Kink     *big.Int
}

type storedPool struct {
	ID                    uint32
	Asset                 uint32
	ReserveBalance        *big.Int
	BorrowedBalance       *big.Int
	Activated             bool
	InterestModel         storedRateModel
	ReserveFactor         *big.Int
	CollateralFactor      *big.Int
	LiquidationThreshold  *big.Int
	BorrowIndex           *big.Int
	SupplyIndex           *big.Int
	LastAccruedInterestAt uint64
}

type storedLoan struct {
	BorrowedBalance         *big.Int
	Principal               *big.Int
	CollateralBalance       *big.Int
	BorrowIndexAtBorrowTime *big.Int
}

type storedSupplyIndex struct {
	SupplyIndex           *big.Int
	LastAccruedInterestAt uint64
}

func newStoredPool(p *lending.Pool) *storedPool {
	model := p.InterestModel
	return &storedPool{
		ID:              uint32(p.ID),
		Asset:           uint32(p.Asset),
		ReserveBalance:  toBig(p.ReserveBalance),
		BorrowedBalance: toBig(p.BorrowedBalance),
		Activated:       p.Activated,
		InterestModel: storedRateModel{
			Curve:    string(model.Curve),
			Y0:       rateToBig(model.Y0),
			Y1:       rateToBig(model.Y1),
			Xm:       rateToBig(model.Xm),
			Ym:       rateToBig(model.Ym),
			BaseRate: rateToBig(model.BaseRate),
			Slope1:   rateToBig(model.Slope1),
			Slope2:   rateToBig(model.Slope2),
			Kink:     rateToBig(model.Kink),
		},
		ReserveFactor:         rateToBig(p.ReserveFactor),
		CollateralFactor:      rateToBig(p.CollateralFactor),
		LiquidationThreshold:  rateToBig(p.LiquidationThreshold),
		BorrowIndex:           rateToBig(p.BorrowIndex),
		SupplyIndex:           rateToBig(p.SupplyIndex),
		LastAccruedInterestAt: p.LastAccruedInterestAt,
	}
}

// rates decodes a list of stored fixed-point values, stopping at the first
// malformed entry.
func rates(dst []*fixed.Rate, src []*big.Int) error {
	for i := range dst {
		r, err := rateFromBig(src[i])
		if err != nil {
			return err
		}
		*dst[i] = r
	}
	return nil
}

func (s *storedPool) toPool() (*lending.Pool, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil pool record")
	}
	reserve, err := fromBig(s.ReserveBalance)
	if err != nil {
		return nil, err
	}
	borrowed, err := fromBig(s.BorrowedBalance)
	if err != nil {
		return nil, err
	}
	pool := &lending.Pool{
		ID:                    assets.ID(s.ID),
		Asset:                 assets.ID(s.Asset),
		ReserveBalance:        reserve,
		BorrowedBalance:       borrowed,
		Activated:             s.Activated,
		LastAccruedInterestAt: s.LastAccruedInterestAt,
	}
	model := &pool.InterestModel
	model.Curve = lending.Curve(s.InterestModel.Curve)
	err = rates(
		[]*fixed.Rate{
			&model.Y0, &model.Y1, &model.Xm, &model.Ym,
			&model.BaseRate, &model.Slope1, &model.Slope2, &model.Kink,
			&pool.ReserveFactor, &pool.CollateralFactor, &pool.LiquidationThreshold,
			&pool.BorrowIndex, &pool.SupplyIndex,
		},
		[]*big.Int{
			s.InterestModel.Y0, s.InterestModel.Y1, s.InterestModel.Xm, s.InterestModel.Ym,
			s.InterestModel.BaseRate, s.InterestModel.Slope1, s.InterestModel.Slope2, s.InterestModel.Kink,
			s.ReserveFactor, s.CollateralFactor, s.LiquidationThreshold,
			s.BorrowIndex, s.SupplyIndex,
		},
	)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (s *storedLoan) toLoan() (*lending.Loan, error) {
	borrowed, err := fromBig(s.BorrowedBalance)
	if err != nil {
		return nil, err
	}
	principal, err := fromBig(s.Principal)
	if err != nil {
		return nil, err
	}
	collateral, err := fromBig(s.CollateralBalance)
	if err != nil {
		return nil, err
	}
	index, err := rateFromBig(s.BorrowIndexAtBorrowTime)
	if err != nil {
		return nil, err
	}
	return &lending.Loan{
		BorrowedBalance:         borrowed,
		Principal:               principal,
		CollateralBalance:       collateral,
		BorrowIndexAtBorrowTime: index,
	}, nil
}

// GetPool returns the pool for asset or nil when none exists.
func (m *Manager) GetPool(asset assets.ID) (*lending.Pool, error) {
	stored := new(storedPool)
	ok, err := m.get(PoolKey(asset), stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toPool()
}

func (m *Manager) PutPool(pool *lending.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return m.put(PoolKey(pool.Asset), newStoredPool(pool))
}

// ForEachPool visits pools in ascending asset order.
func (m *Manager) ForEachPool(fn func(*lending.Pool) error) error {
	return m.iterate(poolPrefix, func() interface{} { return new(storedPool) }, func(_ []byte, record interface{}) error {
		pool, err := record.(*storedPool).toPool()
		if err != nil {
			return err
		}
		return fn(pool)
	})
}

func (m *Manager) GetLoan(key lending.LoanKey) (*lending.Loan, error) {
	stored := new(storedLoan)
	ok, err := m.get(LoanKey(key.Account, key.Asset, key.CollateralAsset), stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toLoan()
}

func (m *Manager) PutLoan(key lending.LoanKey, loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	return m.put(LoanKey(key.Account, key.Asset, key.CollateralAsset), &storedLoan{
		BorrowedBalance:         toBig(loan.BorrowedBalance),
		Principal:               toBig(loan.Principal),
		CollateralBalance:       toBig(loan.CollateralBalance),
		BorrowIndexAtBorrowTime: rateToBig(loan.BorrowIndexAtBorrowTime),
	})
}

func (m *Manager) DeleteLoan(key lending.LoanKey) error {
	return m.kv.Delete(LoanKey(key.Account, key.Asset, key.CollateralAsset))
}

// ForEachLoan visits account's loans ordered by borrow then collateral asset.
func (m *Manager) ForEachLoan(account crypto.Address, fn func(lending.LoanKey, *lending.Loan) error) error {
	prefix := compositeKey(loanPrefix, account.Bytes())
	return m.iterate(prefix, func() interface{} { return new(storedLoan) }, func(suffix []byte, record interface{}) error {
		if len(suffix) != 8 {
			return fmt.Errorf("state: malformed loan key %x", suffix)
		}
		loan, err := record.(*storedLoan).toLoan()
		if err != nil {
			return err
		}
		return fn(lending.LoanKey{
			Account:         account,
			Asset:           idFrom(suffix[:4]),
			CollateralAsset: idFrom(suffix[4:]),
		}, loan)
	})
}

func (m *Manager) GetAssetPrice(asset, base assets.ID) (fixed.Rate, bool, error) {
	raw := new(big.Int)
	ok, err := m.get(PriceKey(asset, base), raw)
	if err != nil || !ok {
		return fixed.Zero(), false, err
	}
	price, err := rateFromBig(raw)
	if err != nil {
		return fixed.Zero(), false, err
	}
	return price, true, nil
}

func (m *Manager) PutAssetPrice(asset, base assets.ID, price fixed.Rate) error {
	return m.put(PriceKey(asset, base), rateToBig(price))
}

func (m *Manager) GetSupplyIndex(account crypto.Address, asset assets.ID) (*lending.SupplyIndex, error) {
	stored := new(storedSupplyIndex)
	ok, err := m.get(SupplyIndexKey(account, asset), stored)
	if err != nil || !ok {
		return nil, err
	}
	index, err := rateFromBig(stored.SupplyIndex)
	if err != nil {
		return nil, err
	}
	return &lending.SupplyIndex{SupplyIndex: index, LastAccruedInterestAt: stored.LastAccruedInterestAt}, nil
}

func (m *Manager) PutSupplyIndex(account crypto.Address, asset assets.ID, index *lending.SupplyIndex) error {
	if index == nil {
		return fmt.Errorf("state: nil supply index")
	}
	return m.put(SupplyIndexKey(account, asset), &storedSupplyIndex{
		SupplyIndex:           rateToBig(index.SupplyIndex),
		LastAccruedInterestAt: index.LastAccruedInterestAt,
	})
}
