package lending

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"kylix/core/events"
	"kylix/native/assets"
	"kylix/numeric/fixed"
)

// SetAssetPrice records how many units of base one unit of asset is worth.
func (e *Engine) SetAssetPrice(asset, base assets.ID, price fixed.Rate) error {
	if err := e.mutable(); err != nil {
		return err
	}
	if price.IsZero() {
		return ErrInvalidAssetPrice
	}
	if asset == base {
		return fmt.Errorf("%w: asset and base must differ", ErrInvalidAssetPrice)
	}
	if err := e.state.PutAssetPrice(asset, base, price); err != nil {
		return err
	}
	e.emitter.Emit(events.AssetPriceAdded{Asset: uint32(asset), Base: uint32(base), Price: price})
	e.logger.Info("asset price set",
		slog.Uint64("asset", uint64(asset)),
		slog.Uint64("base", uint64(base)),
		slog.String("price", price.String()))
	return nil
}

// GetAssetPrice returns the value of one unit of asset expressed in base,
// deriving it from the inverse pair or through the anchor when no direct
// quote is stored.
func (e *Engine) GetAssetPrice(asset, base assets.ID) (fixed.Rate, error) {
	if err := e.ready(); err != nil {
		return fixed.Zero(), err
	}
	if asset == base {
		return fixed.One(), nil
	}
	if price, ok, err := e.state.GetAssetPrice(asset, base); err != nil || ok {
		return price, err
	}
	if inverse, ok, err := e.state.GetAssetPrice(base, asset); err != nil {
		return fixed.Zero(), err
	} else if ok {
		price, err := fixed.One().Div(inverse)
		return price, arithmetic(err)
	}
	assetAnchor, baseAnchor, err := e.anchorPrices(asset, base)
	if err != nil {
		return fixed.Zero(), err
	}
	price, err := assetAnchor.Div(baseAnchor)
	return price, arithmetic(err)
}

// GetEquivalentAssetAmount converts amount of base into units of quote.
func (e *Engine) GetEquivalentAssetAmount(quote, base assets.ID, amount *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if quote == base {
		return amount.Clone(), nil
	}
	if direct, ok, err := e.state.GetAssetPrice(base, quote); err != nil {
		return nil, err
	} else if ok {
		out, err := fixed.MulBalance(amount, direct)
		return out, arithmetic(err)
	}
	if inverse, ok, err := e.state.GetAssetPrice(quote, base); err != nil {
		return nil, err
	} else if ok {
		out, err := fixed.DivBalance(amount, inverse)
		return out, arithmetic(err)
	}
	baseAnchor, quoteAnchor, err := e.anchorPrices(base, quote)
	if err != nil {
		return nil, err
	}
	out, err := fixed.MulDivBalance(amount, baseAnchor, quoteAnchor)
	return out, arithmetic(err)
}

// EstimateCollateralAmount returns the collateral needed to borrow amount of
// borrowAsset at the borrow pool's collateral factor.
func (e *Engine) EstimateCollateralAmount(borrowAsset assets.ID, amount *uint256.Int, collateralAsset assets.ID) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(borrowAsset)
	if err != nil {
		return nil, err
	}
	equivalent, err := e.GetEquivalentAssetAmount(collateralAsset, borrowAsset, amount)
	if err != nil {
		return nil, err
	}
	out, err := fixed.DivBalance(equivalent, pool.CollateralFactor)
	return out, arithmetic(err)
}

// anchorPrices returns the anchor-denominated price of both assets.
func (e *Engine) anchorPrices(a, b assets.ID) (fixed.Rate, fixed.Rate, error) {
	pa, err := e.anchorPrice(a)
	if err != nil {
		return fixed.Zero(), fixed.Zero(), err
	}
	pb, err := e.anchorPrice(b)
	if err != nil {
		return fixed.Zero(), fixed.Zero(), err
	}
	if pb.IsZero() {
		return fixed.Zero(), fixed.Zero(), fmt.Errorf("%w: %d", ErrInvalidAssetPrice, b)
	}
	return pa, pb, nil
}

func (e *Engine) anchorPrice(asset assets.ID) (fixed.Rate, error) {
	if asset == e.anchor {
		return fixed.One(), nil
	}
	price, ok, err := e.state.GetAssetPrice(asset, e.anchor)
	if err != nil {
		return fixed.Zero(), err
	}
	if !ok {
		return fixed.Zero(), fmt.Errorf("%w: %d/%d", ErrAssetPriceNotSet, asset, e.anchor)
	}
	return price, nil
}
