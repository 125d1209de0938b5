package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// priceWad resolves an asset price as a 1e18 fixed-point value, enforcing
// the oracle freshness bound. A missing, non-positive or unstamped quote
// fails with ErrPriceUnavailable; a quote older than the bound fails with
// ErrStalePrice. Either failure aborts the whole evaluation so stale data
// never flows into a health decision.
func (e *Engine) priceWad(asset common.Address, now uint64) (Fixed, error) {
	if e.prices == nil {
		return Fixed{}, errNilPriceSource
	}
	quote, err := e.prices.GetPrice(asset)
	if err != nil {
		return Fixed{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if quote.Value == nil || quote.Value.Sign() <= 0 || quote.UpdatedAt == 0 {
		return Fixed{}, ErrPriceUnavailable
	}
	maxAge := e.maxPriceAge
	if maxAge == 0 {
		maxAge = defaultMaxPriceAge
	}
	if now > quote.UpdatedAt && now-quote.UpdatedAt > maxAge {
		return Fixed{}, ErrStalePrice
	}
	return normalizeQuote(quote.Value, quote.Decimals), nil
}

// accountLiquidity aggregates a user's positions across every market they
// have ever touched into collateral value versus borrow value. The walk
// operates on cloned markets accrued to now, so a read never mutates ledger
// state.
func (e *Engine) accountLiquidity(user common.Address, now uint64) (*AccountLiquidity, error) {
	membership, err := e.state.GetMembership(user)
	if err != nil {
		return nil, err
	}
	result := &AccountLiquidity{
		CollateralValue: new(big.Int),
		BorrowValue:     new(big.Int),
	}
	if membership == nil {
		return result, nil
	}

	for _, asset := range membership.Supplied {
		supplied, _, market, err := e.reconciledView(user, asset, now)
		if err != nil {
			return nil, err
		}
		if supplied.Sign() == 0 {
			continue
		}
		price, err := e.priceWad(asset, now)
		if err != nil {
			return nil, err
		}
		value := price.MulAmount(supplied)
		result.CollateralValue.Add(result.CollateralValue, market.CollateralFactor.MulAmount(value))
	}

	for _, asset := range membership.Borrowed {
		_, borrowed, _, err := e.reconciledView(user, asset, now)
		if err != nil {
			return nil, err
		}
		if borrowed.Sign() == 0 {
			continue
		}
		price, err := e.priceWad(asset, now)
		if err != nil {
			return nil, err
		}
		result.BorrowValue.Add(result.BorrowValue, price.MulAmount(borrowed))
	}

	return result, nil
}

// reconciledView returns a user's supplied and borrowed amounts in one
// market as of now, computed on clones.
func (e *Engine) reconciledView(user, asset common.Address, now uint64) (*big.Int, *big.Int, *Market, error) {
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, nil, nil, err
	}
	if market == nil || !market.Listed {
		return nil, nil, nil, ErrNotListed
	}
	market = market.Clone()
	market.Accrue(now)

	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, nil, nil, err
	}
	if position == nil {
		return new(big.Int), new(big.Int), market, nil
	}
	position = position.Clone()
	position.Reconcile(market)
	return position.Supplied, position.Borrowed, market, nil
}

// healthyAfter evaluates the borrow/withdraw gate with hypothetical
// post-action balances: the withdrawn collateral's value is subtracted and
// the new borrow's value added before comparing. Real state is never
// mutated to test.
func (e *Engine) healthyAfter(user common.Address, now uint64, withdrawAsset common.Address, withdrawAmount *big.Int, borrowAsset common.Address, borrowAmount *big.Int) error {
	liquidity, err := e.accountLiquidity(user, now)
	if err != nil {
		return err
	}
	collateral := new(big.Int).Set(liquidity.CollateralValue)
	borrow := new(big.Int).Set(liquidity.BorrowValue)

	if withdrawAmount != nil && withdrawAmount.Sign() > 0 {
		market, err := e.state.GetMarket(withdrawAsset)
		if err != nil {
			return err
		}
		if market == nil || !market.Listed {
			return ErrNotListed
		}
		price, err := e.priceWad(withdrawAsset, now)
		if err != nil {
			return err
		}
		value := price.MulAmount(withdrawAmount)
		collateral.Sub(collateral, market.CollateralFactor.MulAmount(value))
	}

	if borrowAmount != nil && borrowAmount.Sign() > 0 {
		price, err := e.priceWad(borrowAsset, now)
		if err != nil {
			return err
		}
		borrow.Add(borrow, price.MulAmount(borrowAmount))
	}

	if collateral.Cmp(borrow) < 0 {
		return ErrUnhealthyPosition
	}
	return nil
}

// isLiquidatable reports whether the account's debt strictly exceeds its
// collateral value at current actual balances. Exactly-collateralized
// accounts are not liquidatable.
func (e *Engine) isLiquidatable(user common.Address, now uint64) (bool, error) {
	liquidity, err := e.accountLiquidity(user, now)
	if err != nil {
		return false, err
	}
	return liquidity.BorrowValue.Cmp(liquidity.CollateralValue) > 0, nil
}
