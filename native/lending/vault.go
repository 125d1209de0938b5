package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenVault is the fungible-asset transfer surface the engine drives. The
// vault custodies pooled liquidity for every listed asset; transfers are
// treated as potentially-failing external calls whose failure aborts the
// whole operation. A liquidation whose collateral leg fails refunds the
// already-completed repayment with a second TransferOut, so implementations
// must honour a TransferOut of funds the pool received earlier in the same
// call.
type TokenVault interface {
	// TransferIn moves amount of asset from the holder into the pool.
	TransferIn(asset, from common.Address, amount *big.Int) error
	// TransferOut releases amount of asset from the pool to the holder.
	TransferOut(asset, to common.Address, amount *big.Int) error
	// BalanceOf reports the holder's spendable balance of asset.
	BalanceOf(asset, holder common.Address) (*big.Int, error)
}

// BalanceState is the persistence surface backing the in-state token ledger.
type BalanceState interface {
	GetBalance(asset, holder common.Address) (*big.Int, error)
	PutBalance(asset, holder common.Address, amount *big.Int) error
}

// LedgerVault implements TokenVault over a balance store. The pool treasury
// is a fixed module address so every market's cash lives under one holder.
type LedgerVault struct {
	state  BalanceState
	module common.Address
}

// NewLedgerVault constructs a vault custodied by the given module address.
func NewLedgerVault(state BalanceState, module common.Address) *LedgerVault {
	return &LedgerVault{state: state, module: module}
}

// ModuleAddress returns the treasury address holding pooled liquidity.
func (v *LedgerVault) ModuleAddress() common.Address { return v.module }

// TransferIn debits the holder and credits the pool treasury.
func (v *LedgerVault) TransferIn(asset, from common.Address, amount *big.Int) error {
	return v.move(asset, from, v.module, amount)
}

// TransferOut debits the pool treasury and credits the holder.
func (v *LedgerVault) TransferOut(asset, to common.Address, amount *big.Int) error {
	return v.move(asset, v.module, to, amount)
}

// BalanceOf reports the holder's ledger balance for the asset.
func (v *LedgerVault) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilVault
	}
	balance, err := v.state.GetBalance(asset, holder)
	if err != nil {
		return nil, err
	}
	return bigOrZero(balance), nil
}

// Mint credits freshly issued units to the holder. Used only by the admin
// surface to bootstrap deployments; live balances otherwise change through
// transfers alone.
func (v *LedgerVault) Mint(asset, to common.Address, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilVault
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := v.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	return v.state.PutBalance(asset, to, new(big.Int).Add(balance, amount))
}

func (v *LedgerVault) move(asset, from, to common.Address, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilVault
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrTransferFailed)
	}
	fromBalance, err := v.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient funds", ErrTransferFailed)
	}
	toBalance, err := v.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := v.state.PutBalance(asset, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return v.state.PutBalance(asset, to, new(big.Int).Add(toBalance, amount))
}
