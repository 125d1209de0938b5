package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Market captures the aggregate accounting state for one listed asset.
// Amount values are denominated in the asset's smallest unit and expressed
// as big integers to preserve on-ledger precision.
type Market struct {
	// Asset identifies the underlying token of this market.
	Asset common.Address `json:"asset"`
	// Listed gates every operation against the market.
	Listed bool `json:"listed"`
	// CollateralFactor is the fraction of supplied value usable as
	// borrowing power. Bounded by MaxCollateralFactor.
	CollateralFactor Fixed `json:"collateralFactor"`
	// ReserveFactor is the fraction of accrued interest retained as
	// protocol reserve. Bounded by MaxReserveFactor.
	ReserveFactor Fixed `json:"reserveFactor"`
	// BorrowCap and SupplyCap are hard ceilings on the totals. A nil or
	// zero cap means uncapped.
	BorrowCap *big.Int `json:"borrowCap"`
	SupplyCap *big.Int `json:"supplyCap"`
	// TotalSupply and TotalBorrows aggregate principal plus accrued
	// interest across all users.
	TotalSupply  *big.Int `json:"totalSupply"`
	TotalBorrows *big.Int `json:"totalBorrows"`
	// TotalReserves holds the protocol's cut of accrued interest.
	TotalReserves *big.Int `json:"totalReserves"`
	// SupplyIndex and BorrowIndex are monotonically non-decreasing
	// compounding factors, both starting at 1.0.
	SupplyIndex Fixed `json:"supplyIndex"`
	BorrowIndex Fixed `json:"borrowIndex"`
	// LastUpdateTime records the logical timestamp of the last accrual.
	LastUpdateTime uint64 `json:"lastUpdateTime"`
	// BorrowRate and SupplyRate are the current per-annum rates,
	// recomputed after every mutation.
	BorrowRate Fixed `json:"borrowRate"`
	SupplyRate Fixed `json:"supplyRate"`
}

// EnsureDefaults populates nil balances and zero indexes so decoded or
// freshly constructed records are safe to operate on.
func (m *Market) EnsureDefaults() {
	if m == nil {
		return
	}
	if m.TotalSupply == nil {
		m.TotalSupply = big.NewInt(0)
	}
	if m.TotalBorrows == nil {
		m.TotalBorrows = big.NewInt(0)
	}
	if m.TotalReserves == nil {
		m.TotalReserves = big.NewInt(0)
	}
	if m.SupplyIndex.IsZero() {
		m.SupplyIndex = FixedOne.Clone()
	}
	if m.BorrowIndex.IsZero() {
		m.BorrowIndex = FixedOne.Clone()
	}
}

// Clone returns a deep copy of the market record.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{
		Asset:            m.Asset,
		Listed:           m.Listed,
		CollateralFactor: m.CollateralFactor.Clone(),
		ReserveFactor:    m.ReserveFactor.Clone(),
		SupplyIndex:      m.SupplyIndex.Clone(),
		BorrowIndex:      m.BorrowIndex.Clone(),
		LastUpdateTime:   m.LastUpdateTime,
		BorrowRate:       m.BorrowRate.Clone(),
		SupplyRate:       m.SupplyRate.Clone(),
	}
	if m.BorrowCap != nil {
		clone.BorrowCap = new(big.Int).Set(m.BorrowCap)
	}
	if m.SupplyCap != nil {
		clone.SupplyCap = new(big.Int).Set(m.SupplyCap)
	}
	if m.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(m.TotalSupply)
	}
	if m.TotalBorrows != nil {
		clone.TotalBorrows = new(big.Int).Set(m.TotalBorrows)
	}
	if m.TotalReserves != nil {
		clone.TotalReserves = new(big.Int).Set(m.TotalReserves)
	}
	return clone
}

// Position tracks one user's supply and borrow stake in one market. The
// stored amounts are valid as of the recorded index snapshots; Reconcile
// scales them forward before any read or mutation.
type Position struct {
	User  common.Address `json:"user"`
	Asset common.Address `json:"asset"`
	// Supplied and Borrowed hold principal as of the snapshots below.
	Supplied *big.Int `json:"supplied"`
	Borrowed *big.Int `json:"borrowed"`
	// Index values observed the last time this position was reconciled.
	SupplyIndexSnapshot Fixed `json:"supplyIndexSnapshot"`
	BorrowIndexSnapshot Fixed `json:"borrowIndexSnapshot"`
}

// EnsureDefaults populates nil balances on decoded records.
func (p *Position) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.Supplied == nil {
		p.Supplied = big.NewInt(0)
	}
	if p.Borrowed == nil {
		p.Borrowed = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position record.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		User:                p.User,
		Asset:               p.Asset,
		SupplyIndexSnapshot: p.SupplyIndexSnapshot.Clone(),
		BorrowIndexSnapshot: p.BorrowIndexSnapshot.Clone(),
	}
	if p.Supplied != nil {
		clone.Supplied = new(big.Int).Set(p.Supplied)
	}
	if p.Borrowed != nil {
		clone.Borrowed = new(big.Int).Set(p.Borrowed)
	}
	return clone
}

// Membership records the assets a user has ever supplied or borrowed. The
// lists are append-only; zero-balance entries stay and contribute nothing
// to valuation.
type Membership struct {
	Supplied []common.Address `json:"supplied"`
	Borrowed []common.Address `json:"borrowed"`
}

// Clone returns a deep copy of the membership lists.
func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	return &Membership{
		Supplied: append([]common.Address(nil), m.Supplied...),
		Borrowed: append([]common.Address(nil), m.Borrowed...),
	}
}

func (m *Membership) hasSupplied(asset common.Address) bool {
	for _, a := range m.Supplied {
		if a == asset {
			return true
		}
	}
	return false
}

func (m *Membership) hasBorrowed(asset common.Address) bool {
	for _, a := range m.Borrowed {
		if a == asset {
			return true
		}
	}
	return false
}

// PriceQuote is an oracle observation for a single asset. Value carries the
// price scaled by 10^Decimals; UpdatedAt is the unix timestamp the upstream
// feed reported.
type PriceQuote struct {
	Value     *big.Int
	Decimals  uint8
	UpdatedAt uint64
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutation.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Decimals: q.Decimals, UpdatedAt: q.UpdatedAt, Source: q.Source}
	if q.Value != nil {
		clone.Value = new(big.Int).Set(q.Value)
	}
	return clone
}

// PriceSource supplies freshness-stamped prices for listed assets.
type PriceSource interface {
	GetPrice(asset common.Address) (PriceQuote, error)
}

// AccountLiquidity is the result of a health evaluation: both values are
// USD-denominated at the shared 1e18 scale.
type AccountLiquidity struct {
	CollateralValue *big.Int
	BorrowValue     *big.Int
}
