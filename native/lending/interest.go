package lending

import "math/big"

// InterestModel shapes how borrow rates react to market utilization using a
// piecewise-linear curve with a kink.
type InterestModel struct {
	// Base is the minimum borrow rate applied at zero utilization.
	Base Fixed
	// Multiplier is the rate increase per unit of utilization below the
	// kink.
	Multiplier Fixed
	// JumpMultiplier governs the steeper slope applied above the kink.
	JumpMultiplier Fixed
	// Kink is the utilization ratio where the slope changes.
	Kink Fixed
}

// NewInterestModel constructs an interest model from fixed-point inputs.
func NewInterestModel(base, multiplier, jumpMultiplier, kink Fixed) *InterestModel {
	return &InterestModel{
		Base:           base.Clone(),
		Multiplier:     multiplier.Clone(),
		JumpMultiplier: jumpMultiplier.Clone(),
		Kink:           kink.Clone(),
	}
}

// DefaultInterestModel returns the standard curve: 2% base, 0.1 multiplier,
// 1.09 jump multiplier, 80% kink.
func DefaultInterestModel() *InterestModel {
	return NewInterestModel(
		FixedFromFrac(2, 100),
		FixedFromFrac(1, 10),
		FixedFromFrac(109, 100),
		FixedFromFrac(8, 10),
	)
}

// Clone returns a deep copy of the model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return NewInterestModel(m.Base, m.Multiplier, m.JumpMultiplier, m.Kink)
}

// Utilization computes U = totalBorrows / totalSupply, defined as zero when
// no liquidity exists.
func (m *InterestModel) Utilization(totalBorrows, totalSupply *big.Int) Fixed {
	if totalBorrows == nil || totalBorrows.Sign() == 0 {
		return Fixed{}
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return Fixed{}
	}
	v := new(big.Int).Mul(totalBorrows, wad)
	return Fixed{v: v.Quo(v, totalSupply)}
}

// BorrowRate derives the per-annum borrow rate for the given utilization.
func (m *InterestModel) BorrowRate(utilization Fixed) Fixed {
	if m == nil {
		return Fixed{}
	}
	if m.Kink.IsZero() || utilization.Cmp(m.Kink) <= 0 {
		return m.Base.Add(m.Multiplier.Mul(utilization))
	}
	rate := m.Base.Add(m.Multiplier.Mul(m.Kink))
	excess := utilization.Sub(m.Kink)
	if excess.Sign() < 0 {
		excess = Fixed{}
	}
	return rate.Add(m.JumpMultiplier.Mul(excess))
}

// SupplyRate derives the per-annum supply rate: borrower interest minus the
// reserve cut, prorated by utilization. Idle supply earns nothing.
func (m *InterestModel) SupplyRate(utilization, reserveFactor Fixed) Fixed {
	if m == nil || utilization.IsZero() {
		return Fixed{}
	}
	oneMinusReserve := FixedOne.Sub(reserveFactor)
	if oneMinusReserve.Sign() < 0 {
		oneMinusReserve = Fixed{}
	}
	return m.BorrowRate(utilization).Mul(utilization).Mul(oneMinusReserve)
}
