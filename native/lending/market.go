package lending

import "math/big"

// Accrue advances the market's indexes and totals to the given logical
// timestamp using a linear per-second slice of the stored per-annum borrow
// rate. Calling it again at the same timestamp is a no-op, so accrual is
// idempotent within a single transaction.
//
// The borrow index grows by the same proportional factor as the aggregate
// debt, which couples every borrower's growth to one shared multiplier
// regardless of when each position was opened. That uniform-exposure
// simplification is deliberate and load-bearing for the accounting model.
func (m *Market) Accrue(now uint64) {
	if m == nil {
		return
	}
	m.EnsureDefaults()
	if now <= m.LastUpdateTime {
		return
	}
	dt := now - m.LastUpdateTime
	m.LastUpdateTime = now

	if m.TotalBorrows.Sign() == 0 || m.BorrowRate.Sign() <= 0 {
		return
	}

	// rateSlice = borrowRate * dt / secondsPerYear, truncated.
	slice := new(big.Int).Mul(m.BorrowRate.raw(), new(big.Int).SetUint64(dt))
	slice.Quo(slice, big.NewInt(secondsPerYear))
	rateSlice := Fixed{v: slice}

	interest := rateSlice.MulAmount(m.TotalBorrows)
	if interest.Sign() == 0 {
		return
	}

	m.TotalBorrows = new(big.Int).Add(m.TotalBorrows, interest)
	m.BorrowIndex = m.BorrowIndex.Add(m.BorrowIndex.Mul(rateSlice))

	reserve := m.ReserveFactor.MulAmount(interest)
	supplierShare := new(big.Int).Sub(interest, reserve)
	m.TotalReserves = new(big.Int).Add(m.TotalReserves, reserve)

	if m.TotalSupply.Sign() > 0 && supplierShare.Sign() > 0 {
		// supplyIndex += supplyIndex * supplierShare / totalSupply
		growth := new(big.Int).Mul(m.SupplyIndex.raw(), supplierShare)
		growth.Quo(growth, m.TotalSupply)
		m.SupplyIndex = m.SupplyIndex.Add(Fixed{v: growth})
		// TotalSupply tracks principal plus accrued, so the supplier
		// share folds into the aggregate as well.
		m.TotalSupply = new(big.Int).Add(m.TotalSupply, supplierShare)
	}
}

// RefreshRates recomputes the stored per-annum rates from the current
// totals. Every mutating operation calls this as its final step so the next
// caller observes fresh rates.
func (m *Market) RefreshRates(model *InterestModel) {
	if m == nil || model == nil {
		return
	}
	m.EnsureDefaults()
	if m.TotalSupply.Sign() == 0 {
		m.BorrowRate = model.Base.Clone()
		m.SupplyRate = Fixed{}
		return
	}
	utilization := model.Utilization(m.TotalBorrows, m.TotalSupply)
	m.BorrowRate = model.BorrowRate(utilization)
	m.SupplyRate = model.SupplyRate(utilization, m.ReserveFactor)
}

// Utilization reports the market's current borrow utilization.
func (m *Market) Utilization() Fixed {
	if m == nil {
		return Fixed{}
	}
	model := InterestModel{}
	return model.Utilization(m.TotalBorrows, m.TotalSupply)
}

func (m *Market) supplyCapAllows(amount *big.Int) bool {
	if m.SupplyCap == nil || m.SupplyCap.Sign() == 0 {
		return true
	}
	next := new(big.Int).Add(bigOrZero(m.TotalSupply), amount)
	return next.Cmp(m.SupplyCap) <= 0
}

func (m *Market) borrowCapAllows(amount *big.Int) bool {
	if m.BorrowCap == nil || m.BorrowCap.Sign() == 0 {
		return true
	}
	next := new(big.Int).Add(bigOrZero(m.TotalBorrows), amount)
	return next.Cmp(m.BorrowCap) <= 0
}
