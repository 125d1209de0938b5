package lending

import (
	"math/big"
	"testing"
)

func testMarket(totalSupply, totalBorrows int64) *Market {
	m := &Market{
		Listed:        true,
		ReserveFactor: FixedFromFrac(1, 10),
		TotalSupply:   big.NewInt(totalSupply),
		TotalBorrows:  big.NewInt(totalBorrows),
		BorrowRate:    FixedFromFrac(2, 100),
	}
	m.EnsureDefaults()
	return m
}

func TestAccrueFullYearAtStoredRate(t *testing.T) {
	m := testMarket(2_000_000, 1_000_000)
	m.Accrue(secondsPerYear)

	// 2% of 1_000_000 over one year.
	if m.TotalBorrows.Cmp(big.NewInt(1_020_000)) != 0 {
		t.Fatalf("total borrows: got %s want 1020000", m.TotalBorrows)
	}
	if m.BorrowIndex.Cmp(FixedFromFrac(102, 100)) != 0 {
		t.Fatalf("borrow index: got %s want 1.02", m.BorrowIndex)
	}
	// Reserve factor 0.1 keeps 2000 of the 20000 interest.
	if m.TotalReserves.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("total reserves: got %s want 2000", m.TotalReserves)
	}
	// The 18000 supplier share folds into the aggregate and the index.
	if m.TotalSupply.Cmp(big.NewInt(2_018_000)) != 0 {
		t.Fatalf("total supply: got %s want 2018000", m.TotalSupply)
	}
	if m.SupplyIndex.Cmp(FixedFromFrac(1009, 1000)) != 0 {
		t.Fatalf("supply index: got %s want 1.009", m.SupplyIndex)
	}
	if m.LastUpdateTime != secondsPerYear {
		t.Fatalf("last update: got %d", m.LastUpdateTime)
	}
}

func TestAccrueIdempotentAtSameTimestamp(t *testing.T) {
	m := testMarket(2_000_000, 1_000_000)
	m.Accrue(secondsPerYear)
	snapshot := m.Clone()

	m.Accrue(secondsPerYear)
	if m.TotalBorrows.Cmp(snapshot.TotalBorrows) != 0 ||
		m.BorrowIndex.Cmp(snapshot.BorrowIndex) != 0 ||
		m.SupplyIndex.Cmp(snapshot.SupplyIndex) != 0 {
		t.Fatalf("repeated accrual at the same timestamp changed state")
	}
	m.Accrue(secondsPerYear - 100)
	if m.LastUpdateTime != secondsPerYear {
		t.Fatalf("accrual must ignore a regressing timestamp")
	}
}

func TestAccrueIndexesNeverDecrease(t *testing.T) {
	m := testMarket(2_000_000, 1_000_000)
	prevBorrow := m.BorrowIndex.Clone()
	prevSupply := m.SupplyIndex.Clone()

	for i := uint64(1); i <= 10; i++ {
		m.Accrue(i * 86_400 * 30)
		if m.BorrowIndex.Cmp(prevBorrow) < 0 {
			t.Fatalf("borrow index decreased at step %d", i)
		}
		if m.SupplyIndex.Cmp(prevSupply) < 0 {
			t.Fatalf("supply index decreased at step %d", i)
		}
		prevBorrow = m.BorrowIndex.Clone()
		prevSupply = m.SupplyIndex.Clone()
	}
}

func TestAccrueNoopWithoutDebt(t *testing.T) {
	m := testMarket(2_000_000, 0)
	m.Accrue(secondsPerYear)
	if m.TotalSupply.Cmp(big.NewInt(2_000_000)) != 0 || m.TotalReserves.Sign() != 0 {
		t.Fatalf("debt-free market must not accrue")
	}
	if m.BorrowIndex.Cmp(FixedOne) != 0 || m.SupplyIndex.Cmp(FixedOne) != 0 {
		t.Fatalf("debt-free market indexes must hold at 1.0")
	}
	if m.LastUpdateTime != secondsPerYear {
		t.Fatalf("timestamp must still advance")
	}
}

func TestRefreshRatesEmptyMarketFallsBackToBase(t *testing.T) {
	model := DefaultInterestModel()
	m := testMarket(0, 0)
	m.RefreshRates(model)
	if m.BorrowRate.Cmp(model.Base) != 0 {
		t.Fatalf("borrow rate: got %s want base %s", m.BorrowRate, model.Base)
	}
	if !m.SupplyRate.IsZero() {
		t.Fatalf("supply rate: got %s want 0", m.SupplyRate)
	}
}

func TestCapsTreatNilAndZeroAsUnlimited(t *testing.T) {
	m := testMarket(0, 0)
	if !m.supplyCapAllows(big.NewInt(1_000_000_000)) {
		t.Fatalf("nil cap must be unlimited")
	}
	m.SupplyCap = big.NewInt(0)
	if !m.supplyCapAllows(big.NewInt(1_000_000_000)) {
		t.Fatalf("zero cap must be unlimited")
	}
	m.BorrowCap = big.NewInt(10)
	if m.borrowCapAllows(big.NewInt(11)) {
		t.Fatalf("cap must bound the total")
	}
	if !m.borrowCapAllows(big.NewInt(10)) {
		t.Fatalf("reaching the cap exactly is allowed")
	}
}
