package lending

import (
	"math/big"
	"testing"
)

func TestReconcileScalesBalancesByIndexRatio(t *testing.T) {
	m := testMarket(0, 0)
	m.SupplyIndex = FixedFromFrac(11, 10)
	m.BorrowIndex = FixedFromFrac(12, 10)

	p := &Position{
		Supplied:            big.NewInt(1000),
		Borrowed:            big.NewInt(500),
		SupplyIndexSnapshot: FixedOne.Clone(),
		BorrowIndexSnapshot: FixedOne.Clone(),
	}
	p.Reconcile(m)

	if p.Supplied.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("supplied: got %s want 1100", p.Supplied)
	}
	if p.Borrowed.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("borrowed: got %s want 600", p.Borrowed)
	}
	if p.SupplyIndexSnapshot.Cmp(m.SupplyIndex) != 0 || p.BorrowIndexSnapshot.Cmp(m.BorrowIndex) != 0 {
		t.Fatalf("snapshots not re-stamped")
	}
}

func TestReconcileIdempotentAtSameIndex(t *testing.T) {
	m := testMarket(0, 0)
	m.SupplyIndex = FixedFromFrac(11, 10)

	p := &Position{
		Supplied:            big.NewInt(1000),
		SupplyIndexSnapshot: FixedOne.Clone(),
	}
	p.Reconcile(m)
	first := new(big.Int).Set(p.Supplied)
	p.Reconcile(m)
	if p.Supplied.Cmp(first) != 0 {
		t.Fatalf("second reconcile changed the balance: %s -> %s", first, p.Supplied)
	}
}

func TestReconcileStampsFreshPositionWithoutScaling(t *testing.T) {
	m := testMarket(0, 0)
	m.SupplyIndex = FixedFromFrac(15, 10)
	m.BorrowIndex = FixedFromFrac(15, 10)

	p := &Position{Supplied: big.NewInt(1000)}
	p.Reconcile(m)

	// A zero snapshot means the balance is already current; stamping must
	// not inflate it.
	if p.Supplied.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("fresh position scaled: got %s want 1000", p.Supplied)
	}
	if p.SupplyIndexSnapshot.Cmp(m.SupplyIndex) != 0 {
		t.Fatalf("snapshot not stamped")
	}
}
