package lending

import (
	"math/big"
	"testing"
)

func TestUtilizationDefinedZeroWithoutLiquidity(t *testing.T) {
	model := DefaultInterestModel()
	if got := model.Utilization(big.NewInt(0), big.NewInt(0)); !got.IsZero() {
		t.Fatalf("empty market utilization: got %s want 0", got)
	}
	if got := model.Utilization(big.NewInt(100), big.NewInt(0)); !got.IsZero() {
		t.Fatalf("zero-supply utilization: got %s want 0", got)
	}
	if got := model.Utilization(nil, nil); !got.IsZero() {
		t.Fatalf("nil utilization: got %s want 0", got)
	}
}

func TestBorrowRateCurvePoints(t *testing.T) {
	model := DefaultInterestModel()
	cases := []struct {
		name        string
		utilization Fixed
		want        Fixed
	}{
		{"zero", Fixed{}, FixedFromFrac(2, 100)},
		{"below kink", FixedFromFrac(4, 10), FixedFromFrac(6, 100)},
		{"at kink", FixedFromFrac(8, 10), FixedFromFrac(10, 100)},
		// 0.10 + 1.09 * 0.1 = 0.209 above the kink.
		{"above kink", FixedFromFrac(9, 10), FixedFromFrac(209, 1000)},
		// 0.10 + 1.09 * 0.2 = 0.318 at full utilization.
		{"full", FixedOne, FixedFromFrac(318, 1000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := model.BorrowRate(tc.utilization)
			if got.Cmp(tc.want) != 0 {
				t.Fatalf("borrow rate at %s: got %s want %s", tc.utilization, got, tc.want)
			}
		})
	}
}

func TestSupplyRateProratesAndDeductsReserves(t *testing.T) {
	model := DefaultInterestModel()

	// At the kink: 0.10 * 0.8 * (1 - 0.1) = 0.072.
	got := model.SupplyRate(FixedFromFrac(8, 10), FixedFromFrac(1, 10))
	if want := FixedFromFrac(72, 1000); got.Cmp(want) != 0 {
		t.Fatalf("supply rate: got %s want %s", got, want)
	}

	if got := model.SupplyRate(Fixed{}, FixedFromFrac(1, 10)); !got.IsZero() {
		t.Fatalf("idle supply must earn nothing, got %s", got)
	}

	// Without a reserve cut the suppliers get the full prorated rate.
	got = model.SupplyRate(FixedFromFrac(8, 10), Fixed{})
	if want := FixedFromFrac(8, 100); got.Cmp(want) != 0 {
		t.Fatalf("supply rate without reserves: got %s want %s", got, want)
	}
}

func TestSupplyRateNeverExceedsBorrowRate(t *testing.T) {
	model := DefaultInterestModel()
	for _, u := range []Fixed{FixedFromFrac(1, 10), FixedFromFrac(5, 10), FixedFromFrac(8, 10), FixedFromFrac(95, 100), FixedOne} {
		borrow := model.BorrowRate(u)
		supply := model.SupplyRate(u, Fixed{})
		if supply.Cmp(borrow) > 0 {
			t.Fatalf("supply rate %s exceeds borrow rate %s at utilization %s", supply, borrow, u)
		}
	}
}
