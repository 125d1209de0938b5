package lending

// secondsPerYear converts per-annum rates into per-second accrual slices.
const secondsPerYear = 31_536_000

// defaultMaxPriceAge is the freshness bound applied to oracle quotes.
const defaultMaxPriceAge = 3600

var (
	// MaxCollateralFactor bounds how much of an asset's value can count
	// as borrowing power.
	MaxCollateralFactor = FixedFromFrac(9, 10)
	// MaxReserveFactor bounds the protocol's cut of accrued interest.
	MaxReserveFactor = FixedFromFrac(1, 2)
	// CloseFactor caps a single liquidation at half the borrower's debt
	// in the repaid asset.
	CloseFactor = FixedFromFrac(1, 2)
	// LiquidationIncentive is the bonus multiplier applied to seized
	// collateral, paid out of the borrower's stake.
	LiquidationIncentive = FixedFromFrac(108, 100)
)
