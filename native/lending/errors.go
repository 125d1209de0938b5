package lending

import "errors"

var (
	errNilState               = errors.New("lending: state not configured")
	errNilVault               = errors.New("lending: token vault not configured")
	errNilPriceSource         = errors.New("lending: price source not configured")
	ErrNotListed              = errors.New("lending: market not listed")
	ErrAlreadyListed          = errors.New("lending: market already listed")
	ErrInvalidParameter       = errors.New("lending: parameter out of bounds")
	ErrInvalidAmount          = errors.New("lending: amount must be positive")
	ErrCapExceeded            = errors.New("lending: market cap exceeded")
	ErrInsufficientBalance    = errors.New("lending: insufficient balance")
	ErrUnhealthyPosition      = errors.New("lending: position would breach collateralization")
	ErrNoDebt                 = errors.New("lending: no outstanding debt to repay")
	ErrNotLiquidatable        = errors.New("lending: borrower not eligible for liquidation")
	ErrInsufficientCollateral = errors.New("lending: seizure exceeds borrower collateral")
	ErrStalePrice             = errors.New("lending: price feed stale")
	ErrPriceUnavailable       = errors.New("lending: price unavailable")
	ErrTransferFailed         = errors.New("lending: token transfer failed")
	ErrReentrantCall          = errors.New("lending: reentrant engine call")
)
