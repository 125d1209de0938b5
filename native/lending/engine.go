package lending

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendnet/native/common"
)

const moduleName = "lending"

type engineState interface {
	GetMarket(asset common.Address) (*Market, error)
	PutMarket(market *Market) error
	ListMarkets() ([]*Market, error)
	GetPosition(user, asset common.Address) (*Position, error)
	PutPosition(position *Position) error
	GetMembership(user common.Address) (*Membership, error)
	PutMembership(user common.Address, membership *Membership) error
}

// Engine orchestrates the state transitions of the money market: interest
// accrual, position reconciliation, health gating and the liquidation
// protocol. Operations are strictly serialized; an operation holds an
// advisory in-progress flag for its duration and re-entrant invocation is
// rejected.
type Engine struct {
	state       engineState
	vault       TokenVault
	prices      PriceSource
	model       *InterestModel
	pauses      nativecommon.PauseView
	pauseCtl    *nativecommon.PauseRegistry
	roles       nativecommon.RoleView
	roleCtl     *nativecommon.RoleRegistry
	logger      *slog.Logger
	now         uint64
	maxPriceAge uint64
	entered     bool
}

// NewEngine constructs an engine with the given interest-rate model. The
// collaborators are wired through the Set methods before first use.
func NewEngine(model *InterestModel) *Engine {
	if model == nil {
		model = DefaultInterestModel()
	}
	return &Engine{model: model.Clone(), logger: slog.Default()}
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVault wires the fungible-asset transfer surface.
func (e *Engine) SetVault(vault TokenVault) { e.vault = vault }

// SetPriceSource wires the external oracle.
func (e *Engine) SetPriceSource(prices PriceSource) { e.prices = prices }

// SetPauseRegistry wires the emergency-stop switchboard.
func (e *Engine) SetPauseRegistry(reg *nativecommon.PauseRegistry) {
	e.pauseCtl = reg
	e.pauses = reg
}

// SetRoleRegistry wires the capability registry checked at privileged
// entry points.
func (e *Engine) SetRoleRegistry(reg *nativecommon.RoleRegistry) {
	e.roleCtl = reg
	e.roles = reg
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetMaxPriceAge overrides the oracle freshness bound in seconds.
func (e *Engine) SetMaxPriceAge(seconds uint64) { e.maxPriceAge = seconds }

// SetTimestamp advances the engine's logical clock. Regressions are
// ignored so operations always observe a non-decreasing clock and accrual
// stays idempotent for repeated calls at the same timestamp.
func (e *Engine) SetTimestamp(now uint64) {
	if now > e.now {
		e.now = now
	}
}

// Timestamp returns the engine's current logical clock.
func (e *Engine) Timestamp() uint64 { return e.now }

// begin takes the advisory operation lock. The returned release must run on
// every exit path.
func (e *Engine) begin() (func(), error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.entered {
		return nil, ErrReentrantCall
	}
	e.entered = true
	return func() { e.entered = false }, nil
}

// ListMarket creates a market for the asset at indices 1.0 and base rates.
// Listing is terminal: a listed market cannot be unlisted.
func (e *Engine) ListMarket(caller, asset common.Address, collateralFactor, reserveFactor Fixed, borrowCap, supplyCap *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if err := validateFactors(collateralFactor, reserveFactor); err != nil {
		return err
	}
	existing, err := e.state.GetMarket(asset)
	if err != nil {
		return err
	}
	if existing != nil && existing.Listed {
		return ErrAlreadyListed
	}

	market := &Market{
		Asset:            asset,
		Listed:           true,
		CollateralFactor: collateralFactor.Clone(),
		ReserveFactor:    reserveFactor.Clone(),
		LastUpdateTime:   e.now,
	}
	if borrowCap != nil {
		market.BorrowCap = new(big.Int).Set(borrowCap)
	}
	if supplyCap != nil {
		market.SupplyCap = new(big.Int).Set(supplyCap)
	}
	market.EnsureDefaults()
	market.RefreshRates(e.model)

	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	e.logger.Info("market listed",
		"asset", asset.Hex(),
		"collateral_factor", collateralFactor.String(),
		"reserve_factor", reserveFactor.String(),
	)
	return nil
}

// UpdateMarketParams adjusts a listed market's risk parameters and caps.
// Pending interest accrues under the old parameters first.
func (e *Engine) UpdateMarketParams(caller, asset common.Address, collateralFactor, reserveFactor Fixed, borrowCap, supplyCap *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if err := validateFactors(collateralFactor, reserveFactor); err != nil {
		return err
	}
	market, err := e.loadListedMarket(asset)
	if err != nil {
		return err
	}
	market.Accrue(e.now)
	market.CollateralFactor = collateralFactor.Clone()
	market.ReserveFactor = reserveFactor.Clone()
	market.BorrowCap = nil
	if borrowCap != nil {
		market.BorrowCap = new(big.Int).Set(borrowCap)
	}
	market.SupplyCap = nil
	if supplyCap != nil {
		market.SupplyCap = new(big.Int).Set(supplyCap)
	}
	market.RefreshRates(e.model)
	return e.state.PutMarket(market)
}

// Pause halts all non-admin mutating operations.
func (e *Engine) Pause(caller common.Address) error {
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if e.pauseCtl == nil {
		return errNilState
	}
	e.pauseCtl.Pause(moduleName)
	e.logger.Info("module paused", "caller", caller.Hex())
	return nil
}

// Unpause resumes mutating operations.
func (e *Engine) Unpause(caller common.Address) error {
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if e.pauseCtl == nil {
		return errNilState
	}
	e.pauseCtl.Unpause(moduleName)
	e.logger.Info("module unpaused", "caller", caller.Hex())
	return nil
}

// GrantRole assigns a capability to a principal.
func (e *Engine) GrantRole(caller, target common.Address, role nativecommon.Role) error {
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if e.roleCtl == nil {
		return errNilState
	}
	e.roleCtl.Grant(target, role)
	return nil
}

// RevokeRole removes a capability from a principal.
func (e *Engine) RevokeRole(caller, target common.Address, role nativecommon.Role) error {
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if e.roleCtl == nil {
		return errNilState
	}
	e.roleCtl.Revoke(target, role)
	return nil
}

// AuthorizeAdmin reports whether the caller holds the admin role. Callers
// outside the engine use it to gate privileged helpers such as vault
// bootstrap mints.
func (e *Engine) AuthorizeAdmin(caller common.Address) error {
	return nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin)
}

// Supply deposits liquidity into the asset's market on behalf of the user.
func (e *Engine) Supply(user, asset common.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return errNilVault
	}

	market, err := e.loadListedMarket(asset)
	if err != nil {
		return err
	}
	market.Accrue(e.now)
	if !market.supplyCapAllows(amount) {
		return ErrCapExceeded
	}

	position, err := e.loadPosition(user, asset)
	if err != nil {
		return err
	}
	position.Reconcile(market)

	membership, err := e.loadMembership(user)
	if err != nil {
		return err
	}

	if err := e.vault.TransferIn(asset, user, amount); err != nil {
		return err
	}

	position.Supplied = new(big.Int).Add(position.Supplied, amount)
	market.TotalSupply = new(big.Int).Add(market.TotalSupply, amount)
	if !membership.hasSupplied(asset) {
		membership.Supplied = append(membership.Supplied, asset)
	}
	market.RefreshRates(e.model)

	if err := e.persist(market, position, user, membership); err != nil {
		return err
	}
	e.logger.Debug("supply", "user", user.Hex(), "asset", asset.Hex(), "amount", amount.String())
	return nil
}

// Withdraw releases supplied liquidity back to the user, provided the
// position stays healthy with the hypothetical post-withdraw balances.
func (e *Engine) Withdraw(user, asset common.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return errNilVault
	}

	market, err := e.loadListedMarket(asset)
	if err != nil {
		return err
	}
	market.Accrue(e.now)

	position, err := e.loadPosition(user, asset)
	if err != nil {
		return err
	}
	position.Reconcile(market)
	if position.Supplied.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	if err := e.healthyAfter(user, e.now, asset, amount, common.Address{}, nil); err != nil {
		return err
	}

	if err := e.vault.TransferOut(asset, user, amount); err != nil {
		return err
	}

	position.Supplied = new(big.Int).Sub(position.Supplied, amount)
	market.TotalSupply = clampedSub(market.TotalSupply, amount)
	market.RefreshRates(e.model)

	if err := e.persist(market, position, user, nil); err != nil {
		return err
	}
	e.logger.Debug("withdraw", "user", user.Hex(), "asset", asset.Hex(), "amount", amount.String())
	return nil
}

// Borrow draws liquidity against the user's collateral, gated by the borrow
// cap and the hypothetical post-borrow health check.
func (e *Engine) Borrow(user, asset common.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return errNilVault
	}

	market, err := e.loadListedMarket(asset)
	if err != nil {
		return err
	}
	market.Accrue(e.now)
	if !market.borrowCapAllows(amount) {
		return ErrCapExceeded
	}

	position, err := e.loadPosition(user, asset)
	if err != nil {
		return err
	}
	position.Reconcile(market)

	membership, err := e.loadMembership(user)
	if err != nil {
		return err
	}

	if err := e.healthyAfter(user, e.now, common.Address{}, nil, asset, amount); err != nil {
		return err
	}

	if err := e.vault.TransferOut(asset, user, amount); err != nil {
		return err
	}

	position.Borrowed = new(big.Int).Add(position.Borrowed, amount)
	market.TotalBorrows = new(big.Int).Add(market.TotalBorrows, amount)
	if !membership.hasBorrowed(asset) {
		membership.Borrowed = append(membership.Borrowed, asset)
	}
	market.RefreshRates(e.model)

	if err := e.persist(market, position, user, membership); err != nil {
		return err
	}
	e.logger.Debug("borrow", "user", user.Hex(), "asset", asset.Hex(), "amount", amount.String())
	return nil
}

// Repay retires outstanding debt, capped at the reconciled balance. The
// amount actually repaid is returned; any excess stays with the caller.
func (e *Engine) Repay(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.vault == nil {
		return nil, errNilVault
	}

	market, err := e.loadListedMarket(asset)
	if err != nil {
		return nil, err
	}
	market.Accrue(e.now)

	position, err := e.loadPosition(user, asset)
	if err != nil {
		return nil, err
	}
	position.Reconcile(market)
	if position.Borrowed.Sign() == 0 {
		return nil, ErrNoDebt
	}

	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(position.Borrowed) > 0 {
		repayAmount = new(big.Int).Set(position.Borrowed)
	}

	if err := e.vault.TransferIn(asset, user, repayAmount); err != nil {
		return nil, err
	}

	position.Borrowed = new(big.Int).Sub(position.Borrowed, repayAmount)
	market.TotalBorrows = clampedSub(market.TotalBorrows, repayAmount)
	market.RefreshRates(e.model)

	if err := e.persist(market, position, user, nil); err != nil {
		return nil, err
	}
	e.logger.Debug("repay", "user", user.Hex(), "asset", asset.Hex(), "amount", repayAmount.String())
	return repayAmount, nil
}

// LiquidationOutcome reports the result of a liquidation call.
type LiquidationOutcome struct {
	Repaid *big.Int
	Seized *big.Int
}

// Liquidate lets a third party repay part of an under-collateralized
// borrower's debt in exchange for a bonus-discounted slice of their
// collateral. One call is capped at the close factor of the debt in the
// repaid asset.
func (e *Engine) Liquidate(liquidator, borrower common.Address, debtAsset common.Address, amount *big.Int, collateralAsset common.Address) (*LiquidationOutcome, error) {
	release, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireRole(e.roles, liquidator, nativecommon.RoleLiquidator); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.vault == nil {
		return nil, errNilVault
	}

	debtMarket, err := e.loadListedMarket(debtAsset)
	if err != nil {
		return nil, err
	}
	debtMarket.Accrue(e.now)

	sameAsset := debtAsset == collateralAsset
	collMarket := debtMarket
	if !sameAsset {
		collMarket, err = e.loadListedMarket(collateralAsset)
		if err != nil {
			return nil, err
		}
		collMarket.Accrue(e.now)
	}

	debtPosition, err := e.loadPosition(borrower, debtAsset)
	if err != nil {
		return nil, err
	}
	debtPosition.Reconcile(debtMarket)

	collPosition := debtPosition
	if !sameAsset {
		collPosition, err = e.loadPosition(borrower, collateralAsset)
		if err != nil {
			return nil, err
		}
		collPosition.Reconcile(collMarket)
	}

	if debtPosition.Borrowed.Sign() == 0 {
		return nil, ErrNoDebt
	}
	liquidatable, err := e.isLiquidatable(borrower, e.now)
	if err != nil {
		return nil, err
	}
	if !liquidatable {
		return nil, ErrNotLiquidatable
	}

	maxRepay := CloseFactor.MulAmount(debtPosition.Borrowed)
	repayAmount := new(big.Int).Set(amount)
	if repayAmount.Cmp(maxRepay) > 0 {
		repayAmount = maxRepay
	}
	if repayAmount.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	debtPrice, err := e.priceWad(debtAsset, e.now)
	if err != nil {
		return nil, err
	}
	collPrice, err := e.priceWad(collateralAsset, e.now)
	if err != nil {
		return nil, err
	}

	// seized = repaid * debtPrice * incentive / collateralPrice, so the
	// seized value never exceeds repaid value x 1.08 beyond truncation.
	repaidValue := debtPrice.MulAmount(repayAmount)
	bonusValue := LiquidationIncentive.MulAmount(repaidValue)
	seized := new(big.Int).Mul(bonusValue, wad)
	seized.Quo(seized, collPrice.Raw())
	if seized.Cmp(collPosition.Supplied) > 0 {
		return nil, ErrInsufficientCollateral
	}

	if err := e.vault.TransferIn(debtAsset, liquidator, repayAmount); err != nil {
		return nil, err
	}
	if err := e.vault.TransferOut(collateralAsset, liquidator, seized); err != nil {
		// Undo the completed leg so a failed seizure leaves balances
		// exactly as before the call.
		if refundErr := e.vault.TransferOut(debtAsset, liquidator, repayAmount); refundErr != nil {
			e.logger.Error("liquidation refund failed",
				"liquidator", liquidator.Hex(),
				"asset", debtAsset.Hex(),
				"err", refundErr,
			)
		}
		return nil, err
	}

	debtPosition.Borrowed = new(big.Int).Sub(debtPosition.Borrowed, repayAmount)
	debtMarket.TotalBorrows = clampedSub(debtMarket.TotalBorrows, repayAmount)
	collPosition.Supplied = new(big.Int).Sub(collPosition.Supplied, seized)
	collMarket.TotalSupply = clampedSub(collMarket.TotalSupply, seized)

	debtMarket.RefreshRates(e.model)
	if !sameAsset {
		collMarket.RefreshRates(e.model)
	}

	if err := e.state.PutMarket(debtMarket); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(debtPosition); err != nil {
		return nil, err
	}
	if !sameAsset {
		if err := e.state.PutMarket(collMarket); err != nil {
			return nil, err
		}
		if err := e.state.PutPosition(collPosition); err != nil {
			return nil, err
		}
	}

	e.logger.Info("liquidation",
		"liquidator", liquidator.Hex(),
		"borrower", borrower.Hex(),
		"repaid", repayAmount.String(),
		"seized", seized.String(),
	)
	return &LiquidationOutcome{Repaid: repayAmount, Seized: seized}, nil
}

// WithdrawReserves transfers accrued protocol reserves to the recipient.
func (e *Engine) WithdrawReserves(caller, asset, recipient common.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.RequireRole(e.roles, caller, nativecommon.RoleAdmin); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.vault == nil {
		return errNilVault
	}

	market, err := e.loadListedMarket(asset)
	if err != nil {
		return err
	}
	market.Accrue(e.now)
	if market.TotalReserves.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.vault.TransferOut(asset, recipient, amount); err != nil {
		return err
	}
	market.TotalReserves = new(big.Int).Sub(market.TotalReserves, amount)
	return e.state.PutMarket(market)
}

// GetAccountLiquidity evaluates the user's aggregate collateral and borrow
// values at the current logical clock without mutating any ledger state.
func (e *Engine) GetAccountLiquidity(user common.Address) (*AccountLiquidity, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.accountLiquidity(user, e.now)
}

// GetMarket returns a snapshot of the market accrued to the current clock.
func (e *Engine) GetMarket(asset common.Address) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.loadListedMarket(asset)
	if err != nil {
		return nil, err
	}
	market.Accrue(e.now)
	market.RefreshRates(e.model)
	return market, nil
}

// ListMarkets returns snapshots of every listed market.
func (e *Engine) ListMarkets() ([]*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	markets, err := e.state.ListMarkets()
	if err != nil {
		return nil, err
	}
	out := make([]*Market, 0, len(markets))
	for _, market := range markets {
		if market == nil || !market.Listed {
			continue
		}
		snapshot := market.Clone()
		snapshot.Accrue(e.now)
		snapshot.RefreshRates(e.model)
		out = append(out, snapshot)
	}
	return out, nil
}

// GetPosition returns the user's reconciled position in one market.
func (e *Engine) GetPosition(user, asset common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.loadListedMarket(asset)
	if err != nil {
		return nil, err
	}
	market.Accrue(e.now)
	position, err := e.loadPosition(user, asset)
	if err != nil {
		return nil, err
	}
	position.Reconcile(market)
	return position, nil
}

// GetMembership returns the user's historical asset membership lists.
func (e *Engine) GetMembership(user common.Address) (*Membership, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadMembership(user)
}

func (e *Engine) loadListedMarket(asset common.Address) (*Market, error) {
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil || !market.Listed {
		return nil, ErrNotListed
	}
	market = market.Clone()
	market.EnsureDefaults()
	return market, nil
}

func (e *Engine) loadPosition(user, asset common.Address) (*Position, error) {
	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{User: user, Asset: asset}
	} else {
		position = position.Clone()
	}
	position.EnsureDefaults()
	return position, nil
}

func (e *Engine) loadMembership(user common.Address) (*Membership, error) {
	membership, err := e.state.GetMembership(user)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return &Membership{}, nil
	}
	return membership.Clone(), nil
}

// persist writes the mutated records. Every precondition has already been
// checked by the time this runs, so a failure here is a storage fault, not
// a business rejection.
func (e *Engine) persist(market *Market, position *Position, user common.Address, membership *Membership) error {
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if membership != nil {
		if err := e.state.PutMembership(user, membership); err != nil {
			return err
		}
	}
	return nil
}

func validateFactors(collateralFactor, reserveFactor Fixed) error {
	if collateralFactor.Sign() < 0 || collateralFactor.Cmp(MaxCollateralFactor) > 0 {
		return ErrInvalidParameter
	}
	if reserveFactor.Sign() < 0 || reserveFactor.Cmp(MaxReserveFactor) > 0 {
		return ErrInvalidParameter
	}
	return nil
}

func clampedSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(bigOrZero(a), bigOrZero(b))
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}
