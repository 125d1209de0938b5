// Package rpc exposes the money market over a JSON HTTP surface: user
// operations, admin controls and the read API.
package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	nativecommon "lendnet/native/common"
	"lendnet/native/lending"
	"lendnet/observability"
	"lendnet/oracle"
)

const requestLimit = 1 << 20 // 1 MiB

// Server wires HTTP handlers to the lending engine.
type Server struct {
	engine  *lending.Engine
	vault   *lending.LedgerVault
	feed    *oracle.ManualFeed
	logger  *slog.Logger
	secret  []byte
	limiter *rate.Limiter
	metrics *observability.EngineMetrics
	clock   func() time.Time

	// persistAccess snapshots role grants and pause flags after an admin
	// change; optional.
	persistAccess func() error
}

// New constructs a server around the engine and its collaborators.
func New(engine *lending.Engine, vault *lending.LedgerVault, feed *oracle.ManualFeed, logger *slog.Logger, secret []byte, limiter *rate.Limiter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		vault:   vault,
		feed:    feed,
		logger:  logger,
		secret:  secret,
		limiter: limiter,
		metrics: observability.Metrics(),
		clock:   time.Now,
	}
}

// SetClock overrides the wall clock, used by tests.
func (s *Server) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// SetAccessPersist installs the snapshot hook invoked after role and pause
// changes.
func (s *Server) SetAccessPersist(fn func() error) { s.persistAccess = fn }

func (s *Server) snapshotAccess() {
	if s.persistAccess == nil {
		return
	}
	if err := s.persistAccess(); err != nil {
		s.logger.Error("persist access snapshot", "error", err)
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.rateLimit)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/{asset}", s.getMarket)
		r.Get("/accounts/{address}/liquidity", s.getAccountLiquidity)
		r.Get("/accounts/{address}/positions", s.getPositions)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/supply", s.supply)
			r.Post("/withdraw", s.withdraw)
			r.Post("/borrow", s.borrow)
			r.Post("/repay", s.repay)
			r.Post("/liquidate", s.liquidate)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/markets", s.listMarket)
				r.Post("/markets/update", s.updateMarket)
				r.Post("/pause", s.pause)
				r.Post("/unpause", s.unpause)
				r.Post("/roles/grant", s.grantRole)
				r.Post("/roles/revoke", s.revokeRole)
				r.Post("/reserves/withdraw", s.withdrawReserves)
				r.Post("/prices", s.postPrice)
				r.Post("/mint", s.mint)
			})
		})
	})
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tick advances the engine's logical clock to wall time before a mutating
// operation.
func (s *Server) tick() {
	s.engine.SetTimestamp(uint64(s.clock().Unix()))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseAddressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

type marketResponse struct {
	Asset            common.Address `json:"asset"`
	CollateralFactor string         `json:"collateralFactor"`
	ReserveFactor    string         `json:"reserveFactor"`
	BorrowCap        *hexutil.Big   `json:"borrowCap,omitempty"`
	SupplyCap        *hexutil.Big   `json:"supplyCap,omitempty"`
	TotalSupply      *hexutil.Big   `json:"totalSupply"`
	TotalBorrows     *hexutil.Big   `json:"totalBorrows"`
	TotalReserves    *hexutil.Big   `json:"totalReserves"`
	SupplyIndex      string         `json:"supplyIndex"`
	BorrowIndex      string         `json:"borrowIndex"`
	BorrowRate       string         `json:"borrowRate"`
	SupplyRate       string         `json:"supplyRate"`
	LastUpdateTime   uint64         `json:"lastUpdateTime"`
}

func toMarketResponse(m *lending.Market) marketResponse {
	resp := marketResponse{
		Asset:            m.Asset,
		CollateralFactor: m.CollateralFactor.String(),
		ReserveFactor:    m.ReserveFactor.String(),
		TotalSupply:      (*hexutil.Big)(m.TotalSupply),
		TotalBorrows:     (*hexutil.Big)(m.TotalBorrows),
		TotalReserves:    (*hexutil.Big)(m.TotalReserves),
		SupplyIndex:      m.SupplyIndex.String(),
		BorrowIndex:      m.BorrowIndex.String(),
		BorrowRate:       m.BorrowRate.String(),
		SupplyRate:       m.SupplyRate.String(),
		LastUpdateTime:   m.LastUpdateTime,
	}
	if m.BorrowCap != nil {
		resp.BorrowCap = (*hexutil.Big)(m.BorrowCap)
	}
	if m.SupplyCap != nil {
		resp.SupplyCap = (*hexutil.Big)(m.SupplyCap)
	}
	return resp
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	s.tick()
	markets, err := s.engine.ListMarkets()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]marketResponse, 0, len(markets))
	for _, market := range markets {
		out = append(out, toMarketResponse(market))
		s.publishUtilization(market)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	asset, ok := parseAddressParam(w, r, "asset")
	if !ok {
		return
	}
	s.tick()
	market, err := s.engine.GetMarket(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.publishUtilization(market)
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

func (s *Server) publishUtilization(market *lending.Market) {
	ratio, _ := new(big.Rat).SetFrac(market.Utilization().Raw(), big.NewInt(1e18)).Float64()
	s.metrics.SetUtilization(market.Asset.Hex(), ratio)
}

func (s *Server) getAccountLiquidity(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	s.tick()
	liquidity, err := s.engine.GetAccountLiquidity(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collateralValue": (*hexutil.Big)(liquidity.CollateralValue),
		"borrowValue":     (*hexutil.Big)(liquidity.BorrowValue),
	})
}

type positionResponse struct {
	Asset    common.Address `json:"asset"`
	Supplied *hexutil.Big   `json:"supplied"`
	Borrowed *hexutil.Big   `json:"borrowed"`
}

func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	s.tick()
	membership, err := s.engine.GetMembership(address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	seen := make(map[common.Address]bool)
	assets := make([]common.Address, 0, len(membership.Supplied)+len(membership.Borrowed))
	for _, asset := range append(append([]common.Address{}, membership.Supplied...), membership.Borrowed...) {
		if !seen[asset] {
			seen[asset] = true
			assets = append(assets, asset)
		}
	}
	out := make([]positionResponse, 0, len(assets))
	for _, asset := range assets {
		position, err := s.engine.GetPosition(address, asset)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, positionResponse{
			Asset:    asset,
			Supplied: (*hexutil.Big)(position.Supplied),
			Borrowed: (*hexutil.Big)(position.Borrowed),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type amountRequest struct {
	Asset  common.Address `json:"asset"`
	Amount *hexutil.Big   `json:"amount"`
}

func (r amountRequest) amount() *big.Int {
	if r.Amount == nil {
		return nil
	}
	return (*big.Int)(r.Amount)
}

func (s *Server) userOp(w http.ResponseWriter, r *http.Request, name string, op func(caller common.Address, req amountRequest) error) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := s.clock()
	s.tick()
	if err := op(caller, req); err != nil {
		s.metrics.ObserveOperation(name, "error", start)
		writeEngineError(w, err)
		return
	}
	s.metrics.ObserveOperation(name, "ok", start)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) supply(w http.ResponseWriter, r *http.Request) {
	s.userOp(w, r, "supply", func(caller common.Address, req amountRequest) error {
		return s.engine.Supply(caller, req.Asset, req.amount())
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.userOp(w, r, "withdraw", func(caller common.Address, req amountRequest) error {
		return s.engine.Withdraw(caller, req.Asset, req.amount())
	})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	s.userOp(w, r, "borrow", func(caller common.Address, req amountRequest) error {
		return s.engine.Borrow(caller, req.Asset, req.amount())
	})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := s.clock()
	s.tick()
	repaid, err := s.engine.Repay(caller, req.Asset, req.amount())
	if err != nil {
		s.metrics.ObserveOperation("repay", "error", start)
		writeEngineError(w, err)
		return
	}
	s.metrics.ObserveOperation("repay", "ok", start)
	writeJSON(w, http.StatusOK, map[string]any{"repaid": (*hexutil.Big)(repaid)})
}

type liquidateRequest struct {
	Borrower        common.Address `json:"borrower"`
	DebtAsset       common.Address `json:"debtAsset"`
	Amount          *hexutil.Big   `json:"amount"`
	CollateralAsset common.Address `json:"collateralAsset"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req liquidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := s.clock()
	s.tick()
	outcome, err := s.engine.Liquidate(caller, req.Borrower, req.DebtAsset, (*big.Int)(req.Amount), req.CollateralAsset)
	if err != nil {
		s.metrics.ObserveOperation("liquidate", "error", start)
		writeEngineError(w, err)
		return
	}
	s.metrics.ObserveOperation("liquidate", "ok", start)
	writeJSON(w, http.StatusOK, map[string]any{
		"repaid": (*hexutil.Big)(outcome.Repaid),
		"seized": (*hexutil.Big)(outcome.Seized),
	})
}

type marketParamsRequest struct {
	Asset               common.Address `json:"asset"`
	CollateralFactorBps uint64         `json:"collateralFactorBps"`
	ReserveFactorBps    uint64         `json:"reserveFactorBps"`
	BorrowCap           *hexutil.Big   `json:"borrowCap"`
	SupplyCap           *hexutil.Big   `json:"supplyCap"`
}

func (s *Server) listMarket(w http.ResponseWriter, r *http.Request) {
	s.marketParamsOp(w, r, "list_market", s.engine.ListMarket)
}

func (s *Server) updateMarket(w http.ResponseWriter, r *http.Request) {
	s.marketParamsOp(w, r, "update_market", s.engine.UpdateMarketParams)
}

func (s *Server) marketParamsOp(w http.ResponseWriter, r *http.Request, name string, op func(caller, asset common.Address, collateralFactor, reserveFactor lending.Fixed, borrowCap, supplyCap *big.Int) error) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req marketParamsRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := s.clock()
	s.tick()
	err = op(caller, req.Asset,
		lending.FixedFromBps(req.CollateralFactorBps),
		lending.FixedFromBps(req.ReserveFactorBps),
		(*big.Int)(req.BorrowCap),
		(*big.Int)(req.SupplyCap),
	)
	if err != nil {
		s.metrics.ObserveOperation(name, "error", start)
		writeEngineError(w, err)
		return
	}
	s.metrics.ObserveOperation(name, "ok", start)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.adminToggle(w, r, s.engine.Pause)
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	s.adminToggle(w, r, s.engine.Unpause)
}

func (s *Server) adminToggle(w http.ResponseWriter, r *http.Request, op func(common.Address) error) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := op(caller); err != nil {
		writeEngineError(w, err)
		return
	}
	s.snapshotAccess()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type roleRequest struct {
	Address common.Address `json:"address"`
	Role    string         `json:"role"`
}

func (s *Server) grantRole(w http.ResponseWriter, r *http.Request) {
	s.roleOp(w, r, s.engine.GrantRole)
}

func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	s.roleOp(w, r, s.engine.RevokeRole)
}

func (s *Server) roleOp(w http.ResponseWriter, r *http.Request, op func(caller, target common.Address, role nativecommon.Role) error) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}
	role := nativecommon.Role(req.Role)
	if role != nativecommon.RoleAdmin && role != nativecommon.RoleLiquidator {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if err := op(caller, req.Address, role); err != nil {
		writeEngineError(w, err)
		return
	}
	s.snapshotAccess()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reservesRequest struct {
	Asset     common.Address `json:"asset"`
	Recipient common.Address `json:"recipient"`
	Amount    *hexutil.Big   `json:"amount"`
}

func (s *Server) withdrawReserves(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req reservesRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.tick()
	if err := s.engine.WithdrawReserves(caller, req.Asset, req.Recipient, (*big.Int)(req.Amount)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type priceRequest struct {
	Asset     common.Address `json:"asset"`
	Value     *hexutil.Big   `json:"value"`
	Decimals  uint8          `json:"decimals"`
	UpdatedAt uint64         `json:"updatedAt"`
	Source    string         `json:"source"`
}

func (s *Server) postPrice(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "price feed not configured")
		return
	}
	if err := s.engine.AuthorizeAdmin(caller); err != nil {
		writeEngineError(w, err)
		return
	}
	var req priceRequest
	if !s.decode(w, r, &req) {
		return
	}
	updatedAt := req.UpdatedAt
	if updatedAt == 0 {
		updatedAt = uint64(s.clock().Unix())
	}
	s.feed.SetPrice(req.Asset, (*big.Int)(req.Value), req.Decimals, updatedAt, req.Source)
	s.logger.Info("price posted",
		"caller", caller.Hex(),
		"asset", req.Asset.Hex(),
		"source", req.Source,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type mintRequest struct {
	Asset  common.Address `json:"asset"`
	To     common.Address `json:"to"`
	Amount *hexutil.Big   `json:"amount"`
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if s.vault == nil {
		writeError(w, http.StatusServiceUnavailable, "vault not configured")
		return
	}
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.AuthorizeAdmin(caller); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.vault.Mint(req.Asset, req.To, (*big.Int)(req.Amount)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
