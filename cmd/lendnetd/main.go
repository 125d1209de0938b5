package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"lendnet/config"
	nativecommon "lendnet/native/common"
	"lendnet/native/lending"
	"lendnet/observability/logging"
	"lendnet/oracle"
	"lendnet/rpc"
	"lendnet/storage"
)

const serviceName = "lendnetd"

// moduleTreasury is the fixed address custodying pooled market liquidity.
var moduleTreasury = common.BytesToAddress([]byte("lendnet/module/lending"))

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(serviceName, cfg.Service.Environment, cfg.Service.LogFile)

	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	store, err := storage.NewStateStore(db)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	feed := oracle.NewManualFeed()
	pauses := nativecommon.NewPauseRegistry()
	roles := nativecommon.NewRoleRegistry()
	for _, admin := range cfg.Auth.Admins {
		roles.Grant(common.HexToAddress(admin), nativecommon.RoleAdmin)
	}
	for _, liquidator := range cfg.Auth.Liquidators {
		roles.Grant(common.HexToAddress(liquidator), nativecommon.RoleLiquidator)
	}
	// Re-apply grants and pause flags from the last snapshot so capabilities
	// granted at runtime survive a restart.
	access, err := store.GetAccess()
	if err != nil {
		return fmt.Errorf("load access snapshot: %w", err)
	}
	if access != nil {
		for _, admin := range access.Admins {
			roles.Grant(admin, nativecommon.RoleAdmin)
		}
		for _, liquidator := range access.Liquidators {
			roles.Grant(liquidator, nativecommon.RoleLiquidator)
		}
		for _, module := range access.Paused {
			pauses.Pause(module)
		}
	}
	persistAccess := func() error {
		return store.PutAccess(&storage.AccessRecord{
			Admins:      roles.Members(nativecommon.RoleAdmin),
			Liquidators: roles.Members(nativecommon.RoleLiquidator),
			Paused:      pauses.Modules(),
		})
	}
	if err := persistAccess(); err != nil {
		return fmt.Errorf("persist access snapshot: %w", err)
	}

	model := lending.NewInterestModel(
		lending.FixedFromBps(cfg.Interest.BaseBps),
		lending.FixedFromBps(cfg.Interest.MultiplierBps),
		lending.FixedFromBps(cfg.Interest.JumpMultiplierBps),
		lending.FixedFromBps(cfg.Interest.KinkBps),
	)
	vault := lending.NewLedgerVault(store, moduleTreasury)

	engine := lending.NewEngine(model)
	engine.SetState(store)
	engine.SetVault(vault)
	engine.SetPriceSource(feed)
	engine.SetPauseRegistry(pauses)
	engine.SetRoleRegistry(roles)
	engine.SetLogger(logger)
	engine.SetMaxPriceAge(cfg.Oracle.MaxAgeSeconds)
	engine.SetTimestamp(uint64(time.Now().Unix()))

	if err := bootstrapMarkets(cfg, engine); err != nil {
		return fmt.Errorf("bootstrap markets: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Service.RatePerSecond), cfg.Service.RateBurst)
	server := rpc.New(engine, vault, feed, logger, []byte(cfg.Auth.JWTSecret), limiter)
	server.SetAccessPersist(persistAccess)

	httpServer := &http.Server{
		Addr:              cfg.Service.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", cfg.Service.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(cfg.Path)
	case "bolt":
		return storage.NewBoltDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// bootstrapMarkets lists every configured market that is not already in the
// ledger. Listing is an admin operation, so the first configured admin acts
// as the caller.
func bootstrapMarkets(cfg *config.Config, engine *lending.Engine) error {
	if len(cfg.Markets) == 0 {
		return nil
	}
	if len(cfg.Auth.Admins) == 0 {
		return fmt.Errorf("markets configured but no admin to list them")
	}
	admin := common.HexToAddress(cfg.Auth.Admins[0])

	for _, mc := range cfg.Markets {
		asset := common.HexToAddress(mc.Asset)
		existing, err := engine.GetMarket(asset)
		if err != nil && !errors.Is(err, lending.ErrNotListed) {
			return err
		}
		if existing != nil {
			continue
		}
		borrowCap, err := config.ParseCap(mc.BorrowCap)
		if err != nil {
			return err
		}
		supplyCap, err := config.ParseCap(mc.SupplyCap)
		if err != nil {
			return err
		}
		if err := engine.ListMarket(admin, asset,
			lending.FixedFromBps(mc.CollateralFactorBps),
			lending.FixedFromBps(mc.ReserveFactorBps),
			borrowCap, supplyCap,
		); err != nil {
			return err
		}
	}
	return nil
}
