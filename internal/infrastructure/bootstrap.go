package infrastructure

import (
	"context"

	"ludum/internal/config"
	"ludum/internal/notify"
	"ludum/internal/pix"
	"ludum/internal/repository"
	"ludum/internal/service"
	transportHTTP "ludum/internal/transport/http"
	transportNATS "ludum/internal/transport/nats"
	"ludum/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	bus := transportNATS.NewBus(nc)
	cleanupFns = append(cleanupFns, nc.Close)

	// ── Storage ────────────────────────────────────────────────────────────────
	walletRepo := repository.NewWalletRepo(rdb, db, bus)
	catalogRepo := repository.NewCatalogRepo(db)
	libraryRepo := repository.NewLibraryRepo(db)
	refs := repository.NewRefRegistry(rdb)

	// ── Services ───────────────────────────────────────────────────────────────
	clock := service.SystemClock()
	notifier := notify.NewBus(bus)
	gen := pix.NewGenerator(cfg.PixDomain, cfg.MerchantName, cfg.MerchantCity, refs)
	settler := service.NewSimulator(clock, cfg.CardDelay, cfg.PixDelay)

	wallet := service.NewWalletService(walletRepo, clock, cfg.HoldThreshold, cfg.HoldWindow)
	payments := service.NewPaymentService(wallet, libraryRepo, settler, gen, notifier, clock, service.PaymentConfig{
		CardMode: cfg.CardValidation,
		Timeout:  cfg.SettlementTimeout,
	})
	purchases := service.NewPurchaseService(catalogRepo, libraryRepo, payments, notifier)

	// ── Servers ────────────────────────────────────────────────────────────────
	var servers []Server
	servers = append(servers, worker.NewLedgerWorker(walletRepo, nc))
	servers = append(servers, worker.NewSettlementWorker(payments, nc))
	servers = append(servers, transportNATS.NewHandler(wallet, nc))
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, payments, wallet, purchases))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
