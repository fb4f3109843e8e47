package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/checkout"
	"github.com/ariefcatur/go-storefront-core/internal/config"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-core/internal/kafka"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/memstore"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/payment"
	"github.com/ariefcatur/go-storefront-core/internal/postgres"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(logging.WithContext(context.Background(), log))
	defer cancel()

	// Store
	var store shop.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal("migrate", zap.Error(err))
			}
		}
		store = postgres.NewStore(db)
	}

	// Catalog
	cat, err := newCatalog(cfg)
	if err != nil {
		log.Fatal("catalog", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	kv := redisx.NewStore(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)
	emitter := events.NewEmitter(prod, cfg.ServiceName)

	// Metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Services
	pricing := cart.Pricing{
		TaxRate:               cfg.TaxRate,
		ShippingFeeCents:      cfg.ShippingFeeCents,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
	}
	backoff := retry.Policy{Attempts: cfg.ReserveRetries, Base: 25 * time.Millisecond, Max: time.Second}
	l := ledger.New(store, cfg.ReservationTTL, ledger.WithRetry(backoff), ledger.WithMetrics(m))
	machine := order.New(store, l, order.WithEvents(emitter), order.WithStatusCache(kv))
	gw := payment.NewGatewayClient(cfg.GatewayURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)
	co := checkout.New(store, l, cat, pricing,
		checkout.WithEvents(emitter),
		checkout.WithStatusCache(kv),
		checkout.WithMetrics(m),
		checkout.WithRetry(backoff),
		checkout.WithGateway(gw, cfg.GatewayTimeout, cfg.GatewayCallbackURL),
	)
	rec := payment.NewReconciler(store, machine, gw, cfg.GatewaySecretKey,
		payment.WithDedup(kv),
		payment.WithStatusCache(kv),
		payment.WithEvents(emitter),
		payment.WithMetrics(m),
		payment.WithVerifyRetry(retry.Policy{Attempts: cfg.VerifyRetries, Base: 200 * time.Millisecond, Max: 2 * time.Second}),
	)

	// Router & handlers
	router := httpx.NewRouter(log, m, httpx.NewAuth(cfg.JWTSecret), reg)
	(&httpx.CartHandler{Carts: cart.NewService(store, cat, pricing, kv)}).Register(router)
	(&httpx.CheckoutHandler{Checkout: co, Orders: machine, Idem: kv}).Register(router)
	(&httpx.PaymentsHandler{Reconciler: rec, Orders: machine}).Register(router)
	(&httpx.OrdersHandler{Orders: machine, Cache: kv}).Register(router)
	(&httpx.StockHandler{Ledger: l}).Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // flush queued events
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}

// newCatalog prefers Consul discovery, then a fixed URL. The memory driver
// may run without a catalog service, in which case nothing is purchasable.
func newCatalog(cfg config.Config) (cart.Catalog, error) {
	switch {
	case cfg.ConsulAddr != "":
		r, err := catalog.NewConsulResolver(cfg.ConsulAddr, cfg.CatalogService)
		if err != nil {
			return nil, err
		}
		return catalog.NewClient(r, cfg.CatalogTimeout), nil
	case cfg.CatalogURL != "":
		return catalog.NewClient(catalog.StaticResolver(cfg.CatalogURL), cfg.CatalogTimeout), nil
	case cfg.StoreDriver == "memory":
		return catalog.Static{}, nil
	}
	return nil, errors.New("CATALOG_URL or CONSUL_ADDR is required")
}
