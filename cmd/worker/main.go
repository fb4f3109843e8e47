package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-core/internal/config"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	kafkax "github.com/ariefcatur/go-storefront-core/internal/kafka"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/postgres"
	"github.com/ariefcatur/go-storefront-core/internal/projector"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/sweeper"
)

// The worker runs the expiry sweeper and the order status projector. It
// needs the postgres driver; the memory store lives inside the api process.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName+"-worker", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if cfg.StoreDriver != "postgres" {
		log.Fatal("worker requires STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}

	ctx, cancel := signal.NotifyContext(logging.WithContext(context.Background(), log), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	store := postgres.NewStore(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	kv := redisx.NewStore(rdb)

	// Kafka producer for the status changes the sweeper makes
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prodCtx, stopProd := context.WithCancel(context.Background())
	prod.Start(prodCtx)
	emitter := events.NewEmitter(prod, cfg.ServiceName+"-worker")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	l := ledger.New(store, cfg.ReservationTTL, ledger.WithMetrics(m))
	machine := order.New(store, l, order.WithEvents(emitter), order.WithStatusCache(kv))

	sw := &sweeper.Sweeper{
		Ledger:     l,
		Orders:     machine,
		Lock:       kv,
		Metrics:    m,
		Interval:   cfg.SweepInterval,
		PendingTTL: cfg.PendingOrderTTL,
		Batch:      cfg.SweepBatch,
		Now:        time.Now,
	}
	proj := &projector.Projector{Cache: kv, Dedup: kv, Metrics: m}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, events.Topics, cfg.WorkerConcurrency, log)

	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gctx) })
	g.Go(func() error {
		log.Info("projector consumer started",
			zap.String("group", cfg.WorkerGroup), zap.Strings("topics", events.Topics), zap.Int("workers", cfg.WorkerConcurrency))
		return cons.Start(gctx, proj.Handle)
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return metricsSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker exited", zap.Error(err))
	}
	log.Info("shutting down worker")
	prod.Close()
	stopProd()
	prod.WaitClosed()
}
