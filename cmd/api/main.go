package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/tenant-orders/internal/config"
	"github.com/ariefcatur/tenant-orders/internal/httpx"
	"github.com/ariefcatur/tenant-orders/internal/inventory"
	kafkax "github.com/ariefcatur/tenant-orders/internal/kafka"
	"github.com/ariefcatur/tenant-orders/internal/logging"
	"github.com/ariefcatur/tenant-orders/internal/memstore"
	"github.com/ariefcatur/tenant-orders/internal/metrics"
	"github.com/ariefcatur/tenant-orders/internal/orders"
	"github.com/ariefcatur/tenant-orders/internal/postgres"
	"github.com/ariefcatur/tenant-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := &orders.Service{
		Log:               log.Named("orders"),
		Metrics:           m,
		Producer:          cfg.ServiceName,
		Location:          cfg.OrderLocation,
		MaxNumberAttempts: cfg.OrderNumberRetries,
	}
	adj := &inventory.Adjuster{Metrics: m, Log: log.Named("inventory")}
	oh := &httpx.OrdersHandler{Orders: svc}

	var prod *kafkax.Producer
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		st := memstore.New()
		svc.Store, adj.Store, adj.Catalog = st, st, st

	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		repo := &orders.Repo{DB: db}
		svc.Store, adj.Store, adj.Catalog = repo, repo, repo

		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, cache and idempotency will degrade", zap.Error(err))
		}
		oh.Cache = &redisx.OrderCache{R: rdb}
		oh.Idem = &redisx.Idempotency{R: rdb}

		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
		prod.Start()
		svc.Publisher = prod

	default:
		return errors.New("unknown STORE_DRIVER " + cfg.StoreDriver)
	}
	svc.Stock = adj

	router := httpx.NewRouter(log, reg)
	oh.Register(router)
	(&httpx.InventoryHandler{Stock: adj}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()
			prod.WaitClosed()
		}
		return err
	})
	return g.Wait()
}
