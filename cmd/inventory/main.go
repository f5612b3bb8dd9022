package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/tenant-orders/internal/config"
	"github.com/ariefcatur/tenant-orders/internal/events"
	"github.com/ariefcatur/tenant-orders/internal/inventory"
	kafkax "github.com/ariefcatur/tenant-orders/internal/kafka"
	"github.com/ariefcatur/tenant-orders/internal/logging"
	"github.com/ariefcatur/tenant-orders/internal/orders"
	"github.com/ariefcatur/tenant-orders/internal/postgres"
	"github.com/ariefcatur/tenant-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-inventory"

	log := logging.MustNewLogger(name, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, name, log); err != nil {
		log.Error("inventory exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, name string, log *zap.Logger) error {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	prod.Start()

	w := &inventory.Watcher{
		Catalog:     &orders.Repo{DB: db},
		Dedup:       &redisx.Dedup{R: rdb, Service: name},
		Publisher:   prod,
		ServiceName: name,
		Log:         log.Named("watcher"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, events.TopicOrderCompleted, cfg.InventoryWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("inventory consumer started",
			zap.String("group", cfg.InventoryGroup),
			zap.String("topic", events.TopicOrderCompleted),
			zap.Int("workers", cfg.InventoryWorkers))
		return cons.Start(gctx, w.HandleOrderCompleted)
	})
	err = g.Wait()

	prod.Close()
	prod.WaitClosed()
	return err
}
