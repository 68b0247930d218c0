package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"tableside/internal/config"
	"tableside/internal/database"
	"tableside/internal/httpserver"
	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/pricing"
	"tableside/internal/services/lock"
	"tableside/internal/services/notification"
	"tableside/internal/services/order"
	"tableside/internal/services/presence"
)

func main() {
	var (
		mode          = flag.String("mode", "", "Service mode (order-service, lock-reaper, notification-subscriber)")
		configPath    = flag.String("config", "config.yaml", "Path to the YAML config file")
		port          = flag.Int("port", 0, "HTTP port (overrides server.port)")
		maxConcurrent = flag.Int("max-concurrent", 50, "Maximum concurrent order transactions")
		reaperName    = flag.String("reaper-name", "", "Lock reaper name (defaults to hostname)")
		noReaper      = flag.Bool("no-reaper", false, "Do not run the lock reaper inside order-service")
		prefetch      = flag.Int("prefetch", 10, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":           *mode,
		"port":           cfg.Server.Port,
		"max_concurrent": *maxConcurrent,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log, int64(*maxConcurrent), *reaperName, !*noReaper)
	case "lock-reaper":
		err = runLockReaper(ctx, cfg, log, *reaperName)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, log, *prefetch)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService serves the order, lock and presence APIs on one port and,
// unless disabled, sweeps stale locks in the same process.
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, maxConcurrent int64, reaperName string, withReaper bool) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()
	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	rdb, err := presence.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer rdb.Close()
	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}
	serviceRate, err := cfg.ServiceRate()
	if err != nil {
		return err
	}

	orders := order.NewService(
		order.NewPostgresRepository(db),
		pricing.NewCatalogLookup(db),
		pricing.NewCalculator(taxRate, serviceRate),
		messaging.NewPublisher(conn, log),
		log,
		order.WithMaxConcurrent(maxConcurrent),
	)
	locks := lock.NewService(lock.NewPostgresRepository(db), cfg.Locks.TTL, nil, log)
	tracker := presence.NewTracker(rdb, cfg.Presence.TTL, nil, log)

	mux := http.NewServeMux()
	order.NewHandler(orders, log).Register(mux)
	lock.NewHandler(locks, log).Register(mux)
	presence.NewHandler(tracker, log).Register(mux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(ctx, cfg.Server.Port, mux, log)
	})
	if withReaper {
		reaper := lock.NewReaper(reaperName, cfg.Locks.ReapInterval, locks, log)
		g.Go(func() error {
			return reaper.Run(ctx)
		})
	}
	return g.Wait()
}

// runLockReaper sweeps stale locks without serving HTTP.
func runLockReaper(ctx context.Context, cfg *config.Config, log *logger.Logger, name string) error {
	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	locks := lock.NewService(lock.NewPostgresRepository(db), cfg.Locks.TTL, nil, log)
	return lock.NewReaper(name, cfg.Locks.ReapInterval, locks, log).Run(ctx)
}

// runNotificationSubscriber prints every committed order event.
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	hostname, _ := os.Hostname()
	consumer := messaging.NewConsumer(conn, log, messaging.BroadcastQueue, "notification-"+hostname, prefetch)
	return notification.NewSubscriber(consumer, log, os.Stdout).Start(ctx)
}
