package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/flower-auction/internal/adapter/handler"
	"github.com/rl1809/flower-auction/internal/adapter/messaging"
	"github.com/rl1809/flower-auction/internal/adapter/storage"
	"github.com/rl1809/flower-auction/internal/config"
	"github.com/rl1809/flower-auction/internal/core/service"
	"github.com/rl1809/flower-auction/internal/port"
	"github.com/rl1809/flower-auction/internal/worker"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers and the event workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
	flags := cmd.Flags()
	flags.Int("http-port", 8080, "HTTP listen port")
	flags.Int("grpc-port", 50051, "gRPC listen port")
	flags.String("redis-addr", "", "Redis address; empty keeps live views in memory")
	flags.StringSlice("kafka-brokers", nil, "Kafka brokers; empty logs events instead")
	_ = v.BindPFlag("http.port", flags.Lookup("http-port"))
	_ = v.BindPFlag("grpc.port", flags.Lookup("grpc-port"))
	_ = v.BindPFlag("redis.addr", flags.Lookup("redis-addr"))
	_ = v.BindPFlag("kafka.brokers", flags.Lookup("kafka-brokers"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initialize store
	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Initialize cache
	var cache port.CacheRepository = storage.NewMemoryCache()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Info("using in-memory idempotency and live view counters")
	}

	// Initialize event publisher
	var publisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	} else {
		publisher = messaging.NewLogPublisher(log.Named("events"))
	}

	// Initialize services
	events := service.NewEventQueue(cfg.Events.QueueSize, log)
	deps := service.Deps{Store: store, Cache: cache, Events: events, Logger: log}
	products := service.NewProductService(deps)
	clocks := service.NewClockService(deps)
	placement := service.NewPlacementService(deps)

	// Start worker pool
	pool := worker.NewPool(publisher, cfg.Events.PublishTimeout, log)
	pool.Start(cfg.Events.Workers, events.Events())

	limiter := handler.NewBuyerLimiter(cfg.RateLimit.BidsPerSecond, cfg.RateLimit.Burst)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(log)))
	handler.RegisterAuctionServiceServer(grpcServer, handler.NewGRPCHandler(clocks, placement, limiter))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(products, clocks, placement, limiter, log)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr(),
		Handler:      httpHandler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr()))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down")

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Close event queue and wait for workers. Handlers that outlived the
	// shutdown timeout drop their events instead of publishing.
	events.Close()
	pool.Wait()
	if err := publisher.Close(); err != nil {
		log.Warn("closing event publisher", zap.Error(err))
	}
	log.Info("workers stopped")

	return nil
}

// openStore returns the configured store and, for SQL drivers, the
// underlying handle after applying migrations.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.Store, *sql.DB, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return storage.NewMemoryStore(), nil, nil
	case config.DriverMySQL, config.DriverSQLite:
		db, dialect, err := openSQL(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		applied, err := storage.Migrate(ctx, db, dialect)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("connected to store", zap.String("driver", cfg.Store.Driver), zap.Int("schema_version", applied))
		return storage.NewSQLStore(db, dialect), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openSQL(ctx context.Context, cfg *config.Config) (*sql.DB, storage.Dialect, error) {
	if cfg.Store.Driver == config.DriverMySQL {
		db, err := storage.OpenMySQL(ctx, storage.MySQLOptions{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		})
		return db, storage.DialectMySQL, err
	}
	db, err := storage.OpenSQLite(ctx, cfg.SQLite.Path)
	return db, storage.DialectSQLite, err
}
