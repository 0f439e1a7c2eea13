package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/kvstore"
	"storefront/internal/pricing"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionSweepInterval = 10 * time.Minute

func main() {

	cfg := config.Load()

	if err := util.InitLogger(util.LoggerConfig{
		Env:    cfg.Server.Env,
		Level:  cfg.Server.LogLevel,
		Fields: []zap.Field{zap.String("service", "storefront")},
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint, cfg.Observ.TracingEnabled)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	policy, err := pricing.ParsePolicy(cfg.Business.TaxRate, cfg.Business.ShippingBase, cfg.Business.ShippingPerExtraUnit)
	if err != nil {
		logger.Fatal("Invalid pricing configuration", zap.Error(err))
	}

	ctx := context.Background()

	var db *store.Store
	if cfg.Store.Backend == "postgres" || cfg.Database.ArchiveOrders {
		db, err = store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Database connected")
	}

	var kv kvstore.Store
	switch cfg.Store.Backend {
	case "redis":
		rs, err := kvstore.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Store.SessionTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rs.Close()
		kv = rs
		logger.Info("Redis connected")
	case "postgres":
		ss, err := kvstore.NewSQLStore(ctx, db.GetDB())
		if err != nil {
			logger.Fatal("Failed to prepare key-value table", zap.Error(err))
		}
		kv = ss
	default:
		kv = kvstore.NewMemoryStore()
	}
	logger.Info("Session store ready", zap.String("backend", cfg.Store.Backend))

	var publisher *broker.EventPublisher
	var observers []cart.Observer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		observers = append(observers, publisher.OnCartChanged)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	// a nil *EventPublisher must not reach the interface field
	var orderService *service.OrderService
	if publisher != nil {
		orderService = service.NewOrderService(policy, cfg.Business.CheckoutDelay, publisher)
	} else {
		orderService = service.NewOrderService(policy, cfg.Business.CheckoutDelay, nil)
	}

	catalogProvider := catalog.NewProvider(
		catalog.NewDirSource(os.DirFS(cfg.Business.CatalogDir)),
		cfg.Business.DefaultCategory,
	)

	sessions := session.NewManager(kv, orderService, checkout.Options{
		Policy:  &policy,
		Timeout: cfg.Business.SubmitTimeout,
	}, observers...)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var archiveWorker *worker.OrderArchiveWorker
	var archive api.OrderArchive
	if cfg.Database.ArchiveOrders {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate order archive", zap.Error(err))
		}
		archive = db

		if cfg.Kafka.Enabled {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
			archiveWorker = worker.NewOrderArchiveWorker(consumer, db)
			go func() {
				if err := archiveWorker.Start(workerCtx); err != nil && err != context.Canceled {
					logger.Error("Order archive worker error", zap.Error(err))
				}
			}()
		} else {
			logger.Warn("Order archive enabled without Kafka, nothing will be archived")
		}
	}

	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n := sessions.Evict(cfg.Store.SessionTTL); n > 0 {
					logger.Debug("Evicted idle sessions", zap.Int("count", n))
				}
			}
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(catalogProvider, sessions, policy, archive)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if archiveWorker != nil {
		_ = archiveWorker.Stop()
	}

	logger.Info("Server exited")
}
