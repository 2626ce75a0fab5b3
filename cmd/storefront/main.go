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

	"storefront-client/config"
	"storefront-client/internal/api"
	"storefront-client/internal/apiclient"
	"storefront-client/internal/broker"
	"storefront-client/internal/clock"
	"storefront-client/internal/realtime"
	"storefront-client/internal/redisclient"
	"storefront-client/internal/service"
	"storefront-client/internal/storage"
	"storefront-client/internal/store"
	"storefront-client/internal/util"
	"storefront-client/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront client")

	tp, err := util.InitTracer("storefront-client", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	var persisted storage.Store = storage.NewMemory()
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.StoragePrefix)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		persisted = redisClient
		log.Println("Redis connected")
	} else {
		log.Println("Redis not configured, session is kept in memory")
	}

	apiClient, err := apiclient.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}
	channel := realtime.NewManager(cfg.API.SocketURL)

	sessionManager := service.NewSessionManager(apiClient, persisted, channel, clock.New(), cfg.Session.Duration)
	cartSync := service.NewCartSynchronizer(apiClient, sessionManager)
	sessionManager.Subscribe(cartSync.HandleTransition)

	bridge := api.NewShellBridge()
	payee := service.PayeeConfig{
		VPA:      cfg.Payment.PayeeVPA,
		Name:     cfg.Payment.PayeeName,
		Currency: cfg.Payment.Currency,
		TaxRate:  cfg.Payment.TaxRate,
	}
	checkout := service.NewCheckoutOrchestrator(apiClient, sessionManager, cartSync, bridge, bridge, payee, clock.New())

	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare receipt schema: %v", err)
		}
		checkout.SetReceiptRecorder(db)
		log.Println("Database connected")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout)
		defer producer.Close()
		checkout.SetAuditPublisher(broker.NewEventPublisher(producer))
		log.Println("Kafka producer initialized")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	feed := worker.NewNotificationFeed(persisted, clock.New())
	eventWorker := worker.NewEventWorker(channel, feed, cartSync)
	if err := eventWorker.Start(workerCtx); err != nil {
		logger.Warn("Event worker started without persisted notifications", zap.Error(err))
	}

	if err := sessionManager.InitializeAuth(workerCtx); err != nil {
		logger.Warn("Persisted session could not be restored", zap.Error(err))
	}
	if sessionManager.IsAuthenticated() {
		if err := cartSync.FetchCart(workerCtx); err != nil {
			logger.Warn("Initial cart fetch failed", zap.Error(err))
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(sessionManager, cartSync, checkout, feed, bridge)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	eventWorker.Stop()
	if err := channel.Disconnect(); err != nil {
		log.Printf("Error closing realtime channel: %v", err)
	}

	log.Println("Server exited")
}
