package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"eventgo/internal/auth"
	"eventgo/internal/config"
	"eventgo/internal/database/migrations"
	"eventgo/internal/inventory"
	inventoryapi "eventgo/internal/inventory/api"
	inventorydb "eventgo/internal/inventory/db"
	"eventgo/internal/logger"
	"eventgo/internal/monitoring"
	"eventgo/internal/notification"
	"eventgo/internal/payment"
	paymenthandler "eventgo/internal/payment/handler"
	"eventgo/internal/purchase"
	purchaseapi "eventgo/internal/purchase/api"
	purchasedb "eventgo/internal/purchase/db"
	"eventgo/internal/qr"
	"eventgo/internal/refund"
	refundapi "eventgo/internal/refund/api"
	refunddb "eventgo/internal/refund/db"
	"eventgo/internal/validation"
	validationapi "eventgo/internal/validation/api"
	validationdb "eventgo/internal/validation/db"
	validationredis "eventgo/internal/validation/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	log.Info("DATABASE", "Connected to Postgres")

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redisClient.Close()
	log.Info("REDIS", "Connected to Redis")

	// --- Notifications ---
	var notifier notification.Dispatcher = notification.Noop{}
	if cfg.Kafka.Enabled {
		topics := notification.Topics{
			Notifications: cfg.Kafka.Topics.Notifications,
			Purchases:     cfg.Kafka.Topics.PurchaseEvents,
			Refunds:       cfg.Kafka.Topics.RefundEvents,
		}
		kafkaDispatcher := notification.NewKafkaDispatcher(cfg.Kafka.Brokers, topics, log)
		defer kafkaDispatcher.Close()
		notifier = kafkaDispatcher
		log.Info("KAFKA", fmt.Sprintf("Publishing to %s / %s / %s",
			topics.Notifications, topics.Purchases, topics.Refunds))
	}
	notifier = notification.NewPreferenceFilter(notifier)

	// --- Payment gateway ---
	var gateway payment.Gateway
	if cfg.Gateway.UseMock || cfg.Stripe.SecretKey == "" {
		gateway = payment.NewMockGateway(cfg.Gateway.SuccessRate, log)
		log.Warn("GATEWAY", "Using mock payment gateway")
	} else {
		stripeGateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
		if err != nil {
			log.Fatal("GATEWAY", fmt.Sprintf("Failed to initialize Stripe: %v", err))
		}
		gateway = stripeGateway
	}

	// --- Services ---
	inventoryStore := inventorydb.New(true)
	inventoryService := inventory.NewService(bunDB, inventoryStore, log)

	purchaseStore := &purchasedb.DB{Bun: bunDB, Inventory: inventoryStore}
	purchaseService := purchase.NewService(purchaseStore, qr.NewGenerator(), notifier, log, cfg.Stripe.Currency)

	validationStore := validationdb.New(bunDB)
	scanLock := validationredis.NewLock(redisClient, log)
	validationService := validation.NewService(validationStore, scanLock, log)

	refundStore := refunddb.New(bunDB)
	refundService := refund.NewService(refundStore, gateway, purchaseService, notifier, log, cfg.Gateway.Timeout)

	// --- Handlers ---
	inventoryHandler := inventoryapi.NewHandler(inventoryService, log)
	purchaseHandler := purchaseapi.NewHandler(purchaseService, gateway, log)
	validationHandler := validationapi.NewHandler(validationService, log)
	refundHandler := refundapi.NewHandler(refundService, log)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(monitoring.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware())

		inventoryHandler.RegisterRoutes(r)
		purchaseHandler.RegisterRoutes(r)
		refundHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("organizer", "staff"))
			validationHandler.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole("organizer"))
			inventoryHandler.RegisterAdminRoutes(r)
			refundHandler.RegisterAdminRoutes(r)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Webhook server (gin) ---
	gin.SetMode(gin.ReleaseMode)
	webhookEngine := gin.New()
	webhookEngine.Use(gin.Recovery())
	webhookHandler := paymenthandler.NewWebhookHandler(purchaseService, log)
	webhookHandler.RegisterRoutes(webhookEngine)

	webhookServer := &http.Server{
		Addr:    cfg.Server.WebhookPort,
		Handler: webhookEngine,
	}
	go func() {
		log.Info("SERVER", fmt.Sprintf("Webhook server running on %s", cfg.Server.WebhookPort))
		if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("Webhook server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		log.Error("SERVER", fmt.Sprintf("Webhook server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
