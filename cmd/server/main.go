package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipfan/reconciliation-service/internal/api/rest"
	"github.com/clipfan/reconciliation-service/internal/api/rest/handlers"
	"github.com/clipfan/reconciliation-service/internal/api/rest/middleware"
	"github.com/clipfan/reconciliation-service/internal/config"
	"github.com/clipfan/reconciliation-service/internal/idempotency"
	stripeclient "github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/kafka"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/metrics"
	"github.com/clipfan/reconciliation-service/internal/policy"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/internal/repository/postgres"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var log *logger.Logger

func init() {
	// .env не обязателен, в контейнере переменные приходят извне
	_ = godotenv.Load()

	logLevel := logger.INFO
	if os.Getenv("DEBUG") == "true" {
		logLevel = logger.DEBUG
	}
	log = logger.New(logLevel)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация Prometheus
	promRegistry := prometheus.NewRegistry()
	reconMetrics := metrics.NewReconciliationMetrics(promRegistry, log)
	systemMetrics := metrics.NewSystemMetrics(promRegistry, log)

	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	// Подключение к базе данных
	dbPool, err := postgres.NewConnection(ctx, cfg.Database.GetDSN(), log)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Redis для распределенной идемпотентности платежей
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Инициализация Kafka продюсера
	kafkaProducer, err := kafka.NewSyncProducer(kafka.NewConfig(cfg.Kafka.Brokers), log)
	if err != nil {
		log.Fatal("Failed to create Kafka producer: %v", err)
	}
	defer kafkaProducer.Close()

	notifier := producer.NewKafkaNotificationProducer(kafkaProducer, log)

	// Клиент платежного шлюза
	gateway := stripeclient.NewClient(stripeclient.Config{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log)

	verifier, err := stripeclient.NewSignatureVerifier(cfg.Stripe.WebhookSecret, log)
	if err != nil {
		log.Fatal("Failed to initialize webhook verifier: %v", err)
	}

	// Репозитории
	txManager := repository.NewPgxTxManager(dbPool)
	orderRepo := repository.NewPostgresOrderRepository(dbPool, log)
	subRepo := repository.NewPostgresSubscriptionRepository(dbPool, log)
	refundRepo := repository.NewPostgresRefundRepository(dbPool, log)
	webhookRepo := repository.NewPostgresWebhookEventRepository(dbPool, log)
	creatorDir := repository.NewPostgresCreatorDirectory(dbPool, log)

	// Сервисы
	refundSvc := service.NewRefundService(orderRepo, refundRepo, gateway, notifier, reconMetrics, cfg.Jobs.OrderExpiry(), log)
	orderSvc := service.NewOrderService(orderRepo, creatorDir, policy.NewEngine(policy.DefaultConfig()), refundSvc, notifier, reconMetrics, log)
	paymentSvc := service.NewPaymentService(orderRepo, creatorDir, gateway, idempotency.NewRedisGuard(redisClient, log), log)
	subSvc := service.NewSubscriptionService(subRepo, creatorDir, gateway, notifier, log)
	reconcilerSvc := service.NewReconcilerService(txManager, webhookRepo, orderRepo, subRepo, notifier, reconMetrics, log)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtAuth := middleware.NewJWTMiddleware(
		&middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)},
		log,
	)

	router := rest.SetupRouter(log, promRegistry, jwtAuth, rest.Handlers{
		Health:       handlers.NewHealthHandler(),
		Order:        handlers.NewOrderHandler(orderSvc, log),
		Payment:      handlers.NewPaymentHandler(orderSvc, paymentSvc, log),
		Refund:       handlers.NewRefundHandler(refundSvc, log),
		Subscription: handlers.NewSubscriptionHandler(subSvc, log),
		Webhook:      handlers.NewWebhookHandler(verifier, reconcilerSvc, log),
	})

	server := rest.NewServer(cfg.App, router, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownTimeout := time.Duration(cfg.App.ShutdownTimeout) * time.Second
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
