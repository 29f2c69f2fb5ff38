package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipfan/reconciliation-service/internal/config"
	"github.com/clipfan/reconciliation-service/internal/domain"
	stripeclient "github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/kafka"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/policy"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/internal/repository/postgres"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// expiryBatchLimit заказов за один проход истечения
const expiryBatchLimit = 500

var log *logger.Logger

func init() {
	_ = godotenv.Load()

	logLevel := logger.INFO
	if os.Getenv("DEBUG") == "true" {
		logLevel = logger.DEBUG
	}
	log = logger.New(logLevel)
}

func main() {
	runOnce := flag.Bool("once", false, "run all jobs once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := postgres.NewConnection(ctx, cfg.Database.GetDSN(), log)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	kafkaProducer, err := kafka.NewSyncProducer(kafka.NewConfig(cfg.Kafka.Brokers), log)
	if err != nil {
		log.Fatal("Failed to create Kafka producer: %v", err)
	}
	defer kafkaProducer.Close()

	notifier := producer.NewKafkaNotificationProducer(kafkaProducer, log)

	gateway := stripeclient.NewClient(stripeclient.Config{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log)

	orderRepo := repository.NewPostgresOrderRepository(dbPool, log)
	refundRepo := repository.NewPostgresRefundRepository(dbPool, log)
	creatorDir := repository.NewPostgresCreatorDirectory(dbPool, log)

	refundSvc := service.NewRefundService(orderRepo, refundRepo, gateway, notifier, nil, cfg.Jobs.OrderExpiry(), log)
	orderSvc := service.NewOrderService(orderRepo, creatorDir, policy.NewEngine(policy.DefaultConfig()), refundSvc, notifier, nil, log)
	orphanSvc := service.NewOrphanService(gateway, orderRepo, notifier, nil, cfg.Jobs.OrphanLookback(), log)

	jobs := &reconcilerJobs{
		orders:    orderSvc,
		refunds:   refundSvc,
		orphans:   orphanSvc,
		expiryAge: cfg.Jobs.OrderExpiry(),
	}

	if *runOnce {
		jobs.runExpiry(ctx)
		jobs.runOrphanScan(ctx)
		return
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc(cfg.Jobs.ExpiryCron, func() { jobs.runExpiry(ctx) }); err != nil {
		log.Fatal("Failed to schedule expiry job: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.Jobs.OrphanScanCron, func() { jobs.runOrphanScan(ctx) }); err != nil {
		log.Fatal("Failed to schedule orphan scan job: %v", err)
	}

	scheduler.Start()
	log.Info("Reconciler started: expiry %q, orphan scan %q", cfg.Jobs.ExpiryCron, cfg.Jobs.OrphanScanCron)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Дожидаемся текущих задач перед выходом
	<-scheduler.Stop().Done()
	log.Info("Reconciler stopped gracefully")
}

// reconcilerJobs набор периодических задач сверки
type reconcilerJobs struct {
	orders    *service.OrderService
	refunds   *service.RefundService
	orphans   *service.OrphanService
	expiryAge time.Duration
}

// runExpiry истекает неоплаченные заказы и возвращает деньги по оплаченным,
// которые криэйтор так и не исполнил
func (j *reconcilerJobs) runExpiry(ctx context.Context) {
	cutoff := time.Now().Add(-j.expiryAge)

	expired, err := j.orders.ExpireStaleUnpaid(ctx, cutoff, expiryBatchLimit)
	if err != nil {
		log.Error("Failed to expire stale unpaid orders: %v", err)
	} else if expired > 0 {
		log.Info("Expired %d stale unpaid orders", expired)
	}

	result, err := j.refunds.ProcessBatch(ctx, domain.RefundBatchRequest{
		Type:   domain.RefundBatchExpiredOrders,
		Reason: domain.RefundReasonSystemExpiry,
	}, domain.InitiatorSystem, nil)
	if err != nil {
		log.Error("Failed to process expiry refund batch: %v", err)
		return
	}
	if result.SuccessCount > 0 || result.FailureCount > 0 {
		log.Info("Expiry refund batch: %d refunded (%d total), %d failed",
			result.SuccessCount, result.TotalAmount, result.FailureCount)
	}
}

// runOrphanScan ищет платежи шлюза без заказа и восстанавливает связь
func (j *reconcilerJobs) runOrphanScan(ctx context.Context) {
	report, err := j.orphans.ScanAndRecover(ctx)
	if err != nil {
		log.Error("Orphan scan failed: %v", err)
		return
	}
	if report.Orphans > 0 {
		log.Warn("Orphan scan: %d scanned, %d orphans, %d recovered, %d unmatched",
			report.Scanned, report.Orphans, report.Recovered, len(report.Unmatched))
		for _, candidate := range report.Unmatched {
			log.Warn("Unrecovered orphaned payment %s: %d %s", candidate.PaymentIntentID, candidate.Amount, candidate.Currency)
		}
	} else {
		log.Debug("Orphan scan: %d payments scanned, no orphans", report.Scanned)
	}
}
