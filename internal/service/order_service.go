package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/fsm"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/metrics"
	"github.com/clipfan/reconciliation-service/internal/money"
	"github.com/clipfan/reconciliation-service/internal/policy"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// RefundProcessor выполняет возвраты по заказам
type RefundProcessor interface {
	ProcessRefund(ctx context.Context, input RefundInput) (domain.RefundRecord, error)
}

// CancelOutcome итог отмены заказа
type CancelOutcome struct {
	Order    domain.Order         `json:"order"`
	Decision policy.Decision      `json:"decision"`
	Refund   *domain.RefundRecord `json:"refund,omitempty"`
}

// OrderService управляет жизненным циклом заказов видео
type OrderService struct {
	orderRepo  repository.OrderRepository
	creatorDir repository.CreatorDirectory
	policy     *policy.Engine
	refunds    RefundProcessor
	producer   producer.NotificationProducer
	metrics    metrics.ReconciliationMetrics
	log        *logger.Logger
}

// NewOrderService создает сервис заказов
func NewOrderService(
	orderRepo repository.OrderRepository,
	creatorDir repository.CreatorDirectory,
	policyEngine *policy.Engine,
	refunds RefundProcessor,
	notifier producer.NotificationProducer,
	m metrics.ReconciliationMetrics,
	log *logger.Logger,
) *OrderService {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &OrderService{
		orderRepo:  orderRepo,
		creatorDir: creatorDir,
		policy:     policyEngine,
		refunds:    refunds,
		producer:   notifier,
		metrics:    m,
		log:        log,
	}
}

// CreateOrder создает заказ видео с расчетом долей. Заказ появляется
// в статусе pending, платеж привязывается отдельно.
func (s *OrderService) CreateOrder(ctx context.Context, fanID uuid.UUID, fanEmail string, req domain.OrderRequest) (domain.Order, error) {
	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invalid creator id: %w", domain.ErrInvalidInput)
	}

	creator, err := s.creatorDir.GetByID(ctx, creatorID)
	if err != nil {
		return domain.Order{}, err
	}
	if !creator.PaymentsEnabled {
		return domain.Order{}, fmt.Errorf("creator %s: %w", creatorID, domain.ErrCreatorNotPayable)
	}

	creatorShare, platformFee := money.Split(req.Amount)

	order := domain.Order{
		ID:              uuid.New(),
		FanID:           fanID,
		FanEmail:        fanEmail,
		CreatorID:       creatorID,
		Amount:          req.Amount,
		PlatformFee:     platformFee,
		CreatorEarnings: creatorShare,
		Currency:        req.Currency,
		Status:          domain.OrderStatusPending,
		VideoRequestID:  req.VideoRequestID,
		Metadata:        req.Metadata,
	}

	order, err = s.orderRepo.Create(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.IncOrderCreated(order.Currency)
	s.log.Info("Created order %s: fan %s -> creator %s, %d %s (fee %d)",
		order.ID, fanID, creatorID, order.Amount, order.Currency, order.PlatformFee)
	return order, nil
}

// GetOrder возвращает заказ по ID
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

// ListFanOrders возвращает заказы фаната от новых к старым
func (s *OrderService) ListFanOrders(ctx context.Context, fanID uuid.UUID) ([]domain.Order, error) {
	return s.orderRepo.ListByFan(ctx, fanID)
}

// AcceptOrder криэйтор принимает заказ в работу
func (s *OrderService) AcceptOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusAccepted)
}

// StartRecording криэйтор начал запись видео
func (s *OrderService) StartRecording(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusRecording)
}

// StartProcessing видео записано и обрабатывается
func (s *OrderService) StartProcessing(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusProcessing)
}

// CompleteOrder видео доставлено фанату
func (s *OrderService) CompleteOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusCompleted)
}

// transition переводит заказ в новый статус с проверкой допустимости ребра.
// Конкурентный переход ловится условным обновлением в репозитории.
func (s *OrderService) transition(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (domain.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if !fsm.CanTransitionOrder(order.Status, to) {
		return domain.Order{}, fmt.Errorf("order %s: %s -> %s: %w", id, order.Status, to, domain.ErrInvalidTransition)
	}

	if err := s.orderRepo.UpdateStatus(ctx, id, order.Status, to, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return domain.Order{}, fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrInvalidTransition)
		}
		return domain.Order{}, err
	}

	s.metrics.IncOrderStatus(string(to), order.Currency)
	s.log.Info("Order %s: %s -> %s", id, order.Status, to)

	return s.GetOrder(ctx, id)
}

// CancelOrder отменяет заказ по политике отмены. Если заказ оплачен и
// политика назначила возврат, возврат выполняется сразу после отмены.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID, initiatedByType domain.InitiatorType, initiatedBy *uuid.UUID, req domain.CancelOrderRequest) (CancelOutcome, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return CancelOutcome{}, err
	}

	decision := s.policy.Evaluate(order, time.Now())
	if !decision.Eligible {
		return CancelOutcome{}, domain.NewPolicyError(decision.Reason)
	}

	if err := s.orderRepo.UpdateStatus(ctx, id, order.Status, domain.OrderStatusCancelled, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return CancelOutcome{}, fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrInvalidTransition)
		}
		return CancelOutcome{}, err
	}
	s.metrics.IncOrderStatus(string(domain.OrderStatusCancelled), order.Currency)

	outcome := CancelOutcome{Decision: decision}

	if order.PaymentIntentReference != "" && decision.RefundAmount > 0 {
		reason := domain.RefundReasonFanCancellation
		if initiatedByType == domain.InitiatorCreator {
			reason = domain.RefundReasonCreatorRejection
		}
		rec, refundErr := s.refunds.ProcessRefund(ctx, RefundInput{
			OrderID:         id,
			Amount:          decision.RefundAmount,
			CancellationFee: decision.CancellationFee,
			Reason:          reason,
			InitiatedByType: initiatedByType,
			InitiatedBy:     initiatedBy,
		})
		if refundErr != nil {
			// Отмена состоялась, возврат остался в failed и будет
			// повторен админом или пакетной обработкой
			s.log.Error("Order %s cancelled but refund failed: %v", id, refundErr)
		}
		if rec.ID != uuid.Nil {
			outcome.Refund = &rec
		}
	}

	if s.producer != nil {
		cancelled, _ := s.GetOrder(ctx, id)
		if pErr := s.producer.PublishOrderCancelled(ctx, cancelled, req.Reason); pErr != nil {
			s.log.Warn("Failed to publish order cancellation event: %v", pErr)
		}
	}

	outcome.Order, err = s.GetOrder(ctx, id)
	if err != nil {
		return outcome, err
	}

	s.log.Info("Order %s cancelled by %s: fee %d, refund %d",
		id, initiatedByType, decision.CancellationFee, decision.RefundAmount)
	return outcome, nil
}

// PreviewCancellation возвращает решение политики отмены без побочных эффектов
func (s *OrderService) PreviewCancellation(ctx context.Context, id uuid.UUID) (policy.Decision, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return policy.Decision{}, err
	}
	return s.policy.Evaluate(order, time.Now()), nil
}

// ExpireStaleUnpaid переводит старые неоплаченные pending-заказы в expired.
// Оплаченные зависшие заказы проходят через пакетный возврат, не здесь.
func (s *OrderService) ExpireStaleUnpaid(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	orders, err := s.orderRepo.FindStaleUnpaid(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		if err := s.orderRepo.UpdateStatus(ctx, order.ID, order.Status, domain.OrderStatusExpired, time.Now()); err != nil {
			s.log.Warn("Failed to expire order %s: %v", order.ID, err)
			continue
		}
		expired++
		s.metrics.IncOrderStatus(string(domain.OrderStatusExpired), order.Currency)
		if s.producer != nil {
			order.Status = domain.OrderStatusExpired
			if pErr := s.producer.PublishOrderExpired(ctx, order); pErr != nil {
				s.log.Warn("Failed to publish order expiry event: %v", pErr)
			}
		}
	}

	if expired > 0 {
		s.log.Info("Expired %d stale unpaid orders", expired)
	}
	return expired, nil
}
