package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/metrics"
	"github.com/clipfan/reconciliation-service/internal/money"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	// defaultBatchLimit максимум заказов в одном пакете возвратов
	defaultBatchLimit = 100
	// gatewayRetryMaxElapsed предел общего времени повторов вызова шлюза
	gatewayRetryMaxElapsed = 30 * time.Second
	// defaultExpiryAge возраст неисполненного оплаченного заказа до
	// автоматического возврата
	defaultExpiryAge = 14 * 24 * time.Hour
)

// RefundInput параметры одиночного возврата
type RefundInput struct {
	OrderID uuid.UUID
	// Amount сумма возврата в минимальных единицах. 0 означает всю
	// невозвращенную сумму заказа.
	Amount          int64
	CancellationFee int64
	Reason          domain.RefundReason
	InitiatedByType domain.InitiatorType
	InitiatedBy     *uuid.UUID
}

// RefundService обрабатывает возвраты: одиночные и пакетные
type RefundService struct {
	orderRepo  repository.OrderRepository
	refundRepo repository.RefundRepository
	gateway    stripe.RefundGateway
	producer   producer.NotificationProducer
	metrics    metrics.ReconciliationMetrics
	log        *logger.Logger
	batchLimit int
	// expiryAge возраст, после которого неисполненный оплаченный заказ
	// считается истекшим
	expiryAge time.Duration
}

// NewRefundService создает сервис возвратов
func NewRefundService(
	orderRepo repository.OrderRepository,
	refundRepo repository.RefundRepository,
	gateway stripe.RefundGateway,
	notifier producer.NotificationProducer,
	m metrics.ReconciliationMetrics,
	expiryAge time.Duration,
	log *logger.Logger,
) *RefundService {
	if notifier == nil {
		log.Warn("Kafka producer is nil, refund event publishing will be skipped")
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if expiryAge <= 0 {
		expiryAge = defaultExpiryAge
	}
	return &RefundService{
		orderRepo:  orderRepo,
		refundRepo: refundRepo,
		gateway:    gateway,
		producer:   notifier,
		metrics:    m,
		log:        log,
		batchLimit: defaultBatchLimit,
		expiryAge:  expiryAge,
	}
}

// ProcessRefund выполняет один возврат: создает запись, вызывает шлюз с
// повторами и фиксирует итог. Неудача шлюза не откатывает запись — она
// остается в статусе failed для разбора.
func (s *RefundService) ProcessRefund(ctx context.Context, input RefundInput) (domain.RefundRecord, error) {
	order, err := s.orderRepo.GetByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RefundRecord{}, fmt.Errorf("order %s: %w", input.OrderID, domain.ErrNotFound)
		}
		return domain.RefundRecord{}, err
	}

	if order.PaymentIntentReference == "" {
		return domain.RefundRecord{}, fmt.Errorf("order %s has no payment to refund: %w", order.ID, domain.ErrInvalidInput)
	}

	refunded, err := s.refundRepo.SumRefundedByOrder(ctx, order.ID)
	if err != nil {
		return domain.RefundRecord{}, err
	}
	remaining := order.Amount - refunded
	if remaining <= 0 {
		return domain.RefundRecord{}, fmt.Errorf("order %s is already fully refunded: %w", order.ID, domain.ErrInvalidInput)
	}

	amount := input.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount < 0 || amount > remaining {
		return domain.RefundRecord{}, fmt.Errorf("refund amount %d exceeds refundable %d: %w", amount, remaining, domain.ErrInvalidInput)
	}

	// Незавершенный возврат по заказу блокирует новый: повторный запрос
	// не должен породить второй возврат в шлюзе
	existing, err := s.refundRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return domain.RefundRecord{}, err
	}
	for _, rec := range existing {
		if rec.Status == domain.RefundStatusPending || rec.Status == domain.RefundStatusProcessing {
			return rec, fmt.Errorf("refund %s for order %s is already in progress: %w", rec.ID, order.ID, domain.ErrDuplicate)
		}
	}

	feeRefund := money.ProportionalRefund(order.Amount, order.PlatformFee, amount)

	rec := domain.RefundRecord{
		ID:                    uuid.New(),
		OrderID:               order.ID,
		RefundAmount:          amount,
		OriginalAmount:        order.Amount,
		PlatformFeeRefund:     feeRefund,
		CreatorEarningsRefund: amount - feeRefund,
		CancellationFee:       input.CancellationFee,
		Currency:              order.Currency,
		Status:                domain.RefundStatusPending,
		Reason:                input.Reason,
		InitiatedByType:       input.InitiatedByType,
		InitiatedBy:           input.InitiatedBy,
	}
	rec, err = s.refundRepo.Create(ctx, rec)
	if err != nil {
		return domain.RefundRecord{}, err
	}

	if err := s.refundRepo.UpdateStatus(ctx, rec.ID, domain.RefundStatusProcessing, "", ""); err != nil {
		return rec, err
	}
	rec.Status = domain.RefundStatusProcessing

	result, gErr := s.callGatewayRefund(ctx, order, rec)
	if gErr != nil {
		s.log.Error("Refund %s for order %s failed at gateway: %v", rec.ID, order.ID, gErr)
		if uErr := s.refundRepo.UpdateStatus(ctx, rec.ID, domain.RefundStatusFailed, "", gErr.Error()); uErr != nil {
			s.log.Error("Failed to record refund failure for %s: %v", rec.ID, uErr)
		}
		rec.Status = domain.RefundStatusFailed
		rec.FailureReason = gErr.Error()
		s.metrics.IncRefund("failed", string(rec.Reason))
		if s.producer != nil {
			if pErr := s.producer.PublishRefundFailed(ctx, rec); pErr != nil {
				s.log.Warn("Failed to publish refund failure event: %v", pErr)
			}
		}
		return rec, gErr
	}

	if err := s.refundRepo.UpdateStatus(ctx, rec.ID, domain.RefundStatusSucceeded, result.ID, ""); err != nil {
		// Возврат в шлюзе прошел, локальная запись не обновилась.
		// Запись остается в processing, уникальный внешний идентификатор
		// не даст продублировать возврат при повторе.
		s.log.Error("Refund %s succeeded at gateway as %s but status update failed: %v", rec.ID, result.ID, err)
		return rec, fmt.Errorf("refund %s: %w", rec.ID, domain.ErrPersistence)
	}
	rec.Status = domain.RefundStatusSucceeded
	rec.ExternalRefundRef = result.ID

	s.metrics.IncRefund("succeeded", string(rec.Reason))
	s.metrics.ObserveRefundAmount(float64(rec.RefundAmount), rec.Currency)

	// Полный возврат переводит заказ в refunded
	if refunded+amount >= order.Amount {
		if err := s.orderRepo.UpdateStatus(ctx, order.ID, order.Status, domain.OrderStatusRefunded, time.Now()); err != nil {
			s.log.Warn("Refund %s completed but order %s status update failed: %v", rec.ID, order.ID, err)
		} else {
			s.metrics.IncOrderStatus(string(domain.OrderStatusRefunded), order.Currency)
		}
	}

	if s.producer != nil {
		if pErr := s.producer.PublishRefundCompleted(ctx, rec); pErr != nil {
			s.log.Warn("Failed to publish refund completion event: %v", pErr)
		}
	}

	s.log.Info("Refund %s for order %s completed: %d %s via %s",
		rec.ID, order.ID, rec.RefundAmount, rec.Currency, rec.ExternalRefundRef)
	return rec, nil
}

// callGatewayRefund вызывает шлюз с экспоненциальными повторами.
// Повторяются только сетевые сбои и 5xx, остальное возвращается сразу.
func (s *RefundService) callGatewayRefund(ctx context.Context, order domain.Order, rec domain.RefundRecord) (*stripe.RefundResult, error) {
	// Ключ идемпотентности выводится из записи возврата: все попытки
	// одного возврата шлюз схлопывает в одну операцию
	params := stripe.RefundParams{
		PaymentIntentID: order.PaymentIntentReference,
		Amount:          rec.RefundAmount,
		Reason:          string(rec.Reason),
		RefundRecordID:  rec.ID.String(),
		IdempotencyKey:  "refund-" + rec.ID.String(),
	}
	// Полный возврат отправляется без суммы: шлюз вернет остаток сам
	if rec.RefundAmount == order.Amount {
		params.Amount = 0
	}

	var result *stripe.RefundResult
	operation := func() error {
		res, err := s.gateway.CreateRefund(ctx, params)
		if err != nil {
			var gwErr *domain.GatewayError
			if errors.As(err, &gwErr) && !gwErr.Retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = gatewayRetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessBatch выполняет пакет возвратов последовательно: сбой одного заказа
// не прерывает остальные. Итог идемпотентен — повторный запуск пропускает
// уже возвращенные заказы.
func (s *RefundService) ProcessBatch(ctx context.Context, req domain.RefundBatchRequest, initiatedByType domain.InitiatorType, initiatedBy *uuid.UUID) (domain.RefundBatchResult, error) {
	orders, resolveErrs, err := s.resolveBatchOrders(ctx, req)
	if err != nil {
		return domain.RefundBatchResult{}, err
	}

	result := domain.RefundBatchResult{
		DryRun: req.DryRun,
		Items:  resolveErrs,
	}
	result.FailureCount = len(resolveErrs)

	for _, order := range orders {
		item := domain.RefundBatchItem{OrderID: order.ID}

		refunded, sumErr := s.refundRepo.SumRefundedByOrder(ctx, order.ID)
		if sumErr != nil {
			item.Error = sumErr.Error()
			result.Items = append(result.Items, item)
			result.FailureCount++
			continue
		}
		remaining := order.Amount - refunded
		if remaining <= 0 {
			item.Error = "order is already fully refunded"
			result.Items = append(result.Items, item)
			result.FailureCount++
			continue
		}
		item.Amount = remaining

		if req.DryRun {
			item.Success = true
			result.Items = append(result.Items, item)
			result.SuccessCount++
			result.TotalAmount += remaining
			continue
		}

		rec, refundErr := s.ProcessRefund(ctx, RefundInput{
			OrderID:         order.ID,
			Amount:          remaining,
			Reason:          req.Reason,
			InitiatedByType: initiatedByType,
			InitiatedBy:     initiatedBy,
		})
		if refundErr != nil {
			item.Error = refundErr.Error()
			result.Items = append(result.Items, item)
			result.FailureCount++
			continue
		}

		item.Success = true
		item.RefundID = rec.ID
		result.Items = append(result.Items, item)
		result.SuccessCount++
		result.TotalAmount += rec.RefundAmount
	}

	s.metrics.ObserveBatchSize(float64(len(result.Items)))
	s.log.Info("Refund batch (%s, dry_run=%t) done: %d succeeded, %d failed, total %d",
		req.Type, req.DryRun, result.SuccessCount, result.FailureCount, result.TotalAmount)
	return result, nil
}

// resolveBatchOrders разворачивает селектор пакета в список заказов
func (s *RefundService) resolveBatchOrders(ctx context.Context, req domain.RefundBatchRequest) ([]domain.Order, []domain.RefundBatchItem, error) {
	switch req.Type {
	case domain.RefundBatchExpiredOrders:
		cutoff := time.Now().Add(-s.expiryAge)
		orders, err := s.orderRepo.FindExpiryCandidates(ctx, cutoff, s.batchLimit)
		if err != nil {
			return nil, nil, err
		}
		return orders, nil, nil

	case domain.RefundBatchSpecificOrders:
		if len(req.OrderIDs) == 0 {
			return nil, nil, fmt.Errorf("specific_orders batch requires order ids: %w", domain.ErrInvalidInput)
		}
		var orders []domain.Order
		var failed []domain.RefundBatchItem
		for _, raw := range req.OrderIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				failed = append(failed, domain.RefundBatchItem{Error: fmt.Sprintf("invalid order id %q", raw)})
				continue
			}
			order, getErr := s.orderRepo.GetByID(ctx, id)
			if getErr != nil {
				failed = append(failed, domain.RefundBatchItem{OrderID: id, Error: getErr.Error()})
				continue
			}
			orders = append(orders, order)
		}
		return orders, failed, nil

	default:
		return nil, nil, fmt.Errorf("unknown batch type %q: %w", req.Type, domain.ErrInvalidInput)
	}
}

// GetRefund возвращает запись возврата по ID
func (s *RefundService) GetRefund(ctx context.Context, id uuid.UUID) (domain.RefundRecord, error) {
	rec, err := s.refundRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RefundRecord{}, domain.ErrNotFound
		}
		return domain.RefundRecord{}, err
	}
	return rec, nil
}

// ListOrderRefunds возвращает все возвраты по заказу
func (s *RefundService) ListOrderRefunds(ctx context.Context, orderID uuid.UUID) ([]domain.RefundRecord, error) {
	return s.refundRepo.GetByOrderID(ctx, orderID)
}
