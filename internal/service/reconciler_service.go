package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/fsm"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/metrics"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// eventHandler применяет одно проверенное событие шлюза к внутреннему состоянию
type eventHandler func(ctx context.Context, event domain.InboundEvent) error

// ReconcilerService приводит внутреннее состояние в соответствие с событиями
// платежного шлюза. Шлюз — источник истины для платежных фактов, локальная
// БД — для бизнес-статусов.
type ReconcilerService struct {
	tx          repository.TxManager
	webhookRepo repository.WebhookEventRepository
	orderRepo   repository.OrderRepository
	subRepo     repository.SubscriptionRepository
	producer    producer.NotificationProducer
	metrics     metrics.ReconciliationMetrics
	log         *logger.Logger
	handlers    map[string]eventHandler
}

// NewReconcilerService создает сервис сверки webhook-событий
func NewReconcilerService(
	tx repository.TxManager,
	webhookRepo repository.WebhookEventRepository,
	orderRepo repository.OrderRepository,
	subRepo repository.SubscriptionRepository,
	notifier producer.NotificationProducer,
	m metrics.ReconciliationMetrics,
	log *logger.Logger,
) *ReconcilerService {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	s := &ReconcilerService{
		tx:          tx,
		webhookRepo: webhookRepo,
		orderRepo:   orderRepo,
		subRepo:     subRepo,
		producer:    notifier,
		metrics:     m,
		log:         log,
	}
	s.handlers = map[string]eventHandler{
		"payment_intent.succeeded":             s.handlePaymentSucceeded,
		"payment_intent.payment_failed":        s.handlePaymentFailed,
		"checkout.session.completed":           s.handleCheckoutCompleted,
		"customer.subscription.created":        s.handleSubscriptionUpdated,
		"customer.subscription.updated":        s.handleSubscriptionUpdated,
		"customer.subscription.deleted":        s.handleSubscriptionDeleted,
		"invoice.payment_succeeded":            s.handleInvoicePaymentSucceeded,
		"invoice.payment_failed":               s.handleInvoicePaymentFailed,
		"customer.subscription.trial_will_end": s.handleTrialWillEnd,
	}
	return s
}

// HandleEvent обрабатывает одно проверенное событие. Повторная доставка
// обработанного события — нормальный случай, она не производит побочных
// эффектов. Событие и изменения сущностей фиксируются в одной транзакции.
func (s *ReconcilerService) HandleEvent(ctx context.Context, event domain.InboundEvent) (domain.ReconcileOutcome, error) {
	handler, known := s.handlers[event.Type]
	if !known {
		// Неизвестные типы подтверждаются и фиксируются, иначе шлюз
		// будет доставлять их бесконечно
		s.log.Info("Skipping unhandled webhook event type %s (%s)", event.Type, event.ExternalID)
		if _, rErr := s.webhookRepo.Upsert(ctx, s.eventRecord(event, domain.WebhookEventStatusSkipped, "unhandled event type")); rErr != nil {
			return domain.ReconcileFailed, rErr
		}
		s.metrics.IncWebhookEvent(event.Type, string(domain.ReconcileSkipped))
		return domain.ReconcileSkipped, nil
	}

	// Проверка дедупликации и финальная запись идут в одной транзакции:
	// две конкурентные доставки одного события не выполнят обработчик дважды
	outcome := domain.ReconcileOK
	txErr := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.webhookRepo.GetByExternalID(txCtx, event.ExternalID)
		if err == nil && existing.Status != domain.WebhookEventStatusFailed {
			s.log.Debug("Duplicate webhook event %s, already %s", event.ExternalID, existing.Status)
			outcome = domain.ReconcileDuplicate
			return nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if hErr := handler(txCtx, event); hErr != nil {
			var conflict *domain.ConflictError
			if errors.As(hErr, &conflict) {
				// Конфликт сверки: логируем и пропускаем, локальное
				// состояние не перетирается
				s.log.Warn("Reconciliation conflict on event %s: %v", event.ExternalID, hErr)
				_, rErr := s.webhookRepo.Upsert(txCtx, s.eventRecord(event, domain.WebhookEventStatusSkipped, hErr.Error()))
				outcome = domain.ReconcileSkipped
				return rErr
			}
			return hErr
		}
		_, rErr := s.webhookRepo.Upsert(txCtx, s.eventRecord(event, domain.WebhookEventStatusProcessed, ""))
		return rErr
	})

	if txErr != nil {
		// Изменения откатились, фиксируем неудачу вне транзакции:
		// запись со статусом failed не блокирует повторную доставку
		s.log.Error("Failed to process webhook event %s (%s): %v", event.ExternalID, event.Type, txErr)
		if _, rErr := s.webhookRepo.Upsert(ctx, s.eventRecord(event, domain.WebhookEventStatusFailed, txErr.Error())); rErr != nil {
			s.log.Error("Failed to record webhook failure for %s: %v", event.ExternalID, rErr)
		}
		s.metrics.IncWebhookEvent(event.Type, string(domain.ReconcileFailed))
		return domain.ReconcileFailed, txErr
	}

	s.metrics.IncWebhookEvent(event.Type, string(outcome))
	return outcome, nil
}

// ListEvents возвращает журнал обработанных событий
func (s *ReconcilerService) ListEvents(ctx context.Context, eventType string, limit int) ([]domain.WebhookEvent, error) {
	return s.webhookRepo.List(ctx, eventType, limit)
}

func (s *ReconcilerService) eventRecord(event domain.InboundEvent, status domain.WebhookEventStatus, errMsg string) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:              uuid.New(),
		ExternalEventID: event.ExternalID,
		Type:            event.Type,
		Status:          status,
		Payload:         event.Payload,
		ErrorMessage:    errMsg,
		ProcessedAt:     time.Now(),
	}
}

// Формы полезной нагрузки событий шлюза. Разбираются только нужные поля.

type paymentIntentPayload struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
}

type checkoutSessionPayload struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	PeriodEnd    int64  `json:"period_end"`
}

// handlePaymentSucceeded привязывает успешный платеж к заказу. Связь
// записывается ровно один раз, конфликтующая повторная привязка — конфликт.
func (s *ReconcilerService) handlePaymentSucceeded(ctx context.Context, event domain.InboundEvent) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(event.Data, &pi); err != nil {
		return fmt.Errorf("failed to parse payment intent payload: %w", err)
	}

	orderIDRaw, ok := pi.Metadata["order_id"]
	if !ok || orderIDRaw == "" {
		// Платеж без привязки к заказу подберет сканер осиротевших платежей
		return domain.NewConflictError("payment_intent", pi.ID, "no order_id in metadata")
	}
	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		return domain.NewConflictError("payment_intent", pi.ID, fmt.Sprintf("invalid order_id %q in metadata", orderIDRaw))
	}

	if err := s.orderRepo.SetPaymentReference(ctx, orderID, pi.ID); err != nil {
		if errors.Is(err, domain.ErrPaymentRefAlreadySet) {
			return domain.NewConflictError("order", orderID.String(), "order is already linked to a different payment")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewConflictError("order", orderID.String(), "order referenced by payment does not exist")
		}
		return err
	}

	s.log.Info("Linked payment %s to order %s", pi.ID, orderID)
	return nil
}

// handlePaymentFailed фиксирует неуспешный платеж. Заказ остается в pending,
// фанат может попробовать оплатить снова.
func (s *ReconcilerService) handlePaymentFailed(ctx context.Context, event domain.InboundEvent) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(event.Data, &pi); err != nil {
		return fmt.Errorf("failed to parse payment intent payload: %w", err)
	}

	s.log.Warn("Payment %s failed (order_id=%s)", pi.ID, pi.Metadata["order_id"])
	return nil
}

// handleCheckoutCompleted привязывает подписку шлюза к локальной подписке
// по метаданным сессии оформления
func (s *ReconcilerService) handleCheckoutCompleted(ctx context.Context, event domain.InboundEvent) error {
	var session checkoutSessionPayload
	if err := json.Unmarshal(event.Data, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session payload: %w", err)
	}

	if session.Mode != "subscription" || session.Subscription == "" {
		// Разовые платежи подтверждаются событием payment_intent.succeeded
		return nil
	}

	subIDRaw, ok := session.Metadata["subscription_order_id"]
	if !ok || subIDRaw == "" {
		return domain.NewConflictError("checkout_session", session.ID, "no subscription_order_id in metadata")
	}
	subID, err := uuid.Parse(subIDRaw)
	if err != nil {
		return domain.NewConflictError("checkout_session", session.ID, fmt.Sprintf("invalid subscription_order_id %q", subIDRaw))
	}

	sub, err := s.subRepo.GetByID(ctx, subID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewConflictError("subscription_order", subID.String(), "subscription referenced by checkout does not exist")
		}
		return err
	}

	if sub.ExternalSubscriptionRef != "" && sub.ExternalSubscriptionRef != session.Subscription {
		return domain.NewConflictError("subscription_order", subID.String(), "subscription is already linked to a different gateway subscription")
	}

	sub.ExternalSubscriptionRef = session.Subscription
	if fsm.CanTransitionSubscription(sub.Status, domain.SubscriptionStatusActive) {
		sub.Status = domain.SubscriptionStatusActive
	}
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Info("Linked gateway subscription %s to subscription order %s", session.Subscription, subID)
	return nil
}

// handleSubscriptionUpdated синхронизирует локальную подписку с состоянием
// шлюза: статус, границы периода, флаг отложенной отмены
func (s *ReconcilerService) handleSubscriptionUpdated(ctx context.Context, event domain.InboundEvent) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	sub, err := s.findSubscription(ctx, payload)
	if err != nil {
		return err
	}

	status, ok := fsm.SubscriptionStatusFromGateway(payload.Status)
	if !ok {
		return domain.NewConflictError("subscription_order", sub.ID.String(), fmt.Sprintf("unknown gateway status %q", payload.Status))
	}
	if !fsm.CanTransitionSubscription(sub.Status, status) {
		return domain.NewConflictError("subscription_order", sub.ID.String(), fmt.Sprintf("transition %s -> %s is not allowed", sub.Status, status))
	}

	now := time.Now()
	if sub.ExternalSubscriptionRef == "" {
		sub.ExternalSubscriptionRef = payload.ID
	}
	if sub.Status != domain.SubscriptionStatusPaused && status == domain.SubscriptionStatusPaused {
		sub.PausedAt = &now
	}
	if status != domain.SubscriptionStatusPaused {
		sub.PausedAt = nil
	}
	sub.Status = status
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	if payload.CurrentPeriodStart > 0 {
		sub.CurrentPeriodStart = time.Unix(payload.CurrentPeriodStart, 0)
	}
	if payload.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(payload.CurrentPeriodEnd, 0)
		if status == domain.SubscriptionStatusActive && !payload.CancelAtPeriodEnd {
			next := sub.CurrentPeriodEnd
			sub.NextBillingDate = &next
		} else {
			sub.NextBillingDate = nil
		}
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Info("Subscription %s synced from gateway: status %s", sub.ID, sub.Status)
	return nil
}

// handleSubscriptionDeleted переводит подписку в cancelled: оплаченный период
// закончился или подписка отменена немедленно на стороне шлюза
func (s *ReconcilerService) handleSubscriptionDeleted(ctx context.Context, event domain.InboundEvent) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	sub, err := s.findSubscription(ctx, payload)
	if err != nil {
		return err
	}

	if sub.Status == domain.SubscriptionStatusCancelled {
		return nil
	}
	if !fsm.CanTransitionSubscription(sub.Status, domain.SubscriptionStatusCancelled) {
		return domain.NewConflictError("subscription_order", sub.ID.String(), fmt.Sprintf("transition %s -> cancelled is not allowed", sub.Status))
	}

	now := time.Now()
	sub.Status = domain.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.NextBillingDate = nil
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}

	if s.producer != nil {
		if pErr := s.producer.PublishSubscriptionCancelled(ctx, sub); pErr != nil {
			s.log.Warn("Failed to publish subscription cancellation event: %v", pErr)
		}
	}

	s.log.Info("Subscription %s cancelled by gateway", sub.ID)
	return nil
}

// handleInvoicePaymentSucceeded подтверждает оплату очередного периода
func (s *ReconcilerService) handleInvoicePaymentSucceeded(ctx context.Context, event domain.InboundEvent) error {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice payload: %w", err)
	}
	if invoice.Subscription == "" {
		return nil
	}

	sub, err := s.subRepo.GetByExternalRef(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewConflictError("subscription_order", invoice.Subscription, "invoice references unknown subscription")
		}
		return err
	}

	if sub.Status == domain.SubscriptionStatusPending || sub.Status == domain.SubscriptionStatusTrialing {
		if fsm.CanTransitionSubscription(sub.Status, domain.SubscriptionStatusActive) {
			sub.Status = domain.SubscriptionStatusActive
		}
	}
	if invoice.PeriodEnd > 0 {
		end := time.Unix(invoice.PeriodEnd, 0)
		sub.CurrentPeriodEnd = end
		if !sub.CancelAtPeriodEnd {
			sub.NextBillingDate = &end
		}
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Info("Invoice paid for subscription %s, period end %s", sub.ID, sub.CurrentPeriodEnd.Format(time.RFC3339))
	return nil
}

// handleInvoicePaymentFailed переводит подписку в pending до успешной оплаты
func (s *ReconcilerService) handleInvoicePaymentFailed(ctx context.Context, event domain.InboundEvent) error {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice payload: %w", err)
	}
	if invoice.Subscription == "" {
		return nil
	}

	sub, err := s.subRepo.GetByExternalRef(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewConflictError("subscription_order", invoice.Subscription, "invoice references unknown subscription")
		}
		return err
	}

	if !fsm.CanTransitionSubscription(sub.Status, domain.SubscriptionStatusPending) {
		return domain.NewConflictError("subscription_order", sub.ID.String(), fmt.Sprintf("transition %s -> pending is not allowed", sub.Status))
	}

	sub.Status = domain.SubscriptionStatusPending
	sub.NextBillingDate = nil
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Warn("Invoice payment failed for subscription %s, marked pending", sub.ID)
	return nil
}

// handleTrialWillEnd только фиксирует событие: уведомления фанатов живут
// в отдельном сервисе и слушают Kafka
func (s *ReconcilerService) handleTrialWillEnd(ctx context.Context, event domain.InboundEvent) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	s.log.Info("Trial ending soon for gateway subscription %s", payload.ID)
	return nil
}

// findSubscription находит локальную подписку по внешнему идентификатору,
// при его отсутствии — по метаданным события
func (s *ReconcilerService) findSubscription(ctx context.Context, payload subscriptionPayload) (domain.SubscriptionOrder, error) {
	sub, err := s.subRepo.GetByExternalRef(ctx, payload.ID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.SubscriptionOrder{}, err
	}

	if raw, ok := payload.Metadata["subscription_order_id"]; ok && raw != "" {
		id, parseErr := uuid.Parse(raw)
		if parseErr == nil {
			sub, err = s.subRepo.GetByID(ctx, id)
			if err == nil {
				return sub, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return domain.SubscriptionOrder{}, err
			}
		}
	}

	return domain.SubscriptionOrder{}, domain.NewConflictError("subscription_order", payload.ID, "gateway subscription has no local counterpart")
}
