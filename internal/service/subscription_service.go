package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/fsm"
	"github.com/clipfan/reconciliation-service/internal/kafka/producer"
	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/money"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// SubscriptionRequest запрос на оформление подписки на криэйтора
type SubscriptionRequest struct {
	CreatorID     string               `json:"creator_id" binding:"required,uuid4"`
	TierID        string               `json:"tier_id" binding:"required"`
	Amount        int64                `json:"amount" binding:"required,gt=0"`
	Currency      string               `json:"currency" binding:"required,len=3"`
	BillingPeriod domain.BillingPeriod `json:"billing_period" binding:"required,oneof=monthly yearly"`
}

// SubscriptionService управляет подписками фанатов на криэйторов
type SubscriptionService struct {
	subRepo    repository.SubscriptionRepository
	creatorDir repository.CreatorDirectory
	gateway    stripe.SubscriptionGateway
	producer   producer.NotificationProducer
	log        *logger.Logger
}

// NewSubscriptionService создает сервис подписок
func NewSubscriptionService(
	subRepo repository.SubscriptionRepository,
	creatorDir repository.CreatorDirectory,
	gateway stripe.SubscriptionGateway,
	notifier producer.NotificationProducer,
	log *logger.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:    subRepo,
		creatorDir: creatorDir,
		gateway:    gateway,
		producer:   notifier,
		log:        log,
	}
}

// CreateSubscription оформляет подписку в статусе pending. Внешняя подписка
// шлюза привязывается позже событием checkout.session.completed.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, fanID uuid.UUID, req SubscriptionRequest) (domain.SubscriptionOrder, error) {
	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		return domain.SubscriptionOrder{}, fmt.Errorf("invalid creator id: %w", domain.ErrInvalidInput)
	}

	creator, err := s.creatorDir.GetByID(ctx, creatorID)
	if err != nil {
		return domain.SubscriptionOrder{}, err
	}
	if !creator.PaymentsEnabled {
		return domain.SubscriptionOrder{}, fmt.Errorf("creator %s: %w", creatorID, domain.ErrCreatorNotPayable)
	}

	live, err := s.subRepo.HasLiveSubscription(ctx, fanID, creatorID)
	if err != nil {
		return domain.SubscriptionOrder{}, err
	}
	if live {
		return domain.SubscriptionOrder{}, fmt.Errorf("fan %s already subscribes to creator %s: %w", fanID, creatorID, domain.ErrDuplicate)
	}

	creatorShare, platformFee := money.Split(req.Amount)

	now := time.Now()
	periodEnd := now.AddDate(0, 1, 0)
	if req.BillingPeriod == domain.BillingPeriodYearly {
		periodEnd = now.AddDate(1, 0, 0)
	}

	sub := domain.SubscriptionOrder{
		ID:                 uuid.New(),
		FanID:              fanID,
		CreatorID:          creatorID,
		TierID:             req.TierID,
		TotalAmount:        req.Amount,
		PlatformFee:        platformFee,
		CreatorEarnings:    creatorShare,
		Currency:           req.Currency,
		BillingPeriod:      req.BillingPeriod,
		Status:             domain.SubscriptionStatusPending,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
	}

	sub, err = s.subRepo.Create(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.SubscriptionOrder{}, fmt.Errorf("fan %s already subscribes to creator %s: %w", fanID, creatorID, domain.ErrDuplicate)
		}
		return domain.SubscriptionOrder{}, err
	}

	s.log.Info("Created subscription %s: fan %s -> creator %s, tier %s, %d %s/%s",
		sub.ID, fanID, creatorID, sub.TierID, sub.TotalAmount, sub.Currency, sub.BillingPeriod)
	return sub, nil
}

// GetSubscription возвращает подписку по ID
func (s *SubscriptionService) GetSubscription(ctx context.Context, id uuid.UUID) (domain.SubscriptionOrder, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SubscriptionOrder{}, domain.ErrNotFound
		}
		return domain.SubscriptionOrder{}, err
	}
	return sub, nil
}

// ListFanSubscriptions возвращает подписки фаната, опционально по статусам
func (s *SubscriptionService) ListFanSubscriptions(ctx context.Context, fanID uuid.UUID, statuses []domain.SubscriptionStatus) ([]domain.SubscriptionOrder, error) {
	return s.subRepo.ListByFan(ctx, fanID, statuses)
}

// ApplyAction применяет действие пользователя к подписке: сначала в шлюзе,
// затем локально. Порядок важен — отказ шлюза не оставляет рассинхрона.
func (s *SubscriptionService) ApplyAction(ctx context.Context, fanID uuid.UUID, req domain.SubscriptionActionRequest) (domain.SubscriptionOrder, error) {
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		return domain.SubscriptionOrder{}, fmt.Errorf("invalid subscription id: %w", domain.ErrInvalidInput)
	}

	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return domain.SubscriptionOrder{}, err
	}
	if sub.FanID != fanID {
		return domain.SubscriptionOrder{}, domain.ErrUnauthorized
	}

	if !fsm.ActionAllowed(req.Action, sub.Status) {
		return domain.SubscriptionOrder{}, fmt.Errorf("action %s is not allowed in status %s: %w", req.Action, sub.Status, domain.ErrInvalidTransition)
	}

	now := time.Now()
	switch req.Action {
	case domain.SubscriptionActionPause:
		if err := s.gatewayCall(ctx, sub, s.gateway.PauseSubscription); err != nil {
			return domain.SubscriptionOrder{}, err
		}
		sub.Status = domain.SubscriptionStatusPaused
		sub.PausedAt = &now

	case domain.SubscriptionActionResume:
		if err := s.gatewayCall(ctx, sub, s.gateway.ResumeSubscription); err != nil {
			return domain.SubscriptionOrder{}, err
		}
		sub.Status = domain.SubscriptionStatusActive
		sub.PausedAt = nil

	case domain.SubscriptionActionCancel:
		if err := s.gatewayCall(ctx, sub, s.gateway.CancelAtPeriodEnd); err != nil {
			return domain.SubscriptionOrder{}, err
		}
		sub.Status = domain.SubscriptionStatusCancelled
		sub.CancelAtPeriodEnd = true
		sub.CancelledAt = &now
		sub.NextBillingDate = nil

	case domain.SubscriptionActionReactivate:
		// Реактивация возможна только пока оплаченный период не истек
		if !sub.CurrentPeriodEnd.After(now) {
			return domain.SubscriptionOrder{}, domain.NewPolicyError("paid period has ended, subscribe again instead")
		}
		if err := s.gatewayCall(ctx, sub, s.gateway.ReactivateSubscription); err != nil {
			return domain.SubscriptionOrder{}, err
		}
		sub.Status = domain.SubscriptionStatusActive
		sub.CancelAtPeriodEnd = false
		sub.CancelledAt = nil

	default:
		return domain.SubscriptionOrder{}, fmt.Errorf("unknown action %q: %w", req.Action, domain.ErrInvalidInput)
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		s.log.Error("Gateway applied %s to subscription %s but local update failed: %v", req.Action, sub.ID, err)
		return domain.SubscriptionOrder{}, fmt.Errorf("subscription %s: %w", sub.ID, domain.ErrPersistence)
	}

	if req.Action == domain.SubscriptionActionCancel && s.producer != nil {
		if pErr := s.producer.PublishSubscriptionCancelled(ctx, sub); pErr != nil {
			s.log.Warn("Failed to publish subscription cancellation event: %v", pErr)
		}
	}

	s.log.Info("Subscription %s: applied %s, status %s", sub.ID, req.Action, sub.Status)
	return sub, nil
}

// gatewayCall выполняет операцию шлюза, если подписка уже привязана к нему
func (s *SubscriptionService) gatewayCall(ctx context.Context, sub domain.SubscriptionOrder, op func(context.Context, string) (*stripe.GatewaySubscription, error)) error {
	if sub.ExternalSubscriptionRef == "" {
		// Подписка еще не прошла оформление в шлюзе, меняем только локально
		return nil
	}
	_, err := op(ctx, sub.ExternalSubscriptionRef)
	return err
}

// DeleteSubscription удаляет завершенную подписку из списка фаната
func (s *SubscriptionService) DeleteSubscription(ctx context.Context, fanID, id uuid.UUID) error {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.FanID != fanID {
		return domain.ErrUnauthorized
	}
	if sub.Status != domain.SubscriptionStatusCancelled && sub.Status != domain.SubscriptionStatusExpired {
		return fmt.Errorf("only cancelled or expired subscriptions can be deleted: %w", domain.ErrPolicyViolation)
	}

	if err := s.subRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	s.log.Info("Deleted subscription %s for fan %s", id, fanID)
	return nil
}
