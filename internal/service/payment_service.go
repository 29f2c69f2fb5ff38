package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/idempotency"
	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// PaymentIntentOutput результат создания платежа для заказа
type PaymentIntentOutput struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// PaymentService создает платежи шлюза для заказов
type PaymentService struct {
	orderRepo  repository.OrderRepository
	creatorDir repository.CreatorDirectory
	gateway    stripe.PaymentGateway
	guard      idempotency.Guard
	log        *logger.Logger
}

// NewPaymentService создает платежный сервис
func NewPaymentService(
	orderRepo repository.OrderRepository,
	creatorDir repository.CreatorDirectory,
	gateway stripe.PaymentGateway,
	guard idempotency.Guard,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		orderRepo:  orderRepo,
		creatorDir: creatorDir,
		gateway:    gateway,
		guard:      guard,
		log:        log,
	}
}

// CreatePaymentIntent создает платеж для заказа. Ключ идемпотентности
// выводится из заказа детерминированно: повторный запрос с тем же заказом
// не создает второй платеж ни у нас, ни в шлюзе.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, orderID uuid.UUID) (PaymentIntentOutput, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return PaymentIntentOutput{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return PaymentIntentOutput{}, err
	}

	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusAccepted {
		return PaymentIntentOutput{}, fmt.Errorf("order %s in status %s cannot be paid: %w", orderID, order.Status, domain.ErrInvalidTransition)
	}

	if order.PaymentIntentReference != "" {
		// Платеж уже существует, отдаем его вместо создания нового
		pi, getErr := s.gateway.GetPaymentIntent(ctx, order.PaymentIntentReference)
		if getErr != nil {
			return PaymentIntentOutput{}, getErr
		}
		return PaymentIntentOutput{
			PaymentIntentID: pi.ID,
			ClientSecret:    pi.ClientSecret,
			Amount:          pi.Amount,
			Currency:        pi.Currency,
		}, nil
	}

	creator, err := s.creatorDir.GetByID(ctx, order.CreatorID)
	if err != nil {
		return PaymentIntentOutput{}, err
	}
	if !creator.PaymentsEnabled || creator.GatewayAccountID == "" {
		return PaymentIntentOutput{}, fmt.Errorf("creator %s: %w", order.CreatorID, domain.ErrCreatorNotPayable)
	}

	key := idempotency.DeriveKey(order.VideoRequestID, order.CreatedAt)
	reserved, err := s.guard.Reserve(ctx, key)
	if err != nil {
		return PaymentIntentOutput{}, err
	}
	if !reserved {
		return PaymentIntentOutput{}, fmt.Errorf("payment for order %s is already being created: %w", orderID, domain.ErrIdempotencyConflict)
	}

	pi, err := s.callGatewayCreate(ctx, order, creator, key)
	if err != nil {
		// Снимаем резерв: без него повтор после сбоя был бы невозможен
		// до истечения TTL ключа
		if rErr := s.guard.Release(ctx, key); rErr != nil {
			s.log.Warn("Failed to release idempotency key %s: %v", key, rErr)
		}
		return PaymentIntentOutput{}, err
	}

	if err := s.orderRepo.SetPaymentReference(ctx, orderID, pi.ID); err != nil {
		if errors.Is(err, domain.ErrPaymentRefAlreadySet) {
			// Гонка с вебхуком или вторым запросом: платеж уже привязан
			s.log.Warn("Order %s already has a payment reference, created intent %s is redundant", orderID, pi.ID)
			return PaymentIntentOutput{}, domain.ErrPaymentRefAlreadySet
		}
		s.log.Error("Payment intent %s created but order %s update failed: %v", pi.ID, orderID, err)
		return PaymentIntentOutput{}, fmt.Errorf("order %s: %w", orderID, domain.ErrPersistence)
	}

	s.log.Info("Payment intent %s created for order %s", pi.ID, orderID)
	return PaymentIntentOutput{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
	}, nil
}

// callGatewayCreate вызывает шлюз с повторами. Ключ идемпотентности шлюза
// делает повторы безопасными: дубликат платежа не возникнет.
func (s *PaymentService) callGatewayCreate(ctx context.Context, order domain.Order, creator domain.Creator, key string) (*stripe.PaymentIntent, error) {
	var pi *stripe.PaymentIntent
	operation := func() error {
		res, err := s.gateway.CreateDestinationCharge(ctx, order, creator, key)
		if err != nil {
			var gwErr *domain.GatewayError
			if errors.As(err, &gwErr) && !gwErr.Retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		pi = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = gatewayRetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return pi, nil
}

// GetPaymentStatus возвращает текущий статус платежа заказа в шлюзе
func (s *PaymentService) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*stripe.PaymentIntent, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return nil, err
	}
	if order.PaymentIntentReference == "" {
		return nil, fmt.Errorf("order %s has no payment: %w", orderID, domain.ErrNotFound)
	}
	return s.gateway.GetPaymentIntent(ctx, order.PaymentIntentReference)
}
