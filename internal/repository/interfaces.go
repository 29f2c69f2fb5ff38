package repository

import (
	"context"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/google/uuid"
)

// OrderRepository интерфейс для работы с заказами видео
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (domain.Order, error)
	ListByFan(ctx context.Context, fanID uuid.UUID) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error
	SetPaymentReference(ctx context.Context, id uuid.UUID, ref string) error
	FindExpiryCandidates(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
	FindRecoveryCandidates(ctx context.Context, amount int64, from, to time.Time) ([]domain.Order, error)
	FindStaleUnpaid(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
}

// SubscriptionRepository интерфейс для работы с подписками
type SubscriptionRepository interface {
	Create(ctx context.Context, sub domain.SubscriptionOrder) (domain.SubscriptionOrder, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.SubscriptionOrder, error)
	GetByExternalRef(ctx context.Context, ref string) (domain.SubscriptionOrder, error)
	ListByFan(ctx context.Context, fanID uuid.UUID, statuses []domain.SubscriptionStatus) ([]domain.SubscriptionOrder, error)
	Update(ctx context.Context, sub domain.SubscriptionOrder) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasLiveSubscription(ctx context.Context, fanID, creatorID uuid.UUID) (bool, error)
}

// RefundRepository интерфейс для работы с записями возвратов
type RefundRepository interface {
	Create(ctx context.Context, rec domain.RefundRecord) (domain.RefundRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.RefundRecord, error)
	GetByExternalRef(ctx context.Context, ref string) (domain.RefundRecord, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.RefundRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, externalRef, failureReason string) error
	SumRefundedByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

// WebhookEventRepository журнал обработанных webhook-событий
type WebhookEventRepository interface {
	GetByExternalID(ctx context.Context, externalEventID string) (domain.WebhookEvent, error)
	Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error)
	List(ctx context.Context, eventType string, limit int) ([]domain.WebhookEvent, error)
}

// CreatorDirectory справочник криэйторов и их платежных аккаунтов
type CreatorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Creator, error)
}
