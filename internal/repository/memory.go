package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/google/uuid"
)

// InMemoryOrderRepository реализация репозитория заказов в памяти
type InMemoryOrderRepository struct {
	orders map[uuid.UUID]domain.Order
	mutex  sync.RWMutex
}

// NewInMemoryOrderRepository создает новый репозиторий заказов в памяти
func NewInMemoryOrderRepository() *InMemoryOrderRepository {
	return &InMemoryOrderRepository{
		orders: make(map[uuid.UUID]domain.Order),
	}
}

// Create создает новый заказ
func (r *InMemoryOrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.Order{}, ErrDuplicate
	}

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = order

	return order, nil
}

// GetByID возвращает заказ по ID
func (r *InMemoryOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return domain.Order{}, ErrNotFound
	}

	return order, nil
}

// GetByPaymentReference возвращает заказ по идентификатору платежа в шлюзе
func (r *InMemoryOrderRepository) GetByPaymentReference(ctx context.Context, ref string) (domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, order := range r.orders {
		if order.PaymentIntentReference == ref {
			return order, nil
		}
	}

	return domain.Order{}, ErrNotFound
}

// ListByFan возвращает заказы фаната от новых к старым
func (r *InMemoryOrderRepository) ListByFan(ctx context.Context, fanID uuid.UUID) ([]domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if order.FanID == fanID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	return orders, nil
}

// UpdateStatus атомарно переводит заказ из статуса from в статус to
func (r *InMemoryOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return ErrNotFound
	}
	if order.Status != from {
		return ErrStaleStatus
	}

	order.Status = to
	switch to {
	case domain.OrderStatusAccepted:
		order.AcceptedAt = &at
	case domain.OrderStatusRecording:
		order.RecordingAt = &at
	case domain.OrderStatusCompleted:
		order.CompletedAt = &at
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded, domain.OrderStatusExpired:
		if order.CancelledAt == nil {
			order.CancelledAt = &at
		}
	}
	order.UpdatedAt = at
	r.orders[id] = order

	return nil
}

// SetPaymentReference привязывает платеж шлюза к заказу ровно один раз
func (r *InMemoryOrderRepository) SetPaymentReference(ctx context.Context, id uuid.UUID, ref string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return ErrNotFound
	}
	if order.PaymentIntentReference != "" {
		if order.PaymentIntentReference == ref {
			return nil
		}
		return domain.ErrPaymentRefAlreadySet
	}

	order.PaymentIntentReference = ref
	order.UpdatedAt = time.Now()
	r.orders[id] = order

	return nil
}

// FindExpiryCandidates возвращает оплаченные заказы, зависшие в pending/accepted
func (r *InMemoryOrderRepository) FindExpiryCandidates(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusAccepted {
			continue
		}
		if order.PaymentIntentReference == "" {
			continue
		}
		if !order.CreatedAt.Before(olderThan) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}

	return orders, nil
}

// FindRecoveryCandidates возвращает заказы без привязанного платежа,
// подходящие по сумме и окну создания
func (r *InMemoryOrderRepository) FindRecoveryCandidates(ctx context.Context, amount int64, from, to time.Time) ([]domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if order.PaymentIntentReference != "" {
			continue
		}
		if order.Amount != amount {
			continue
		}
		if order.CreatedAt.Before(from) || order.CreatedAt.After(to) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders, nil
}

// FindStaleUnpaid возвращает старые pending-заказы без привязанного платежа
func (r *InMemoryOrderRepository) FindStaleUnpaid(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		if order.PaymentIntentReference != "" {
			continue
		}
		if !order.CreatedAt.Before(olderThan) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}

	return orders, nil
}

// InMemorySubscriptionRepository реализация репозитория подписок в памяти
type InMemorySubscriptionRepository struct {
	subs  map[uuid.UUID]domain.SubscriptionOrder
	mutex sync.RWMutex
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[uuid.UUID]domain.SubscriptionOrder),
	}
}

// Create создает новую подписку
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, sub domain.SubscriptionOrder) (domain.SubscriptionOrder, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.subs {
		if existing.FanID == sub.FanID && existing.CreatorID == sub.CreatorID && isLiveStatus(existing.Status) {
			return domain.SubscriptionOrder{}, ErrDuplicate
		}
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.subs[sub.ID] = sub

	return sub, nil
}

// GetByID возвращает подписку по ID
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.SubscriptionOrder, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sub, exists := r.subs[id]
	if !exists {
		return domain.SubscriptionOrder{}, ErrNotFound
	}

	return sub, nil
}

// GetByExternalRef возвращает подписку по внешнему идентификатору шлюза
func (r *InMemorySubscriptionRepository) GetByExternalRef(ctx context.Context, ref string) (domain.SubscriptionOrder, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subs {
		if sub.ExternalSubscriptionRef == ref {
			return sub, nil
		}
	}

	return domain.SubscriptionOrder{}, ErrNotFound
}

// ListByFan возвращает подписки фаната, опционально по статусам
func (r *InMemorySubscriptionRepository) ListByFan(ctx context.Context, fanID uuid.UUID, statuses []domain.SubscriptionStatus) ([]domain.SubscriptionOrder, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var subs []domain.SubscriptionOrder
	for _, sub := range r.subs {
		if sub.FanID != fanID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, sub.Status) {
			continue
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})

	return subs, nil
}

// Update обновляет существующую подписку
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub domain.SubscriptionOrder) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, exists := r.subs[sub.ID]
	if !exists {
		return ErrNotFound
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now()
	r.subs[sub.ID] = sub

	return nil
}

// Delete удаляет cancelled/expired подписку
func (r *InMemorySubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub, exists := r.subs[id]
	if !exists {
		return ErrNotFound
	}
	if sub.Status != domain.SubscriptionStatusCancelled && sub.Status != domain.SubscriptionStatusExpired {
		return ErrNotFound
	}

	delete(r.subs, id)
	return nil
}

// HasLiveSubscription проверяет, есть ли у фаната живая подписка на криэйтора
func (r *InMemorySubscriptionRepository) HasLiveSubscription(ctx context.Context, fanID, creatorID uuid.UUID) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subs {
		if sub.FanID == fanID && sub.CreatorID == creatorID && isLiveStatus(sub.Status) {
			return true, nil
		}
	}

	return false, nil
}

func isLiveStatus(status domain.SubscriptionStatus) bool {
	switch status {
	case domain.SubscriptionStatusActive, domain.SubscriptionStatusTrialing, domain.SubscriptionStatusPaused:
		return true
	}
	return false
}

func containsStatus(statuses []domain.SubscriptionStatus, status domain.SubscriptionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// InMemoryRefundRepository реализация репозитория возвратов в памяти
type InMemoryRefundRepository struct {
	records map[uuid.UUID]domain.RefundRecord
	mutex   sync.RWMutex
}

// NewInMemoryRefundRepository создает новый репозиторий возвратов в памяти
func NewInMemoryRefundRepository() *InMemoryRefundRepository {
	return &InMemoryRefundRepository{
		records: make(map[uuid.UUID]domain.RefundRecord),
	}
}

// Create создает запись возврата с дедупликацией по внешнему идентификатору
func (r *InMemoryRefundRepository) Create(ctx context.Context, rec domain.RefundRecord) (domain.RefundRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec.ExternalRefundRef != "" {
		for _, existing := range r.records {
			if existing.ExternalRefundRef == rec.ExternalRefundRef {
				return domain.RefundRecord{}, ErrDuplicate
			}
		}
	}

	if rec.InitiatedAt.IsZero() {
		rec.InitiatedAt = time.Now()
	}
	r.records[rec.ID] = rec

	return rec, nil
}

// GetByID возвращает запись возврата по ID
func (r *InMemoryRefundRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RefundRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return domain.RefundRecord{}, ErrNotFound
	}

	return rec, nil
}

// GetByExternalRef возвращает запись возврата по идентификатору возврата в шлюзе
func (r *InMemoryRefundRepository) GetByExternalRef(ctx context.Context, ref string) (domain.RefundRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, rec := range r.records {
		if rec.ExternalRefundRef == ref {
			return rec, nil
		}
	}

	return domain.RefundRecord{}, ErrNotFound
}

// GetByOrderID возвращает все возвраты по заказу, от старых к новым
func (r *InMemoryRefundRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.RefundRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var records []domain.RefundRecord
	for _, rec := range r.records {
		if rec.OrderID == orderID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].InitiatedAt.Before(records[j].InitiatedAt)
	})

	return records, nil
}

// UpdateStatus переводит запись возврата в новый статус
func (r *InMemoryRefundRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, externalRef, failureReason string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, exists := r.records[id]
	if !exists {
		return ErrNotFound
	}

	now := time.Now()
	rec.Status = status
	if externalRef != "" {
		rec.ExternalRefundRef = externalRef
	}
	rec.FailureReason = failureReason
	switch status {
	case domain.RefundStatusProcessing:
		rec.ProcessedAt = &now
	case domain.RefundStatusSucceeded:
		rec.CompletedAt = &now
	case domain.RefundStatusFailed:
		rec.FailedAt = &now
	}
	r.records[id] = rec

	return nil
}

// SumRefundedByOrder возвращает сумму уже успешных возвратов по заказу
func (r *InMemoryRefundRepository) SumRefundedByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var total int64
	for _, rec := range r.records {
		if rec.OrderID == orderID && rec.Status == domain.RefundStatusSucceeded {
			total += rec.RefundAmount
		}
	}

	return total, nil
}

// InMemoryWebhookEventRepository журнал webhook-событий в памяти
type InMemoryWebhookEventRepository struct {
	events map[string]domain.WebhookEvent
	mutex  sync.RWMutex
}

// NewInMemoryWebhookEventRepository создает новый журнал webhook-событий в памяти
func NewInMemoryWebhookEventRepository() *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{
		events: make(map[string]domain.WebhookEvent),
	}
}

// GetByExternalID возвращает запись журнала по внешнему ID события
func (r *InMemoryWebhookEventRepository) GetByExternalID(ctx context.Context, externalEventID string) (domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	event, exists := r.events[externalEventID]
	if !exists {
		return domain.WebhookEvent{}, ErrNotFound
	}

	return event, nil
}

// Upsert фиксирует результат обработки события, перезаписывая прежний
func (r *InMemoryWebhookEventRepository) Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	if existing, exists := r.events[event.ExternalEventID]; exists {
		event.ID = existing.ID
	}
	r.events[event.ExternalEventID] = event

	return event, nil
}

// List возвращает журнал событий от новых к старым, опционально по типу
func (r *InMemoryWebhookEventRepository) List(ctx context.Context, eventType string, limit int) ([]domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var events []domain.WebhookEvent
	for _, event := range r.events {
		if eventType != "" && event.Type != eventType {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ProcessedAt.After(events[j].ProcessedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

// StaticCreatorDirectory справочник криэйторов на фиксированном наборе.
// В бою подменяется клиентом сервиса профилей.
type StaticCreatorDirectory struct {
	creators map[uuid.UUID]domain.Creator
	mutex    sync.RWMutex
}

// NewStaticCreatorDirectory создает справочник на переданном наборе криэйторов
func NewStaticCreatorDirectory(creators ...domain.Creator) *StaticCreatorDirectory {
	d := &StaticCreatorDirectory{
		creators: make(map[uuid.UUID]domain.Creator, len(creators)),
	}
	for _, c := range creators {
		d.creators[c.ID] = c
	}
	return d
}

// GetByID возвращает криэйтора по ID
func (d *StaticCreatorDirectory) GetByID(ctx context.Context, id uuid.UUID) (domain.Creator, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	creator, exists := d.creators[id]
	if !exists {
		return domain.Creator{}, domain.ErrCreatorNotFound
	}

	return creator, nil
}

// Put добавляет или заменяет криэйтора в справочнике
func (d *StaticCreatorDirectory) Put(creator domain.Creator) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.creators[creator.ID] = creator
}
