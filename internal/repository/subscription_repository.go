package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `
	id, fan_id, creator_id, tier_id, total_amount, platform_fee,
	creator_earnings, currency, billing_period, status,
	external_subscription_reference, cancel_at_period_end,
	current_period_start, current_period_end, next_billing_date,
	cancelled_at, paused_at, created_at, updated_at
`

// PostgresSubscriptionRepository репозиторий подписок в PostgreSQL
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool, log: log}
}

// Create создает новую подписку. Частичный уникальный индекс по
// (fan_id, creator_id) для живых статусов превращает вторую одновременную
// подписку на одного криэйтора в ErrDuplicate.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub domain.SubscriptionOrder) (domain.SubscriptionOrder, error) {
	query := `
		INSERT INTO subscription_orders (
			id, fan_id, creator_id, tier_id, total_amount, platform_fee,
			creator_earnings, currency, billing_period, status,
			external_subscription_reference, cancel_at_period_end,
			current_period_start, current_period_end, next_billing_date,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := connFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		sub.ID,
		sub.FanID,
		sub.CreatorID,
		sub.TierID,
		sub.TotalAmount,
		sub.PlatformFee,
		sub.CreatorEarnings,
		sub.Currency,
		sub.BillingPeriod,
		sub.Status,
		nullable(sub.ExternalSubscriptionRef),
		sub.CancelAtPeriodEnd,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		now,
		now,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.SubscriptionOrder{}, ErrDuplicate
		}
		return domain.SubscriptionOrder{}, fmt.Errorf("failed to create subscription order: %w", err)
	}

	return sub, nil
}

// GetByID возвращает подписку по ID
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.SubscriptionOrder, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_orders WHERE id = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, id)
	return scanSubscription(row)
}

// GetByExternalRef возвращает подписку по внешнему идентификатору шлюза
func (r *PostgresSubscriptionRepository) GetByExternalRef(ctx context.Context, ref string) (domain.SubscriptionOrder, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_orders WHERE external_subscription_reference = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, ref)
	return scanSubscription(row)
}

// ListByFan возвращает подписки фаната, опционально по статусам
func (r *PostgresSubscriptionRepository) ListByFan(ctx context.Context, fanID uuid.UUID, statuses []domain.SubscriptionStatus) ([]domain.SubscriptionOrder, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_orders WHERE fan_id = $1`
	args := []any{fanID}

	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		statusStrings := make([]string, len(statuses))
		for i, s := range statuses {
			statusStrings[i] = string(s)
		}
		args = append(args, statusStrings)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription orders: %w", err)
	}
	defer rows.Close()

	var subs []domain.SubscriptionOrder
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription orders: %w", err)
	}
	return subs, nil
}

// Update обновляет существующую подписку
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub domain.SubscriptionOrder) error {
	query := `
		UPDATE subscription_orders
		SET
			status = $2,
			external_subscription_reference = $3,
			cancel_at_period_end = $4,
			current_period_start = $5,
			current_period_end = $6,
			next_billing_date = $7,
			cancelled_at = $8,
			paused_at = $9,
			updated_at = $10
		WHERE id = $1
	`

	affected, err := connFrom(ctx, r.pool).Exec(
		ctx,
		query,
		sub.ID,
		sub.Status,
		nullable(sub.ExternalSubscriptionRef),
		sub.CancelAtPeriodEnd,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.NextBillingDate,
		sub.CancelledAt,
		sub.PausedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription order: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет подписку. Вызывается только для cancelled/expired подписок,
// которые фанат явно вычищает.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM subscription_orders WHERE id = $1 AND status IN ('cancelled', 'expired')`

	affected, err := connFrom(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription order: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasLiveSubscription проверяет, есть ли у фаната живая подписка на криэйтора
func (r *PostgresSubscriptionRepository) HasLiveSubscription(ctx context.Context, fanID, creatorID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM subscription_orders
			WHERE fan_id = $1 AND creator_id = $2
			  AND status IN ('active', 'trialing', 'paused')
		)
	`

	var exists bool
	err := connFrom(ctx, r.pool).QueryRow(ctx, query, fanID, creatorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check live subscription: %w", err)
	}
	return exists, nil
}

// scanSubscription читает одну строку подписки
func scanSubscription(row pgx.Row) (domain.SubscriptionOrder, error) {
	var sub domain.SubscriptionOrder
	var externalRef *string

	err := row.Scan(
		&sub.ID,
		&sub.FanID,
		&sub.CreatorID,
		&sub.TierID,
		&sub.TotalAmount,
		&sub.PlatformFee,
		&sub.CreatorEarnings,
		&sub.Currency,
		&sub.BillingPeriod,
		&sub.Status,
		&externalRef,
		&sub.CancelAtPeriodEnd,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.NextBillingDate,
		&sub.CancelledAt,
		&sub.PausedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SubscriptionOrder{}, ErrNotFound
		}
		return domain.SubscriptionOrder{}, fmt.Errorf("failed to scan subscription order: %w", err)
	}

	if externalRef != nil {
		sub.ExternalSubscriptionRef = *externalRef
	}
	return sub, nil
}
