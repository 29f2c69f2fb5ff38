package repository

import (
	"context"
	"encoding/json"
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

const orderColumns = `
	id, fan_id, fan_email, creator_id, amount, platform_fee, creator_earnings,
	currency, status, payment_intent_reference, video_request_id, metadata,
	created_at, accepted_at, recording_at, completed_at, cancelled_at, updated_at
`

// PostgresOrderRepository репозиторий заказов в PostgreSQL
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresOrderRepository создает новый репозиторий заказов
func NewPostgresOrderRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool, log: log}
}

// Create создает новый заказ в базе данных
func (r *PostgresOrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	query := `
		INSERT INTO orders (
			id, fan_id, fan_email, creator_id, amount, platform_fee,
			creator_earnings, currency, status, payment_intent_reference,
			video_request_id, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		RETURNING created_at, updated_at
	`

	metadataBytes, err := json.Marshal(order.Metadata)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to marshal order metadata: %w", err)
	}

	now := time.Now()
	err = connFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		order.ID,
		order.FanID,
		order.FanEmail,
		order.CreatorID,
		order.Amount,
		order.PlatformFee,
		order.CreatorEarnings,
		order.Currency,
		order.Status,
		nullable(order.PaymentIntentReference),
		nullable(order.VideoRequestID),
		metadataBytes,
		now,
		now,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Order{}, ErrDuplicate
		}
		return domain.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

// GetByID возвращает заказ по ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, id)
	return scanOrder(row)
}

// GetByPaymentReference возвращает заказ по внешнему идентификатору платежа
func (r *PostgresOrderRepository) GetByPaymentReference(ctx context.Context, ref string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_reference = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, ref)
	return scanOrder(row)
}

// ListByFan возвращает заказы фаната, новые в начале
func (r *PostgresOrderRepository) ListByFan(ctx context.Context, fanID uuid.UUID) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE fan_id = $1 ORDER BY created_at DESC`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, fanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// UpdateStatus переводит заказ из статуса from в статус to, записывая
// таймстемп перехода. Сравнение со старым статусом в WHERE закрывает гонку
// двух конкурентных писателей: проигравший получает ErrStaleStatus.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	tsColumn := ""
	switch to {
	case domain.OrderStatusAccepted:
		tsColumn = ", accepted_at = $4"
	case domain.OrderStatusRecording:
		tsColumn = ", recording_at = $4"
	case domain.OrderStatusCompleted:
		tsColumn = ", completed_at = $4"
	case domain.OrderStatusCancelled, domain.OrderStatusExpired:
		tsColumn = ", cancelled_at = $4"
	}

	query := `UPDATE orders SET status = $3, updated_at = $4` + tsColumn + ` WHERE id = $1 AND status = $2`

	affected, err := connFrom(ctx, r.pool).Exec(ctx, query, id, from, to, at)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if affected == 0 {
		// Либо заказа нет, либо статус уже сменили — различаем чтением
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStaleStatus
	}
	return nil
}

// SetPaymentReference привязывает внешний платеж к заказу. Привязка
// выполняется только если ссылки еще нет: существующая связь не перетирается.
func (r *PostgresOrderRepository) SetPaymentReference(ctx context.Context, id uuid.UUID, ref string) error {
	query := `
		UPDATE orders
		SET payment_intent_reference = $2, updated_at = $3
		WHERE id = $1 AND payment_intent_reference IS NULL
	`

	affected, err := connFrom(ctx, r.pool).Exec(ctx, query, id, ref, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	if affected == 0 {
		order, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		// Повторная привязка того же платежа — не ошибка: вебхуки
		// доставляются минимум один раз
		if order.PaymentIntentReference == ref {
			return nil
		}
		return domain.ErrPaymentRefAlreadySet
	}
	return nil
}

// FindStaleUnpaid возвращает старые pending-заказы без привязанного платежа —
// кандидатов на истечение без возврата
func (r *PostgresOrderRepository) FindStaleUnpaid(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'pending'
		  AND created_at < $1
		  AND payment_intent_reference IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale unpaid orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// FindExpiryCandidates возвращает старые неисполненные заказы с привязанным
// платежом — кандидатов на системный возврат.
func (r *PostgresOrderRepository) FindExpiryCandidates(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN ('pending', 'accepted')
		  AND created_at < $1
		  AND payment_intent_reference IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiry candidates: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// FindRecoveryCandidates возвращает заказы без привязанного платежа
// с данной суммой, созданные в окне [from, to] — кандидатов на привязку
// осиротевшего платежа.
func (r *PostgresOrderRepository) FindRecoveryCandidates(ctx context.Context, amount int64, from, to time.Time) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_intent_reference IS NULL
		  AND amount = $1
		  AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ASC
	`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, amount, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery candidates: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// scanOrder читает одну строку заказа
func scanOrder(row pgx.Row) (domain.Order, error) {
	var order domain.Order
	var metadataBytes []byte
	var paymentRef, videoRequestID *string

	err := row.Scan(
		&order.ID,
		&order.FanID,
		&order.FanEmail,
		&order.CreatorID,
		&order.Amount,
		&order.PlatformFee,
		&order.CreatorEarnings,
		&order.Currency,
		&order.Status,
		&paymentRef,
		&videoRequestID,
		&metadataBytes,
		&order.CreatedAt,
		&order.AcceptedAt,
		&order.RecordingAt,
		&order.CompletedAt,
		&order.CancelledAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	if paymentRef != nil {
		order.PaymentIntentReference = *paymentRef
	}
	if videoRequestID != nil {
		order.VideoRequestID = *videoRequestID
	}
	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &order.Metadata); err != nil {
			return domain.Order{}, fmt.Errorf("failed to unmarshal order metadata: %w", err)
		}
	}

	return order, nil
}

// collectOrders читает все строки заказов
func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// nullable возвращает nil для пустой строки
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
