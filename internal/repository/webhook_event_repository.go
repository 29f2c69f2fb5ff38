package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWebhookEventRepository журнал обработанных webhook-событий
type PostgresWebhookEventRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresWebhookEventRepository создает новый журнал webhook-событий
func NewPostgresWebhookEventRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{pool: pool, log: log}
}

// GetByExternalID возвращает запись журнала по внешнему ID события
func (r *PostgresWebhookEventRepository) GetByExternalID(ctx context.Context, externalEventID string) (domain.WebhookEvent, error) {
	query := `
		SELECT id, external_event_id, event_type, status, payload, error_message, processed_at
		FROM webhook_events
		WHERE external_event_id = $1
	`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, externalEventID)
	return scanWebhookEvent(row)
}

// Upsert фиксирует результат обработки события. Уникальный индекс на
// external_event_id схлопывает повторные доставки в одну запись: записывается
// последний результат, первая строка сохраняет свой ID.
func (r *PostgresWebhookEventRepository) Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error) {
	query := `
		INSERT INTO webhook_events (
			id, external_event_id, event_type, status, payload, error_message, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_event_id) DO UPDATE
		SET status = EXCLUDED.status,
		    error_message = EXCLUDED.error_message,
		    processed_at = EXCLUDED.processed_at
		RETURNING id, processed_at
	`

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}

	err := connFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		event.ID,
		event.ExternalEventID,
		event.Type,
		event.Status,
		event.Payload,
		nullable(event.ErrorMessage),
		event.ProcessedAt,
	).Scan(&event.ID, &event.ProcessedAt)

	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("failed to record webhook event: %w", err)
	}

	return event, nil
}

// List возвращает журнал событий от новых к старым, опционально по типу
func (r *PostgresWebhookEventRepository) List(ctx context.Context, eventType string, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, external_event_id, event_type, status, payload, error_message, processed_at
		FROM webhook_events
	`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = $1`
		args = append(args, eventType)
	}
	query += fmt.Sprintf(` ORDER BY processed_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}
	return events, nil
}

func scanWebhookEvent(row pgx.Row) (domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	var errorMessage *string

	err := row.Scan(
		&event.ID,
		&event.ExternalEventID,
		&event.Type,
		&event.Status,
		&event.Payload,
		&errorMessage,
		&event.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookEvent{}, ErrNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("failed to scan webhook event: %w", err)
	}

	if errorMessage != nil {
		event.ErrorMessage = *errorMessage
	}
	return event, nil
}
