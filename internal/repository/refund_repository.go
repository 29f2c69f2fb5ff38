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

const refundColumns = `
	id, order_id, external_refund_reference, refund_amount, original_amount,
	platform_fee_refund, creator_earnings_refund, cancellation_fee, currency,
	status, reason, initiator_type, initiated_by, failure_reason,
	initiated_at, processed_at, completed_at, failed_at
`

// PostgresRefundRepository репозиторий записей возвратов в PostgreSQL
type PostgresRefundRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresRefundRepository создает новый репозиторий возвратов
func NewPostgresRefundRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresRefundRepository {
	return &PostgresRefundRepository{pool: pool, log: log}
}

// Create создает запись возврата. Уникальный индекс на
// external_refund_reference дает дедупликацию повторных возвратов.
func (r *PostgresRefundRepository) Create(ctx context.Context, rec domain.RefundRecord) (domain.RefundRecord, error) {
	query := `
		INSERT INTO refund_records (
			id, order_id, external_refund_reference, refund_amount,
			original_amount, platform_fee_refund, creator_earnings_refund,
			cancellation_fee, currency, status, reason, initiator_type,
			initiated_by, failure_reason, initiated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING initiated_at
	`

	if rec.InitiatedAt.IsZero() {
		rec.InitiatedAt = time.Now()
	}

	err := connFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		rec.ID,
		rec.OrderID,
		nullable(rec.ExternalRefundRef),
		rec.RefundAmount,
		rec.OriginalAmount,
		rec.PlatformFeeRefund,
		rec.CreatorEarningsRefund,
		rec.CancellationFee,
		rec.Currency,
		rec.Status,
		rec.Reason,
		rec.InitiatedByType,
		rec.InitiatedBy,
		nullable(rec.FailureReason),
		rec.InitiatedAt,
	).Scan(&rec.InitiatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.RefundRecord{}, ErrDuplicate
			case "23503":
				return domain.RefundRecord{}, ErrInvalidData
			}
		}
		return domain.RefundRecord{}, fmt.Errorf("failed to create refund record: %w", err)
	}

	return rec, nil
}

// GetByID возвращает запись возврата по ID
func (r *PostgresRefundRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RefundRecord, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_records WHERE id = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, id)
	return scanRefund(row)
}

// GetByExternalRef возвращает запись возврата по идентификатору возврата в шлюзе
func (r *PostgresRefundRepository) GetByExternalRef(ctx context.Context, ref string) (domain.RefundRecord, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_records WHERE external_refund_reference = $1`

	row := connFrom(ctx, r.pool).QueryRow(ctx, query, ref)
	return scanRefund(row)
}

// GetByOrderID возвращает все возвраты по заказу, от старых к новым
func (r *PostgresRefundRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.RefundRecord, error) {
	query := `SELECT ` + refundColumns + ` FROM refund_records WHERE order_id = $1 ORDER BY initiated_at ASC`

	rows, err := connFrom(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refund records: %w", err)
	}
	defer rows.Close()

	var records []domain.RefundRecord
	for rows.Next() {
		rec, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund records: %w", err)
	}
	return records, nil
}

// UpdateStatus переводит запись возврата в новый статус и проставляет
// соответствующую временную метку
func (r *PostgresRefundRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RefundStatus, externalRef, failureReason string) error {
	query := `
		UPDATE refund_records
		SET
			status = $2,
			external_refund_reference = COALESCE($3, external_refund_reference),
			failure_reason = $4,
			processed_at = CASE WHEN $2 = 'processing' THEN $5 ELSE processed_at END,
			completed_at = CASE WHEN $2 = 'succeeded' THEN $5 ELSE completed_at END,
			failed_at = CASE WHEN $2 = 'failed' THEN $5 ELSE failed_at END
		WHERE id = $1
	`

	affected, err := connFrom(ctx, r.pool).Exec(
		ctx,
		query,
		id,
		status,
		nullable(externalRef),
		nullable(failureReason),
		time.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update refund status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SumRefundedByOrder возвращает сумму уже успешных возвратов по заказу
func (r *PostgresRefundRepository) SumRefundedByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(refund_amount), 0)
		FROM refund_records
		WHERE order_id = $1 AND status = 'succeeded'
	`

	var total int64
	err := connFrom(ctx, r.pool).QueryRow(ctx, query, orderID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return total, nil
}

// scanRefund читает одну строку записи возврата
func scanRefund(row pgx.Row) (domain.RefundRecord, error) {
	var rec domain.RefundRecord
	var externalRef, failureReason *string

	err := row.Scan(
		&rec.ID,
		&rec.OrderID,
		&externalRef,
		&rec.RefundAmount,
		&rec.OriginalAmount,
		&rec.PlatformFeeRefund,
		&rec.CreatorEarningsRefund,
		&rec.CancellationFee,
		&rec.Currency,
		&rec.Status,
		&rec.Reason,
		&rec.InitiatedByType,
		&rec.InitiatedBy,
		&failureReason,
		&rec.InitiatedAt,
		&rec.ProcessedAt,
		&rec.CompletedAt,
		&rec.FailedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RefundRecord{}, ErrNotFound
		}
		return domain.RefundRecord{}, fmt.Errorf("failed to scan refund record: %w", err)
	}

	if externalRef != nil {
		rec.ExternalRefundRef = *externalRef
	}
	if failureReason != nil {
		rec.FailureReason = *failureReason
	}
	return rec, nil
}
