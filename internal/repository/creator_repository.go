package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCreatorDirectory справочник криэйторов в PostgreSQL. Таблица
// creators реплицируется из сервиса криэйторов и читается здесь только
// для проверки платежного аккаунта.
type PostgresCreatorDirectory struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresCreatorDirectory создает справочник криэйторов
func NewPostgresCreatorDirectory(pool *pgxpool.Pool, log *logger.Logger) *PostgresCreatorDirectory {
	return &PostgresCreatorDirectory{pool: pool, log: log}
}

// GetByID возвращает криэйтора по ID
func (r *PostgresCreatorDirectory) GetByID(ctx context.Context, id uuid.UUID) (domain.Creator, error) {
	query := `
		SELECT id, email, gateway_account_id, payments_enabled, display_name, subscription_tiers
		FROM creators
		WHERE id = $1
	`

	var creator domain.Creator
	err := connFrom(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&creator.ID,
		&creator.Email,
		&creator.GatewayAccountID,
		&creator.PaymentsEnabled,
		&creator.DisplayName,
		&creator.SubscriptionTiers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Creator{}, fmt.Errorf("creator %s: %w", id, domain.ErrCreatorNotFound)
		}
		r.log.Error("Failed to get creator %s: %v", id, err)
		return domain.Creator{}, fmt.Errorf("failed to get creator: %w", err)
	}

	return creator, nil
}
