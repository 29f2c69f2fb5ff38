package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxManager исполняет функцию внутри одной транзакции базы данных.
// Репозитории, вызванные из fn, работают через эту транзакцию, поэтому
// проверка дедупликации и финальная запись состояния коммитятся атомарно.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// connFrom возвращает транзакцию из контекста, если она открыта,
// иначе сам пул.
func connFrom(ctx context.Context, pool *pgxpool.Pool) dbConn {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return dbConn{tx: tx}
	}
	return dbConn{pool: pool}
}

// dbConn обертка над пулом или транзакцией
type dbConn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (c dbConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.tx != nil {
		return c.tx.Query(ctx, sql, args...)
	}
	return c.pool.Query(ctx, sql, args...)
}

func (c dbConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if c.tx != nil {
		return c.tx.QueryRow(ctx, sql, args...)
	}
	return c.pool.QueryRow(ctx, sql, args...)
}

func (c dbConn) Exec(ctx context.Context, sql string, args ...any) (rowsAffected int64, err error) {
	if c.tx != nil {
		tag, err := c.tx.Exec(ctx, sql, args...)
		return tag.RowsAffected(), err
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	return tag.RowsAffected(), err
}

// PgxTxManager реализация TxManager поверх pgxpool
type PgxTxManager struct {
	pool *pgxpool.Pool
}

// NewPgxTxManager создает новый менеджер транзакций
func NewPgxTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{pool: pool}
}

// WithinTransaction открывает транзакцию, кладет ее в контекст и коммитит,
// если fn вернула nil; иначе откатывает.
func (m *PgxTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Вложенные вызовы продолжают работать в уже открытой транзакции
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NoopTxManager менеджер транзакций для репозиториев в памяти
type NoopTxManager struct{}

// WithinTransaction исполняет fn без транзакционных гарантий
func (NoopTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
