// Package idempotency отвечает за ключи идемпотентности денежных операций.
// Каждый вызов шлюза, создающий движение денег, несет ключ; повтор запроса
// с тем же ключом не создает второй платеж или возврат.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "idem:"
	defaultTTL = 24 * time.Hour
)

// DeriveKey выводит ключ идемпотентности для новой покупки из идентификатора
// видео-запроса и момента времени. Пустой идентификатор заменяется на "anon".
func DeriveKey(videoRequestID string, at time.Time) string {
	if videoRequestID == "" {
		videoRequestID = "anon"
	}
	sum := sha256.Sum256([]byte(videoRequestID))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:8]), at.Unix())
}

// Guard резервирует ключи идемпотентности, закрывая гонку между проверкой
// и действием: повторная резервация того же ключа отклоняется.
type Guard interface {
	// Reserve атомарно занимает ключ. false — ключ уже использован.
	Reserve(ctx context.Context, key string) (bool, error)

	// Release освобождает ключ, когда операция не дошла до вызова шлюза
	// и безопасна к повтору с тем же ключом.
	Release(ctx context.Context, key string) error
}

// RedisGuard реализация Guard на Redis (SETNX с TTL)
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisGuard создает новый Redis-гард идемпотентности
func NewRedisGuard(client *redis.Client, log *logger.Logger) *RedisGuard {
	return &RedisGuard{
		client: client,
		ttl:    defaultTTL,
		log:    log,
	}
}

// Reserve атомарно занимает ключ
func (g *RedisGuard) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		g.log.Warn("Idempotency key already reserved: %s", key)
	}
	return ok, nil
}

// Release освобождает ключ
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// MemoryGuard реализация Guard в памяти для тестов и локального запуска
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryGuard создает новый гард в памяти
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]struct{})}
}

// Reserve атомарно занимает ключ
func (g *MemoryGuard) Reserve(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.keys[key]; exists {
		return false, nil
	}
	g.keys[key] = struct{}{}
	return true, nil
}

// Release освобождает ключ
func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.keys, key)
	return nil
}
