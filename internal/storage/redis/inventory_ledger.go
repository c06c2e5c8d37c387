package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/switix/bookstore/internal/domain"
)

const (
	stockKeyPrefix = "bookstore:stock:"
	opTimeout      = 3 * time.Second
)

// Проверка остатка и декремент выполняются одним скриптом: Redis исполняет
// его атомарно, поэтому остаток не может уйти в минус при параллельных
// оформлениях.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local qty = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= qty then
	redis.call('DECRBY', key, qty)
	return 1
end

return 0
`)

// InventoryLedger реализует складской леджер поверх Redis.
// Используется как быстрый tier для горячих распродаж: проверка и декремент
// остатка — одна серверная операция.
type InventoryLedger struct {
	client *redis.Client
}

// NewInventoryLedger создаёт Redis-реализацию InventoryLedger.
func NewInventoryLedger(client *redis.Client) *InventoryLedger {
	return &InventoryLedger{client: client}
}

// Reserve уменьшает остаток книги, только если его хватает.
func (l *InventoryLedger) Reserve(bookID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := reserveScript.Run(ctx, l.client, []string{stockKey(bookID)}, qty).Int()
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", bookID, err)
	}
	if result != 1 {
		return domain.ErrInsufficientStock
	}

	return nil
}

// Release возвращает остаток на склад.
func (l *InventoryLedger) Release(bookID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := l.client.IncrBy(ctx, stockKey(bookID), int64(qty)).Err(); err != nil {
		return fmt.Errorf("release stock for %s: %w", bookID, err)
	}

	return nil
}

// SetStock выставляет абсолютный остаток книги (загрузка, администрирование).
func (l *InventoryLedger) SetStock(bookID string, qty int64) error {
	if qty < 0 {
		return domain.ErrStockNegative
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := l.client.Set(ctx, stockKey(bookID), qty, 0).Err(); err != nil {
		return fmt.Errorf("set stock for %s: %w", bookID, err)
	}

	return nil
}

// Available возвращает текущий остаток книги (0 для неизвестной книги).
func (l *InventoryLedger) Available(bookID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	available, err := l.client.Get(ctx, stockKey(bookID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("query stock for %s: %w", bookID, err)
	}

	return available, nil
}

// Ping проверяет доступность Redis.
func (l *InventoryLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func stockKey(bookID string) string {
	return stockKeyPrefix + bookID
}

var _ domain.InventoryLedger = (*InventoryLedger)(nil)
