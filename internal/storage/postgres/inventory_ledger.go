package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/switix/bookstore/internal/domain"
)

// inventoryLedger реализует складской леджер поверх PostgreSQL.
// Резерв — одна условная UPDATE-команда: проверка остатка и декремент
// выполняются атомарно на стороне базы, параллельные оформления не могут
// увести остаток в минус.
type inventoryLedger struct {
	db *sql.DB
}

// NewInventoryLedger создаёт PostgreSQL-реализацию InventoryLedger.
func NewInventoryLedger(store *Store) *inventoryLedger {
	return &inventoryLedger{db: store.DB()}
}

// Reserve уменьшает остаток книги, только если его хватает.
func (l *inventoryLedger) Reserve(bookID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, `
		UPDATE inventory
		SET available = available - $2,
		    updated_at = NOW()
		WHERE book_id = $1
		  AND available >= $2
	`, bookID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", bookID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

// Release возвращает остаток на склад. Отсутствующая строка создаётся,
// чтобы компенсация не терялась при рассинхронизации справочника.
func (l *inventoryLedger) Release(bookID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO inventory (book_id, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (book_id) DO UPDATE
		SET available = inventory.available + EXCLUDED.available,
		    updated_at = NOW()
	`, bookID, qty); err != nil {
		return fmt.Errorf("release stock for %s: %w", bookID, err)
	}

	return nil
}

// SetStock выставляет абсолютный остаток книги (загрузка, администрирование).
func (l *inventoryLedger) SetStock(bookID string, qty int64) error {
	if qty < 0 {
		return domain.ErrStockNegative
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO inventory (book_id, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (book_id) DO UPDATE
		SET available = EXCLUDED.available,
		    updated_at = NOW()
	`, bookID, qty); err != nil {
		return fmt.Errorf("set stock for %s: %w", bookID, err)
	}

	return nil
}

// Available возвращает текущий остаток книги (0 для неизвестной книги).
func (l *inventoryLedger) Available(bookID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var available int64
	err := l.db.QueryRowContext(ctx, `
		SELECT available FROM inventory WHERE book_id = $1
	`, bookID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query stock for %s: %w", bookID, err)
	}

	return available, nil
}

var _ domain.InventoryLedger = (*inventoryLedger)(nil)
