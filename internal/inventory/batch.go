package inventory

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
)

// Batch выполняет резервирование набора позиций поверх одиночного леджера
// по принципу всё-или-ничего. Межстрочной транзакции у хранилища нет,
// поэтому частичный резерв компенсируется до возврата из ReserveBatch:
// другие читатели промежуточного состояния не наблюдают.
type Batch struct {
	ledger domain.InventoryLedger
	logger *log.Entry
}

// NewBatch создаёт batch-резерватор поверх конкретного леджера.
func NewBatch(ledger domain.InventoryLedger, logger *log.Entry) *Batch {
	if logger == nil {
		logger = log.WithField("component", "inventory-batch")
	}
	return &Batch{ledger: ledger, logger: logger}
}

// ReserveBatch резервирует каждую позицию набора. При нехватке остатка
// по любой книге уже сделанные резервы снимаются, а вызывающему
// возвращается InsufficientStockError с полным списком проблемных книг.
// Инфраструктурная ошибка леджера также приводит к компенсации.
func (b *Batch) ReserveBatch(items []domain.CartLine) error {
	reserved := make([]domain.CartLine, 0, len(items))
	var insufficient []string

	for _, item := range items {
		err := b.ledger.Reserve(item.BookID, item.Qty)
		if err == nil {
			reserved = append(reserved, item)
			continue
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			insufficient = append(insufficient, item.BookID)
			continue
		}

		// Сбой хранилища: компенсируем и отдаём ошибку как есть.
		b.compensate(reserved)
		return fmt.Errorf("reserve %s: %w", item.BookID, err)
	}

	if len(insufficient) > 0 {
		b.compensate(reserved)
		return &domain.InsufficientStockError{BookIDs: insufficient}
	}

	return nil
}

// ReleaseBatch снимает резервы набора. Используется как компенсация,
// когда запись заказа не удалась уже после успешного резервирования.
func (b *Batch) ReleaseBatch(items []domain.CartLine) error {
	var lastErr error
	for _, item := range items {
		if err := b.ledger.Release(item.BookID, item.Qty); err != nil {
			b.logger.WithError(err).WithField("book_id", item.BookID).Warn("release failed")
			lastErr = err
		}
	}
	return lastErr
}

func (b *Batch) compensate(reserved []domain.CartLine) {
	for _, item := range reserved {
		if err := b.ledger.Release(item.BookID, item.Qty); err != nil {
			// Резерв завис: остаток разойдётся с реальностью до ручного вмешательства.
			b.logger.WithError(err).WithField("book_id", item.BookID).Error("compensating release failed")
		}
	}
}

var _ domain.StockReserver = (*Batch)(nil)
