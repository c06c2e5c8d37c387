package memory

import (
	"sync"

	"github.com/switix/bookstore/internal/domain"
)

// inventoryLedgerInMemory хранит складские остатки под одним мьютексом.
// Reserve выполняет проверку и декремент как одну критическую секцию,
// поэтому остаток никогда не уходит в минус при конкурентных оформлениях.
type inventoryLedgerInMemory struct {
	mu        sync.Mutex
	available map[string]int64
}

// NewInventoryLedger создаёт in-memory леджер остатков.
func NewInventoryLedger() *inventoryLedgerInMemory {
	return &inventoryLedgerInMemory{available: make(map[string]int64)}
}

// SetStock выставляет остаток книги (начальная загрузка, тесты).
func (l *inventoryLedgerInMemory) SetStock(bookID string, qty int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[bookID] = qty
}

// Available возвращает текущий остаток книги.
func (l *inventoryLedgerInMemory) Available(bookID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[bookID]
}

// Reserve уменьшает остаток, только если его хватает.
func (l *inventoryLedgerInMemory) Reserve(bookID string, qty int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.available[bookID]
	if !ok || current < int64(qty) {
		return domain.ErrInsufficientStock
	}
	l.available[bookID] = current - int64(qty)
	return nil
}

// Release возвращает ранее зарезервированный остаток.
func (l *inventoryLedgerInMemory) Release(bookID string, qty int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available[bookID] += int64(qty)
	return nil
}

var _ domain.InventoryLedger = (*inventoryLedgerInMemory)(nil)
