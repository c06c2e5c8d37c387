package inventory

import (
	"sync"

	"github.com/switix/bookstore/internal/domain"
)

// MockLedger — конфигурируемая заглушка InventoryLedger для тестов.
type MockLedger struct {
	mu sync.Mutex

	// ReserveErrs задаёт ошибку Reserve по книге; отсутствие записи — успех.
	ReserveErrs map[string]error
	// ReleaseErr возвращается из каждого вызова Release.
	ReleaseErr error

	ReserveCalls []domain.CartLine
	ReleaseCalls []domain.CartLine
}

// NewMockLedger возвращает mock с успешным сценарием по умолчанию.
func NewMockLedger() *MockLedger {
	return &MockLedger{ReserveErrs: make(map[string]error)}
}

// Reserve возвращает заранее настроенную ошибку и запоминает вызов.
func (m *MockLedger) Reserve(bookID string, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReserveCalls = append(m.ReserveCalls, domain.CartLine{BookID: bookID, Qty: qty})
	return m.ReserveErrs[bookID]
}

// Release возвращает заранее настроенную ошибку и запоминает вызов.
func (m *MockLedger) Release(bookID string, qty int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls = append(m.ReleaseCalls, domain.CartLine{BookID: bookID, Qty: qty})
	return m.ReleaseErr
}

var _ domain.InventoryLedger = (*MockLedger)(nil)
