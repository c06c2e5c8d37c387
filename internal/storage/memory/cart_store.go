package memory

import (
	"sync"

	"github.com/switix/bookstore/internal/domain"
)

// cartStoreInMemory хранит корзины покупателей по user id.
type cartStoreInMemory struct {
	mu    sync.RWMutex
	carts map[string][]domain.CartLine
}

// NewCartStore создаёт in-memory хранилище корзин.
func NewCartStore() *cartStoreInMemory {
	return &cartStoreInMemory{carts: make(map[string][]domain.CartLine)}
}

// Put полностью заменяет корзину пользователя (начальная загрузка, тесты).
func (s *cartStoreInMemory) Put(userID string, lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append([]domain.CartLine(nil), lines...)
}

// AddLine добавляет позицию в корзину пользователя.
func (s *cartStoreInMemory) AddLine(userID string, line domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append(s.carts[userID], line)
}

// LinesOf возвращает копию позиций корзины; пустой срез — пустая корзина.
func (s *cartStoreInMemory) LinesOf(userID string) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.CartLine(nil), s.carts[userID]...), nil
}

// Clear удаляет все позиции корзины пользователя.
func (s *cartStoreInMemory) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

var _ domain.CartStore = (*cartStoreInMemory)(nil)
