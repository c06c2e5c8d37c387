package memory

import (
	"sync"

	"github.com/switix/bookstore/internal/domain"
)

// catalogInMemory — read-only справочник цен книг с загрузкой через SetPrice.
type catalogInMemory struct {
	mu     sync.RWMutex
	prices map[string]int64
}

// NewCatalog создаёт in-memory каталог книг.
func NewCatalog() *catalogInMemory {
	return &catalogInMemory{prices: make(map[string]int64)}
}

// SetPrice задаёт цену книги в минимальных единицах.
func (c *catalogInMemory) SetPrice(bookID string, priceMinor int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[bookID] = priceMinor
}

// PriceOf возвращает цену книги или ErrBookNotFound.
func (c *catalogInMemory) PriceOf(bookID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, ok := c.prices[bookID]
	if !ok {
		return 0, domain.ErrBookNotFound
	}
	return price, nil
}

// shipmentMethodsInMemory хранит справочник способов доставки.
type shipmentMethodsInMemory struct {
	mu     sync.RWMutex
	prices map[string]int64
}

// NewShipmentMethods создаёт in-memory справочник способов доставки.
func NewShipmentMethods() *shipmentMethodsInMemory {
	return &shipmentMethodsInMemory{prices: make(map[string]int64)}
}

// SetMethod задаёт стоимость способа доставки.
func (s *shipmentMethodsInMemory) SetMethod(methodID string, priceMinor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[methodID] = priceMinor
}

// ShipmentPriceOf возвращает цену доставки или ErrShipmentMethodNotFound.
func (s *shipmentMethodsInMemory) ShipmentPriceOf(methodID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[methodID]
	if !ok {
		return 0, domain.ErrShipmentMethodNotFound
	}
	return price, nil
}

// payMethodsInMemory хранит справочник способов оплаты.
type payMethodsInMemory struct {
	mu      sync.RWMutex
	methods map[string]struct{}
}

// NewPayMethods создаёт in-memory справочник способов оплаты.
func NewPayMethods() *payMethodsInMemory {
	return &payMethodsInMemory{methods: make(map[string]struct{})}
}

// AddMethod регистрирует способ оплаты.
func (p *payMethodsInMemory) AddMethod(methodID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.methods[methodID] = struct{}{}
}

// ValidatePayMethod возвращает ErrPayMethodNotFound для неизвестного id.
func (p *payMethodsInMemory) ValidatePayMethod(methodID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.methods[methodID]; !ok {
		return domain.ErrPayMethodNotFound
	}
	return nil
}

var (
	_ domain.CatalogLookup        = (*catalogInMemory)(nil)
	_ domain.ShipmentMethodLookup = (*shipmentMethodsInMemory)(nil)
	_ domain.PayMethodLookup      = (*payMethodsInMemory)(nil)
)
