package domain

import "time"

// CatalogLookup отвечает на вопрос "сколько стоит книга сейчас".
// Каталог — внешний read-only справочник; ядро его не изменяет.
type CatalogLookup interface {
	// PriceOf возвращает текущую цену книги в минимальных единицах
	// или ErrBookNotFound, если книги нет в каталоге.
	PriceOf(bookID string) (int64, error)
}

// ShipmentMethodLookup возвращает стоимость выбранного способа доставки.
type ShipmentMethodLookup interface {
	// ShipmentPriceOf возвращает цену доставки или ErrShipmentMethodNotFound.
	ShipmentPriceOf(methodID string) (int64, error)
}

// PayMethodLookup проверяет существование способа оплаты.
type PayMethodLookup interface {
	// ValidatePayMethod возвращает ErrPayMethodNotFound для неизвестного id.
	ValidatePayMethod(methodID string) error
}

// CartStore хранит корзины покупателей. Ядро читает корзину при оформлении
// и очищает её строго после сохранения заказа.
type CartStore interface {
	// LinesOf возвращает позиции корзины пользователя (пустой срез — пустая корзина).
	LinesOf(userID string) ([]CartLine, error)
	// Clear удаляет все позиции корзины пользователя.
	Clear(userID string) error
}

// InventoryLedger владеет складскими остатками и выполняет резервирование.
// Reserve обязан быть одной атомарной условной операцией на уровне хранилища,
// а не парой чтение+запись: это единственная защита от overselling.
type InventoryLedger interface {
	// Reserve уменьшает остаток книги на qty, только если остатка хватает.
	// Возвращает ErrInsufficientStock, если остаток меньше qty.
	Reserve(bookID string, qty int32) error
	// Release — компенсирующее увеличение остатка.
	Release(bookID string, qty int32) error
}

// StockReserver резервирует набор позиций по принципу всё-или-ничего.
type StockReserver interface {
	// ReserveBatch резервирует каждую позицию; при любой неудаче снимает
	// уже сделанные резервы и возвращает InsufficientStockError со списком
	// проблемных книг.
	ReserveBatch(items []CartLine) error
	// ReleaseBatch снимает резервы набора (компенсация после сбоя записи).
	ReleaseBatch(items []CartLine) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
