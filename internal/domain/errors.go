package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка отсутствующего идентификатора книги в позиции.
	ErrLineBookRequired = errors.New("line book_id is required")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка, если зафиксированная цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка отрицательной стоимости доставки.
	ErrShipmentPriceNegative = errors.New("shipment price must be non-negative")
	// Ошибка несоответствия итога заказа сумме позиций и доставки.
	ErrTotalMismatch = errors.New("order total does not match lines sum plus shipment price")
	// Ошибка неизвестного статуса заказа.
	ErrStatusUnknown = errors.New("unknown order status")
	// Ошибка отрицательного складского остатка.
	ErrStockNegative = errors.New("inventory available must be non-negative")

	// ErrEmptyCart возвращается при оформлении заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrBookNotFound — корзина ссылается на книгу, которой нет в каталоге.
	ErrBookNotFound = errors.New("book not found")
	// ErrInsufficientStock — на складе недостаточно экземпляров для резерва.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrShipmentMethodNotFound — выбранный способ доставки не существует.
	ErrShipmentMethodNotFound = errors.New("shipment method not found")
	// ErrPayMethodNotFound — выбранный способ оплаты не существует.
	ErrPayMethodNotFound = errors.New("pay method not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition — запрошенный переход нарушает таблицу статусов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is used with a different request")
)

// InsufficientStockError перечисляет книги, по которым резерв не удался.
// Разворачивается в ErrInsufficientStock для errors.Is.
type InsufficientStockError struct {
	BookIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for books: %s", strings.Join(e.BookIDs, ", "))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidTransitionError описывает отклонённый переход статуса.
// Разворачивается в ErrInvalidTransition для errors.Is.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
