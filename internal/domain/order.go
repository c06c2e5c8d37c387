package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, ожидает подтверждения администратором.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён и готовится к отправке.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю (терминальный статус).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до отправки (терминальный статус).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// allowedTransitions задаёт таблицу переходов статусов заказа.
// Отмена возможна только до отправки; после shipped возврата нет.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: nil,
	OrderStatusCancelled: nil,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0 && s.Valid()
}

// CanTransitionTo проверяет допустимость перехода по таблице статусов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderLine представляет одну позицию заказа.
// Цена фиксируется в момент оформления и не меняется при изменении каталога.
type OrderLine struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// BookID — идентификатор книги в каталоге.
	BookID string
	// Qty — количество экземпляров.
	Qty int32
	// UnitPriceMinor — цена за экземпляр в минимальных денежных единицах
	// на момент оформления заказа.
	UnitPriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа покупателя и его позиции.
type Order struct {
	ID                 string
	UserID             string
	Status             OrderStatus
	Currency           string
	Lines              []OrderLine
	ShipmentMethodID   string
	ShipmentPriceMinor int64
	PayMethodID        string
	BillingAddressID   string
	ShippingAddressID  string
	TotalMinor         int64
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LinesTotalMinor возвращает сумму позиций без стоимости доставки.
func (o *Order) LinesTotalMinor() int64 {
	var total int64
	for _, line := range o.Lines {
		total += int64(line.Qty) * line.UnitPriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.ShipmentPriceMinor < 0 {
		errs = append(errs, ErrShipmentPriceNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}

	for _, line := range o.Lines {
		if line.BookID == "" {
			errs = append(errs, ErrLineBookRequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}

	// Сверяем итог заказа с суммой позиций и стоимостью доставки.
	if o.LinesTotalMinor()+o.ShipmentPriceMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
