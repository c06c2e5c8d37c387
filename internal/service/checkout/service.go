package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	"github.com/switix/bookstore/internal/metrics"
)

// Реестр типов событий заказа, попадающих в outbox и timeline.
// Значения совпадают с kafka.EventTypeOrder*: словарь событий один
// на всём пути от timeline до брокера.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderDeleted       = "order.deleted"
)

// CreateOrderRequest описывает параметры оформления заказа из корзины.
type CreateOrderRequest struct {
	UserID            string
	Currency          string
	ShipmentMethodID  string
	PayMethodID       string
	BillingAddressID  string
	ShippingAddressID string
}

// Service оформляет заказы и управляет их жизненным циклом.
// Последовательность оформления жёсткая: резерв склада строго до записи
// заказа, запись строго до очистки корзины.
type Service struct {
	cart     domain.CartStore
	catalog  domain.CatalogLookup
	shipment domain.ShipmentMethodLookup
	pay      domain.PayMethodLookup
	stock    domain.StockReserver
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// Deps перечисляет зависимости сервиса. Outbox, timeline и metrics опциональны.
type Deps struct {
	Cart     domain.CartStore
	Catalog  domain.CatalogLookup
	Shipment domain.ShipmentMethodLookup
	Pay      domain.PayMethodLookup
	Stock    domain.StockReserver
	Orders   domain.OrderRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Logger   *log.Entry
	Metrics  *metrics.CheckoutMetrics
}

// NewService создаёт сервис оформления заказов.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		cart:     deps.Cart,
		catalog:  deps.Catalog,
		shipment: deps.Shipment,
		pay:      deps.Pay,
		stock:    deps.Stock,
		orders:   deps.Orders,
		outbox:   deps.Outbox,
		timeline: deps.Timeline,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// CreateOrder превращает корзину покупателя в заказ.
// При любой ошибке до записи заказа корзина и склад остаются нетронутыми:
// частичный резерв компенсируется внутри StockReserver, резерв целиком
// снимается, если запись заказа не удалась.
func (s *Service) CreateOrder(req CreateOrderRequest) (domain.Order, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	lines, err := s.cart.LinesOf(req.UserID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load cart for %s: %w", req.UserID, err)
	}
	if len(lines) == 0 {
		s.reject("empty_cart")
		return domain.Order{}, domain.ErrEmptyCart
	}

	// Дубликаты книг в корзине схлопываются: один резерв на книгу.
	merged := domain.MergeCartLines(lines)

	// Повреждённая корзина (пустой book_id, qty <= 0) не должна дойти
	// до склада: условный декремент проверяет только нижнюю границу.
	for _, line := range merged {
		if errs := line.Validate(); len(errs) > 0 {
			s.reject("invalid_cart_line")
			return domain.Order{}, fmt.Errorf("cart line %q: %w", line.BookID, errors.Join(errs...))
		}
	}

	prices := make(map[string]int64, len(merged))
	for _, line := range merged {
		price, err := s.catalog.PriceOf(line.BookID)
		if err != nil {
			if errors.Is(err, domain.ErrBookNotFound) {
				s.reject("book_not_found")
				return domain.Order{}, fmt.Errorf("book %s: %w", line.BookID, domain.ErrBookNotFound)
			}
			return domain.Order{}, fmt.Errorf("price of %s: %w", line.BookID, err)
		}
		prices[line.BookID] = price
	}

	shipmentPrice, err := s.shipment.ShipmentPriceOf(req.ShipmentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrShipmentMethodNotFound) {
			s.reject("shipment_method_not_found")
		}
		return domain.Order{}, err
	}
	if err := s.pay.ValidatePayMethod(req.PayMethodID); err != nil {
		if errors.Is(err, domain.ErrPayMethodNotFound) {
			s.reject("pay_method_not_found")
		}
		return domain.Order{}, err
	}

	if err := s.stock.ReserveBatch(merged); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.reject("insufficient_stock")
			if s.metrics != nil {
				s.metrics.RecordReservationFailed()
			}
		}
		return domain.Order{}, err
	}

	order := s.buildOrder(req, merged, prices, shipmentPrice)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.releaseReserved(merged)
		return domain.Order{}, fmt.Errorf("order invariants violated: %w", errors.Join(errs...))
	}

	if err := s.orders.Create(order); err != nil {
		// Заказ не записан: возвращаем резерв на склад до выхода.
		s.releaseReserved(merged)
		return domain.Order{}, fmt.Errorf("persist order %s: %w", order.ID, err)
	}

	if err := s.cart.Clear(req.UserID); err != nil {
		// Заказ уже есть, остатки верные. Непустая корзина — меньшее зло.
		s.logger.WithError(err).WithField("user_id", req.UserID).Warn("clear cart failed after order creation")
	}

	s.emitEvent(&order, EventOrderCreated, map[string]interface{}{
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
		"currency":    order.Currency,
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	})
	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
		"lines":       len(order.Lines),
	}).Info("order created")

	return order, nil
}

func (s *Service) buildOrder(req CreateOrderRequest, merged []domain.CartLine, prices map[string]int64, shipmentPrice int64) domain.Order {
	now := time.Now().UTC()

	orderLines := make([]domain.OrderLine, 0, len(merged))
	for _, line := range merged {
		orderLines = append(orderLines, domain.OrderLine{
			ID:             uuid.NewString(),
			BookID:         line.BookID,
			Qty:            line.Qty,
			UnitPriceMinor: prices[line.BookID],
			CreatedAt:      now,
		})
	}

	order := domain.Order{
		ID:                 uuid.NewString(),
		UserID:             req.UserID,
		Status:             domain.OrderStatusPending,
		Currency:           req.Currency,
		Lines:              orderLines,
		ShipmentMethodID:   req.ShipmentMethodID,
		ShipmentPriceMinor: shipmentPrice,
		PayMethodID:        req.PayMethodID,
		BillingAddressID:   req.BillingAddressID,
		ShippingAddressID:  req.ShippingAddressID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	order.TotalMinor = order.LinesTotalMinor() + shipmentPrice
	return order
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(id string) (domain.Order, error) {
	return s.orders.Get(id)
}

// GetLineItems возвращает позиции заказа или ErrOrderNotFound.
func (s *Service) GetLineItems(orderID string) ([]domain.OrderLine, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	return order.Lines, nil
}

// ListOrdersForUser возвращает заказы покупателя, новые первыми.
func (s *Service) ListOrdersForUser(userID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByUser(userID, limit)
}

// ListAllOrders возвращает все заказы (административная выборка).
func (s *Service) ListAllOrders(limit int) ([]domain.Order, error) {
	return s.orders.ListAll(limit)
}

// Timeline возвращает историю событий заказа.
func (s *Service) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

// UpdateStatus переводит заказ в новый статус с проверкой таблицы переходов.
// Конфликт версий разрешается перезагрузкой и повтором с backoff.
// Переход в cancelled возвращает зарезервированный товар на склад.
func (s *Service) UpdateStatus(orderID string, next domain.OrderStatus) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrStatusUnknown, next)
	}

	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		// Таблица переходов не содержит петель: повтор текущего статуса
		// отклоняется так же, как любой другой недопустимый переход.
		if !order.Status.CanTransitionTo(next) {
			return domain.Order{}, &domain.InvalidTransitionError{From: order.Status, To: next}
		}

		previous := order.Status
		order.Status = next
		order.UpdatedAt = time.Now().UTC()

		if err := s.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				s.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"attempt":  attempt + 1,
				}).Warn("version conflict, retrying status update")

				fresh, loadErr := s.orders.Get(order.ID)
				if loadErr != nil {
					return domain.Order{}, loadErr
				}
				order = fresh
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			order.Status = previous
			return domain.Order{}, fmt.Errorf("persist status %s: %w", next, err)
		}

		order.Version++

		if next == domain.OrderStatusCancelled {
			// Отмена до отправки возвращает остатки на склад.
			s.releaseReserved(linesToCart(order.Lines))
			if s.metrics != nil {
				s.metrics.RecordOrderCancelled()
			}
			s.emitEvent(&order, EventOrderCancelled, map[string]interface{}{
				"previous": string(previous),
				"ts":       order.UpdatedAt.Format(time.RFC3339Nano),
			})
		} else {
			s.emitEvent(&order, EventOrderStatusChanged, map[string]interface{}{
				"status":   string(next),
				"previous": string(previous),
				"ts":       order.UpdatedAt.Format(time.RFC3339Nano),
			})
		}
		if s.metrics != nil {
			s.metrics.RecordStatusTransition(string(next))
		}

		return order, nil
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// DeleteOrder безвозвратно удаляет заказ. Остатки склада не изменяются:
// возврат товара выполняется только переходом в cancelled.
func (s *Service) DeleteOrder(orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(orderID); err != nil {
		return err
	}
	s.emitEvent(&order, EventOrderDeleted, map[string]interface{}{
		"ts": time.Now().UTC().Format(time.RFC3339Nano),
	})
	return nil
}

func (s *Service) releaseReserved(items []domain.CartLine) {
	if err := s.stock.ReleaseBatch(items); err != nil {
		s.logger.WithError(err).Warn("release reserved stock failed")
	}
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordOrderRejected(reason)
	}
}

func (s *Service) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("marshal event failed")
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "order",
				AggregateID:   order.ID,
				EventType:     eventType,
				Payload:       data,
			}
			if _, err := s.outbox.Enqueue(msg); err != nil {
				s.logger.WithError(err).WithFields(log.Fields{
					"order_id": order.ID,
					"event":    eventType,
				}).Error("enqueue event failed")
			} else if s.metrics != nil {
				s.metrics.RecordOutboxEvent()
			}
		}
	}

	if s.timeline != nil {
		event := domain.NewTimelineEvent(order.ID, eventType)
		if err := s.timeline.Append(event); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func linesToCart(lines []domain.OrderLine) []domain.CartLine {
	items := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.CartLine{BookID: line.BookID, Qty: line.Qty})
	}
	return items
}
