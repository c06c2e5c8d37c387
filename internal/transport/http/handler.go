package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	"github.com/switix/bookstore/internal/service/checkout"
)

// Handler отдаёт HTTP API магазина: оформление заказа и управление
// его жизненным циклом.
type Handler struct {
	checkout    *checkout.Service
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewHandler создаёт HTTP handler. idempotency может быть nil,
// тогда заголовок Idempotency-Key игнорируется.
func NewHandler(svc *checkout.Service, idempotency domain.IdempotencyRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{
		checkout:    svc,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Router собирает маршруты API.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/checkout", h.withIdempotency(h.createOrder))
		r.Get("/orders", h.listUserOrders)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Get("/{orderID}/lines", h.getOrderLines)
		r.Get("/{orderID}/timeline", h.getOrderTimeline)
		r.Patch("/{orderID}/status", h.updateStatus)
		r.Delete("/{orderID}", h.deleteOrder)
	})

	return r
}

type createOrderBody struct {
	Currency          string `json:"currency"`
	ShipmentMethodID  string `json:"shipment_method_id"`
	PayMethodID       string `json:"pay_method_id"`
	BillingAddressID  string `json:"billing_address_id"`
	ShippingAddressID string `json:"shipping_address_id"`
}

type updateStatusBody struct {
	Status string `json:"status"`
}

type orderLineResponse struct {
	ID             string    `json:"id"`
	BookID         string    `json:"book_id"`
	Qty            int32     `json:"qty"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	CreatedAt      time.Time `json:"created_at"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	Status             string              `json:"status"`
	Currency           string              `json:"currency"`
	Lines              []orderLineResponse `json:"lines"`
	ShipmentMethodID   string              `json:"shipment_method_id"`
	ShipmentPriceMinor int64               `json:"shipment_price_minor"`
	PayMethodID        string              `json:"pay_method_id"`
	BillingAddressID   string              `json:"billing_address_id"`
	ShippingAddressID  string              `json:"shipping_address_id"`
	TotalMinor         int64               `json:"total_minor"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type timelineEventResponse struct {
	OrderID   string    `json:"order_id"`
	EventType string    `json:"event_type"`
	Reason    string    `json:"reason,omitempty"`
	Occurred  time.Time `json:"occurred_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ID:             line.ID,
			BookID:         line.BookID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			CreatedAt:      line.CreatedAt,
		})
	}
	return orderResponse{
		ID:                 order.ID,
		UserID:             order.UserID,
		Status:             string(order.Status),
		Currency:           order.Currency,
		Lines:              lines,
		ShipmentMethodID:   order.ShipmentMethodID,
		ShipmentPriceMinor: order.ShipmentPriceMinor,
		PayMethodID:        order.PayMethodID,
		BillingAddressID:   order.BillingAddressID,
		ShippingAddressID:  order.ShippingAddressID,
		TotalMinor:         order.TotalMinor,
		Version:            order.Version,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var body createOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	order, err := h.checkout.CreateOrder(checkout.CreateOrderRequest{
		UserID:            userID,
		Currency:          body.Currency,
		ShipmentMethodID:  body.ShipmentMethodID,
		PayMethodID:       body.PayMethodID,
		BillingAddressID:  body.BillingAddressID,
		ShippingAddressID: body.ShippingAddressID,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.GetOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) getOrderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.checkout.GetLineItems(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]orderLineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, orderLineResponse{
			ID:             line.ID,
			BookID:         line.BookID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			CreatedAt:      line.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.checkout.Timeline(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, timelineEventResponse{
			OrderID:   event.OrderID,
			EventType: event.Type,
			Reason:    event.Reason,
			Occurred:  event.Occurred,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}

	orders, err := h.checkout.ListAllOrders(limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeOrderList(w, orders)
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}

	orders, err := h.checkout.ListOrdersForUser(chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeOrderList(w, orders)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	next := domain.OrderStatus(body.Status)
	if !next.Valid() {
		h.writeError(w, http.StatusBadRequest, "bad_request", "unknown order status: "+body.Status)
		return
	}

	order, err := h.checkout.UpdateStatus(chi.URLParam(r, "orderID"), next)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.DeleteOrder(chi.URLParam(r, "orderID")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeOrderList(w http.ResponseWriter, orders []domain.Order) {
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}
