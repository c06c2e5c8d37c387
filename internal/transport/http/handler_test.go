package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/switix/bookstore/internal/domain"
	"github.com/switix/bookstore/internal/inventory"
	"github.com/switix/bookstore/internal/service/checkout"
	"github.com/switix/bookstore/internal/storage/memory"
	transport "github.com/switix/bookstore/internal/transport/http"
)

type apiFixture struct {
	server *httptest.Server
	ledger interface {
		domain.InventoryLedger
		SetStock(bookID string, qty int64)
		Available(bookID string) int64
	}
	cart interface {
		domain.CartStore
		Put(userID string, lines []domain.CartLine)
	}
	orders domain.OrderRepository
}

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("test", "http")
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cart := memory.NewCartStore()
	catalog := memory.NewCatalog()
	shipment := memory.NewShipmentMethods()
	pay := memory.NewPayMethods()
	ledger := memory.NewInventoryLedger()
	orders := memory.NewOrderRepository()

	catalog.SetPrice("book-1", 1000)
	catalog.SetPrice("book-2", 500)
	shipment.SetMethod("courier", 500)
	pay.AddMethod("card")
	ledger.SetStock("book-1", 10)
	ledger.SetStock("book-2", 10)

	svc := checkout.NewService(checkout.Deps{
		Cart:     cart,
		Catalog:  catalog,
		Shipment: shipment,
		Pay:      pay,
		Stock:    inventory.NewBatch(ledger, testLogger()),
		Orders:   orders,
		Timeline: memory.NewTimelineRepository(),
		Logger:   testLogger(),
	})

	handler := transport.NewHandler(svc, memory.NewIdempotencyRepository(), testLogger())
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return &apiFixture{server: server, ledger: ledger, cart: cart, orders: orders}
}

func (f *apiFixture) fillCart(t *testing.T, userID string, lines ...domain.CartLine) {
	t.Helper()
	f.cart.Put(userID, lines)
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req, err := http.NewRequest(method, f.server.URL+path, &reqBody)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type orderPayload struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	TotalMinor int64  `json:"total_minor"`
	Lines      []struct {
		BookID         string `json:"book_id"`
		Qty            int32  `json:"qty"`
		UnitPriceMinor int64  `json:"unit_price_minor"`
	} `json:"lines"`
}

type errorPayload struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		BookIDs []string `json:"book_ids"`
	} `json:"error"`
}

func checkoutBody() map[string]string {
	return map[string]string{
		"currency":           "USD",
		"shipment_method_id": "courier",
		"pay_method_id":      "card",
	}
}

func TestCheckout_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1",
		domain.CartLine{BookID: "book-1", Qty: 2},
		domain.CartLine{BookID: "book-2", Qty: 1},
	)

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	order := decodeJSON[orderPayload](t, resp)
	require.NotEmpty(t, order.ID)
	require.Equal(t, "user-1", order.UserID)
	require.Equal(t, "pending", order.Status)
	require.Equal(t, int64(3000), order.TotalMinor)
	require.Len(t, order.Lines, 2)

	require.Equal(t, int64(8), f.ledger.Available("book-1"))
	require.Equal(t, int64(9), f.ledger.Available("book-2"))

	lines, err := f.cart.LinesOf("user-1")
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeJSON[errorPayload](t, resp)
	require.Equal(t, "empty_cart", payload.Error.Code)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := newAPIFixture(t)
	f.ledger.SetStock("book-2", 0)
	f.fillCart(t, "user-1",
		domain.CartLine{BookID: "book-1", Qty: 1},
		domain.CartLine{BookID: "book-2", Qty: 1},
	)

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	payload := decodeJSON[errorPayload](t, resp)
	require.Equal(t, "insufficient_stock", payload.Error.Code)
	require.Equal(t, []string{"book-2"}, payload.Error.BookIDs)

	// Резерв по book-1 снят компенсацией.
	require.Equal(t, int64(10), f.ledger.Available("book-1"))
}

func TestCheckout_UnknownShipmentMethod(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	body := checkoutBody()
	body["shipment_method_id"] = "teleport"

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	payload := decodeJSON[errorPayload](t, resp)
	require.Equal(t, "shipment_method_not_found", payload.Error.Code)
}

func TestCheckout_IdempotencyReplay(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decodeJSON[orderPayload](t, first)

	// Повтор с тем же ключом и телом не создаёт второй заказ.
	second := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	require.Equal(t, "true", second.Header.Get("Idempotency-Replayed"))
	replayed := decodeJSON[orderPayload](t, second)
	require.Equal(t, created.ID, replayed.ID)

	orders, err := f.orders.ListAll(0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(9), f.ledger.Available("book-1"))
}

func TestCheckout_IdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	first.Body.Close()

	other := checkoutBody()
	other["currency"] = "EUR"
	second := f.do(t, http.MethodPost, "/users/user-1/checkout", other, headers)
	require.Equal(t, http.StatusUnprocessableEntity, second.StatusCode)

	payload := decodeJSON[errorPayload](t, second)
	require.Equal(t, "idempotency_key_reused", payload.Error.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/orders/no-such-order", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload := decodeJSON[errorPayload](t, resp)
	require.Equal(t, "order_not_found", payload.Error.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeJSON[orderPayload](t, resp)

	// pending -> confirmed -> shipped -> delivered
	for _, status := range []string{"confirmed", "shipped", "delivered"} {
		resp := f.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", map[string]string{"status": status}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		updated := decodeJSON[orderPayload](t, resp)
		require.Equal(t, status, updated.Status)
	}

	// delivered — терминальный статус.
	resp = f.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", map[string]string{"status": "cancelled"}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	payload := decodeJSON[errorPayload](t, resp)
	require.Equal(t, "invalid_transition", payload.Error.Code)
}

func TestUpdateStatus_UnknownStatusValue(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPatch, "/orders/any/status", map[string]string{"status": "paid"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelOverHTTP_ReleasesStock(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 2})

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeJSON[orderPayload](t, resp)
	require.Equal(t, int64(8), f.ledger.Available("book-1"))

	cancel := f.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", map[string]string{"status": "cancelled"}, nil)
	require.Equal(t, http.StatusOK, cancel.StatusCode)
	cancel.Body.Close()

	require.Equal(t, int64(10), f.ledger.Available("book-1"))
}

func TestDeleteOrder(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeJSON[orderPayload](t, resp)

	del := f.do(t, http.MethodDelete, "/orders/"+order.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, del.StatusCode)
	del.Body.Close()

	// Удаление не возвращает остатки на склад.
	require.Equal(t, int64(9), f.ledger.Available("book-1"))

	again := f.do(t, http.MethodDelete, "/orders/"+order.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, again.StatusCode)
	again.Body.Close()
}

func TestListUserOrders(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 3; i++ {
		f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})
		resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := f.do(t, http.MethodGet, "/users/user-1/orders?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	orders := decodeJSON[[]orderPayload](t, resp)
	require.Len(t, orders, 2)

	all := f.do(t, http.MethodGet, "/orders", nil, nil)
	require.Equal(t, http.StatusOK, all.StatusCode)
	everything := decodeJSON[[]orderPayload](t, all)
	require.Len(t, everything, 3)

	bad := f.do(t, http.MethodGet, "/orders?limit=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
	bad.Body.Close()
}

func TestOrderTimelineOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.fillCart(t, "user-1", domain.CartLine{BookID: "book-1", Qty: 1})

	resp := f.do(t, http.MethodPost, "/users/user-1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeJSON[orderPayload](t, resp)

	confirm := f.do(t, http.MethodPatch, "/orders/"+order.ID+"/status", map[string]string{"status": "confirmed"}, nil)
	require.Equal(t, http.StatusOK, confirm.StatusCode)
	confirm.Body.Close()

	timeline := f.do(t, http.MethodGet, "/orders/"+order.ID+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, timeline.StatusCode)

	events := decodeJSON[[]struct {
		EventType string `json:"event_type"`
	}](t, timeline)
	require.Len(t, events, 2)
	require.Equal(t, "order.created", events[0].EventType)
	require.Equal(t, "order.status_changed", events[1].EventType)
}
