package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/switix/bookstore/internal/domain"
)

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	BookIDs []string `json:"book_ids,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeDomainError транслирует ошибки ядра в HTTP-статусы.
// Конфликты состояния (недостаток остатков, недопустимый переход,
// optimistic lock) отдаются как 409, ошибки входных данных как 422.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: errorBody{
			Code:    "insufficient_stock",
			Message: insufficient.Error(),
			BookIDs: insufficient.BookIDs,
		}})
		return
	}

	var invalidTransition *domain.InvalidTransitionError
	if errors.As(err, &invalidTransition) {
		h.writeError(w, http.StatusConflict, "invalid_transition", invalidTransition.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		h.writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrOrderVersionConflict):
		h.writeError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, domain.ErrBookNotFound):
		h.writeError(w, http.StatusUnprocessableEntity, "book_not_found", err.Error())
	case errors.Is(err, domain.ErrShipmentMethodNotFound):
		h.writeError(w, http.StatusUnprocessableEntity, "shipment_method_not_found", err.Error())
	case errors.Is(err, domain.ErrPayMethodNotFound):
		h.writeError(w, http.StatusUnprocessableEntity, "pay_method_not_found", err.Error())
	default:
		h.logger.WithError(err).Error("internal error while handling request")
		h.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}
