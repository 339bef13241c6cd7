package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletlink/internal/backend"
	"github.com/alanyoungcy/walletlink/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (service.PlaceOrderOutput, error)
	CancelOrder(ctx context.Context, userID, orderID string) (backend.CancelOrderResult, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logHandler(logger, "order")}
}

// PlaceOrder signs and submits an order for a linked account.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var in service.PlaceOrderInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.UserID == "" || in.TokenID == "" {
		writeError(w, http.StatusBadRequest, "user_id and token_id are required")
		return
	}

	out, err := h.orders.PlaceOrder(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type cancelOrderRequest struct {
	UserID string `json:"user_id"`
}

// CancelOrder cancels an existing order by its ID.
// POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	var req cancelOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := h.orders.CancelOrder(r.Context(), req.UserID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
