package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"storefront/internal/auth"
	"storefront/internal/order"
)

type OrderHandler struct {
	svc    *order.Service
	logger *slog.Logger
}

func NewOrderHandler(svc *order.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger}
}

func orderIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	return id, err == nil && id > 0
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress string `json:"shippingAddress"`
	}
	// Body is optional, but a body that is present must parse.
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.CreateOrder(auth.UserID(r.Context()), req.ShippingAddress)
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "Cart is empty")
	case err != nil:
		h.logger.Error("create order", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusCreated, o)
	}
}

func (h *OrderHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID int64 `json:"orderId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.OrderID == 0 {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	intent, err := h.svc.CreatePaymentIntent(req.OrderID)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrPaymentAlreadyProcessed):
		writeError(w, http.StatusBadRequest, "Order payment already processed")
	case err != nil:
		h.logger.Error("create payment intent", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusCreated, intent)
	}
}

func (h *OrderHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		PaymentIntentID string `json:"paymentIntentId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.PaymentIntentID == "" {
		writeError(w, http.StatusBadRequest, "paymentIntentId is required")
		return
	}

	o, err := h.svc.ProcessPayment(orderID, req.PaymentIntentID)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case err != nil:
		h.logger.Error("process payment", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.GetOrder(orderID, auth.UserID(r.Context()))
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case err != nil:
		h.logger.Error("get order", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.CancelOrder(orderID, auth.UserID(r.Context()))
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, order.ErrOrderNotCancellable):
		writeError(w, http.StatusBadRequest, "Order cannot be cancelled")
	case err != nil:
		h.logger.Error("cancel order", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *OrderHandler) AddTracking(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		TrackingNumber string `json:"trackingNumber"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TrackingNumber == "" {
		writeError(w, http.StatusBadRequest, "trackingNumber is required")
		return
	}

	o, err := h.svc.AddTracking(orderID, req.TrackingNumber)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case err != nil:
		h.logger.Error("add tracking", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to process request")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}
