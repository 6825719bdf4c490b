// Package http serves the maker-facing REST surface. Everything it returns
// is secret-free: the only inbound field that ever contains a secret is the
// submission body, and that is handed straight to the relayer service.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/order"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/relayer"
)

// OrderService is the slice of the relayer service the REST surface needs.
type OrderService interface {
	Submit(ctx context.Context, o *model.Order) (*relayer.Receipt, error)
	Orders() []*model.PublicOrder
	Order(orderID string) (*relayer.Detail, error)
	Counts() map[model.OrderStatus]int
}

// Handler routes the REST endpoints.
type Handler struct {
	svc    OrderService
	logger *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(svc OrderService, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.Named("http")}
}

// Router returns the configured mux.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.submitOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /health", h.health)
	return mux
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.svc.Submit(r.Context(), &o)
	if err != nil {
		switch {
		case order.IsValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, registry.ErrDuplicateOrder):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("submission failed", zap.String("orderId", o.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) listOrders(w http.ResponseWriter, _ *http.Request) {
	orders := h.svc.Orders()
	if orders == nil {
		orders = []*model.PublicOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Order(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, relayer.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("order lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type healthResponse struct {
	Status string         `json:"status"`
	Orders map[string]int `json:"orders"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[string]int)
	for status, n := range h.svc.Counts() {
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Orders: counts})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
