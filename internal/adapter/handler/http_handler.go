package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/croplink/marketplace/internal/core/domain"
	"github.com/croplink/marketplace/internal/core/service"
	"github.com/croplink/marketplace/internal/port"
)

// buyerHeader carries the authenticated buyer id from the identity provider.
// The core trusts it and performs no authentication of its own.
const buyerHeader = "X-Buyer-ID"

type HTTPHandler struct {
	cart        *service.CartService
	checkout    *service.CheckoutService
	fulfillment *service.FulfillmentService
	orders      port.OrderRepository
}

func NewHTTPHandler(cart *service.CartService, checkout *service.CheckoutService, fulfillment *service.FulfillmentService, orders port.OrderRepository) *HTTPHandler {
	return &HTTPHandler{cart: cart, checkout: checkout, fulfillment: fulfillment, orders: orders}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Post("/cart/add", h.AddToCart)
		r.Put("/cart/update", h.UpdateCartLine)
		r.Delete("/cart/remove", h.RemoveCartLine)
		r.Get("/cart", h.GetCart)
		r.Post("/checkout/build", h.BuildCheckout)
		r.Post("/checkout/commit", h.CommitCheckout)
		r.Get("/orders/{orderID}", h.GetOrder)
	})
	return r
}

type cartLineRequest struct {
	ItemID   string               `json:"item_id"`
	ItemType domain.ItemType      `json:"item_type"`
	Quantity int                  `json:"quantity"`
	Window   *domain.RentalWindow `json:"rental_window,omitempty"`
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	line, err := h.cart.Add(r.Context(), buyerID, req.ItemID, req.ItemType, req.Quantity, req.Window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (h *HTTPHandler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	key := domain.LineKey{ItemID: req.ItemID, ItemType: req.ItemType, Window: req.Window}
	line, err := h.cart.UpdateQuantity(r.Context(), buyerID, key, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *HTTPHandler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	key := domain.LineKey{ItemID: req.ItemID, ItemType: req.ItemType, Window: req.Window}
	if err := h.cart.Remove(r.Context(), buyerID, key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartViewResponse struct {
	Line      domain.CartLine `json:"line"`
	Name      string          `json:"name"`
	UnitPrice string          `json:"unit_price"`
	LineTotal string          `json:"line_total"`
	Available int             `json:"available"`
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	views, err := h.cart.List(r.Context(), buyerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]cartViewResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, cartViewResponse{
			Line:      v.Line,
			Name:      v.Name,
			UnitPrice: v.UnitPrice.StringFixed(2),
			LineTotal: v.LineTotal.StringFixed(2),
			Available: v.Available,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type buildCheckoutRequest struct {
	SelectedLines []domain.LineKey    `json:"selected_lines"`
	DeliveryMode  domain.DeliveryMode `json:"delivery_mode"`
}

func (h *HTTPHandler) BuildCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req buildCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	session, err := h.checkout.Build(r.Context(), buyerID, req.SelectedLines, req.DeliveryMode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type commitCheckoutRequest struct {
	Session        *domain.CheckoutSession `json:"session"`
	PaymentMethod  string                  `json:"payment_method"`
	IdempotencyKey string                  `json:"idempotency_key"`
}

func (h *HTTPHandler) CommitCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req commitCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	order, err := h.fulfillment.Commit(r.Context(), buyerID, req.Session, req.PaymentMethod, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func buyerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	buyerID := r.Header.Get(buyerHeader)
	if buyerID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + buyerHeader + " header"})
		return "", false
	}
	return buyerID, true
}

type errorResponse struct {
	Error     string `json:"error"`
	ItemID    string `json:"item_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var availErr *domain.AvailabilityError

	switch {
	case errors.As(err, &availErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			ItemID:    availErr.ItemID,
			Available: &availErr.Available,
		})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
	case errors.Is(err, service.ErrEmptySelection):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
