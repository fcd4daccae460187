package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront-gateway/internal/model"
	"storefront-gateway/internal/reconcile"
)

// cartResponse wraps a cart; Cart is null when the session has none.
type cartResponse struct {
	Cart *model.Cart `json:"cart"`
}

// addLineItemRequest is the body of POST /api/cart/line-items.
type addLineItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// syncLineItemsRequest is the body of PUT /api/cart/line-items.
type syncLineItemsRequest struct {
	Items []reconcile.DesiredItem `json:"items"`
}

// handleRegions lists regions with their countries.
// GET /api/regions
func (h *Handler) handleRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.catalog.Regions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if regions == nil {
		regions = []model.Region{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"regions": regions})
}

// handleGetCart returns the session's cart, or null.
// GET /api/cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.CachedCart(r.Context(), h.sessionOf(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleCreateCart returns the session's cart, creating one if needed.
// POST /api/cart
func (h *Handler) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RetrieveOrCreateCart(r.Context(), h.sessionOf(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleUpdateCart applies a partial update (email, addresses, promo codes).
// PATCH /api/cart
func (h *Handler) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req model.CartUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.UpdateCart(r.Context(), h.sessionOf(w, r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleAddLineItem adds a variant, incrementing an existing row.
// POST /api/cart/line-items
func (h *Handler) handleAddLineItem(w http.ResponseWriter, r *http.Request) {
	var req addLineItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.VariantID == "" {
		h.writeError(w, r, model.NewValidationError("variant_id", "required"))
		return
	}

	h.logger.InfoContext(r.Context(), "adding line item",
		slog.String("variant_id", req.VariantID),
		slog.Int("quantity", req.Quantity),
	)

	c, err := h.carts.UpdateOrCreateLineItem(r.Context(), h.sessionOf(w, r), req.VariantID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleSyncLineItems converges the cart's line items to the desired set.
// PUT /api/cart/line-items
func (h *Handler) handleSyncLineItems(w http.ResponseWriter, r *http.Request) {
	var req syncLineItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.carts.SyncLineItems(r.Context(), h.sessionOf(w, r), req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleDeleteLineItem removes a line item.
// DELETE /api/cart/line-items/{lineItemId}
func (h *Handler) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	lineItemID := chi.URLParam(r, "lineItemId")
	deleted, err := h.carts.DeleteLineItem(r.Context(), h.sessionOf(w, r), lineItemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      lineItemID,
		"deleted": deleted,
	})
}

// handleAddShippingMethod attaches a shipping option.
// POST /api/cart/shipping-methods
func (h *Handler) handleAddShippingMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OptionID string `json:"option_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.OptionID == "" {
		h.writeError(w, r, model.NewValidationError("option_id", "required"))
		return
	}
	c, err := h.carts.AddShippingMethod(r.Context(), h.sessionOf(w, r), req.OptionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleInitiatePaymentSession starts a payment session.
// POST /api/cart/payment-sessions
func (h *Handler) handleInitiatePaymentSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pc, err := h.carts.InitiatePaymentSession(r.Context(), h.sessionOf(w, r), req.ProviderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payment_collection": pc})
}

// handleCompleteCart places the order. A refused completion is returned
// with status 200 as a result of type "cart" carrying the backend's reason.
// POST /api/cart/complete
func (h *Handler) handleCompleteCart(w http.ResponseWriter, r *http.Request) {
	result, err := h.carts.CompleteOrder(r.Context(), h.sessionOf(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// handleShippingOptions lists the cart's shipping options.
// GET /api/cart/shipping-options
func (h *Handler) handleShippingOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.catalog.ShippingOptions(r.Context(), h.sessionOf(w, r).CartID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if opts == nil {
		opts = []model.ShippingOption{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"shipping_options": opts})
}

// handlePaymentProviders lists the session region's payment providers.
// GET /api/payment-providers
func (h *Handler) handlePaymentProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.catalog.PaymentProviders(r.Context(), h.sessionOf(w, r).RegionID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if providers == nil {
		providers = []model.PaymentProvider{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payment_providers": providers})
}

// relayMessage is the relay endpoint's own response shape.
type relayMessage struct {
	Message string `json:"message"`
}

// handleRelayLineItemUpdate forwards the browser's line-item update body to
// the backend and returns the backend's response body unmodified. Failures
// are logged and answered with a generic 500.
// POST /api/cart/line-item/{lineItemId}/update
func (h *Handler) handleRelayLineItemUpdate(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionOf(w, r)
	lineItemID := chi.URLParam(r, "lineItemId")
	if !sess.HasCart() || lineItemID == "" {
		h.writeJSON(w, http.StatusBadRequest, relayMessage{Message: "No cart found"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err == nil {
		body, err = h.carts.RelayLineItemUpdate(r.Context(), sess, h.relay, lineItemID, body)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "error while relaying line item update",
			slog.String("cart_id", sess.CartID()),
			slog.String("line_item_id", lineItemID),
			slog.String("error", err.Error()),
		)
		h.writeJSON(w, http.StatusInternalServerError, relayMessage{Message: "Internal Server Error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
