// Package handler provides the gateway's HTTP surface: storefront page data,
// the cart API, the line-item relay and the MCP endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/cart"
	"storefront-gateway/internal/catalog"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/region"
	"storefront-gateway/internal/session"
)

// Deps are the services the handlers orchestrate.
type Deps struct {
	Catalog  *catalog.Service
	Carts    *cart.Manager
	Resolver *region.Resolver
	Relay    adapter.Relay

	// Limiter rate limits API mutations. nil disables limiting.
	Limiter *middleware.RateLimiter
}

// Options configures presentation and cookie behavior.
type Options struct {
	StoreTitle string
	Session    session.Options
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalog  *catalog.Service
	carts    *cart.Manager
	resolver *region.Resolver
	relay    adapter.Relay
	limiter  *middleware.RateLimiter
	opts     Options
	logger   *slog.Logger
}

// New creates a Handler.
func New(deps Deps, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		resolver: deps.Resolver,
		relay:    deps.Relay,
		limiter:  deps.Limiter,
		opts:     opts,
		logger:   logger,
	}
}

// Router builds the full route tree with the middleware chain:
// recovery → request id → real ip → logging → metrics → session.
// Recovery is outermost to catch panics from the other middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(h.logger),
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logging(h.logger),
		middleware.Metrics,
		session.Middleware(h.opts.Session),
	)

	r.Get("/health", h.handleHealth)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// MCP transport - JSON-RPC endpoint using the official MCP SDK
	r.Handle("/mcp", h.NewMCPHandler())

	r.Route("/api", h.apiRoutes)

	// Storefront pages. The resolver runs before routing inside the country
	// subtree, so unknown paths are still redirected into a country.
	resolve := h.resolver.Middleware(h.writeError)
	r.With(resolve).Get("/", h.handleHome)
	r.Route("/{countryCode}", func(r chi.Router) {
		r.Use(resolve)
		r.Get("/", h.handleHome)
		r.Get("/store", h.handleStore)
		r.Get("/products/{handle}", h.handleProduct)
		r.Get("/collections/{handle}", h.handleCollection)
		r.Get("/categories/{handle}", h.handleCategory)
		r.Get("/cart", h.handleCartPage)
		r.Get("/checkout", h.handleCheckoutPage)
		r.Get("/order/{orderId}", h.handleOrderPage)
	})

	return r
}

func (h *Handler) apiRoutes(r chi.Router) {
	// The relay reads only the cart id and needs no resolved country.
	r.With(h.limit).Post("/cart/line-item/{lineItemId}/update", h.handleRelayLineItemUpdate)

	r.Group(func(r chi.Router) {
		r.Use(h.resolver.Attach(h.writeError))

		r.Get("/regions", h.handleRegions)
		r.Get("/cart", h.handleGetCart)
		r.Get("/cart/shipping-options", h.handleShippingOptions)
		r.Get("/payment-providers", h.handlePaymentProviders)

		r.Group(func(r chi.Router) {
			r.Use(h.limit)
			r.Post("/cart", h.handleCreateCart)
			r.Patch("/cart", h.handleUpdateCart)
			r.Post("/cart/line-items", h.handleAddLineItem)
			r.Put("/cart/line-items", h.handleSyncLineItems)
			r.Delete("/cart/line-items/{lineItemId}", h.handleDeleteLineItem)
			r.Post("/cart/shipping-methods", h.handleAddShippingMethod)
			r.Post("/cart/payment-sessions", h.handleInitiatePaymentSession)
			r.Post("/cart/complete", h.handleCompleteCart)
		})
	})
}

// limit applies the rate limiter when one is configured.
func (h *Handler) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Handler(next)
}

// healthResponse is the liveness payload.
type healthResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
// Its signature matches region.ErrorWriter.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	// Nobody reads a superseded or abandoned response.
	if errors.Is(err, cache.ErrSuperseded) || r.Context().Err() != nil {
		h.logger.DebugContext(r.Context(), "request abandoned",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(statusClientClosedRequest)
		return
	}

	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
	} else if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// statusClientClosedRequest is nginx's status for a response nobody waits for.
const statusClientClosedRequest = 499

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// sessionOf returns the request's session. The session middleware always
// attaches one; the fallback keeps handlers usable when mounted alone.
func (h *Handler) sessionOf(w http.ResponseWriter, r *http.Request) *session.Session {
	if s := session.FromContext(r.Context()); s != nil {
		return s
	}
	return session.FromRequest(w, r, h.opts.Session)
}

// NavigationHeader carries a client-chosen key, one per browsing tab. Page
// lookups sharing a key supersede each other.
const NavigationHeader = "Storefront-Navigation"

// navigationScope identifies one navigating client for superseding lookups.
// Requests without a navigation key are never superseded.
func navigationScope(r *http.Request) string {
	key := r.Header.Get(NavigationHeader)
	if key == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host + "|" + key
}
