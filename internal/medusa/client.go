// Package medusa implements adapter.Adapter against a Medusa-compatible
// commerce backend store API (/store/*).
package medusa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/model"
)

// storePath prefixes every store API endpoint.
const storePath = "/store"

// publishableKeyHeader identifies the storefront to the backend.
const publishableKeyHeader = "x-publishable-api-key"

// maxResponseBody bounds how much of a backend response is read.
const maxResponseBody = 8 << 20

// Field selections. The backend only expands relations named here.
const (
	regionFields     = "id,name,currency_code,countries.iso_2,countries.name,countries.display_name,countries.region_id"
	categoryFields   = "id,handle,name"
	collectionFields = "id,handle,title"
	productFields    = "*variants,*variants.calculated_price,+variants.inventory_quantity"
	cartFields       = "*items,*region,*items.product,*items.variant,*items.thumbnail,*items.metadata,+items.total,*promotions,+shipping_methods.name,*payment_collection"
	orderFields      = "*payment_collections.payments,*items,*items.metadata,*items.variant,*items.product"
)

// Config holds store API client configuration.
type Config struct {
	BaseURL        string
	PublishableKey string
	Transport      http.RoundTripper // nil uses http.DefaultTransport
	Timeout        time.Duration     // 0 uses 30s
}

// Client calls the store API. Safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	publishableKey string
}

// New creates a store API client. A missing base URL or publishable key is a
// configuration error: no backend-calling path may run without them.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, model.NewConfigError("missing commerce backend URL")
	}
	if cfg.PublishableKey == "" {
		return nil, model.NewConfigError("missing commerce backend publishable key")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, model.NewConfigError(fmt.Sprintf("invalid commerce backend URL: %v", err))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		publishableKey: cfg.PublishableKey,
	}, nil
}

// === Regions & catalog ===

// ListRegions returns every region with its countries.
func (c *Client) ListRegions(ctx context.Context) ([]model.Region, error) {
	var resp struct {
		Regions []model.Region `json:"regions"`
	}
	q := url.Values{"fields": {regionFields}, "limit": {"100"}}
	if err := c.do(ctx, "list_regions", http.MethodGet, "/regions", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Regions, nil
}

// ListCategories returns product categories, filtered by handle when set.
func (c *Client) ListCategories(ctx context.Context, handle string) ([]model.Category, error) {
	var resp struct {
		Categories []model.Category `json:"product_categories"`
	}
	q := url.Values{"fields": {categoryFields}}
	if handle != "" {
		q.Set("handle", handle)
	}
	if err := c.do(ctx, "list_categories", http.MethodGet, "/product-categories", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// ListCollections returns collections, filtered by handle when set.
func (c *Client) ListCollections(ctx context.Context, handle string) ([]model.Collection, error) {
	var resp struct {
		Collections []model.Collection `json:"collections"`
	}
	q := url.Values{"fields": {collectionFields}}
	if handle != "" {
		q.Set("handle", handle)
	}
	if err := c.do(ctx, "list_collections", http.MethodGet, "/collections", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Collections, nil
}

// ListProducts returns a page of products with region-priced variants.
func (c *Client) ListProducts(ctx context.Context, pq model.ProductQuery) (*model.ProductList, error) {
	var resp model.ProductList
	if err := c.do(ctx, "list_products", http.MethodGet, "/products", productQueryValues(pq), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Products == nil {
		resp.Products = []model.Product{}
	}
	return &resp, nil
}

func productQueryValues(pq model.ProductQuery) url.Values {
	q := url.Values{"fields": {productFields}}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("region_id", pq.RegionID)
	set("collection_id", pq.CollectionID)
	set("category_id", pq.CategoryID)
	set("handle", pq.Handle)
	set("q", pq.Q)
	set("order", pq.Order)
	if pq.Limit > 0 {
		q.Set("limit", strconv.Itoa(pq.Limit))
	}
	if pq.Offset > 0 {
		q.Set("offset", strconv.Itoa(pq.Offset))
	}
	return q
}

// === Cart ===

type cartResponse struct {
	Cart *model.Cart `json:"cart"`
}

// CreateCart creates a cart scoped to regionID.
func (c *Client) CreateCart(ctx context.Context, regionID string) (*model.Cart, error) {
	var resp cartResponse
	body := map[string]string{"region_id": regionID}
	if err := c.do(ctx, "create_cart", http.MethodPost, "/carts", cartQuery(), body, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// RetrieveCart fetches a cart with the expanded field set.
func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, "retrieve_cart", http.MethodGet, cartPath(cartID), cartQuery(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// UpdateCart applies a partial cart update.
func (c *Client) UpdateCart(ctx context.Context, cartID string, update model.CartUpdate) (*model.Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, "update_cart", http.MethodPost, cartPath(cartID), cartQuery(), update, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// CreateLineItem inserts a line item.
func (c *Client) CreateLineItem(ctx context.Context, cartID string, item model.AddLineItem) (*model.Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, "create_line_item", http.MethodPost, cartPath(cartID)+"/line-items", cartQuery(), item, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// UpdateLineItem changes a line item's quantity.
func (c *Client) UpdateLineItem(ctx context.Context, cartID, lineItemID string, update model.LineItemUpdate) (*model.Cart, error) {
	var resp cartResponse
	if err := c.do(ctx, "update_line_item", http.MethodPost, lineItemPath(cartID, lineItemID), cartQuery(), update, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// DeleteLineItem removes a line item and returns the deletion confirmation.
func (c *Client) DeleteLineItem(ctx context.Context, cartID, lineItemID string) (bool, error) {
	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Deleted bool   `json:"deleted"`
	}
	if err := c.do(ctx, "delete_line_item", http.MethodDelete, lineItemPath(cartID, lineItemID), nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// AddShippingMethod attaches a shipping option to the cart.
func (c *Client) AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error) {
	var resp cartResponse
	body := map[string]string{"option_id": optionID}
	if err := c.do(ctx, "add_shipping_method", http.MethodPost, cartPath(cartID)+"/shipping-methods", cartQuery(), body, &resp); err != nil {
		return nil, err
	}
	return resp.Cart, nil
}

// CompleteCart places the order. A refused completion comes back as a
// "cart" result carrying the backend's error, not as a Go error.
func (c *Client) CompleteCart(ctx context.Context, cartID string) (*model.CompleteResult, error) {
	var resp model.CompleteResult
	if err := c.do(ctx, "complete_cart", http.MethodPost, cartPath(cartID)+"/complete", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// === Orders, shipping, payment ===

// RetrieveOrder fetches an order with payments and items expanded.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var resp struct {
		Order *model.Order `json:"order"`
	}
	q := url.Values{"fields": {orderFields}}
	if err := c.do(ctx, "retrieve_order", http.MethodGet, "/orders/"+url.PathEscape(orderID), q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// ListCartShippingOptions returns the shipping options for a cart.
func (c *Client) ListCartShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
	var resp struct {
		ShippingOptions []model.ShippingOption `json:"shipping_options"`
	}
	q := url.Values{"cart_id": {cartID}}
	if err := c.do(ctx, "list_shipping_options", http.MethodGet, "/shipping-options", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ShippingOptions, nil
}

// ListPaymentProviders returns the payment providers enabled for a region.
func (c *Client) ListPaymentProviders(ctx context.Context, regionID string) ([]model.PaymentProvider, error) {
	var resp struct {
		PaymentProviders []model.PaymentProvider `json:"payment_providers"`
	}
	q := url.Values{"region_id": {regionID}}
	if err := c.do(ctx, "list_payment_providers", http.MethodGet, "/payment-providers", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.PaymentProviders, nil
}

// InitiatePaymentSession starts a provider session on the cart's payment
// collection. Carts without a collection get one first.
func (c *Client) InitiatePaymentSession(ctx context.Context, cart *model.Cart, providerID string) (*model.PaymentCollection, error) {
	if cart == nil {
		return nil, model.NewNoCartError("starting a payment session")
	}

	type collectionResponse struct {
		PaymentCollection *model.PaymentCollection `json:"payment_collection"`
	}

	collectionID := ""
	if cart.PaymentCollection != nil {
		collectionID = cart.PaymentCollection.ID
	}
	if collectionID == "" {
		var created collectionResponse
		body := map[string]string{"cart_id": cart.ID}
		if err := c.do(ctx, "create_payment_collection", http.MethodPost, "/payment-collections", nil, body, &created); err != nil {
			return nil, err
		}
		if created.PaymentCollection == nil || created.PaymentCollection.ID == "" {
			return nil, model.NewUpstreamError("store API", fmt.Errorf("payment collection missing from response"))
		}
		collectionID = created.PaymentCollection.ID
	}

	var resp collectionResponse
	body := map[string]string{"provider_id": providerID}
	path := "/payment-collections/" + url.PathEscape(collectionID) + "/payment-sessions"
	if err := c.do(ctx, "initiate_payment_session", http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.PaymentCollection, nil
}

// === Relay ===

// RelayLineItemUpdate forwards a raw line-item update body and returns the
// raw backend response. Any non-2xx response is an error.
func (c *Client) RelayLineItemUpdate(ctx context.Context, cartID, lineItemID string, body []byte) ([]byte, error) {
	status, respBody, err := c.send(ctx, "relay_update_line_item", http.MethodPost, lineItemPath(cartID, lineItemID), nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseErrorResponse(status, respBody)
	}
	return respBody, nil
}

// === Transport helpers ===

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	status, respBody, err := c.send(ctx, op, method, path, query, bodyReader)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseErrorResponse(status, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// send performs one store API request and returns status and body.
func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, body io.Reader) (int, []byte, error) {
	// Re-checked per request: a zero Client must not reach the network.
	if c.baseURL == "" || c.publishableKey == "" {
		return 0, nil, model.NewConfigError("commerce backend URL and publishable key are required")
	}

	endpoint := c.baseURL + storePath + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(op, 0, time.Since(start))
		return 0, nil, model.NewUpstreamError("store API", err)
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest(op, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s response: %w", op, err)
	}
	return resp.StatusCode, respBody, nil
}

// setHeaders sets the headers every store API request needs.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(publishableKeyHeader, c.publishableKey)
	if id := middleware.RequestIDFromContext(req.Context()); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}
}

// errorResponse is the store API error body.
type errorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseErrorResponse converts a store API error to an APIError. The backend's
// own error type is kept as the code so callers can branch on it.
func parseErrorResponse(statusCode int, body []byte) error {
	var wire errorResponse
	json.Unmarshal(body, &wire) // Best effort parse

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("store API rejected the publishable key")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("store API")
	}

	code := wire.Type
	if wire.Code != "" && code == "" {
		code = wire.Code
	}
	apiErr := model.NewBackendError(statusCode, code, wire.Message)
	switch {
	case statusCode == http.StatusNotFound:
		apiErr.Err = model.ErrNotFound
	case statusCode < 500:
		apiErr.Err = model.ErrInvalidRequest
	default:
		apiErr.StatusCode = http.StatusBadGateway
		apiErr.Err = fmt.Errorf("%w: status %d", model.ErrUpstreamError, statusCode)
	}
	return apiErr
}

func cartQuery() url.Values {
	return url.Values{"fields": {cartFields}}
}

func cartPath(cartID string) string {
	return "/carts/" + url.PathEscape(cartID)
}

func lineItemPath(cartID, lineItemID string) string {
	return cartPath(cartID) + "/line-items/" + url.PathEscape(lineItemID)
}

// Verify Client implements the interfaces at compile time.
var (
	_ adapter.Adapter = (*Client)(nil)
	_ adapter.Relay   = (*Client)(nil)
)
