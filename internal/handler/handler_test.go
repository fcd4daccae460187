package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/cart"
	"storefront-gateway/internal/catalog"
	"storefront-gateway/internal/middleware"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/region"
	"storefront-gateway/internal/session"
)

func testRegions() []model.Region {
	return []model.Region{
		{ID: "reg_eu", Countries: []model.Country{
			{ISO2: "fr", DisplayName: "France"},
			{ISO2: "de", DisplayName: "Germany"},
		}},
		{ID: "reg_us", Countries: []model.Country{{ISO2: "us", DisplayName: "United States"}}},
	}
}

// withRegions fills in the region listing every resolved request needs.
func withRegions(mock *adapter.Mock) *adapter.Mock {
	if mock.ListRegionsFunc == nil {
		mock.ListRegionsFunc = func(ctx context.Context) ([]model.Region, error) {
			return testRegions(), nil
		}
	}
	return mock
}

func testHandlerWith(mock *adapter.Mock, limiter *middleware.RateLimiter) (*Handler, http.Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	withRegions(mock)

	c := cache.New(cache.NewMemoryStore(100), cache.Options{Logger: logger})
	svc := catalog.NewService(mock, c, catalog.Config{ProductsPerPage: 4}, logger)
	h := New(Deps{
		Catalog:  svc,
		Carts:    cart.NewManager(mock, c, logger),
		Resolver: region.NewResolver(svc, "fr", logger),
		Relay:    mock,
		Limiter:  limiter,
	}, Options{StoreTitle: "Test Store"}, logger)
	return h, h.Router()
}

func testHandler(mock *adapter.Mock) (*Handler, http.Handler) {
	return testHandlerWith(mock, nil)
}

func cookieValue(w *httptest.ResponseRecorder, name string) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp), "body: %s", body)
	return resp.Error.Code
}

func withCartCookie(req *http.Request, cartID string) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.CartCookie, Value: cartID})
	return req
}

func TestHandleHealth(t *testing.T) {
	_, router := testHandler(&adapter.Mock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := testHandler(&adapter.Mock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storefront_http_inflight_requests")
}

func TestPageRedirects(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		cookie       string
		wantLocation string
	}{
		{"root goes to default", "/", "", "/fr"},
		{"root goes to persisted", "/", "de", "/de"},
		{"path without country", "/store", "", "/fr/store"},
		{"unknown country replaced", "/zz/products/shirt?v=1", "", "/fr/products/shirt?v=1"},
		{"persisted wins over url", "/us/store", "de", "/de/store"},
		{"stale persisted ignored", "/products/shirt", "jp", "/fr/products/shirt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := testHandler(&adapter.Mock{})

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: session.CountryCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusFound, w.Code, "body: %s", w.Body.String())
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestRedirectPersistsCountry(t *testing.T) {
	_, router := testHandler(&adapter.Mock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "fr", cookieValue(w, session.CountryCookie))
}

func TestStorePage(t *testing.T) {
	var gotQuery model.ProductQuery
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			gotQuery = q
			return &model.ProductList{
				Products: []model.Product{{ID: "prod_1", Handle: "shirt"}},
				Count:    9,
			}, nil
		},
	}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/de/store?page=2", nil))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "reg_eu", gotQuery.RegionID)
	assert.Equal(t, 4, gotQuery.Limit)
	assert.Equal(t, 4, gotQuery.Offset)

	var resp struct {
		Store       string      `json:"store"`
		Page        string      `json:"page"`
		CountryCode string      `json:"country_code"`
		Countries   []any       `json:"countries"`
		Data        productPage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Test Store", resp.Store)
	assert.Equal(t, "store", resp.Page)
	assert.Equal(t, "de", resp.CountryCode)
	assert.Len(t, resp.Countries, 3)
	assert.Equal(t, 3, resp.Data.Pages)
	assert.Equal(t, 2, resp.Data.Page)
	assert.Equal(t, "de", cookieValue(w, session.CountryCookie))
}

func TestProductPageNotFound(t *testing.T) {
	_, router := testHandler(&adapter.Mock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/fr/products/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w.Body.Bytes()))
}

// slowShirtBackend blocks the "shirt" lookup until it is cancelled or
// released, and answers every other handle immediately.
func slowShirtBackend(started, release chan struct{}) *adapter.Mock {
	return &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			if q.Handle == "shirt" {
				close(started)
				select {
				case <-release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return &model.ProductList{Products: []model.Product{{ID: "prod_" + q.Handle, Handle: q.Handle}}}, nil
		},
	}
}

func productRequest(handle, remoteAddr, navKey string) *http.Request {
	req := httptest.NewRequest("GET", "/fr/products/"+handle, nil)
	req.RemoteAddr = remoteAddr
	if navKey != "" {
		req.Header.Set(NavigationHeader, navKey)
	}
	return req
}

func TestProductLookupsFromSharedAddressAreIndependent(t *testing.T) {
	tests := []struct {
		name     string
		shirtKey string
		mugKey   string
	}{
		{"no navigation key", "", ""},
		{"different tabs", "tab-1", "tab-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started, release := make(chan struct{}), make(chan struct{})
			_, router := testHandler(slowShirtBackend(started, release))

			shirt := httptest.NewRecorder()
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.ServeHTTP(shirt, productRequest("shirt", "203.0.113.7:40001", tt.shirtKey))
			}()
			<-started

			mug := httptest.NewRecorder()
			router.ServeHTTP(mug, productRequest("mug", "203.0.113.7:40002", tt.mugKey))
			close(release)
			wg.Wait()

			assert.Equal(t, http.StatusOK, mug.Code)
			assert.Equal(t, http.StatusOK, shirt.Code, "body: %s", shirt.Body.String())
		})
	}
}

func TestSupersededProductLookupHasNoErrorBody(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	_, router := testHandler(slowShirtBackend(started, release))

	shirt := httptest.NewRecorder()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(shirt, productRequest("shirt", "203.0.113.7:40001", "tab-1"))
	}()
	<-started

	mug := httptest.NewRecorder()
	router.ServeHTTP(mug, productRequest("mug", "203.0.113.7:40002", "tab-1"))
	wg.Wait()

	assert.Equal(t, http.StatusOK, mug.Code)
	assert.Equal(t, statusClientClosedRequest, shirt.Code)
	assert.Empty(t, shirt.Body.String())
}

func TestPagesWithoutRegionsAreConfigErrors(t *testing.T) {
	mock := &adapter.Mock{
		ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
			return []model.Region{}, nil
		},
	}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Location"), "no redirect")
	assert.Equal(t, "CONFIGURATION_ERROR", errorCode(t, w.Body.Bytes()))
}

func TestRegionsRefetchedAfterBackendFix(t *testing.T) {
	fixed := false
	mock := &adapter.Mock{
		ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
			if !fixed {
				return []model.Region{}, nil
			}
			return testRegions(), nil
		},
	}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	fixed = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/fr", w.Header().Get("Location"))
	assert.Equal(t, 2, mock.Calls("ListRegions"))
}

func TestCheckoutPage(t *testing.T) {
	mock := &adapter.Mock{
		RetrieveCartFunc: func(ctx context.Context, cartID string) (*model.Cart, error) {
			return &model.Cart{ID: cartID, RegionID: "reg_eu"}, nil
		},
		ListCartShippingOptionsFunc: func(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
			return []model.ShippingOption{{ID: "so_1", Name: "Standard"}}, nil
		},
		ListPaymentProvidersFunc: func(ctx context.Context, regionID string) ([]model.PaymentProvider, error) {
			return []model.PaymentProvider{{ID: "pp_system_default"}}, nil
		},
	}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, withCartCookie(httptest.NewRequest("GET", "/fr/checkout", nil), "cart_1"))

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	var resp struct {
		Data checkoutData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Cart)
	assert.Equal(t, "cart_1", resp.Data.Cart.ID)
	assert.Len(t, resp.Data.ShippingOptions, 1)
	assert.Len(t, resp.Data.PaymentProviders, 1)
}

func TestGetCartWithoutCart(t *testing.T) {
	mock := &adapter.Mock{}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/cart", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cart":null}`, w.Body.String())
	assert.Equal(t, 0, mock.Calls("RetrieveCart"))
}

func TestGetCartFromSessionHeader(t *testing.T) {
	var gotID string
	mock := &adapter.Mock{
		RetrieveCartFunc: func(ctx context.Context, cartID string) (*model.Cart, error) {
			gotID = cartID
			return &model.Cart{ID: cartID, RegionID: "reg_eu"}, nil
		},
	}
	_, router := testHandler(mock)

	req := httptest.NewRequest("GET", "/api/cart", nil)
	req.Header.Set(session.Header, `country="de", cart="cart_9"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "cart_9", gotID)
	assert.Contains(t, w.Header().Get(session.Header), `country="de"`)
}

func TestAddLineItemCreatesCart(t *testing.T) {
	carts := map[string]*model.Cart{}
	mock := &adapter.Mock{
		CreateCartFunc: func(ctx context.Context, regionID string) (*model.Cart, error) {
			c := &model.Cart{ID: "cart_1", RegionID: regionID}
			carts[c.ID] = c
			return c, nil
		},
		RetrieveCartFunc: func(ctx context.Context, cartID string) (*model.Cart, error) {
			c, ok := carts[cartID]
			if !ok {
				return nil, model.NewNotFoundError("cart")
			}
			return c, nil
		},
		CreateLineItemFunc: func(ctx context.Context, cartID string, item model.AddLineItem) (*model.Cart, error) {
			c := carts[cartID]
			c.Items = append(c.Items, model.LineItem{ID: "li_1", VariantID: item.VariantID, Quantity: item.Quantity})
			return c, nil
		},
	}
	_, router := testHandler(mock)

	req := httptest.NewRequest("POST", "/api/cart/line-items", strings.NewReader(`{"variant_id":"var_1","quantity":2}`))
	req.AddCookie(&http.Cookie{Name: session.CountryCookie, Value: "de"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, "cart_1", cookieValue(w, session.CartCookie))

	var resp cartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Cart)
	require.Len(t, resp.Cart.Items, 1)
	assert.Equal(t, 2, resp.Cart.Items[0].Quantity)
	assert.Equal(t, "reg_eu", carts["cart_1"].RegionID)
}

func TestAddLineItemValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing variant", `{"quantity":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &adapter.Mock{}
			_, router := testHandler(mock)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("POST", "/api/cart/line-items", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w.Body.Bytes()))
			assert.Equal(t, 0, mock.Calls("CreateCart"))
		})
	}
}

func TestMutationsWithoutCart(t *testing.T) {
	tests := []struct {
		method, path, body string
	}{
		{"DELETE", "/api/cart/line-items/li_1", ""},
		{"PATCH", "/api/cart", `{"email":"a@example.com"}`},
		{"POST", "/api/cart/shipping-methods", `{"option_id":"so_1"}`},
		{"POST", "/api/cart/payment-sessions", `{"provider_id":"pp_1"}`},
		{"POST", "/api/cart/complete", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			mock := &adapter.Mock{}
			_, router := testHandler(mock)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", w.Body.String())
			assert.Equal(t, "NO_CART", errorCode(t, w.Body.Bytes()))
			assert.Equal(t, 0, mock.TotalCalls()-mock.Calls("ListRegions"), "cart backend calls")
		})
	}
}

func TestCompleteCartRefused(t *testing.T) {
	mock := &adapter.Mock{
		CompleteCartFunc: func(ctx context.Context, cartID string) (*model.CompleteResult, error) {
			return &model.CompleteResult{
				Type:  "cart",
				Cart:  &model.Cart{ID: cartID},
				Error: &model.CompletionError{Message: "Payment authorization failed"},
			}, nil
		},
	}
	_, router := testHandler(mock)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, withCartCookie(httptest.NewRequest("POST", "/api/cart/complete", nil), "cart_1"))

	require.Equal(t, http.StatusOK, w.Code)
	var result model.CompleteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "cart", result.Type)
	require.NotNil(t, result.Error, "refusal passed through")
	assert.Equal(t, "Payment authorization failed", result.Error.Message)
}

func TestBackendErrorCodePreserved(t *testing.T) {
	mock := &adapter.Mock{
		RetrieveCartFunc: func(ctx context.Context, cartID string) (*model.Cart, error) {
			return &model.Cart{ID: cartID, RegionID: "reg_eu"}, nil
		},
		AddShippingMethodFunc: func(ctx context.Context, cartID, optionID string) (*model.Cart, error) {
			return nil, model.NewBackendError(http.StatusBadRequest, "invalid_data", "Shipping option not available")
		},
	}
	_, router := testHandler(mock)

	req := httptest.NewRequest("POST", "/api/cart/shipping-methods", strings.NewReader(`{"option_id":"so_x"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, withCartCookie(req, "cart_1"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_data", errorCode(t, w.Body.Bytes()))
}

func TestRateLimitedMutations(t *testing.T) {
	limiter := middleware.NewRateLimiter(0.001, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, router := testHandlerWith(&adapter.Mock{}, limiter)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("POST", "/api/cart/complete", nil))
	require.NotEqual(t, http.StatusTooManyRequests, first.Code, "first request limited")

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("POST", "/api/cart/complete", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Reads are not limited.
	read := httptest.NewRecorder()
	router.ServeHTTP(read, httptest.NewRequest("GET", "/api/regions", nil))
	assert.Equal(t, http.StatusOK, read.Code)
}

func TestRelayLineItemUpdate(t *testing.T) {
	const upstream = `{"cart":{"id":"cart_1","items":[{"id":"li_1","quantity":3}]},"unmodeled":true}`

	tests := []struct {
		name       string
		cartCookie string
		relayErr   error
		wantStatus int
		wantBody   string
	}{
		{"no cart", "", nil, http.StatusBadRequest, `{"message":"No cart found"}`},
		{"verbatim success", "cart_1", nil, http.StatusOK, upstream},
		{"backend failure", "cart_1", model.NewBackendError(400, "invalid_data", "bad quantity"), http.StatusInternalServerError, `{"message":"Internal Server Error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody string
			mock := &adapter.Mock{
				RelayLineItemUpdateFunc: func(ctx context.Context, cartID, lineItemID string, body []byte) ([]byte, error) {
					gotBody = string(body)
					if tt.relayErr != nil {
						return nil, tt.relayErr
					}
					return []byte(upstream), nil
				},
			}
			_, router := testHandler(mock)

			req := httptest.NewRequest("POST", "/api/cart/line-item/li_1/update", bytes.NewReader([]byte(`{"quantity":3}`)))
			if tt.cartCookie != "" {
				req = withCartCookie(req, tt.cartCookie)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(w.Body.String()))
			if tt.cartCookie == "" {
				assert.Equal(t, 0, mock.Calls("RelayLineItemUpdate"), "relay called without a cart")
			} else {
				assert.Equal(t, `{"quantity":3}`, gotBody, "forwarded body")
			}
		})
	}
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})

	w := httptest.NewRecorder()
	h.writeError(w, httptest.NewRequest("GET", "/", nil), io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "unexpected EOF", "body leaks internal error")
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w.Body.Bytes()))
}

func TestWriteErrorAbandonedRequest(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	h.writeError(w, httptest.NewRequest("GET", "/", nil).WithContext(ctx), context.Canceled)

	assert.Equal(t, statusClientClosedRequest, w.Code)
	assert.Empty(t, w.Body.String())
}
