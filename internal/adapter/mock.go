package adapter

import (
	"context"
	"sync"

	"storefront-gateway/internal/model"
)

// Mock implements Adapter and Relay for testing.
// Each method can be configured via function fields; every call is counted
// by method name so tests can assert how many backend calls happened.
type Mock struct {
	ListRegionsFunc             func(ctx context.Context) ([]model.Region, error)
	ListCategoriesFunc          func(ctx context.Context, handle string) ([]model.Category, error)
	ListCollectionsFunc         func(ctx context.Context, handle string) ([]model.Collection, error)
	ListProductsFunc            func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error)
	CreateCartFunc              func(ctx context.Context, regionID string) (*model.Cart, error)
	RetrieveCartFunc            func(ctx context.Context, cartID string) (*model.Cart, error)
	UpdateCartFunc              func(ctx context.Context, cartID string, update model.CartUpdate) (*model.Cart, error)
	CreateLineItemFunc          func(ctx context.Context, cartID string, item model.AddLineItem) (*model.Cart, error)
	UpdateLineItemFunc          func(ctx context.Context, cartID, lineItemID string, update model.LineItemUpdate) (*model.Cart, error)
	DeleteLineItemFunc          func(ctx context.Context, cartID, lineItemID string) (bool, error)
	AddShippingMethodFunc       func(ctx context.Context, cartID, optionID string) (*model.Cart, error)
	CompleteCartFunc            func(ctx context.Context, cartID string) (*model.CompleteResult, error)
	RetrieveOrderFunc           func(ctx context.Context, orderID string) (*model.Order, error)
	ListCartShippingOptionsFunc func(ctx context.Context, cartID string) ([]model.ShippingOption, error)
	ListPaymentProvidersFunc    func(ctx context.Context, regionID string) ([]model.PaymentProvider, error)
	InitiatePaymentSessionFunc  func(ctx context.Context, cart *model.Cart, providerID string) (*model.PaymentCollection, error)
	RelayLineItemUpdateFunc     func(ctx context.Context, cartID, lineItemID string, body []byte) ([]byte, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *Mock) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was called.
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls returns the number of calls across all methods.
func (m *Mock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// ListRegions calls the configured ListRegionsFunc or returns no regions.
func (m *Mock) ListRegions(ctx context.Context) ([]model.Region, error) {
	m.record("ListRegions")
	if m.ListRegionsFunc != nil {
		return m.ListRegionsFunc(ctx)
	}
	return nil, nil
}

// ListCategories calls the configured ListCategoriesFunc or returns none.
func (m *Mock) ListCategories(ctx context.Context, handle string) ([]model.Category, error) {
	m.record("ListCategories")
	if m.ListCategoriesFunc != nil {
		return m.ListCategoriesFunc(ctx, handle)
	}
	return nil, nil
}

// ListCollections calls the configured ListCollectionsFunc or returns none.
func (m *Mock) ListCollections(ctx context.Context, handle string) ([]model.Collection, error) {
	m.record("ListCollections")
	if m.ListCollectionsFunc != nil {
		return m.ListCollectionsFunc(ctx, handle)
	}
	return nil, nil
}

// ListProducts calls the configured ListProductsFunc or returns an empty page.
func (m *Mock) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
	m.record("ListProducts")
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx, q)
	}
	return &model.ProductList{Products: []model.Product{}}, nil
}

// CreateCart calls the configured CreateCartFunc or returns an error.
func (m *Mock) CreateCart(ctx context.Context, regionID string) (*model.Cart, error) {
	m.record("CreateCart")
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx, regionID)
	}
	return nil, model.NewInternalError(nil)
}

// RetrieveCart calls the configured RetrieveCartFunc or returns not found.
func (m *Mock) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	m.record("RetrieveCart")
	if m.RetrieveCartFunc != nil {
		return m.RetrieveCartFunc(ctx, cartID)
	}
	return nil, model.NewNotFoundError("cart")
}

// UpdateCart calls the configured UpdateCartFunc or returns not found.
func (m *Mock) UpdateCart(ctx context.Context, cartID string, update model.CartUpdate) (*model.Cart, error) {
	m.record("UpdateCart")
	if m.UpdateCartFunc != nil {
		return m.UpdateCartFunc(ctx, cartID, update)
	}
	return nil, model.NewNotFoundError("cart")
}

// CreateLineItem calls the configured CreateLineItemFunc or returns not found.
func (m *Mock) CreateLineItem(ctx context.Context, cartID string, item model.AddLineItem) (*model.Cart, error) {
	m.record("CreateLineItem")
	if m.CreateLineItemFunc != nil {
		return m.CreateLineItemFunc(ctx, cartID, item)
	}
	return nil, model.NewNotFoundError("cart")
}

// UpdateLineItem calls the configured UpdateLineItemFunc or returns not found.
func (m *Mock) UpdateLineItem(ctx context.Context, cartID, lineItemID string, update model.LineItemUpdate) (*model.Cart, error) {
	m.record("UpdateLineItem")
	if m.UpdateLineItemFunc != nil {
		return m.UpdateLineItemFunc(ctx, cartID, lineItemID, update)
	}
	return nil, model.NewNotFoundError("line item")
}

// DeleteLineItem calls the configured DeleteLineItemFunc or returns not found.
func (m *Mock) DeleteLineItem(ctx context.Context, cartID, lineItemID string) (bool, error) {
	m.record("DeleteLineItem")
	if m.DeleteLineItemFunc != nil {
		return m.DeleteLineItemFunc(ctx, cartID, lineItemID)
	}
	return false, model.NewNotFoundError("line item")
}

// AddShippingMethod calls the configured AddShippingMethodFunc or returns not found.
func (m *Mock) AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error) {
	m.record("AddShippingMethod")
	if m.AddShippingMethodFunc != nil {
		return m.AddShippingMethodFunc(ctx, cartID, optionID)
	}
	return nil, model.NewNotFoundError("shipping option")
}

// CompleteCart calls the configured CompleteCartFunc or returns not found.
func (m *Mock) CompleteCart(ctx context.Context, cartID string) (*model.CompleteResult, error) {
	m.record("CompleteCart")
	if m.CompleteCartFunc != nil {
		return m.CompleteCartFunc(ctx, cartID)
	}
	return nil, model.NewNotFoundError("cart")
}

// RetrieveOrder calls the configured RetrieveOrderFunc or returns not found.
func (m *Mock) RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error) {
	m.record("RetrieveOrder")
	if m.RetrieveOrderFunc != nil {
		return m.RetrieveOrderFunc(ctx, orderID)
	}
	return nil, model.NewNotFoundError("order")
}

// ListCartShippingOptions calls the configured func or returns none.
func (m *Mock) ListCartShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
	m.record("ListCartShippingOptions")
	if m.ListCartShippingOptionsFunc != nil {
		return m.ListCartShippingOptionsFunc(ctx, cartID)
	}
	return nil, nil
}

// ListPaymentProviders calls the configured func or returns none.
func (m *Mock) ListPaymentProviders(ctx context.Context, regionID string) ([]model.PaymentProvider, error) {
	m.record("ListPaymentProviders")
	if m.ListPaymentProvidersFunc != nil {
		return m.ListPaymentProvidersFunc(ctx, regionID)
	}
	return nil, nil
}

// InitiatePaymentSession calls the configured func or returns an error.
func (m *Mock) InitiatePaymentSession(ctx context.Context, cart *model.Cart, providerID string) (*model.PaymentCollection, error) {
	m.record("InitiatePaymentSession")
	if m.InitiatePaymentSessionFunc != nil {
		return m.InitiatePaymentSessionFunc(ctx, cart, providerID)
	}
	return nil, model.NewInternalError(nil)
}

// RelayLineItemUpdate calls the configured func or returns an error.
func (m *Mock) RelayLineItemUpdate(ctx context.Context, cartID, lineItemID string, body []byte) ([]byte, error) {
	m.record("RelayLineItemUpdate")
	if m.RelayLineItemUpdateFunc != nil {
		return m.RelayLineItemUpdateFunc(ctx, cartID, lineItemID, body)
	}
	return nil, model.NewInternalError(nil)
}

// Verify Mock implements the interfaces at compile time.
var (
	_ Adapter = (*Mock)(nil)
	_ Relay   = (*Mock)(nil)
)
