// Package adapter defines the interface over the commerce backend store API.
// The gateway orchestrates calls through it; catalog, pricing, inventory and
// payment logic all live behind it.
package adapter

import (
	"context"

	"storefront-gateway/internal/model"
)

// Adapter abstracts the store API operations the gateway depends on.
//
// Implementations return model types and *model.APIError for backend
// failures, preserving the backend's own error code. Nothing is retried.
type Adapter interface {
	// ListRegions returns every region with its countries.
	ListRegions(ctx context.Context) ([]model.Region, error)

	// ListCategories returns categories, optionally filtered by handle.
	ListCategories(ctx context.Context, handle string) ([]model.Category, error)

	// ListCollections returns collections, optionally filtered by handle.
	ListCollections(ctx context.Context, handle string) ([]model.Collection, error)

	// ListProducts returns a page of products priced for q.RegionID.
	ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductList, error)

	// CreateCart creates an empty cart scoped to regionID.
	CreateCart(ctx context.Context, regionID string) (*model.Cart, error)

	// RetrieveCart fetches a cart with items, region, promotions,
	// shipping methods and computed totals expanded.
	RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error)

	// UpdateCart applies a partial update.
	UpdateCart(ctx context.Context, cartID string, update model.CartUpdate) (*model.Cart, error)

	// CreateLineItem inserts a line item.
	CreateLineItem(ctx context.Context, cartID string, item model.AddLineItem) (*model.Cart, error)

	// UpdateLineItem changes a line item.
	UpdateLineItem(ctx context.Context, cartID, lineItemID string, update model.LineItemUpdate) (*model.Cart, error)

	// DeleteLineItem removes a line item and reports the backend's confirmation.
	DeleteLineItem(ctx context.Context, cartID, lineItemID string) (bool, error)

	// AddShippingMethod attaches a shipping option to the cart.
	AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error)

	// CompleteCart places the order. A refused completion is a result, not an error.
	CompleteCart(ctx context.Context, cartID string) (*model.CompleteResult, error)

	// RetrieveOrder fetches an order with payments and items expanded.
	RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error)

	// ListCartShippingOptions returns the shipping options available to a cart.
	ListCartShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error)

	// ListPaymentProviders returns the payment providers enabled for a region.
	ListPaymentProviders(ctx context.Context, regionID string) ([]model.PaymentProvider, error)

	// InitiatePaymentSession starts a provider session on the cart's payment
	// collection, creating the collection when the cart has none.
	InitiatePaymentSession(ctx context.Context, cart *model.Cart, providerID string) (*model.PaymentCollection, error)
}

// Relay forwards a raw request body to the store API and returns the raw
// response body. Used by the line-item relay endpoint, which must hand the
// backend response to the browser verbatim.
type Relay interface {
	RelayLineItemUpdate(ctx context.Context, cartID, lineItemID string, body []byte) ([]byte, error)
}
