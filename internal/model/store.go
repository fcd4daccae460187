// Package model defines the commerce backend store API data model and the
// error taxonomy shared by every layer of the gateway.
package model

// === Regions ===

// Country is a country served by one backend region.
// Sourced from the region listing and immutable within a session.
type Country struct {
	ISO2        string `json:"iso_2"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name"`
	RegionID    string `json:"region_id"`
}

// Region groups countries sharing currency, tax and shipping configuration.
type Region struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	CurrencyCode string    `json:"currency_code,omitempty"`
	Countries    []Country `json:"countries"`
}

// CountriesFromRegions flattens regions into their countries.
// A country missing its region_id inherits the enclosing region's id.
func CountriesFromRegions(regions []Region) []Country {
	var countries []Country
	for _, r := range regions {
		for _, c := range r.Countries {
			if c.RegionID == "" {
				c.RegionID = r.ID
			}
			countries = append(countries, c)
		}
	}
	return countries
}

// === Cart ===

// Cart is the backend-owned cart. The gateway never stores it; every read
// goes back to the backend.
type Cart struct {
	ID                string             `json:"id"`
	RegionID          string             `json:"region_id"`
	CurrencyCode      string             `json:"currency_code,omitempty"`
	Email             string             `json:"email,omitempty"`
	Items             []LineItem         `json:"items"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods,omitempty"`
	Promotions        []Promotion        `json:"promotions,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	Region            *Region            `json:"region,omitempty"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`

	ItemTotal     float64 `json:"item_total"`
	Subtotal      float64 `json:"subtotal"`
	ShippingTotal float64 `json:"shipping_total"`
	TaxTotal      float64 `json:"tax_total"`
	DiscountTotal float64 `json:"discount_total"`
	Total         float64 `json:"total"`
}

// FindItemByVariant returns the line item holding variantID, or nil.
func (c *Cart) FindItemByVariant(variantID string) *LineItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// LineItem is one product variant and quantity within a cart or order.
type LineItem struct {
	ID        string         `json:"id"`
	VariantID string         `json:"variant_id"`
	ProductID string         `json:"product_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Quantity  int            `json:"quantity"`
	UnitPrice float64        `json:"unit_price"`
	Total     float64        `json:"total,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ShippingMethod is a shipping option attached to a cart.
type ShippingMethod struct {
	ID               string  `json:"id"`
	Name             string  `json:"name,omitempty"`
	Amount           float64 `json:"amount"`
	ShippingOptionID string  `json:"shipping_option_id,omitempty"`
}

// Promotion is a promotion applied to a cart.
type Promotion struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
}

// Address is a postal address on a cart.
type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Province    string `json:"province,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// CartUpdate is a partial cart update. Zero fields are omitted.
type CartUpdate struct {
	RegionID        string   `json:"region_id,omitempty"`
	Email           string   `json:"email,omitempty"`
	PromoCodes      []string `json:"promo_codes,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
}

// AddLineItem inserts a variant into a cart.
type AddLineItem struct {
	VariantID string         `json:"variant_id"`
	Quantity  int            `json:"quantity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// LineItemUpdate changes an existing line item.
type LineItemUpdate struct {
	Quantity int `json:"quantity"`
}

// CompleteResult is the backend's completion outcome. Type "order" carries
// the placed order; type "cart" carries the cart and the reason completion
// was refused (payment not authorized, out of stock, ...).
type CompleteResult struct {
	Type  string           `json:"type"`
	Order *Order           `json:"order,omitempty"`
	Cart  *Cart            `json:"cart,omitempty"`
	Error *CompletionError `json:"error,omitempty"`
}

// Completed reports whether an order was placed.
func (r *CompleteResult) Completed() bool {
	return r != nil && r.Type == "order" && r.Order != nil
}

// CompletionError describes a backend-side completion refusal.
type CompletionError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
}

// === Catalog ===

// Category is a product category.
type Category struct {
	ID     string `json:"id,omitempty"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Collection is a product collection.
type Collection struct {
	ID     string `json:"id,omitempty"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// Product is a catalog product with region-priced variants.
type Product struct {
	ID           string    `json:"id"`
	Handle       string    `json:"handle"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	CollectionID string    `json:"collection_id,omitempty"`
	Variants     []Variant `json:"variants,omitempty"`
}

// Variant is a purchasable product variant.
type Variant struct {
	ID                string           `json:"id"`
	Title             string           `json:"title,omitempty"`
	SKU               string           `json:"sku,omitempty"`
	InventoryQuantity *int             `json:"inventory_quantity,omitempty"`
	CalculatedPrice   *CalculatedPrice `json:"calculated_price,omitempty"`
}

// CalculatedPrice is a variant price computed for a region.
type CalculatedPrice struct {
	CalculatedAmount float64 `json:"calculated_amount"`
	OriginalAmount   float64 `json:"original_amount,omitempty"`
	CurrencyCode     string  `json:"currency_code,omitempty"`
}

// ProductQuery filters a product listing. RegionID prices the variants.
type ProductQuery struct {
	RegionID     string `json:"region_id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	Handle       string `json:"handle,omitempty"`
	Q            string `json:"q,omitempty"`
	Order        string `json:"order,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// ProductList is one page of products.
type ProductList struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// === Orders, shipping, payment ===

// Order is a placed order.
type Order struct {
	ID                 string              `json:"id"`
	DisplayID          int                 `json:"display_id,omitempty"`
	Status             string              `json:"status,omitempty"`
	Email              string              `json:"email,omitempty"`
	CurrencyCode       string              `json:"currency_code,omitempty"`
	Items              []LineItem          `json:"items,omitempty"`
	Total              float64             `json:"total"`
	PaymentCollections []PaymentCollection `json:"payment_collections,omitempty"`
}

// ShippingOption is a fulfillment option available to a cart.
type ShippingOption struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	ProviderID string  `json:"provider_id,omitempty"`
}

// PaymentProvider is a payment provider enabled for a region.
type PaymentProvider struct {
	ID string `json:"id"`
}

// PaymentCollection groups the payment sessions of a cart.
type PaymentCollection struct {
	ID              string           `json:"id"`
	Status          string           `json:"status,omitempty"`
	Amount          float64          `json:"amount"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
	Payments        []Payment        `json:"payments,omitempty"`
}

// PaymentSession is a provider-specific payment attempt.
type PaymentSession struct {
	ID         string         `json:"id"`
	ProviderID string         `json:"provider_id"`
	Status     string         `json:"status,omitempty"`
	Amount     float64        `json:"amount"`
	Data       map[string]any `json:"data,omitempty"`
}

// Payment is a captured or authorized payment.
type Payment struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	ProviderID string  `json:"provider_id,omitempty"`
}
