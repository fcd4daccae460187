// MCP transport handler using the official MCP Go SDK.
// Exposes region and cart operations as MCP tools for agents.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-gateway/internal/model"
	"storefront-gateway/internal/reconcile"
	"storefront-gateway/internal/session"
)

// === MCP Tool Input/Output Types ===
// Agents have no cookies: every cart tool takes the session explicitly as
// country_code and cart_id. Outputs are flat views with arrays always
// present, since tool output is validated against the inferred schema.

// SessionInput identifies the agent's storefront session.
type SessionInput struct {
	CountryCode string `json:"country_code,omitempty" jsonschema:"ISO 3166-1 alpha-2 country code; the store default when omitted"`
	CartID      string `json:"cart_id,omitempty" jsonschema:"cart id returned by a previous tool call"`
}

// ListRegionsInput is the input schema for list_regions.
type ListRegionsInput struct{}

// GetCartInput is the input schema for get_cart.
type GetCartInput struct {
	SessionInput
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	SessionInput
	VariantID string `json:"variant_id" jsonschema:"product variant id"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"quantity to add; defaults to 1"`
}

// SetCartItemsInput is the input schema for set_cart_items.
type SetCartItemsInput struct {
	SessionInput
	Items []reconcile.DesiredItem `json:"items" jsonschema:"complete desired line items; variants left out are removed"`
}

// RemoveLineItemInput is the input schema for remove_line_item.
type RemoveLineItemInput struct {
	SessionInput
	LineItemID string `json:"line_item_id" jsonschema:"line item id"`
}

// CompleteCartInput is the input schema for complete_cart.
type CompleteCartInput struct {
	SessionInput
}

// CountryOutput is one country served by the store.
type CountryOutput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	RegionID string `json:"region_id"`
}

// RegionsOutput is the output of list_regions.
type RegionsOutput struct {
	DefaultCountry string          `json:"default_country"`
	Countries      []CountryOutput `json:"countries"`
}

// CartItemOutput is one cart line.
type CartItemOutput struct {
	ID        string  `json:"id"`
	VariantID string  `json:"variant_id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// CartOutput is a cart summary.
type CartOutput struct {
	ID            string           `json:"id"`
	CountryCode   string           `json:"country_code"`
	RegionID      string           `json:"region_id"`
	CurrencyCode  string           `json:"currency_code"`
	Items         []CartItemOutput `json:"items"`
	Subtotal      float64          `json:"subtotal"`
	ShippingTotal float64          `json:"shipping_total"`
	TaxTotal      float64          `json:"tax_total"`
	DiscountTotal float64          `json:"discount_total"`
	Total         float64          `json:"total"`
}

// RemoveLineItemOutput is the output of remove_line_item.
type RemoveLineItemOutput struct {
	Deleted bool        `json:"deleted"`
	Cart    *CartOutput `json:"cart,omitempty"`
}

// CompleteCartOutput is the output of complete_cart.
type CompleteCartOutput struct {
	Completed bool        `json:"completed"`
	OrderID   string      `json:"order_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Cart      *CartOutput `json:"cart,omitempty"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-gateway",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart operations. Call list_regions to pick a country, " +
				"then add_to_cart; pass the returned cart id and country code to later calls.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_regions",
		Description: "List the countries the store sells to and the default country.",
	}, h.mcpListRegions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get a cart, moved to the country's region if needed.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a variant to the cart, creating the cart when no cart_id is given. Adding a variant already in the cart increases its quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_cart_items",
		Description: "Replace the cart's line items with the given variants and quantities.",
	}, h.mcpSetCartItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_line_item",
		Description: "Remove one line item from the cart.",
	}, h.mcpRemoveLineItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_cart",
		Description: "Place the order for a cart. Reports the backend's reason when the order is refused.",
	}, h.mcpCompleteCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListRegions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListRegionsInput,
) (*mcp.CallToolResult, *RegionsOutput, error) {
	regions, err := h.catalog.Regions(ctx)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	def, err := h.resolver.Current(ctx, "")
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}

	out := &RegionsOutput{DefaultCountry: def.ISO2, Countries: []CountryOutput{}}
	for _, c := range model.CountriesFromRegions(regions) {
		out.Countries = append(out.Countries, CountryOutput{
			Code:     c.ISO2,
			Name:     c.DisplayName,
			RegionID: c.RegionID,
		})
	}
	return nil, out, nil
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	sess, err := h.mcpSession(ctx, input.SessionInput)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	c, err := h.carts.RetrieveCart(ctx, sess)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	if c == nil {
		return nil, nil, h.mcpError(ctx, model.NewNoCartError(""))
	}
	return nil, cartOutput(c, sess), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.VariantID == "" {
		return nil, nil, fmt.Errorf("variant_id is required")
	}
	sess, err := h.mcpSession(ctx, input.SessionInput)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	c, err := h.carts.UpdateOrCreateLineItem(ctx, sess, input.VariantID, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, cartOutput(c, sess), nil
}

func (h *Handler) mcpSetCartItems(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetCartItemsInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	sess, err := h.mcpSession(ctx, input.SessionInput)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	c, err := h.carts.SyncLineItems(ctx, sess, input.Items)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	return nil, cartOutput(c, sess), nil
}

func (h *Handler) mcpRemoveLineItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveLineItemInput,
) (*mcp.CallToolResult, *RemoveLineItemOutput, error) {
	if input.LineItemID == "" {
		return nil, nil, fmt.Errorf("line_item_id is required")
	}
	sess, err := h.mcpSession(ctx, input.SessionInput)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	deleted, err := h.carts.DeleteLineItem(ctx, sess, input.LineItemID)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}

	out := &RemoveLineItemOutput{Deleted: deleted}
	if c, err := h.carts.Fetch(ctx, sess); err == nil && c != nil {
		out.Cart = cartOutput(c, sess)
	}
	return nil, out, nil
}

func (h *Handler) mcpCompleteCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CompleteCartInput,
) (*mcp.CallToolResult, *CompleteCartOutput, error) {
	sess, err := h.mcpSession(ctx, input.SessionInput)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}
	result, err := h.carts.CompleteOrder(ctx, sess)
	if err != nil {
		return nil, nil, h.mcpError(ctx, err)
	}

	out := &CompleteCartOutput{Completed: result.Completed()}
	if out.Completed {
		out.OrderID = result.Order.ID
		return nil, out, nil
	}
	if result.Error != nil {
		out.Reason = result.Error.Message
	}
	if result.Cart != nil {
		out.Cart = cartOutput(result.Cart, sess)
	}
	return nil, out, nil
}

// mcpSession builds the session for one tool call and resolves its country.
func (h *Handler) mcpSession(ctx context.Context, in SessionInput) (*session.Session, error) {
	sess := session.New(in.CountryCode, in.CartID)
	country, err := h.resolver.Current(ctx, sess.PersistedCountry())
	if err != nil {
		return nil, err
	}
	sess.SetCountry(country)
	return sess, nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(ctx context.Context, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.ErrorContext(ctx, "mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// cartOutput flattens a cart for agents.
func cartOutput(c *model.Cart, sess *session.Session) *CartOutput {
	out := &CartOutput{
		ID:            c.ID,
		CountryCode:   sess.CountryCode(),
		RegionID:      c.RegionID,
		CurrencyCode:  c.CurrencyCode,
		Items:         make([]CartItemOutput, 0, len(c.Items)),
		Subtotal:      c.Subtotal,
		ShippingTotal: c.ShippingTotal,
		TaxTotal:      c.TaxTotal,
		DiscountTotal: c.DiscountTotal,
		Total:         c.Total,
	}
	for _, it := range c.Items {
		out.Items = append(out.Items, CartItemOutput{
			ID:        it.ID,
			VariantID: it.VariantID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
		})
	}
	return out
}
