package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"storefront-gateway/internal/model"
	"storefront-gateway/internal/session"
)

// pageResponse is the data a storefront page renders from. Every page
// carries the store title, the resolved country and the country list for
// the country selector.
type pageResponse struct {
	Store       string          `json:"store"`
	Page        string          `json:"page"`
	CountryCode string          `json:"country_code"`
	RegionID    string          `json:"region_id"`
	Countries   []model.Country `json:"countries"`
	Data        interface{}     `json:"data"`
}

// productPage is one page of a product listing.
type productPage struct {
	Products []model.Product `json:"products"`
	Count    int             `json:"count"`
	Page     int             `json:"page"`
	PerPage  int             `json:"per_page"`
	Pages    int             `json:"pages"`
}

// renderPage writes page data for the resolved session.
func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, page string, data interface{}) {
	sess := h.sessionOf(w, r)
	regions, err := h.catalog.Regions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	countries := model.CountriesFromRegions(regions)
	if countries == nil {
		countries = []model.Country{}
	}

	h.writeJSON(w, http.StatusOK, pageResponse{
		Store:       h.opts.StoreTitle,
		Page:        page,
		CountryCode: sess.CountryCode(),
		RegionID:    sess.RegionID(),
		Countries:   countries,
		Data:        data,
	})
}

// handleHome serves the homepage: featured collections with products.
// GET /{countryCode}
func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionOf(w, r)
	sections, err := h.catalog.Homepage(r.Context(), sess.RegionID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "home", map[string]interface{}{"sections": sections})
}

// handleStore serves the full product listing.
// GET /{countryCode}/store?page=N&order=...
func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listProducts(r, h.sessionOf(w, r), model.ProductQuery{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "store", listing)
}

// handleProduct serves one product.
// GET /{countryCode}/products/{handle}
func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionOf(w, r)
	handle := chi.URLParam(r, "handle")

	product, err := h.catalog.ProductByHandle(r.Context(), navigationScope(r), handle, sess.RegionID())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "product", map[string]interface{}{"product": product})
}

// handleCollection serves a collection with its products.
// GET /{countryCode}/collections/{handle}
func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	col, err := h.catalog.CollectionByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	listing, err := h.listProducts(r, h.sessionOf(w, r), model.ProductQuery{CollectionID: col.ID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "collection", map[string]interface{}{
		"collection": col,
		"listing":    listing,
	})
}

// handleCategory serves a category with its products.
// GET /{countryCode}/categories/{handle}
func (h *Handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := h.catalog.CategoryByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	listing, err := h.listProducts(r, h.sessionOf(w, r), model.ProductQuery{CategoryID: cat.ID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "category", map[string]interface{}{
		"category": cat,
		"listing":  listing,
	})
}

// handleCartPage serves the cart in the session's region.
// GET /{countryCode}/cart
func (h *Handler) handleCartPage(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.CachedCart(r.Context(), h.sessionOf(w, r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "cart", map[string]interface{}{"cart": c})
}

// checkoutData is what the checkout page needs in one response.
type checkoutData struct {
	Cart             *model.Cart             `json:"cart"`
	ShippingOptions  []model.ShippingOption  `json:"shipping_options"`
	PaymentProviders []model.PaymentProvider `json:"payment_providers"`
}

// handleCheckoutPage serves the cart with its shipping options and the
// region's payment providers, fetched concurrently.
// GET /{countryCode}/checkout
func (h *Handler) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionOf(w, r)
	data, err := h.checkout(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "checkout", data)
}

func (h *Handler) checkout(ctx context.Context, sess *session.Session) (*checkoutData, error) {
	data := &checkoutData{
		ShippingOptions:  []model.ShippingOption{},
		PaymentProviders: []model.PaymentProvider{},
	}

	c, err := h.carts.CachedCart(ctx, sess)
	if err != nil {
		return nil, err
	}
	data.Cart = c
	if c == nil {
		return data, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts, err := h.catalog.ShippingOptions(gctx, c.ID)
		if err == nil && opts != nil {
			data.ShippingOptions = opts
		}
		return err
	})
	g.Go(func() error {
		providers, err := h.catalog.PaymentProviders(gctx, c.RegionID)
		if err == nil && providers != nil {
			data.PaymentProviders = providers
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// handleOrderPage serves a placed order.
// GET /{countryCode}/order/{orderId}
func (h *Handler) handleOrderPage(w http.ResponseWriter, r *http.Request) {
	order, err := h.catalog.Order(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderPage(w, r, "order", map[string]interface{}{"order": order})
}

// listProducts fetches one page of products priced for the session's
// region. page is 1-based; invalid values fall back to the first page.
func (h *Handler) listProducts(r *http.Request, sess *session.Session, q model.ProductQuery) (*productPage, error) {
	perPage := h.catalog.ProductsPerPage()
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 1 {
		page = p
	}

	q.RegionID = sess.RegionID()
	q.Limit = perPage
	q.Offset = (page - 1) * perPage
	q.Order = r.URL.Query().Get("order")

	list, err := h.catalog.Products(r.Context(), q)
	if err != nil {
		return nil, err
	}

	h.logger.DebugContext(r.Context(), "listed products",
		slog.Int("page", page),
		slog.Int("count", list.Count),
	)

	products := list.Products
	if products == nil {
		products = []model.Product{}
	}
	return &productPage{
		Products: products,
		Count:    list.Count,
		Page:     page,
		PerPage:  perPage,
		Pages:    (list.Count + perPage - 1) / perPage,
	}, nil
}
