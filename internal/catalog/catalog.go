// Package catalog serves the storefront's read-side data: categories,
// collections, products, orders, shipping options and payment providers.
// Each lookup declares its cache policy here.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/model"
)

// Cache keys for static data.
const (
	regionsKey     = "regions"
	categoriesKey  = "categories"
	collectionsKey = "collections"
)

// DefaultProductsPerPage is the listing page size when none is configured.
const DefaultProductsPerPage = 4

// Config holds catalog settings.
type Config struct {
	ProductsPerPage     int
	HomepageCollections []string
}

// Service fetches catalog data through the cache. Safe for concurrent use.
type Service struct {
	backend adapter.Adapter
	cache   *cache.Cache
	latest  *cache.Latest
	cfg     Config
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(backend adapter.Adapter, c *cache.Cache, cfg Config, logger *slog.Logger) *Service {
	if cfg.ProductsPerPage <= 0 {
		cfg.ProductsPerPage = DefaultProductsPerPage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		cache:   c,
		latest:  cache.NewLatest(),
		cfg:     cfg,
		logger:  logger,
	}
}

// ProductsPerPage returns the configured listing page size.
func (s *Service) ProductsPerPage() int {
	return s.cfg.ProductsPerPage
}

// Regions returns every region. Static until invalidated.
func (s *Service) Regions(ctx context.Context) ([]model.Region, error) {
	return cache.Fetch(ctx, s.cache, regionsKey, cache.StaticUntilInvalidated, s.backend.ListRegions)
}

// InvalidateRegions forces the next Regions call to refetch.
func (s *Service) InvalidateRegions(ctx context.Context) error {
	return s.cache.Invalidate(ctx, regionsKey)
}

// Categories returns every category. Static until invalidated.
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	return cache.Fetch(ctx, s.cache, categoriesKey, cache.StaticUntilInvalidated, func(ctx context.Context) ([]model.Category, error) {
		return s.backend.ListCategories(ctx, "")
	})
}

// CategoryByHandle returns one category.
func (s *Service) CategoryByHandle(ctx context.Context, handle string) (*model.Category, error) {
	if handle == "" {
		return nil, model.NewValidationError("handle", "required")
	}
	list, err := cache.Fetch(ctx, s.cache, "category:"+handle, cache.StaticUntilInvalidated, func(ctx context.Context) ([]model.Category, error) {
		return s.backend.ListCategories(ctx, handle)
	})
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Handle == handle {
			return &list[i], nil
		}
	}
	return nil, model.NewNotFoundError("category")
}

// Collections returns every collection. Static until invalidated.
func (s *Service) Collections(ctx context.Context) ([]model.Collection, error) {
	return cache.Fetch(ctx, s.cache, collectionsKey, cache.StaticUntilInvalidated, func(ctx context.Context) ([]model.Collection, error) {
		return s.backend.ListCollections(ctx, "")
	})
}

// CollectionByHandle returns one collection.
func (s *Service) CollectionByHandle(ctx context.Context, handle string) (*model.Collection, error) {
	if handle == "" {
		return nil, model.NewValidationError("handle", "required")
	}
	list, err := cache.Fetch(ctx, s.cache, "collection:"+handle, cache.StaticUntilInvalidated, func(ctx context.Context) ([]model.Collection, error) {
		return s.backend.ListCollections(ctx, handle)
	})
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Handle == handle {
			return &list[i], nil
		}
	}
	return nil, model.NewNotFoundError("collection")
}

// Products returns a page of products. Stale while revalidating.
// A zero limit uses the configured page size.
func (s *Service) Products(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
	if q.Limit <= 0 {
		q.Limit = s.cfg.ProductsPerPage
	}
	return cache.Fetch(ctx, s.cache, productsKey(q), cache.StaleWhileRevalidate, func(ctx context.Context) (*model.ProductList, error) {
		return s.backend.ListProducts(ctx, q)
	})
}

// ProductByHandle returns one product priced for regionID. Always fetched
// fresh. A newer lookup in the same non-empty scope (one navigating client)
// cancels an older one still in flight, which then fails with
// cache.ErrSuperseded.
func (s *Service) ProductByHandle(ctx context.Context, scope, handle, regionID string) (*model.Product, error) {
	if handle == "" {
		return nil, model.NewValidationError("handle", "required")
	}
	if scope != "" {
		var done func()
		ctx, done = s.latest.Begin(ctx, "product:"+scope)
		defer done()
	}

	key := "product:" + handle + ":" + regionID
	list, err := cache.Fetch(ctx, s.cache, key, cache.AlwaysRevalidate, func(ctx context.Context) (*model.ProductList, error) {
		return s.backend.ListProducts(ctx, model.ProductQuery{Handle: handle, RegionID: regionID, Limit: 1})
	})
	if err != nil {
		if cache.Superseded(ctx) {
			return nil, cache.ErrSuperseded
		}
		return nil, err
	}
	for i := range list.Products {
		if list.Products[i].Handle == handle {
			return &list.Products[i], nil
		}
	}
	return nil, model.NewNotFoundError("product")
}

// Order returns a placed order. Always fetched fresh.
func (s *Service) Order(ctx context.Context, orderID string) (*model.Order, error) {
	if orderID == "" {
		return nil, model.NewValidationError("order_id", "required")
	}
	return cache.Fetch(ctx, s.cache, "order:"+orderID, cache.AlwaysRevalidate, func(ctx context.Context) (*model.Order, error) {
		return s.backend.RetrieveOrder(ctx, orderID)
	})
}

// ShippingOptions returns the options for a cart, or nil without a cart.
func (s *Service) ShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
	if cartID == "" {
		return nil, nil
	}
	return cache.Fetch(ctx, s.cache, "shipping-options:"+cartID, cache.AlwaysRevalidate, func(ctx context.Context) ([]model.ShippingOption, error) {
		return s.backend.ListCartShippingOptions(ctx, cartID)
	})
}

// PaymentProviders returns the providers for a region, or nil without one.
func (s *Service) PaymentProviders(ctx context.Context, regionID string) ([]model.PaymentProvider, error) {
	if regionID == "" {
		return nil, nil
	}
	return cache.Fetch(ctx, s.cache, "payment-providers:"+regionID, cache.AlwaysRevalidate, func(ctx context.Context) ([]model.PaymentProvider, error) {
		return s.backend.ListPaymentProviders(ctx, regionID)
	})
}

// HomepageSection is one featured collection with its first products.
type HomepageSection struct {
	Collection model.Collection `json:"collection"`
	Products   []model.Product  `json:"products"`
}

// Homepage returns the configured featured collections, in order, each with
// its first page of products priced for regionID. Collections the backend
// does not know are skipped.
func (s *Service) Homepage(ctx context.Context, regionID string) ([]HomepageSection, error) {
	sections := make([]*HomepageSection, len(s.cfg.HomepageCollections))

	g, gctx := errgroup.WithContext(ctx)
	for i, handle := range s.cfg.HomepageCollections {
		g.Go(func() error {
			col, err := s.CollectionByHandle(gctx, handle)
			if errors.Is(err, model.ErrNotFound) {
				s.logger.Debug("homepage collection not found", slog.String("handle", handle))
				return nil
			}
			if err != nil {
				return fmt.Errorf("homepage collection %s: %w", handle, err)
			}
			page, err := s.Products(gctx, model.ProductQuery{CollectionID: col.ID, RegionID: regionID})
			if err != nil {
				return fmt.Errorf("homepage products %s: %w", handle, err)
			}
			sections[i] = &HomepageSection{Collection: *col, Products: page.Products}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]HomepageSection, 0, len(sections))
	for _, sec := range sections {
		if sec != nil {
			out = append(out, *sec)
		}
	}
	return out, nil
}

func productsKey(q model.ProductQuery) string {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("region", q.RegionID)
	set("collection", q.CollectionID)
	set("category", q.CategoryID)
	set("handle", q.Handle)
	set("q", q.Q)
	set("order", q.Order)
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	return "products:" + v.Encode()
}
