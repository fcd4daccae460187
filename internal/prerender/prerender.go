// Package prerender enumerates the storefront's page routes for every
// country the backend serves, for static prerendering and cache warming.
package prerender

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/model"
)

// pageSize is the product page size used while paging the catalog.
const pageSize = 100

// countryPages are the fixed pages under each country prefix. "" is the
// country's home page.
var countryPages = []string{"", "account", "store", "cart", "checkout"}

// Routes lists every page route: the fixed pages plus one route per product,
// collection and category, under each country's prefix. The result is sorted
// and free of duplicates.
func Routes(ctx context.Context, backend adapter.Adapter) ([]string, error) {
	regions, err := backend.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing regions: %w", err)
	}
	products, err := allProducts(ctx, backend)
	if err != nil {
		return nil, err
	}
	collections, err := backend.ListCollections(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	categories, err := backend.ListCategories(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	seen := make(map[string]struct{})
	add := func(parts ...string) {
		route := "/" + strings.Join(parts, "/")
		route = strings.TrimSuffix(route, "/")
		seen[route] = struct{}{}
	}

	for _, country := range model.CountriesFromRegions(regions) {
		iso := strings.ToLower(country.ISO2)
		if iso == "" {
			continue
		}
		for _, page := range countryPages {
			add(iso, page)
		}
		for _, p := range products {
			if p.Handle != "" {
				add(iso, "products", p.Handle)
			}
		}
		for _, c := range collections {
			if c.Handle != "" {
				add(iso, "collections", c.Handle)
			}
		}
		for _, c := range categories {
			if c.Handle != "" {
				add(iso, "categories", c.Handle)
			}
		}
	}

	routes := make([]string, 0, len(seen))
	for r := range seen {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes, nil
}

// allProducts pages through the whole catalog.
func allProducts(ctx context.Context, backend adapter.Adapter) ([]model.Product, error) {
	var products []model.Product
	for offset := 0; ; offset += pageSize {
		page, err := backend.ListProducts(ctx, model.ProductQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("listing products: %w", err)
		}
		products = append(products, page.Products...)
		// Count is optional; without it a short page marks the end.
		if len(page.Products) < pageSize || (page.Count > 0 && offset+pageSize >= page.Count) {
			return products, nil
		}
	}
}
