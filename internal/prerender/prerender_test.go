package prerender

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/model"
)

func TestRoutes(t *testing.T) {
	mock := &adapter.Mock{
		ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
			return []model.Region{
				{ID: "reg_eu", Countries: []model.Country{{ISO2: "fr"}, {ISO2: "de"}}},
				{ID: "reg_eu2", Countries: []model.Country{{ISO2: "FR"}}},
			}, nil
		},
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			return &model.ProductList{Products: []model.Product{{Handle: "shirt"}}, Count: 1}, nil
		},
		ListCollectionsFunc: func(ctx context.Context, handle string) ([]model.Collection, error) {
			return []model.Collection{{Handle: "sale"}}, nil
		},
		ListCategoriesFunc: func(ctx context.Context, handle string) ([]model.Category, error) {
			return []model.Category{{Handle: "tops"}, {Handle: ""}}, nil
		},
	}

	routes, err := Routes(context.Background(), mock)
	require.NoError(t, err)

	want := []string{
		"/de", "/de/account", "/de/cart", "/de/categories/tops", "/de/checkout",
		"/de/collections/sale", "/de/products/shirt", "/de/store",
		"/fr", "/fr/account", "/fr/cart", "/fr/categories/tops", "/fr/checkout",
		"/fr/collections/sale", "/fr/products/shirt", "/fr/store",
	}
	assert.Equal(t, want, routes)
}

func TestRoutesPagesProducts(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		withCount bool
		wantCalls int
	}{
		{"count reported", pageSize + 3, true, 2},
		{"count omitted", pageSize + 3, false, 2},
		{"count omitted full last page", 2 * pageSize, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &adapter.Mock{
				ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
					return []model.Region{{ID: "reg_us", Countries: []model.Country{{ISO2: "us"}}}}, nil
				},
				ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
					var products []model.Product
					for i := q.Offset; i < tt.total && i < q.Offset+q.Limit; i++ {
						products = append(products, model.Product{Handle: fmt.Sprintf("p%03d", i)})
					}
					list := &model.ProductList{Products: products, Offset: q.Offset, Limit: q.Limit}
					if tt.withCount {
						list.Count = tt.total
					}
					return list, nil
				},
			}

			routes, err := Routes(context.Background(), mock)
			require.NoError(t, err)

			assert.Len(t, routes, len(countryPages)+tt.total)
			assert.Contains(t, routes, fmt.Sprintf("/us/products/p%03d", tt.total-1))
			assert.Equal(t, tt.wantCalls, mock.Calls("ListProducts"))
		})
	}
}

func TestRoutesBackendError(t *testing.T) {
	mock := &adapter.Mock{
		ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := Routes(context.Background(), mock)

	assert.ErrorContains(t, err, "listing regions")
}
