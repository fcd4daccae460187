package catalog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/model"
)

func newTestService(mock *adapter.Mock, cfg Config) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(cache.NewMemoryStore(100), cache.Options{Logger: logger})
	return NewService(mock, c, cfg, logger)
}

func TestRegionsCachedUntilInvalidated(t *testing.T) {
	mock := &adapter.Mock{
		ListRegionsFunc: func(ctx context.Context) ([]model.Region, error) {
			return []model.Region{{ID: "reg_eu"}}, nil
		},
	}
	s := newTestService(mock, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		regions, err := s.Regions(ctx)
		require.NoError(t, err)
		assert.Len(t, regions, 1)
	}
	assert.Equal(t, 1, mock.Calls("ListRegions"))

	require.NoError(t, s.InvalidateRegions(ctx))
	_, err := s.Regions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls("ListRegions"))
}

func TestCategoryByHandle(t *testing.T) {
	var gotHandle string
	mock := &adapter.Mock{
		ListCategoriesFunc: func(ctx context.Context, handle string) ([]model.Category, error) {
			gotHandle = handle
			if handle == "shirts" {
				return []model.Category{{ID: "pcat_1", Handle: "shirts", Name: "Shirts"}}, nil
			}
			return []model.Category{}, nil
		},
	}
	s := newTestService(mock, Config{})

	cat, err := s.CategoryByHandle(context.Background(), "shirts")
	require.NoError(t, err)
	assert.Equal(t, "Shirts", cat.Name)
	assert.Equal(t, "shirts", gotHandle)

	_, err = s.CategoryByHandle(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.CategoryByHandle(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestCollectionByHandle(t *testing.T) {
	mock := &adapter.Mock{
		ListCollectionsFunc: func(ctx context.Context, handle string) ([]model.Collection, error) {
			return []model.Collection{{ID: "pcol_1", Handle: handle, Title: "Sale"}}, nil
		},
	}
	s := newTestService(mock, Config{})

	col, err := s.CollectionByHandle(context.Background(), "sale")
	require.NoError(t, err)
	assert.Equal(t, "pcol_1", col.ID)
}

func TestProductsDefaultsPageSize(t *testing.T) {
	var got model.ProductQuery
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			got = q
			return &model.ProductList{Products: []model.Product{{ID: "prod_1"}}, Count: 1}, nil
		},
	}
	s := newTestService(mock, Config{})

	page, err := s.Products(context.Background(), model.ProductQuery{RegionID: "reg_eu"})
	require.NoError(t, err)
	assert.Len(t, page.Products, 1)
	assert.Equal(t, DefaultProductsPerPage, got.Limit)
	assert.Equal(t, "reg_eu", got.RegionID)

	// A second identical listing is served from the cache.
	_, err = s.Products(context.Background(), model.ProductQuery{RegionID: "reg_eu"})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Calls("ListProducts"))
}

func TestProductByHandleAlwaysRevalidates(t *testing.T) {
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			return &model.ProductList{Products: []model.Product{{ID: "prod_1", Handle: q.Handle}}}, nil
		},
	}
	s := newTestService(mock, Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := s.ProductByHandle(ctx, "10.0.0.1", "shirt", "reg_eu")
		require.NoError(t, err)
		assert.Equal(t, "prod_1", p.ID)
	}
	assert.Equal(t, 2, mock.Calls("ListProducts"))
}

func TestProductByHandleNotFound(t *testing.T) {
	s := newTestService(&adapter.Mock{}, Config{})

	_, err := s.ProductByHandle(context.Background(), "c", "nope", "reg_eu")

	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProductByHandleSupersededLookupCancelled(t *testing.T) {
	started := make(chan struct{})
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			if q.Handle == "slow" {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &model.ProductList{Products: []model.Product{{ID: "prod_fast", Handle: q.Handle}}}, nil
		},
	}
	s := newTestService(mock, Config{})

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = s.ProductByHandle(context.Background(), "client-a", "slow", "reg_eu")
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("slow lookup never started")
	}

	p, err := s.ProductByHandle(context.Background(), "client-a", "fast", "reg_eu")
	require.NoError(t, err)
	assert.Equal(t, "prod_fast", p.ID)

	wg.Wait()
	assert.ErrorIs(t, slowErr, cache.ErrSuperseded)
}

func TestProductByHandleWithoutScopeNeverSupersedes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			if q.Handle == "slow" {
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
	s := newTestService(mock, Config{})

	var wg sync.WaitGroup
	var slow *model.Product
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow, slowErr = s.ProductByHandle(context.Background(), "", "slow", "reg_eu")
	}()
	<-started

	_, err := s.ProductByHandle(context.Background(), "", "fast", "reg_eu")
	require.NoError(t, err)
	close(release)
	wg.Wait()

	require.NoError(t, slowErr)
	assert.Equal(t, "prod_slow", slow.ID)
}

func TestShippingOptionsWithoutCart(t *testing.T) {
	mock := &adapter.Mock{}
	s := newTestService(mock, Config{})

	opts, err := s.ShippingOptions(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, opts)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestPaymentProvidersWithoutRegion(t *testing.T) {
	mock := &adapter.Mock{}
	s := newTestService(mock, Config{})

	providers, err := s.PaymentProviders(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.Equal(t, 0, mock.TotalCalls())
}

func TestPaymentProviders(t *testing.T) {
	mock := &adapter.Mock{
		ListPaymentProvidersFunc: func(ctx context.Context, regionID string) ([]model.PaymentProvider, error) {
			return []model.PaymentProvider{{ID: "pp_system_default"}}, nil
		},
	}
	s := newTestService(mock, Config{})

	providers, err := s.PaymentProviders(context.Background(), "reg_eu")

	require.NoError(t, err)
	assert.Equal(t, []model.PaymentProvider{{ID: "pp_system_default"}}, providers)
}

func TestOrder(t *testing.T) {
	mock := &adapter.Mock{
		RetrieveOrderFunc: func(ctx context.Context, orderID string) (*model.Order, error) {
			return &model.Order{ID: orderID, DisplayID: 7}, nil
		},
	}
	s := newTestService(mock, Config{})

	order, err := s.Order(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, 7, order.DisplayID)

	_, err = s.Order(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestHomepage(t *testing.T) {
	mock := &adapter.Mock{
		ListCollectionsFunc: func(ctx context.Context, handle string) ([]model.Collection, error) {
			if handle == "missing" {
				return nil, nil
			}
			return []model.Collection{{ID: "pcol_" + handle, Handle: handle}}, nil
		},
		ListProductsFunc: func(ctx context.Context, q model.ProductQuery) (*model.ProductList, error) {
			return &model.ProductList{Products: []model.Product{{ID: "prod_in_" + q.CollectionID}}}, nil
		},
	}
	s := newTestService(mock, Config{HomepageCollections: []string{"latest-drops", "missing", "sale"}, ProductsPerPage: 2})

	sections, err := s.Homepage(context.Background(), "reg_eu")

	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "latest-drops", sections[0].Collection.Handle)
	assert.Equal(t, "sale", sections[1].Collection.Handle)
	assert.Equal(t, "prod_in_pcol_sale", sections[1].Products[0].ID)
}

func TestHomepageBackendError(t *testing.T) {
	mock := &adapter.Mock{
		ListCollectionsFunc: func(ctx context.Context, handle string) ([]model.Collection, error) {
			return nil, model.NewUpstreamError("store API", context.DeadlineExceeded)
		},
	}
	s := newTestService(mock, Config{HomepageCollections: []string{"sale"}})

	_, err := s.Homepage(context.Background(), "reg_eu")

	assert.ErrorIs(t, err, model.ErrUpstreamError)
}
