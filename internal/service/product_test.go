package service

import (
	"context"
	"testing"
	"time"

	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productFixture struct {
	svc      *ProductService
	products *repository.SQLProductRepository
	fetcher  *mockFetcher
}

func newProductFixture(t *testing.T) *productFixture {
	t.Helper()
	products := repository.NewSQLProductRepository(newTestDB(t))
	fetcher := &mockFetcher{fetchFn: func(ctx context.Context, artikul string) (*model.ProductDetails, error) {
		return &model.ProductDetails{Artikul: artikul, Name: "Mug", StandardPrice: 100, SellPrice: 80, TotalQuantity: 3, Rating: 4.5}, nil
	}}
	return &productFixture{
		svc:      NewProductService(products, fetcher),
		products: products,
		fetcher:  fetcher,
	}
}

func TestProductService_DetailsTracksProduct(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	d, err := f.svc.Details(ctx, "211695539")
	require.NoError(t, err)
	assert.Equal(t, 80.0, d.SellPrice)

	_, err = f.svc.Details(ctx, "211695539")
	require.NoError(t, err)

	tracked, err := f.products.ListByMarketplace(ctx, model.MarketplaceWildberries)
	require.NoError(t, err)
	assert.Len(t, tracked, 1)
}

func TestProductService_ArtikulIsNormalized(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	var requested []string
	f.fetcher.fetchFn = func(ctx context.Context, artikul string) (*model.ProductDetails, error) {
		requested = append(requested, artikul)
		// upstream reports the numeric id without leading zeros
		return &model.ProductDetails{Artikul: "123", Name: "Mug", SellPrice: 80}, nil
	}

	_, err := f.svc.Details(ctx, "0123")
	require.NoError(t, err)
	assert.Equal(t, []string{"123"}, requested)

	tracked, err := f.products.Get(ctx, model.MarketplaceWildberries, "123")
	require.NoError(t, err)
	require.NoError(t, f.products.AddSnapshot(ctx, &model.Snapshot{ProductID: tracked.ID, SellPrice: 80}))

	history, err := f.svc.History(ctx, "0123", MaxHistoryCount)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = f.svc.Add(ctx, "00123")
	assert.ErrorIs(t, err, model.ErrAlreadyTracked)

	for _, bad := range []string{"0", "000", "-5", "1e3", ""} {
		_, err := f.svc.Latest(ctx, bad)
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr, bad)
	}
}

func TestProductService_DetailsErrors(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	_, err := f.svc.Details(ctx, "abc")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	f.fetcher.fetchFn = func(context.Context, string) (*model.ProductDetails, error) {
		return nil, model.ErrUpstreamUnavailable
	}
	_, err = f.svc.Details(ctx, "1")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}

func TestProductService_Add(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	tracked, err := f.svc.Add(ctx, "42")
	require.NoError(t, err)
	assert.NotZero(t, tracked.Product.ID)
	assert.Equal(t, tracked.Product.ID, tracked.Snapshot.ProductID)

	_, err = f.svc.Add(ctx, "42")
	assert.ErrorIs(t, err, model.ErrAlreadyTracked)
}

func TestProductService_AddUpstreamFailureIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	for _, upstream := range []error{model.ErrProductNotFound, model.ErrUpstreamUnavailable} {
		f.fetcher.fetchFn = func(context.Context, string) (*model.ProductDetails, error) {
			return nil, upstream
		}
		_, err := f.svc.Add(ctx, "42")
		assert.ErrorIs(t, err, model.ErrProductNotFound)
	}
}

func TestProductService_HistoryCountBounds(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	_, err := f.svc.Add(ctx, "42")
	require.NoError(t, err)

	for _, count := range []int{0, -1, 101} {
		_, err := f.svc.History(ctx, "42", count)
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr, "count=%d", count)
	}

	history, err := f.svc.History(ctx, "42", MaxHistoryCount)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProductService_Latest(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	_, err := f.svc.Latest(ctx, "42")
	assert.ErrorIs(t, err, model.ErrNotFound)

	tracked, err := f.svc.Add(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, f.products.AddSnapshot(ctx, &model.Snapshot{ProductID: tracked.Product.ID, SellPrice: 70}))

	latest, err := f.svc.Latest(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 70.0, latest.SellPrice)
}

func TestProductService_Dynamics(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	_, err := f.svc.Dynamics(ctx, "42", 10)
	assert.ErrorIs(t, err, model.ErrNotFound)

	tracked, err := f.svc.Add(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, f.products.AddSnapshot(ctx, &model.Snapshot{
		ProductID:     tracked.Product.ID,
		SellPrice:     60,
		TotalQuantity: 10,
		CreatedAt:     tracked.Snapshot.CreatedAt.Add(72 * time.Hour),
	}))

	d, err := f.svc.Dynamics(ctx, "42", 10)
	require.NoError(t, err)
	assert.Equal(t, 80.0, d.FirstPrice)
	assert.Equal(t, 60.0, d.LastPrice)
	assert.Equal(t, -20.0, d.PriceChange)
	assert.Equal(t, -25.0, d.PriceChangePercent)
	assert.Equal(t, 7, d.QuantityChange)
	assert.Equal(t, 3, d.PeriodDays)
	assert.Equal(t, 2, d.Samples)
}

func TestComputeDynamics_ZeroFirstPrice(t *testing.T) {
	now := time.Now()
	d := ComputeDynamics([]*model.Snapshot{
		{SellPrice: 50, CreatedAt: now},
		{SellPrice: 0, CreatedAt: now.Add(-time.Hour)},
	})
	assert.Equal(t, 50.0, d.PriceChange)
	assert.Zero(t, d.PriceChangePercent)
	assert.Zero(t, d.PeriodDays)
}

func TestProductService_List(t *testing.T) {
	ctx := context.Background()
	f := newProductFixture(t)

	for _, a := range []string{"1", "2", "3"} {
		_, err := f.svc.Add(ctx, a)
		require.NoError(t, err)
	}

	page, total, err := f.svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 3)

	_, _, err = f.svc.List(ctx, 1, MaxPageSize+1)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestProductService_ContextErrorsPassThrough(t *testing.T) {
	f := newProductFixture(t)
	f.fetcher.fetchFn = func(context.Context, string) (*model.ProductDetails, error) {
		return nil, context.Canceled
	}

	_, err := f.svc.Add(context.Background(), "1")
	assert.ErrorIs(t, err, context.Canceled)
}
