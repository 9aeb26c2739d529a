package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/repository"
)

const (
	// DefaultHistoryCount is what callers use when a request names no count.
	DefaultHistoryCount = 100

	// MaxHistoryCount caps how many snapshots one request may read.
	MaxHistoryCount = 100

	// DefaultPageSize is used when a listing request names no page size.
	DefaultPageSize = 20

	// MaxPageSize caps listing page size.
	MaxPageSize = 100
)

// DetailsFetcher returns current upstream attributes for an artikul.
type DetailsFetcher interface {
	FetchDetails(ctx context.Context, artikul string) (*model.ProductDetails, error)
}

// ProductService handles tracked product operations for one marketplace.
type ProductService struct {
	products    repository.ProductRepository
	fetcher     DetailsFetcher
	marketplace string
}

// NewProductService creates a product service for the Wildberries marketplace.
func NewProductService(products repository.ProductRepository, fetcher DetailsFetcher) *ProductService {
	return &ProductService{
		products:    products,
		fetcher:     fetcher,
		marketplace: model.MarketplaceWildberries,
	}
}

// Details fetches current attributes and starts tracking the product.
// A tracking failure is logged and does not fail the call.
func (s *ProductService) Details(ctx context.Context, artikul string) (*model.ProductDetails, error) {
	artikul, err := normalizeArtikul(artikul)
	if err != nil {
		return nil, err
	}

	details, err := s.fetcher.FetchDetails(ctx, artikul)
	if err != nil {
		return nil, err
	}

	product := details.Product(s.marketplace)
	product.Artikul = artikul
	if _, err := s.products.Track(ctx, product); err != nil {
		log.Printf("[ProductService] Failed to track %s/%s: %v", s.marketplace, artikul, err)
	}
	return details, nil
}

// Add tracks a product and stores its first snapshot.
// Any upstream failure is reported as model.ErrProductNotFound.
func (s *ProductService) Add(ctx context.Context, artikul string) (*model.TrackedProduct, error) {
	artikul, err := normalizeArtikul(artikul)
	if err != nil {
		return nil, err
	}

	details, err := s.fetcher.FetchDetails(ctx, artikul)
	if err != nil {
		if errors.Is(err, model.ErrUpstreamUnavailable) {
			return nil, fmt.Errorf("%w: %v", model.ErrProductNotFound, err)
		}
		return nil, err
	}

	product := details.Product(s.marketplace)
	product.Artikul = artikul
	snapshot := details.Snapshot(0)
	if err := s.products.TrackWithSnapshot(ctx, product, snapshot); err != nil {
		return nil, err
	}

	return &model.TrackedProduct{Product: product, Snapshot: snapshot}, nil
}

// History returns up to count snapshots, newest first. Count must be within 1..MaxHistoryCount.
func (s *ProductService) History(ctx context.Context, artikul string, count int) ([]*model.Snapshot, error) {
	artikul, err := normalizeArtikul(artikul)
	if err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}

	return s.products.LatestSnapshots(ctx, s.marketplace, artikul, count)
}

// Latest returns the newest snapshot. Returns model.ErrNotFound when there is no history.
func (s *ProductService) Latest(ctx context.Context, artikul string) (*model.Snapshot, error) {
	artikul, err := normalizeArtikul(artikul)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.products.LatestSnapshots(ctx, s.marketplace, artikul, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, model.ErrNotFound
	}
	return snapshots[0], nil
}

// Dynamics summarizes the change across the newest count snapshots.
func (s *ProductService) Dynamics(ctx context.Context, artikul string, count int) (*model.PriceDynamics, error) {
	snapshots, err := s.History(ctx, artikul, count)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, model.ErrNotFound
	}
	return ComputeDynamics(snapshots), nil
}

// List returns one page of tracked products and the total count.
func (s *ProductService) List(ctx context.Context, page, perPage int) ([]*model.Product, int64, error) {
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPageSize
	}
	if page < 1 {
		return nil, 0, model.NewValidationError("page", "must be at least 1")
	}
	if perPage < 1 || perPage > MaxPageSize {
		return nil, 0, model.NewValidationError("per_page", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}

	return s.products.ListPage(ctx, s.marketplace, page, perPage)
}

// ComputeDynamics compares the oldest and newest of a newest-first snapshot slice.
func ComputeDynamics(newestFirst []*model.Snapshot) *model.PriceDynamics {
	last := newestFirst[0]
	first := newestFirst[len(newestFirst)-1]

	change := last.SellPrice - first.SellPrice
	percent := 0.0
	if first.SellPrice != 0 {
		percent = math.Round(change/first.SellPrice*100*100) / 100
	}

	return &model.PriceDynamics{
		PriceChange:        change,
		PriceChangePercent: percent,
		QuantityChange:     last.TotalQuantity - first.TotalQuantity,
		PeriodDays:         int(last.CreatedAt.Sub(first.CreatedAt).Hours() / 24),
		FirstPrice:         first.SellPrice,
		LastPrice:          last.SellPrice,
		FirstQuantity:      first.TotalQuantity,
		LastQuantity:       last.TotalQuantity,
		Samples:            len(newestFirst),
	}
}

func checkCount(count int) error {
	if count < 1 || count > MaxHistoryCount {
		return model.NewValidationError("count", fmt.Sprintf("must be between 1 and %d", MaxHistoryCount))
	}
	return nil
}

// normalizeArtikul returns the canonical decimal form, so "0123" and "123" name the same product.
func normalizeArtikul(artikul string) (string, error) {
	n, err := strconv.ParseUint(artikul, 10, 64)
	if err != nil || n == 0 {
		return "", model.NewValidationError("artikul", "must be a positive number")
	}
	return strconv.FormatUint(n, 10), nil
}
