package repository

import (
	"context"

	"wbtrack-rest-api/internal/model"
)

// UserRepository defines user data access methods.
// Lookups return model.ErrNotFound when no row matches.
type UserRepository interface {
	// Create inserts a user. Returns model.ErrUserExists on a duplicate username or id.
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// GetByID finds a user by subject id.
	GetByID(ctx context.Context, id int64) (*model.User, error)

	// GetByUsername finds a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdatePassword replaces the stored password digest.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// ProductRepository defines tracked product and snapshot data access methods.
type ProductRepository interface {
	// Track records a product unless (marketplace, artikul) is already tracked.
	// Reports whether a row was created; product.ID is set either way.
	Track(ctx context.Context, product *model.Product) (bool, error)

	// TrackWithSnapshot records a product and its first snapshot in one transaction.
	// Returns model.ErrAlreadyTracked when the product exists.
	TrackWithSnapshot(ctx context.Context, product *model.Product, snapshot *model.Snapshot) error

	// Get finds a tracked product.
	Get(ctx context.Context, marketplace, artikul string) (*model.Product, error)

	// ListByMarketplace returns every tracked product of a marketplace.
	ListByMarketplace(ctx context.Context, marketplace string) ([]*model.Product, error)

	// ListPage returns one page of tracked products and the total count.
	ListPage(ctx context.Context, marketplace string, page, perPage int) ([]*model.Product, int64, error)

	// AddSnapshot appends a history row.
	AddSnapshot(ctx context.Context, snapshot *model.Snapshot) error

	// LatestSnapshots returns up to limit history rows, newest first.
	LatestSnapshots(ctx context.Context, marketplace, artikul string, limit int) ([]*model.Snapshot, error)
}
