package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"wbtrack-rest-api/internal/model"
)

// SQLProductRepository implements ProductRepository on any supported dialect.
type SQLProductRepository struct {
	db *DB
}

var _ ProductRepository = (*SQLProductRepository)(nil)

// NewSQLProductRepository creates a new product repository.
func NewSQLProductRepository(db *DB) *SQLProductRepository {
	return &SQLProductRepository{db: db}
}

const productColumns = `id, marketplace, artikul, name, created_at`

// Track records a product unless it is already tracked. Duplicate requests are no-ops.
func (r *SQLProductRepository) Track(ctx context.Context, product *model.Product) (bool, error) {
	now := time.Now().UTC()

	query := r.db.Rebind(r.db.insertIgnore("products", "marketplace, artikul, name, created_at", "marketplace, artikul"))
	res, err := r.db.ExecContext(ctx, query, product.Marketplace, product.Artikul, product.Name, now)
	if err != nil {
		return false, fmt.Errorf("failed to track product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to track product: %w", err)
	}

	stored, err := r.Get(ctx, product.Marketplace, product.Artikul)
	if err != nil {
		return false, err
	}
	*product = *stored

	if affected > 0 {
		log.Printf("[ProductRepository] Tracking %s/%s", product.Marketplace, product.Artikul)
	}
	return affected > 0, nil
}

// TrackWithSnapshot records a product and its first snapshot atomically.
func (r *SQLProductRepository) TrackWithSnapshot(ctx context.Context, product *model.Product, snapshot *model.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	productID, err := r.db.insertID(ctx, tx, "id",
		`INSERT INTO products (marketplace, artikul, name, created_at) VALUES (?, ?, ?, ?)`,
		product.Marketplace, product.Artikul, product.Name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAlreadyTracked
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}

	snapshot.ProductID = productID
	snapshot.CreatedAt = now
	snapshotID, err := r.insertSnapshot(ctx, tx, snapshot)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	product.ID = productID
	product.CreatedAt = now
	snapshot.ID = snapshotID

	log.Printf("[ProductRepository] Tracking %s/%s with first snapshot", product.Marketplace, product.Artikul)
	return nil
}

// Get finds a tracked product.
func (r *SQLProductRepository) Get(ctx context.Context, marketplace, artikul string) (*model.Product, error) {
	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE marketplace = ? AND artikul = ?`)

	var p model.Product
	err := r.db.QueryRowContext(ctx, query, marketplace, artikul).
		Scan(&p.ID, &p.Marketplace, &p.Artikul, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListByMarketplace returns every tracked product of a marketplace.
func (r *SQLProductRepository) ListByMarketplace(ctx context.Context, marketplace string) ([]*model.Product, error) {
	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE marketplace = ? ORDER BY id`)

	rows, err := r.db.QueryContext(ctx, query, marketplace)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// ListPage returns one page of tracked products, oldest first, and the total count.
func (r *SQLProductRepository) ListPage(ctx context.Context, marketplace string, page, perPage int) ([]*model.Product, int64, error) {
	var total int64
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM products WHERE marketplace = ?`)
	if err := r.db.QueryRowContext(ctx, countQuery, marketplace).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE marketplace = ? ORDER BY id LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, query, marketplace, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// AddSnapshot appends a history row in its own transaction.
func (r *SQLProductRepository) AddSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	id, err := r.insertSnapshot(ctx, r.db, snapshot)
	if err != nil {
		return err
	}
	snapshot.ID = id
	return nil
}

func (r *SQLProductRepository) insertSnapshot(ctx context.Context, q execer, s *model.Snapshot) (int64, error) {
	id, err := r.db.insertID(ctx, q, "id",
		`INSERT INTO product_history (product_id, sell_price, standard_price, total_quantity, rating, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ProductID, s.SellPrice, s.StandardPrice, s.TotalQuantity, s.Rating, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot for product %d: %w", s.ProductID, err)
	}
	return id, nil
}

// LatestSnapshots returns up to limit history rows, newest first.
// An untracked product has no history and yields an empty slice.
func (r *SQLProductRepository) LatestSnapshots(ctx context.Context, marketplace, artikul string, limit int) ([]*model.Snapshot, error) {
	query := r.db.Rebind(`
		SELECT h.id, h.product_id, h.sell_price, h.standard_price, h.total_quantity, h.rating, h.created_at
		FROM product_history h
		JOIN products p ON p.id = h.product_id
		WHERE p.marketplace = ? AND p.artikul = ?
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT ?`)

	rows, err := r.db.QueryContext(ctx, query, marketplace, artikul, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*model.Snapshot, 0)
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(&s.ID, &s.ProductID, &s.SellPrice, &s.StandardPrice, &s.TotalQuantity, &s.Rating, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

func scanProducts(rows *sql.Rows) ([]*model.Product, error) {
	products := make([]*model.Product, 0)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Marketplace, &p.Artikul, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}
