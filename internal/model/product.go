package model

import "time"

// MarketplaceWildberries is the only upstream source currently tracked.
const MarketplaceWildberries = "wildberries"

// Product is a tracked third-party item, unique per (Marketplace, Artikul).
type Product struct {
	ID          int64     `json:"id"`
	Marketplace string    `json:"marketplace"`
	Artikul     string    `json:"artikul"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is one observation of a tracked product. Rows are append-only.
type Snapshot struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	SellPrice     float64   `json:"sell_price"`
	StandardPrice float64   `json:"standard_price"`
	TotalQuantity int       `json:"total_quantity"`
	Rating        float64   `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProductDetails are the current attributes reported by the upstream API.
type ProductDetails struct {
	Artikul       string  `json:"artikul"`
	Name          string  `json:"name"`
	StandardPrice float64 `json:"standard_price"`
	SellPrice     float64 `json:"sell_price"`
	TotalQuantity int     `json:"total_quantity"`
	Rating        float64 `json:"rating"`
}

// Product builds the tracked-item row for these details.
func (d *ProductDetails) Product(marketplace string) *Product {
	return &Product{
		Marketplace: marketplace,
		Artikul:     d.Artikul,
		Name:        d.Name,
	}
}

// Snapshot builds a history row for these details.
func (d *ProductDetails) Snapshot(productID int64) *Snapshot {
	return &Snapshot{
		ProductID:     productID,
		SellPrice:     d.SellPrice,
		StandardPrice: d.StandardPrice,
		TotalQuantity: d.TotalQuantity,
		Rating:        d.Rating,
	}
}

// TrackedProduct is a product together with its first snapshot.
type TrackedProduct struct {
	Product  *Product  `json:"product"`
	Snapshot *Snapshot `json:"snapshot"`
}

// PriceDynamics summarizes how a product changed over a window of snapshots.
type PriceDynamics struct {
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuantityChange     int     `json:"quantity_change"`
	PeriodDays         int     `json:"period_days"`
	FirstPrice         float64 `json:"first_price"`
	LastPrice          float64 `json:"last_price"`
	FirstQuantity      int     `json:"first_quantity"`
	LastQuantity       int     `json:"last_quantity"`
	Samples            int     `json:"samples"`
}
