package product

import (
	"github.com/shopspring/decimal"
)

// Image is one entry of a product's image gallery.
type Image struct {
	IsMain bool   `json:"is_main"`
	URL    string `json:"url"`
}

// Product is an item bought for resale.
type Product struct {
	ID          string              `json:"id"`           // Unique identifier.
	Title       string              `json:"title"`        // Display name of the product.
	Description string              `json:"description"`  // Free-form description.
	BoughtPrice decimal.Decimal     `json:"bought_price"` // What was paid for the item.
	TargetPrice decimal.Decimal     `json:"target_price"` // The asking price.
	SoldPrice   decimal.NullDecimal `json:"sold_price"`   // Absent until the item is sold.
	Images      []Image             `json:"images"`       // Gallery, may be null.
}

// MainImage returns the gallery entry flagged as main, falling back to the
// first entry when no flag is set. Nil when the product has no images.
func (p Product) MainImage() *Image {
	for i := range p.Images {
		if p.Images[i].IsMain {
			return &p.Images[i]
		}
	}
	if len(p.Images) > 0 {
		return &p.Images[0]
	}
	return nil
}

// SoldIndicator reports how a completed sale compares to the target price:
// "down" when the item sold below target, "up" otherwise. Empty string for
// unsold items.
func (p Product) SoldIndicator() string {
	if !p.SoldPrice.Valid {
		return ""
	}
	if p.SoldPrice.Decimal.LessThan(p.TargetPrice) {
		return "down"
	}
	return "up"
}
