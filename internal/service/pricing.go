package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice applies the highest active direct promotion to price, falling back to the
// collection's promotion when no direct promotion is active. The result is rounded to cents
// and always lies in [0, price].
func EffectivePrice(price decimal.Decimal, direct []models.Promotion, collection *models.Promotion, now time.Time) decimal.Decimal {
	discount, ok := highestActiveDiscount(direct, now)
	if !ok && collection != nil && collection.IsActive(now) {
		discount, ok = clampDiscount(collection.Discount), true
	}
	if !ok || discount.IsZero() {
		return price
	}

	reduced := price.Mul(hundred.Sub(discount)).Div(hundred).Round(2)
	if reduced.GreaterThan(price) {
		return price
	}
	if reduced.IsNegative() {
		return decimal.Zero
	}
	return reduced
}

func highestActiveDiscount(promotions []models.Promotion, now time.Time) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for i := range promotions {
		if !promotions[i].IsActive(now) {
			continue
		}
		d := clampDiscount(promotions[i].Discount)
		if !found || d.GreaterThan(best) {
			best = d
			found = true
		}
	}
	return best, found
}

func clampDiscount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// promotionReader is implemented by both store.Store and store.Tx
type promotionReader interface {
	GetProductPromotions(ctx context.Context, productIDs []int64) (map[int64][]models.Promotion, error)
	GetCollectionPromotions(ctx context.Context, collectionIDs []int64) (map[int64]models.Promotion, error)
}

// priceBook holds the promotions needed to price a batch of products at one instant
type priceBook struct {
	direct       map[int64][]models.Promotion
	byCollection map[int64]models.Promotion
	now          time.Time
}

type priceable struct {
	ProductID    int64
	CollectionID int64
}

func loadPriceBook(ctx context.Context, r promotionReader, items []priceable, now time.Time) (*priceBook, error) {
	productIDs := make([]int64, 0, len(items))
	collectionIDs := make([]int64, 0, len(items))
	seenProduct := make(map[int64]bool)
	seenCollection := make(map[int64]bool)
	for _, it := range items {
		if !seenProduct[it.ProductID] {
			seenProduct[it.ProductID] = true
			productIDs = append(productIDs, it.ProductID)
		}
		if !seenCollection[it.CollectionID] {
			seenCollection[it.CollectionID] = true
			collectionIDs = append(collectionIDs, it.CollectionID)
		}
	}

	direct, err := r.GetProductPromotions(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product promotions: %w", err)
	}
	byCollection, err := r.GetCollectionPromotions(ctx, collectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection promotions: %w", err)
	}

	return &priceBook{direct: direct, byCollection: byCollection, now: now}, nil
}

func (b *priceBook) price(productID, collectionID int64, listPrice decimal.Decimal) decimal.Decimal {
	var collection *models.Promotion
	if p, ok := b.byCollection[collectionID]; ok {
		collection = &p
	}
	return EffectivePrice(listPrice, b.direct[productID], collection, b.now)
}

func (b *priceBook) promotionIDs(productID int64) []int64 {
	ids := make([]int64, 0, len(b.direct[productID]))
	for _, p := range b.direct[productID] {
		ids = append(ids, p.ID)
	}
	return ids
}

func (b *priceBook) simple(p *models.Product) *models.SimpleProduct {
	return &models.SimpleProduct{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		NewPrice: b.price(p.ID, p.CollectionID, p.Price),
	}
}
