package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxPrice = decimal.RequireFromString("9999.99")

// CatalogService handles collections, promotions and products
type CatalogService struct {
	store  *store.Store
	cache  StockCache
	logger *zap.Logger
	now    func() time.Time
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(store *store.Store, cache StockCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// CollectionRequest is the writable shape of a collection
type CollectionRequest struct {
	Title           string `json:"title" binding:"required,max=255"`
	FeaturedProduct *int64 `json:"featured_product"`
	Promotion       *int64 `json:"promotion"`
}

// PromotionRequest is the writable shape of a promotion
type PromotionRequest struct {
	Title     string          `json:"title" binding:"required,max=255"`
	Discount  decimal.Decimal `json:"discount"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
}

// ProductRequest is the writable shape of a product
type ProductRequest struct {
	Title       string           `json:"title" binding:"required,min=3,max=255"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	IsDigital   bool             `json:"is_digital"`
	Collection  int64            `json:"collection" binding:"required"`
	Promotions  []int64          `json:"promotions"`
}

// ProductQuery holds the list filters accepted for products
type ProductQuery struct {
	CollectionID *int64
	Search       string
	Ordering     string
	Page         Page
}

// ListCollections lists collections with product counts and featured products
func (s *CatalogService) ListCollections(ctx context.Context, page Page) ([]models.Collection, int, error) {
	collections, total, err := s.store.ListCollections(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collections: %w", err)
	}
	if err := s.attachFeatured(ctx, collections); err != nil {
		return nil, 0, err
	}
	return collections, total, nil
}

// GetCollection retrieves a collection
func (s *CatalogService) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	collection, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	list := []models.Collection{*collection}
	if err := s.attachFeatured(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *CatalogService) attachFeatured(ctx context.Context, collections []models.Collection) error {
	var ids []int64
	for _, c := range collections {
		if c.FeaturedProductID != nil {
			ids = append(ids, *c.FeaturedProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load featured products: %w", err)
	}
	book, err := loadPriceBook(ctx, s.store, priceablesOf(products), s.now())
	if err != nil {
		return err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for i := range collections {
		if id := collections[i].FeaturedProductID; id != nil {
			if p, ok := byID[*id]; ok {
				collections[i].FeaturedProduct = book.simple(p)
			}
		}
	}
	return nil
}

// CreateCollection creates a collection
func (s *CatalogService) CreateCollection(ctx context.Context, req *CollectionRequest) (*models.Collection, error) {
	collection := &models.Collection{}
	if err := s.applyCollection(ctx, collection, req); err != nil {
		return nil, err
	}
	if err := s.store.CreateCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.Info("Collection created", zap.Int64("collection_id", collection.ID))
	return s.GetCollection(ctx, collection.ID)
}

// UpdateCollection replaces a collection's writable fields
func (s *CatalogService) UpdateCollection(ctx context.Context, id int64, req *CollectionRequest) (*models.Collection, error) {
	collection, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyCollection(ctx, collection, req); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}
	return s.GetCollection(ctx, id)
}

func (s *CatalogService) applyCollection(ctx context.Context, c *models.Collection, req *CollectionRequest) error {
	if req.FeaturedProduct != nil {
		if _, err := s.store.GetProductByID(ctx, *req.FeaturedProduct); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("featured_product", "no product with the given ID was found")
			}
			return err
		}
	}
	if req.Promotion != nil {
		if _, err := s.store.GetPromotion(ctx, *req.Promotion); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("promotion", "no promotion with the given ID was found")
			}
			return err
		}
	}

	c.Title = req.Title
	c.Slug = Slugify(req.Title)
	c.FeaturedProductID = req.FeaturedProduct
	c.PromotionID = req.Promotion
	return nil
}

// DeleteCollection deletes a collection unless products still belong to it
func (s *CatalogService) DeleteCollection(ctx context.Context, id int64) error {
	count, err := s.store.CountCollectionProducts(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count collection products: %w", err)
	}
	if count > 0 {
		return ErrCollectionHasProducts
	}

	err = s.store.DeleteCollection(ctx, id)
	if errors.Is(err, store.ErrReferenced) {
		return ErrCollectionHasProducts
	}
	return err
}

// ListPromotions lists promotions
func (s *CatalogService) ListPromotions(ctx context.Context, page Page) ([]models.Promotion, int, error) {
	return s.store.ListPromotions(ctx, page.Limit, page.Offset)
}

// GetPromotion retrieves a promotion
func (s *CatalogService) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	return s.store.GetPromotion(ctx, id)
}

// CreatePromotion creates a promotion
func (s *CatalogService) CreatePromotion(ctx context.Context, req *PromotionRequest) (*models.Promotion, error) {
	promotion := &models.Promotion{}
	if err := applyPromotion(promotion, req); err != nil {
		return nil, err
	}
	if err := s.store.CreatePromotion(ctx, promotion); err != nil {
		return nil, fmt.Errorf("failed to create promotion: %w", err)
	}
	return promotion, nil
}

// UpdatePromotion replaces a promotion's writable fields
func (s *CatalogService) UpdatePromotion(ctx context.Context, id int64, req *PromotionRequest) (*models.Promotion, error) {
	promotion := &models.Promotion{ID: id}
	if err := applyPromotion(promotion, req); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePromotion(ctx, promotion); err != nil {
		return nil, err
	}
	return promotion, nil
}

// DeletePromotion deletes a promotion; products and collections simply lose it
func (s *CatalogService) DeletePromotion(ctx context.Context, id int64) error {
	return s.store.DeletePromotion(ctx, id)
}

func applyPromotion(p *models.Promotion, req *PromotionRequest) error {
	if req.Discount.IsNegative() || req.Discount.GreaterThan(hundred) {
		return invalid("discount", "must be between 0 and 100")
	}
	if req.StartDate.IsZero() {
		return invalid("start_date", "this field is required")
	}
	if req.EndDate.IsZero() {
		return invalid("end_date", "this field is required")
	}
	if req.EndDate.Before(req.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}

	p.Title = req.Title
	p.Slug = Slugify(req.Title)
	p.Discount = req.Discount.Round(2)
	p.StartDate = req.StartDate
	p.EndDate = req.EndDate
	return nil
}

// ListProducts lists products with their effective prices
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, int, error) {
	if !store.ValidProductOrdering(q.Ordering) {
		return nil, 0, invalid("ordering", fmt.Sprintf("unsupported ordering %q", q.Ordering))
	}

	products, total, err := s.store.ListProducts(ctx, store.ProductFilter{
		CollectionID: q.CollectionID,
		Search:       strings.TrimSpace(q.Search),
		Ordering:     q.Ordering,
		Limit:        q.Page.Limit,
		Offset:       q.Page.Offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	if err := s.decorate(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProduct retrieves a product with its effective price and stock
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	list := []models.Product{*product}
	if err := s.decorate(ctx, list); err != nil {
		return nil, err
	}
	product = &list[0]

	stock, err := s.store.GetStock(ctx, id)
	switch {
	case err == nil:
		product.Stock = stock
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load stock: %w", err)
	}
	return product, nil
}

func (s *CatalogService) decorate(ctx context.Context, products []models.Product) error {
	book, err := loadPriceBook(ctx, s.store, priceablesOf(products), s.now())
	if err != nil {
		return err
	}
	for i := range products {
		p := &products[i]
		p.NewPrice = book.price(p.ID, p.CollectionID, p.Price)
		p.PromotionIDs = book.promotionIDs(p.ID)
	}
	return nil
}

// CreateProduct creates a product together with its promotion links
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	product := &models.Product{}
	if err := applyProduct(product, req); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := validateProductRefs(ctx, tx, req); err != nil {
			return err
		}
		if err := tx.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return tx.SetProductPromotions(ctx, product.ID, req.Promotions)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID))
	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct replaces a product's writable fields and promotion links
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	product := &models.Product{ID: id}
	if err := applyProduct(product, req); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := validateProductRefs(ctx, tx, req); err != nil {
			return err
		}
		if err := tx.UpdateProduct(ctx, product); err != nil {
			return err
		}
		return tx.SetProductPromotions(ctx, id, req.Promotions)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

func validateProductRefs(ctx context.Context, tx *store.Tx, req *ProductRequest) error {
	if _, err := tx.GetCollection(ctx, req.Collection); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("collection", "no collection with the given ID was found")
		}
		return err
	}
	if len(req.Promotions) > 0 {
		ids := uniqueIDs(req.Promotions)
		count, err := tx.CountPromotions(ctx, ids)
		if err != nil {
			return err
		}
		if count != len(ids) {
			return invalid("promotions", "one or more promotions were not found")
		}
		req.Promotions = ids
	}
	return nil
}

func applyProduct(p *models.Product, req *ProductRequest) error {
	price := req.Price.Round(2)
	if !price.IsPositive() {
		return invalid("price", "must be greater than 0")
	}
	if price.GreaterThan(maxPrice) {
		return invalid("price", "must not exceed 9999.99")
	}

	p.Title = req.Title
	p.Slug = Slugify(req.Title)
	p.Description = req.Description
	p.Price = price
	p.IsDigital = req.IsDigital
	p.CollectionID = req.Collection
	return nil
}

// DeleteProduct deletes a product unless it has been ordered
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	count, err := s.store.CountProductOrderItems(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count order items: %w", err)
	}
	if count > 0 {
		return ErrProductHasOrders
	}

	err = s.store.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrReferenced) {
		return ErrProductHasOrders
	}
	if err != nil {
		return err
	}

	// the stock row went with the product
	if s.cache != nil {
		if err := s.cache.DeleteStock(ctx, id); err != nil {
			s.logger.Warn("Failed to evict cached stock",
				zap.Int64("product_id", id),
				zap.Error(err))
		}
	}
	return nil
}

func priceablesOf(products []models.Product) []priceable {
	items := make([]priceable, len(products))
	for i, p := range products {
		items[i] = priceable{ProductID: p.ID, CollectionID: p.CollectionID}
	}
	return items
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Slugify turns a title into a lowercase, hyphen-separated slug
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
