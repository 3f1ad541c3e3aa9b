package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles anonymous shopping carts
type CartService struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// AddCartItemRequest adds a product to a cart
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest changes a cart item's quantity
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// CreateCart creates an empty cart
func (s *CartService) CreateCart(ctx context.Context) (*models.Cart, error) {
	cart := &models.Cart{ID: uuid.New(), Items: []models.CartItem{}, TotalPrice: decimal.Zero}
	if err := s.store.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	util.CartsCreatedTotal.Inc()
	s.logger.Debug("Cart created", zap.String("cart_id", cart.ID.String()))
	return cart, nil
}

// GetCart retrieves a cart with priced items
func (s *CartService) GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, err := s.store.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}

	cart.Items = items
	cart.TotalPrice = decimal.Zero
	for _, item := range items {
		cart.TotalPrice = cart.TotalPrice.Add(item.TotalPrice)
	}
	return cart, nil
}

// DeleteCart deletes a cart and its items
func (s *CartService) DeleteCart(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteCart(ctx, id)
}

// ListItems lists a cart's items priced at their effective price
func (s *CartService) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	lines, err := s.store.GetCartLines(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return s.price(ctx, cartID, lines)
}

// GetItem retrieves one cart item
func (s *CartService) GetItem(ctx context.Context, cartID uuid.UUID, itemID int64) (*models.CartItem, error) {
	line, err := s.store.GetCartLine(ctx, cartID, itemID)
	if err != nil {
		return nil, err
	}
	items, err := s.price(ctx, cartID, []models.CartLine{*line})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// AddItem adds a product to a cart, increasing the quantity if it is already there
func (s *CartService) AddItem(ctx context.Context, cartID uuid.UUID, req *AddCartItemRequest) (*models.CartItem, error) {
	if _, err := s.store.GetCart(ctx, cartID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProductByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("product_id", "no product with the given ID was found")
		}
		return nil, err
	}

	itemID, err := s.store.AddCartItem(ctx, cartID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return s.GetItem(ctx, cartID, itemID)
}

// UpdateItem sets a cart item's quantity
func (s *CartService) UpdateItem(ctx context.Context, cartID uuid.UUID, itemID int64, req *UpdateCartItemRequest) (*models.CartItem, error) {
	if err := s.store.UpdateCartItemQuantity(ctx, cartID, itemID, req.Quantity); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, cartID, itemID)
}

// DeleteItem removes an item from a cart
func (s *CartService) DeleteItem(ctx context.Context, cartID uuid.UUID, itemID int64) error {
	return s.store.DeleteCartItem(ctx, cartID, itemID)
}

func (s *CartService) price(ctx context.Context, cartID uuid.UUID, lines []models.CartLine) ([]models.CartItem, error) {
	items := make([]models.CartItem, len(lines))
	if len(lines) == 0 {
		return items, nil
	}

	refs := make([]priceable, len(lines))
	for i, l := range lines {
		refs[i] = priceable{ProductID: l.ProductID, CollectionID: l.CollectionID}
	}
	book, err := loadPriceBook(ctx, s.store, refs, s.now())
	if err != nil {
		return nil, err
	}

	for i, l := range lines {
		unit := book.price(l.ProductID, l.CollectionID, l.Price)
		items[i] = models.CartItem{
			ID:        l.ID,
			CartID:    cartID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Product: &models.SimpleProduct{
				ID:       l.ProductID,
				Title:    l.Title,
				Price:    l.Price,
				NewPrice: unit,
			},
			TotalPrice: unit.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
	}
	return items, nil
}
