package service

import (
	"errors"
	"fmt"

	"storefront/internal/store"
)

var (
	ErrNotFound              = store.ErrNotFound
	ErrConflict              = store.ErrDuplicate
	ErrInvalidValue          = store.ErrInvalidValue
	ErrCartNotFound          = errors.New("cart not found")
	ErrCartEmpty             = errors.New("cart is empty")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrCollectionHasProducts = errors.New("collection can not be deleted because it includes one or more products")
	ErrProductHasOrders      = errors.New("product can not be deleted because it is associated with an order item")
	ErrForbidden             = errors.New("you do not have permission to perform this action")
	ErrInvalidCredentials    = errors.New("no active account found with the given credentials")
	ErrCheckoutInProgress    = errors.New("checkout already in progress for this cart")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError is returned when checkout would drive a product's stock negative
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) match
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
