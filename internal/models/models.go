package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is the identity behind a customer
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	DateJoined   time.Time `db:"date_joined" json:"date_joined"`
}

// Membership tiers
const (
	MembershipBronze = "B"
	MembershipSilver = "S"
	MembershipGold   = "G"
)

// Customer is the storefront profile of a user
type Customer struct {
	UserID     int64      `db:"user_id" json:"id"`
	Phone      *string    `db:"phone" json:"phone"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date"`
	Membership string     `db:"membership" json:"membership"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email"`
}

// Address belongs to a customer
type Address struct {
	ID         int64  `db:"id" json:"id"`
	CustomerID int64  `db:"customer_id" json:"customer_id"`
	City       string `db:"city" json:"city"`
	Street     string `db:"street" json:"street"`
}

// Promotion is a percentage discount valid inside [StartDate, EndDate]
type Promotion struct {
	ID        int64           `db:"id" json:"id"`
	Title     string          `db:"title" json:"title"`
	Slug      string          `db:"slug" json:"slug"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	StartDate time.Time       `db:"start_date" json:"start_date"`
	EndDate   time.Time       `db:"end_date" json:"end_date"`
}

// IsActive reports whether now falls inside the promotion window
func (p *Promotion) IsActive(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Collection groups products
type Collection struct {
	ID                int64          `db:"id" json:"id"`
	Title             string         `db:"title" json:"title"`
	Slug              string         `db:"slug" json:"slug"`
	FeaturedProductID *int64         `db:"featured_product_id" json:"-"`
	PromotionID       *int64         `db:"promotion_id" json:"promotion"`
	ProductsCount     int            `db:"products_count" json:"products_count"`
	FeaturedProduct   *SimpleProduct `db:"-" json:"featured_product"`
}

// Product represents a product in the catalog
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Title        string          `db:"title" json:"title"`
	Slug         string          `db:"slug" json:"slug"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	IsDigital    bool            `db:"is_digital" json:"is_digital"`
	LastUpdate   time.Time       `db:"last_update" json:"last_update"`
	CollectionID int64           `db:"collection_id" json:"collection"`
	NewPrice     decimal.Decimal `db:"-" json:"new_price"`
	PromotionIDs []int64         `db:"-" json:"promotions"`
	Stock        *Stock          `db:"-" json:"stock,omitempty"`
}

// SimpleProduct is the compact product shape embedded in other resources
type SimpleProduct struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

// Stock represents product inventory and its reorder threshold
type Stock struct {
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	Threshold int   `db:"threshold" json:"threshold"`
}

// IsLow reports whether stock has reached the reorder threshold
func (s *Stock) IsLow() bool {
	return s.Quantity <= s.Threshold
}

// Review ratings
var ReviewRatings = []string{"1", "1.5", "2", "2.5", "3", "3.5", "4", "4.5", "5"}

// ValidRating reports whether r is one of ReviewRatings
func ValidRating(r string) bool {
	for _, v := range ReviewRatings {
		if v == r {
			return true
		}
	}
	return false
}

// Review is a customer's rating of a product
type Review struct {
	ID          int64      `db:"id" json:"id"`
	CustomerID  int64      `db:"customer_id" json:"customer"`
	ProductID   int64      `db:"product_id" json:"product"`
	Rating      string     `db:"rating" json:"rating"`
	Description string     `db:"description" json:"description"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	IsUpdated   bool       `db:"is_updated" json:"is_updated"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at"`
}

// Cart is an anonymous shopping cart
type Cart struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	Items      []CartItem      `db:"-" json:"items"`
	TotalPrice decimal.Decimal `db:"-" json:"total_price"`
}

// CartItem is a product line inside a cart
type CartItem struct {
	ID         int64           `db:"id" json:"id"`
	CartID     uuid.UUID       `db:"cart_id" json:"-"`
	ProductID  int64           `db:"product_id" json:"-"`
	Quantity   int             `db:"quantity" json:"quantity"`
	Product    *SimpleProduct  `db:"-" json:"product"`
	TotalPrice decimal.Decimal `db:"-" json:"total_price"`
}

// CartLine is a cart item joined with its product's list price
type CartLine struct {
	ID           int64           `db:"id"`
	ProductID    int64           `db:"product_id"`
	Quantity     int             `db:"quantity"`
	Title        string          `db:"title"`
	Price        decimal.Decimal `db:"price"`
	CollectionID int64           `db:"collection_id"`
}

// Order represents a customer order
type Order struct {
	ID             int64           `db:"id" json:"id"`
	CustomerID     int64           `db:"customer_id" json:"customer"`
	PlacedAt       time.Time       `db:"placed_at" json:"placed_at"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CartID         *uuid.UUID      `db:"cart_id" json:"-"`
	Items          []OrderItem     `db:"-" json:"items"`
	Total          decimal.Decimal `db:"-" json:"total"`
}

// OrderItem is a frozen snapshot of a product line at order time
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusComplete = "COMPLETE"
	PaymentStatusFailed   = "FAILED"
)

// ValidPaymentStatus reports whether s is a known payment status
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusComplete, PaymentStatusFailed:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
