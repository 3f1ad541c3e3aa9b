package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CustomerService handles registration, login and customer profiles
type CustomerService struct {
	store  *store.Store
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(store *store.Store, tokens *auth.TokenManager) *CustomerService {
	return &CustomerService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterRequest creates a user and its customer profile
type RegisterRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required,min=3,max=150"`
	LastName  string `json:"last_name" binding:"required,min=3,max=150"`
}

// LoginRequest exchanges credentials for an access token
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries an issued access token
type TokenResponse struct {
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileRequest updates a customer's own profile
type ProfileRequest struct {
	Phone     *string `json:"phone" binding:"omitempty,max=255"`
	BirthDate *string `json:"birth_date"`
}

// MembershipRequest sets a customer's membership tier
type MembershipRequest struct {
	Membership string `json:"membership" binding:"required"`
}

// AddressRequest adds an address
type AddressRequest struct {
	City   string `json:"city" binding:"required,min=3,max=255"`
	Street string `json:"street" binding:"required,min=3,max=255"`
}

// Register creates a user together with its customer profile
func (s *CustomerService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.Register")
	defer span.End()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.CreateCustomer(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: a user with that username or email already exists", ErrConflict)
		}
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login verifies credentials and issues an access token
func (s *CustomerService) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Access: token, ExpiresAt: expiresAt}, nil
}

func (s *CustomerService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func (s *CustomerService) GetCustomer(ctx context.Context, userID int64) (*models.Customer, error) {
	return s.store.GetCustomer(ctx, userID)
}

// ListCustomers lists customers, optionally restricted to one membership tier
func (s *CustomerService) ListCustomers(ctx context.Context, membership string, page Page) ([]models.Customer, int, error) {
	if membership != "" && !validMembership(membership) {
		return nil, 0, invalid("membership", fmt.Sprintf("%q is not a valid choice", membership))
	}
	return s.store.ListCustomers(ctx, membership, page.Limit, page.Offset)
}

// UpdateProfile updates the caller's phone and birth date
func (s *CustomerService) UpdateProfile(ctx context.Context, userID int64, req *ProfileRequest) (*models.Customer, error) {
	customer, err := s.store.GetCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	customer.Phone = req.Phone
	customer.BirthDate = nil
	if req.BirthDate != nil && *req.BirthDate != "" {
		d, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return nil, invalid("birth_date", "date has wrong format, use YYYY-MM-DD")
		}
		customer.BirthDate = &d
	}

	if err := s.store.UpdateCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// UpdateMembership changes a customer's membership tier
func (s *CustomerService) UpdateMembership(ctx context.Context, userID int64, req *MembershipRequest) (*models.Customer, error) {
	if !validMembership(req.Membership) {
		return nil, invalid("membership", fmt.Sprintf("%q is not a valid choice", req.Membership))
	}
	customer, err := s.store.GetCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	customer.Membership = req.Membership
	if err := s.store.UpdateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.logger.Info("Membership updated",
		zap.Int64("customer_id", userID),
		zap.String("membership", req.Membership))
	return customer, nil
}

func (s *CustomerService) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	return s.store.ListAddresses(ctx, customerID)
}

func (s *CustomerService) AddAddress(ctx context.Context, customerID int64, req *AddressRequest) (*models.Address, error) {
	address := &models.Address{
		CustomerID: customerID,
		City:       req.City,
		Street:     req.Street,
	}
	if err := s.store.CreateAddress(ctx, address); err != nil {
		return nil, fmt.Errorf("failed to add address: %w", err)
	}
	return address, nil
}

func (s *CustomerService) DeleteAddress(ctx context.Context, customerID, addressID int64) error {
	return s.store.DeleteAddress(ctx, customerID, addressID)
}

func validMembership(m string) bool {
	switch m {
	case models.MembershipBronze, models.MembershipSilver, models.MembershipGold:
		return true
	}
	return false
}
