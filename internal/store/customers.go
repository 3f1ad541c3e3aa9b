package store

import (
	"context"

	"storefront/internal/models"
)

const customerColumns = `c.user_id, c.phone, c.birth_date, c.membership, u.first_name, u.last_name, u.email`

// CreateUser inserts a user and fills its generated fields
func (c *conn) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, first_name, last_name, password_hash, is_staff)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, date_joined`

	return translate(c.q.GetContext(ctx, user, query,
		user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsStaff))
}

// GetUserByID retrieves a user by ID
func (c *conn) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := c.q.GetContext(ctx, &user, `
		SELECT id, username, email, first_name, last_name, password_hash, is_staff, date_joined
		FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (c *conn) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := c.q.GetContext(ctx, &user, `
		SELECT id, username, email, first_name, last_name, password_hash, is_staff, date_joined
		FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// CreateCustomer creates the default customer profile for a user
func (c *conn) CreateCustomer(ctx context.Context, userID int64) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO customers (user_id, membership) VALUES ($1, $2)",
		userID, models.MembershipBronze)
	return translate(err)
}

// GetCustomer retrieves a customer joined with its user's name and email
func (c *conn) GetCustomer(ctx context.Context, userID int64) (*models.Customer, error) {
	var customer models.Customer
	err := c.q.GetContext(ctx, &customer, `
		SELECT `+customerColumns+`
		FROM customers c JOIN users u ON u.id = c.user_id
		WHERE c.user_id = $1`, userID)
	if err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

// ListCustomers lists customers ordered by name, optionally filtered by membership
func (c *conn) ListCustomers(ctx context.Context, membership string, limit, offset int) ([]models.Customer, int, error) {
	var total int
	if err := c.q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM customers WHERE ($1 = '' OR membership = $1)", membership); err != nil {
		return nil, 0, err
	}

	customers := []models.Customer{}
	err := c.q.SelectContext(ctx, &customers, `
		SELECT `+customerColumns+`
		FROM customers c JOIN users u ON u.id = c.user_id
		WHERE ($1 = '' OR c.membership = $1)
		ORDER BY u.first_name, u.last_name
		LIMIT $2 OFFSET $3`, membership, limit, offset)
	return customers, total, err
}

// UpdateCustomer updates the editable profile fields
func (c *conn) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE customers SET phone = $1, birth_date = $2, membership = $3 WHERE user_id = $4",
		customer.Phone, customer.BirthDate, customer.Membership, customer.UserID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// ListAddresses lists the addresses of a customer
func (c *conn) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	addresses := []models.Address{}
	err := c.q.SelectContext(ctx, &addresses,
		"SELECT id, customer_id, city, street FROM addresses WHERE customer_id = $1 ORDER BY id", customerID)
	return addresses, err
}

// CreateAddress adds an address to a customer
func (c *conn) CreateAddress(ctx context.Context, address *models.Address) error {
	return translate(c.q.GetContext(ctx, &address.ID,
		"INSERT INTO addresses (customer_id, city, street) VALUES ($1, $2, $3) RETURNING id",
		address.CustomerID, address.City, address.Street))
}

// DeleteAddress removes an address owned by the customer
func (c *conn) DeleteAddress(ctx context.Context, customerID, addressID int64) error {
	res, err := c.q.ExecContext(ctx,
		"DELETE FROM addresses WHERE id = $1 AND customer_id = $2", addressID, customerID)
	if err != nil {
		return err
	}
	return affected(res)
}
