package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "username", "email", "first_name", "last_name", "password_hash", "is_staff", "date_joined"}

func newTestCustomerService(t *testing.T) (*CustomerService, sqlmock.Sqlmock, *auth.TokenManager) {
	s, mock := newMockStore(t)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewCustomerService(s, tokens), mock, tokens
}

func TestRegisterCreatesCustomer(t *testing.T) {
	svc, mock, _ := newTestCustomerService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO users")).
		WithArgs("alice", "alice@example.com", "Alice", "Smith", sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date_joined"}).AddRow(7, testNow))
	mock.ExpectExec(q("INSERT INTO customers (user_id, membership) VALUES ($1, $2)")).
		WithArgs(int64(7), models.MembershipBronze).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.Register(context.Background(), &RegisterRequest{
		Username:  "alice",
		Email:     "Alice@Example.com",
		Password:  "correct-horse",
		FirstName: "Alice",
		LastName:  "Smith",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(7), user.ID)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "correct-horse"))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, mock, _ := newTestCustomerService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "alice", Email: "a@example.com", Password: "correct-horse", FirstName: "Alice", LastName: "Smith",
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		svc, mock, tokens := newTestCustomerService(t)
		mock.ExpectQuery(q("FROM users WHERE username = $1")).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "alice", "a@example.com", "Alice", "Smith", hash, true, testNow))

		resp, err := svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "correct-horse"})
		require.NoError(t, err)

		principal, err := tokens.Validate(resp.Access)
		require.NoError(t, err)
		assert.Equal(t, int64(7), principal.UserID)
		assert.True(t, principal.IsStaff)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, mock, _ := newTestCustomerService(t)
		mock.ExpectQuery(q("FROM users WHERE username = $1")).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "alice", "a@example.com", "Alice", "Smith", hash, false, testNow))

		_, err := svc.Login(context.Background(), &LoginRequest{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, mock, _ := newTestCustomerService(t)
		mock.ExpectQuery(q("FROM users WHERE username = $1")).
			WillReturnRows(sqlmock.NewRows(userCols))

		_, err := svc.Login(context.Background(), &LoginRequest{Username: "nobody", Password: "x"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUpdateMembershipRejectsUnknownTier(t *testing.T) {
	svc, _, _ := newTestCustomerService(t)

	_, err := svc.UpdateMembership(context.Background(), 7, &MembershipRequest{Membership: "P"})
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "membership", validation.Field)
}

func TestUpdateProfileParsesBirthDate(t *testing.T) {
	svc, mock, _ := newTestCustomerService(t)
	phone := "555-0100"
	birth := "1990-04-12"

	mock.ExpectQuery(q("FROM customers c JOIN users u ON u.id = c.user_id WHERE c.user_id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "phone", "birth_date", "membership", "first_name", "last_name", "email"}).
			AddRow(7, nil, nil, "G", "Alice", "Smith", "a@example.com"))
	mock.ExpectExec(q("UPDATE customers SET phone = $1, birth_date = $2, membership = $3 WHERE user_id = $4")).
		WithArgs(phone, sqlmock.AnyArg(), "G", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	customer, err := svc.UpdateProfile(context.Background(), 7, &ProfileRequest{Phone: &phone, BirthDate: &birth})
	require.NoError(t, err)
	require.NotNil(t, customer.BirthDate)
	assert.Equal(t, time.April, customer.BirthDate.Month())
	assert.Equal(t, "G", customer.Membership)
}
