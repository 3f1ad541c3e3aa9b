package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestCreateOrder(t *testing.T) {
	s, mock := newMockStore(t)
	placed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	key := "checkout-key-1"
	cartID := uuid.New()

	mock.ExpectQuery(q("INSERT INTO orders (customer_id, payment_status, idempotency_key, cart_id)")).
		WithArgs(int64(7), models.PaymentStatusPending, key, cartID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "placed_at"}).AddRow(42, placed))

	order := &models.Order{CustomerID: 7, PaymentStatus: models.PaymentStatusPending, IdempotencyKey: &key, CartID: &cartID}
	require.NoError(t, s.CreateOrder(context.Background(), order))

	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, placed, order.PlacedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderDuplicateIdempotencyKey(t *testing.T) {
	s, mock := newMockStore(t)
	key := "checkout-key-1"

	mock.ExpectQuery(q("INSERT INTO orders")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_customer_id_idempotency_key_key"})

	err := s.CreateOrder(context.Background(), &models.Order{CustomerID: 7, IdempotencyKey: &key})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByIdempotencyKeyMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM orders WHERE customer_id = $1 AND idempotency_key = $2")).
		WithArgs(int64(7), "unknown").
		WillReturnError(sql.ErrNoRows)

	order, err := s.GetOrderByIdempotencyKey(context.Background(), 7, "unknown")
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestGetOrderByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM orders WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetOrderByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecrementStock(t *testing.T) {
	t.Run("enough stock", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1 WHERE product_id = $2 AND quantity >= $1")).
			WithArgs(3, int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "threshold"}).AddRow(5, 7, 2))

		stock, err := s.DecrementStock(context.Background(), 5, 3)
		require.NoError(t, err)
		assert.Equal(t, models.Stock{ProductID: 5, Quantity: 7, Threshold: 2}, *stock)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
			WithArgs(30, int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "threshold"}))

		_, err := s.DecrementStock(context.Background(), 5, 30)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListProductsBuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)
	collectionID := int64(3)
	updated := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM products WHERE collection_id = $1 AND title ILIKE $2 ESCAPE '\'`)).
		WithArgs(collectionID, "%mug%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q(`FROM products WHERE collection_id = $1 AND title ILIKE $2 ESCAPE '\' ORDER BY price DESC, title, id LIMIT $3 OFFSET $4`)).
		WithArgs(collectionID, "%mug%", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "slug", "description", "price", "is_digital", "last_update", "collection_id",
		}).AddRow(1, "Coffee Mug", "coffee-mug", "", "12.50", false, updated, 3))

	products, total, err := s.ListProducts(context.Background(), ProductFilter{
		CollectionID: &collectionID,
		Search:       "mug",
		Ordering:     "-price",
		Limit:        10,
		Offset:       20,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, "Coffee Mug", products[0].Title)
	assert.True(t, decimal.RequireFromString("12.50").Equal(products[0].Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsEscapesSearchWildcards(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM products WHERE title ILIKE $1")).
		WithArgs(`%50\%\_off\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(q("ORDER BY title, price, id LIMIT $2 OFFSET $3")).
		WithArgs(`%50\%\_off\\%`, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, total, err := s.ListProducts(context.Background(), ProductFilter{Search: `50%_off\`, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsRejectsUnknownOrdering(t *testing.T) {
	s, _ := newMockStore(t)

	_, _, err := s.ListProducts(context.Background(), ProductFilter{Ordering: "price; DROP TABLE products"})
	assert.Error(t, err)
	assert.False(t, ValidProductOrdering("inventory"))
	assert.True(t, ValidProductOrdering("-last_update"))
}

func TestDeleteCollectionReferenced(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(q("DELETE FROM collections WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "products_collection_id_fkey"})

	err := s.DeleteCollection(context.Background(), 2)
	assert.ErrorIs(t, err, ErrReferenced)
}

func TestDeleteCartNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(q("DELETE FROM carts WHERE id = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteCart(context.Background(), id), ErrNotFound)
}

func TestAddCartItemOverflow(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(q("INSERT INTO cart_items (cart_id, product_id, quantity)")).
		WithArgs(id, int64(1), 5).
		WillReturnError(&pq.Error{Code: "22003", Message: "integer out of range"})

	_, err := s.AddCartItem(context.Background(), id, 1, 5)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestGetProductPromotionsGroupsByProduct(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	mock.ExpectQuery(q("FROM product_promotions pp")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"product_id", "id", "title", "slug", "discount", "start_date", "end_date",
		}).
			AddRow(1, 10, "Spring", "spring", "10", start, end).
			AddRow(1, 11, "Flash", "flash", "25", start, end).
			AddRow(2, 10, "Spring", "spring", "10", start, end))

	promos, err := s.GetProductPromotions(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Len(t, promos[1], 2)
	assert.Len(t, promos[2], 1)
	assert.Empty(t, promos[3])
	assert.Equal(t, "Flash", promos[1][1].Title)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM carts WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.DeleteCart(context.Background(), uuid.New()); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO processed_events")).
		WithArgs("evt-1", models.EventTypeStockLow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.MarkEventProcessed(context.Background(), "evt-1", models.EventTypeStockLow)
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
