package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cartLineCols = []string{"id", "product_id", "quantity", "title", "price", "collection_id"}
	orderCols    = []string{"id", "customer_id", "placed_at", "payment_status", "idempotency_key", "cart_id"}
	orderItemCol = []string{"id", "order_id", "product_id", "quantity", "unit_price"}
)

func newTestOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock, *fakePublisher, *fakeCache, *fakeLocker) {
	s, mock := newMockStore(t)
	pub := &fakePublisher{}
	cache := newFakeCache()
	locker := &fakeLocker{}
	svc := NewOrderService(s, cache, locker, pub)
	svc.now = func() time.Time { return testNow }
	return svc, mock, pub, cache, locker
}

func expectCartLocked(mock sqlmock.Sqlmock, cartID uuid.UUID) {
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM carts WHERE id = $1 FOR UPDATE")).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(cartID.String(), testNow))
}

func TestPlaceOrder(t *testing.T) {
	svc, mock, pub, cache, locker := newTestOrderService(t)
	cartID := uuid.New()
	start, end := testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1)

	expectCartLocked(mock, cartID)
	mock.ExpectQuery(q("FROM cart_items ci JOIN products p ON p.id = ci.product_id WHERE ci.cart_id = $1")).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows(cartLineCols).
			AddRow(1, 10, 2, "Mug", "20.00", 1).
			AddRow(2, 11, 1, "Tee", "15.00", 2))
	mock.ExpectQuery(q("FROM product_promotions pp")).
		WillReturnRows(sqlmock.NewRows(promotionCols).
			AddRow(10, 5, "Mug deal", "mug-deal", "25", start, end))
	mock.ExpectQuery(q("FROM collections c JOIN promotions pr")).
		WillReturnRows(sqlmock.NewRows(collPromoCols).
			AddRow(2, 6, "Apparel", "apparel", "10", start, end))
	mock.ExpectQuery(q("INSERT INTO orders")).
		WithArgs(int64(7), models.PaymentStatusPending, nil, cartID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "placed_at"}).AddRow(100, testNow))

	mock.ExpectQuery(q("INSERT INTO order_items")).
		WithArgs(int64(100), int64(10), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1000))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(2, int64(10)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(10, 8, 3))

	mock.ExpectQuery(q("INSERT INTO order_items")).
		WithArgs(int64(100), int64(11), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1001))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(1, int64(11)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(11, 2, 5))

	mock.ExpectExec(q("DELETE FROM carts WHERE id = $1")).
		WithArgs(cartID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(100), order.ID)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	// 20.00 less 25% direct promotion; 15.00 less 10% collection promotion
	assert.Equal(t, "15.00", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "13.50", order.Items[1].UnitPrice.StringFixed(2))
	assert.True(t, decimal.RequireFromString("43.50").Equal(order.Total))

	require.Len(t, pub.orderPlaced, 1)
	assert.Equal(t, models.EventTypeOrderPlaced, pub.orderPlaced[0].EventType)
	assert.Equal(t, int64(7), pub.orderPlaced[0].CustomerID)
	require.Len(t, pub.stockLow, 1)
	assert.Equal(t, int64(11), pub.stockLow[0].ProductID)

	assert.Equal(t, 8, cache.stocks[10].Quantity)
	assert.Equal(t, 2, cache.stocks[11].Quantity)
	assert.Equal(t, []string{"checkout:" + cartID.String()}, locker.released)
}

func TestPlaceOrderCartNotFound(t *testing.T) {
	svc, mock, pub, _, _ := newTestOrderService(t)
	cartID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM carts WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.orderPlaced)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	svc, mock, pub, _, _ := newTestOrderService(t)
	cartID := uuid.New()

	expectCartLocked(mock, cartID)
	mock.ExpectQuery(q("FROM cart_items ci")).
		WillReturnRows(sqlmock.NewRows(cartLineCols))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	assert.ErrorIs(t, err, ErrCartEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.orderPlaced)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	svc, mock, pub, cache, locker := newTestOrderService(t)
	cartID := uuid.New()

	expectCartLocked(mock, cartID)
	mock.ExpectQuery(q("FROM cart_items ci")).
		WillReturnRows(sqlmock.NewRows(cartLineCols).
			AddRow(1, 10, 1, "Mug", "20.00", 1).
			AddRow(2, 11, 5, "Tee", "15.00", 2))
	expectNoPromotions(mock)
	mock.ExpectQuery(q("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "placed_at"}).AddRow(100, testNow))
	mock.ExpectQuery(q("INSERT INTO order_items")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1000))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(1, int64(10)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(10, 4, 0))
	mock.ExpectQuery(q("INSERT INTO order_items")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1001))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(5, int64(11)).
		WillReturnRows(sqlmock.NewRows(stockCols))
	mock.ExpectQuery(q("SELECT product_id, quantity, threshold FROM stock WHERE product_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(11, 3, 0))
	mock.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(11), stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Empty(t, pub.orderPlaced)
	assert.Empty(t, cache.stocks, "no stock is cached for a rolled back checkout")
	assert.Len(t, locker.released, 1)
}

func TestPlaceOrderCheckoutInProgress(t *testing.T) {
	svc, mock, _, _, locker := newTestOrderService(t)
	cartID := uuid.New()
	locker.held = map[string]bool{"checkout:" + cartID.String(): true}

	_, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	svc, mock, pub, _, _ := newTestOrderService(t)
	key := "retry-1"
	cartID := uuid.New()

	mock.ExpectQuery(q("FROM orders WHERE customer_id = $1 AND idempotency_key = $2")).
		WithArgs(int64(7), key).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(55, 7, testNow, models.PaymentStatusPending, key, cartID.String()))
	mock.ExpectQuery(q("FROM order_items WHERE order_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows(orderItemCol).AddRow(1, 55, 10, 3, "4.00"))

	order, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID, IdempotencyKey: key})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(55), order.ID)
	assert.Equal(t, "12.00", order.Total.StringFixed(2))
	assert.Empty(t, pub.orderPlaced)
}

func TestPlaceOrderIdempotencyKeyReusedForAnotherCart(t *testing.T) {
	svc, mock, pub, _, _ := newTestOrderService(t)
	key := "retry-1"

	mock.ExpectQuery(q("FROM orders WHERE customer_id = $1 AND idempotency_key = $2")).
		WithArgs(int64(7), key).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(55, 7, testNow, models.PaymentStatusPending, key, uuid.NewString()))

	order, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: uuid.New(), IdempotencyKey: key})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.orderPlaced)
}

func TestPlaceOrderIdempotencyKeyScopedToCustomer(t *testing.T) {
	svc, mock, _, _, _ := newTestOrderService(t)
	key := "shared-key"
	cartID := uuid.New()

	// customer 7 already used the key; customer 8 gets no match and checks out its own cart
	mock.ExpectQuery(q("FROM orders WHERE customer_id = $1 AND idempotency_key = $2")).
		WithArgs(int64(8), key).
		WillReturnRows(sqlmock.NewRows(orderCols))
	expectCartLocked(mock, cartID)
	mock.ExpectQuery(q("FROM cart_items ci")).
		WillReturnRows(sqlmock.NewRows(cartLineCols).AddRow(1, 10, 1, "Mug", "20.00", 1))
	expectNoPromotions(mock)
	mock.ExpectQuery(q("INSERT INTO orders")).
		WithArgs(int64(8), models.PaymentStatusPending, key, cartID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "placed_at"}).AddRow(101, testNow))
	mock.ExpectQuery(q("INSERT INTO order_items")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1002))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(1, int64(10)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(10, 9, 0))
	mock.ExpectExec(q("DELETE FROM carts WHERE id = $1")).
		WithArgs(cartID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.PlaceOrder(context.Background(), 8, &CheckoutRequest{CartID: cartID, IdempotencyKey: key})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(101), order.ID)
	assert.Equal(t, int64(8), order.CustomerID)
}

func TestPlaceOrderDecrementsStockInProductOrder(t *testing.T) {
	svc, mock, _, _, _ := newTestOrderService(t)
	cartID := uuid.New()

	expectCartLocked(mock, cartID)
	mock.ExpectQuery(q("FROM cart_items ci")).
		WillReturnRows(sqlmock.NewRows(cartLineCols).
			AddRow(1, 11, 1, "Tee", "15.00", 2).
			AddRow(2, 10, 1, "Mug", "20.00", 1))
	expectNoPromotions(mock)
	mock.ExpectQuery(q("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "placed_at"}).AddRow(100, testNow))
	mock.ExpectQuery(q("INSERT INTO order_items")).
		WithArgs(int64(100), int64(10), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1000))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(1, int64(10)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(10, 9, 0))
	mock.ExpectQuery(q("INSERT INTO order_items")).
		WithArgs(int64(100), int64(11), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1001))
	mock.ExpectQuery(q("UPDATE stock SET quantity = quantity - $1")).
		WithArgs(1, int64(11)).
		WillReturnRows(sqlmock.NewRows(stockCols).AddRow(11, 9, 0))
	mock.ExpectExec(q("DELETE FROM carts WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := svc.PlaceOrder(context.Background(), 7, &CheckoutRequest{CartID: cartID})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(10), order.Items[0].ProductID)
	assert.Equal(t, int64(11), order.Items[1].ProductID)
}

func TestGetOrderHidesOtherCustomersOrders(t *testing.T) {
	svc, mock, _, _, _ := newTestOrderService(t)

	mock.ExpectQuery(q("FROM orders WHERE id = $1")).
		WithArgs(int64(55)).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(55, 8, testNow, models.PaymentStatusPending, nil, nil))

	_, err := svc.GetOrder(context.Background(), Actor{UserID: 7}, 55)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _, _ := newTestOrderService(t)

	_, err := svc.UpdateOrderStatus(context.Background(), 1, "SHIPPED")
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "payment_status", validation.Field)
}
