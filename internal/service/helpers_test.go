package service

import (
	"context"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(sqlx.NewDb(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

var (
	productCols   = []string{"id", "title", "slug", "description", "price", "is_digital", "last_update", "collection_id"}
	promotionCols = []string{"product_id", "id", "title", "slug", "discount", "start_date", "end_date"}
	collPromoCols = []string{"collection_id", "id", "title", "slug", "discount", "start_date", "end_date"}
	stockCols     = []string{"product_id", "quantity", "threshold"}
)

func expectNoPromotions(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(q("FROM product_promotions pp")).
		WillReturnRows(sqlmock.NewRows(promotionCols))
	mock.ExpectQuery(q("FROM collections c JOIN promotions pr")).
		WillReturnRows(sqlmock.NewRows(collPromoCols))
}

type fakePublisher struct {
	mu          sync.Mutex
	orderPlaced []*models.OrderPlacedEvent
	stockLow    []*models.StockLowEvent
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderPlaced = append(p.orderPlaced, e)
	return nil
}

func (p *fakePublisher) PublishStockLow(_ context.Context, e *models.StockLowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stockLow = append(p.stockLow, e)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	stocks map[int64]models.Stock
}

func newFakeCache() *fakeCache {
	return &fakeCache{stocks: make(map[int64]models.Stock)}
}

func (c *fakeCache) GetStock(_ context.Context, productID int64) (*models.Stock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stocks[productID]
	if !ok {
		return nil, redisclient.ErrCacheMiss
	}
	return &s, nil
}

func (c *fakeCache) SetStock(_ context.Context, stock models.Stock) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stocks[stock.ProductID] = stock
	return nil
}

func (c *fakeCache) DeleteStock(_ context.Context, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stocks, productID)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.held[key] {
		return "", false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, _ string) error {
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}
