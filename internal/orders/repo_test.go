package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  order_status TEXT NOT NULL DEFAULT 'pending',
  shipping_method TEXT NOT NULL,
  shipping_city TEXT NOT NULL,
  shipping_address TEXT NOT NULL,
  subtotal_paisa INTEGER NOT NULL,
  shipping_paisa INTEGER NOT NULL,
  total_paisa INTEGER NOT NULL,
  payment_attempts INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_paisa INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  total_paisa INTEGER NOT NULL,
  created_at DATETIME
);`
	paymentDetails := `
CREATE TABLE IF NOT EXISTS payment_details (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  payment_id TEXT,
  trx_id TEXT,
  refund_trx_id TEXT,
  paid_at DATETIME,
  failed_at DATETIME,
  failure_reason TEXT,
  create_response TEXT,
  execute_response TEXT,
  query_response TEXT,
  refund_response TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	histories := `
CREATE TABLE IF NOT EXISTS order_status_histories (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(orderItems).Error)
	require.NoError(t, db.Exec(paymentDetails).Error)
	require.NoError(t, db.Exec(histories).Error)
	return db
}

func newOrder(t *testing.T, db *gorm.DB, status enums.PaymentStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodBkash,
		PaymentStatus:   status,
		OrderStatus:     enums.OrderStatusPending,
		ShippingMethod:  enums.ShippingMethodInsideDhaka,
		ShippingCity:    "Dhaka",
		ShippingAddress: "House 7, Road 11, Banani",
		SubtotalPaisa:   50000,
		ShippingPaisa:   7000,
		TotalPaisa:      57000,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestCASPaymentStatusApplies(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := newOrder(t, db, enums.PaymentStatusPending)

	applied, err := repo.CASPaymentStatus(context.Background(), order.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.True(t, applied)

	reloaded, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, reloaded.PaymentStatus)
}

func TestCASPaymentStatusStaleLoses(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := newOrder(t, db, enums.PaymentStatusPending)

	applied, err := repo.CASPaymentStatus(context.Background(), order.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted)
	require.NoError(t, err)
	require.True(t, applied)

	// A late failure report must lose against the completed transition.
	applied, err = repo.CASPaymentStatus(context.Background(), order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)

	reloaded, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, reloaded.PaymentStatus)
}

func TestCASPaymentStatusUnknownOrder(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	applied, err := repo.CASPaymentStatus(context.Background(), uuid.New(), enums.PaymentStatusPending, enums.PaymentStatusFailed)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestIncrementPaymentAttempts(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := newOrder(t, db, enums.PaymentStatusPending)

	require.NoError(t, repo.IncrementPaymentAttempts(context.Background(), order.ID))
	require.NoError(t, repo.IncrementPaymentAttempts(context.Background(), order.ID))

	reloaded, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.PaymentAttempts)
}

func TestListByUserScopesAndPages(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	mine := newOrder(t, db, enums.PaymentStatusPending)
	newOrder(t, db, enums.PaymentStatusPending) // another user's order

	rows, err := repo.ListByUser(context.Background(), ListOrdersInput{UserID: mine.UserID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0].ID)
}

func TestFindByPaymentID(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := newOrder(t, db, enums.PaymentStatusPending)

	detail := &models.PaymentDetail{
		ID:        uuid.New(),
		OrderID:   order.ID,
		PaymentID: "TR0011abcdef",
	}
	require.NoError(t, db.Create(detail).Error)

	found, err := repo.FindByPaymentID(context.Background(), "TR0011abcdef")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByPaymentID(context.Background(), "TR-missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAppendHistoryKeepsAllRows(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := newOrder(t, db, enums.PaymentStatusPending)

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing} {
		require.NoError(t, repo.AppendHistory(context.Background(), &models.OrderStatusHistory{
			ID:      uuid.New(),
			OrderID: order.ID,
			Status:  status,
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OrderStatusHistory{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
