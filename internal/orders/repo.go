package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

// Repository exposes persistence helpers for orders. Payment status writes
// go through CASPaymentStatus exclusively so concurrent transitions
// linearize on the database row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	ListByUser(ctx context.Context, input ListOrdersInput) ([]models.Order, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	CASPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	IncrementPaymentAttempts(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("PaymentDetail").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var detail models.PaymentDetail
	err := r.db.WithContext(ctx).
		First(&detail, "payment_id = ?", paymentID).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, detail.OrderID)
}

func (r *repositoryImpl) ListByUser(ctx context.Context, input ListOrdersInput) ([]models.Order, error) {
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("PaymentDetail").
		Where("user_id = ?", input.UserID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// CASPaymentStatus applies from->to only when the row still holds from.
// A false return means another transition won; the caller treats that as a
// stale no-op, never an error.
func (r *repositoryImpl) CASPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Update("payment_status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) IncrementPaymentAttempts(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_attempts", gorm.Expr("payment_attempts + 1")).Error
}

func (r *repositoryImpl) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("order_status", status).Error
}

func (r *repositoryImpl) AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}
