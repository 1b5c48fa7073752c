package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
)

// Repository persists gateway correlation state for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentDetail, error)
	RecordIntent(ctx context.Context, orderID uuid.UUID, paymentID string, createResponse json.RawMessage) error
	RecordCompletion(ctx context.Context, orderID uuid.UUID, trxID string, paidAt time.Time, executeResponse json.RawMessage) error
	RecordFailure(ctx context.Context, orderID uuid.UUID, reason string, failedAt time.Time) error
	RecordRefund(ctx context.Context, orderID uuid.UUID, refundTrxID string, refundResponse json.RawMessage) error
	RecordQuery(ctx context.Context, orderID uuid.UUID, queryResponse json.RawMessage) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payment detail repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentDetail, error) {
	var detail models.PaymentDetail
	err := r.db.WithContext(ctx).First(&detail, "order_id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// RecordIntent upserts the detail row keyed on order_id. Each new intent
// replaces the previous payment_id, so retries always correlate against the
// latest attempt.
func (r *repositoryImpl) RecordIntent(ctx context.Context, orderID uuid.UUID, paymentID string, createResponse json.RawMessage) error {
	detail := models.PaymentDetail{
		OrderID:        orderID,
		PaymentID:      paymentID,
		CreateResponse: createResponse,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payment_id", "create_response", "updated_at"}),
		}).
		Create(&detail).Error
}

func (r *repositoryImpl) RecordCompletion(ctx context.Context, orderID uuid.UUID, trxID string, paidAt time.Time, executeResponse json.RawMessage) error {
	updates := map[string]any{
		"trx_id":  trxID,
		"paid_at": paidAt,
	}
	if len(executeResponse) > 0 {
		updates["execute_response"] = executeResponse
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentDetail{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

func (r *repositoryImpl) RecordFailure(ctx context.Context, orderID uuid.UUID, reason string, failedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentDetail{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"failed_at":      failedAt,
			"failure_reason": reason,
		}).Error
}

func (r *repositoryImpl) RecordRefund(ctx context.Context, orderID uuid.UUID, refundTrxID string, refundResponse json.RawMessage) error {
	updates := map[string]any{
		"refund_trx_id": refundTrxID,
	}
	if len(refundResponse) > 0 {
		updates["refund_response"] = refundResponse
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentDetail{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

func (r *repositoryImpl) RecordQuery(ctx context.Context, orderID uuid.UUID, queryResponse json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentDetail{}).
		Where("order_id = ?", orderID).
		Update("query_response", queryResponse).Error
}
