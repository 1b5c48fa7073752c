package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentDetail holds gateway correlation ids and the verbatim gateway
// responses for an order. Raw payloads are kept for audit only and never
// branched on downstream.
type PaymentDetail struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payment_details_order"`
	PaymentID       string          `gorm:"column:payment_id"`
	TrxID           string          `gorm:"column:trx_id"`
	RefundTrxID     string          `gorm:"column:refund_trx_id"`
	PaidAt          *time.Time      `gorm:"column:paid_at"`
	FailedAt        *time.Time      `gorm:"column:failed_at"`
	FailureReason   *string         `gorm:"column:failure_reason"`
	CreateResponse  json.RawMessage `gorm:"column:create_response;type:jsonb"`
	ExecuteResponse json.RawMessage `gorm:"column:execute_response;type:jsonb"`
	QueryResponse   json.RawMessage `gorm:"column:query_response;type:jsonb"`
	RefundResponse  json.RawMessage `gorm:"column:refund_response;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
