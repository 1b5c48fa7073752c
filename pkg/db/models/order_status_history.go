package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

// OrderStatusHistory is the append-only audit trail of order status changes.
// Rows are never updated or deleted.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Status    enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	Note      string            `gorm:"column:note"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
