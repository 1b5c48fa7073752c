package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots a purchased product. Unit price is captured at order
// creation and never updated afterwards.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPricePaisa int       `gorm:"column:unit_price_paisa;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	TotalPaisa     int       `gorm:"column:total_paisa;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
