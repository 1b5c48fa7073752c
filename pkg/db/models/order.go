package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

// Order is the source of truth for the payment state machine. PaymentStatus
// is only ever changed via compare-and-set updates keyed on the expected
// prior status.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	OrderStatus     enums.OrderStatus    `gorm:"column:order_status;type:order_status;not null;default:'pending'"`
	ShippingMethod  enums.ShippingMethod `gorm:"column:shipping_method;type:shipping_method;not null"`
	ShippingCity    string               `gorm:"column:shipping_city;not null"`
	ShippingAddress string               `gorm:"column:shipping_address;not null"`
	SubtotalPaisa   int                  `gorm:"column:subtotal_paisa;not null"`
	ShippingPaisa   int                  `gorm:"column:shipping_paisa;not null"`
	TotalPaisa      int                  `gorm:"column:total_paisa;not null"`
	PaymentAttempts int                  `gorm:"column:payment_attempts;not null;default:0"`
	Items           []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaymentDetail   *PaymentDetail       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory   []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
