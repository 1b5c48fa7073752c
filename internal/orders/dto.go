package orders

import (
	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

// CreateOrderItemInput is one requested product line.
type CreateOrderItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput captures everything needed to place an order.
type CreateOrderInput struct {
	UserID          uuid.UUID
	PaymentMethod   enums.PaymentMethod
	ShippingCity    string
	ShippingAddress string
	Items           []CreateOrderItemInput
}

// ListOrdersInput filters and pages a customer's order history.
type ListOrdersInput struct {
	UserID uuid.UUID
	Limit  int
	Offset int
}

// AdminStatusInput moves an order through the fulfillment lifecycle.
type AdminStatusInput struct {
	OrderID     uuid.UUID
	NextStatus  enums.OrderStatus
	Note        string
	ActorUserID uuid.UUID
}
