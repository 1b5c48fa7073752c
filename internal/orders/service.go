package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/inventory"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/shipping"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines customer and admin order operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	List(ctx context.Context, input ListOrdersInput) ([]models.Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	AdminUpdateStatus(ctx context.Context, input AdminStatusInput) (*models.Order, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventory.Adjuster
}

// OrderCreatedEvent is emitted when an order is persisted.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	UserID         uuid.UUID            `json:"user_id"`
	PaymentMethod  enums.PaymentMethod  `json:"payment_method"`
	ShippingMethod enums.ShippingMethod `json:"shipping_method"`
	TotalPaisa     int                  `json:"total_paisa"`
	ItemCount      int                  `json:"item_count"`
}

// OrderStatusChangedEvent is emitted for fulfillment lifecycle moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Note    string            `json:"note,omitempty"`
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, adjuster inventory.Adjuster) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if adjuster == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outboxSvc,
		inventory: adjuster,
	}, nil
}

// Create validates the requested lines, reserves stock, and persists the
// order with its price snapshot in one transaction. Payment initiation is a
// separate step owned by the reconciliation engine; an order survives even
// when its payment leg fails.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	qtyByProduct := make(map[uuid.UUID]int, len(input.Items))
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	quote := shipping.Classify(input.ShippingCity)

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		products, err := repo.FindProducts(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		productByID := make(map[uuid.UUID]models.Product, len(products))
		for _, product := range products {
			productByID[product.ID] = product
		}
		for _, id := range productIDs {
			if _, ok := productByID[id]; !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id))
			}
		}

		lines := make([]inventory.Line, 0, len(productIDs))
		for _, id := range productIDs {
			lines = append(lines, inventory.Line{ProductID: id, Qty: qtyByProduct[id]})
		}
		if err := s.inventory.Reserve(ctx, tx, lines); err != nil {
			return err
		}

		subtotal := 0
		items := make([]models.OrderItem, 0, len(productIDs))
		for _, id := range productIDs {
			product := productByID[id]
			qty := qtyByProduct[id]
			lineTotal := product.PricePaisa * qty
			subtotal += lineTotal
			items = append(items, models.OrderItem{
				ProductID:      product.ID,
				Name:           product.Name,
				UnitPricePaisa: product.PricePaisa,
				Qty:            qty,
				TotalPaisa:     lineTotal,
			})
		}

		order = &models.Order{
			UserID:          input.UserID,
			PaymentMethod:   input.PaymentMethod,
			PaymentStatus:   enums.PaymentStatusPending,
			OrderStatus:     enums.OrderStatusPending,
			ShippingMethod:  quote.Method,
			ShippingCity:    input.ShippingCity,
			ShippingAddress: input.ShippingAddress,
			SubtotalPaisa:   subtotal,
			ShippingPaisa:   quote.CostPaisa,
			TotalPaisa:      subtotal + quote.CostPaisa,
			Items:           items,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  enums.OrderStatusPending,
			Note:    "order placed",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCreated,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
			Data: OrderCreatedEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				PaymentMethod:  order.PaymentMethod,
				ShippingMethod: order.ShippingMethod,
				TotalPaisa:     order.TotalPaisa,
				ItemCount:      len(order.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListOrdersInput) ([]models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByUser(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// AdminUpdateStatus moves the fulfillment lifecycle forward. Processing a
// prepaid order is refused until its payment has completed; cash on delivery
// settles offline and is exempt.
func (s *service) AdminUpdateStatus(ctx context.Context, input AdminStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.NextStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loaded, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if !loaded.OrderStatus.CanTransitionTo(input.NextStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", loaded.OrderStatus, input.NextStatus))
		}
		if input.NextStatus == enums.OrderStatusProcessing &&
			loaded.PaymentMethod.IsPrepaid() &&
			loaded.PaymentStatus != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot process an unpaid order")
		}

		if err := repo.UpdateOrderStatus(ctx, loaded.ID, input.NextStatus); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID: loaded.ID,
			Status:  input.NextStatus,
			Note:    input.Note,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		previous := loaded.OrderStatus
		loaded.OrderStatus = input.NextStatus
		order = loaded

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderStatusMoved,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   loaded.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: enums.RoleAdmin.String()},
			Data: OrderStatusChangedEvent{
				OrderID: loaded.ID,
				From:    previous,
				To:      input.NextStatus,
				Note:    input.Note,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
