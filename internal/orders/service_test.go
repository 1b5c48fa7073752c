package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/inventory"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/outbox"
)

type stubOrdersRepo struct {
	products     []models.Product
	order        *models.Order
	created      *models.Order
	history      []models.OrderStatusHistory
	status       enums.OrderStatus
	statusSet    bool
	casResponses []bool
	casCalls     int
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.created = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrdersRepo) ListByUser(ctx context.Context, input ListOrdersInput) ([]models.Order, error) {
	if s.order == nil {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersRepo) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return s.products, nil
}

func (s *stubOrdersRepo) CASPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	idx := s.casCalls
	s.casCalls++
	if idx < len(s.casResponses) {
		return s.casResponses[idx], nil
	}
	return true, nil
}

func (s *stubOrdersRepo) IncrementPaymentAttempts(ctx context.Context, orderID uuid.UUID) error {
	return nil
}

func (s *stubOrdersRepo) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	s.status = status
	s.statusSet = true
	return nil
}

func (s *stubOrdersRepo) AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error {
	s.history = append(s.history, *history)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubAdjuster struct {
	reserved   [][]inventory.Line
	released   [][]inventory.Line
	reserveErr error
}

func (s *stubAdjuster) Reserve(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error {
	if s.reserveErr != nil {
		return s.reserveErr
	}
	s.reserved = append(s.reserved, lines)
	return nil
}

func (s *stubAdjuster) Release(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error {
	s.released = append(s.released, lines)
	return nil
}

func newTestService(t *testing.T, repo *stubOrdersRepo, adjuster *stubAdjuster) (Service, *stubOutbox) {
	t.Helper()
	events := &stubOutbox{}
	svc, err := NewService(repo, stubTxRunner{}, events, adjuster)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, events
}

func TestCreateComputesTotalsAndShipping(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubOrdersRepo{
		products: []models.Product{{ID: productID, Name: "Ceramic Mug", PricePaisa: 25000, Stock: 10}},
	}
	adjuster := &stubAdjuster{}
	svc, events := newTestService(t, repo, adjuster)

	order, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodBkash,
		ShippingCity:    "Dhaka",
		ShippingAddress: "House 7, Road 11, Banani",
		Items:           []CreateOrderItemInput{{ProductID: productID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if order.SubtotalPaisa != 50000 {
		t.Fatalf("subtotal = %d, want 50000", order.SubtotalPaisa)
	}
	if order.ShippingPaisa != 7000 || order.ShippingMethod != enums.ShippingMethodInsideDhaka {
		t.Fatalf("shipping = %d/%s, want 7000/inside_dhaka", order.ShippingPaisa, order.ShippingMethod)
	}
	if order.TotalPaisa != 57000 {
		t.Fatalf("total = %d, want 57000", order.TotalPaisa)
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("payment status = %s, want pending", order.PaymentStatus)
	}
	if len(adjuster.reserved) != 1 {
		t.Fatalf("expected one reservation batch, got %d", len(adjuster.reserved))
	}
	if len(events.events) != 1 || events.events[0].EventType != enums.OutboxEventOrderCreated {
		t.Fatalf("expected order.created event, got %+v", events.events)
	}
	if len(repo.history) != 1 || repo.history[0].Status != enums.OrderStatusPending {
		t.Fatalf("expected pending history row, got %+v", repo.history)
	}
}

func TestCreateOutsideDhakaShipping(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubOrdersRepo{
		products: []models.Product{{ID: productID, Name: "Ceramic Mug", PricePaisa: 25000, Stock: 10}},
	}
	svc, _ := newTestService(t, repo, &stubAdjuster{})

	order, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodCOD,
		ShippingCity:    "Chittagong",
		ShippingAddress: "GEC Circle",
		Items:           []CreateOrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if order.ShippingPaisa != 13000 || order.ShippingMethod != enums.ShippingMethodOutsideDhaka {
		t.Fatalf("shipping = %d/%s, want 13000/outside_dhaka", order.ShippingPaisa, order.ShippingMethod)
	}
}

func TestCreateMergesDuplicateLines(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubOrdersRepo{
		products: []models.Product{{ID: productID, Name: "Ceramic Mug", PricePaisa: 10000, Stock: 10}},
	}
	adjuster := &stubAdjuster{}
	svc, _ := newTestService(t, repo, adjuster)

	order, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodBkash,
		ShippingCity:    "Dhaka",
		ShippingAddress: "Banani",
		Items: []CreateOrderItemInput{
			{ProductID: productID, Qty: 1},
			{ProductID: productID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Qty != 3 {
		t.Fatalf("expected one merged line qty 3, got %+v", order.Items)
	}
	if len(adjuster.reserved) != 1 || len(adjuster.reserved[0]) != 1 || adjuster.reserved[0][0].Qty != 3 {
		t.Fatalf("expected merged reservation qty 3, got %+v", adjuster.reserved)
	}
}

func TestCreateInsufficientStockAborts(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubOrdersRepo{
		products: []models.Product{{ID: productID, Name: "Ceramic Mug", PricePaisa: 10000, Stock: 0}},
	}
	adjuster := &stubAdjuster{reserveErr: pkgerrors.New(pkgerrors.CodeStockConflict, "insufficient stock")}
	svc, events := newTestService(t, repo, adjuster)

	_, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodBkash,
		ShippingCity:    "Dhaka",
		ShippingAddress: "Banani",
		Items:           []CreateOrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStockConflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("order must not be persisted when reservation fails")
	}
	if len(events.events) != 0 {
		t.Fatal("no events expected when reservation fails")
	}
}

func TestCreateUnknownProduct(t *testing.T) {
	t.Parallel()

	repo := &stubOrdersRepo{}
	svc, _ := newTestService(t, repo, &stubAdjuster{})

	_, err := svc.Create(context.Background(), CreateOrderInput{
		UserID:          uuid.New(),
		PaymentMethod:   enums.PaymentMethodBkash,
		ShippingCity:    "Dhaka",
		ShippingAddress: "Banani",
		Items:           []CreateOrderItemInput{{ProductID: uuid.New(), Qty: 1}},
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetForUserHidesForeignOrders(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), UserID: uuid.New()}
	repo := &stubOrdersRepo{order: order}
	svc, _ := newTestService(t, repo, &stubAdjuster{})

	_, err := svc.GetForUser(context.Background(), order.ID, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}

	got, err := svc.GetForUser(context.Background(), order.ID, order.UserID)
	if err != nil {
		t.Fatalf("GetForUser returned error: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("got order %s, want %s", got.ID, order.ID)
	}
}

func TestAdminUpdateStatusRefusesUnpaidPrepaid(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodBkash,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
	}
	repo := &stubOrdersRepo{order: order}
	svc, _ := newTestService(t, repo, &stubAdjuster{})

	_, err := svc.AdminUpdateStatus(context.Background(), AdminStatusInput{
		OrderID:    order.ID,
		NextStatus: enums.OrderStatusProcessing,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for unpaid prepaid order, got %v", err)
	}
	if repo.statusSet {
		t.Fatal("status must not change on refused transition")
	}
}

func TestAdminUpdateStatusAllowsUnpaidCOD(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
	}
	repo := &stubOrdersRepo{order: order}
	svc, events := newTestService(t, repo, &stubAdjuster{})

	updated, err := svc.AdminUpdateStatus(context.Background(), AdminStatusInput{
		OrderID:    order.ID,
		NextStatus: enums.OrderStatusProcessing,
		Note:       "packed",
	})
	if err != nil {
		t.Fatalf("AdminUpdateStatus returned error: %v", err)
	}
	if updated.OrderStatus != enums.OrderStatusProcessing {
		t.Fatalf("status = %s, want processing", updated.OrderStatus)
	}
	if len(events.events) != 1 || events.events[0].EventType != enums.OutboxEventOrderStatusMoved {
		t.Fatalf("expected order.status_changed event, got %+v", events.events)
	}
}

func TestAdminUpdateStatusRejectsBackwardsMove(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		OrderStatus:   enums.OrderStatusDelivered,
	}
	repo := &stubOrdersRepo{order: order}
	svc, _ := newTestService(t, repo, &stubAdjuster{})

	_, err := svc.AdminUpdateStatus(context.Background(), AdminStatusInput{
		OrderID:    order.ID,
		NextStatus: enums.OrderStatusProcessing,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
