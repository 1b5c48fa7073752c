package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/inventory"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/orders"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/bkash"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/metrics"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway is the payment gateway surface the engine depends on.
type Gateway interface {
	IsConfigured() bool
	CreatePayment(ctx context.Context, req bkash.CreateRequest) (*bkash.CreateResult, error)
	ExecutePayment(ctx context.Context, paymentID string) (*bkash.ExecuteResult, error)
	QueryPayment(ctx context.Context, paymentID string) (*bkash.QueryResult, error)
	RefundPayment(ctx context.Context, req bkash.RefundRequest) (*bkash.RefundResult, error)
}

// InitiateResult reports the outcome of opening a payment intent. Configured
// false means the gateway credentials are absent and the order was left
// unpaid on purpose.
type InitiateResult struct {
	Order      *models.Order
	PaymentID  string
	BkashURL   string
	Configured bool
}

// WebhookEvent is a verified, deduplicated gateway notification.
type WebhookEvent struct {
	EventID   string
	PaymentID string
	TrxID     string
	Status    string
}

// Engine reconciles order payment state against gateway outcomes. Every
// transition is compare-and-set guarded; losing a race is a logged no-op,
// so callbacks, webhooks and manual reconciliation can all fire for the
// same payment without double-applying side effects.
type Engine interface {
	InitiatePayment(ctx context.Context, orderID, userID uuid.UUID) (*InitiateResult, error)
	CompletePayment(ctx context.Context, paymentID string) (*models.Order, error)
	FailPayment(ctx context.Context, paymentID, reason string) error
	CancelPayment(ctx context.Context, paymentID string) error
	Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	HandleWebhook(ctx context.Context, event WebhookEvent) error
	QueryAndReconcile(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// EngineParams carries the engine dependencies.
type EngineParams struct {
	Orders    orders.Repository
	Payments  Repository
	Tx        txRunner
	Gateway   Gateway
	Inventory inventory.Adjuster
	Outbox    outboxPublisher
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

type engine struct {
	orders    orders.Repository
	payments  Repository
	tx        txRunner
	gateway   Gateway
	inventory inventory.Adjuster
	outbox    outboxPublisher
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// PaymentEvent is the outbox payload for payment lifecycle events.
type PaymentEvent struct {
	OrderID   uuid.UUID           `json:"order_id"`
	PaymentID string              `json:"payment_id,omitempty"`
	TrxID     string              `json:"trx_id,omitempty"`
	Status    enums.PaymentStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
}

// NewEngine builds the reconciliation engine.
func NewEngine(params EngineParams) (Engine, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &engine{
		orders:    params.Orders,
		payments:  params.Payments,
		tx:        params.Tx,
		gateway:   params.Gateway,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// InitiatePayment opens a gateway intent for a pending order, or retries a
// failed/cancelled one. Retries re-reserve stock and move the order back to
// pending in one transaction before the gateway is contacted; a gateway
// failure afterwards leaves the order pending and unpaid, never lost.
func (e *engine) InitiatePayment(ctx context.Context, orderID, userID uuid.UUID) (*InitiateResult, error) {
	order, err := e.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.PaymentMethod != enums.PaymentMethodBkash {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not payable via bkash")
	}
	if !e.gateway.IsConfigured() {
		return &InitiateResult{Order: order, Configured: false}, nil
	}

	ctx = e.logg.WithOrderID(ctx, order.ID.String())

	switch order.PaymentStatus {
	case enums.PaymentStatusPending:
		err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return e.orders.WithTx(tx).IncrementPaymentAttempts(ctx, order.ID)
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}

	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		prior := order.PaymentStatus
		err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := e.orders.WithTx(tx)
			applied, err := repo.CASPaymentStatus(ctx, order.ID, prior, enums.PaymentStatusPending)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen payment")
			}
			if !applied {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order payment state changed, retry not possible")
			}
			if err := e.inventory.Reserve(ctx, tx, orderLines(order)); err != nil {
				return err
			}
			return repo.IncrementPaymentAttempts(ctx, order.ID)
		})
		if err != nil {
			return nil, err
		}
		e.observeTransition(prior, enums.PaymentStatusPending)
		order.PaymentStatus = enums.PaymentStatusPending

	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot initiate payment from status %s", order.PaymentStatus))
	}

	result, err := e.gateway.CreatePayment(ctx, bkash.CreateRequest{
		AmountPaisa:    order.TotalPaisa,
		InvoiceNumber:  order.ID.String(),
		PayerReference: order.UserID.String(),
	})
	if err != nil {
		e.observeGateway("create", "error")
		return nil, e.mapGatewayError(err, "create payment intent")
	}
	e.observeGateway("create", "ok")

	if err := e.payments.RecordIntent(ctx, order.ID, result.PaymentID, result.Raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}

	e.logg.Info(e.logg.WithPaymentID(ctx, result.PaymentID), "payment intent created")
	return &InitiateResult{
		Order:      order,
		PaymentID:  result.PaymentID,
		BkashURL:   result.BkashURL,
		Configured: true,
	}, nil
}

// CompletePayment executes an authorized intent and settles the order.
// Called from the gateway redirect with status success.
func (e *engine) CompletePayment(ctx context.Context, paymentID string) (*models.Order, error) {
	order, err := e.loadOrderByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, paymentID), order.ID.String())

	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return order, nil
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot complete payment from status %s", order.PaymentStatus))
	}

	result, err := e.gateway.ExecutePayment(ctx, paymentID)
	if err != nil {
		if bkash.IsRejected(err) {
			e.observeGateway("execute", "rejected")
			if failErr := e.applyFailure(ctx, order, enums.PaymentStatusFailed, err.Error()); failErr != nil {
				return nil, failErr
			}
			return nil, e.mapGatewayError(err, "execute payment")
		}
		e.observeGateway("execute", "error")
		return nil, e.mapGatewayError(err, "execute payment")
	}
	e.observeGateway("execute", "ok")

	if result.TransactionStatus != bkash.TrxStatusCompleted {
		reason := fmt.Sprintf("gateway reported %s on execute", result.TransactionStatus)
		if failErr := e.applyFailure(ctx, order, enums.PaymentStatusFailed, reason); failErr != nil {
			return nil, failErr
		}
		return nil, pkgerrors.New(pkgerrors.CodeGatewayRejected, reason)
	}

	if err := e.applyCompletion(ctx, order, result.TrxID, result.Raw); err != nil {
		return nil, err
	}
	return e.loadOrder(ctx, order.ID)
}

// FailPayment records a gateway-reported failure and compensates inventory.
func (e *engine) FailPayment(ctx context.Context, paymentID, reason string) error {
	order, err := e.loadOrderByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, paymentID), order.ID.String())
	return e.applyFailure(ctx, order, enums.PaymentStatusFailed, reason)
}

// CancelPayment records a customer abandoning the gateway flow.
func (e *engine) CancelPayment(ctx context.Context, paymentID string) error {
	order, err := e.loadOrderByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, paymentID), order.ID.String())
	return e.applyFailure(ctx, order, enums.PaymentStatusCancelled, "cancelled at gateway")
}

// Refund refunds a completed payment in full. Stock is not restored; the
// goods may already be with the customer, restocking is a manual decision.
func (e *engine) Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := e.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot refund payment in status %s", order.PaymentStatus))
	}
	if order.PaymentDetail == nil || order.PaymentDetail.PaymentID == "" || order.PaymentDetail.TrxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no settled gateway transaction")
	}

	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, order.PaymentDetail.PaymentID), order.ID.String())

	result, err := e.gateway.RefundPayment(ctx, bkash.RefundRequest{
		PaymentID:   order.PaymentDetail.PaymentID,
		TrxID:       order.PaymentDetail.TrxID,
		AmountPaisa: order.TotalPaisa,
		Reason:      reason,
	})
	if err != nil {
		e.observeGateway("refund", "error")
		return nil, e.mapGatewayError(err, "refund payment")
	}
	e.observeGateway("refund", "ok")

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		applied, err := repo.CASPaymentStatus(ctx, order.ID, enums.PaymentStatusCompleted, enums.PaymentStatusRefunded)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund transition")
		}
		if !applied {
			e.observeStale()
			e.logg.Warn(ctx, "refund transition lost, payment already moved")
			return nil
		}
		if err := e.payments.WithTx(tx).RecordRefund(ctx, order.ID, result.RefundTrxID, result.Raw); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refund detail")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  order.OrderStatus,
			Note:    fmt.Sprintf("payment refunded (%s)", result.RefundTrxID),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append refund history")
		}
		e.observeTransition(enums.PaymentStatusCompleted, enums.PaymentStatusRefunded)
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentRefunded,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: PaymentEvent{
				OrderID:   order.ID,
				PaymentID: order.PaymentDetail.PaymentID,
				TrxID:     result.RefundTrxID,
				Status:    enums.PaymentStatusRefunded,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return e.loadOrder(ctx, order.ID)
}

// HandleWebhook applies a verified gateway notification. The caller is
// responsible for signature verification and dedup; this layer only decides
// which transition the event maps to. Stale events are logged no-ops.
func (e *engine) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	if event.PaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event missing payment id")
	}

	order, err := e.loadOrderByPaymentID(ctx, event.PaymentID)
	if err != nil {
		return err
	}
	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, event.PaymentID), order.ID.String())

	switch event.Status {
	case bkash.TrxStatusCompleted:
		if order.PaymentStatus != enums.PaymentStatusPending {
			e.observeStale()
			e.logg.Info(ctx, "webhook completion ignored, order not pending")
			return nil
		}
		return e.applyCompletion(ctx, order, event.TrxID, nil)

	case bkash.TrxStatusFailed:
		return e.applyFailure(ctx, order, enums.PaymentStatusFailed, "gateway reported failure")

	case bkash.TrxStatusCancelled:
		return e.applyFailure(ctx, order, enums.PaymentStatusCancelled, "gateway reported cancellation")

	default:
		e.logg.Info(e.logg.WithField(ctx, "trx_status", event.Status), "webhook status not actionable")
		return nil
	}
}

// QueryAndReconcile fetches the gateway view of the order's latest intent
// and applies whichever transition it implies. The stored order remains the
// source of truth; the gateway response is audit input.
func (e *engine) QueryAndReconcile(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := e.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentDetail == nil || order.PaymentDetail.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no payment intent to reconcile")
	}
	paymentID := order.PaymentDetail.PaymentID
	ctx = e.logg.WithOrderID(e.logg.WithPaymentID(ctx, paymentID), order.ID.String())

	result, err := e.gateway.QueryPayment(ctx, paymentID)
	if err != nil {
		e.observeGateway("query", "error")
		return nil, e.mapGatewayError(err, "query payment")
	}
	e.observeGateway("query", "ok")

	if err := e.payments.RecordQuery(ctx, order.ID, result.Raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store query response")
	}

	switch result.TransactionStatus {
	case bkash.TrxStatusCompleted:
		if order.PaymentStatus == enums.PaymentStatusPending {
			if err := e.applyCompletion(ctx, order, result.TrxID, nil); err != nil {
				return nil, err
			}
		}
	case bkash.TrxStatusFailed:
		if err := e.applyFailure(ctx, order, enums.PaymentStatusFailed, "reconciled as failed"); err != nil {
			return nil, err
		}
	case bkash.TrxStatusCancelled:
		if err := e.applyFailure(ctx, order, enums.PaymentStatusCancelled, "reconciled as cancelled"); err != nil {
			return nil, err
		}
	default:
		e.logg.Info(e.logg.WithField(ctx, "trx_status", result.TransactionStatus), "reconcile left order unchanged")
	}

	return e.loadOrder(ctx, order.ID)
}

// applyCompletion settles a pending order. The CAS, detail update, history
// row and event share one transaction.
func (e *engine) applyCompletion(ctx context.Context, order *models.Order, trxID string, raw json.RawMessage) error {
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		applied, err := repo.CASPaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply completion transition")
		}
		if !applied {
			e.observeStale()
			e.logg.Info(ctx, "completion transition lost, payment already moved")
			return nil
		}
		if err := e.payments.WithTx(tx).RecordCompletion(ctx, order.ID, trxID, time.Now().UTC(), raw); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store completion detail")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  order.OrderStatus,
			Note:    fmt.Sprintf("payment completed (%s)", trxID),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append completion history")
		}
		e.observeTransition(enums.PaymentStatusPending, enums.PaymentStatusCompleted)
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentCompleted,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: PaymentEvent{
				OrderID: order.ID,
				TrxID:   trxID,
				Status:  enums.PaymentStatusCompleted,
			},
		})
	})
}

// applyFailure moves a pending order to failed or cancelled and releases its
// reserved stock. The CAS guard makes the release exactly-once: a second
// failure report loses the CAS and skips compensation entirely.
func (e *engine) applyFailure(ctx context.Context, order *models.Order, to enums.PaymentStatus, reason string) error {
	eventType := enums.OutboxEventPaymentFailed
	if to == enums.PaymentStatusCancelled {
		eventType = enums.OutboxEventPaymentCancelled
	}
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		applied, err := repo.CASPaymentStatus(ctx, order.ID, enums.PaymentStatusPending, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply failure transition")
		}
		if !applied {
			e.observeStale()
			e.logg.Info(ctx, "failure transition lost, payment already moved")
			return nil
		}
		if err := e.inventory.Release(ctx, tx, orderLines(order)); err != nil {
			return err
		}
		if err := e.payments.WithTx(tx).RecordFailure(ctx, order.ID, reason, time.Now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store failure detail")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  order.OrderStatus,
			Note:    fmt.Sprintf("payment %s: %s", to, reason),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append failure history")
		}
		e.observeTransition(enums.PaymentStatusPending, to)
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: PaymentEvent{
				OrderID: order.ID,
				Status:  to,
				Reason:  reason,
			},
		})
	})
}

func (e *engine) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (e *engine) loadOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	order, err := e.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment id")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment id")
	}
	return order, nil
}

func (e *engine) mapGatewayError(err error, action string) error {
	if bkash.IsRejected(err) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayRejected, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func (e *engine) observeTransition(from, to enums.PaymentStatus) {
	if e.metrics != nil {
		e.metrics.ObserveTransition(from.String(), to.String())
	}
}

func (e *engine) observeStale() {
	if e.metrics != nil {
		e.metrics.IncStale()
	}
}

func (e *engine) observeGateway(op, outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveGatewayRequest(op, outcome)
	}
}

func orderLines(order *models.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Qty: item.Qty})
	}
	return lines
}
