package enums

// OutboxEventType names the domain events queued through the transactional
// outbox.
type OutboxEventType string

const (
	OutboxEventOrderCreated     OutboxEventType = "order.created"
	OutboxEventPaymentCompleted OutboxEventType = "payment.completed"
	OutboxEventPaymentFailed    OutboxEventType = "payment.failed"
	OutboxEventPaymentCancelled OutboxEventType = "payment.cancelled"
	OutboxEventPaymentRefunded  OutboxEventType = "payment.refunded"
	OutboxEventOrderStatusMoved OutboxEventType = "order.status_changed"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateOrder OutboxAggregateType = "order"
)
