package bkashwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/metrics"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/webhookverify"
)

type deliveryPayload struct {
	PaymentID         string `json:"paymentID"`
	TrxID             string `json:"trxID"`
	TransactionStatus string `json:"transactionStatus"`
}

// DeliveryResult reports how a webhook delivery was handled.
type DeliveryResult struct {
	EventID   string
	Duplicate bool
}

type ServiceParams struct {
	Verifier webhookverify.Verifier
	Guard    *Guard
	Engine   payments.Engine
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// Service verifies, deduplicates and routes bKash webhook deliveries.
type Service struct {
	verifier webhookverify.Verifier
	guard    *Guard
	engine   payments.Engine
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments engine required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		verifier: params.Verifier,
		guard:    params.Guard,
		engine:   params.Engine,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleDelivery processes one raw webhook delivery. Signature verification
// happens before anything else touches the body. Duplicates acknowledge
// without side effects. Processing failures release the dedup mark so the
// provider's retry gets a clean attempt.
func (s *Service) HandleDelivery(ctx context.Context, header http.Header, body []byte) (*DeliveryResult, error) {
	if err := s.verifier.Verify(header, body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "webhook signature verification failed")
	}

	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook payload is not valid json")
	}

	eventID := webhookverify.ExtractEventID(body)
	if eventID == "" {
		// Providers occasionally omit a delivery id; the payment and its
		// reported status still identify the logical event.
		eventID = fmt.Sprintf("%s:%s", payload.PaymentID, payload.TransactionStatus)
	}
	ctx = s.logg.WithField(ctx, "event_id", eventID)

	duplicate, err := s.guard.Seen(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedup check")
	}
	if duplicate {
		if s.metrics != nil {
			s.metrics.IncWebhookDuplicate()
		}
		s.logg.Info(ctx, "duplicate webhook delivery acknowledged")
		return &DeliveryResult{EventID: eventID, Duplicate: true}, nil
	}

	err = s.engine.HandleWebhook(ctx, payments.WebhookEvent{
		EventID:   eventID,
		PaymentID: payload.PaymentID,
		TrxID:     payload.TrxID,
		Status:    payload.TransactionStatus,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			// Nothing a provider retry could fix; acknowledge and keep the mark.
			s.logg.Warn(ctx, "webhook references unknown payment, acknowledged")
			return &DeliveryResult{EventID: eventID}, nil
		}
		if forgetErr := s.guard.Forget(ctx, eventID); forgetErr != nil {
			s.logg.Error(ctx, "failed to release webhook dedup mark", forgetErr)
		}
		return nil, err
	}

	return &DeliveryResult{EventID: eventID}, nil
}
