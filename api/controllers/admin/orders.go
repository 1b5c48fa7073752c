package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/api/middleware"
	"github.com/rakibulhasan-dev/bazarly-backend/api/responses"
	"github.com/rakibulhasan-dev/bazarly-backend/api/validators"
	internalorders "github.com/rakibulhasan-dev/bazarly-backend/internal/orders"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Refund issues a full gateway refund for a completed bKash payment. Stock
// is not restored, the goods may already be with the customer.
func Refund(engine payments.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments engine unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := engine.Refund(r.Context(), orderID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// UpdateStatus moves an order through the fulfillment lifecycle.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		actorID := uuid.Nil
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			if parsed, err := uuid.Parse(raw); err == nil {
				actorID = parsed
			}
		}

		order, err := svc.AdminUpdateStatus(r.Context(), internalorders.AdminStatusInput{
			OrderID:     orderID,
			NextStatus:  next,
			Note:        payload.Note,
			ActorUserID: actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
