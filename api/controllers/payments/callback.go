package payments

import (
	"net/http"
	"strings"

	"github.com/rakibulhasan-dev/bazarly-backend/api/responses"
	internalpayments "github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

// BkashCallback handles the browser redirect at the end of the tokenized
// checkout flow. The gateway appends paymentID and status to the callback
// URL; success executes the payment, failure and cancel settle the order
// accordingly.
func BkashCallback(engine internalpayments.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments engine unavailable"))
			return
		}

		paymentID := strings.TrimSpace(r.URL.Query().Get("paymentID"))
		if paymentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "paymentID is required"))
			return
		}
		status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))

		ctx := logg.WithPaymentID(r.Context(), paymentID)

		switch status {
		case "success":
			order, err := engine.CompletePayment(ctx, paymentID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"paymentStatus": string(order.PaymentStatus), "order": order})
		case "failure":
			if err := engine.FailPayment(ctx, paymentID, "gateway reported failure"); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"paymentStatus": "failed"})
		case "cancel":
			if err := engine.CancelPayment(ctx, paymentID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"paymentStatus": "cancelled"})
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be success, failure or cancel"))
		}
	}
}
