package webhooks

import (
	"io"
	"net/http"

	"github.com/rakibulhasan-dev/bazarly-backend/api/responses"
	bkashwebhook "github.com/rakibulhasan-dev/bazarly-backend/internal/webhooks/bkash"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// BkashWebhook accepts provider notifications. Invalid signatures get 401,
// replays get a 200 acknowledgement with duplicate:true, and internal
// failures get a 5xx so the provider redelivers.
func BkashWebhook(svc *bkashwebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.HandleDelivery(ctx, r.Header, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"received":  true,
			"duplicate": result.Duplicate,
		})
	}
}
