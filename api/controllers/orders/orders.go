package orders

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
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

type createOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	PaymentMethod   string                   `json:"payment_method" validate:"required"`
	ShippingCity    string                   `json:"shipping_city" validate:"required"`
	ShippingAddress string                   `json:"shipping_address" validate:"required"`
	Items           []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type paymentAdvisory struct {
	PaymentID       string `json:"paymentID,omitempty"`
	BkashURL        string `json:"bkashURL,omitempty"`
	BkashConfigured bool   `json:"bkashConfigured"`
	BkashError      string `json:"bkashError,omitempty"`
}

type createOrderResponse struct {
	Order   *models.Order    `json:"order"`
	Payment *paymentAdvisory `json:"payment,omitempty"`
}

// Create places an order. For bKash orders the payment intent is attempted
// in the same request; a failed payment leg still returns 201 with the order
// kept pending, the failure is advisory.
func Create(svc internalorders.Service, engine payments.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.PaymentMethod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := internalorders.CreateOrderInput{
			UserID:          userID,
			PaymentMethod:   method,
			ShippingCity:    payload.ShippingCity,
			ShippingAddress: payload.ShippingAddress,
		}
		for _, item := range payload.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.Items = append(input.Items, internalorders.CreateOrderItemInput{ProductID: productID, Qty: item.Qty})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := createOrderResponse{Order: order}
		if method == enums.PaymentMethodBkash && engine != nil {
			advisory, updated := initiateAdvisory(r, engine, order.ID, userID, logg)
			resp.Payment = advisory
			if updated != nil {
				resp.Order = updated
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// List returns the caller's order history.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), internalorders.ListOrdersInput{UserID: userID, Limit: limit, Offset: offset})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order after checking ownership.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForUser(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// RetryPayment reopens a failed or cancelled bKash payment. Stock is
// re-reserved before a fresh intent is created; insufficient stock fails
// the whole call.
func RetryPayment(engine payments.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments engine unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.InitiatePayment(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := createOrderResponse{
			Order: result.Order,
			Payment: &paymentAdvisory{
				PaymentID:       result.PaymentID,
				BkashURL:        result.BkashURL,
				BkashConfigured: result.Configured,
			},
		}
		responses.WriteSuccess(w, resp)
	}
}

func initiateAdvisory(r *http.Request, engine payments.Engine, orderID, userID uuid.UUID, logg *logger.Logger) (*paymentAdvisory, *models.Order) {
	result, err := engine.InitiatePayment(r.Context(), orderID, userID)
	if err != nil {
		if logg != nil {
			logg.Error(r.Context(), "bkash intent failed during order create", err)
		}
		return &paymentAdvisory{BkashConfigured: true, BkashError: advisoryMessage(err)}, nil
	}
	return &paymentAdvisory{
		PaymentID:       result.PaymentID,
		BkashURL:        result.BkashURL,
		BkashConfigured: result.Configured,
	}, result.Order
}

func advisoryMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	return "payment initiation failed"
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}
