package mockbkash

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/api/responses"
	"github.com/rakibulhasan-dev/bazarly-backend/api/validators"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

// Simulator is an in-memory stand-in for the tokenized checkout API. It is
// mounted only outside prod so the gateway client can be pointed at this
// process for integration testing. Payment outcomes default to success and
// can be flipped per payment via the simulate endpoint.
type Simulator struct {
	logg *logger.Logger

	mu       sync.Mutex
	payments map[string]*mockPayment
}

type mockPayment struct {
	Invoice string
	Amount  string
	Status  string
	TrxID   string
}

func NewSimulator(logg *logger.Logger) *Simulator {
	return &Simulator{
		logg:     logg,
		payments: map[string]*mockPayment{},
	}
}

// Router exposes the subset of the gateway surface the client calls, plus
// the simulate endpoint.
func (s *Simulator) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/tokenized/checkout/token/grant", s.tokenGrant)
	r.Post("/tokenized/checkout/create", s.create)
	r.Post("/tokenized/checkout/execute", s.execute)
	r.Post("/tokenized/checkout/payment/status", s.query)
	r.Post("/tokenized/checkout/payment/refund", s.refund)
	r.Post("/simulate", s.simulate)
	return r
}

func (s *Simulator) tokenGrant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"id_token":      "mock-token-" + uuid.NewString(),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"statusCode":    "0000",
		"statusMessage": "Successful",
	})
}

func (s *Simulator) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount                string `json:"amount"`
		MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRejection(w, "2001", "invalid request body")
		return
	}

	paymentID := "MOCK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]

	s.mu.Lock()
	s.payments[paymentID] = &mockPayment{
		Invoice: req.MerchantInvoiceNumber,
		Amount:  req.Amount,
		Status:  "Initiated",
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"paymentID":         paymentID,
		"bkashURL":          "https://mock.bkash.local/checkout/" + paymentID,
		"amount":            req.Amount,
		"paymentCreateTime": time.Now().UTC().Format(time.RFC3339),
		"statusCode":        "0000",
		"statusMessage":     "Successful",
	})
}

func (s *Simulator) execute(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := s.paymentIDFromBody(r)
	if !ok {
		writeRejection(w, "2001", "paymentID required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	payment, exists := s.payments[paymentID]
	if !exists {
		writeRejection(w, "2029", "payment not found")
		return
	}

	switch payment.Status {
	case "Initiated":
		payment.Status = "Completed"
		payment.TrxID = "MTX" + fmt.Sprintf("%08d", len(s.payments))
	case "Failed", "Cancelled":
		// simulate endpoint forced a terminal outcome; report it as-is.
	}

	writeJSON(w, map[string]any{
		"paymentID":          paymentID,
		"trxID":              payment.TrxID,
		"transactionStatus":  payment.Status,
		"amount":             payment.Amount,
		"paymentExecuteTime": time.Now().UTC().Format(time.RFC3339),
		"statusCode":         "0000",
		"statusMessage":      "Successful",
	})
}

func (s *Simulator) query(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := s.paymentIDFromBody(r)
	if !ok {
		writeRejection(w, "2001", "paymentID required")
		return
	}

	s.mu.Lock()
	payment, exists := s.payments[paymentID]
	s.mu.Unlock()
	if !exists {
		writeRejection(w, "2029", "payment not found")
		return
	}

	writeJSON(w, map[string]any{
		"paymentID":         paymentID,
		"trxID":             payment.TrxID,
		"transactionStatus": payment.Status,
		"amount":            payment.Amount,
		"statusCode":        "0000",
		"statusMessage":     "Successful",
	})
}

func (s *Simulator) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"paymentID"`
		TrxID     string `json:"trxID"`
		Amount    string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		writeRejection(w, "2001", "paymentID required")
		return
	}

	s.mu.Lock()
	payment, exists := s.payments[req.PaymentID]
	if exists && payment.Status == "Completed" {
		payment.Status = "Refunded"
	}
	s.mu.Unlock()

	if !exists {
		writeRejection(w, "2029", "payment not found")
		return
	}

	writeJSON(w, map[string]any{
		"refundTrxID":       "MRF" + strings.ToUpper(uuid.NewString()[:8]),
		"originalTrxID":     req.TrxID,
		"transactionStatus": "Completed",
		"amount":            req.Amount,
		"statusCode":        "0000",
		"statusMessage":     "Successful",
	})
}

type simulateRequest struct {
	PaymentID string `json:"paymentID" validate:"required"`
	Outcome   string `json:"outcome" validate:"required,oneof=Completed Failed Cancelled"`
}

// simulate flips a pending mock payment to the requested terminal outcome so
// integration tests can exercise the failure and cancel paths.
func (s *Simulator) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}

	s.mu.Lock()
	payment, exists := s.payments[req.PaymentID]
	if exists {
		payment.Status = req.Outcome
		if req.Outcome == "Completed" && payment.TrxID == "" {
			payment.TrxID = "MTX" + strings.ToUpper(uuid.NewString()[:8])
		}
	}
	s.mu.Unlock()

	if !exists {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "mock payment not found"))
		return
	}
	responses.WriteSuccess(w, map[string]string{"paymentID": req.PaymentID, "status": req.Outcome})
}

func (s *Simulator) paymentIDFromBody(r *http.Request) (string, bool) {
	var req struct {
		PaymentID string `json:"paymentID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PaymentID) == "" {
		return "", false
	}
	return req.PaymentID, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRejection(w http.ResponseWriter, code, message string) {
	writeJSON(w, map[string]string{"statusCode": code, "statusMessage": message})
}
