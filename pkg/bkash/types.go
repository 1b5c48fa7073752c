package bkash

import "encoding/json"

// Gateway success code for the tokenized checkout API.
const statusCodeSuccess = "0000"

// Transaction statuses reported by execute/query responses.
const (
	TrxStatusInitiated = "Initiated"
	TrxStatusCompleted = "Completed"
	TrxStatusCancelled = "Cancelled"
	TrxStatusFailed    = "Failed"
)

type tokenGrantRequest struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

type tokenGrantResponse struct {
	IDToken       string `json:"id_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
	RefreshToken  string `json:"refresh_token"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

type createPaymentRequest struct {
	Mode                  string `json:"mode"`
	PayerReference        string `json:"payerReference"`
	CallbackURL           string `json:"callbackURL"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

// CreateRequest carries the fields the engine supplies when opening a
// payment intent.
type CreateRequest struct {
	AmountPaisa    int
	InvoiceNumber  string
	PayerReference string
}

// CreateResult is the normalized outcome of a successful create call. Raw
// retains the verbatim gateway body for audit.
type CreateResult struct {
	PaymentID         string          `json:"paymentID"`
	BkashURL          string          `json:"bkashURL"`
	Amount            string          `json:"amount"`
	PaymentCreateTime string          `json:"paymentCreateTime"`
	Raw               json.RawMessage `json:"-"`
}

// ExecuteResult is the normalized outcome of a successful execute call.
type ExecuteResult struct {
	PaymentID          string          `json:"paymentID"`
	TrxID              string          `json:"trxID"`
	TransactionStatus  string          `json:"transactionStatus"`
	Amount             string          `json:"amount"`
	PaymentExecuteTime string          `json:"paymentExecuteTime"`
	Raw                json.RawMessage `json:"-"`
}

// QueryResult is the normalized outcome of a payment status query.
type QueryResult struct {
	PaymentID         string          `json:"paymentID"`
	TrxID             string          `json:"trxID"`
	TransactionStatus string          `json:"transactionStatus"`
	Amount            string          `json:"amount"`
	Raw               json.RawMessage `json:"-"`
}

// RefundRequest carries the fields required to refund a completed payment.
type RefundRequest struct {
	PaymentID   string
	TrxID       string
	AmountPaisa int
	Reason      string
	SKU         string
}

// RefundResult is the normalized outcome of a successful refund call.
type RefundResult struct {
	RefundTrxID       string          `json:"refundTrxID"`
	OriginalTrxID     string          `json:"originalTrxID"`
	TransactionStatus string          `json:"transactionStatus"`
	Amount            string          `json:"amount"`
	Raw               json.RawMessage `json:"-"`
}

type gatewayEnvelope struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}
